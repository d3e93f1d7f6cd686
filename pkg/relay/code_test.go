package relay

import (
	"regexp"
	"testing"
)

func TestGenerateRoomCodeShape(t *testing.T) {
	shape := regexp.MustCompile(`^[A-Z]+-[A-Z]+-[0-9]{2}$`)
	for i := 0; i < 50; i++ {
		code := GenerateRoomCode()
		if !shape.MatchString(code) {
			t.Fatalf("code %q does not match ADJECTIVE-NOUN-NN", code)
		}
		if !ValidateRoomCode(code) {
			t.Fatalf("generated code %q fails validation", code)
		}
	}
}

func TestNormalizeRoomCode(t *testing.T) {
	if got := NormalizeRoomCode("  brave-fox-42 "); got != "BRAVE-FOX-42" {
		t.Errorf("got %q", got)
	}
}

func TestValidateRoomCode(t *testing.T) {
	valid := []string{"BRAVE-FOX-42", "A-B-1", "WARM-OAK-00"}
	for _, code := range valid {
		if !ValidateRoomCode(code) {
			t.Errorf("%q rejected", code)
		}
	}

	// Callers normalize before validating, so lowercase input is rejected.
	invalid := []string{"", "BRAVE-FOX", "BRAVE-FOX-XX", "BR4VE-FOX-42", "brave-fox-42", "-FOX-42", "BRAVE--42", "BRAVE-FOX-"}
	for _, code := range invalid {
		if ValidateRoomCode(code) {
			t.Errorf("%q accepted", code)
		}
	}
}
