package relay

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Room codes are memorable ADJECTIVE-NOUN-NN strings so a host can read one
// out loud instead of dictating a UUID.

var adjectives = []string{
	"QUICK", "LAZY", "HAPPY", "CALM", "BRAVE",
	"BRIGHT", "COOL", "DARK", "EAGER", "FAIR",
	"GENTLE", "GRAND", "GREAT", "GREEN", "BLUE",
	"RED", "GOLD", "SILVER", "WARM", "WILD",
	"BOLD", "CLEAN", "CLEAR", "CRISP", "DEEP",
	"FAST", "FINE", "FRESH", "GOOD", "HIGH",
}

var nouns = []string{
	"FROG", "TIGER", "RIVER", "CLOUD", "STONE",
	"LEAF", "BIRD", "FISH", "WOLF", "BEAR",
	"HAWK", "DEER", "LION", "EAGLE", "WHALE",
	"TREE", "LAKE", "MOON", "STAR", "WAVE",
	"WIND", "FLAME", "FROST", "PEAK", "CAVE",
	"DAWN", "DUSK", "MIST", "RAIN", "SNOW",
}

var codeRNG = rand.New(rand.NewSource(time.Now().UnixNano()))

// GenerateRoomCode creates a room code like BRAVE-FOX-42.
func GenerateRoomCode() string {
	adj := adjectives[codeRNG.Intn(len(adjectives))]
	noun := nouns[codeRNG.Intn(len(nouns))]
	return fmt.Sprintf("%s-%s-%02d", adj, noun, codeRNG.Intn(100))
}

// NormalizeRoomCode uppercases and trims so BRAVE-fox-42 and BRAVE-FOX-42
// name the same room.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateRoomCode accepts WORD-WORD-NN shaped codes only. The words are not
// checked against the generator lists; peers may bring their own.
func ValidateRoomCode(code string) bool {
	parts := strings.Split(code, "-")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts[:2] {
		if p == "" {
			return false
		}
		for _, r := range p {
			if r < 'A' || r > 'Z' {
				return false
			}
		}
	}
	if parts[2] == "" {
		return false
	}
	for _, r := range parts[2] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
