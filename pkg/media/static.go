package media

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v3"
)

// StaticProvider acquires a source with a negotiable video track that carries
// no frames. It backs dry runs and protocol tests that need a real track
// without a capture feed. Deny, when set, makes acquisition fail with that
// reason, standing in for a refused capture permission.
type StaticProvider struct {
	Deny string
}

func (p *StaticProvider) Acquire(ctx context.Context, c CaptureConstraints) (*Source, error) {
	if p.Deny != "" {
		return nil, fmt.Errorf("capture denied: %s", p.Deny)
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video",
		"beamcast",
	)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}
	return NewTrackSource([]*webrtc.TrackLocalStaticSample{track}), nil
}
