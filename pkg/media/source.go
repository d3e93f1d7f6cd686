// Package media owns the broadcast input and output paths: acquiring a
// capture source, attaching its tracks to peer transports, publishing media
// files, and handing inbound streams to a renderer on the viewing side.
package media

import (
	"context"
	"log"
	"sync"

	"github.com/pion/webrtc/v3"
)

// Mode says what kind of broadcast is active.
type Mode string

const (
	ModeNone   Mode = ""
	ModeScreen Mode = "screen"
	ModeFile   Mode = "file"
)

// CaptureConstraints carry the host's acquisition wishes. They are advisory:
// a provider clamps what it can and ignores the rest, and the acquired source
// may report different actual parameters. Acquisition never fails because a
// constraint could not be met, only because capture itself is unavailable.
type CaptureConstraints struct {
	MaxFPS                 int
	MaxWidth               int
	MaxHeight              int
	DisableAudioProcessing bool
}

// CaptureProvider turns the machine's capture capability into a Source.
// A denial (permission refused, device missing, unsupported stream) comes
// back as an error and leaves no state behind.
type CaptureProvider interface {
	Acquire(ctx context.Context, c CaptureConstraints) (*Source, error)
}

// PreferenceResult reports what became of a best-effort send preference.
type PreferenceResult struct {
	Applied bool
	Reason  string
}

// Source is the active broadcast input. Screen mode carries live outbound
// tracks; file mode carries the URL viewers fetch the media from.
type Source struct {
	mode    Mode
	tracks  []*webrtc.TrackLocalStaticSample
	fileURL string

	releaseOnce sync.Once
	releases    []func() error
}

// NewTrackSource wraps live tracks and the cleanups that free their backing
// resources.
func NewTrackSource(tracks []*webrtc.TrackLocalStaticSample, releases ...func() error) *Source {
	return &Source{mode: ModeScreen, tracks: tracks, releases: releases}
}

func NewFileSource(url string) *Source {
	return &Source{mode: ModeFile, fileURL: url}
}

func (s *Source) Mode() Mode { return s.mode }

func (s *Source) Tracks() []*webrtc.TrackLocalStaticSample { return s.tracks }

func (s *Source) FileURL() string { return s.fileURL }

// Release frees the source's resources. Every cleanup runs even when an
// earlier one fails; the first failure is returned. Calling Release again is
// a no-op.
func (s *Source) Release() error {
	var first error
	s.releaseOnce.Do(func() {
		for _, release := range s.releases {
			if err := release(); err != nil {
				log.Printf("source release: %v", err)
				if first == nil {
					first = err
				}
			}
		}
	})
	return first
}
