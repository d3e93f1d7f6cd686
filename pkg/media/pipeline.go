package media

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v3"
)

// Config carries the host's send preferences. CodecOrder lists preferred
// video codecs as MIME types, most preferred first. MaxBitrateKbps asks the
// transport to cap the send rate; whether it was honored is reported, never
// enforced.
type Config struct {
	CodecOrder     []string
	MaxBitrateKbps int
}

// Pipeline tracks the active source on the sending side and routes inbound
// tracks to the renderer on the viewing side. One Pipeline serves one
// participant.
type Pipeline struct {
	cfg Config

	mu       sync.Mutex
	src      *Source
	renderer Renderer
	attached bool
}

func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// SetRenderer installs the rendering collaborator inbound streams go to.
func (p *Pipeline) SetRenderer(r Renderer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renderer = r
}

// StartCapture acquires a live source. A denial surfaces to the caller and
// leaves the pipeline without a source.
func (p *Pipeline) StartCapture(ctx context.Context, provider CaptureProvider, c CaptureConstraints) (*Source, error) {
	src, err := provider.Acquire(ctx, c)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.src = src
	p.mu.Unlock()
	return src, nil
}

// StartFile makes a published media URL the active source.
func (p *Pipeline) StartFile(url string) *Source {
	src := NewFileSource(url)
	p.mu.Lock()
	p.src = src
	p.mu.Unlock()
	return src
}

// Source returns the active source, nil when idle.
func (p *Pipeline) Source() *Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src
}

// Release frees the active source. Safe to call when idle or twice.
func (p *Pipeline) Release() error {
	p.mu.Lock()
	src := p.src
	p.src = nil
	p.mu.Unlock()
	if src == nil {
		return nil
	}
	return src.Release()
}

// AttachTo adds the active source's tracks to a peer transport and applies
// the send preferences. Without a live source it is a no-op: file broadcasts
// negotiate no media, the bytes travel over the published URL instead.
func (p *Pipeline) AttachTo(pc *webrtc.PeerConnection) error {
	p.mu.Lock()
	src := p.src
	p.mu.Unlock()
	if src == nil || src.Mode() != ModeScreen {
		return nil
	}

	for _, track := range src.Tracks() {
		if _, err := pc.AddTrack(track); err != nil {
			return fmt.Errorf("add track %s: %w", track.ID(), err)
		}
	}
	p.applySendPreferences(pc)
	return nil
}

// applySendPreferences is best-effort. A preference the transport rejects is
// logged and the session proceeds without it.
func (p *Pipeline) applySendPreferences(pc *webrtc.PeerConnection) {
	if len(p.cfg.CodecOrder) > 0 {
		prefs := codecPreferences(p.cfg.CodecOrder)
		for _, tr := range pc.GetTransceivers() {
			if tr.Kind() != webrtc.RTPCodecTypeVideo {
				continue
			}
			if err := tr.SetCodecPreferences(prefs); err != nil {
				log.Printf("codec preference not applied: %v", err)
			}
		}
	}

	if res := p.BitrateResult(); !res.Applied {
		log.Printf("bitrate cap %d kbps not applied: %s", p.cfg.MaxBitrateKbps, res.Reason)
	}
}

// BitrateResult reports whether the requested bitrate cap took effect. This
// transport has no sender-side rate control, so a requested cap is recorded
// and reported as ignored rather than enforced.
func (p *Pipeline) BitrateResult() PreferenceResult {
	if p.cfg.MaxBitrateKbps <= 0 {
		return PreferenceResult{Applied: true}
	}
	return PreferenceResult{Applied: false, Reason: "transport has no sender-side rate control"}
}

// HandleRemoteTrack routes an inbound track to the renderer. The first video
// track wins; anything further is drained so the transport's feedback loops
// keep running.
func (p *Pipeline) HandleRemoteTrack(pc *webrtc.PeerConnection, track *webrtc.TrackRemote) {
	p.mu.Lock()
	r := p.renderer
	take := r != nil && !p.attached && track.Kind() == webrtc.RTPCodecTypeVideo
	if take {
		p.attached = true
	}
	p.mu.Unlock()

	if !take {
		log.Printf("draining surplus %s track %s", track.Kind(), track.ID())
		go drainTrack(track)
		return
	}
	r.AttachStream(NewRemoteStream(pc, track))
}

// DetachRenderer tells the renderer the stream is gone and frees the slot so
// a future negotiation can attach again.
func (p *Pipeline) DetachRenderer() {
	p.mu.Lock()
	r := p.renderer
	wasAttached := p.attached
	p.attached = false
	p.mu.Unlock()
	if r != nil && wasAttached {
		r.DetachStream()
	}
}

func drainTrack(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}

// codecPreferences expands MIME types into the transceiver parameter sets the
// transport expects, keeping the requested order. Unknown names are skipped.
func codecPreferences(order []string) []webrtc.RTPCodecParameters {
	table := map[string]webrtc.RTPCodecParameters{
		webrtc.MimeTypeVP8: {
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			PayloadType:        96,
		},
		webrtc.MimeTypeVP9: {
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000},
			PayloadType:        98,
		},
		webrtc.MimeTypeH264: {
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeH264,
				ClockRate:   90000,
				SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f",
			},
			PayloadType: 102,
		},
	}

	prefs := make([]webrtc.RTPCodecParameters, 0, len(order))
	for _, mime := range order {
		if params, ok := table[mime]; ok {
			prefs = append(prefs, params)
		} else {
			log.Printf("unknown codec preference %q skipped", mime)
		}
	}
	return prefs
}
