package media

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media/ivfwriter"
)

// RemoteStream is one inbound track together with the transport it rides on,
// which is what a renderer needs to both read media and ask for keyframes.
type RemoteStream struct {
	pc    *webrtc.PeerConnection
	track *webrtc.TrackRemote
}

func NewRemoteStream(pc *webrtc.PeerConnection, track *webrtc.TrackRemote) *RemoteStream {
	return &RemoteStream{pc: pc, track: track}
}

func (s *RemoteStream) Track() *webrtc.TrackRemote { return s.track }

func (s *RemoteStream) MimeType() string { return s.track.Codec().MimeType }

// RequestKeyframe asks the sender for a full frame via PLI.
func (s *RemoteStream) RequestKeyframe() error {
	return s.pc.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(s.track.SSRC())},
	})
}

// Renderer consumes the inbound stream. Rendering itself is outside this
// program; implementations hand the media to whatever does display it.
type Renderer interface {
	AttachStream(*RemoteStream)
	DetachStream()
}

const keyframeInterval = 3 * time.Second

// streamStats counts inbound packets and sequence gaps. Reordered packets
// show up as losses; the counter is a coarse health signal, not accounting.
type streamStats struct {
	packets uint64
	lost    uint64
	lastSeq uint16
	primed  bool
}

func (st *streamStats) observe(pkt *rtp.Packet) {
	st.packets++
	if st.primed {
		if gap := pkt.SequenceNumber - st.lastSeq - 1; gap > 0 && gap < 1<<15 {
			st.lost += uint64(gap)
		}
	}
	st.lastSeq = pkt.SequenceNumber
	st.primed = true
}

// IVFSink records the inbound video stream to an IVF file. It is the built-in
// renderer of watch mode: downstream tooling plays or transcodes the file.
// Only VP8 is written; other codecs are drained with a note.
type IVFSink struct {
	path string

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewIVFSink(path string) *IVFSink {
	return &IVFSink{path: path}
}

func (s *IVFSink) AttachStream(rs *RemoteStream) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	go s.record(ctx, rs)
}

func (s *IVFSink) DetachStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *IVFSink) record(ctx context.Context, rs *RemoteStream) {
	if rs.MimeType() != webrtc.MimeTypeVP8 {
		log.Printf("sink: cannot record %s, draining", rs.MimeType())
		drainTrack(rs.Track())
		return
	}

	w, err := ivfwriter.New(s.path)
	if err != nil {
		log.Printf("sink: open %s: %v", s.path, err)
		drainTrack(rs.Track())
		return
	}
	defer func() {
		if err := w.Close(); err != nil {
			log.Printf("sink: close %s: %v", s.path, err)
		}
	}()

	// The stream may join mid-GOP; keep asking for keyframes so the
	// recording becomes decodable quickly and recovers from loss.
	go func() {
		ticker := time.NewTicker(keyframeInterval)
		defer ticker.Stop()
		if err := rs.RequestKeyframe(); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := rs.RequestKeyframe(); err != nil {
					return
				}
			}
		}
	}()

	var stats streamStats
	defer func() {
		log.Printf("sink: recorded %d packets to %s (%d lost)", stats.packets, s.path, stats.lost)
	}()

	log.Printf("sink: recording %s to %s", rs.Track().ID(), s.path)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pkt, _, err := rs.Track().ReadRTP()
		if err != nil {
			log.Printf("sink: stream ended: %v", err)
			return
		}
		stats.observe(pkt)
		if err := w.WriteRTP(pkt); err != nil {
			log.Printf("sink: write: %v", err)
			return
		}
	}
}
