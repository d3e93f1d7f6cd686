package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
)

// IVFProvider acquires a broadcast source from a pre-encoded IVF stream, the
// handoff format of the external capture tool. Path may be a regular file or
// a FIFO the capture process writes into.
type IVFProvider struct {
	Path string
	Loop bool // restart from the top at end of stream; regular files only
}

func (p *IVFProvider) Acquire(ctx context.Context, c CaptureConstraints) (*Source, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("open capture stream: %w", err)
	}

	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read capture stream header: %w", err)
	}

	mimeType, err := mimeForFourCC(header.FourCC)
	if err != nil {
		f.Close()
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeType},
		"video",
		"beamcast",
	)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create video track: %w", err)
	}

	// A pre-encoded stream cannot be re-encoded to honor fps or resolution
	// bounds, so those constraints are noted and the stream ships as-is.
	if c.MaxFPS > 0 || c.MaxWidth > 0 || c.MaxHeight > 0 {
		log.Printf("capture constraints not applicable to pre-encoded stream %s", p.Path)
	}

	fd := &ivfFeeder{
		track:  track,
		reader: reader,
		header: header,
		file:   f,
		loop:   p.Loop,
	}
	runCtx, cancel := context.WithCancel(context.Background())
	go fd.run(runCtx)

	return NewTrackSource(
		[]*webrtc.TrackLocalStaticSample{track},
		func() error { cancel(); return nil },
		f.Close,
	), nil
}

func mimeForFourCC(fourCC string) (string, error) {
	switch fourCC {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	default:
		return "", fmt.Errorf("unsupported capture codec %q", fourCC)
	}
}

// ivfFeeder paces frames from the container onto the track at the stream's
// native rate.
type ivfFeeder struct {
	track  *webrtc.TrackLocalStaticSample
	reader *ivfreader.IVFReader
	header *ivfreader.IVFFileHeader
	file   *os.File
	loop   bool
}

func (fd *ivfFeeder) run(ctx context.Context) {
	interval := frameInterval(fd.header)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, _, err := fd.reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if !fd.loop {
				log.Printf("capture stream ended")
				return
			}
			if err := fd.rewind(); err != nil {
				log.Printf("capture stream rewind: %v", err)
				return
			}
			continue
		}
		if err != nil {
			log.Printf("capture stream: %v", err)
			return
		}

		if err := fd.track.WriteSample(pionmedia.Sample{Data: frame, Duration: interval}); err != nil {
			log.Printf("write sample: %v", err)
		}
	}
}

func (fd *ivfFeeder) rewind() error {
	if _, err := fd.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader, header, err := ivfreader.NewWith(fd.file)
	if err != nil {
		return err
	}
	fd.reader = reader
	fd.header = header
	return nil
}

func frameInterval(header *ivfreader.IVFFileHeader) time.Duration {
	if header.TimebaseDenominator == 0 {
		return time.Second / 30
	}
	interval := time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	if interval <= 0 {
		return time.Second / 30
	}
	return interval
}
