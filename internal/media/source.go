package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// SampleWriter is what a source writes to. TrackLocalStaticSample is one.
type SampleWriter interface {
	WriteSample(s media.Sample) error
}

// Source produces encoded samples for a track until ctx ends or it runs
// out.
type Source interface {
	Stream(ctx context.Context, w SampleWriter) error
}

const opusFrame = 20 * time.Millisecond

// opusSilence is a single 20ms opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Silence keeps an audio track alive with opus silence frames.
type Silence struct{}

func (Silence) Stream(ctx context.Context, w SampleWriter) error {
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.WriteSample(media.Sample{Data: opusSilence, Duration: opusFrame}); err != nil &&
				!errors.Is(err, io.ErrClosedPipe) {
				return err
			}
		}
	}
}

// IVFFile plays a VP8 IVF file, paced by the file's timebase.
type IVFFile struct {
	Path string
	Loop bool
}

func (f IVFFile) Stream(ctx context.Context, w SampleWriter) error {
	for {
		if err := f.playOnce(ctx, w); err != nil {
			return err
		}
		if !f.Loop {
			return nil
		}
	}
}

func (f IVFFile) playOnce(ctx context.Context, w SampleWriter) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open ivf: %w", err)
	}
	defer file.Close()

	return streamIVF(ctx, file, w)
}

func streamIVF(ctx context.Context, r io.Reader, w SampleWriter) error {
	reader, header, err := ivfreader.NewWith(r)
	if err != nil {
		return fmt.Errorf("read ivf header: %w", err)
	}
	if header.TimebaseDenominator == 0 {
		return errors.New("ivf header has zero timebase")
	}

	frameDuration := time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read ivf frame: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := w.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil &&
			!errors.Is(err, io.ErrClosedPipe) {
			return err
		}
	}
}

// OggFile plays an Ogg/Opus file, one page at a time.
type OggFile struct {
	Path string
	Loop bool
}

func (f OggFile) Stream(ctx context.Context, w SampleWriter) error {
	for {
		if err := f.playOnce(ctx, w); err != nil {
			return err
		}
		if !f.Loop {
			return nil
		}
	}
}

func (f OggFile) playOnce(ctx context.Context, w SampleWriter) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open ogg: %w", err)
	}
	defer file.Close()

	reader, _, err := oggreader.NewWith(file)
	if err != nil {
		return fmt.Errorf("read ogg header: %w", err)
	}

	var lastGranule uint64
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()

	for {
		page, header, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read ogg page: %w", err)
		}

		samples := float64(header.GranulePosition - lastGranule)
		lastGranule = header.GranulePosition
		duration := time.Duration(samples / 48000 * float64(time.Second))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := w.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil &&
			!errors.Is(err, io.ErrClosedPipe) {
			return err
		}
	}
}
