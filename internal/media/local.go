// Package media holds the call client's outbound tracks and the sources
// that feed them.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Local is the set of outbound tracks for one call. The camera and screen
// tracks share a codec so either can fill the same video sender.
type Local struct {
	Audio  *webrtc.TrackLocalStaticSample
	Camera *webrtc.TrackLocalStaticSample
	Screen *webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	logger *slog.Logger
}

// Sources feed the local tracks. A nil source leaves its track idle.
type Sources struct {
	Audio  Source
	Camera Source
	Screen Source
}

// NewLocal creates opus audio and VP8 camera and screen tracks.
func NewLocal(streamID string, logger *slog.Logger) (*Local, error) {
	if logger == nil {
		logger = slog.Default()
	}

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", streamID)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	camera, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"camera", streamID)
	if err != nil {
		return nil, fmt.Errorf("create camera track: %w", err)
	}
	screen, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"screen", streamID)
	if err != nil {
		return nil, fmt.Errorf("create screen track: %w", err)
	}

	return &Local{
		Audio:  audio,
		Camera: camera,
		Screen: screen,
		logger: logger.With("component", "media"),
	}, nil
}

// VideoTrack returns the track to send for the given screen-share state.
func (l *Local) VideoTrack(screenSharing bool) *webrtc.TrackLocalStaticSample {
	if screenSharing {
		return l.Screen
	}
	return l.Camera
}

// Start runs every source against its track until Stop or ctx ends.
func (l *Local) Start(ctx context.Context, sources Sources) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return errors.New("local media already started")
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.running = true

	l.run(ctx, "audio", sources.Audio, l.Audio)
	l.run(ctx, "camera", sources.Camera, l.Camera)
	l.run(ctx, "screen", sources.Screen, l.Screen)
	return nil
}

func (l *Local) run(ctx context.Context, name string, src Source, track SampleWriter) {
	if src == nil {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := src.Stream(ctx, track); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Warn("media source stopped", "track", name, "error", err)
			return
		}
		l.logger.Debug("media source finished", "track", name)
	}()
}

// Stop ends every source and waits for them. Safe to call more than once.
func (l *Local) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
}
