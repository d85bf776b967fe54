package session

import (
	"context"
	"fmt"
	"os"

	"github.com/hpungsan/lens/internal/analyzer"
	"github.com/hpungsan/lens/internal/capture"
	"github.com/hpungsan/lens/internal/config"
	"github.com/hpungsan/lens/internal/frames"
	"github.com/hpungsan/lens/internal/status"
	"github.com/hpungsan/lens/internal/vision"
)

// FromConfig builds an orchestrator backed by ffmpeg capture, ffmpeg frame
// extraction, the configured understanding service and the configured
// companion.
func FromConfig(cfg *config.Config) (*Orchestrator, error) {
	client, err := vision.New(cfg)
	if err != nil {
		return nil, err
	}

	engine := capture.NewAdapter(capture.NewFFmpeg(cfg.FFmpegPath), capture.Settings{
		FrameRate:    cfg.CaptureFrameRate,
		Resolution:   cfg.Resolution,
		ShowCursor:   cfg.CursorVisible(),
		CaptureAudio: cfg.CaptureAudio,
	})
	extractor := frames.New(cfg.FFmpegPath, cfg.FFprobePath, cfg.MaxFrameWidth)

	pattern := cfg.OverlaySweepPattern
	return New(cfg, Deps{
		Engine:   engine,
		Analyzer: analyzer.New(client, extractor),
		Launch:   NewLauncher(cfg),
		Sweep:    func() { status.SweepOrphans(pattern) },
	}), nil
}

// NewLauncher returns a Launcher for the configured companion, or nil when
// the overlay is disabled. An empty overlay command runs "<self> overlay".
func NewLauncher(cfg *config.Config) Launcher {
	if cfg.DisableOverlay {
		return nil
	}
	command := cfg.OverlayCommand
	return func(ctx context.Context, durationSeconds *int) (StatusChannel, error) {
		argv := command
		if len(argv) == 0 {
			self, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("locate lens binary: %w", err)
			}
			argv = []string{self, "overlay"}
		}
		ch, err := status.Launch(ctx, status.Config{Command: argv, DurationSeconds: durationSeconds})
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
}
