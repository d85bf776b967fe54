package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/lens/internal/capture"
	"github.com/hpungsan/lens/internal/config"
	"github.com/hpungsan/lens/internal/errors"
	"github.com/hpungsan/lens/internal/mcp"
	"github.com/hpungsan/lens/internal/report"
	"github.com/hpungsan/lens/internal/sampler"
	"github.com/hpungsan/lens/internal/session"
	"github.com/hpungsan/lens/internal/status"
)

// opener builds the orchestrator on first use so commands that do not need
// it (doctor, overlay) work without an API key.
type opener func() (mcp.Sessions, error)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(cfg *config.Config, open opener) *cli.App {
	app := &cli.App{
		Name:    "lens",
		Usage:   "Record the screen and analyze what happened",
		Version: Version,
		Commands: []*cli.Command{
			recordCmd(open),
			analyzeCmd(open),
			resetCmd(open),
			overlayCmd(),
			doctorCmd(cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "describe", Usage: "Analysis mode: describe|animation"},
		&cli.StringFlag{Name: "focus", Aliases: []string{"f"}, Usage: "What the analysis should pay attention to"},
		&cli.BoolFlag{Name: "html", Usage: "Also write an HTML report next to the video"},
		&cli.BoolFlag{Name: "json", Usage: "Print the result as JSON instead of markdown"},
	}
}

// recordCmd creates the record command.
func recordCmd(open opener) *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "Record the screen, then analyze the recording",
		Flags: append([]cli.Flag{
			&cli.IntFlag{Name: "duration", Aliases: []string{"d"}, Usage: "Recording length in seconds (0 = until stopped in the overlay)"},
			&cli.StringFlag{Name: "target", Aliases: []string{"t"}, Usage: "fullscreen|display|window|region"},
			&cli.IntFlag{Name: "display", Usage: "Display index for --target=display"},
			&cli.StringFlag{Name: "window", Usage: "Window title for --target=window"},
			&cli.StringFlag{Name: "region", Usage: "x,y,width,height for --target=region"},
		}, outputFlags()...),
		Action: func(c *cli.Context) error {
			mode, err := sampler.ParseMode(c.String("mode"))
			if err != nil {
				return outputError(err)
			}
			target, err := capture.ParseTarget(c.String("target"), c.Int("display"), c.String("window"), c.String("region"))
			if err != nil {
				return outputError(err)
			}
			req := session.RecordRequest{Mode: mode, Target: target, Focus: c.String("focus")}
			if c.IsSet("duration") && c.Int("duration") != 0 {
				d := c.Int("duration")
				req.DurationSeconds = &d
			}

			sessions, err := openSessions(open)
			if err != nil {
				return outputError(err)
			}
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := sessions.RecordAndAnalyze(ctx, req)
			return outputResult(c, res, err)
		},
	}
}

// analyzeCmd creates the analyze command.
func analyzeCmd(open opener) *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Analyze an existing video file",
		ArgsUsage: "<file>",
		Flags:     outputFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidInput("video file path is required"))
			}
			mode, err := sampler.ParseMode(c.String("mode"))
			if err != nil {
				return outputError(err)
			}

			sessions, err := openSessions(open)
			if err != nil {
				return outputError(err)
			}
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := sessions.AnalyzeFile(ctx, session.AnalyzeRequest{
				Path:  c.Args().First(),
				Mode:  mode,
				Focus: c.String("focus"),
			})
			return outputResult(c, res, err)
		},
	}
}

// resetCmd creates the reset command.
func resetCmd(open opener) *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Release a stuck capture engine and kill leftover overlays",
		Action: func(c *cli.Context) error {
			sessions, err := openSessions(open)
			if err != nil {
				return outputError(err)
			}
			if err := sessions.Reset(); err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{"reset": true})
		},
	}
}

// overlayCmd runs the reference companion. It speaks the status protocol on
// stdin/stdout and reads clicks (Enter) from the controlling terminal.
func overlayCmd() *cli.Command {
	return &cli.Command{
		Name:   "overlay",
		Usage:  "Run the terminal status overlay (started by record)",
		Hidden: true,
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			var keys io.Reader
			if tty, err := os.Open(ttyPath()); err == nil {
				defer tty.Close()
				keys = tty
			}
			err := status.RunCompanion(ctx, os.Stdin, os.Stdout, keys, os.Stderr)
			if err != nil && ctx.Err() == nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// doctorCmd checks prerequisites.
func doctorCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Check prerequisites",
		Action: func(c *cli.Context) error {
			w := c.App.Writer
			ok := true
			check := func(name string, pass bool, detail string) {
				mark := "✓"
				if !pass {
					mark = "✗"
					ok = false
				}
				fmt.Fprintf(w, "%s %-18s %s\n", mark, name, detail)
			}

			for _, tool := range []struct{ name, path string }{{"ffmpeg", cfg.FFmpegPath}, {"ffprobe", cfg.FFprobePath}} {
				if found, err := exec.LookPath(tool.path); err != nil {
					check(tool.name, false, "not found. Install ffmpeg or set "+tool.name+"_path in config")
				} else {
					check(tool.name, true, found)
				}
			}

			switch cfg.Provider {
			case "mock":
				check("Analysis service", true, "mock provider (offline)")
			default:
				if cfg.APIKey != "" {
					check("API key", true, "configured for "+cfg.Model)
				} else {
					check("API key", false, "not set. Set LENS_API_KEY or OPENAI_API_KEY, or add api_key to config")
				}
			}

			if cfg.DisableOverlay {
				check("Overlay", true, "disabled (timer-only recording)")
			} else if len(cfg.OverlayCommand) > 0 {
				check("Overlay", true, fmt.Sprint(cfg.OverlayCommand))
			} else {
				check("Overlay", true, "built-in terminal overlay")
			}
			check("Screen recording", true, "permission may be requested on first recording")
			check("Recordings", true, cfg.OutputDir)

			if ok {
				fmt.Fprintln(w, "\nAll prerequisites met. Ready to record!")
			} else {
				fmt.Fprintln(w, "\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}

// Helper functions

func openSessions(open opener) (mcp.Sessions, error) {
	if open == nil {
		return nil, errors.NewInternal(fmt.Errorf("no session factory configured"))
	}
	return open()
}

// outputResult prints a completed session as markdown (or JSON) and writes
// the optional HTML report. A user cancel is reported, not failed.
func outputResult(c *cli.Context, res *session.Result, err error) error {
	if errors.IsCancelledByUser(err) {
		fmt.Fprintln(c.App.Writer, "cancelled: the analysis was cancelled from the overlay")
		return nil
	}
	if err != nil {
		return outputError(err)
	}

	md := report.Markdown(res.Analysis, res.Artifact)
	if c.Bool("html") {
		path := mcp.HTMLPath(res.Artifact)
		if err := report.WriteHTML(path, "lens "+res.ID, md); err != nil {
			return outputError(errors.NewInternal(err))
		}
		fmt.Fprintf(os.Stderr, "HTML report: %s\n", path)
	}
	if c.Bool("json") {
		return outputJSON(c.App.Writer, res)
	}
	_, err = io.WriteString(c.App.Writer, md)
	return err
}

// outputJSON marshals result to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if lensErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", lensErr.Code, lensErr.Message), 1)
	}
	if err == context.Canceled {
		return cli.Exit("interrupted", 130)
	}
	return cli.Exit(err.Error(), 1)
}

func ttyPath() string {
	if runtime.GOOS == "windows" {
		return "CONIN$"
	}
	return "/dev/tty"
}
