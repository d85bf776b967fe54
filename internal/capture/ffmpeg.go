package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/hpungsan/lens/internal/errors"
)

// FFmpeg records the screen with the platform's ffmpeg grab device.
type FFmpeg struct {
	Path string
	// GOOS selects the grab device. Empty means runtime.GOOS.
	GOOS string
}

// NewFFmpeg creates a backend that runs the ffmpeg binary at path.
func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path}
}

func (f *FFmpeg) goos() string {
	if f.GOOS != "" {
		return f.GOOS
	}
	return runtime.GOOS
}

// Args builds the ffmpeg command line for opts.
func (f *FFmpeg) Args(opts Options) ([]string, error) {
	fps := opts.FrameRate
	if fps <= 0 {
		fps = 30
	}
	args := []string{"-hide_banner", "-loglevel", "error", "-nostats"}
	var filters []string

	switch f.goos() {
	case "linux":
		display := os.Getenv("DISPLAY")
		if display == "" {
			display = ":0"
		}
		args = append(args, "-f", "x11grab", "-framerate", strconv.Itoa(fps), "-draw_mouse", boolFlag(opts.ShowCursor))
		input := display
		switch opts.Target.Kind {
		case TargetDisplay:
			input = fmt.Sprintf("%s.%d", strings.SplitN(display, ".", 2)[0], opts.Target.Display)
		case TargetRegion:
			r := opts.Target.Region
			args = append(args, "-video_size", fmt.Sprintf("%dx%d", r.Width, r.Height))
			input = fmt.Sprintf("%s+%d,%d", display, r.X, r.Y)
		case TargetWindow:
			return nil, errors.NewInvalidInput("window capture is only supported on windows; use a region instead")
		}
		args = append(args, "-i", input)
		if opts.CaptureAudio {
			args = append(args, "-f", "pulse", "-i", "default")
		}

	case "darwin":
		audio := "none"
		if opts.CaptureAudio {
			audio = "default"
		}
		screen := 0
		switch opts.Target.Kind {
		case TargetDisplay:
			screen = opts.Target.Display
		case TargetRegion:
			r := opts.Target.Region
			filters = append(filters, fmt.Sprintf("crop=%d:%d:%d:%d", r.Width, r.Height, r.X, r.Y))
		case TargetWindow:
			return nil, errors.NewInvalidInput("window capture is only supported on windows; use a region instead")
		}
		args = append(args,
			"-f", "avfoundation",
			"-framerate", strconv.Itoa(fps),
			"-capture_cursor", boolFlag(opts.ShowCursor),
			"-i", fmt.Sprintf("Capture screen %d:%s", screen, audio),
		)

	case "windows":
		args = append(args, "-f", "gdigrab", "-framerate", strconv.Itoa(fps), "-draw_mouse", boolFlag(opts.ShowCursor))
		input := "desktop"
		switch opts.Target.Kind {
		case TargetWindow:
			input = "title=" + opts.Target.Window
		case TargetRegion:
			r := opts.Target.Region
			args = append(args,
				"-offset_x", strconv.Itoa(r.X),
				"-offset_y", strconv.Itoa(r.Y),
				"-video_size", fmt.Sprintf("%dx%d", r.Width, r.Height),
			)
		case TargetDisplay:
			if opts.Target.Display != 0 {
				return nil, errors.NewInvalidInput("gdigrab records the whole desktop; use a region to select a display")
			}
		}
		args = append(args, "-i", input)

	default:
		return nil, errors.NewCaptureStartFailed(fmt.Errorf("screen capture is not supported on %s", f.goos()))
	}

	if opts.Resolution != "" {
		w, h, ok := parseResolution(opts.Resolution)
		if !ok {
			return nil, errors.NewInvalidInput(fmt.Sprintf("resolution must be WIDTHxHEIGHT, got %q", opts.Resolution))
		}
		filters = append(filters, fmt.Sprintf("scale=%d:%d", w, h))
	}
	if len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		"-progress", "pipe:1",
		"-y", opts.OutputPath,
	)
	return args, nil
}

// Start launches ffmpeg. The first progress line reporting frame >= 1 fires
// hooks.OnFirstFrame.
func (f *FFmpeg) Start(opts Options, hooks Hooks) (Process, error) {
	args, err := f.Args(opts)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(f.Path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	tail := &tailBuffer{max: 4096}
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	p := &ffmpegProcess{cmd: cmd, stdin: stdin, tail: tail, done: make(chan struct{})}
	go p.run(stdout, hooks)
	return p, nil
}

type ffmpegProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	tail  *tailBuffer

	stopOnce sync.Once
	done     chan struct{}
	waitErr  error
}

func (p *ffmpegProcess) run(stdout io.Reader, hooks Hooks) {
	sc := bufio.NewScanner(stdout)
	seen := false
	for sc.Scan() {
		if seen {
			continue
		}
		if n, ok := parseProgressFrame(sc.Text()); ok && n >= 1 {
			seen = true
			if hooks.OnFirstFrame != nil {
				hooks.OnFirstFrame()
			}
		}
	}

	// Wait only after stdout is drained.
	p.waitErr = p.exitError(p.cmd.Wait())
	close(p.done)
	if hooks.OnExit != nil {
		hooks.OnExit(p.waitErr)
	}
}

func (p *ffmpegProcess) exitError(err error) error {
	msg := strings.TrimSpace(p.tail.String())
	switch {
	case err == nil:
		return nil
	case msg != "":
		return fmt.Errorf("ffmpeg exited: %v: %s", err, msg)
	default:
		return fmt.Errorf("ffmpeg exited: %w", err)
	}
}

// Stop sends "q" so ffmpeg finalizes the container, then waits. A ctx expiry
// kills the process.
func (p *ffmpegProcess) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		_, _ = io.WriteString(p.stdin, "q\n")
		_ = p.stdin.Close()
	})
	select {
	case <-p.done:
		return p.waitErr
	case <-ctx.Done():
		p.Kill()
		<-p.done
		return fmt.Errorf("ffmpeg did not finish the recording in time: %w", ctx.Err())
	}
}

func (p *ffmpegProcess) Kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// parseProgressFrame reads the frame counter from a -progress line.
func parseProgressFrame(line string) (int, bool) {
	key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok || key != "frame" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseResolution(s string) (int, int, bool) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(ws)
	h, err2 := strconv.Atoi(hs)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
