package status

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"
)

// RunCompanion is the reference overlay: a terminal companion that speaks the
// status protocol on in/out and prints the lifecycle to ui.
//
// Each line read from keys (usually the controlling terminal) is a click:
// stop while recording, cancel while analyzing. A configured duration is
// counted down once recording starts and answered with timeout at zero.
// RunCompanion returns after a terminal command or when in is closed.
func RunCompanion(ctx context.Context, in io.Reader, out io.Writer, keys io.Reader, ui io.Writer) error {
	cmds := make(chan Command)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			cmd, err := DecodeCommand(sc.Bytes())
			if err != nil {
				fmt.Fprintf(ui, "lens overlay: %v\n", err)
				continue
			}
			select {
			case cmds <- cmd:
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	clicks := make(chan struct{})
	if keys != nil {
		go func() {
			sc := bufio.NewScanner(keys)
			for sc.Scan() {
				select {
				case clicks <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	send := func(t EventType) error {
		line, err := EncodeEvent(Event{Type: t})
		if err != nil {
			return err
		}
		_, err = out.Write(line)
		return err
	}

	var (
		state     CommandType
		duration  *int
		remaining int
		ticker    *time.Ticker
		tick      <-chan time.Time
	)
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
	}
	defer stopTicker()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			return err

		case cmd := <-cmds:
			state = cmd.Type
			switch cmd.Type {
			case CmdConfigure:
				duration = cmd.DurationSeconds
				if duration != nil {
					fmt.Fprintf(ui, "lens: waiting for capture (%ds)\n", *duration)
				} else {
					fmt.Fprintln(ui, "lens: waiting for capture (press Enter to stop)")
				}
				if err := send(EventReady); err != nil {
					return err
				}
			case CmdRecording:
				fmt.Fprintln(ui, "lens: ● recording")
				if duration != nil {
					remaining = *duration
					ticker = time.NewTicker(time.Second)
					tick = ticker.C
				}
			case CmdStop, CmdAnalyzing:
				stopTicker()
				fmt.Fprintf(ui, "lens: %s (press Enter to cancel)\n", cmd.Type)
			case CmdSuccess, CmdError, CmdCancelled:
				stopTicker()
				fmt.Fprintf(ui, "lens: %s\n", cmd.Type)
				return nil
			}

		case <-tick:
			remaining--
			if remaining > 0 {
				fmt.Fprintf(ui, "lens: %ds left\n", remaining)
				continue
			}
			stopTicker()
			if err := send(EventTimeout); err != nil {
				return err
			}

		case <-clicks:
			switch state {
			case CmdRecording:
				if err := send(EventStopClicked); err != nil {
					return err
				}
			case CmdStop, CmdAnalyzing:
				if err := send(EventCancelClicked); err != nil {
					return err
				}
			}
		}
	}
}
