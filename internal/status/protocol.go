// Package status talks to the overlay companion process over line-delimited
// JSON on its stdin and stdout.
//
// Commands flow to the companion, responses flow back. Each message is one
// JSON object with sorted keys, terminated by a newline. Message order is the
// only ordering guarantee.
package status

import (
	"encoding/json"
	"fmt"
)

// CommandType is a lifecycle notification sent to the companion.
type CommandType string

const (
	CmdConfigure CommandType = "configure"
	CmdRecording CommandType = "recording"
	CmdStop      CommandType = "stop"
	CmdAnalyzing CommandType = "analyzing"
	CmdSuccess   CommandType = "success"
	CmdError     CommandType = "error"
	CmdCancelled CommandType = "cancelled"
)

// Terminal reports whether t ends a session on the companion side.
func (t CommandType) Terminal() bool {
	return t == CmdSuccess || t == CmdError || t == CmdCancelled
}

// Command is one line written to the companion. Fields are declared in key
// order so the encoding is sorted.
type Command struct {
	DurationSeconds *int        `json:"durationSeconds"`
	Type            CommandType `json:"type"`
}

// Configure builds the configure command. A nil duration means manual stop.
func Configure(durationSeconds *int) Command {
	return Command{Type: CmdConfigure, DurationSeconds: durationSeconds}
}

// Cmd builds a command without a duration.
func Cmd(t CommandType) Command {
	return Command{Type: t}
}

// EventType is a UI-originated response.
type EventType string

const (
	EventReady         EventType = "ready"
	EventStopClicked   EventType = "stopClicked"
	EventTimeout       EventType = "timeout"
	EventCancelClicked EventType = "cancelClicked"

	// EventProcessExited is synthesized locally when the companion's stdout
	// closes. It never appears on the wire.
	EventProcessExited EventType = "processExited"
)

// Event is one line read from the companion.
type Event struct {
	Type EventType `json:"type"`
}

// EncodeCommand renders cmd as a single newline-terminated line.
func EncodeCommand(cmd Command) ([]byte, error) {
	b, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode status command: %w", err)
	}
	return append(b, '\n'), nil
}

// DecodeCommand parses one command line.
func DecodeCommand(line []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode status command: %w", err)
	}
	switch cmd.Type {
	case CmdConfigure, CmdRecording, CmdStop, CmdAnalyzing, CmdSuccess, CmdError, CmdCancelled:
		return cmd, nil
	}
	return Command{}, fmt.Errorf("unknown status command %q", cmd.Type)
}

// EncodeEvent renders ev as a single newline-terminated line.
func EncodeEvent(ev Event) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode status event: %w", err)
	}
	return append(b, '\n'), nil
}

// DecodeEvent parses one response line. Unknown types are an error so the
// reader can log and skip them.
func DecodeEvent(line []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, fmt.Errorf("decode status event: %w", err)
	}
	switch ev.Type {
	case EventReady, EventStopClicked, EventTimeout, EventCancelClicked:
		return ev, nil
	}
	return Event{}, fmt.Errorf("unknown status event %q", ev.Type)
}
