package vision

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockReply is one scripted response.
type MockReply struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	Err              error
	// Delay simulates service latency. The call returns early if ctx is done.
	Delay time.Duration
}

// Mock replays scripted replies in order, then falls back to canned output.
// It is the "mock" provider and the test double for the analyzer.
type Mock struct {
	mu      sync.Mutex
	replies []MockReply
	calls   []Request
	// OnCall runs before each reply is returned, with the 0-based call index.
	OnCall func(i int, req Request)
}

// NewMock creates a mock that replays replies.
func NewMock(replies ...MockReply) *Mock {
	return &Mock{replies: replies}
}

// Analyze records req and returns the next reply.
func (m *Mock) Analyze(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	i := len(m.calls)
	m.calls = append(m.calls, req)
	var reply MockReply
	if i < len(m.replies) {
		reply = m.replies[i]
	} else {
		reply = cannedReply(req)
	}
	onCall := m.OnCall
	m.mu.Unlock()

	if onCall != nil {
		onCall(i, req)
	}
	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if reply.Err != nil {
		return nil, reply.Err
	}

	resp := &Response{
		Text:             reply.Text,
		PromptTokens:     reply.PromptTokens,
		CompletionTokens: reply.CompletionTokens,
	}
	if resp.PromptTokens == 0 {
		resp.PromptTokens = estimateTokens(req)
	}
	if resp.CompletionTokens == 0 {
		resp.CompletionTokens = len(resp.Text)/4 + 1
	}
	return resp, nil
}

// Calls returns the requests received so far.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

func estimateTokens(req Request) int {
	return (len(req.System)+len(req.Prompt))/4 + 85*len(req.Images)
}

// cannedReply answers by the shape the prompt asks for.
func cannedReply(req Request) MockReply {
	switch {
	case strings.Contains(req.Prompt, `"motions"`):
		return MockReply{Text: `{"motions":[{"element_id":"el_1","easing":"ease-out","keyframes":[` +
			`{"t":0,"x":0,"y":0,"scale":1,"opacity":0,"rotation":0},` +
			`{"t":0.5,"x":0,"y":-12,"scale":1,"opacity":1,"rotation":0}]}]}`}
	case strings.Contains(req.Prompt, `"elements"`):
		return MockReply{Text: `{"summary":"A panel fades in and settles.",` +
			`"elements":[{"id":"el_1","name":"panel","type":"container","description":"main panel"}],` +
			`"actions":[],"transitions":[{"type":"fade","description":"panel fades in"}]}`}
	case len(req.Images) > 0:
		return MockReply{Text: fmt.Sprintf("The %d frames show a desktop application with no visible change.", len(req.Images))}
	default:
		return MockReply{Text: "The recording shows a desktop application with no visible change."}
	}
}
