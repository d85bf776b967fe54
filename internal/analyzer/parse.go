package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripFence removes a surrounding ```json ... ``` fence if present.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseGlobal(text string) (GlobalContext, error) {
	var g GlobalContext
	if err := json.Unmarshal([]byte(stripFence(text)), &g); err != nil {
		return GlobalContext{}, fmt.Errorf("parse global pass reply: %w", err)
	}

	// Keep the first occurrence of each non-empty id.
	seen := make(map[string]bool, len(g.Elements))
	elements := g.Elements[:0]
	for _, el := range g.Elements {
		el.ID = strings.TrimSpace(el.ID)
		if el.ID == "" || seen[el.ID] {
			continue
		}
		seen[el.ID] = true
		elements = append(elements, el)
	}
	g.Elements = elements

	if g.Actions == nil {
		g.Actions = []Action{}
	}
	if g.Transitions == nil {
		g.Transitions = []Transition{}
	}
	return g, nil
}

// parseSegment decodes a segment reply and drops motions for ids that are
// not in known. The dropped ids are returned for logging.
func parseSegment(text string, known map[string]bool) ([]Motion, []string, error) {
	var reply struct {
		Motions []Motion `json:"motions"`
	}
	if err := json.Unmarshal([]byte(stripFence(text)), &reply); err != nil {
		return nil, nil, fmt.Errorf("parse segment reply: %w", err)
	}

	motions := []Motion{}
	var unknown []string
	for _, m := range reply.Motions {
		m.ElementID = strings.TrimSpace(m.ElementID)
		if !known[m.ElementID] {
			unknown = append(unknown, m.ElementID)
			continue
		}
		if len(m.Keyframes) == 0 {
			continue
		}
		motions = append(motions, m)
	}
	return motions, unknown, nil
}
