package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Output token caps per call kind.
const (
	batchMaxTokens     = 600
	synthesisMaxTokens = 1200
	globalMaxTokens    = 1500
	segmentMaxTokens   = 1200
)

const narrativeSystem = `You analyze frames sampled from a screen recording of a software interface.
Describe what is on screen and what changes between frames: navigation, user input, content updates, animations.
Refer to frames by their timestamps. Be concrete and concise. Do not speculate about anything not visible.`

const specSystem = `You reverse-engineer UI animations from frames sampled from a screen recording.
Reply with a single JSON object and nothing else. Coordinates are pixels relative to the element's resting position,
scale is a multiplier, opacity is in [0, 1], rotation is in degrees.`

func withFocus(prompt, focus string) string {
	focus = strings.TrimSpace(focus)
	if focus == "" {
		return prompt
	}
	return prompt + "\n\nFocus on: " + focus
}

func batchPrompt(batch, batches int, first, last float64, focus string) string {
	p := fmt.Sprintf("These are frames %d of %d from a screen recording, covering %.2fs to %.2fs. "+
		"Describe what happens in this part of the recording.", batch, batches, first, last)
	return withFocus(p, focus)
}

func synthesisPrompt(duration float64, batchTexts []string, focus string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Below are descriptions of consecutive parts of one %.1fs screen recording, in order.\n", duration)
	b.WriteString("Combine them into a single coherent narrative of the whole recording. ")
	b.WriteString("Keep timestamps, remove repetition, and end with a one-paragraph summary.\n")
	for i, text := range batchTexts {
		fmt.Fprintf(&b, "\n--- Part %d ---\n%s\n", i+1, text)
	}
	return withFocus(b.String(), focus)
}

func globalPrompt(duration float64, focus string) string {
	p := fmt.Sprintf(`These frames are spread evenly across a %.2fs screen recording.
Identify the UI elements that move or change, the user actions, and the transition types.
Return JSON of the form:
{"summary": "...",
 "elements": [{"id": "el_1", "name": "...", "type": "button|panel|text|image|icon|container|other", "description": "..."}],
 "actions": [{"time": 1.5, "type": "click|hover|scroll|type|drag|other", "target": "el_1", "description": "..."}],
 "transitions": [{"type": "fade|slide|scale|rotate|morph|other", "description": "..."}]}
Use short stable ids. Times are seconds from the start of the recording.`, duration)
	return withFocus(p, focus)
}

func segmentPrompt(index int, start, end float64, elements []Element, focus string) string {
	known, _ := json.Marshal(elements)
	p := fmt.Sprintf(`These frames cover %.2fs to %.2fs of the recording (segment %d).
Known elements: %s
For each known element that moves or changes in this segment, report its keyframes.
Use only the ids above, never invent new elements. Omit elements that stay still.
Return JSON of the form:
{"motions": [{"element_id": "el_1", "easing": "linear|ease-in|ease-out|ease-in-out|spring",
  "keyframes": [{"t": 0.0, "x": 0, "y": 0, "scale": 1, "opacity": 1, "rotation": 0}]}]}
"t" is seconds from the start of this segment.`, start, end, index, known)
	return withFocus(p, focus)
}

func frameLabel(ts float64) string {
	return fmt.Sprintf("t=%.2fs", ts)
}
