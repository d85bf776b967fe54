// Package report renders analysis results for the calling agent (markdown)
// and for people (HTML).
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hpungsan/lens/internal/analyzer"
	"github.com/hpungsan/lens/internal/cost"
)

// Markdown renders res as the single text response returned to the agent.
func Markdown(res *analyzer.Result, artifact string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Screen recording analysis (%s)\n\n", res.Mode)
	src := res.Source
	fmt.Fprintf(&b, "- **Source:** %.2fs, %dx%d at %.1f fps", src.Duration, src.Width, src.Height, src.FPS)
	if src.Codec != "" {
		fmt.Fprintf(&b, " (%s)", src.Codec)
	}
	b.WriteString("\n")
	if artifact != "" {
		fmt.Fprintf(&b, "- **Artifact:** `%s`\n", artifact)
	}
	b.WriteString("\n")

	if n := res.Narrative; n != nil {
		b.WriteString("## Narrative\n\n")
		b.WriteString(strings.TrimSpace(n.Summary))
		b.WriteString("\n\n")
		if len(n.BatchTexts) > 1 {
			b.WriteString("### Notes per part\n\n")
			for i, text := range n.BatchTexts {
				fmt.Fprintf(&b, "%d. %s\n", i+1, oneLine(text))
			}
			b.WriteString("\n")
		}
	}

	if s := res.Spec; s != nil {
		writeSpec(&b, s)
	}

	writeCost(&b, res.Cost)
	return b.String()
}

func writeSpec(b *strings.Builder, s *analyzer.SpecResult) {
	b.WriteString("## Animation spec\n\n")
	if s.Global.Summary != "" {
		b.WriteString(strings.TrimSpace(s.Global.Summary))
		b.WriteString("\n\n")
	}
	if s.Truncated {
		fmt.Fprintf(b, "> **Partial:** the analysis budget ran out; segments %s were not analyzed.\n\n", joinInts(s.DroppedSegments))
	}

	if len(s.Spec.Elements) == 0 {
		b.WriteString("No animated elements were detected.\n\n")
	} else {
		b.WriteString("### Elements\n\n")
		b.WriteString("| id | name | type | easing | keyframes | start | end |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for _, el := range s.Spec.Elements {
			first, last := el.Keyframes[0], el.Keyframes[len(el.Keyframes)-1]
			fmt.Fprintf(b, "| %s | %s | %s | %s | %d | %.2fs | %.2fs |\n",
				el.ID, cell(el.Name), cell(el.Type), cell(el.Easing), len(el.Keyframes), first.Time, last.Time)
		}
		b.WriteString("\n")
	}

	if len(s.Spec.Transitions) > 0 {
		b.WriteString("### Transitions\n\n")
		for _, tr := range s.Spec.Transitions {
			fmt.Fprintf(b, "- **%s**: %s\n", tr.Type, oneLine(tr.Description))
		}
		b.WriteString("\n")
	}

	if len(s.Spec.Timeline) > 0 {
		b.WriteString("### Timeline\n\n")
		b.WriteString("| time | event | target | description |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, ev := range s.Spec.Timeline {
			fmt.Fprintf(b, "| %.2fs | %s | %s | %s |\n", ev.Time, ev.Kind, cell(ev.Target), cell(ev.Description))
		}
		b.WriteString("\n")
	}

	spec, err := json.MarshalIndent(s.Spec, "", "  ")
	if err == nil {
		b.WriteString("### Spec\n\n```json\n")
		b.Write(spec)
		b.WriteString("\n```\n\n")
	}
}

func writeCost(b *strings.Builder, r cost.Report) {
	b.WriteString("## Cost\n\n")
	b.WriteString("| | used | limit |\n|---|---|---|\n")
	fmt.Fprintf(b, "| frames | %d | %d |\n", r.Used.Frames, r.Budget.MaxFrames)
	fmt.Fprintf(b, "| calls | %d | %d |\n", r.Used.Calls, r.Budget.MaxCalls)
	fmt.Fprintf(b, "| input tokens | %d | %d |\n", r.Used.InputTokens, r.Budget.MaxInputTokens)
	fmt.Fprintf(b, "| output tokens | %d | %d |\n", r.Used.OutputTokens, r.Budget.MaxOutputTokens)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cell(s string) string {
	s = oneLine(s)
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

var page = template.Must(template.New("report").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, system-ui, sans-serif; max-width: 56rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.25rem 0.5rem; text-align: left; }
pre { background: #f6f8fa; padding: 1rem; overflow-x: auto; }
footer { color: #888; font-size: 0.85rem; margin-top: 2rem; }
</style>
</head>
<body>
{{.Body}}
<footer>Generated {{.Generated}}</footer>
</body>
</html>
`))

// HTML converts a markdown report into a standalone page.
func HTML(title, markdown string, generated time.Time) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title     string
		Body      template.HTML
		Generated string
	}{
		Title:     title,
		Body:      template.HTML(body.String()),
		Generated: generated.UTC().Format("2006-01-02 15:04 UTC"),
	})
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return out.Bytes(), nil
}

// WriteHTML renders markdown to path, creating parent directories.
func WriteHTML(path, title, markdown string) error {
	data, err := HTML(title, markdown, time.Now())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
