package console

import (
	"regexp"
	"sort"
	"strings"

	"github.com/hugh/reconsole/internal/api/validation"
	"github.com/hugh/reconsole/pkg/config"
)

type LineClass string

const (
	ClassError   LineClass = "error"
	ClassWarning LineClass = "warning"
	ClassSuccess LineClass = "success"
	ClassStep    LineClass = "step"
	ClassPlain   LineClass = "plain"
)

// PlaceholderLine is shown until the first log line arrives.
const PlaceholderLine = "Initializing scan..."

// RenderConfig is the vocabulary the renderer classifies and highlights with.
// Keyword matching is case-sensitive substring matching; tool matching is
// whole-word and case-insensitive.
type RenderConfig struct {
	Tools           []string
	ErrorKeywords   []string
	WarningKeywords []string
	SuccessKeywords []string
	Icons           map[LineClass]string
}

func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		Tools:           []string{"httpx", "subfinder", "nuclei", "nmap", "dig", "waybackurls", "dalfox", "sqlmap", "dnsx", "naabu", "katana", "gau"},
		ErrorKeywords:   []string{"ERROR", "error", "failed"},
		WarningKeywords: []string{"WARNING", "warning", "Skipping"},
		SuccessKeywords: []string{"✓", "complete", "Found"},
		Icons: map[LineClass]string{
			ClassError:   "❌ ",
			ClassWarning: "⚠️ ",
			ClassSuccess: "✓ ",
			ClassStep:    "▶ ",
			ClassPlain:   "",
		},
	}
}

// WithOverrides replaces every list that o sets and merges its icons.
func (c RenderConfig) WithOverrides(o *config.RenderOverrides) RenderConfig {
	if o == nil {
		return c
	}
	if o.Tools != nil {
		c.Tools = o.Tools
	}
	if o.ErrorKeywords != nil {
		c.ErrorKeywords = o.ErrorKeywords
	}
	if o.WarningKeywords != nil {
		c.WarningKeywords = o.WarningKeywords
	}
	if o.SuccessKeywords != nil {
		c.SuccessKeywords = o.SuccessKeywords
	}
	if len(o.Icons) > 0 {
		icons := make(map[LineClass]string, len(c.Icons)+len(o.Icons))
		for class, icon := range c.Icons {
			icons[class] = icon
		}
		for class, icon := range o.Icons {
			icons[LineClass(strings.ToLower(class))] = icon
		}
		c.Icons = icons
	}
	return c
}

// Markup turns raw text segments into output text. Escape is applied to
// every segment; Highlight wraps an already escaped tool name.
type Markup interface {
	Escape(s string) string
	Highlight(escaped string) string
}

// HTMLMarkup is used by the web console.
type HTMLMarkup struct{}

func (HTMLMarkup) Escape(s string) string { return validation.EscapeHTML(s) }

func (HTMLMarkup) Highlight(escaped string) string {
	return `<span class="tool-name">` + escaped + `</span>`
}

// PlainMarkup strips control characters and leaves highlighting to the
// caller, which can style Segments directly.
type PlainMarkup struct{}

func (PlainMarkup) Escape(s string) string { return validation.SanitizeString(s) }

func (PlainMarkup) Highlight(escaped string) string { return escaped }

// Segment is a run of raw text; Tool marks a highlighted tool name.
type Segment struct {
	Text string `json:"text"`
	Tool bool   `json:"tool,omitempty"`
}

type RenderedLine struct {
	Class    LineClass `json:"class"`
	Icon     string    `json:"icon"`
	Raw      string    `json:"raw"`
	Segments []Segment `json:"segments"`
	Text     string    `json:"text"` // icon + marked-up segments
}

type LogRenderer struct {
	cfg    RenderConfig
	markup Markup
	toolRe *regexp.Regexp
}

func NewLogRenderer(cfg RenderConfig, markup Markup) *LogRenderer {
	if markup == nil {
		markup = HTMLMarkup{}
	}
	return &LogRenderer{
		cfg:    cfg,
		markup: markup,
		toolRe: compileTools(cfg.Tools),
	}
}

// compileTools builds one alternation so overlapping names never produce
// nested markers. Longer names go first.
func compileTools(tools []string) *regexp.Regexp {
	var quoted []string
	for _, t := range tools {
		if t = strings.TrimSpace(t); t != "" {
			quoted = append(quoted, regexp.QuoteMeta(t))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

func (r *LogRenderer) Config() RenderConfig {
	return r.cfg
}

// Classify picks exactly one class from the raw text.
func (r *LogRenderer) Classify(line string) LineClass {
	switch {
	case containsAny(line, r.cfg.ErrorKeywords):
		return ClassError
	case containsAny(line, r.cfg.WarningKeywords):
		return ClassWarning
	case containsAny(line, r.cfg.SuccessKeywords):
		return ClassSuccess
	case strings.Contains(line, "[") && strings.Contains(line, "]"):
		return ClassStep
	default:
		return ClassPlain
	}
}

func (r *LogRenderer) RenderLine(line string) RenderedLine {
	class := r.Classify(line)
	return r.render(line, class)
}

// Render repaints the whole sequence. The output has one entry per input line.
func (r *LogRenderer) Render(lines []string) []RenderedLine {
	out := make([]RenderedLine, len(lines))
	for i, line := range lines {
		out[i] = r.RenderLine(line)
	}
	return out
}

// FailureLine is appended to the log of a failed scan.
func (r *LogRenderer) FailureLine(message string) RenderedLine {
	if message == "" {
		message = "Scan failed"
	}
	return r.render("ERROR: "+message, ClassError)
}

// Placeholder is rendered without classification or highlighting.
func (r *LogRenderer) Placeholder() RenderedLine {
	return RenderedLine{
		Class:    ClassPlain,
		Raw:      PlaceholderLine,
		Segments: []Segment{{Text: PlaceholderLine}},
		Text:     r.markup.Escape(PlaceholderLine),
	}
}

func (r *LogRenderer) render(line string, class LineClass) RenderedLine {
	segs := r.segments(line)
	icon := r.cfg.Icons[class]

	var b strings.Builder
	b.WriteString(r.markup.Escape(icon))
	for _, s := range segs {
		escaped := r.markup.Escape(s.Text)
		if s.Tool {
			escaped = r.markup.Highlight(escaped)
		}
		b.WriteString(escaped)
	}

	return RenderedLine{
		Class:    class,
		Icon:     icon,
		Raw:      line,
		Segments: segs,
		Text:     b.String(),
	}
}

// segments splits raw text around whole-word tool matches.
func (r *LogRenderer) segments(line string) []Segment {
	if r.toolRe == nil {
		return []Segment{{Text: line}}
	}

	var segs []Segment
	last := 0
	for _, m := range r.toolRe.FindAllStringIndex(line, -1) {
		if m[0] > last {
			segs = append(segs, Segment{Text: line[last:m[0]]})
		}
		segs = append(segs, Segment{Text: line[m[0]:m[1]], Tool: true})
		last = m[1]
	}
	if last < len(line) || len(segs) == 0 {
		segs = append(segs, Segment{Text: line[last:]})
	}
	return segs
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}
