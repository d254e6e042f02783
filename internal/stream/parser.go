// Package stream incrementally decodes a narrator token stream into
// user-visible narrative text and a trailing structured directive.
//
// Narrative and directive are deliberately decoupled: prose is surfaced as
// it arrives, while the directive is parsed exactly once, after the stream
// ends, so a half-received block can never partially mutate world state.
package stream

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Directive is the structured payload trailing the narrative: stat deltas,
// an optional next scene, an optional ending.
type Directive struct {
	Effects map[string]int
	Next    *string
	Ending  *string
}

// Fence marks the start of the structured block. Everything before the
// first fence is candidate narrative; everything from it onward is the
// pending directive.
const Fence = "```"

var (
	thinkSpan  = regexp.MustCompile(`(?is)<\s*think\s*>.*?<\s*/\s*think\s*>`)
	thinkOpen  = regexp.MustCompile(`(?is)<\s*think\s*>`)
	thinkClose = regexp.MustCompile(`(?is)<\s*/\s*think\s*>`)
	// Some models emit explicit plus signs on positive numbers, which JSON
	// rejects. Matches ": +4" style values.
	strayPlus = regexp.MustCompile(`(:\s*)\+(\d)`)
)

// Parser accumulates stream deltas. Zero value is ready to use.
type Parser struct {
	raw         strings.Builder
	lastDisplay string
}

// Feed appends one opaque delta and returns the current display text plus
// whether it changed since the previous call, so callers can skip
// redundant re-renders.
func (p *Parser) Feed(delta string) (display string, changed bool) {
	p.raw.WriteString(delta)
	d := p.render()
	if d == p.lastDisplay {
		return p.lastDisplay, false
	}
	p.lastDisplay = d
	return d, true
}

// Narrative returns the final user-visible text.
func (p *Parser) Narrative() string { return p.render() }

// Raw returns everything received so far.
func (p *Parser) Raw() string { return p.raw.String() }

// render computes the visible narrative from the raw buffer: cut at the
// first fence, drop complete reasoning spans, suppress an unclosed opener
// onward, and strip orphaned closers.
func (p *Parser) render() string {
	text := p.raw.String()
	if i := strings.Index(text, Fence); i >= 0 {
		text = text[:i]
	}
	text = thinkSpan.ReplaceAllString(text, "")
	if loc := thinkOpen.FindStringIndex(text); loc != nil {
		// Still thinking: nothing after the opener is narrative yet.
		text = text[:loc[0]]
	}
	text = thinkClose.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Directive parses the trailing structured block, if any. It must only be
// called once the stream has ended. Returns (nil, nil) when no block was
// received, and an error when the block exists but cannot be parsed even
// after repair; in that case the narrative already shown stands and no
// state may be mutated.
func (p *Parser) Directive() (*Directive, error) {
	raw := p.raw.String()
	i := strings.Index(raw, Fence)
	if i < 0 {
		return nil, nil
	}
	block := raw[i+len(Fence):]
	block = strings.TrimPrefix(strings.TrimLeft(block, " \t\r\n"), "json")
	if j := strings.Index(block, Fence); j >= 0 {
		block = block[:j]
	}
	block = strings.TrimSpace(block)
	if block == "" {
		return nil, nil
	}
	block = repair(block)

	var payload struct {
		Effects map[string]float64 `json:"effects"`
		Next    *string            `json:"next"`
		Ending  *string            `json:"ending"`
	}
	if err := json.Unmarshal([]byte(block), &payload); err != nil {
		return nil, fmt.Errorf("parse directive: %w", err)
	}
	d := &Directive{Next: payload.Next, Ending: payload.Ending}
	if len(payload.Effects) > 0 {
		d.Effects = make(map[string]int, len(payload.Effects))
		for k, v := range payload.Effects {
			d.Effects[k] = int(math.Round(v))
		}
	}
	return d, nil
}

// repair is the single best-effort normalization pass over generator JSON:
// strip stray leading plus signs from numbers and balance a missing
// closing brace. No guarantee of success; failure is the common case to
// plan for, not an exceptional one.
func repair(block string) string {
	block = strayPlus.ReplaceAllString(block, "${1}${2}")
	if strings.Count(block, "{") > strings.Count(block, "}") {
		block += "}"
	}
	return block
}
