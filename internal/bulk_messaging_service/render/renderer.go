// Package render turns message templates into the personalised text sent to each recipient.
package render

import (
	"strings"
	"time"

	"golang.org/x/text/message"

	"github.com/revalya/golang_services/internal/bulk_messaging_service/domain"
)

// Renderer substitutes template tags with values taken from a Target.
// It holds no mutable state and is safe for concurrent use.
type Renderer struct {
	loc *time.Location
	now func() time.Time
}

// NewRenderer creates a Renderer. Day counts are computed in loc using now as the
// current time; nil arguments default to UTC and time.Now.
func NewRenderer(loc *time.Location, now func() time.Time) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Renderer{loc: loc, now: now}
}

// Render replaces every known "{grupo.campo}" and "{{campo}}" tag in tpl.
// Unknown or unterminated tags are copied through unchanged.
func (r *Renderer) Render(tpl string, target domain.Target) string {
	if strings.IndexByte(tpl, '{') < 0 {
		return tpl
	}

	c := &tagContext{
		target:  &target,
		now:     r.now().In(r.loc),
		loc:     r.loc,
		printer: message.NewPrinter(locale),
	}

	var b strings.Builder
	b.Grow(len(tpl))
	for i := 0; i < len(tpl); {
		next := strings.IndexByte(tpl[i:], '{')
		if next < 0 {
			b.WriteString(tpl[i:])
			break
		}
		b.WriteString(tpl[i : i+next])
		i += next

		if value, n, ok := expand(tpl[i:], c); ok {
			b.WriteString(value)
			i += n
			continue
		}
		b.WriteByte('{')
		i++
	}
	return b.String()
}

// expand resolves the tag at the start of s and reports how many bytes it consumed.
func expand(s string, c *tagContext) (string, int, bool) {
	if strings.HasPrefix(s, "{{") {
		if end := strings.Index(s[2:], "}}"); end >= 0 {
			if fn, ok := lookup(legacyTags, s[2:2+end]); ok {
				return fn(c), end + 4, true
			}
		}
	}
	if end := strings.IndexByte(s[1:], '}'); end >= 0 {
		if fn, ok := lookup(dottedTags, s[1:1+end]); ok {
			return fn(c), end + 2, true
		}
	}
	return "", 0, false
}

func lookup(table map[string]extractor, name string) (extractor, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || strings.ContainsAny(name, "{}") {
		return nil, false
	}
	fn, ok := table[name]
	return fn, ok
}
