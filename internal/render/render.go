// Package render turns one response envelope into the text of the results
// area. Rendering is a pure function of the envelope: every call produces
// the complete content, which replaces whatever was shown before.
package render

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/seanblong/annsearch/pkg/models"
)

const (
	SearchingText = "Searching..."
	Heading       = "Search Results"
	NoRank        = "N/A"
)

type Options struct {
	// BaseURL resolves relative result links, e.g. "/pdf/a.pdf?page=2".
	BaseURL *url.URL
	Color   bool
}

type palette struct {
	heading, link, label, errText func(a ...interface{}) string
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) func(a ...interface{}) string {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return palette{
		heading: mk(color.Bold, color.Underline),
		link:    mk(color.FgCyan),
		label:   mk(color.FgYellow),
		errText: mk(color.FgRed, color.Bold),
	}
}

// Searching is the placeholder shown while a request is outstanding.
func Searching() string { return SearchingText }

// Render produces the results area for env.
func Render(env models.ResponseEnvelope, opts Options) string {
	p := newPalette(opts.Color)
	if env.IsError() {
		return p.errText("Error: " + *env.Error)
	}

	var b strings.Builder
	b.WriteString(p.label("Search time: "))
	b.WriteString(Float(env.SearchTime))
	b.WriteString("\n")
	b.WriteString(p.label("Target rank: "))
	b.WriteString(Rank(env.TargetRank))
	b.WriteString("\n\n")
	b.WriteString(p.heading(Heading))
	b.WriteString("\n")

	for i, r := range env.Results {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(r.LinkText)
		b.WriteString(" (")
		b.WriteString(p.link(resolve(opts.BaseURL, r.Link)))
		b.WriteString(")\n")
		if r.Category != nil {
			b.WriteString("   ")
			b.WriteString(p.label("Category: "))
			b.WriteString(*r.Category)
			b.WriteString("\n")
		}
		for _, line := range strings.Split(r.ChunkText, "\n") {
			b.WriteString("   ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("   ")
		b.WriteString(p.label("Distance: "))
		b.WriteString(Float(r.Distance))
		b.WriteString("\n")
	}
	return b.String()
}

// Float formats v with exactly four digits after the decimal point.
func Float(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Rank shows a missing or zero rank as N/A.
func Rank(r *int) string {
	if r == nil || *r == 0 {
		return NoRank
	}
	return strconv.Itoa(*r)
}

func resolve(base *url.URL, link string) string {
	if base == nil || link == "" {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil || ref.IsAbs() {
		return link
	}
	return base.ResolveReference(ref).String()
}
