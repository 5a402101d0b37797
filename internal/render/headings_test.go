package render

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/yuin/goldmark"
)

func renderMarkdown(t *testing.T, source string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(source), &buf); err != nil {
		t.Fatalf("goldmark.Convert() error = %v", err)
	}
	return buf.String()
}

func TestExtractHeadingsFromRenderedMarkdown(t *testing.T) {
	markup := renderMarkdown(t, "# Title\n\nHello")
	headings := ExtractHeadings(markup)
	if len(headings) != 1 {
		t.Fatalf("len(headings) = %d, want 1 (%q)", len(headings), markup)
	}
	want := Heading{ID: "heading-0", Text: "Title", Level: 1}
	if headings[0] != want {
		t.Fatalf("headings[0] = %+v, want %+v", headings[0], want)
	}
}

func TestExtractHeadingsDocumentOrder(t *testing.T) {
	markup := `<h2>Intro</h2><p>x</p><section><h3>Nested <em>deep</em></h3></section><h1>Top</h1><h6>Small</h6>`
	want := []Heading{
		{ID: "heading-0", Text: "Intro", Level: 2},
		{ID: "heading-1", Text: "Nested deep", Level: 3},
		{ID: "heading-2", Text: "Top", Level: 1},
		{ID: "heading-3", Text: "Small", Level: 6},
	}
	got := ExtractHeadings(markup)
	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestExtractHeadingsEmpty(t *testing.T) {
	cases := []string{"", "   ", "<p>no headings</p>", "plain text"}
	for _, markup := range cases {
		got := ExtractHeadings(markup)
		if got == nil || len(got) != 0 {
			t.Fatalf("ExtractHeadings(%q) = %#v, want empty slice", markup, got)
		}
	}
}

func TestStampHeadingIDsUnchangedWithoutMarkup(t *testing.T) {
	for _, markup := range []string{"", "  \n"} {
		if got := StampHeadingIDs(markup); got != markup {
			t.Fatalf("StampHeadingIDs(%q) = %q", markup, got)
		}
	}
}

func TestStampHeadingIDsOverwritesExistingID(t *testing.T) {
	got := StampHeadingIDs(`<h2 id="custom" class="x">A</h2><h3>B</h3>`)
	if !strings.Contains(got, `<h2 id="heading-0" class="x">A</h2>`) {
		t.Fatalf("first heading not stamped: %q", got)
	}
	if !strings.Contains(got, `<h3 id="heading-1">B</h3>`) {
		t.Fatalf("second heading not stamped: %q", got)
	}
}

var stampedID = regexp.MustCompile(`<h[1-6][^>]*\sid="([^"]*)"`)

func TestHeadingIDAgreement(t *testing.T) {
	sources := []string{
		"# One\n\n## Two\n\ntext\n\n### Three\n\n## Four",
		"no headings at all",
		"# Repeated\n\n# Repeated\n\n# Repeated",
		"> # Quoted\n\n- ## In list\n",
	}
	for _, source := range sources {
		markup := renderMarkdown(t, source)
		headings := ExtractHeadings(markup)
		stamped := StampHeadingIDs(markup)

		matches := stampedID.FindAllStringSubmatch(stamped, -1)
		if len(matches) != len(headings) {
			t.Fatalf("source %q: %d stamped ids, %d headings", source, len(matches), len(headings))
		}
		for i, m := range matches {
			if m[1] != headings[i].ID {
				t.Fatalf("source %q: stamped id %d = %q, want %q", source, i, m[1], headings[i].ID)
			}
		}
		if again := ExtractHeadings(stamped); len(again) != len(headings) {
			t.Fatalf("source %q: re-extract found %d headings, want %d", source, len(again), len(headings))
		}
	}
}

func TestHeadingIDsShiftWithScanOrder(t *testing.T) {
	before := ExtractHeadings(`<h2>B</h2>`)
	after := ExtractHeadings(`<h2>A</h2><h2>B</h2>`)
	if before[0].ID != "heading-0" || after[1].ID != "heading-1" || after[1].Text != "B" {
		t.Fatalf("unexpected ids: before=%+v after=%+v", before, after)
	}
}

func TestHeadingsInsideTemplateAreInert(t *testing.T) {
	markup := `<template><h1>Hidden</h1></template><h2>Shown</h2>`

	got := ExtractHeadings(markup)
	want := Heading{ID: "heading-0", Text: "Shown", Level: 2}
	if len(got) != 1 || got[0] != want {
		t.Fatalf("ExtractHeadings() = %+v, want [%+v]", got, want)
	}

	stamped := StampHeadingIDs(markup)
	if !strings.Contains(stamped, `<h1>Hidden</h1>`) {
		t.Fatalf("template heading was stamped: %q", stamped)
	}
	if !strings.Contains(stamped, `<h2 id="heading-0">Shown</h2>`) {
		t.Fatalf("visible heading not stamped: %q", stamped)
	}
}

func TestAttrAndTextContent(t *testing.T) {
	nodes, ok := parseFragment(`<span class="a b" data-x="1">one <b>two</b></span>`)
	if !ok || len(nodes) != 1 {
		t.Fatalf("parseFragment() = %v, %v", nodes, ok)
	}
	span := nodes[0]
	if got := Attr(span, "data-x"); got != "1" {
		t.Fatalf("Attr(data-x) = %q, want 1", got)
	}
	if got := Attr(span, "missing"); got != "" {
		t.Fatalf("Attr(missing) = %q, want empty", got)
	}
	if got := TextContent(span); got != "one two" {
		t.Fatalf("TextContent() = %q, want %q", got, "one two")
	}
}
