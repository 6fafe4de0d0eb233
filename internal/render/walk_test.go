// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package render

import (
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"
	"golang.org/x/text/language"
)

var (
	white   = Token{Kind: Background, Color: 0xFFFFFF}
	plain   = Token{Kind: StyleChange}
	newline = Token{Kind: LineBreak}
)

func text(s string) Token { return Token{Kind: Text, Text: s} }

func walkString(t *testing.T, src string) *walker {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	base, _ := url.Parse("http://example.com/dir/page")
	w := newWalker(base, language.English)
	w.run(doc)
	return w
}

func TestWalk(t *testing.T) {
	for _, test := range []struct {
		name string
		in   string
		want []Token
	}{
		{
			name: "inline style and spaces",
			in:   `<p>Hello <b>bold</b> world</p>`,
			want: []Token{
				white, plain,
				text("Hello "),
				{Kind: StyleChange, Style: Style{Bold: true}},
				text("bold"),
				plain,
				text(" world"),
				newline,
			},
		},
		{
			name: "links and images",
			in:   `<a href="/next#frag">Next</a><img src="i.png" width="10" alt="x"><br>  after`,
			want: []Token{
				white, plain,
				{Kind: LinkOpen, URL: "http://example.com/next"},
				text("Next"),
				{Kind: LinkEnd},
				{Kind: Image, Image: ImageRef{Src: "http://example.com/dir/i.png", Alt: "x", Width: 10}},
				newline,
				text("after"),
			},
		},
		{
			name: "hidden content",
			in:   `<script>var x</script><div style="display:none">gone</div><span hidden>no</span>shown`,
			want: []Token{white, plain, text("shown")},
		},
		{
			name: "colors",
			in:   `<body bgcolor="#000000"><font color="white">w</font></body>`,
			want: []Token{
				{Kind: Background, Color: 0x000000},
				{Kind: StyleChange, Style: Style{Color: 0xFFFFFF}},
				text("w"),
			},
		},
		{
			name: "alignment",
			in:   `<center>c</center><div style="text-align: right">r</div>`,
			want: []Token{
				white,
				{Kind: StyleChange, Style: Style{Align: AlignCenter}},
				text("c"),
				newline,
				{Kind: StyleChange, Style: Style{Align: AlignRight}},
				text("r"),
				newline,
			},
		},
		{
			name: "text transform",
			in:   `<span style="text-transform:uppercase">abc</span>`,
			want: []Token{white, plain, text("ABC")},
		},
		{
			name: "capitalize first character of the run",
			in:   `<span style="text-transform:capitalize">hello big world</span>`,
			want: []Token{white, plain, text("Hello big world")},
		},
		{
			name: "rule",
			in:   `<hr color="red">`,
			want: []Token{white, plain, {Kind: Rule, Color: 0xFF0000}},
		},
		{
			name: "form",
			in: `<form action="/s" method="POST"><input name="q" value="v"><input type="hidden" name="h" value="1">` +
				`<select name="c"><option value="a">A</option><option selected>B</option></select>` +
				`<textarea name="t">hi</textarea><input type="submit" value="Go"></form>`,
			want: []Token{
				{Kind: FormOpen, Form: Form{Action: "http://example.com/s", Method: "post"}},
				white, plain,
				{Kind: Control, Control: FormControl{Type: TextInput, Name: "q", Value: "v"}},
				{Kind: Control, Control: FormControl{Type: Hidden, Name: "h", Value: "1"}},
				{Kind: Control, Control: FormControl{Type: Select, Name: "c", Options: []SelectOption{
					{Label: "A", Value: "a"},
					{Label: "B", Value: "B", Selected: true},
				}}},
				{Kind: Control, Control: FormControl{Type: TextArea, Name: "t", Value: "hi"}},
				{Kind: Control, Control: FormControl{Type: Submit, Value: "Go"}},
				{Kind: FormEnd},
				newline,
			},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			w := walkString(t, test.in)
			if diff := cmp.Diff(test.want, w.tokens); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWalkTitleAndImages(t *testing.T) {
	w := walkString(t, `<html><head><title> My
		Page </title></head><body><img src="a.png"><img src="/b.png"><img src="a.png"></body></html>`)
	if got, want := w.title, "My Page"; got != want {
		t.Errorf("title = %q, want %q", got, want)
	}
	want := []string{"http://example.com/dir/a.png", "http://example.com/b.png"}
	if diff := cmp.Diff(want, w.images); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}
}

func TestParseColor(t *testing.T) {
	for _, test := range []struct {
		in    string
		color uint32
		alpha float64
		ok    bool
	}{
		{"#fff", 0xFFFFFF, 1, true},
		{"#123456", 0x123456, 1, true},
		{"rgb(1, 2, 3)", 0x010203, 1, true},
		{"rgba(255,0,0,0.5)", 0xFF0000, 0.5, true},
		{"Red", 0xFF0000, 1, true},
		{"transparent", 0, 0, true},
		{"#12", 0, 0, false},
		{"rgb(300, 0, 0)", 0, 0, false},
		{"bogus", 0, 0, false},
	} {
		c, a, ok := parseColor(test.in)
		if c != test.color || a != test.alpha || ok != test.ok {
			t.Errorf("parseColor(%q) = %#x, %v, %t, want %#x, %v, %t", test.in, c, a, ok, test.color, test.alpha, test.ok)
		}
	}
}

func TestBlend(t *testing.T) {
	if got, want := blend(0xFFFFFF, 0xFF0000, 0.5), uint32(0xFF8080); got != want {
		t.Errorf("got %#x, want %#x", got, want)
	}
	if got, want := blend(0x123456, 0xABCDEF, 0), uint32(0x123456); got != want {
		t.Errorf("transparent: got %#x, want %#x", got, want)
	}
}

func TestCSSFields(t *testing.T) {
	for _, test := range []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"red url(a.png) no-repeat", []string{"red", "url(a.png)", "no-repeat"}},
		{"  rgb(255, 0, 0)  top", []string{"rgb(255, 0, 0)", "top"}},
		{"url(a b.png)\trgba(0, 0, 255, 0.5)", []string{"url(a b.png)", "rgba(0, 0, 255, 0.5)"}},
	} {
		if diff := cmp.Diff(test.want, cssFields(test.in)); diff != "" {
			t.Errorf("cssFields(%q) mismatch (-want +got):\n%s", test.in, diff)
		}
	}
}

func TestApplyCSSBackground(t *testing.T) {
	for _, test := range []struct {
		decl string
		want uint32
	}{
		{"background-color: #00ff00", 0x00FF00},
		{"background: url(x.png) rgb(255, 0, 0) no-repeat", 0xFF0000},
		{"background: rgba(0, 0, 255, 0.5)", 0x8080FF},
		{"background: url(x.png)", 0xFFFFFF},
	} {
		c := computed{bg: 0xFFFFFF}
		c.applyCSS(test.decl, 0xFFFFFF)
		if c.bg != test.want {
			t.Errorf("%q: bg = %#x, want %#x", test.decl, c.bg, test.want)
		}
	}
}
