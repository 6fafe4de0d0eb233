// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package render

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// boundary is the kind of the last thing emitted, for whitespace handling.
type boundary int

const (
	afterContent boundary = iota
	afterSpace            // content whose trailing space was held back
	afterBreak
	afterBlock
)

var spaces = regexp.MustCompile(`\s+`)

// walker flattens a parsed document into tokens.
type walker struct {
	base *url.URL
	lang language.Tag

	tokens []Token
	last   boundary
	// held is the index of the text token whose trailing space was held
	// back, valid when last is afterSpace.
	held int

	// The presentation the next content must be shown with, and the one
	// last emitted.
	want      computed
	bg        uint32
	style     Style
	haveBG    bool
	haveStyle bool

	images     []string // distinct image URLs in document order
	seenImages map[string]bool
	title      string
}

// root is the presentation of the document: black text on white.
var root = computed{bg: 0xFFFFFF}

func newWalker(base *url.URL, lang language.Tag) *walker {
	return &walker{
		base:       base,
		lang:       lang,
		want:       root,
		seenImages: map[string]bool{},
	}
}

// run walks the document rooted at doc.
func (w *walker) run(doc *html.Node) {
	w.findTitle(doc)
	body := find(doc, atom.Body)
	if body == nil {
		body = doc
	}
	w.walk(body, root)
}

func (w *walker) findTitle(doc *html.Node) {
	if t := find(doc, atom.Title); t != nil {
		w.title = strings.TrimSpace(spaces.ReplaceAllString(textContent(t), " "))
	}
}

func (w *walker) emit(t Token) {
	w.tokens = append(w.tokens, t)
}

// sync emits background and style changes so that the next content is
// shown with the wanted presentation.
func (w *walker) sync() {
	if !w.haveBG || w.bg != w.want.bg {
		w.bg, w.haveBG = w.want.bg, true
		w.emit(Token{Kind: Background, Color: w.bg})
	}
	if !w.haveStyle || w.style != w.want.style {
		w.style, w.haveStyle = w.want.style, true
		w.emit(Token{Kind: StyleChange, Style: w.style})
	}
}

func (w *walker) walk(n *html.Node, parent computed) {
	switch n.Type {
	case html.TextNode:
		if !parent.hidden {
			w.text(n.Data, parent)
		}
		return
	case html.ElementNode, html.DocumentNode:
	default:
		return
	}

	c := compute(n, parent)
	if n.DataAtom == atom.Input && strings.EqualFold(attr(n, "type"), "hidden") {
		w.emit(Token{Kind: Control, Control: FormControl{Type: Hidden, Name: attr(n, "name"), Value: attr(n, "value")}})
		return
	}
	if c.hidden {
		return
	}

	switch n.DataAtom {
	case atom.Br:
		w.emit(Token{Kind: LineBreak})
		w.last = afterBreak
		return
	case atom.Input, atom.Button, atom.Textarea, atom.Select:
		w.want = c
		w.sync()
		w.emit(Token{Kind: Control, Control: control(n)})
		w.last = afterContent
		w.want = parent
		return
	case atom.Img:
		w.want = c
		w.image(n)
	case atom.Hr:
		w.want = c
		w.sync()
		color := c.style.Color
		if col, _, ok := parseColor(attr(n, "color")); ok {
			color = col
		}
		w.emit(Token{Kind: Rule, Color: color})
		w.last = afterBlock
		w.want = parent
		return
	}

	w.want = c
	var link, form bool
	switch n.DataAtom {
	case atom.A:
		if href := attr(n, "href"); href != "" && !strings.HasPrefix(strings.ToLower(href), "javascript:") {
			w.sync()
			w.emit(Token{Kind: LinkOpen, URL: w.resolve(href)})
			link = true
		}
	case atom.Form:
		method := strings.ToLower(attr(n, "method"))
		if method == "" {
			method = "get"
		}
		w.emit(Token{Kind: FormOpen, Form: Form{Action: w.resolve(attr(n, "action")), Method: method}})
		form = true
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		w.walk(child, c)
		w.want = c
	}

	if link {
		w.emit(Token{Kind: LinkEnd})
	}
	if form {
		w.emit(Token{Kind: FormEnd})
	}
	if c.block {
		if w.last != afterBlock && w.last != afterBreak {
			w.emit(Token{Kind: LineBreak})
			w.last = afterBlock
		}
	} else {
		w.last = afterContent
	}
	w.want = parent
}

// text emits a text node, collapsing white space across node boundaries.
func (w *walker) text(s string, c computed) {
	s = spaces.ReplaceAllString(s, " ")
	if w.last != afterContent {
		s = strings.TrimLeft(s, " ")
	}
	if s == "" {
		return
	}
	if w.last == afterSpace {
		w.tokens[w.held].Text += " "
	}
	if strings.HasSuffix(s, " ") {
		s = strings.TrimRight(s, " ")
		w.last = afterSpace
	} else {
		w.last = afterContent
	}
	switch c.transform {
	case "uppercase":
		s = cases.Upper(w.lang).String(s)
	case "lowercase":
		s = cases.Lower(w.lang).String(s)
	case "capitalize":
		// Only the first character of the run.
		_, size := utf8.DecodeRuneInString(s)
		s = cases.Upper(w.lang).String(s[:size]) + s[size:]
	}
	w.sync()
	w.emit(Token{Kind: Text, Text: s})
	if w.last == afterSpace {
		w.held = len(w.tokens) - 1
	}
}

func (w *walker) image(n *html.Node) {
	src := attr(n, "src")
	if src == "" {
		return
	}
	src = w.resolve(src)
	w.sync()
	w.emit(Token{Kind: Image, Image: ImageRef{
		Src:    src,
		Alt:    attr(n, "alt"),
		Width:  dimension(attr(n, "width")),
		Height: dimension(attr(n, "height")),
	}})
	w.last = afterContent
	if !w.seenImages[src] {
		w.seenImages[src] = true
		w.images = append(w.images, src)
	}
}

func (w *walker) resolve(ref string) string {
	u, err := w.base.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	u.Fragment = ""
	return u.String()
}

func control(n *html.Node) FormControl {
	fc := FormControl{Name: attr(n, "name"), Value: attr(n, "value")}
	switch n.DataAtom {
	case atom.Textarea:
		fc.Type = TextArea
		fc.Value = textContent(n)
	case atom.Button:
		fc.Type = Submit
		if strings.EqualFold(attr(n, "type"), "reset") {
			fc.Type = Reset
		}
		if fc.Value == "" {
			fc.Value = strings.TrimSpace(spaces.ReplaceAllString(textContent(n), " "))
		}
	case atom.Select:
		fc.Type = Select
		fc.Multiple = hasAttr(n, "multiple")
		fc.Options = selectOptions(n, nil)
	default:
		fc.Checked = hasAttr(n, "checked")
		switch strings.ToLower(attr(n, "type")) {
		case "password":
			fc.Type = Password
		case "checkbox":
			fc.Type = Checkbox
		case "radio":
			fc.Type = Radio
		case "submit", "button":
			fc.Type = Submit
		case "reset":
			fc.Type = Reset
		case "image":
			fc.Type = ImageSubmit
		case "file":
			fc.Type = FileUpload
		default:
			fc.Type = TextInput
		}
	}
	return fc
}

func selectOptions(n *html.Node, opts []SelectOption) []SelectOption {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.DataAtom {
		case atom.Option:
			label := strings.TrimSpace(spaces.ReplaceAllString(textContent(c), " "))
			value := label
			for _, a := range c.Attr {
				if a.Key == "value" {
					value = a.Val
				}
			}
			opts = append(opts, SelectOption{Label: label, Value: value, Selected: hasAttr(c, "selected")})
		case atom.Optgroup:
			opts = selectOptions(c, opts)
		}
	}
	return opts
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

// find returns the first element of the given type in document order.
func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := find(c, a); f != nil {
			return f
		}
	}
	return nil
}
