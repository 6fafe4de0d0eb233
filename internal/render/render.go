// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package render loads web pages and flattens them into a stream of
// layout tokens: text runs, style changes, links, images and form
// controls.
package render

import (
	"context"
	"iter"
)

// DefaultUserAgent is sent when the device does not provide one.
const DefaultUserAgent = "Opera/9.80 (J2ME/MIDP; Opera Mini/4.2.22228/191.310; U; fi) Presto/2.12.423 Version/12.16"

// Default viewport.
const (
	DefaultWidth  = 240
	DefaultHeight = 320
)

// Options describe the device a page is rendered for.
type Options struct {
	Width, Height int
	UserAgent     string
	// Language is the device language, such as "fi" or "en-US".
	Language string
}

// WithDefaults returns o with unset fields replaced by defaults.
func (o Options) WithDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

// A Renderer loads and lays out pages.
type Renderer interface {
	// Render loads url. Errors are meant to be shown to the user and
	// wrap derrors.RenderFailure or derrors.Unavailable.
	Render(ctx context.Context, url string, opts Options) (*Result, error)
}

// Result is a rendered page.
type Result struct {
	// URL is the final URL of the page, after redirects.
	URL   string
	Title string
	// Tokens yields the page layout in document order.
	Tokens iter.Seq[Token]
	// Resources holds the fetched bodies of the page images by URL.
	Resources map[string][]byte
}

// TokenKind identifies a Token.
type TokenKind int

const (
	Background TokenKind = iota // Color
	StyleChange                 // Style
	LineBreak
	Image    // Image
	LinkOpen // URL
	LinkEnd
	Text // Text
	Rule // Color
	FormOpen
	FormEnd
	Control // Control
)

var kindNames = [...]string{"BG", "STYLE", "BR", "IMG", "LINK", "LINK_END", "TEXT", "HR", "FORM", "FORM_END", "CONTROL"}

func (k TokenKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN"
}

// A Token is one layout instruction. Only the fields named next to its
// Kind are set.
type Token struct {
	Kind    TokenKind
	Color   uint32 // 0xRRGGBB
	Style   Style
	Text    string
	URL     string
	Image   ImageRef
	Form    Form
	Control FormControl
}

// Align is a text alignment.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// Style is the text style in effect for the following text.
type Style struct {
	Color     uint32
	Monospace bool
	Bold      bool
	Italic    bool
	Underline bool
	Strike    bool
	Align     Align
}

// ImageRef is an image placed on the page. Width and Height are its
// layout size in pixels; either may be zero when unknown.
type ImageRef struct {
	Src, Alt      string
	Width, Height int
}

// Form describes a FormOpen token.
type Form struct {
	Action, Method string
}

// ControlType is the type of a form control.
type ControlType int

const (
	TextInput ControlType = iota
	TextArea
	Password
	Checkbox
	Radio
	Hidden
	Submit
	Reset
	ImageSubmit
	FileUpload
	Select
)

// FormControl is a form input.
type FormControl struct {
	Type     ControlType
	Name     string
	Value    string
	Checked  bool
	Multiple bool
	Options  []SelectOption
}

// SelectOption is an option of a Select control.
type SelectOption struct {
	Label, Value string
	Selected     bool
}
