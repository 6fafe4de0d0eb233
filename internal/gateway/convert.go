// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gateway

import (
	"context"
	"math"
	"unicode/utf8"

	"github.com/ballet-proxy/ballet/internal/imaging"
	"github.com/ballet-proxy/ballet/internal/log"
	"github.com/ballet-proxy/ballet/internal/obml"
	"github.com/ballet-proxy/ballet/internal/render"
)

// converter turns the tokens of one rendered page into a document.
type converter struct {
	doc        *obml.Document
	res        *render.Result
	transcoder imaging.Transcoder
	width      int // viewport width
	bg         uint32
	// refs maps image cache keys to the ids of images already embedded in
	// doc.
	refs map[string]int
}

// convert appends the page in res to doc, laid out for a viewport width
// pixels wide.
func (s *Server) convert(ctx context.Context, doc *obml.Document, res *render.Result, width int) {
	c := &converter{
		doc:        doc,
		res:        res,
		transcoder: s.transcoder,
		width:      width,
		bg:         0xFFFFFF,
		refs:       map[string]int{},
	}
	doc.SetURL(res.URL)
	doc.SetTitle(res.Title)
	title := res.Title
	if title == "" {
		title = res.URL
	}
	header(doc, title)
	if res.Tokens != nil {
		for t := range res.Tokens {
			c.token(ctx, t)
		}
	}
	doc.End()
}

func (c *converter) token(ctx context.Context, t render.Token) {
	switch t.Kind {
	case render.Background:
		c.bg = t.Color
		c.doc.Background(t.Color)
	case render.StyleChange:
		c.doc.Style(textStyle(t.Style))
	case render.LineBreak:
		c.doc.BR()
	case render.Image:
		c.image(ctx, t.Image)
	case render.Text:
		c.text(t.Text)
	case render.LinkOpen:
		c.doc.Link(t.URL)
	case render.LinkEnd:
		c.doc.LinkEnd()
	case render.Rule:
		c.doc.HR(t.Color)
	case render.Control:
		c.control(t.Control)
	case render.FormOpen, render.FormEnd:
		// OBML has no form container; controls stand on their own.
	}
}

func textStyle(s render.Style) obml.TextStyle {
	ts := obml.TextStyle{
		Color:     s.Color,
		Monospace: s.Monospace,
		Bold:      s.Bold,
		Italic:    s.Italic,
		Underline: s.Underline,
		Strike:    s.Strike,
		Pad:       obml.DefaultStyle.Pad,
	}
	switch s.Align {
	case render.AlignCenter:
		ts.Align = obml.AlignCenter
	case render.AlignRight:
		ts.Align = obml.AlignRight
	}
	return ts
}

// maxText is the largest text run a TEXT tag can hold.
const maxText = math.MaxUint16

// text adds s, split into runs that fit a TEXT tag.
func (c *converter) text(s string) {
	for len(s) > maxText {
		n := maxText
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		c.doc.Text(s[:n])
		s = s[n:]
	}
	if s != "" {
		c.doc.Text(s)
	}
}

// image embeds an image scaled to the viewport, reusing an earlier copy
// of the same rendition when there is one. Images that cannot be embedded
// become placeholders.
func (c *converter) image(ctx context.Context, img render.ImageRef) {
	w, h := img.Width, img.Height
	if w > c.width {
		h = int(math.Round(float64(h) / float64(w) * float64(c.width)))
		w = c.width
	}
	if w <= 0 || h <= 0 {
		return
	}
	for _, f := range []imaging.Format{imaging.PNG, imaging.JPEG} {
		if id, ok := c.refs[imaging.Key(f, img.Src, w, h, c.bg)]; ok {
			c.doc.ImageRef(w, h, id)
			recordImage(ctx, imageReused)
			return
		}
	}
	data, ok := c.res.Resources[img.Src]
	if !ok {
		c.doc.Placeholder(w, h)
		recordImage(ctx, imageMissing)
		return
	}
	f, out, err := c.transcoder.Transcode(ctx, imaging.Source{URL: img.Src, Data: data}, w, h, c.bg)
	switch {
	case err != nil:
		log.Warningf(ctx, "%v", err)
		c.doc.Placeholder(w, h)
		recordImage(ctx, imageFailed)
	case len(out) > math.MaxUint16:
		log.Warningf(ctx, "image is too big: %s (%d KiB)", img.Src, len(out)/1024)
		c.doc.Placeholder(w, h)
		recordImage(ctx, imageOversized)
	default:
		c.refs[imaging.Key(f, img.Src, w, h, c.bg)] = c.doc.Image(w, h, out)
		recordImage(ctx, imageEmbedded)
	}
}

// control adds a form control.
func (c *converter) control(fc render.FormControl) {
	switch fc.Type {
	case render.TextInput:
		c.doc.FormText(fc.Name, fc.Value, false)
	case render.TextArea:
		c.doc.FormText(fc.Name, fc.Value, true)
	case render.Password:
		c.doc.FormPassword(fc.Name, fc.Value)
	case render.Checkbox:
		c.doc.FormCheckbox(fc.Name, fc.Value, fc.Checked)
	case render.Radio:
		c.doc.FormRadio(fc.Name, fc.Value, fc.Checked)
	case render.Hidden:
		c.doc.FormHidden(fc.Name, fc.Value)
	case render.Submit:
		c.doc.FormButton(fc.Name, fc.Value)
	case render.Reset:
		c.doc.FormReset(fc.Name, fc.Value)
	case render.ImageSubmit:
		c.doc.FormImage(fc.Name, fc.Value)
	case render.FileUpload:
		c.doc.FormUpload(fc.Name)
	case render.Select:
		opts := make([]obml.Option, len(fc.Options))
		for i, o := range fc.Options {
			opts[i] = obml.Option{Title: o.Label, Value: o.Value, Checked: o.Selected}
		}
		c.doc.FormSelect(fc.Name, fc.Multiple, opts)
	}
}
