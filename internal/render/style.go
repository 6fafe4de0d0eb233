// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package render

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// computed is the resolved presentation of an element.
type computed struct {
	style     Style
	bg        uint32
	hidden    bool
	block     bool
	transform string // CSS text-transform
}

var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Caption: true, atom.Center: true, atom.Dd: true, atom.Div: true,
	atom.Dl: true, atom.Dt: true, atom.Fieldset: true, atom.Figcaption: true,
	atom.Figure: true, atom.Footer: true, atom.Form: true, atom.H1: true,
	atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true,
	atom.Nav: true, atom.Ol: true, atom.P: true, atom.Pre: true,
	atom.Section: true, atom.Table: true, atom.Tr: true, atom.Ul: true,
}

var hiddenElements = map[atom.Atom]bool{
	atom.Head: true, atom.Script: true, atom.Style: true, atom.Template: true,
	atom.Noscript: true, atom.Title: true, atom.Iframe: true, atom.Object: true,
	atom.Embed: true, atom.Audio: true, atom.Video: true, atom.Canvas: true,
	atom.Svg: true, atom.Map: true, atom.Datalist: true,
}

// compute resolves the presentation of n from its markup, given the
// presentation of its parent.
func compute(n *html.Node, parent computed) computed {
	c := parent
	c.block = blockElements[n.DataAtom]
	if hiddenElements[n.DataAtom] || hasAttr(n, "hidden") {
		c.hidden = true
	}

	switch n.DataAtom {
	case atom.B, atom.Strong, atom.Th, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		c.style.Bold = true
	case atom.I, atom.Em, atom.Cite, atom.Var, atom.Dfn, atom.Address:
		c.style.Italic = true
	case atom.U, atom.Ins:
		c.style.Underline = true
	case atom.S, atom.Strike, atom.Del:
		c.style.Strike = true
	case atom.Pre, atom.Code, atom.Tt, atom.Kbd, atom.Samp:
		c.style.Monospace = true
	case atom.Center:
		c.style.Align = AlignCenter
	case atom.Font:
		if col, a, ok := parseColor(attr(n, "color")); ok {
			c.style.Color = blend(c.bg, col, a)
		}
	}
	if a, ok := parseAlign(attr(n, "align")); ok {
		c.style.Align = a
	}
	if col, a, ok := parseColor(attr(n, "bgcolor")); ok {
		c.bg = blend(parent.bg, col, a)
	}
	if s := attr(n, "style"); s != "" {
		c.applyCSS(s, parent.bg)
	}
	return c
}

// applyCSS applies the declarations of an inline style attribute.
func (c *computed) applyCSS(decls string, parentBG uint32) {
	for _, d := range strings.Split(decls, ";") {
		prop, val, ok := strings.Cut(d, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important")))
		switch prop {
		case "color":
			if col, a, ok := parseColor(val); ok {
				c.style.Color = blend(c.bg, col, a)
			}
		case "background-color", "background":
			// Only the color of a background shorthand is used.
			for _, f := range cssFields(val) {
				if col, a, ok := parseColor(f); ok {
					c.bg = blend(parentBG, col, a)
					break
				}
			}
		case "font-weight":
			n, err := strconv.Atoi(val)
			c.style.Bold = val == "bold" || val == "bolder" || (err == nil && n >= 700)
		case "font-style":
			c.style.Italic = val == "italic" || val == "oblique"
		case "font-family":
			c.style.Monospace = strings.Contains(val, "monospace")
		case "text-decoration", "text-decoration-line":
			c.style.Underline = strings.Contains(val, "underline")
			c.style.Strike = strings.Contains(val, "line-through")
		case "text-align":
			if a, ok := parseAlign(val); ok {
				c.style.Align = a
			}
		case "text-transform":
			c.transform = val
		case "display":
			switch val {
			case "none":
				c.hidden = true
			case "block", "table", "table-caption", "list-item", "flex":
				c.block = true
			default:
				c.block = false
			}
		case "visibility":
			c.hidden = c.hidden || val == "hidden"
		}
	}
}

// cssFields splits a CSS value on whitespace outside parentheses, so that
// functional values such as rgb(1, 2, 3) stay whole.
func cssFields(s string) []string {
	var (
		fields []string
		depth  int
		start  = -1
	)
	for i, r := range s {
		switch {
		case r == '(':
			depth++
		case r == ')' && depth > 0:
			depth--
		case depth == 0 && (r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f'):
			if start >= 0 {
				fields = append(fields, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, s[start:])
	}
	return fields
}

func parseAlign(s string) (Align, bool) {
	switch strings.ToLower(s) {
	case "left":
		return AlignLeft, true
	case "center", "middle":
		return AlignCenter, true
	case "right":
		return AlignRight, true
	}
	return 0, false
}

var namedColors = map[string]uint32{
	"black": 0x000000, "silver": 0xC0C0C0, "gray": 0x808080, "grey": 0x808080,
	"white": 0xFFFFFF, "maroon": 0x800000, "red": 0xFF0000, "purple": 0x800080,
	"fuchsia": 0xFF00FF, "magenta": 0xFF00FF, "green": 0x008000, "lime": 0x00FF00,
	"olive": 0x808000, "yellow": 0xFFFF00, "navy": 0x000080, "blue": 0x0000FF,
	"teal": 0x008080, "aqua": 0x00FFFF, "cyan": 0x00FFFF, "orange": 0xFFA500,
	"brown": 0xA52A2A, "pink": 0xFFC0CB, "gold": 0xFFD700, "darkred": 0x8B0000,
	"darkgreen": 0x006400, "darkblue": 0x00008B, "lightgray": 0xD3D3D3,
	"lightgrey": 0xD3D3D3, "darkgray": 0xA9A9A9, "darkgrey": 0xA9A9A9,
	"whitesmoke": 0xF5F5F5, "beige": 0xF5F5DC, "ivory": 0xFFFFF0,
}

// parseColor parses a CSS or HTML color into 0xRRGGBB and an alpha in
// [0, 1].
func parseColor(s string) (color uint32, alpha float64, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return 0, 0, false
	case s == "transparent":
		return 0, 0, true
	case strings.HasPrefix(s, "#"):
		h := s[1:]
		if len(h) == 3 {
			h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
		}
		if len(h) != 6 {
			return 0, 0, false
		}
		v, err := strconv.ParseUint(h, 16, 32)
		if err != nil {
			return 0, 0, false
		}
		return uint32(v), 1, true
	case strings.HasPrefix(s, "rgb(") || strings.HasPrefix(s, "rgba("):
		open, end := strings.IndexByte(s, '('), strings.IndexByte(s, ')')
		if end < open {
			return 0, 0, false
		}
		parts := strings.FieldsFunc(s[open+1:end], func(r rune) bool { return r == ',' || r == ' ' || r == '/' })
		if len(parts) != 3 && len(parts) != 4 {
			return 0, 0, false
		}
		for i, p := range parts[:3] {
			v, err := strconv.Atoi(p)
			if err != nil || v < 0 || v > 255 {
				return 0, 0, false
			}
			color |= uint32(v) << (16 - 8*i)
		}
		alpha = 1
		if len(parts) == 4 {
			a, err := strconv.ParseFloat(parts[3], 64)
			if err != nil {
				return 0, 0, false
			}
			alpha = min(max(a, 0), 1)
		}
		return color, alpha, true
	}
	if v, ok := namedColors[s]; ok {
		return v, 1, true
	}
	return 0, 0, false
}

// blend composites color with the given alpha over an opaque base.
func blend(base, color uint32, alpha float64) uint32 {
	if alpha >= 1 {
		return color
	}
	var out uint32
	for shift := 16; shift >= 0; shift -= 8 {
		b := float64((base >> shift) & 0xFF)
		c := float64((color >> shift) & 0xFF)
		out |= uint32(math.Round(c*alpha+b*(1-alpha))) << shift
	}
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// dimension parses a width or height attribute in pixels.
func dimension(s string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(s), "px"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
