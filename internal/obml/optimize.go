// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obml

// A Page is an optimized document, ready to be serialized. It has no
// mutating methods.
type Page struct {
	version int
	url     string
	title   string
	tags    []Tag
	styles  int
}

// Optimize replaces every repeated style by a reference to its first
// occurrence and returns the resulting Page. Styles are numbered densely in
// order of first appearance; indexes up to 255 use StyleRef, larger ones
// StyleRef2.
//
// The tag stream moves to the Page: d is left empty.
func (d *Document) Optimize() *Page {
	p := &Page{
		version: d.version,
		url:     d.url,
		title:   d.title,
		tags:    d.tags,
	}
	d.tags = nil

	index := map[TextStyle]int{}
	for i := range p.tags {
		t := &p.tags[i]
		if t.Kind != Style {
			continue
		}
		s, ok := t.Payload.(TextStyle)
		if !ok {
			continue
		}
		ref, seen := index[s]
		if !seen {
			index[s] = len(index)
			continue
		}
		t.Kind = StyleRef
		if ref > 0xFF {
			t.Kind = StyleRef2
		}
		t.Payload = ref
	}
	p.styles = len(index)
	return p
}

// Version returns the protocol version of the page.
func (p *Page) Version() int { return p.version }

// URL returns the page URL.
func (p *Page) URL() string { return p.url }

// Title returns the page title.
func (p *Page) Title() string { return p.title }

// Styles returns the number of distinct styles on the page.
func (p *Page) Styles() int { return p.styles }

// Tags returns a copy of the optimized tag stream.
func (p *Page) Tags() []Tag { return append([]Tag(nil), p.tags...) }
