// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package obml builds OBML documents, the binary page format rendered by
// Opera Mini 1.x to 3.x clients, and frames them into response packets.
//
// A page is produced in three steps. A Document is populated through its
// builder methods. Optimize hands the tag stream over to a frozen Page,
// replacing repeated styles by references. Page.Serialize writes the
// version-specific binary form, which Frame wraps in the packet envelope.
package obml

import "slices"

// A Tag is one instruction of an OBML document. The dynamic type of
// Payload depends on Kind; marker kinds carry a nil payload.
type Tag struct {
	Kind    Kind
	Payload any
}

// Align is the horizontal text alignment of a Style.
type Align uint8

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// TextStyle is the payload of a Style tag. Two styles with equal fields
// are the same style.
type TextStyle struct {
	Color     uint32 // 0xRRGGBB
	Monospace bool
	Bold      bool
	Italic    bool
	Underline bool
	Strike    bool
	Align     Align
	Pad       uint8
}

// DefaultStyle is the style a page starts with.
var DefaultStyle = TextStyle{Pad: 2}

// ImageData is the payload of an Image tag.
type ImageData struct {
	Width, Height int
	Data          []byte
}

// ImageIndex is the payload of an ImageRef tag. Index is the reference id
// returned by Document.Image.
type ImageIndex struct {
	Width, Height int
	Index         int
}

// Size is the payload of a Placeholder tag.
type Size struct {
	Width, Height int
}

// AuthType distinguishes the two Auth tags.
type AuthType uint8

const (
	AuthPrefix AuthType = 0
	AuthCode   AuthType = 1
)

// AuthValue is the payload of an Auth tag.
type AuthValue struct {
	Type  AuthType
	Value string
}

// Message is the payload of an Alert tag.
type Message struct {
	Title, Message string
}

// Field is the payload of the simple form controls: password, hidden,
// image, button and reset.
type Field struct {
	Name, Value string
}

// Toggle is the payload of checkboxes and radio buttons.
type Toggle struct {
	Name, Value string
	Checked     bool
}

// TextField is the payload of a FormText tag.
type TextField struct {
	Name, Value string
	Multiline   bool
}

// Upload is the payload of a FormUpload tag.
type Upload struct {
	Name string
}

// Select is the payload of a FormSelectOpen tag. Count is the number of
// FormOption tags that follow.
type Select struct {
	Name     string
	Multiple bool
	Count    int
}

// Option is the payload of a FormOption tag.
type Option struct {
	Title, Value string
	Checked      bool
}

// A Document is an OBML page under construction. It is a single-use
// builder: once Optimize has been called its tags belong to the returned
// Page. A Document must not be shared between goroutines.
type Document struct {
	version int
	url     string
	title   string
	tags    []Tag
	images  int
}

// New returns an empty Document for the given protocol version.
func New(version int) *Document {
	return &Document{version: version}
}

// Version returns the protocol version the document is built for.
func (d *Document) Version() int { return d.version }

// SetURL sets the page URL.
func (d *Document) SetURL(url string) { d.url = url }

// URL returns the page URL.
func (d *Document) URL() string { return d.url }

// SetTitle sets the page title.
func (d *Document) SetTitle(title string) { d.title = title }

// Title returns the page title.
func (d *Document) Title() string { return d.title }

// Len returns the number of tags in the document.
func (d *Document) Len() int { return len(d.tags) }

// Tags returns a copy of the tag stream.
func (d *Document) Tags() []Tag { return append([]Tag(nil), d.tags...) }

// Images returns the number of Image tags added so far.
func (d *Document) Images() int { return d.images }

type tagOptions struct {
	coalesce bool
	siblings []Kind
}

// A TagOption changes how Tag adds a tag.
type TagOption func(*tagOptions)

// Coalesce makes Tag overwrite the payload of the closest preceding tag of
// the same kind instead of appending, as long as only tags of the sibling
// kinds lie in between.
func Coalesce(siblings ...Kind) TagOption {
	return func(o *tagOptions) {
		o.coalesce = true
		o.siblings = siblings
	}
}

// Tag adds a tag with the given kind and payload.
func (d *Document) Tag(kind Kind, payload any, opts ...TagOption) *Document {
	var o tagOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.coalesce {
	scan:
		for i := len(d.tags) - 1; i >= 0; i-- {
			switch k := d.tags[i].Kind; {
			case slices.Contains(o.siblings, k):
				continue
			case k == kind:
				d.tags[i].Payload = payload
				return d
			default:
				break scan
			}
		}
	}
	d.tags = append(d.tags, Tag{Kind: kind, Payload: payload})
	return d
}

// Plus adds a PLUS marker.
func (d *Document) Plus() *Document { return d.Tag(Plus, nil) }

// Image adds an image and returns its reference id for later ImageRef tags.
// Ids are dense and zero-based in insertion order.
func (d *Document) Image(width, height int, data []byte) int {
	d.Tag(Image, ImageData{Width: width, Height: height, Data: data})
	id := d.images
	d.images++
	return id
}

// ImageRef adds a reference to an image added earlier.
func (d *Document) ImageRef(width, height, index int) *Document {
	return d.Tag(ImageRef, ImageIndex{Width: width, Height: height, Index: index})
}

// Alert adds an alert dialog.
func (d *Document) Alert(title, message string) *Document {
	return d.Tag(Alert, Message{Title: title, Message: message})
}

// Text adds a run of text.
func (d *Document) Text(text string) *Document { return d.Tag(Text, text) }

// PhoneNumber adds a phone number the device can dial.
func (d *Document) PhoneNumber(text string) *Document { return d.Tag(PhoneNumber, text) }

// Link opens a link to url. It must be closed with LinkEnd.
func (d *Document) Link(url string) *Document { return d.Tag(LinkOpen, url) }

// LinkEnd closes the current link.
func (d *Document) LinkEnd() *Document { return d.Tag(LinkClose, nil) }

// Placeholder adds an empty box in place of an image.
func (d *Document) Placeholder(width, height int) *Document {
	return d.Tag(Placeholder, Size{Width: width, Height: height})
}

// FormPassword adds a password input.
func (d *Document) FormPassword(name, value string) *Document {
	return d.Tag(FormPassword, Field{Name: name, Value: value})
}

// FormText adds a text input, or a text area if multiline is set.
func (d *Document) FormText(name, value string, multiline bool) *Document {
	return d.Tag(FormText, TextField{Name: name, Value: value, Multiline: multiline})
}

// FormCheckbox adds a checkbox.
func (d *Document) FormCheckbox(name, value string, checked bool) *Document {
	return d.Tag(FormCheckbox, Toggle{Name: name, Value: value, Checked: checked})
}

// FormRadio adds a radio button.
func (d *Document) FormRadio(name, value string, checked bool) *Document {
	return d.Tag(FormRadio, Toggle{Name: name, Value: value, Checked: checked})
}

// FormSelect adds a complete select control with its options.
func (d *Document) FormSelect(name string, multiple bool, options []Option) *Document {
	d.FormSelectOpen(name, multiple, len(options))
	for _, o := range options {
		d.FormSelectOption(o.Title, o.Value, o.Checked)
	}
	return d.FormSelectClose()
}

// FormSelectOpen opens a select control that will have count options.
func (d *Document) FormSelectOpen(name string, multiple bool, count int) *Document {
	return d.Tag(FormSelectOpen, Select{Name: name, Multiple: multiple, Count: count})
}

// FormSelectOption adds an option to the open select control.
func (d *Document) FormSelectOption(title, value string, checked bool) *Document {
	return d.Tag(FormOption, Option{Title: title, Value: value, Checked: checked})
}

// FormSelectClose closes the open select control.
func (d *Document) FormSelectClose() *Document { return d.Tag(FormSelectClose, nil) }

// FormHidden adds a hidden input.
func (d *Document) FormHidden(name, value string) *Document {
	return d.Tag(FormHidden, Field{Name: name, Value: value})
}

// FormReset adds a reset button.
func (d *Document) FormReset(name, value string) *Document {
	return d.Tag(FormReset, Field{Name: name, Value: value})
}

// FormImage adds an image submit button.
func (d *Document) FormImage(name, value string) *Document {
	return d.Tag(FormImage, Field{Name: name, Value: value})
}

// FormButton adds a submit button.
func (d *Document) FormButton(name, value string) *Document {
	return d.Tag(FormButton, Field{Name: name, Value: value})
}

// FormSubmitOnChange marks the preceding control as submitting its form
// when changed.
func (d *Document) FormSubmitOnChange() *Document { return d.Tag(FormSubmitFlag, nil) }

// FormUpload adds a file input.
func (d *Document) FormUpload(name string) *Document {
	return d.Tag(FormUpload, Upload{Name: name})
}

// Style changes the text style. Consecutive style changes, possibly
// interleaved with background changes, collapse into one.
func (d *Document) Style(s TextStyle) *Document {
	return d.Tag(Style, s, Coalesce(Background))
}

// Background changes the background color. Consecutive background
// changes, possibly interleaved with style changes, collapse into one.
func (d *Document) Background(color uint32) *Document {
	return d.Tag(Background, color, Coalesce(Style))
}

// HR adds a horizontal rule of the given color.
func (d *Document) HR(color uint32) *Document { return d.Tag(HR, color) }

// BR adds a line break.
func (d *Document) BR() *Document { return d.Tag(BR, nil) }

// End marks the end of the page.
func (d *Document) End() *Document { return d.Tag(End, nil) }

// Paragraph starts a new paragraph.
func (d *Document) Paragraph() *Document { return d.Tag(Paragraph, nil) }

// AuthPrefix adds the authentication prefix the device stores.
func (d *Document) AuthPrefix(value string) *Document {
	return d.Tag(Auth, AuthValue{Type: AuthPrefix, Value: value})
}

// AuthCode adds the authentication code the device stores.
func (d *Document) AuthCode(value string) *Document {
	return d.Tag(Auth, AuthValue{Type: AuthCode, Value: value})
}
