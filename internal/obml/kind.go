// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obml

import "fmt"

// A Kind identifies an OBML tag. Each kind is written to the wire as a
// single identifying byte.
type Kind uint8

// Tag kinds.
const (
	Text Kind = iota
	LinkOpen
	LinkClose
	Placeholder
	Image
	UncompressedImage
	ImageRef
	ImageRef2
	Background
	Style
	StyleRef  // u8 index
	StyleRef2 // u16 index
	BR
	Paragraph
	Plus
	FoldOpen
	FoldClose
	Dollar
	Anchor
	SubmitFlag
	PhoneNumber
	HR
	UnknownF
	UnknownN
	UnknownT
	FormPassword
	FormText
	FormCheckbox
	FormSelectOpen
	FormSelectClose
	FormOption
	FormHidden
	FormReset
	FormImage
	FormButton
	FormUpload
	FormRadio
	FormSubmitFlag
	LineFeed
	Alert
	Ident
	LinkUpgrade
	LinkSMS
	Link8
	Link9
	LinkExternal
	Kawai
	DirectImageLink
	DirectFileLink
	Auth
	End

	numKinds
)

var kinds = [numKinds]struct {
	id   string
	name string
}{
	Text:              {"T", "TEXT"},
	LinkOpen:          {"L", "LINK_OPEN"},
	LinkClose:         {"E", "LINK_CLOSE"},
	Placeholder:       {"J", "PLACEHOLDER"},
	Image:             {"I", "IMAGE"},
	UncompressedImage: {"X", "UNCOMPRESSED_IMAGE"},
	ImageRef:          {"K", "IMAGE_REF"},
	ImageRef2:         {"O", "IMAGE_REF2"},
	Background:        {"D", "BACKGROUND"},
	Style:             {"S", "STYLE"},
	StyleRef:          {"Y", "STYLE_REF"},
	StyleRef2:         {"y", "STYLE_REF2"},
	BR:                {"B", "BR"},
	Paragraph:         {"V", "PARAGRAPH"},
	Plus:              {"+", "PLUS"},
	FoldOpen:          {"(", "FOLD_OPEN"},
	FoldClose:         {")", "FOLD_CLOSE"},
	Dollar:            {"$", "DOLLAR"},
	Anchor:            {"A", "ANCHOR"},
	SubmitFlag:        {"S", "SUBMIT_FLAG"},
	PhoneNumber:       {"P", "PHONE_NUMBER"},
	HR:                {"R", "HR"},
	UnknownF:          {"F", "UNKNOWN_F"},
	UnknownN:          {"N", "UNKNOWN_N"},
	UnknownT:          {"t", "UNKNOWN_t"},
	FormPassword:      {"p", "FORM_PASSWORD"},
	FormText:          {"x", "FORM_TEXT"},
	FormCheckbox:      {"c", "FORM_CHECKBOX"},
	FormSelectOpen:    {"s", "FORM_SELECT_OPEN"},
	FormSelectClose:   {"l", "FORM_SELECT_CLOSE"},
	FormOption:        {"o", "FORM_OPTION"},
	FormHidden:        {"h", "FORM_HIDDEN"},
	FormReset:         {"e", "FORM_RESET"},
	FormImage:         {"i", "FORM_IMAGE"},
	FormButton:        {"u", "FORM_BUTTON"},
	FormUpload:        {"U", "FORM_UPLOAD"},
	FormRadio:         {"r", "FORM_RADIO"},
	FormSubmitFlag:    {"C", "FORM_SUBMIT_FLAG"},
	LineFeed:          {"v", "LINE_FEED"},
	Alert:             {"M", "ALERT"},
	Ident:             {"z", "IDENT"},
	LinkUpgrade:       {"W", "LINK_UPGRADE_OM"},
	LinkSMS:           {"m", "LINK_SMS"},
	Link8:             {"\x08", "LINK_8"},
	Link9:             {"\x09", "LINK_9"},
	LinkExternal:      {"^", "LINK_EXTERNAL"},
	Kawai:             {"&", "KAWAI"},
	DirectImageLink:   {"Z", "DIRECT_IMAGE_LINK"},
	DirectFileLink:    {"@", "DIRECT_FILE_LINK"},
	Auth:              {"k", "AUTH"},
	End:               {"Q", "END"},
}

// ID returns the wire identifier of k.
func (k Kind) ID() string {
	if k >= numKinds {
		return ""
	}
	return kinds[k].id
}

func (k Kind) String() string {
	if k >= numKinds {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kinds[k].name
}
