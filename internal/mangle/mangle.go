// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mangle maps the short field keys sent by Opera Mini devices to
// canonical field names.
//
// Two device generations coexist on the wire: 1.x clients send long "x-"
// keys, later clients send one-letter codes. Both resolve to the same
// canonical name. The tables are literal data in declaration order; when a
// source key is declared twice the later row wins.
package mangle

// Canonical request field names.
const (
	ImageType        = "imageType"
	BrowserType      = "browserType"
	RawURL           = "rawUrl"
	Language         = "language"
	Version          = "version"
	UserAgent        = "userAgent"
	CLDC             = "cldc"
	MIDP             = "midp"
	Phone            = "phone"
	DeviceLanguage   = "deviceLanguage"
	Encoding         = "encoding"
	OptionsStr       = "optionsStr"
	Build            = "build"
	Country          = "country"
	AuthPrefix       = "authPrefix"
	AuthCode         = "authCode"
	Referer          = "referer"
	Compression      = "compression"
	Post             = "post"
	ShowPhoneAsLinks = "showPhoneAsLinks"
	Parts            = "parts"
	DefaultSearch    = "defaultSearch"
)

// Canonical option names, parsed from the OptionsStr field.
const (
	Width         = "width"
	Height        = "height"
	Colors        = "colors"
	MaxPageSize   = "maxPageSize"
	Images        = "images"
	ImagesQuality = "imagesQuality"
)

type entry struct {
	key, name string
}

var requestEntries = []entry{
	{"k", ImageType},
	{"o", BrowserType}, // 280 - 2.x, 285 - 3.x
	{"x-o", BrowserType},

	{"u", RawURL},
	{"x-u", RawURL},

	{"q", Language},
	{"x-l", Language},

	{"v", Version},
	{"x-v", Version},

	{"i", UserAgent},
	{"x-ua", UserAgent},

	{"A", CLDC},
	{"x-m-c", CLDC},

	{"B", MIDP},
	{"x-m-ps", MIDP},

	{"C", Phone},
	{"x-m-pm", Phone},

	{"D", DeviceLanguage},
	{"x-m-l", DeviceLanguage},

	{"E", Encoding},
	{"x-m-e", Encoding},

	{"d", OptionsStr},
	{"x-dp", OptionsStr},

	{"b", Build},
	{"x-b", Build},

	{"y", Country},
	{"x-co", Country},

	{"h", AuthPrefix},
	{"c", AuthCode},
	{"x-h", AuthPrefix},
	{"x-c", AuthCode},

	{"f", Referer},
	{"x-rr", Referer},

	{"e", Compression},
	{"x-e", Compression},

	{"j", Post},
	{"x-var", Post},

	{"t", ShowPhoneAsLinks},
	{"w", Parts},
	{"x-sn", Parts},

	{"G", DefaultSearch},
}

var optionEntries = []entry{
	{"w", Width},
	{"h", Height},
	{"c", Colors},
	{"m", MaxPageSize},
	{"i", Images},
	{"q", ImagesQuality},
}

// A Dictionary resolves mangled keys. It is immutable and safe for
// concurrent use.
type Dictionary struct {
	names map[string]string
}

func newDictionary(entries []entry) *Dictionary {
	d := &Dictionary{names: make(map[string]string, len(entries))}
	for _, e := range entries {
		d.names[e.key] = e.name
	}
	return d
}

var (
	// Request resolves the keys of the NUL-separated request pairs.
	Request = newDictionary(requestEntries)
	// Options resolves the keys of the OptionsStr sub-fields.
	Options = newDictionary(optionEntries)
)

// Canonical returns the canonical name for key. Unknown keys are not an
// error: they map to "unk_" followed by the key, so no field is dropped.
func (d *Dictionary) Canonical(key string) string {
	if name, ok := d.names[key]; ok {
		return name
	}
	return Unknown(key)
}

// Known reports whether key is in the dictionary.
func (d *Dictionary) Known(key string) bool {
	_, ok := d.names[key]
	return ok
}

// Unknown returns the placeholder name for an unrecognized key.
func Unknown(key string) string {
	return "unk_" + key
}
