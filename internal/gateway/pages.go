// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gateway

import (
	"github.com/ballet-proxy/ballet/internal/obml"
	"github.com/ballet-proxy/ballet/internal/request"
)

// Colors of the error page.
const (
	errorBackground = 0xF9E1D9
	errorAccent     = 0xFF6837
	linkColor       = 0x0000FF
)

var titleStyle = obml.TextStyle{Bold: true, Pad: 2}

// header adds the bold title line every page starts with.
func header(doc *obml.Document, title string) {
	doc.Style(titleStyle).Plus().Text(title).Plus()
}

// connectionTestPage answers a connection test.
func connectionTestPage(req *request.Request) *obml.Document {
	doc := obml.New(req.Version)
	doc.SetURL(req.URL)
	header(doc, req.URL)
	doc.Background(0xFFFFFF).
		Style(obml.DefaultStyle).
		Text("OK").
		End()
	return doc
}

// errorPage reports a failed request, with a link to retry it.
func errorPage(req *request.Request, message string) *obml.Document {
	accent := obml.TextStyle{Color: errorAccent, Pad: 2}
	link := obml.TextStyle{Color: linkColor, Pad: 2}

	doc := obml.New(req.Version)
	doc.SetURL(req.URL)
	doc.SetTitle("Request error")
	header(doc, doc.Title())
	doc.Background(errorBackground).
		Style(accent).
		Text("An error occurred while executing the request to: ").
		Link(req.URL).
		Style(link).
		Text(req.URL).
		LinkEnd().
		HR(errorAccent).
		Style(accent).
		Text(message).
		HR(errorAccent).
		Link(req.URL).
		Style(link).
		Text("Repeat request.").
		LinkEnd().
		End()
	return doc
}
