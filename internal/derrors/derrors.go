// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package derrors defines internal error values to categorize the different
// types error semantics we support.
package derrors

import (
	"errors"
	"fmt"
	"net/http"
)

//lint:file-ignore ST1012 prefixing error values with Err would stutter

var (
	// NotFound indicates that a requested entity was not found (HTTP 404).
	NotFound = errors.New("not found")
	// InvalidArgument indicates that the input into the request is invalid in
	// some way (HTTP 400).
	InvalidArgument = errors.New("invalid argument")

	// UnsupportedSecurity indicates that the device sent an encrypted
	// request, which the gateway does not implement (HTTP 403).
	UnsupportedSecurity = errors.New("unsupported security")
	// MalformedField indicates a request field that could not be parsed.
	// It is always recovered from.
	MalformedField = errors.New("malformed field")
	// UnknownRoute indicates that the request path is not an OBML path.
	// The request continues with about:blank.
	UnknownRoute = errors.New("unknown route")

	// RenderFailure indicates that the page could not be loaded or laid out.
	// It is rendered to the device as an error page.
	RenderFailure = errors.New("render failure")
	// Unavailable indicates that the upstream is being shed by the circuit
	// breaker.
	Unavailable = errors.New("upstream unavailable")

	// ImageTranscodeFailure indicates that an image could not be decoded or
	// re-encoded. The image is replaced by a placeholder.
	ImageTranscodeFailure = errors.New("image transcode failure")
	// OversizedImage indicates that an encoded image does not fit the
	// 16-bit length field of an IMAGE tag.
	OversizedImage = errors.New("oversized image")

	// EncodingError indicates that a value cannot be written in the
	// requested binary form, for example a multi-byte tag identifier.
	EncodingError = errors.New("encoding error")
	// TextTooLong indicates a text value whose encoding does not fit a
	// 16-bit length prefix.
	TextTooLong = errors.New("text too long")

	// Unknown indicates that the error has unknown semantics.
	Unknown = errors.New("unknown")
)

var codes = []struct {
	err  error
	code int
}{
	{NotFound, http.StatusNotFound},
	{InvalidArgument, http.StatusBadRequest},
	{UnsupportedSecurity, http.StatusForbidden},
	{Unavailable, http.StatusServiceUnavailable},
	// Since the following aren't HTTP statuses, pick unused codes.
	{MalformedField, 490},
	{UnknownRoute, 491},
	{RenderFailure, 600},
	{ImageTranscodeFailure, 601},
	{OversizedImage, 602},
	{EncodingError, 603},
	{TextTooLong, 604},
}

// FromStatus generates an error for the given status code. It uses
// the given format string and arguments to create the error string according
// to the fmt package. If format is the empty string, then the error
// corresponding to the code is returned unwrapped.
//
// If code is http.StatusOK, it returns nil.
func FromStatus(code int, format string, args ...any) error {
	if code == http.StatusOK {
		return nil
	}
	var innerErr = Unknown
	for _, e := range codes {
		if e.code == code {
			innerErr = e.err
			break
		}
	}
	if format == "" {
		return innerErr
	}
	return fmt.Errorf(format+": %w", append(args, innerErr)...)
}

// ToStatus returns a status code corresponding to err.
func ToStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, e := range codes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return http.StatusInternalServerError
}

// Add adds context to the error.
// The result cannot be unwrapped to recover the original error.
// It does nothing when *errp == nil.
//
// Example:
//
//	defer derrors.Add(&err, "copy(%s, %s)", src, dst)
//
// See Wrap for an equivalent function that allows
// the result to be unwrapped.
func Add(errp *error, format string, args ...any) {
	if *errp != nil {
		*errp = fmt.Errorf("%s: %v", fmt.Sprintf(format, args...), *errp)
	}
}

// Wrap adds context to the error and allows
// unwrapping the result to recover the original error.
//
// Example:
//
//	defer derrors.Wrap(&err, "copy(%s, %s)", src, dst)
//
// See Add for an equivalent function that does not allow
// the result to be unwrapped.
func Wrap(errp *error, format string, args ...any) {
	if *errp != nil {
		*errp = fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), *errp)
	}
}
