// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dynconfig reads configuration overrides for the gateway.
// Overrides are read from a YAML file and let operators adjust selected
// settings without redeploying.
package dynconfig

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/ballet-proxy/ballet/internal/derrors"
	"github.com/ballet-proxy/ballet/internal/log"
	"gopkg.in/yaml.v3"
)

// DynamicConfig holds the settings that can be overridden. Zero values
// leave the current setting in place.
type DynamicConfig struct {
	// Fields can be added at any time, but removing or changing a field
	// requires careful coordination with the config file contents.

	RenderTimeout time.Duration `yaml:"RenderTimeout"`
	UserAgent     string        `yaml:"UserAgent"`
	ImageCacheTTL time.Duration `yaml:"ImageCacheTTL"`
	Quota         Quota         `yaml:"Quota"`
}

// Quota holds overridable quota settings.
type Quota struct {
	QPS        int   `yaml:"QPS"`
	Burst      int   `yaml:"Burst"`
	MaxEntries int   `yaml:"MaxEntries"`
	RecordOnly *bool `yaml:"RecordOnly"`
}

// Read reads dynamic configuration from the given location.
// Location may be of the form gs://bucket/object, denoting a GCS bucket.
// Otherwise it is interpreted as a filename.
func Read(ctx context.Context, location string) (_ *DynamicConfig, err error) {
	defer derrors.Wrap(&err, "dynconfig.Read(%q)", location)

	log.Debugf(ctx, "reading dynamic config from %s", location)
	var r io.ReadCloser
	if rest, ok := strings.CutPrefix(location, "gs://"); ok {
		bucket, object, found := strings.Cut(rest, "/")
		if !found {
			return nil, errors.New("bad GCS URL")
		}
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		defer client.Close()
		r, err = client.Bucket(bucket).Object(object).NewReader(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		r, err = os.Open(location)
		if err != nil {
			return nil, err
		}
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses yamlData as a YAML description of DynamicConfig.
func Parse(yamlData []byte) (_ *DynamicConfig, err error) {
	defer derrors.Wrap(&err, "dynconfig.Parse(data)")

	var dc DynamicConfig
	if err := yaml.Unmarshal(yamlData, &dc); err != nil {
		return nil, err
	}
	return &dc, nil
}
