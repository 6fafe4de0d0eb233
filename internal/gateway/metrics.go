// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gateway

import (
	"context"
	"strconv"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Request outcomes.
const (
	outcomePage           = "page"
	outcomeConnectionTest = "connection test"
	outcomeError          = "error page"
	outcomeRejected       = "rejected"
)

// Image outcomes.
const (
	imageEmbedded  = "embedded"
	imageReused    = "reused"
	imageMissing   = "missing"
	imageFailed    = "failed"
	imageOversized = "oversized"
)

var (
	keyVersion     = tag.MustNewKey("gateway.version")
	keyCompression = tag.MustNewKey("gateway.compression")
	keyOutcome     = tag.MustNewKey("gateway.outcome")
	keyRenderOK    = tag.MustNewKey("gateway.render_ok")
	keyImage       = tag.MustNewKey("gateway.image")

	requests = stats.Int64(
		"ballet/gateway/requests",
		"Device requests handled.",
		stats.UnitDimensionless,
	)
	renderLatency = stats.Float64(
		"ballet/gateway/render_latency",
		"Time to render a page.",
		stats.UnitMilliseconds,
	)
	images = stats.Int64(
		"ballet/gateway/images",
		"Images placed on pages.",
		stats.UnitDimensionless,
	)

	// RequestCount counts requests by protocol version, compression and
	// outcome.
	RequestCount = &view.View{
		Name:        "ballet/gateway/request_count",
		Measure:     requests,
		Aggregation: view.Count(),
		Description: "device requests, by version, compression and outcome",
		TagKeys:     []tag.Key{keyVersion, keyCompression, keyOutcome},
	}
	// RenderLatency is the distribution of page render times.
	RenderLatency = &view.View{
		Name:        "ballet/gateway/render_latency",
		Measure:     renderLatency,
		Aggregation: view.Distribution(10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000),
		Description: "page render latency, by success",
		TagKeys:     []tag.Key{keyRenderOK},
	}
	// ImageCount counts images by how they were placed.
	ImageCount = &view.View{
		Name:        "ballet/gateway/image_count",
		Measure:     images,
		Aggregation: view.Count(),
		Description: "page images, by outcome",
		TagKeys:     []tag.Key{keyImage},
	}
)

// Views lists the views of this package.
var Views = []*view.View{RequestCount, RenderLatency, ImageCount}

func recordRequest(ctx context.Context, version int, compression, outcome string) {
	stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(keyVersion, strconv.Itoa(version)),
		tag.Upsert(keyCompression, compression),
		tag.Upsert(keyOutcome, outcome),
	}, requests.M(1))
}

func recordRenderLatency(ctx context.Context, d time.Duration, err error) {
	stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(keyRenderOK, strconv.FormatBool(err == nil)),
	}, renderLatency.M(float64(d)/float64(time.Millisecond)))
}

func recordImage(ctx context.Context, outcome string) {
	stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(keyImage, outcome),
	}, images.M(1))
}
