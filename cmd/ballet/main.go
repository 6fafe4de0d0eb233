// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Ballet serves OBML pages to Opera Mini 1.x to 3.x clients.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"

	"cloud.google.com/go/profiler"
	"github.com/ballet-proxy/ballet/cmd/internal/cmdconfig"
	"github.com/ballet-proxy/ballet/internal/breaker"
	"github.com/ballet-proxy/ballet/internal/cache"
	"github.com/ballet-proxy/ballet/internal/config/serverconfig"
	"github.com/ballet-proxy/ballet/internal/dcensus"
	"github.com/ballet-proxy/ballet/internal/gateway"
	"github.com/ballet-proxy/ballet/internal/imaging"
	"github.com/ballet-proxy/ballet/internal/log"
	"github.com/ballet-proxy/ballet/internal/middleware"
	"github.com/ballet-proxy/ballet/internal/middleware/timeout"
	"github.com/ballet-proxy/ballet/internal/render"
)

var (
	hostAddr    = flag.String("host", "localhost:8080", "Host address for the server")
	debugAddr   = flag.String("debug", "localhost:8081", "Host address for the debug server")
	purgeImages = flag.Bool("purge_images", false, "delete all cached images from redis and exit")
	noBreaker   = flag.Bool("no_breaker", false, "disable the upstream circuit breaker")
)

func main() {
	flag.Parse()
	ctx := context.Background()
	cfg, err := serverconfig.Init(ctx)
	if err != nil {
		log.Fatal(ctx, err)
	}
	cfg.Dump(os.Stderr)
	if cfg.UseProfiler {
		if err := profiler.Start(profiler.Config{ServiceVersion: cfg.AppVersionLabel()}); err != nil {
			log.Fatalf(ctx, "profiler.Start: %v", err)
		}
	}

	redisClient := cmdconfig.RedisClient(ctx, cfg)
	if *purgeImages {
		if redisClient == nil {
			log.Fatal(ctx, "-purge_images needs GO_BALLET_REDIS_HOST")
		}
		store := cache.New(redisClient, cmdconfig.ImageCachePrefix, cfg.ImageCacheTTL)
		if err := store.Purge(ctx); err != nil {
			log.Fatal(ctx, err)
		}
		log.Infof(ctx, "purged image cache")
		return
	}

	var cb *breaker.Breaker
	if !*noBreaker {
		cb, err = breaker.New(breaker.DefaultConfig)
		if err != nil {
			log.Fatal(ctx, err)
		}
	}
	renderer := render.NewHTML(render.HTMLConfig{
		Breaker:       cb,
		MaxPageBytes:  cfg.MaxPageBytes,
		MaxImageBytes: cfg.MaxImageBytes,
		ImageFetchers: cfg.ImageFetchers,
	})
	transcoder := imaging.NewCached(imaging.NewStandard(), cmdconfig.ImageStore(cfg, redisClient))
	server, err := gateway.NewServer(gateway.ServerConfig{
		Renderer:      renderer,
		Transcoder:    transcoder,
		RenderTimeout: cfg.RenderTimeout,
		Defaults: render.Options{
			Width:     cfg.Width,
			Height:    cfg.Height,
			UserAgent: cfg.UserAgent,
		},
		MaxBodySize: cfg.MaxBodySize,
	})
	if err != nil {
		log.Fatalf(ctx, "gateway.NewServer: %v", err)
	}

	router := dcensus.NewRouter(nil)
	server.Install(router.Handle)

	views := append(dcensus.ServerViews, dcensus.ClientViews...)
	views = append(views, gateway.Views...)
	views = append(views,
		imaging.CacheResultCount,
		middleware.QuotaResultCount,
	)
	if err := dcensus.Init(cfg, views...); err != nil {
		log.Fatal(ctx, err)
	}
	dcensusServer, err := dcensus.NewServer()
	if err != nil {
		log.Fatal(ctx, err)
	}
	go http.ListenAndServe(cfg.DebugAddr(*debugAddr), dcensusServer)

	ermw := middleware.Identity()
	if rc := cmdconfig.ReportingClient(ctx, cfg); rc != nil {
		ermw = middleware.ErrorReporting(rc.Report)
	}
	mw := middleware.Chain(
		middleware.RequestLog(cmdconfig.Logger(ctx, cfg, "ballet-log")),
		middleware.AcceptRequests(cfg.MaxBodySize, http.MethodGet, http.MethodPost),
		cmdconfig.Quota(cfg, redisClient),
		middleware.Panic(nil),
		ermw,
		// Leave room for transcoding and framing after the render deadline.
		timeout.Timeout(cfg.RenderTimeout+cfg.RenderTimeout/2),
	)
	addr := cfg.HostAddr(*hostAddr)
	log.Infof(ctx, "Listening on addr %s", addr)
	log.Fatal(ctx, http.ListenAndServe(addr, mw(router)))
}
