// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cmdconfig contains functions for configuring commands.
package cmdconfig

import (
	"context"
	"time"

	"cloud.google.com/go/errorreporting"
	"cloud.google.com/go/logging"
	"github.com/ballet-proxy/ballet/internal/cache"
	"github.com/ballet-proxy/ballet/internal/config"
	"github.com/ballet-proxy/ballet/internal/imaging"
	"github.com/ballet-proxy/ballet/internal/log"
	"github.com/ballet-proxy/ballet/internal/log/stackdriverlogger"
	"github.com/ballet-proxy/ballet/internal/middleware"
	"github.com/go-redis/redis/v8"
	mrpb "google.golang.org/genproto/googleapis/api/monitoredres"
)

// Logger configures a middleware.Logger. On GCP, in-request logging is
// also redirected to Cloud Logging.
func Logger(ctx context.Context, cfg *config.Config, logName string) middleware.Logger {
	if !cfg.OnGCP() {
		return middleware.LocalLogger{}
	}
	opts := []logging.LoggerOption{logging.CommonLabels(map[string]string{
		"version": cfg.AppVersionLabel(),
	})}
	if mr := cfg.MonitoredResource; mr != nil {
		opts = append(opts, logging.CommonResource(&mrpb.MonitoredResource{
			Type:   mr.Type,
			Labels: mr.Labels,
		}))
	}
	child, parent, err := stackdriverlogger.New(ctx, logName, cfg.ProjectID, opts)
	if err != nil {
		log.Fatal(ctx, err)
	}
	log.Use(child)
	return parent
}

// ReportingClient configures an Error Reporting client.
func ReportingClient(ctx context.Context, cfg *config.Config) *errorreporting.Client {
	if !cfg.OnGCP() || cfg.DisableErrorReporting {
		return nil
	}
	reporter, err := errorreporting.NewClient(ctx, cfg.ProjectID, errorreporting.Config{
		ServiceName:    cfg.ServiceID,
		ServiceVersion: cfg.AppVersionLabel(),
		OnError: func(err error) {
			log.Errorf(ctx, "Error reporting failed: %v", err)
		},
	})
	if err != nil {
		log.Fatal(ctx, err)
	}
	return reporter
}

// RedisClient connects to the configured redis instance. It returns nil if
// none is configured. A failed ping is logged; the client is still
// returned so that it can reconnect later.
func RedisClient(ctx context.Context, cfg *config.Config) *redis.Client {
	addr := cfg.RedisAddr()
	if addr == "" {
		return nil
	}
	c := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.RedisPassword,
		DialTimeout: 2 * time.Second,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		log.Errorf(ctx, "redis at %s: %v", addr, err)
	} else {
		log.Infof(ctx, "connected to redis at %s", addr)
	}
	return c
}

// ImageCachePrefix prefixes the redis keys of cached images.
const ImageCachePrefix = "ballet-img:"

// ImageStore selects where transcoded images are kept: redis when a client
// is available, otherwise an in-process cache.
func ImageStore(cfg *config.Config, rc *redis.Client) imaging.Store {
	if rc != nil {
		return cache.New(rc, ImageCachePrefix, cfg.ImageCacheTTL)
	}
	return imaging.NewMemory(cfg.ImageCacheBytes)
}

// Quota selects the quota middleware: the redis limiter when a client is
// available, otherwise the in-process one.
func Quota(cfg *config.Config, rc *redis.Client) middleware.Middleware {
	if rc != nil {
		return middleware.Quota(cfg.Quota, rc)
	}
	return middleware.LegacyQuota(cfg.Quota)
}
