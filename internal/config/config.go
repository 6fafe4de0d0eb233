// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the resolved configuration of a gateway process.
// Values are populated by the serverconfig package.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	// BypassQuotaAuthHeader is the header key used by trusted clients to
	// skip quota enforcement. Its value must be one of Quota.AuthValues.
	BypassQuotaAuthHeader = "X-Ballet-Bypass-Quota"

	// AppVersionFormat is the expected format of the app version label.
	AppVersionFormat = "20060102t150405"
)

// Config holds shared configuration values used in instantiating our server
// components.
type Config struct {
	// Port and DebugPort are used to serve the gateway and the debug
	// server. An empty value selects the caller's default.
	Port, DebugPort string

	// GCP identity. These are empty when running locally.
	ProjectID, ServiceID, VersionID, InstanceID, ZoneID string

	// FallbackVersionLabel is used as the VersionLabel when not hosting on
	// GCP.
	FallbackVersionLabel string

	// RedisHost and RedisPort locate the redis instance backing the image
	// cache and the quota limiter. An empty host disables both.
	RedisHost, RedisPort string
	// RedisSecret names the Secret Manager secret holding the redis
	// password.
	RedisSecret   string
	RedisPassword string `json:"-"`

	Quota QuotaSettings

	// RenderTimeout bounds a single page render, including image fetches.
	RenderTimeout time.Duration

	// Viewport and identity used when a request does not supply them.
	Width, Height int
	UserAgent     string

	// Image cache settings. ImageCacheBytes bounds the in-process cache
	// used when redis is not configured.
	ImageCacheTTL   time.Duration
	ImageCacheBytes int64

	// MaxBodySize bounds the size of an incoming OBML request body.
	MaxBodySize int64
	// MaxPageBytes and MaxImageBytes bound upstream response bodies.
	MaxPageBytes, MaxImageBytes int64
	// ImageFetchers is the number of concurrent image downloads per page.
	ImageFetchers int

	LogLevel              string
	UseProfiler           bool
	DisableErrorReporting bool

	// OverrideLocation is the path or gs:// URL of an optional YAML file
	// with configuration overrides.
	OverrideLocation string

	MonitoredResource *MonitoredResource `json:"-"`
}

// QuotaSettings is config for internal/middleware/quota.go.
type QuotaSettings struct {
	Enable bool
	// QPS is the number of requests per second allowed for a block of IPs.
	QPS int
	// Burst is the maximum burst of the in-process limiter. The redis
	// limiter ignores it.
	Burst int
	// MaxEntries is the maximum number of IP blocks tracked by the
	// in-process limiter.
	MaxEntries int
	// RecordOnly means record data about quota, but do not enforce it.
	RecordOnly *bool
	// AuthValues is the set of values that can be set on
	// BypassQuotaAuthHeader to bypass the quota.
	AuthValues []string
	// HMACKey is used to hash IP addresses before they are stored in redis.
	HMACKey []byte `json:"-" yaml:"-"`
}

// MonitoredResource represents the resource that the process is running on.
type MonitoredResource struct {
	Type   string            `yaml:"type"`
	Labels map[string]string `yaml:"labels"`
}

// AppVersionLabel returns the version label for the current instance. This
// is the VersionID if available, otherwise a string constructed using the
// timestamp of process start.
func (c *Config) AppVersionLabel() string {
	if c.VersionID != "" {
		return c.VersionID
	}
	return c.FallbackVersionLabel
}

// OnGCP reports whether the process was configured for a GCP runtime.
func (c *Config) OnGCP() bool {
	return c.MonitoredResource != nil && c.MonitoredResource.Type != "global"
}

// HostAddr returns the network address on which to serve the gateway.
func (c *Config) HostAddr(dflt string) string {
	if c.Port != "" {
		return fmt.Sprintf(":%s", c.Port)
	}
	return dflt
}

// DebugAddr returns the network address on which to serve debugging
// information.
func (c *Config) DebugAddr(dflt string) string {
	if c.DebugPort != "" {
		return fmt.Sprintf(":%s", c.DebugPort)
	}
	return dflt
}

// RedisAddr returns the address of the redis instance, or the empty string
// if none is configured.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return c.RedisHost + ":" + c.RedisPort
}

// DeploymentEnvironment returns the deployment environment this process is
// in: usually one of "local", "exp", "dev", "staging" or "prod".
func (c *Config) DeploymentEnvironment() string {
	if c.ServiceID == "" {
		return "local"
	}
	before, _, found := strings.Cut(c.ServiceID, "-")
	if !found {
		return "prod"
	}
	if before == "" {
		return "unknownEnv"
	}
	return before
}

// Dump outputs the current config information to the given Writer.
// Secrets are omitted.
func (c *Config) Dump(w io.Writer) error {
	fmt.Fprint(w, "config: ")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(c)
}
