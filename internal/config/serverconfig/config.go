// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package serverconfig resolves configuration for the gateway from the
// process environment and GCP services.
package serverconfig

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/ballet-proxy/ballet/internal/config"
	"github.com/ballet-proxy/ballet/internal/config/dynconfig"
	"github.com/ballet-proxy/ballet/internal/derrors"
	"github.com/ballet-proxy/ballet/internal/log"
	"github.com/ballet-proxy/ballet/internal/secrets"
	"golang.org/x/net/context/ctxhttp"
)

// GetEnv looks up the given key from the environment, returning its value if
// it exists, and otherwise returning the given fallback value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetEnvInt looks up the given key from the environment and expects an integer,
// returning the integer value if it exists, and otherwise returning the given
// fallback value.
// If the environment variable has a value but it can't be parsed as an integer,
// GetEnvInt terminates the program.
func GetEnvInt(ctx context.Context, key string, fallback int) int {
	if s, ok := os.LookupEnv(key); ok {
		v, err := strconv.Atoi(s)
		if err != nil {
			log.Fatalf(ctx, "bad value %q for %s: %v", s, key, err)
		}
		return v
	}
	return fallback
}

// GetEnvDuration is like GetEnvInt for values parsed by time.ParseDuration.
func GetEnvDuration(ctx context.Context, key string, fallback time.Duration) time.Duration {
	if s, ok := os.LookupEnv(key); ok {
		v, err := time.ParseDuration(s)
		if err != nil {
			log.Fatalf(ctx, "bad value %q for %s: %v", s, key, err)
		}
		return v
	}
	return fallback
}

// ValidateAppVersion validates that appVersion follows the expected format
// defined by AppVersionFormat.
func ValidateAppVersion(appVersion string) error {
	// Accept GKE versions, which start with the docker image name.
	if strings.HasPrefix(appVersion, "gcr.io/") {
		return nil
	}
	if _, err := time.Parse(config.AppVersionFormat, appVersion); err != nil {
		// Accept alternative version, used by the deployment script.
		const altDateFormat = "2006-01-02t15-04"
		if len(appVersion) > len(altDateFormat) {
			appVersion = appVersion[:len(altDateFormat)]
		}
		if _, err := time.Parse(altDateFormat, appVersion); err != nil {
			return fmt.Errorf("app version %q does not match time formats %q or %q: %v",
				appVersion, config.AppVersionFormat, altDateFormat, err)
		}
	}
	return nil
}

// OnGKE reports whether the current process is running on GKE.
func OnGKE() bool {
	return os.Getenv("GO_BALLET_ON_GKE") == "true"
}

// onCloudRun reports whether the current process is running on Cloud Run.
func onCloudRun() bool {
	// See https://cloud.google.com/run/docs/reference/container-contract.
	for _, ev := range []string{"K_SERVICE", "K_REVISION", "K_CONFIGURATION"} {
		if os.Getenv(ev) == "" {
			return false
		}
	}
	return true
}

// OnGCP reports whether the current process is running on Google Cloud
// Platform.
func OnGCP() bool {
	return OnGKE() || onCloudRun()
}

// Init resolves all configuration values provided by the config package. It
// must be called before any configuration values are used.
func Init(ctx context.Context) (_ *config.Config, err error) {
	defer derrors.Add(&err, "config.Init(ctx)")
	cfg := &config.Config{
		Port:      os.Getenv("PORT"),
		DebugPort: os.Getenv("DEBUG_PORT"),
		ProjectID: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		ServiceID: GetEnv("K_SERVICE", os.Getenv("GO_BALLET_SERVICE")),
		// Version ID from either Cloud Run or GKE (set by our own config).
		VersionID:            GetEnv("K_REVISION", os.Getenv("DOCKER_IMAGE")),
		InstanceID:           os.Getenv("GO_BALLET_INSTANCE"),
		FallbackVersionLabel: time.Now().Format(config.AppVersionFormat),
		RedisHost:            chooseOne(os.Getenv("GO_BALLET_REDIS_HOST")),
		RedisPort:            GetEnv("GO_BALLET_REDIS_PORT", "6379"),
		RedisSecret:          os.Getenv("GO_BALLET_REDIS_SECRET"),
		RedisPassword:        os.Getenv("GO_BALLET_REDIS_PASSWORD"),
		Quota: config.QuotaSettings{
			Enable:     os.Getenv("GO_BALLET_ENABLE_QUOTA") == "true",
			QPS:        GetEnvInt(ctx, "GO_BALLET_QUOTA_QPS", 10),
			Burst:      GetEnvInt(ctx, "GO_BALLET_QUOTA_BURST", 20),
			MaxEntries: GetEnvInt(ctx, "GO_BALLET_QUOTA_MAX_ENTRIES", 1000),
			RecordOnly: func() *bool {
				t := (os.Getenv("GO_BALLET_QUOTA_RECORD_ONLY") != "false")
				return &t
			}(),
			AuthValues: parseCommaList(os.Getenv("GO_BALLET_AUTH_VALUES")),
		},
		RenderTimeout:         GetEnvDuration(ctx, "GO_BALLET_RENDER_TIMEOUT", 30*time.Second),
		Width:                 GetEnvInt(ctx, "GO_BALLET_WIDTH", 0),
		Height:                GetEnvInt(ctx, "GO_BALLET_HEIGHT", 0),
		UserAgent:             os.Getenv("GO_BALLET_USER_AGENT"),
		ImageCacheTTL:         GetEnvDuration(ctx, "GO_BALLET_IMAGE_CACHE_TTL", 24*time.Hour),
		ImageCacheBytes:       int64(GetEnvInt(ctx, "GO_BALLET_IMAGE_CACHE_BYTES", 64<<20)),
		MaxBodySize:           int64(GetEnvInt(ctx, "GO_BALLET_MAX_BODY_SIZE", 10<<20)),
		MaxPageBytes:          int64(GetEnvInt(ctx, "GO_BALLET_MAX_PAGE_BYTES", 4<<20)),
		MaxImageBytes:         int64(GetEnvInt(ctx, "GO_BALLET_MAX_IMAGE_BYTES", 2<<20)),
		ImageFetchers:         GetEnvInt(ctx, "GO_BALLET_IMAGE_FETCHERS", 8),
		LogLevel:              os.Getenv("GO_BALLET_LOG_LEVEL"),
		UseProfiler:           os.Getenv("GO_BALLET_USE_PROFILER") == "true",
		DisableErrorReporting: os.Getenv("GO_BALLET_DISABLE_ERROR_REPORTING") == "true",
	}
	log.SetLevel(cfg.LogLevel)

	if bucket := os.Getenv("GO_BALLET_CONFIG_BUCKET"); bucket != "" {
		cfg.OverrideLocation = fmt.Sprintf("gs://%s/%s-override.yaml", bucket, cfg.DeploymentEnvironment())
	} else {
		cfg.OverrideLocation = os.Getenv("GO_BALLET_CONFIG_OVERRIDE")
	}
	if cfg.VersionID != "" {
		if err := ValidateAppVersion(cfg.VersionID); err != nil {
			log.Warning(ctx, err)
		}
	}

	if OnGCP() {
		// Zone is not available in the environment but can be queried via the metadata API.
		zone, err := gceMetadata(ctx, "instance/zone")
		if err != nil {
			return nil, err
		}
		cfg.ZoneID = zone
		switch {
		case onCloudRun():
			cfg.MonitoredResource = &config.MonitoredResource{
				Type: "cloud_run_revision",
				Labels: map[string]string{
					"project_id":         cfg.ProjectID,
					"service_name":       cfg.ServiceID,
					"revision_name":      cfg.VersionID,
					"configuration_name": os.Getenv("K_CONFIGURATION"),
				},
			}
		case OnGKE():
			cfg.MonitoredResource = &config.MonitoredResource{
				Type: "k8s_container",
				Labels: map[string]string{
					"project_id":     cfg.ProjectID,
					"location":       path.Base(cfg.ZoneID),
					"cluster_name":   cfg.DeploymentEnvironment() + "-ballet",
					"namespace_name": "default",
					"pod_name":       os.Getenv("HOSTNAME"),
					"container_name": "ballet",
				},
			}
		}
		if cfg.InstanceID == "" {
			id, err := gceMetadata(ctx, "instance/id")
			if err != nil {
				return nil, fmt.Errorf("getting instance ID: %v", err)
			}
			cfg.InstanceID = id
		}
	} else { // running locally, perhaps
		cfg.MonitoredResource = &config.MonitoredResource{
			Type:   "global",
			Labels: map[string]string{"project_id": cfg.ProjectID},
		}
	}

	if cfg.RedisSecret != "" {
		cfg.RedisPassword, err = secrets.Get(ctx, cfg.RedisSecret)
		if err != nil {
			return nil, fmt.Errorf("could not get redis password secret: %v", err)
		}
	}
	if cfg.Quota.Enable {
		if err := setHMACKey(ctx, cfg); err != nil {
			return nil, err
		}
		log.Debugf(ctx, "quota enforcement enabled: qps=%d burst=%d maxentry=%d", cfg.Quota.QPS, cfg.Quota.Burst, cfg.Quota.MaxEntries)
	} else {
		log.Debugf(ctx, "quota enforcement disabled")
	}

	// The override file provides values for selected configuration.
	// Use this when you want to fix something in prod quickly, without waiting
	// to re-deploy.
	if cfg.OverrideLocation != "" {
		dc, err := dynconfig.Read(ctx, cfg.OverrideLocation)
		if err != nil {
			log.Error(ctx, err)
		} else {
			log.Infof(ctx, "processing overrides from %s", cfg.OverrideLocation)
			processOverrides(ctx, cfg, dc)
		}
	}
	return cfg, nil
}

// setHMACKey reads the quota key from GO_BALLET_QUOTA_HMAC_KEY, or from
// Secret Manager when that is unset.
func setHMACKey(ctx context.Context, cfg *config.Config) error {
	s := os.Getenv("GO_BALLET_QUOTA_HMAC_KEY")
	if s == "" {
		var err error
		s, err = secrets.Get(ctx, "quota-hmac-key")
		if err != nil {
			return err
		}
	}
	hmacKey, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(hmacKey) < 16 {
		return errors.New("HMAC secret must be at least 16 bytes")
	}
	cfg.Quota.HMACKey = hmacKey
	return nil
}

func processOverrides(ctx context.Context, cfg *config.Config, ov *dynconfig.DynamicConfig) {
	override(ctx, "RenderTimeout", &cfg.RenderTimeout, ov.RenderTimeout)
	override(ctx, "UserAgent", &cfg.UserAgent, ov.UserAgent)
	override(ctx, "ImageCacheTTL", &cfg.ImageCacheTTL, ov.ImageCacheTTL)
	override(ctx, "Quota.QPS", &cfg.Quota.QPS, ov.Quota.QPS)
	override(ctx, "Quota.Burst", &cfg.Quota.Burst, ov.Quota.Burst)
	override(ctx, "Quota.MaxEntries", &cfg.Quota.MaxEntries, ov.Quota.MaxEntries)
	override(ctx, "Quota.RecordOnly", &cfg.Quota.RecordOnly, ov.Quota.RecordOnly)
}

func override[T comparable](ctx context.Context, name string, field *T, val T) {
	var zero T
	if val != zero {
		*field = val
		log.Infof(ctx, "overriding %s with %v", name, val)
	}
}

// chooseOne selects one entry at random from a whitespace-separated
// string. It returns the empty string if there are no elements.
func chooseOne(configVar string) string {
	fields := strings.Fields(configVar)
	if len(fields) == 0 {
		return ""
	}
	src := rand.NewSource(time.Now().UnixNano())
	rng := rand.New(src)
	return fields[rng.Intn(len(fields))]
}

// metadataURL is a var for testing.
var metadataURL = "http://metadata.google.internal/computeMetadata/v1/"

// gceMetadata reads a metadata value from GCE.
func gceMetadata(ctx context.Context, name string) (_ string, err error) {
	defer derrors.Wrap(&err, "gceMetadata(ctx, %q)", name)

	req, err := http.NewRequest("GET", metadataURL+name, nil)
	if err != nil {
		return "", fmt.Errorf("http.NewRequest: %v", err)
	}
	req.Header.Set("Metadata-Flavor", "Google")
	resp, err := ctxhttp.Do(ctx, nil, req)
	if err != nil {
		return "", fmt.Errorf("ctxhttp.Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bad status: %s", resp.Status)
	}
	bytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("io.ReadAll: %v", err)
	}
	return string(bytes), nil
}

func parseCommaList(s string) []string {
	var a []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			a = append(a, p)
		}
	}
	return a
}
