// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package serverconfig

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/ballet-proxy/ballet/internal/config"
	"github.com/ballet-proxy/ballet/internal/config/dynconfig"
	"github.com/google/go-cmp/cmp"
)

func TestValidateAppVersion(t *testing.T) {
	for _, test := range []struct {
		in      string
		wantErr bool
	}{
		{"", true},
		{"20190912t130708", false},
		{"20190912t130708x", true},
		{"2019-09-12t13-07-0400", false},
		{"2019-09-12t13070400", true},
		{"2019-09-11t22-14-0400-2f4680648b319545c55c6149536f0a74527901f6", false},
		{"gcr.io/ballet/gateway:abc", false},
	} {
		err := ValidateAppVersion(test.in)
		if (err != nil) != test.wantErr {
			t.Errorf("ValidateAppVersion(%q) = %v, want error = %t", test.in, err, test.wantErr)
		}
	}
}

func TestChooseOne(t *testing.T) {
	tests := []struct {
		configVar   string
		wantMatches string
	}{
		{"", "^$"},
		{"foo", "foo"},
		{"foo1 \n foo2", "^foo[12]$"},
		{"foo1\nfoo2", "^foo[12]$"},
		{"foo1 foo2", "^foo[12]$"},
	}
	for _, test := range tests {
		got := chooseOne(test.configVar)
		matched, err := regexp.MatchString(test.wantMatches, got)
		if err != nil {
			t.Fatal(err)
		}
		if !matched {
			t.Errorf("chooseOne(%q) = %q, _, want matches %q", test.configVar, got, test.wantMatches)
		}
	}
}

func TestProcessOverrides(t *testing.T) {
	tr := true
	f := false
	cfg := config.Config{
		RenderTimeout: 30 * time.Second,
		UserAgent:     "orig",
		Quota:         config.QuotaSettings{QPS: 1, Burst: 2, MaxEntries: 3, RecordOnly: &tr},
	}
	ov, err := dynconfig.Parse([]byte(`
        RenderTimeout: 10s
        Quota:
           MaxEntries: 17
           RecordOnly: false
    `))
	if err != nil {
		t.Fatal(err)
	}
	processOverrides(context.Background(), &cfg, ov)
	want := config.Config{
		RenderTimeout: 10 * time.Second,
		UserAgent:     "orig",
		Quota:         config.QuotaSettings{QPS: 1, Burst: 2, MaxEntries: 17, RecordOnly: &f},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("mismatch (-want, +got):\n%s", diff)
	}
}

func TestParseCommaList(t *testing.T) {
	for _, test := range []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"foo", []string{"foo"}},
		{"foo,bar", []string{"foo", "bar"}},
		{" foo, bar ", []string{"foo", "bar"}},
		{",, ,foo ,  , bar,,,", []string{"foo", "bar"}},
	} {
		got := parseCommaList(test.in)
		if !cmp.Equal(got, test.want) {
			t.Errorf("%q: got %#v, want %#v", test.in, got, test.want)
		}
	}
}

func TestGetEnv(t *testing.T) {
	ctx := context.Background()
	t.Setenv("BALLET_TEST_STR", "x")
	t.Setenv("BALLET_TEST_INT", "42")
	t.Setenv("BALLET_TEST_DUR", "1m30s")
	if got := GetEnv("BALLET_TEST_STR", "y"); got != "x" {
		t.Errorf("GetEnv = %q, want %q", got, "x")
	}
	if got := GetEnv("BALLET_TEST_UNSET", "y"); got != "y" {
		t.Errorf("GetEnv fallback = %q, want %q", got, "y")
	}
	if got := GetEnvInt(ctx, "BALLET_TEST_INT", 1); got != 42 {
		t.Errorf("GetEnvInt = %d, want 42", got)
	}
	if got := GetEnvDuration(ctx, "BALLET_TEST_DUR", time.Second); got != 90*time.Second {
		t.Errorf("GetEnvDuration = %v, want 1m30s", got)
	}
	if got := GetEnvDuration(ctx, "BALLET_TEST_UNSET", time.Second); got != time.Second {
		t.Errorf("GetEnvDuration fallback = %v, want 1s", got)
	}
}

func clearGCPEnv(t *testing.T) {
	for _, ev := range []string{"K_SERVICE", "K_REVISION", "K_CONFIGURATION", "GO_BALLET_ON_GKE", "GO_BALLET_CONFIG_BUCKET", "GO_BALLET_REDIS_SECRET", "GO_BALLET_ENABLE_QUOTA"} {
		t.Setenv(ev, "")
	}
}

func TestInitLocal(t *testing.T) {
	clearGCPEnv(t)
	override := filepath.Join(t.TempDir(), "override.yaml")
	if err := os.WriteFile(override, []byte("UserAgent: overridden\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "9000")
	t.Setenv("GO_BALLET_REDIS_HOST", "redis1")
	t.Setenv("GO_BALLET_RENDER_TIMEOUT", "5s")
	t.Setenv("GO_BALLET_WIDTH", "176")
	t.Setenv("GO_BALLET_AUTH_VALUES", "a, b")
	t.Setenv("GO_BALLET_CONFIG_OVERRIDE", override)

	cfg, err := Init(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := cfg.HostAddr(":8080"), ":9000"; got != want {
		t.Errorf("HostAddr = %q, want %q", got, want)
	}
	if got, want := cfg.RedisAddr(), "redis1:6379"; got != want {
		t.Errorf("RedisAddr = %q, want %q", got, want)
	}
	if cfg.RenderTimeout != 5*time.Second {
		t.Errorf("RenderTimeout = %v, want 5s", cfg.RenderTimeout)
	}
	if cfg.Width != 176 {
		t.Errorf("Width = %d, want 176", cfg.Width)
	}
	if diff := cmp.Diff([]string{"a", "b"}, cfg.Quota.AuthValues); diff != "" {
		t.Errorf("AuthValues mismatch (-want +got):\n%s", diff)
	}
	if cfg.UserAgent != "overridden" {
		t.Errorf("UserAgent = %q, want override applied", cfg.UserAgent)
	}
	if cfg.MonitoredResource == nil || cfg.MonitoredResource.Type != "global" {
		t.Errorf("MonitoredResource = %+v, want global", cfg.MonitoredResource)
	}
}

func TestInitQuotaKey(t *testing.T) {
	clearGCPEnv(t)
	t.Setenv("GO_BALLET_CONFIG_OVERRIDE", "")
	t.Setenv("GO_BALLET_ENABLE_QUOTA", "true")

	t.Setenv("GO_BALLET_QUOTA_HMAC_KEY", "00112233445566778899aabbccddeeff")
	cfg, err := Init(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Quota.HMACKey) != 16 {
		t.Errorf("len(HMACKey) = %d, want 16", len(cfg.Quota.HMACKey))
	}

	t.Setenv("GO_BALLET_QUOTA_HMAC_KEY", "0011")
	if _, err := Init(context.Background()); err == nil {
		t.Error("short key: got nil, want error")
	}
}

func TestGCEMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Metadata-Flavor") != "Google" {
			http.Error(w, "missing header", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, "projects/1/zones/us-central1-a")
	}))
	defer srv.Close()
	defer func(u string) { metadataURL = u }(metadataURL)
	metadataURL = srv.URL + "/"

	got, err := gceMetadata(context.Background(), "instance/zone")
	if err != nil {
		t.Fatal(err)
	}
	if want := "projects/1/zones/us-central1-a"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
