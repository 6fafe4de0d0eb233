// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"strings"
	"testing"
)

func TestDeploymentEnvironment(t *testing.T) {
	for _, test := range []struct {
		serviceID string
		want      string
	}{
		{"ballet", "prod"},
		{"exp-ballet", "exp"},
		{"-ballet", "unknownEnv"},
		{"", "local"},
	} {
		cfg := &Config{ServiceID: test.serviceID}
		if got := cfg.DeploymentEnvironment(); got != test.want {
			t.Errorf("%q: got %q, want %q", test.serviceID, got, test.want)
		}
	}
}

func TestAddrs(t *testing.T) {
	cfg := &Config{}
	if got := cfg.HostAddr(":8080"); got != ":8080" {
		t.Errorf("HostAddr default = %q", got)
	}
	if got := cfg.DebugAddr(":8081"); got != ":8081" {
		t.Errorf("DebugAddr default = %q", got)
	}
	if got := cfg.RedisAddr(); got != "" {
		t.Errorf("RedisAddr = %q, want empty", got)
	}
	cfg = &Config{Port: "1", DebugPort: "2", RedisHost: "h", RedisPort: "3"}
	if got := cfg.HostAddr(":8080"); got != ":1" {
		t.Errorf("HostAddr = %q", got)
	}
	if got := cfg.DebugAddr(":8081"); got != ":2" {
		t.Errorf("DebugAddr = %q", got)
	}
	if got := cfg.RedisAddr(); got != "h:3" {
		t.Errorf("RedisAddr = %q", got)
	}
}

func TestAppVersionLabel(t *testing.T) {
	cfg := &Config{FallbackVersionLabel: "fallback"}
	if got := cfg.AppVersionLabel(); got != "fallback" {
		t.Errorf("got %q, want fallback", got)
	}
	cfg.VersionID = "v1"
	if got := cfg.AppVersionLabel(); got != "v1" {
		t.Errorf("got %q, want v1", got)
	}
}

func TestDumpOmitsSecrets(t *testing.T) {
	cfg := &Config{
		RedisPassword: "hunter2",
		Quota:         QuotaSettings{HMACKey: []byte("secret-key-bytes")},
		UserAgent:     "agent",
	}
	var buf bytes.Buffer
	if err := cfg.Dump(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `"UserAgent": "agent"`) {
		t.Errorf("Dump missing UserAgent:\n%s", out)
	}
	for _, s := range []string{"hunter2", "HMACKey", "RedisPassword"} {
		if strings.Contains(out, s) {
			t.Errorf("Dump contains %q:\n%s", s, out)
		}
	}
}
