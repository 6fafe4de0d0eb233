// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"io"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ballet-proxy/ballet/internal/config"
	"github.com/ballet-proxy/ballet/internal/log"
	"github.com/go-redis/redis/v8"
	rrate "github.com/go-redis/redis_rate/v9"
	"github.com/golang/groupcache/lru"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
	"golang.org/x/time/rate"
)

var (
	keyQuotaResult = tag.MustNewKey("quota.result")
	quotaResults   = stats.Int64(
		"ballet/quota_result_count",
		"The result of a quota check.",
		stats.UnitDimensionless,
	)
	// QuotaResultCount is a counter of quota results, by outcome.
	QuotaResultCount = &view.View{
		Name:        "ballet/quota/result_count",
		Measure:     quotaResults,
		Aggregation: view.Count(),
		Description: "quota results, by outcome",
		TagKeys:     []tag.Key{keyQuotaResult},
	}
)

// A quotaCheck decides whether the client named by an X-Forwarded-For
// style header is over quota. The reason is recorded as a metric.
type quotaCheck func(ctx context.Context, header string) (blocked bool, reason string)

// quota builds the middleware shared by Quota and LegacyQuota. Requests are
// let through when quota is disabled or the bypass header carries one of
// the configured values. Blocked requests are served a 429 (Too Many
// Requests) unless settings.RecordOnly is set.
func quota(settings config.QuotaSettings, check quotaCheck) Middleware {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !settings.Enable {
				recordQuotaMetric(ctx, "disabled")
				h.ServeHTTP(w, r)
				return
			}
			if authVal := r.Header.Get(config.BypassQuotaAuthHeader); authVal != "" && slices.Contains(settings.AuthValues, authVal) {
				recordQuotaMetric(ctx, "bypassed")
				log.Infof(ctx, "Quota: accepting %q", authVal)
				h.ServeHTTP(w, r)
				return
			}
			blocked, reason := check(ctx, forwardedFor(r))
			recordQuotaMetric(ctx, reason)
			if blocked && settings.RecordOnly != nil && !*settings.RecordOnly {
				const tmr = http.StatusTooManyRequests
				http.Error(w, http.StatusText(tmr), tmr)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}

// LegacyQuota implements an in-process IP-based rate limiter, used when no
// redis instance is configured. Each set of incoming IP addresses with the
// same low-order byte gets settings.QPS requests per second, with
// settings.Burst. Limiters are kept in an LRU cache of size
// settings.MaxEntries.
func LegacyQuota(settings config.QuotaSettings) Middleware {
	var mu sync.Mutex
	cache := lru.New(settings.MaxEntries)

	return quota(settings, func(ctx context.Context, header string) (bool, string) {
		// Fail open if the header is missing or can't be parsed.
		if header == "" {
			return false, "no header"
		}
		key := ipKey(header)
		if key == "" {
			return false, "bad header"
		}
		mu.Lock()
		var limiter *rate.Limiter
		if v, ok := cache.Get(key); ok {
			limiter = v.(*rate.Limiter)
		} else {
			limiter = rate.NewLimiter(rate.Limit(settings.QPS), settings.Burst)
			cache.Add(key, limiter)
		}
		mu.Unlock()
		if !limiter.Allow() {
			return true, "blocked"
		}
		return false, "allowed"
	})
}

// Quota implements an IP-based rate limiter backed by redis. Each set of
// incoming IP addresses with the same low-order byte gets settings.QPS
// requests per second. Keys are HMAC'd with settings.HMACKey so that no
// addresses are stored.
func Quota(settings config.QuotaSettings, client *redis.Client) Middleware {
	return quota(settings, func(ctx context.Context, header string) (bool, string) {
		return enforceQuota(ctx, client, settings.QPS, header, settings.HMACKey)
	})
}

// forwardedFor returns the client address chain of r, or the connection's
// remote address when there is no X-Forwarded-For header.
func forwardedFor(r *http.Request) string {
	if h := r.Header.Get("X-Forwarded-For"); h != "" {
		return h
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return host
}

func recordQuotaMetric(ctx context.Context, result string) {
	stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(keyQuotaResult, result),
	}, quotaResults.M(1))
}

func ipKey(s string) string {
	fields := strings.SplitN(s, ",", 2)
	// First field is the originating IP address.
	origin := strings.TrimSpace(fields[0])
	ip := net.ParseIP(origin)
	if ip == nil {
		return ""
	}
	// Zero out last byte, to cover ranges of IPv4 addresses.
	ip[len(ip)-1] = 0
	return ip.String()
}

func enforceQuota(ctx context.Context, client *redis.Client, qps int, header string, hmacKey []byte) (blocked bool, reason string) {
	// Fail open if header is missing or can't be parsed.
	if header == "" {
		return false, "no header"
	}
	key := ipKey(header)
	if key == "" {
		return false, "bad header"
	}
	mac := hmac.New(sha256.New, hmacKey)
	io.WriteString(mac, key)
	rrateKey := string(mac.Sum(nil))
	res, err := rrate.NewLimiter(client.WithTimeout(15*time.Millisecond)).Allow(ctx, rrateKey, rrate.PerSecond(qps))
	if err != nil {
		var nerr *net.OpError
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
			log.Warningf(ctx, "quota: redis limiter: %v", err)
			return false, "timeout"
		}
		log.Errorf(ctx, "quota: redis limiter: %v", err)
		return false, "error"
	}
	if res.Allowed > 0 {
		return false, "allowed"
	}
	return true, "blocked"
}
