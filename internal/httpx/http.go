// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpx provides a simpler http.Client abstraction and derivative uses.
package httpx

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/tagscout/tagscout/internal/cache"
	"github.com/tagscout/tagscout/internal/logx"
	"github.com/tagscout/tagscout/internal/ratex"
)

// BasicClient is a simpler http.Client that only requires a Do method.
type BasicClient interface {
	Do(*http.Request) (*http.Response, error)
}

var _ BasicClient = http.DefaultClient

// WithUserAgent is a basic HTTP client that adds a User-Agent header.
type WithUserAgent struct {
	BasicClient
	UserAgent string
}

var _ BasicClient = &WithUserAgent{}

// Do adds the User-Agent header and sends the request.
func (c *WithUserAgent) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.UserAgent)
	return c.BasicClient.Do(req)
}

// WithHeaders is a basic HTTP client that adds a fixed set of headers, used
// for per-host authentication tokens.
type WithHeaders struct {
	BasicClient
	Header http.Header
}

var _ BasicClient = &WithHeaders{}

// Do adds the configured headers and sends the request.
func (c *WithHeaders) Do(req *http.Request) (*http.Response, error) {
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	return c.BasicClient.Do(req)
}

// ResponseStore is the cache surface the conditional client needs: entry
// access that distinguishes live from expired, plus TTL'd writes.
// *cache.DirCache implements it.
type ResponseStore interface {
	GetEntry(key string) (*cache.Entry, error)
	SetBytes(key string, val []byte, ttl time.Duration) error
}

// CachedClient caches whole GET/HEAD responses and revalidates expired
// entries with If-None-Match / If-Modified-Since. A 304 serves the cached
// body. Entry lifetime honors the upstream Expires header when present.
type CachedClient struct {
	BasicClient
	Store ResponseStore
	// DefaultTTL is applied when the response carries no Expires header.
	DefaultTTL time.Duration
}

// NewCachedClient returns a new CachedClient.
func NewCachedClient(client BasicClient, store ResponseStore) *CachedClient {
	return &CachedClient{BasicClient: client, Store: store, DefaultTTL: time.Hour}
}

var _ BasicClient = &CachedClient{}

func readStored(b []byte, req *http.Request) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), req)
}

// Do serves from cache when fresh, revalidates when expired, and falls back
// to the wrapped client otherwise. Cache keys are request URLs: token headers
// deliberately do not vary the key.
func (cc *CachedClient) Do(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return cc.BasicClient.Do(req)
	}
	key := req.URL.String()
	entry, err := cc.Store.GetEntry(key)
	if err == nil && !entry.Expired() {
		return readStored(entry.Value, req)
	}
	if err == nil {
		// Expired: revalidate against the stored response's validators.
		if stored, rerr := readStored(entry.Value, req); rerr == nil {
			if etag := stored.Header.Get("ETag"); etag != "" {
				req.Header.Set("If-None-Match", etag)
			}
			if lm := stored.Header.Get("Last-Modified"); lm != "" {
				req.Header.Set("If-Modified-Since", lm)
			}
			stored.Body.Close()
		}
	} else if err != cache.ErrNotExist {
		return nil, err
	}
	resp, err := cc.BasicClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotModified && entry != nil {
		logx.Debugf("revalidated %s from cache", key)
		resp.Body.Close()
		// Refresh the entry lifetime from the 304's headers.
		cc.Store.SetBytes(key, entry.Value, cc.ttlFor(resp))
		return readStored(entry.Value, req)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if err := resp.Write(&buf); err != nil {
		return nil, err
	}
	// Only successes are worth replaying; an error response must reach the
	// origin (and its rate-limit handling) on every attempt.
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		cc.Store.SetBytes(key, buf.Bytes(), cc.ttlFor(resp))
	}
	return readStored(buf.Bytes(), req)
}

func (cc *CachedClient) ttlFor(resp *http.Response) time.Duration {
	if exp := resp.Header.Get("Expires"); exp != "" {
		if t, err := http.ParseTime(exp); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}
	return cc.DefaultTTL
}

// RetryClient retries transport-level failures, pacing attempts with a
// backoff limiter.
type RetryClient struct {
	BasicClient
	Limiter *ratex.BackoffLimiter
	// MaxRetries counts retries after the first attempt.
	MaxRetries int
}

// NewRetryClient returns a RetryClient with the conventional 5 retries.
func NewRetryClient(client BasicClient) *RetryClient {
	return &RetryClient{
		BasicClient: client,
		Limiter:     ratex.NewBackoffLimiter(500 * time.Millisecond),
		MaxRetries:  5,
	}
}

var _ BasicClient = &RetryClient{}

// Do sends the request, retrying transport errors. HTTP error statuses are
// not retried here.
func (c *RetryClient) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.BasicClient.Do(req)
	for attempt := 0; err != nil && attempt < c.MaxRetries; attempt++ {
		if req.Body != nil && req.GetBody == nil {
			break // cannot replay
		}
		logx.Warnf("retrying %s after transport error: %v", req.URL, err)
		c.Limiter.Backoff()
		if werr := c.Limiter.Wait(req.Context()); werr != nil {
			return nil, werr
		}
		if req.Body != nil {
			if req.Body, err = req.GetBody(); err != nil {
				return nil, err
			}
		}
		resp, err = c.BasicClient.Do(req)
	}
	if err == nil {
		c.Limiter.Success()
	}
	return resp, err
}

// RateLimitAwareClient handles API rate-limit responses: a 403 carrying
// X-RateLimit-Remaining: 0 with a reset within resetHorizon sleeps until the
// reset and retries, up to MaxWaits consecutive times. Other 403s pass
// through to the caller.
type RateLimitAwareClient struct {
	BasicClient
	// MaxWaits caps consecutive rate-limit sleeps.
	MaxWaits int
	// now/sleep are test seams.
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

const resetHorizon = 5 * time.Minute

// NewRateLimitAwareClient returns a client with the conventional cap of 3.
func NewRateLimitAwareClient(client BasicClient) *RateLimitAwareClient {
	return &RateLimitAwareClient{BasicClient: client, MaxWaits: 3, now: time.Now, sleep: sleepCtx}
}

var _ BasicClient = &RateLimitAwareClient{}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do sends the request, sleeping through near-term rate-limit resets.
func (c *RateLimitAwareClient) Do(req *http.Request) (*http.Response, error) {
	for waits := 0; ; waits++ {
		resp, err := c.BasicClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusForbidden || waits >= c.MaxWaits {
			return resp, nil
		}
		if resp.Header.Get("X-RateLimit-Remaining") != "0" {
			return resp, nil
		}
		resetUnix, perr := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)
		if perr != nil {
			return resp, nil
		}
		until := time.Unix(resetUnix, 0).Sub(c.now())
		if until > resetHorizon {
			return resp, nil
		}
		resp.Body.Close()
		logx.Warnf("rate limited on %s, sleeping %s until reset", req.URL.Host, until+time.Second)
		if err := c.sleep(req.Context(), until+time.Second); err != nil {
			return nil, err
		}
	}
}
