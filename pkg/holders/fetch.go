// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	neturl "net/url"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/tagscout/tagscout/internal/httpx"
)

var (
	respMu    sync.RWMutex
	responses httpx.ResponseStore
)

// SetResponseStore installs the shared conditional-response cache that
// default adapter clients revalidate against. A nil store disables it.
func SetResponseStore(s httpx.ResponseStore) {
	respMu.Lock()
	defer respMu.Unlock()
	responses = s
}

func responseStore() httpx.ResponseStore {
	respMu.RLock()
	defer respMu.RUnlock()
	return responses
}

// get issues a GET and returns the response without status inspection.
func get(ctx context.Context, c httpx.BasicClient, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// getJSON fetches url and decodes a 200 response into v.
func getJSON(ctx context.Context, c httpx.BasicClient, url string, v any) error {
	resp, err := get(ctx, c, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return statusError(url, resp)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// getBytes fetches url and returns the body of a 200 response.
func getBytes(ctx context.Context, c httpx.BasicClient, url string) ([]byte, error) {
	resp, err := get(ctx, c, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, statusError(url, resp)
	}
	return io.ReadAll(resp.Body)
}

// statusError turns a non-200 response into an error. Authentication
// rejections keep their own type so callers can tell them apart from a
// missing project. A 403 reaching this point has already been through the
// rate-limit-aware client, so it is treated as a credentials problem too.
func statusError(rawURL string, resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		host := rawURL
		if u, err := neturl.Parse(rawURL); err == nil && u.Host != "" {
			host = u.Host
		}
		return &CredentialsError{Host: host, Reason: resp.Status}
	}
	return errors.Wrap(errors.New(resp.Status), "fetching "+rawURL)
}

// TokenHeader builds the authentication header for an adapter from its token
// environment variables, first match wins.
func TokenHeader(traits *Traits) http.Header {
	tok := Token(traits)
	if tok == "" {
		return nil
	}
	name := traits.TokenHeaderName
	if name == "" {
		name = "Authorization"
	}
	if traits.TokenScheme != "" {
		tok = traits.TokenScheme + " " + tok
	}
	h := make(http.Header)
	h.Set(name, tok)
	return h
}

// Token returns the adapter's API token from its environment variables.
func Token(traits *Traits) string {
	for _, env := range traits.TokenEnv {
		if tok := os.Getenv(env); tok != "" {
			return tok
		}
	}
	return ""
}
