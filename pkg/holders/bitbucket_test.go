// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"context"
	"net/http"
	"testing"

	"github.com/tagscout/tagscout/internal/httpx/httpxtest"
)

func TestBitBucketDownloads(t *testing.T) {
	client := &httpxtest.MockClient{
		Calls: []httpxtest.Call{
			{
				URL: "https://api.bitbucket.org/2.0/repositories/acme/widget/downloads",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(`{"values": [
					{"name": "widget-2.7.5.tar.gz", "size": 1024, "links": {"self": {"href": "https://dl/widget-2.7.5.tar.gz"}}},
					{"name": "widget-2.7.4.tar.gz", "size": 1000, "links": {"self": {"href": "https://dl/widget-2.7.4.tar.gz"}}}
				]}`)},
			},
		},
		URLValidator: httpxtest.NewURLValidator(t),
	}
	b := NewBitBucket("acme/widget", "", client)
	r, err := b.LatestRelease(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Version.String() != "2.7.5" {
		t.Fatalf("got %+v, want 2.7.5", r)
	}
	if len(r.Assets) != 1 || r.Assets[0].URL != "https://dl/widget-2.7.5.tar.gz" {
		t.Errorf("download asset missing: %+v", r.Assets)
	}
}

func TestBitBucketFallsBackToTags(t *testing.T) {
	client := &httpxtest.MockClient{
		Calls: []httpxtest.Call{
			{
				URL:      "https://api.bitbucket.org/2.0/repositories/acme/widget/downloads",
				Response: &http.Response{StatusCode: 404, Body: httpxtest.Body("")},
			},
			{
				URL: "https://api.bitbucket.org/2.0/repositories/acme/widget/refs/tags?pagelen=100",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(`{"values": [
					{"name": "v1.4.0", "target": {"date": "2025-03-01T00:00:00Z"}},
					{"name": "v1.5.0", "target": {"date": "2025-05-01T00:00:00Z"}}
				]}`)},
			},
		},
		URLValidator: httpxtest.NewURLValidator(t),
	}
	b := NewBitBucket("acme/widget", "", client)
	r, err := b.LatestRelease(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Version.String() != "1.5.0" || r.Type != "tag" {
		t.Fatalf("got %+v, want tag 1.5.0", r)
	}
}
