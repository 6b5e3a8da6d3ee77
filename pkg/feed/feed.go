// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

// Package feed parses Atom 1.0 and RSS 2.0 release feeds.
//
// Feeds from forges are the cheapest way to see recent tags. Malformed
// documents are treated as empty feeds, not as failures.
package feed

import (
	"encoding/xml"
	"time"
)

// Entry is one feed item, most recent first in Feed.Entries.
type Entry struct {
	Title     string
	Link      string
	Updated   time.Time
	Published time.Time
}

// Feed is a parsed feed.
type Feed struct {
	Title   string
	Entries []Entry
}

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	ID        string     `xml:"id"`
	Updated   string     `xml:"updated"`
	Published string     `xml:"published"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type rssDoc struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
}

var timeLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05 -0700",
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Parse decodes an Atom or RSS document. Anything unparseable yields an
// empty feed.
func Parse(data []byte) *Feed {
	var atom atomFeed
	if err := xml.Unmarshal(data, &atom); err == nil && len(atom.Entries) > 0 {
		f := &Feed{Title: atom.Title}
		for _, e := range atom.Entries {
			entry := Entry{
				Title:     e.Title,
				Updated:   parseTime(e.Updated),
				Published: parseTime(e.Published),
			}
			for _, l := range e.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					entry.Link = l.Href
					break
				}
			}
			if entry.Link == "" && len(e.Links) > 0 {
				entry.Link = e.Links[0].Href
			}
			if entry.Link == "" {
				entry.Link = e.ID
			}
			f.Entries = append(f.Entries, entry)
		}
		return f
	}
	var rss rssDoc
	if err := xml.Unmarshal(data, &rss); err == nil && len(rss.Channel.Items) > 0 {
		f := &Feed{Title: rss.Channel.Title}
		for _, item := range rss.Channel.Items {
			t := parseTime(item.PubDate)
			f.Entries = append(f.Entries, Entry{
				Title:     item.Title,
				Link:      item.Link,
				Updated:   t,
				Published: t,
			})
		}
		return f
	}
	return &Feed{}
}
