// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

// Package changelog condenses release notes into a short changelog via the
// OpenAI chat-completions API. Without an API key it passes notes through
// untouched.
package changelog

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/tagscout/tagscout/internal/httpx"
	"github.com/tagscout/tagscout/internal/logx"
)

const (
	defaultModel = "gpt-4o-mini"
	endpoint     = "https://api.openai.com/v1/chat/completions"

	prompt = "Summarize the following release notes as a terse changelog, one bullet per change, no preamble:"
)

// Summarizer talks to a chat-completions endpoint.
type Summarizer struct {
	Client httpx.BasicClient
	Key    string
	Model  string
}

// FromEnv builds a Summarizer from the environment, or nil when no API key
// is configured.
func FromEnv() *Summarizer {
	key := os.Getenv("LASTVERSION_OPENAI_API_KEY")
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil
	}
	model := os.Getenv("LASTVERSION_OPENAI_MODEL")
	if model == "" {
		model = defaultModel
	}
	return &Summarizer{
		Client: &http.Client{Timeout: 60 * time.Second},
		Key:    key,
		Model:  model,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Do sends the notes for summarization.
func (s *Summarizer) Do(ctx context.Context, notes string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: s.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt + "\n\n" + notes},
		},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.Key)
	resp, err := s.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", errors.Wrap(errors.New(resp.Status), "chat completion")
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat completion: empty response")
	}
	return out.Choices[0].Message.Content, nil
}

// Summarize condenses notes when a summarizer is configured, returning the
// raw notes on any failure.
func Summarize(ctx context.Context, notes string) string {
	s := FromEnv()
	if s == nil {
		return notes
	}
	out, err := s.Do(ctx, notes)
	if err != nil {
		logx.Warnf("changelog summarization failed: %v", err)
		return notes
	}
	return out
}
