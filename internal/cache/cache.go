// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache provides the in-memory and on-disk caches the resolver
// leans on: a coalescing process-local cache and the TTL'd DirCache.
package cache

import (
	"sync"

	"github.com/pkg/errors"
)

// Cache is the minimal cache surface shared by the implementations here.
type Cache interface {
	Get(any) (any, error)
	Set(any, func() (any, error)) error
	GetOrSet(any, func() (any, error)) (any, error)
	Del(any)
	Clear()
}

// ErrNotExist is returned when a key is not present.
var ErrNotExist = errors.New("does not exist")

// CoalescingMemoryCache memoizes fetch results per key and collapses
// concurrent fetches of the same key into one call. Failed fetches are not
// retained.
type CoalescingMemoryCache struct {
	data sync.Map // key -> *fn
}

// fn makes a func comparable so CompareAndDelete can target it.
type fn struct {
	Func func() (any, error)
}

func (c *CoalescingMemoryCache) valueOrClear(key, once any) (any, error) {
	val, err := once.(*fn).Func()
	if err != nil {
		c.data.CompareAndDelete(key, once)
	}
	return val, err
}

// Get returns the cached value for key, or ErrNotExist.
func (c *CoalescingMemoryCache) Get(key any) (any, error) {
	once, ok := c.data.Load(key)
	if !ok {
		return nil, ErrNotExist
	}
	return c.valueOrClear(key, once)
}

// Set stores the result of fetch under key, replacing any prior entry.
func (c *CoalescingMemoryCache) Set(key any, fetch func() (any, error)) error {
	once := &fn{sync.OnceValues(fetch)}
	c.data.Store(key, once)
	_, err := c.valueOrClear(key, once)
	return err
}

// GetOrSet returns the value for key, running fetch at most once across
// concurrent callers when the key is absent.
func (c *CoalescingMemoryCache) GetOrSet(key any, fetch func() (any, error)) (any, error) {
	once, _ := c.data.LoadOrStore(key, &fn{sync.OnceValues(fetch)})
	return c.valueOrClear(key, once)
}

// Del removes the entry for key.
func (c *CoalescingMemoryCache) Del(key any) {
	c.data.Delete(key)
}

// Clear drops every entry.
func (c *CoalescingMemoryCache) Clear() {
	c.data = sync.Map{}
}

var _ Cache = &CoalescingMemoryCache{}
