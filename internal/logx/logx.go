// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

// Package logx holds the shared logger for the library.
//
// The library is silent by default: hosts (and the CLI) decide where output
// goes by swapping the logger.
package logx

import (
	"io"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	mu     sync.RWMutex
	logger = log.New(io.Discard)
)

// Set replaces the shared logger.
func Set(l *log.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// L returns the shared logger.
func L() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Infof logs at info level through the shared logger.
func Infof(format string, args ...any) { L().Infof(format, args...) }

// Warnf logs at warn level through the shared logger.
func Warnf(format string, args ...any) { L().Warnf(format, args...) }

// Debugf logs at debug level through the shared logger.
func Debugf(format string, args ...any) { L().Debugf(format, args...) }
