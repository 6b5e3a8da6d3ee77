// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

// Package lockdir implements a PID-based directory lock.
//
// A lock is a directory containing a "pid" file. Directory creation is atomic
// on every platform we care about, which makes it a reasonable cross-process
// mutex for cache writes. Acquisition polls with a finite timeout; on timeout
// the holder PID is probed and the lock is broken if the holder is gone.
package lockdir

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/tagscout/tagscout/internal/logx"
)

// ErrHeld is returned when the lock is held by a live process at timeout.
var ErrHeld = errors.New("lock held by a live process")

const pollInterval = 100 * time.Millisecond

// Lock is an acquired directory lock.
type Lock struct {
	dir string
}

// Acquire obtains the lock at dir, waiting up to timeout.
//
// If the timeout elapses and the recorded holder PID is no longer alive, the
// stale lock is removed and acquisition is retried once. Otherwise ErrHeld is
// returned; callers that merely want to write a cache entry should treat that
// as "skip the write", never as a failure.
func Acquire(dir string, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)
	for {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			pidFile := filepath.Join(dir, "pid")
			if werr := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); werr != nil {
				os.RemoveAll(dir)
				return nil, errors.Wrap(werr, "writing pid file")
			}
			return &Lock{dir: dir}, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Wrap(err, "creating lock dir")
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(pollInterval)
	}
	pid, perr := holderPID(dir)
	if perr == nil && pidAlive(pid) {
		return nil, ErrHeld
	}
	// Holder is gone (or the pid file is unreadable garbage): break the lock
	// and retry once.
	logx.Warnf("removing stale lock %s (pid %d)", dir, pid)
	if err := os.RemoveAll(dir); err != nil {
		return nil, errors.Wrap(err, "removing stale lock")
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return nil, ErrHeld
		}
		return nil, errors.Wrap(err, "creating lock dir")
	}
	if err := os.WriteFile(filepath.Join(dir, "pid"), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		os.RemoveAll(dir)
		return nil, errors.Wrap(err, "writing pid file")
	}
	return &Lock{dir: dir}, nil
}

// Release drops the lock. Safe to call on a nil receiver.
func (l *Lock) Release() {
	if l == nil {
		return
	}
	if err := os.RemoveAll(l.dir); err != nil {
		logx.Warnf("releasing lock %s: %v", l.dir, err)
	}
}

func holderPID(dir string) (int, error) {
	b, err := os.ReadFile(filepath.Join(dir, "pid"))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(b)))
}

// pidAlive probes liveness with signal 0.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	// EPERM means the process exists but belongs to someone else.
	return err == nil || errors.Is(err, syscall.EPERM)
}
