// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/tagscout/tagscout/internal/lockdir"
	"github.com/tagscout/tagscout/internal/logx"
)

const (
	cleanupSentinel = ".last_cleanup"
	lockTimeout     = 5 * time.Second
)

// DirCache is a Cache backed by a directory of JSON entry files, one per key,
// named by the SHA-256 of the key. Writes are serialized across processes with
// a PID-based directory lock; contention never fails a request, it only skips
// the write.
//
// An expired entry is retained on disk and visible through GetStale; it is
// removed by cleanup, not by reads.
type DirCache struct {
	Dir string
	// TTL applied by Set for entries without an explicit one. Zero means the
	// entry never expires.
	TTL time.Duration
	// MaxBytes caps the total size of entries kept by cleanup. Zero disables
	// size-based eviction.
	MaxBytes int64
	// CleanupAge is how often cleanup runs, gated on the sentinel file.
	CleanupAge time.Duration
}

// Entry is the stored form of one cached value.
type Entry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether the entry's expiry has passed.
func (e *Entry) Expired() bool {
	return !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt)
}

// NewDirCache creates the directory if needed and runs cleanup when the
// sentinel says it is due. Cleanup is best-effort; its errors are logged and
// swallowed.
func NewDirCache(dir string, ttl time.Duration) (*DirCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating cache dir")
	}
	d := &DirCache{Dir: dir, TTL: ttl, CleanupAge: 24 * time.Hour}
	if d.cleanupDue() {
		if err := d.cleanup(); err != nil {
			logx.Warnf("cache cleanup: %v", err)
		}
	}
	return d, nil
}

func (d *DirCache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(d.Dir, hex.EncodeToString(sum[:])+".json")
}

func (d *DirCache) read(key string) (*Entry, error) {
	b, err := os.ReadFile(d.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotExist
	} else if err != nil {
		return nil, errors.Wrap(err, "reading cache entry")
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		// A corrupt entry is the same as a missing one.
		return nil, ErrNotExist
	}
	return &e, nil
}

// GetEntry returns the stored entry for key regardless of expiry.
func (d *DirCache) GetEntry(key string) (*Entry, error) {
	return d.read(key)
}

// GetBytes returns the live value for key, or ErrNotExist if absent or expired.
func (d *DirCache) GetBytes(key string) ([]byte, error) {
	e, err := d.read(key)
	if err != nil {
		return nil, err
	}
	if e.Expired() {
		return nil, ErrNotExist
	}
	return e.Value, nil
}

// GetStale returns the value for key ignoring expiry, along with its creation
// time, for stale-on-error fallbacks.
func (d *DirCache) GetStale(key string) ([]byte, time.Time, error) {
	e, err := d.read(key)
	if err != nil {
		return nil, time.Time{}, err
	}
	return e.Value, e.CreatedAt, nil
}

// SetBytes stores val under key with the given ttl (zero: DirCache.TTL; TTL of
// zero too: no expiry). A held lock skips the write.
func (d *DirCache) SetBytes(key string, val []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = d.TTL
	}
	now := time.Now()
	e := Entry{Key: key, Value: val, CreatedAt: now}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	b, err := json.Marshal(&e)
	if err != nil {
		return errors.Wrap(err, "encoding cache entry")
	}
	p := d.path(key)
	l, err := lockdir.Acquire(p+".lock", lockTimeout)
	if err == lockdir.ErrHeld {
		logx.Debugf("cache write for %q skipped: lock contention", key)
		return nil
	} else if err != nil {
		return err
	}
	defer l.Release()
	tmp := p + ".tmp." + strconv.Itoa(os.Getpid())
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return errors.Wrap(err, "writing cache entry")
	}
	return errors.Wrap(os.Rename(tmp, p), "committing cache entry")
}

// Get implements Cache for string keys and []byte values.
func (d *DirCache) Get(key any) (any, error) {
	b, err := d.GetBytes(key.(string))
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Set implements Cache.
func (d *DirCache) Set(key any, fetch func() (any, error)) error {
	val, err := fetch()
	if err != nil {
		return err
	}
	return d.SetBytes(key.(string), val.([]byte), 0)
}

// GetOrSet implements Cache.
func (d *DirCache) GetOrSet(key any, fetch func() (any, error)) (any, error) {
	if val, err := d.Get(key); err == nil {
		return val, nil
	} else if err != ErrNotExist {
		return nil, err
	}
	val, err := fetch()
	if err != nil {
		return nil, err
	}
	if err := d.SetBytes(key.(string), val.([]byte), 0); err != nil {
		return nil, err
	}
	return val, nil
}

// Del implements Cache.
func (d *DirCache) Del(key any) {
	os.Remove(d.path(key.(string)))
}

// Clear implements Cache.
func (d *DirCache) Clear() {
	ents, err := os.ReadDir(d.Dir)
	if err != nil {
		return
	}
	for _, ent := range ents {
		if filepath.Ext(ent.Name()) == ".json" {
			os.Remove(filepath.Join(d.Dir, ent.Name()))
		}
	}
}

var _ Cache = &DirCache{}

func (d *DirCache) cleanupDue() bool {
	st, err := os.Stat(filepath.Join(d.Dir, cleanupSentinel))
	if err != nil {
		return true
	}
	return time.Since(st.ModTime()) > d.CleanupAge
}

type fileInfo struct {
	path string
	size int64
	mod  time.Time
}

func (d *DirCache) cleanup() error {
	ents, err := os.ReadDir(d.Dir)
	if err != nil {
		return err
	}
	var files []fileInfo
	var total int64
	for _, ent := range ents {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".json" {
			continue
		}
		p := filepath.Join(d.Dir, ent.Name())
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(b, &e); err != nil || e.Expired() {
			os.Remove(p)
			continue
		}
		st, err := ent.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{p, st.Size(), st.ModTime()})
		total += st.Size()
	}
	if d.MaxBytes > 0 && total > d.MaxBytes {
		sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
		for _, f := range files {
			if total <= d.MaxBytes {
				break
			}
			if err := os.Remove(f.path); err == nil {
				total -= f.size
			}
		}
	}
	return os.WriteFile(filepath.Join(d.Dir, cleanupSentinel), []byte(time.Now().Format(time.RFC3339)), 0o644)
}
