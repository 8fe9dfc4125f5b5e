// SPDX-License-Identifier: MIT

// Package store persists enrichment artifacts across restarts: thumbnail
// blobs and probe summaries, keyed by normalized media URL. Entries carry a
// TTL so stale pages age out on their own.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/streamsift/streamsift/internal/metrics"
)

// DefaultTTL ages out entries for pages the user never revisits.
const DefaultTTL = 7 * 24 * time.Hour

const (
	thumbPrefix = "thumb:"
	probePrefix = "probe:"
)

// Thumbnail is a stored preview image.
type Thumbnail struct {
	MIME      string    `json:"mime"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProbeRecord is a stored probe summary for a direct media URL.
type ProbeRecord struct {
	HasVideo     bool      `json:"hasVideo"`
	HasAudio     bool      `json:"hasAudio"`
	HasSubtitles bool      `json:"hasSubtitles"`
	Container    string    `json:"container,omitempty"`
	DurationSecs float64   `json:"durationSeconds,omitempty"`
	SizeBytes    int64     `json:"sizeBytes,omitempty"`
	StoredAt     time.Time `json:"storedAt"`
}

// Store is the badger-backed enrichment store.
type Store struct {
	db *badger.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// PutThumbnail stores a preview image under the normalized URL.
func (s *Store) PutThumbnail(key string, t *Thumbnail, ttl time.Duration) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	return s.putJSON(thumbPrefix+key, t, ttl)
}

// GetThumbnail loads a stored preview image. Absent keys return (nil, nil).
func (s *Store) GetThumbnail(key string) (*Thumbnail, error) {
	var out Thumbnail
	found, err := s.getJSON(thumbPrefix+key, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// HasThumbnail checks key existence without loading the blob.
func (s *Store) HasThumbnail(key string) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(thumbPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// PutProbe stores a probe summary under the normalized URL.
func (s *Store) PutProbe(key string, rec *ProbeRecord, ttl time.Duration) error {
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now()
	}
	return s.putJSON(probePrefix+key, rec, ttl)
}

// GetProbe loads a stored probe summary. Absent keys return (nil, nil).
func (s *Store) GetProbe(key string) (*ProbeRecord, error) {
	var out ProbeRecord
	found, err := s.getJSON(probePrefix+key, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// Delete removes both enrichment records of a URL.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(thumbPrefix + key)); err != nil {
			return err
		}
		return txn.Delete([]byte(probePrefix + key))
	})
}

// Len counts live entries under one of the prefixes. Used by diagnostics.
func (s *Store) Len(prefix string) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// RunGC reclaims space from the value log. Call periodically; a cycle with
// nothing to rewrite is not an error.
func (s *Store) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

func (s *Store) putJSON(key string, v any, ttl time.Duration) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), buf)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (s *Store) getJSON(key string, v any) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		metrics.IncCacheOp("badger", false)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	metrics.IncCacheOp("badger", true)
	return true, nil
}
