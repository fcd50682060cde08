// Package cache keeps fetched portal documents in a local bbolt file so
// the same access key is not fetched twice.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"

	"github.com/rezonia/nfce-processor/internal/model"
)

var logger = logrus.WithField("component", "cache")

const bucketName = "documents"

// ErrNotFound is returned when no document is stored for a key
var ErrNotFound = errors.New("document not cached")

type entry struct {
	Kind     model.DocumentKind `json:"kind"`
	Body     string             `json:"body"`
	URL      string             `json:"url"`
	UF       model.UF           `json:"uf"`
	StoredAt time.Time          `json:"stored_at"`
}

// BoltStore persists documents keyed by access key
type BoltStore struct {
	db  *bbolt.DB
	ttl time.Duration
	now func() time.Time
}

// StoreOption configures the store
type StoreOption func(*BoltStore)

// WithTTL expires entries older than d; zero keeps them forever
func WithTTL(d time.Duration) StoreOption {
	return func(s *BoltStore) {
		s.ttl = d
	}
}

// NewBoltStore opens or creates the cache file at path
func NewBoltStore(path string, opts ...StoreOption) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	s := &BoltStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the stored document for key
func (s *BoltStore) Get(key model.AccessKey) (*model.RawDocument, error) {
	var e entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(key.String()))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return nil, err
	}
	if s.ttl > 0 && s.now().Sub(e.StoredAt) > s.ttl {
		return nil, ErrNotFound
	}
	return &model.RawDocument{Kind: e.Kind, Body: e.Body, URL: e.URL, Key: key, UF: e.UF}, nil
}

// Put stores doc under its key. Unrecognized bodies are not stored.
func (s *BoltStore) Put(doc *model.RawDocument) error {
	if doc.Kind == model.DocumentUnrecognized || doc.Key.IsZero() {
		return nil
	}
	data, err := json.Marshal(entry{
		Kind:     doc.Kind,
		Body:     doc.Body,
		URL:      doc.URL,
		UF:       doc.UF,
		StoredAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(doc.Key.String()), data)
	})
}

// Delete removes the document for key
func (s *BoltStore) Delete(key model.AccessKey) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(key.String()))
	})
}

// Keys lists the cached access keys in byte order
func (s *BoltStore) Keys() ([]string, error) {
	keys := make([]string, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Close closes the underlying file
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Fetcher matches processor.Fetcher
type Fetcher interface {
	Fetch(ctx context.Context, key model.AccessKey, uf model.UF) (*model.RawDocument, error)
}

// CachingFetcher serves documents from the store and falls through to next
// on a miss. Only XML and HTML documents are written back.
type CachingFetcher struct {
	store *BoltStore
	next  Fetcher
}

// NewCachingFetcher wraps next with store
func NewCachingFetcher(store *BoltStore, next Fetcher) *CachingFetcher {
	return &CachingFetcher{store: store, next: next}
}

// Fetch implements processor.Fetcher
func (c *CachingFetcher) Fetch(ctx context.Context, key model.AccessKey, uf model.UF) (*model.RawDocument, error) {
	log := logger.WithField("key", key.String())

	doc, err := c.store.Get(key)
	switch {
	case err == nil:
		log.Debug("cache hit")
		return doc, nil
	case !errors.Is(err, ErrNotFound):
		log.WithError(err).Warn("cache read failed")
	}

	doc, err = c.next.Fetch(ctx, key, uf)
	if err != nil {
		return nil, err
	}
	if err := c.store.Put(doc); err != nil {
		log.WithError(err).Warn("cache write failed")
	}
	return doc, nil
}
