package artifacts

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var modulesBucket = []byte("modules")

// CacheRecord is the durable, crash-safe record of one module's last
// known mtimes, consulted by Reconcile as a fast path in place of the
// AST mtime comparison for a source whose mtime is unchanged. It is a
// cache of the on-disk mtime truth, never an alternate source of it.
type CacheRecord struct {
	SourceMTime   time.Time
	ArtifactMTime time.Time
	CMIDigest     string
}

// Cache wraps a bolt database at <project_root>/.rewatch-cache.db.
type Cache struct {
	db *bolt.DB
}

// OpenCache opens (creating if absent) the incremental cache database.
func OpenCache(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening incremental cache %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(modulesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing cache bucket")
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying bolt database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached record for an absolute source path, or
// ok=false.
func (c *Cache) Get(sourcePath string) (CacheRecord, bool, error) {
	var rec CacheRecord
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(modulesBucket)
		data := b.Get([]byte(sourcePath))
		if data == nil {
			return nil
		}
		found = true
		return gob.NewDecoder(bytes.NewReader(data)).Decode(&rec)
	})
	return rec, found, err
}

// PutAll writes every record (keyed by absolute source path) in one
// transaction, matching the orchestrator's one-transaction-per-run
// discipline.
func (c *Cache) PutAll(records map[string]CacheRecord) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(modulesBucket)
		for path, rec := range records {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
				return errors.Wrapf(err, "encoding cache record for %s", path)
			}
			if err := b.Put([]byte(path), buf.Bytes()); err != nil {
				return errors.Wrapf(err, "writing cache record for %s", path)
			}
		}
		return nil
	})
}

// Matches reports whether a cached record's source mtime exactly
// matches the current on-disk source mtime — when it does (and the source
// has an AST artifact), reconciliation takes the source as clean without
// comparing it to the AST's mtime.
func (r CacheRecord) Matches(currentSourceMTime time.Time) bool {
	return r.SourceMTime.Equal(currentSourceMTime)
}
