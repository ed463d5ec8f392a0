package git

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

const cacheBucket = "git_queries"

// QueryCache persists the results of slow git queries (tag dates, file
// creation dates) between runs. One cache file belongs to one project.
type QueryCache struct {
	db *bolt.DB
}

// OpenQueryCache opens or creates the cache file at path.
func OpenQueryCache(path string) (*QueryCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(cacheBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache bucket: %w", err)
	}

	return &QueryCache{db: db}, nil
}

// Get decodes the value stored under key into v.
func (c *QueryCache) Get(key string, v any) (bool, error) {
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(cacheBucket))
		if bucket == nil {
			return bolt.ErrBucketNotFound
		}
		data := bucket.Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, v)
	})
	return found, err
}

// Put stores v under key.
func (c *QueryCache) Put(key string, v any) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(cacheBucket))
		if err != nil {
			return err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), data)
	})
}

// Close releases the cache file
func (c *QueryCache) Close() error {
	return c.db.Close()
}
