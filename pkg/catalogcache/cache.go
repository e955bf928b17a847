// Package catalogcache keeps the last remote catalog that was fetched
// successfully, so the library still loads while the server is unreachable
// and later fetches can be made conditional on its ETag. It also remembers
// which book each downloaded file belongs to.
package catalogcache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketRemote = []byte("remote")
	bucketLinks  = []byte("links")
)

// Snapshot is one cached remote catalog.
type Snapshot struct {
	Books     []*models.Book `json:"books"`
	ETag      string         `json:"etag,omitempty"`
	FetchedAt time.Time      `json:"fetched_at"`
}

type Cache struct {
	db *bolt.DB
}

// Open opens or creates the cache file at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.WithStack(err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open catalog cache: %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRemote, bucketLinks} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.WithStack(err)
	}

	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return errors.WithStack(c.db.Close())
}

// serverKey keeps catalogs of different servers apart.
func serverKey(serverURL string) []byte {
	normalized := strings.TrimRight(strings.ToLower(serverURL), "/")
	hash := sha256.Sum256([]byte(normalized))
	return []byte(hex.EncodeToString(hash[:8]))
}

// Save replaces the cached catalog for serverURL.
func (c *Cache) Save(serverURL string, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRemote).Put(serverKey(serverURL), data)
	}))
}

// Load returns the cached catalog for serverURL, or nil if there is none.
func (c *Cache) Load(serverURL string) (*Snapshot, error) {
	var data []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketRemote).Get(serverKey(serverURL)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if data == nil {
		return nil, nil
	}

	snap := &Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, errors.Wrap(err, "failed to decode cached catalog")
	}
	return snap, nil
}

// Clear forgets the cached catalog for serverURL.
func (c *Cache) Clear(serverURL string) error {
	return errors.WithStack(c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRemote).Delete(serverKey(serverURL))
	}))
}

// Link records that the local file at path holds an asset of bookUUID.
func (c *Cache) Link(path, bookUUID string) error {
	return errors.WithStack(c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLinks).Put([]byte(filepath.Clean(path)), []byte(bookUUID))
	}))
}

// Links returns every recorded file path with the book it belongs to.
func (c *Cache) Links() (map[string]string, error) {
	links := map[string]string{}
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLinks).ForEach(func(k, v []byte) error {
			links[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return links, nil
}

// Unlink forgets the given paths.
func (c *Cache) Unlink(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	return errors.WithStack(c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLinks)
		for _, p := range paths {
			if err := b.Delete([]byte(filepath.Clean(p))); err != nil {
				return err
			}
		}
		return nil
	}))
}
