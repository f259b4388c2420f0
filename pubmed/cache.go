package pubmed

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"
)

// diskCache stores raw API responses keyed by request URL. Entries older
// than the TTL are treated as absent; writes go through a .part file and a
// rename so a crashed write never leaves a truncated entry behind.
type diskCache struct {
	dir string
	ttl time.Duration
}

func newDiskCache(dir string, ttl time.Duration) (*diskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &diskCache{dir: dir, ttl: ttl}, nil
}

func (c *diskCache) path(key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".xml")
}

func (c *diskCache) get(key string) ([]byte, bool) {
	path := c.path(key)
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 || time.Since(info.ModTime()) >= c.ttl {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *diskCache) put(key string, data []byte) error {
	path := c.path(key)
	part := path + ".part"
	if err := os.WriteFile(part, data, 0o644); err != nil {
		return err
	}
	return os.Rename(part, path)
}
