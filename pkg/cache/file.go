package cache

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"time"
)

// FileCache stores entries as flat files under a directory, one entry per
// key. Block payloads are multi-megabyte binary buffers, so entries keep
// the raw bytes behind a fixed-size header instead of re-encoding them:
// 8 bytes little-endian expiry (unix nanoseconds, zero means no expiry)
// followed by the payload.
type FileCache struct {
	dir string
}

// entryHeaderLen is the size of the expiry header preceding the payload.
const entryHeaderLen = 8

// NewFileCache creates a file-backed cache rooted at dir, creating the
// directory if needed.
func NewFileCache(dir string) (Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir}, nil
}

// Get retrieves a value. Expired and malformed entries are removed and
// reported as misses.
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	path := c.path(key)

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(raw) < entryHeaderLen {
		_ = os.Remove(path)
		return nil, false, nil
	}
	if exp := int64(binary.LittleEndian.Uint64(raw)); exp != 0 && time.Now().UnixNano() > exp {
		_ = os.Remove(path)
		return nil, false, nil
	}
	return raw[entryHeaderLen:], true, nil
}

// Set stores a value with an optional TTL.
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	var exp int64
	if ttl > 0 {
		exp = time.Now().Add(ttl).UnixNano()
	}
	buf := make([]byte, entryHeaderLen+len(data))
	binary.LittleEndian.PutUint64(buf, uint64(exp))
	copy(buf[entryHeaderLen:], data)

	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

// Delete removes a value. Deleting a missing key is not an error.
func (c *FileCache) Delete(ctx context.Context, key string) error {
	err := os.Remove(c.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Close does nothing for the file cache.
func (c *FileCache) Close() error {
	return nil
}

// path maps a key to a file under the cache directory. Keys are hashed so
// arbitrary key strings stay filesystem-safe, and the first hash byte
// fans entries out over subdirectories.
func (c *FileCache) path(key string) string {
	hash := Hash([]byte(key))
	return filepath.Join(c.dir, hash[:2], hash[2:]+".blk")
}

// Ensure FileCache implements Cache.
var _ Cache = (*FileCache)(nil)
