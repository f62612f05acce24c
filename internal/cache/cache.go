// Package cache implements the namespaced key/value store shared by the
// extraction context: script-hash-gated player function bodies and adjacent
// service credentials (soundcloud_client_id).
package cache

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	homedir "github.com/mitchellh/go-homedir"
)

// Recognized namespaces.
const (
	NamespaceYouTubeJSPlayerFns = "youtube_js_player_fns"
	NamespaceSoundCloudClientID = "soundcloud_client_id"
)

// Cache is a namespaced key/value byte store. get after set with the same
// (namespace, key) returns the same bytes unless delete intervened; a missing
// key returns (nil, false), never an error.
type Cache interface {
	Get(namespace, key string) ([]byte, bool, error)
	Set(namespace, key string, value []byte) error
	Has(namespace, key string) (bool, error)
	Delete(namespace, key string) error
}

// FSCache is the filesystem-backed implementation: one file per (namespace,
// key) under <root>/<namespace>/<key>. Safe against a last-writer-wins race
// on the same entry; losing a write is acceptable because every cached value
// here is idempotent for a given key (script-hash, client id).
type FSCache struct {
	root string
	mu   sync.Mutex
}

// NewFSCache returns a cache rooted at <platform-cache-root>/<appName>. The
// platform cache root follows XDG_CACHE_HOME on Linux, falling back to
// ~/.cache, expanded portably via go-homedir rather than reading $HOME
// directly so Windows/macOS callers get a sane root too.
func NewFSCache(appName string) (*FSCache, error) {
	root, err := platformCacheRoot()
	if err != nil {
		return nil, err
	}
	return &FSCache{root: filepath.Join(root, appName)}, nil
}

func platformCacheRoot() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return xdg, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache"), nil
}

func (c *FSCache) path(namespace, key string) string {
	return filepath.Join(c.root, namespace, key)
}

func (c *FSCache) Get(namespace, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(c.path(namespace, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (c *FSCache) Set(namespace, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	dir := filepath.Join(c.root, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path(namespace, key), value, 0o644)
}

func (c *FSCache) Has(namespace, key string) (bool, error) {
	_, err := os.Stat(c.path(namespace, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *FSCache) Delete(namespace, key string) error {
	err := os.Remove(c.path(namespace, key))
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// StubCache is a no-op cache for platforms/environments without a writable
// cache directory: every Set is discarded, every Get misses.
type StubCache struct{}

func NewStubCache() *StubCache { return &StubCache{} }

func (StubCache) Get(namespace, key string) ([]byte, bool, error) { return nil, false, nil }
func (StubCache) Set(namespace, key string, value []byte) error  { return nil }
func (StubCache) Has(namespace, key string) (bool, error)        { return false, nil }
func (StubCache) Delete(namespace, key string) error              { return nil }
