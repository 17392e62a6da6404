package dist

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/owl/compiler"
	"github.com/chazu/owl/vm"
)

var log = commonlog.GetLogger("owl.cache")

const schema = `
CREATE TABLE IF NOT EXISTS images (
	key     TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	image   BLOB NOT NULL
)`

// Cache is a content-addressed store of compiled images backed by SQLite.
type Cache struct {
	db *sql.DB
}

// OpenCache opens or creates the cache database at path. Parent directories
// are created as needed; ":memory:" gives a private in-memory cache.
func OpenCache(path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dist: create cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dist: open cache %s: %w", path, err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("dist: init cache %s: %w", path, err)
	}
	return &Cache{db: db}, nil
}

// Key returns the cache key of source: the hex SHA-256 of the image version
// and the source text.
func Key(source string) string {
	h := sha256.New()
	fmt.Fprintf(h, "owl-image-v%d\x00", ImageVersion)
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the image stored under key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var image []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT image FROM images WHERE key = ? AND version = ?`, key, ImageVersion,
	).Scan(&image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("dist: cache get: %w", err)
	}
	return image, true, nil
}

// Put stores image under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key string, image []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO images (key, version, image) VALUES (?, ?, ?)`,
		key, ImageVersion, image,
	)
	if err != nil {
		return fmt.Errorf("dist: cache put: %w", err)
	}
	return nil
}

// Len returns the number of cached images.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&n); err != nil {
		return 0, fmt.Errorf("dist: cache len: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// CompileSource returns code for source, decoding a cached image when one
// exists and compiling and storing one otherwise. hit reports which path was
// taken. A corrupt cached image is logged and replaced.
func (c *Cache) CompileSource(ctx context.Context, in *vm.Interpreter, source string) (code *vm.Code, hit bool, err error) {
	key := Key(source)
	data, ok, err := c.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		code, err := UnmarshalCode(data, in.Collector(), in.Registry)
		if err == nil {
			log.Debugf("cache hit %s", key[:12])
			return code, true, nil
		}
		log.Warningf("discarding cached image %s: %s", key[:12], err)
	}

	code, err = compiler.CompileSource(in, source)
	if err != nil {
		return nil, false, err
	}
	data, err = MarshalCode(code)
	if err != nil {
		// Not every program can be stored; it still runs.
		log.Debugf("not caching %s: %s", key[:12], err)
		return code, false, nil
	}
	if err := c.Put(ctx, key, data); err != nil {
		code.Release()
		return nil, false, err
	}
	log.Debugf("cache store %s (%d bytes)", key[:12], len(data))
	return code, false, nil
}
