// Package cache persists encoded prompt latents on disk so repeated runs on
// the same prompt skip the tokenizer encoder.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"

	"github.com/example/go-hertz-dev/internal/hertz"
	"github.com/example/go-hertz-dev/internal/safetensors"
)

const (
	entryExt   = ".safetensors.zst"
	tensorName = "latents"

	// DefaultCapacity bounds the on-disk size of the cache.
	DefaultCapacity int64 = 512 << 20
)

// ErrInvalidKey is returned for keys that are not plain hex-like names.
var ErrInvalidKey = errors.New("cache: invalid key")

// Stats counts cache traffic since the cache was opened.
type Stats struct {
	Hits      int64
	Misses    int64
	Writes    int64
	Evictions int64
}

// DiskCache stores latents as zstd-compressed safetensors files under one
// directory, sharded by the first two key characters.
type DiskCache struct {
	dir      string
	capacity int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu    sync.Mutex
	stats Stats
}

// Option configures a DiskCache.
type Option func(*diskOptions)

type diskOptions struct {
	capacity int64
	level    zstd.EncoderLevel
}

// WithCapacity sets the size limit in bytes. Zero or less disables eviction.
func WithCapacity(n int64) Option {
	return func(o *diskOptions) { o.capacity = n }
}

// WithLevel sets the zstd level (1-22).
func WithLevel(level int) Option {
	return func(o *diskOptions) { o.level = zstd.EncoderLevelFromZstd(level) }
}

// NewDiskCache opens or creates a cache rooted at dir.
func NewDiskCache(dir string, opts ...Option) (*DiskCache, error) {
	o := diskOptions{capacity: DefaultCapacity, level: zstd.SpeedDefault}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(o.level))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &DiskCache{dir: dir, capacity: o.capacity, encoder: enc, decoder: dec}, nil
}

// Dir returns the cache root.
func (c *DiskCache) Dir() string { return c.dir }

// Get loads latents for key. A missing entry is not an error; a corrupt one
// is removed and reported.
func (c *DiskCache) Get(key string) (hertz.Latents, bool, error) {
	path, err := c.path(key)
	if err != nil {
		return hertz.Latents{}, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	compressed, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.stats.Misses++
		return hertz.Latents{}, false, nil
	}

	if err != nil {
		c.stats.Misses++
		return hertz.Latents{}, false, fmt.Errorf("cache read: %w", err)
	}

	latents, err := c.decode(compressed)
	if err != nil {
		c.stats.Misses++
		_ = os.Remove(path)

		return hertz.Latents{}, false, fmt.Errorf("cache entry %s: %w", key, err)
	}

	c.stats.Hits++

	return latents, true, nil
}

// Put stores latents under key, replacing any previous entry, and evicts
// the oldest entries when the cache exceeds its capacity.
func (c *DiskCache) Put(key string, latents hertz.Latents) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}

	raw, err := safetensors.Encode([]safetensors.Tensor{{
		Name:  tensorName,
		Shape: latents.Shape(),
		Data:  latents.Data,
	}}, safetensors.Options{Metadata: map[string]string{
		"steps": strconv.Itoa(latents.Steps),
		"dim":   strconv.Itoa(latents.Dim),
	}})
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	compressed := c.encoder.EncodeAll(raw, nil)

	if err := writeFileAtomic(path, compressed); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}

	c.stats.Writes++

	slog.Debug("cached prompt latents",
		"key", key[:min(len(key), 12)],
		"raw", humanize.Bytes(uint64(len(raw))),
		"stored", humanize.Bytes(uint64(len(compressed))),
	)

	return c.evict(path)
}

// Stats returns a snapshot of the counters.
func (c *DiskCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stats
}

// Close releases the zstd coders.
func (c *DiskCache) Close() error {
	if c == nil {
		return nil
	}

	c.decoder.Close()

	return c.encoder.Close()
}

func (c *DiskCache) path(key string) (string, error) {
	if len(key) < 2 || strings.ContainsAny(key, `/\.`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return filepath.Join(c.dir, key[:2], key+entryExt), nil
}

func (c *DiskCache) decode(compressed []byte) (hertz.Latents, error) {
	raw, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return hertz.Latents{}, fmt.Errorf("decompress: %w", err)
	}

	store, err := safetensors.OpenStoreFromBytes(raw)
	if err != nil {
		return hertz.Latents{}, err
	}
	defer store.Close()

	md := store.Metadata()

	steps, err := strconv.Atoi(md["steps"])
	if err != nil {
		return hertz.Latents{}, fmt.Errorf("cached steps: %w", err)
	}

	dim, err := strconv.Atoi(md["dim"])
	if err != nil {
		return hertz.Latents{}, fmt.Errorf("cached dim: %w", err)
	}

	t, err := store.TensorWithShape(tensorName, []int64{1, int64(steps), int64(dim)})
	if err != nil {
		return hertz.Latents{}, fmt.Errorf("%w: %w", hertz.ErrShapeMismatch, err)
	}

	return hertz.NewLatents(t.Data, int(t.Shape[1]), int(t.Shape[2]))
}

type entry struct {
	path string
	size int64
	mod  int64
}

// evict removes the least recently written entries until the cache fits.
// keep is never removed.
func (c *DiskCache) evict(keep string) error {
	if c.capacity <= 0 {
		return nil
	}

	var (
		entries []entry
		total   int64
	)

	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, entryExt) {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		entries = append(entries, entry{path: path, size: info.Size(), mod: info.ModTime().UnixNano()})
		total += info.Size()

		return nil
	})
	if err != nil {
		return fmt.Errorf("cache scan: %w", err)
	}

	if total <= c.capacity {
		return nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].mod < entries[j].mod })

	for _, e := range entries {
		if total <= c.capacity {
			break
		}

		if e.path == keep {
			continue
		}

		if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cache evict: %w", err)
		}

		total -= e.size
		c.stats.Evictions++
	}

	slog.Debug("cache evicted entries", "evictions", c.stats.Evictions, "size", humanize.Bytes(uint64(total)))

	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), path)
}

var _ hertz.LatentCache = (*DiskCache)(nil)
