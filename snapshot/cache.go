// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Cache persists the post-Capture bytes of a runtime-library module to
// a directory, zstd-compressed, so a daemon restart can reuse a
// previous capture instead of re-running the bootstrap. One entry per
// content hash, following compr/compression.go's Compressor/
// Decompressor wrapper shape but fixed to zstd since there is exactly
// one producer (Capture) and one consumer (a worker's module loader).
type Cache struct {
	dir     string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCache opens a module cache rooted at dir, creating it if absent.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: creating cache dir %s: %w", dir, err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return &Cache{dir: dir, encoder: enc, decoder: dec}, nil
}

// Close releases the encoder/decoder's worker goroutines.
func (c *Cache) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

func (c *Cache) path(key uint64) string {
	return filepath.Join(c.dir, fmt.Sprintf("%016x.wasm.zst", key))
}

// Load returns the cached capture for key, or ok=false if absent.
func (c *Cache) Load(key uint64) (module []byte, ok bool, err error) {
	raw, err := os.ReadFile(c.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("snapshot: reading cache entry: %w", err)
	}
	out, err := c.decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, false, fmt.Errorf("snapshot: decompressing cache entry: %w", err)
	}
	return out, true, nil
}

// Store compresses and writes module under key, replacing any
// existing entry. The write goes to a temp file first and is renamed
// into place so a concurrent Load never observes a partial write.
func (c *Cache) Store(key uint64, module []byte) error {
	compressed := c.encoder.EncodeAll(module, nil)
	dst := c.path(key)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return fmt.Errorf("snapshot: writing cache entry: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("snapshot: installing cache entry: %w", err)
	}
	return nil
}
