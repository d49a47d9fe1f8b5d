// internal/safe/safe.go
package safe

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sprig/internal/errors"
	"sprig/internal/storage"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var (
	ErrContentNotFound = errors.NotFound("content not found")
	ErrInvalidHash     = errors.Validation("invalid content hash")
)

const metaPrefix = "content"

// ContentMeta stores metadata about stored content
type ContentMeta struct {
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	StoredSize int64     `json:"stored_size"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
}

func (m *ContentMeta) GetID() string { return m.Hash }

// Safe is the repository object store: every blob ever written, addressed
// by the SHA-256 of its bytes. Blobs are never evicted.
type Safe struct {
	fs     afero.Fs
	root   string                     // Root directory for content files
	meta   *storage.BadgerStore       // Metadata records
	cache  *lru.Cache[string, []byte] // Decoded content cache
	comp   *compressionManager
	logger *zap.Logger
}

// Options configures Safe behavior
type Options struct {
	Root        string // Root directory path
	CacheSize   int    // Number of items to cache
	Compression CompressionOptions
	Logger      *zap.Logger
}

// New creates a new Safe instance
func New(fs afero.Fs, db *badger.DB, opts Options) (*Safe, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}

	if err := fs.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}

	// Use reasonable defaults
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1000
	}
	if opts.Compression == (CompressionOptions{}) {
		opts.Compression = DefaultCompressionOptions()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	comp, err := newCompressionManager(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating compression manager: %w", err)
	}

	return &Safe{
		fs:     fs,
		root:   opts.Root,
		meta:   storage.NewBadgerStore(db, metaPrefix),
		cache:  cache,
		comp:   comp,
		logger: opts.Logger,
	}, nil
}

// Digest returns the hex SHA-256 of content. It is the identity of a blob.
func Digest(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// ValidDigest reports whether s looks like a digest produced by Digest.
func ValidDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Put saves content and returns its digest. Storing bytes that are already
// present writes nothing.
func (s *Safe) Put(content []byte) (string, error) {
	if content == nil {
		content = []byte{} // Convert nil to empty slice
	}

	hash := Digest(content)

	exists, err := s.Has(hash)
	if err != nil {
		return "", fmt.Errorf("checking existence: %w", err)
	}
	if exists {
		return hash, nil
	}

	stored, compressed := s.comp.compress(content)
	if err := storage.WriteFileAtomic(s.fs, s.contentPath(hash), stored, 0444); err != nil {
		return "", fmt.Errorf("writing content file: %w", err)
	}

	meta := &ContentMeta{
		Hash:       hash,
		Size:       int64(len(content)),
		StoredSize: int64(len(stored)),
		Compressed: compressed,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.meta.Put(meta); err != nil {
		// Cleanup on failure
		s.fs.Remove(s.contentPath(hash))
		return "", fmt.Errorf("storing metadata: %w", err)
	}

	s.cache.Add(hash, content)
	s.logger.Debug("stored blob",
		zap.String("hash", hash),
		zap.Int64("size", meta.Size),
		zap.Bool("compressed", compressed))

	return hash, nil
}

// Get retrieves content by digest. The returned slice must not be modified.
func (s *Safe) Get(hash string) ([]byte, error) {
	if !ValidDigest(hash) {
		return nil, ErrInvalidHash
	}

	if content, ok := s.cache.Get(hash); ok {
		return content, nil
	}

	var meta ContentMeta
	if err := s.meta.Get(hash, &meta); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.reindex(hash)
		}
		return nil, fmt.Errorf("getting metadata: %w", err)
	}

	content, err := afero.ReadFile(s.fs, s.contentPath(hash))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}

	if meta.Compressed {
		content, err = s.comp.decompress(content)
		if err != nil {
			return nil, fmt.Errorf("decompressing content: %w", err)
		}
	}

	if Digest(content) != hash {
		return nil, fmt.Errorf("content hash mismatch for %s", hash)
	}

	s.cache.Add(hash, content)
	return content, nil
}

// reindex rebuilds the metadata record of a blob file the index does not
// know about, for example after the index was lost.
func (s *Safe) reindex(hash string) ([]byte, error) {
	stored, err := afero.ReadFile(s.fs, s.contentPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrContentNotFound, hash)
		}
		return nil, fmt.Errorf("reading content: %w", err)
	}

	content, compressed := stored, false
	if Digest(stored) != hash {
		content, err = s.comp.decompress(stored)
		if err != nil || Digest(content) != hash {
			return nil, fmt.Errorf("content hash mismatch for %s", hash)
		}
		compressed = true
	}

	meta := &ContentMeta{
		Hash:       hash,
		Size:       int64(len(content)),
		StoredSize: int64(len(stored)),
		Compressed: compressed,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.meta.Put(meta); err != nil {
		return nil, fmt.Errorf("storing metadata: %w", err)
	}
	s.logger.Debug("reindexed blob", zap.String("hash", hash))

	s.cache.Add(hash, content)
	return content, nil
}

// Has checks if content exists
func (s *Safe) Has(hash string) (bool, error) {
	if !ValidDigest(hash) {
		return false, ErrInvalidHash
	}
	if s.cache.Contains(hash) {
		return true, nil
	}
	return s.meta.Has(hash)
}

// Meta returns the stored metadata record for hash.
func (s *Safe) Meta(hash string) (*ContentMeta, error) {
	if !ValidDigest(hash) {
		return nil, ErrInvalidHash
	}
	var meta ContentMeta
	if err := s.meta.Get(hash, &meta); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrContentNotFound, hash)
		}
		return nil, err
	}
	return &meta, nil
}

// Verify re-reads every stored blob from disk and checks its digest.
// It returns the digests that failed.
func (s *Safe) Verify() ([]string, error) {
	hashes, err := s.meta.IDs()
	if err != nil {
		return nil, err
	}

	var bad []string
	for _, hash := range hashes {
		s.cache.Remove(hash)
		if _, err := s.Get(hash); err != nil {
			s.logger.Warn("blob failed verification", zap.String("hash", hash), zap.Error(err))
			bad = append(bad, hash)
		}
	}
	return bad, nil
}

// Close releases the compression encoder and decoder.
func (s *Safe) Close() {
	s.comp.close()
	s.cache.Purge()
}

func (s *Safe) contentPath(hash string) string {
	return filepath.Join(s.root, hash[:2], hash[2:])
}
