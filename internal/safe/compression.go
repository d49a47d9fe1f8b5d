// internal/safe/compression.go
package safe

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// CompressionOptions configures compression behavior
type CompressionOptions struct {
	// Minimum size in bytes before compressing
	MinSize int
	// Encoder level (1=fastest, 4=best)
	Level int
}

// DefaultCompressionOptions provides sensible defaults
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize: 1024, // 1KB
		Level:   2,    // Balanced speed/compression
	}
}

// compressionManager handles compression operations. EncodeAll and
// DecodeAll are safe for concurrent use, so one encoder and one decoder
// serve the whole store.
type compressionManager struct {
	opts CompressionOptions
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

func newCompressionManager(opts CompressionOptions) (*compressionManager, error) {
	if opts.Level < int(zstd.SpeedFastest) || opts.Level > int(zstd.SpeedBestCompression) {
		return nil, fmt.Errorf("compression level %d out of range", opts.Level)
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevel(opts.Level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
	)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	return &compressionManager{opts: opts, enc: enc, dec: dec}, nil
}

// shouldCompress determines if content should be compressed
func (cm *compressionManager) shouldCompress(content []byte) bool {
	if len(content) < cm.opts.MinSize {
		return false
	}
	// Already a zstd frame; a second pass gains nothing.
	return !bytes.HasPrefix(content, zstdMagic)
}

// compress returns the bytes to write and whether they are compressed.
// Content that does not shrink is stored raw.
func (cm *compressionManager) compress(content []byte) ([]byte, bool) {
	if !cm.shouldCompress(content) {
		return content, false
	}

	out := cm.enc.EncodeAll(content, make([]byte, 0, len(content)/2))
	if len(out) >= len(content) {
		return content, false
	}
	return out, true
}

// decompress decompresses content
func (cm *compressionManager) decompress(content []byte) ([]byte, error) {
	if !bytes.HasPrefix(content, zstdMagic) {
		return nil, fmt.Errorf("content is not a zstd frame")
	}
	out, err := cm.dec.DecodeAll(content, nil)
	if err != nil {
		return nil, fmt.Errorf("decoding zstd frame: %w", err)
	}
	return out, nil
}

// close cleans up resources
func (cm *compressionManager) close() {
	cm.enc.Close()
	cm.dec.Close()
}
