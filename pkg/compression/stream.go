// Package compression wraps output streams with a selectable codec.
package compression

import (
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents compression algorithms
type Algorithm string

const (
	AlgorithmNone   Algorithm = "none"
	AlgorithmGzip   Algorithm = "gzip"
	AlgorithmZstd   Algorithm = "zstd"
	AlgorithmLZ4    Algorithm = "lz4"
	AlgorithmSnappy Algorithm = "snappy"
)

// ParseAlgorithm accepts the configuration spelling; "" means none.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch alg := Algorithm(strings.ToLower(strings.TrimSpace(name))); alg {
	case "", AlgorithmNone:
		return AlgorithmNone, nil
	case AlgorithmGzip, AlgorithmZstd, AlgorithmLZ4, AlgorithmSnappy:
		return alg, nil
	default:
		return "", fmt.Errorf("unsupported compression algorithm: %s", name)
	}
}

// Extension returns the file suffix conventionally used for the codec
func (a Algorithm) Extension() string {
	switch a {
	case AlgorithmGzip:
		return ".gz"
	case AlgorithmZstd:
		return ".zst"
	case AlgorithmLZ4:
		return ".lz4"
	case AlgorithmSnappy:
		return ".sz"
	default:
		return ""
	}
}

// Writer is a compressing stream. Flush makes everything written so far
// decodable by a reader of the same codec; Close ends the stream without
// closing the underlying writer.
type Writer interface {
	io.Writer
	Flush() error
	Close() error
	// BytesIn is the uncompressed volume written
	BytesIn() int64
	// BytesOut is the volume handed to the underlying writer
	BytesOut() int64
}

type flushCloser interface {
	io.Writer
	Flush() error
	Close() error
}

// NewWriter wraps w with the codec. level is only used by gzip and zstd;
// 0 selects the codec default.
func NewWriter(alg Algorithm, w io.Writer, level int) (Writer, error) {
	out := &countingWriter{w: w}

	var codec flushCloser
	switch alg {
	case AlgorithmNone, "":
		codec = nopCodec{out}
	case AlgorithmGzip:
		if level == 0 {
			level = gzip.DefaultCompression
		}
		gz, err := gzip.NewWriterLevel(out, level)
		if err != nil {
			return nil, fmt.Errorf("gzip writer: %w", err)
		}
		codec = gz
	case AlgorithmZstd:
		opts := []zstd.EOption{}
		if level != 0 {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		enc, err := zstd.NewWriter(out, opts...)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		codec = enc
	case AlgorithmLZ4:
		codec = lz4.NewWriter(out)
	case AlgorithmSnappy:
		codec = snappy.NewBufferedWriter(out)
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}

	return &streamWriter{codec: codec, out: out}, nil
}

// NewReader opens a stream produced by NewWriter
func NewReader(alg Algorithm, r io.Reader) (io.ReadCloser, error) {
	switch alg {
	case AlgorithmNone, "":
		return io.NopCloser(r), nil
	case AlgorithmGzip:
		return gzip.NewReader(r)
	case AlgorithmZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case AlgorithmLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case AlgorithmSnappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

type streamWriter struct {
	codec flushCloser
	out   *countingWriter
	in    int64
}

func (s *streamWriter) Write(p []byte) (int, error) {
	n, err := s.codec.Write(p)
	s.in += int64(n)
	return n, err
}

func (s *streamWriter) Flush() error    { return s.codec.Flush() }
func (s *streamWriter) Close() error    { return s.codec.Close() }
func (s *streamWriter) BytesIn() int64  { return s.in }
func (s *streamWriter) BytesOut() int64 { return s.out.n }

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type nopCodec struct{ io.Writer }

func (nopCodec) Flush() error { return nil }
func (nopCodec) Close() error { return nil }
