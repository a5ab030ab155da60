package checkpoint

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec compresses the agent record stream.
type Codec interface {
	// Reader wraps r to decompress data read from it.
	Reader(r io.Reader) (io.ReadCloser, error)
	// Writer wraps w to compress data written to it.
	Writer(w io.Writer) (io.WriteCloser, error)
	// Extension returns the file extension without dot.
	Extension() string
}

// Zstd is the default codec.
type Zstd struct{}

var _ Codec = Zstd{}

// Reader implements Codec.
func (Zstd) Reader(r io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}

// Writer implements Codec.
func (Zstd) Writer(w io.Writer) (io.WriteCloser, error) { return zstd.NewWriter(w) }

// Extension implements Codec.
func (Zstd) Extension() string { return "zst" }

// Gzip trades ratio for compatibility with standard tooling.
type Gzip struct{}

var _ Codec = Gzip{}

// Reader implements Codec.
func (Gzip) Reader(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) }

// Writer implements Codec.
func (Gzip) Writer(w io.Writer) (io.WriteCloser, error) { return gzip.NewWriter(w), nil }

// Extension implements Codec.
func (Gzip) Extension() string { return "gz" }

// CodecNames lists the names accepted by CodecByName.
var CodecNames = []string{"zstd", "gzip"}

// CodecByName resolves a configured compression name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "zstd", "":
		return Zstd{}, nil
	case "gzip":
		return Gzip{}, nil
	default:
		return nil, fmt.Errorf("unknown checkpoint compression %q", name)
	}
}

func codecForExtension(ext string) (Codec, bool) {
	for _, c := range []Codec{Zstd{}, Gzip{}} {
		if c.Extension() == ext {
			return c, true
		}
	}
	return nil, false
}
