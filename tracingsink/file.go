package tracingsink

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/jasongin/tracing"
)

// Encoding selects the wire format of a file sink.
type Encoding string

const (
	EncodingJSON    Encoding = "json"
	EncodingMsgpack Encoding = "msgpack"
	EncodingCBOR    Encoding = "cbor"
)

// ParseEncoding maps a user-supplied string to an Encoding. The empty
// string means JSON.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case EncodingJSON, "":
		return EncodingJSON, nil
	case EncodingMsgpack:
		return EncodingMsgpack, nil
	case EncodingCBOR:
		return EncodingCBOR, nil
	default:
		return "", fmt.Errorf("unknown encoding %q", s)
	}
}

// FileSink writes an encoded trace to a file, optionally gzip-compressed.
// It owns the file handle: Close finishes the encoding, flushes the
// compressor, and closes the file.
type FileSink struct {
	sink tracing.Sink
	json *JSONSink // non-nil for the JSON encoding, to terminate the array
	gz   *gzip.Writer
	file *os.File
}

// NewFileSink creates (or truncates) path and returns a sink encoding
// chunks with the given encoding.
func NewFileSink(path string, enc Encoding, compress bool) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	fs := &FileSink{file: f}

	var w io.Writer = f
	if compress {
		fs.gz = gzip.NewWriter(f)
		w = fs.gz
	}

	switch enc {
	case EncodingJSON, "":
		fs.json = NewJSONSink(w)
		fs.sink = fs.json
	case EncodingMsgpack:
		fs.sink = NewMsgpackSink(w)
	case EncodingCBOR:
		fs.sink = NewCBORSink(w)
	default:
		f.Close()
		return nil, fmt.Errorf("unknown encoding %q", enc)
	}

	return fs, nil
}

// WriteChunk implements tracing.Sink.
func (s *FileSink) WriteChunk(events []tracing.Event) error {
	return s.sink.WriteChunk(events)
}

// Close finishes the trace file. Call it after Agent.Stop, once no more
// chunks can arrive.
func (s *FileSink) Close() error {
	var first error

	if s.json != nil {
		first = s.json.Close()
	}
	if s.gz != nil {
		if err := s.gz.Close(); err != nil && first == nil {
			first = err
		}
	}
	if err := s.file.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
