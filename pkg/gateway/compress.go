package gateway

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Content codings understood for packet bodies.
const (
	EncodingIdentity = "identity"
	EncodingGzip     = "gzip"
	EncodingZstd     = "zstd"
	EncodingSnappy   = "x-snappy-framed"
	EncodingLZ4      = "lz4"
)

// DefaultEncodings is the order in which reply codings are preferred.
var DefaultEncodings = []string{EncodingZstd, EncodingGzip, EncodingLZ4, EncodingSnappy}

var (
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")
	ErrBodyTooLarge        = errors.New("body exceeds size limit")
)

var zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
})

type coding struct {
	writer func(w io.Writer) io.WriteCloser
	reader func(r io.Reader) (io.Reader, error)
}

var codings = map[string]coding{
	EncodingGzip: {
		writer: func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) },
		reader: func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) },
	},
	EncodingSnappy: {
		writer: func(w io.Writer) io.WriteCloser { return snappy.NewBufferedWriter(w) },
		reader: func(r io.Reader) (io.Reader, error) { return snappy.NewReader(r), nil },
	},
	EncodingLZ4: {
		writer: func(w io.Writer) io.WriteCloser { return lz4.NewWriter(w) },
		reader: func(r io.Reader) (io.Reader, error) { return lz4.NewReader(r), nil },
	},
}

func supported(encoding string) bool {
	if encoding == EncodingIdentity || encoding == EncodingZstd {
		return true
	}
	_, ok := codings[encoding]
	return ok
}

func compress(encoding string, data []byte) ([]byte, error) {
	switch encoding {
	case "", EncodingIdentity:
		return data, nil
	case EncodingZstd:
		encoder, err := zstdEncoder()
		if err != nil {
			return nil, fmt.Errorf("unable to create zstd encoder: %w", err)
		}
		return encoder.EncodeAll(data, nil), nil
	}

	c, ok := codings[encoding]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
	}

	var buffer bytes.Buffer
	w := c.writer(&buffer)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("unable to compress with %s: %w", encoding, err)
	}
	// the trailing frame is only written on Close
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("unable to compress with %s: %w", encoding, err)
	}
	return buffer.Bytes(), nil
}

// readLimited reads r fully, failing once more than limit bytes arrive.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
	}
	return data, nil
}

// decompress reads body encoded with encoding, the limit applies to the
// decoded size.
func decompress(encoding string, body io.Reader, limit int64) ([]byte, error) {
	switch encoding {
	case "", EncodingIdentity:
		return readLimited(body, limit)
	case EncodingZstd:
		decoder, err := zstd.NewReader(body, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("unable to create zstd decoder: %w", err)
		}
		defer decoder.Close()
		return readLimited(decoder, limit)
	}

	c, ok := codings[encoding]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
	}

	r, err := c.reader(body)
	if err != nil {
		return nil, fmt.Errorf("unable to decompress %s: %w", encoding, err)
	}
	return readLimited(r, limit)
}

// negotiate picks the first of preferred that accept allows. A missing
// header or no match yields identity.
func negotiate(accept string, preferred []string) string {
	allowed := make(map[string]bool)
	wildcard := false
	for _, part := range strings.Split(accept, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}

		rejected := false
		if q, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			weight, err := strconv.ParseFloat(q, 64)
			rejected = err == nil && weight == 0
		}
		if name == "*" {
			wildcard = !rejected
			continue
		}
		allowed[name] = !rejected
	}

	for _, encoding := range preferred {
		accepted, listed := allowed[encoding]
		if accepted || (!listed && wildcard) {
			return encoding
		}
	}
	return EncodingIdentity
}
