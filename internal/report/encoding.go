package report

import (
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// maxDecodedBody caps decompressed payloads.
const maxDecodedBody = 64 << 20

// ParseEncodedBody decodes body according to contentEncoding and parses the
// result with ParseBody. Unknown, stacked or broken encodings leave the
// bytes as they are.
func ParseEncodedBody(body []byte, contentEncoding string) any {
	if len(body) == 0 {
		return nil
	}
	decoded, err := Decompress(body, contentEncoding)
	if err != nil {
		return ParseBody(body)
	}
	return ParseBody(decoded)
}

// Decompress returns body decoded for a single gzip, deflate or zstd
// content coding. Other codings are returned unchanged.
func Decompress(body []byte, contentEncoding string) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))
	switch encoding {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer func() { _ = zr.Close() }()
		return readLimited(zr)
	case "deflate":
		// raw DEFLATE first, then zlib-wrapped
		fr := flate.NewReader(bytes.NewReader(body))
		out, err := readLimited(fr)
		_ = fr.Close()
		if err == nil {
			return out, nil
		}
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer func() { _ = zr.Close() }()
		return readLimited(zr)
	case "zstd":
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedBody))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(body, nil)
	default:
		return body, nil
	}
}

func readLimited(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxDecodedBody))
}
