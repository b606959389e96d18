package provider

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// maxBodySize bounds how much of a provider reply is kept
const maxBodySize = 4 * 1024 * 1024

// readBody reads and decodes a response body according to Content-Encoding
func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return decodeBody(resp.Header.Get("Content-Encoding"), raw)
}

// decodeBody undoes the content codings in the order they were applied
func decodeBody(encoding string, raw []byte) ([]byte, error) {
	codings := strings.Split(encoding, ",")
	body := raw
	for i := len(codings) - 1; i >= 0; i-- {
		coding := strings.ToLower(strings.TrimSpace(codings[i]))
		var err error
		switch coding {
		case "", "identity":
			continue
		case "gzip", "x-gzip":
			body, err = decodeWith(body, func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) })
		case "deflate":
			body, err = inflate(body)
		case "br":
			body, err = decodeWith(body, func(r io.Reader) (io.Reader, error) { return brotli.NewReader(r), nil })
		default:
			return nil, fmt.Errorf("unsupported content encoding %q", coding)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s body: %w", coding, err)
		}
	}
	return body, nil
}

// inflate handles "deflate", which servers send either zlib-wrapped or raw
func inflate(body []byte) ([]byte, error) {
	decoded, err := decodeWith(body, func(r io.Reader) (io.Reader, error) { return zlib.NewReader(r) })
	if err == nil {
		return decoded, nil
	}
	return decodeWith(body, func(r io.Reader) (io.Reader, error) { return flate.NewReader(r), nil })
}

func decodeWith(body []byte, open func(io.Reader) (io.Reader, error)) ([]byte, error) {
	r, err := open(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	return io.ReadAll(io.LimitReader(r, maxBodySize))
}
