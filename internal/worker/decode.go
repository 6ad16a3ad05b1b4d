package worker

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
)

// maxClassifierBytes caps the decompressed classifier size.
const maxClassifierBytes = 256 << 20

// DecodeClassifier reverses the transport encoding of Model.Data:
// standard base64 over a gzip stream.
func DecodeClassifier(data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode classifier base64: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open classifier gzip: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, maxClassifierBytes+1))
	if err != nil {
		return nil, fmt.Errorf("decompress classifier: %w", err)
	}
	if len(out) > maxClassifierBytes {
		return nil, fmt.Errorf("decompress classifier: payload exceeds %d bytes", maxClassifierBytes)
	}
	return out, nil
}

// EncodeClassifier produces the Model.Data form of a classifier payload.
// Clients use it to build models; the submit command does so for plain
// classifier objects.
func EncodeClassifier(payload []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return "", fmt.Errorf("compress classifier: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress classifier: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
