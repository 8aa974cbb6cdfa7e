package kgo

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/fluvio-go/fluvio/pkg/ferr"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the record-batch compression codec, encoded in the
// low 3 bits of a RecordBatch's attributes field.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionSnappy
	CompressionLz4
	CompressionZstd
)

// compress encodes src with c, returning src unchanged for
// CompressionNone.
func compress(c Compression, src []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return src, nil
	case CompressionGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(src); err != nil {
			return nil, ferr.Errorf(ferr.CodeEncodingError, "gzip compress: %v", err)
		}
		if err := zw.Close(); err != nil {
			return nil, ferr.Errorf(ferr.CodeEncodingError, "gzip compress: %v", err)
		}
		return buf.Bytes(), nil
	case CompressionSnappy:
		return snappy.Encode(nil, src), nil
	case CompressionLz4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(src); err != nil {
			return nil, ferr.Errorf(ferr.CodeEncodingError, "lz4 compress: %v", err)
		}
		if err := zw.Close(); err != nil {
			return nil, ferr.Errorf(ferr.CodeEncodingError, "lz4 compress: %v", err)
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, ferr.Errorf(ferr.CodeEncodingError, "zstd compress: %v", err)
		}
		out := enc.EncodeAll(src, nil)
		enc.Close()
		return out, nil
	default:
		return nil, ferr.New(ferr.CodeUnsupportedApiVersion, "unsupported compression codec at negotiation")
	}
}

// decompress reverses compress, inferring the codec from the wire
// attribute bits the caller read.
func decompress(c Compression, src []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return src, nil
	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, ferr.Errorf(ferr.CodeMalformed, "gzip decompress: %v", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, ferr.Errorf(ferr.CodeMalformed, "gzip decompress: %v", err)
		}
		return out, nil
	case CompressionSnappy:
		out, err := snappy.Decode(nil, src)
		if err != nil {
			return nil, ferr.Errorf(ferr.CodeMalformed, "snappy decompress: %v", err)
		}
		return out, nil
	case CompressionLz4:
		zr := lz4.NewReader(bytes.NewReader(src))
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, ferr.Errorf(ferr.CodeMalformed, "lz4 decompress: %v", err)
		}
		return out, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, ferr.Errorf(ferr.CodeMalformed, "zstd decompress: %v", err)
		}
		defer dec.Close()
		out, err := io.ReadAll(dec)
		if err != nil {
			return nil, ferr.Errorf(ferr.CodeMalformed, "zstd decompress: %v", err)
		}
		return out, nil
	default:
		return nil, ferr.New(ferr.CodeUnsupportedApiVersion, "unsupported compression codec at negotiation")
	}
}
