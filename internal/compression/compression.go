// Package compression wraps the block codecs objects are stored with. Every
// compressed blob starts with one byte naming its codec so readers can
// decompress blobs written under any configuration.
package compression

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz/lzma"
)

type Codec byte

const (
	None Codec = 0
	// S2 is a fast block codec in the LZ77 family and the default.
	S2   Codec = 1
	Zstd Codec = 2
	LZMA Codec = 3
)

func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case S2:
		return "s2"
	case Zstd:
		return "zstd"
	case LZMA:
		return "lzma"
	}
	return fmt.Sprintf("codec(%d)", byte(c))
}

// ParseCodec maps a configuration name to a Codec. The empty name selects
// S2.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "s2", "lzf":
		return S2, nil
	case "none":
		return None, nil
	case "zstd":
		return Zstd, nil
	case "lzma":
		return LZMA, nil
	}
	return None, fmt.Errorf("unknown compression codec %q", name)
}

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// Compress returns data compressed with c, prefixed by the codec byte.
func Compress(c Codec, data []byte) ([]byte, error) {
	out := []byte{byte(c)}
	switch c {
	case None:
		return append(out, data...), nil
	case S2:
		return append(out, s2.Encode(nil, data)...), nil
	case Zstd:
		enc, _, err := zstdCodec()
		if err != nil {
			return nil, fmt.Errorf("init zstd: %w", err)
		}
		return enc.EncodeAll(data, out), nil
	case LZMA:
		buf := bytes.NewBuffer(out)
		w, err := lzma.NewWriter(buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown compression codec %d", byte(c))
}

// Decompress reverses Compress for any codec.
func Decompress(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty compressed blob")
	}
	c, payload := Codec(blob[0]), blob[1:]
	switch c {
	case None:
		return bytes.Clone(payload), nil
	case S2:
		out, err := s2.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("s2: %w", err)
		}
		return out, nil
	case Zstd:
		if len(payload) == 0 {
			return []byte{}, nil
		}
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, fmt.Errorf("init zstd: %w", err)
		}
		out, err := dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return out, nil
	case LZMA:
		r, err := lzma.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("lzma: %w", err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r); err != nil {
			return nil, fmt.Errorf("lzma: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown compression codec %d", byte(c))
}
