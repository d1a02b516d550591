package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var codecs = []Codec{None, S2, Zstd, LZMA}

func TestRoundTrip(t *testing.T) {
	for _, c := range codecs {
		c := c
		t.Run(c.String(), func(t *testing.T) {
			rapid.Check(t, func(t *rapid.T) {
				data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
				blob, err := Compress(c, data)
				if err != nil {
					t.Fatalf("compress: %v", err)
				}
				if Codec(blob[0]) != c {
					t.Fatalf("blob tagged %v, want %v", Codec(blob[0]), c)
				}
				out, err := Decompress(blob)
				if err != nil {
					t.Fatalf("decompress: %v", err)
				}
				if !bytes.Equal(data, out) {
					t.Fatalf("round trip mismatch")
				}
			})
		})
	}
}

func TestCompressibleDataShrinks(t *testing.T) {
	data := bytes.Repeat([]byte("POINT(1 2) "), 1000)
	for _, c := range []Codec{S2, Zstd, LZMA} {
		blob, err := Compress(c, data)
		require.NoError(t, err)
		assert.Less(t, len(blob), len(data)/4, c.String())
	}
}

func TestParseCodec(t *testing.T) {
	for name, want := range map[string]Codec{"": S2, "lzf": S2, "S2": S2, "zstd": Zstd, "lzma": LZMA, "none": None} {
		got, err := ParseCodec(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseCodec("gzip")
	assert.Error(t, err)
}

func TestDecompressRejectsGarbage(t *testing.T) {
	_, err := Decompress(nil)
	assert.Error(t, err)
	_, err = Decompress([]byte{0x7f, 1, 2})
	assert.Error(t, err)
	_, err = Decompress([]byte{byte(S2), 0xff, 0xff, 0xff})
	assert.Error(t, err)
}
