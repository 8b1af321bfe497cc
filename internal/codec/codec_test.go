package codec

import (
	"bytes"
	"testing"

	"github.com/arloliu/jrnl/format"
)

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7 % 251)
	}
	return b
}

func TestCodecRoundTrip(t *testing.T) {
	ids := []format.CompressionCodec{
		format.CompressionCodecNone,
		format.CompressionCodecXZ,
		format.CompressionCodecLZ4,
		format.CompressionCodecZstd,
	}

	for _, id := range ids {
		c, err := Get(id)
		if err != nil {
			t.Fatalf("Get(%d): %v", id, err)
		}

		for _, n := range []int{0, 1, 8, 511, 512, 600, 1 << 16} {
			data := payload(n)
			framed, err := c.Compress(data)
			if err != nil {
				t.Fatalf("codec %d Compress(%d bytes): %v", id, n, err)
			}
			got, err := c.Decompress(framed)
			if err != nil {
				t.Fatalf("codec %d Decompress(%d bytes): %v", id, n, err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("codec %d round-trip mismatch at size %d", id, n)
			}
		}
	}
}

func TestGetUnknownCodec(t *testing.T) {
	if _, err := Get(format.CompressionCodec(7)); err == nil {
		t.Fatal("expected an error for an unknown codec id")
	}
}
