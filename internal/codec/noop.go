package codec

// noopCodec implements Codec for format.CompressionCodecNone. It still wraps
// the payload in the size-prefix framing so callers can treat every codec
// uniformly, but Decompress never actually needs the prefix since the
// remaining bytes already are the payload.
type noopCodec struct{}

func (noopCodec) Compress(data []byte) ([]byte, error) {
	out := make([]byte, sizePrefixLen+len(data))
	putSizePrefix(out, len(data))
	copy(out[sizePrefixLen:], data)
	return out, nil
}

func (noopCodec) Decompress(framed []byte) ([]byte, error) {
	_, rest, err := readSizePrefix(framed)
	if err != nil {
		return nil, err
	}
	return rest, nil
}
