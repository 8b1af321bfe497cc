package journal

import (
	"bytes"
	"fmt"

	"github.com/arloliu/jrnl/errs"
	"github.com/arloliu/jrnl/format"
	"github.com/arloliu/jrnl/heap"
	"github.com/arloliu/jrnl/internal/codec"
	"github.com/arloliu/jrnl/internal/hashing"
	"github.com/arloliu/jrnl/internal/mmapcache"
)

// composeNameValue builds the "name=value" byte sequence a Data object's
// payload holds and the content hash is computed over (§3, §4.3).
func composeNameValue(name, value []byte) []byte {
	buf := make([]byte, 0, len(name)+1+len(value))
	buf = append(buf, name...)
	buf = append(buf, '=')
	buf = append(buf, value...)
	return buf
}

// contentHash picks the keyed or legacy hash per the file's configuration
// (§4.1, §9).
func (f *File) contentHash(data []byte) uint64 {
	if f.cfg.KeyedHash {
		return hashing.Keyed(f.hashKey, data)
	}
	return hashing.Legacy(data)
}

// findData looks up the Data object holding name=value without creating
// one, returning 0 if none exists yet. Used by read paths (e.g. by_monotonic
// locating a caller-supplied _BOOT_ID value) that must never mutate the file.
func (f *File) findData(name, value []byte) (uint64, error) {
	composed := composeNameValue(name, value)
	hash := f.contentHash(composed)

	return f.dataTbl.Find(f.hdr, hash, func(cand uint64) (bool, error) {
		return f.dataPayloadEquals(cand, composed)
	})
}

// findOrCreateData returns the offset of the Data object holding
// name=value, creating it (and its owning Field, if needed) if no existing
// object has an identical payload (§4.5 step 3).
func (f *File) findOrCreateData(name, value []byte) (uint64, error) {
	composed := composeNameValue(name, value)
	hash := f.contentHash(composed)

	existing, err := f.dataTbl.Find(f.hdr, hash, func(cand uint64) (bool, error) {
		return f.dataPayloadEquals(cand, composed)
	})
	if err != nil {
		return 0, err
	}
	if existing != 0 {
		return existing, nil
	}

	fieldOff, err := f.findOrCreateField(name)
	if err != nil {
		return 0, err
	}

	off, err := f.createData(fieldOff, hash, composed)
	if err != nil {
		return 0, err
	}

	if err := f.dataTbl.Link(f.hdr, hash, off); err != nil {
		return 0, err
	}

	if err := f.linkDataIntoFieldChain(fieldOff, off); err != nil {
		return 0, err
	}

	return off, nil
}

// dataPayloadEquals reports whether the Data object at offset holds exactly
// want, decompressing it first if its codec bits say it was stored
// compressed (§4.5 step 3, dedup by exact content).
func (f *File) dataPayloadEquals(offset uint64, want []byte) (bool, error) {
	ohBuf, err := f.cache.Map(mmapcache.CtxScratch, offset, format.ObjectHeaderSize, false)
	if err != nil {
		return false, err
	}
	oh, err := format.ParseObjectHeader(ohBuf)
	if err != nil {
		return false, err
	}
	if oh.Type != format.ObjectData {
		return false, fmt.Errorf("%w: expected data object at offset %d, found %s", errs.ErrBadMessage, offset, oh.Type)
	}

	payloadBuf, err := f.cache.Map(mmapcache.CtxData, offset+format.ObjectHeaderSize, oh.Size-format.ObjectHeaderSize, false)
	if err != nil {
		return false, err
	}
	d, err := format.ParseData(payloadBuf)
	if err != nil {
		return false, err
	}

	c, err := codec.Get(oh.Codec())
	if err != nil {
		return false, err
	}
	decoded, err := c.Decompress(d.Payload)
	if err != nil {
		return false, fmt.Errorf("%w: decompressing data payload at %d: %v", errs.ErrBadMessage, offset, err)
	}

	return bytes.Equal(decoded, want), nil
}

// createData allocates a new Data object for composed, compressing its
// payload first when the file has a codec configured and composed reaches
// compress_threshold (§4.5 step 3c, §6.4).
func (f *File) createData(fieldOff, hash uint64, composed []byte) (uint64, error) {
	payload := composed
	codecID := format.CompressionCodecNone

	if f.cfg.Codec != format.CompressionCodecNone && len(composed) >= f.cfg.CompressThreshold {
		c, err := codec.Get(f.cfg.Codec)
		if err != nil {
			return 0, err
		}
		framed, err := c.Compress(composed)
		if err != nil {
			return 0, err
		}
		if len(framed) < len(composed) {
			payload = framed
			codecID = f.cfg.Codec
		}
	}

	size := format.DataSize(len(payload))
	free, err := f.freeBytes()
	if err != nil {
		return 0, err
	}
	off, err := heap.Allocate(f.hdr, f.cache, f.metrics, free, format.ObjectData, size)
	if err != nil {
		return 0, err
	}

	buf, err := f.cache.Map(mmapcache.CtxData, off, size, false)
	if err != nil {
		return 0, err
	}
	oh := format.ObjectHeader{Type: format.ObjectData, Size: size}.WithCodec(codecID)
	format.PutObjectHeader(buf, oh)

	d := format.Data{Hash: hash, FieldOffset: fieldOff, Payload: payload}
	copy(buf[format.ObjectHeaderSize:], d.Bytes())

	if f.cfg.Sealing {
		if err := f.seal.hmacPutObject(f, off); err != nil {
			return 0, err
		}
	}

	return off, nil
}

// linkDataIntoFieldChain inserts the Data object at dataOff at the head of
// its Field's value chain (LIFO), the only ordering guarantee §3 makes for
// that chain.
func (f *File) linkDataIntoFieldChain(fieldOff, dataOff uint64) error {
	const headDataOffsetOff = 16
	const nextFieldOffsetOff = 16

	head, err := readU64(f.cache, fieldOff+format.ObjectHeaderSize+headDataOffsetOff)
	if err != nil {
		return err
	}
	if err := writeU64(f.cache, dataOff+format.ObjectHeaderSize+nextFieldOffsetOff, head); err != nil {
		return err
	}
	return writeU64(f.cache, fieldOff+format.ObjectHeaderSize+headDataOffsetOff, dataOff)
}

// findOrCreateField returns the offset of the Field object named name,
// creating it if it doesn't exist yet (§4.3). It does not validate name;
// callers are responsible for field-name syntax checks (AppendEntry's
// pre-pass, for ordinary entries).
func (f *File) findOrCreateField(name []byte) (uint64, error) {
	hash := hashing.Legacy(name)

	existing, err := f.fieldTbl.Find(f.hdr, hash, func(cand uint64) (bool, error) {
		return f.fieldNameEquals(cand, name)
	})
	if err != nil {
		return 0, err
	}
	if existing != 0 {
		return existing, nil
	}

	size := format.FieldSize(len(name))
	free, err := f.freeBytes()
	if err != nil {
		return 0, err
	}
	off, err := heap.Allocate(f.hdr, f.cache, f.metrics, free, format.ObjectField, size)
	if err != nil {
		return 0, err
	}

	buf, err := f.cache.Map(mmapcache.CtxField, off, size, false)
	if err != nil {
		return 0, err
	}
	format.PutObjectHeader(buf, format.ObjectHeader{Type: format.ObjectField, Size: size})

	fld := format.Field{Hash: hash, Name: name}
	copy(buf[format.ObjectHeaderSize:], fld.Bytes())

	if f.cfg.Sealing {
		if err := f.seal.hmacPutObject(f, off); err != nil {
			return 0, err
		}
	}

	if err := f.fieldTbl.Link(f.hdr, hash, off); err != nil {
		return 0, err
	}

	return off, nil
}

func (f *File) fieldNameEquals(offset uint64, name []byte) (bool, error) {
	ohBuf, err := f.cache.Map(mmapcache.CtxScratch, offset, format.ObjectHeaderSize, false)
	if err != nil {
		return false, err
	}
	oh, err := format.ParseObjectHeader(ohBuf)
	if err != nil {
		return false, err
	}
	if oh.Type != format.ObjectField {
		return false, fmt.Errorf("%w: expected field object at offset %d, found %s", errs.ErrBadMessage, offset, oh.Type)
	}

	payloadBuf, err := f.cache.Map(mmapcache.CtxScratch, offset+format.ObjectHeaderSize, oh.Size-format.ObjectHeaderSize, false)
	if err != nil {
		return false, err
	}
	fld, err := format.ParseField(payloadBuf)
	if err != nil {
		return false, err
	}

	return bytes.Equal(fld.Name, name), nil
}
