package journal

import (
	"bytes"
	"fmt"

	"github.com/arloliu/jrnl/errs"
	"github.com/arloliu/jrnl/format"
	"github.com/arloliu/jrnl/internal/codec"
	"github.com/arloliu/jrnl/internal/mmapcache"
)

// CopyEntryFrom copies the entry at entryOffset in src into f, re-running
// the dedup/link steps AppendEntry does against f's own tables but using
// src's raw field=value bytes and preserving the source entry's original
// realtime, monotonic, and boot_id (§6.3 copy_entry) — used by rotation and
// vacuum tooling moving entries from a predecessor file into its successor.
func (f *File) CopyEntryFrom(src *File, entryOffset uint64) (uint64, error) {
	if !f.writable {
		return 0, errs.NewLifecycleError("copy_entry", errs.ErrPerm).WithPath(f.path)
	}

	entry, err := src.readEntry(entryOffset)
	if err != nil {
		return 0, err
	}

	fields := make([]EntryInput, 0, len(entry.Items))
	for _, it := range entry.Items {
		name, value, err := readFieldValue(src.cache, it.DataOffset)
		if err != nil {
			return 0, err
		}
		fields = append(fields, EntryInput{Name: name, Value: value})
	}

	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: source entry at %d has no copyable fields", errs.ErrBadMessage, entryOffset)
	}

	return f.appendEntryRaw(entry.Realtime, entry.Monotonic, entry.BootID, fields)
}

// readFieldValue reads the Data object at dataOff, decompressing its
// payload if needed, and the name of the Field that owns it, returning them
// split apart as name, value (the inverse of composeNameValue).
func readFieldValue(cache *mmapcache.Cache, dataOff uint64) (name, value []byte, err error) {
	ohBuf, err := cache.Map(mmapcache.CtxScratch, dataOff, format.ObjectHeaderSize, false)
	if err != nil {
		return nil, nil, err
	}
	oh, err := format.ParseObjectHeader(ohBuf)
	if err != nil {
		return nil, nil, err
	}
	if oh.Type != format.ObjectData {
		return nil, nil, fmt.Errorf("%w: expected data object at offset %d, found %s", errs.ErrBadMessage, dataOff, oh.Type)
	}

	payloadBuf, err := cache.Map(mmapcache.CtxScratch, dataOff+format.ObjectHeaderSize, oh.Size-format.ObjectHeaderSize, false)
	if err != nil {
		return nil, nil, err
	}
	d, err := format.ParseData(payloadBuf)
	if err != nil {
		return nil, nil, err
	}

	c, err := codec.Get(oh.Codec())
	if err != nil {
		return nil, nil, err
	}
	composed, err := c.Decompress(d.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: decompressing data payload at %d: %v", errs.ErrBadMessage, dataOff, err)
	}

	fieldNameBuf, err := readFieldName(cache, d.FieldOffset)
	if err != nil {
		return nil, nil, err
	}

	sep := len(fieldNameBuf) + 1
	if sep > len(composed) || !bytes.Equal(composed[:len(fieldNameBuf)], fieldNameBuf) || composed[len(fieldNameBuf)] != '=' {
		return nil, nil, fmt.Errorf("%w: data payload at %d does not start with its field name", errs.ErrBadMessage, dataOff)
	}

	return fieldNameBuf, composed[sep:], nil
}

func readFieldName(cache *mmapcache.Cache, fieldOff uint64) ([]byte, error) {
	ohBuf, err := cache.Map(mmapcache.CtxScratch, fieldOff, format.ObjectHeaderSize, false)
	if err != nil {
		return nil, err
	}
	oh, err := format.ParseObjectHeader(ohBuf)
	if err != nil {
		return nil, err
	}
	if oh.Type != format.ObjectField {
		return nil, fmt.Errorf("%w: expected field object at offset %d, found %s", errs.ErrBadMessage, fieldOff, oh.Type)
	}

	payloadBuf, err := cache.Map(mmapcache.CtxScratch, fieldOff+format.ObjectHeaderSize, oh.Size-format.ObjectHeaderSize, false)
	if err != nil {
		return nil, err
	}
	fld, err := format.ParseField(payloadBuf)
	if err != nil {
		return nil, err
	}

	return fld.Name, nil
}
