package journal

// sealer is the forward-secure-sealing hook set (§6.5). This module does not
// implement FSS; noopSealer is called at every documented hook point so a
// caller that links in a real FSS implementation has stable attachment
// points, and so the call sites read the same whether sealing is configured
// or not.
type sealer interface {
	appendTag(f *File) error
	maybeAppendTag(f *File) error
	hmacPutObject(f *File, offset uint64) error
	appendFirstTag(f *File) error
	fssLoad(f *File) error
	hmacSetup(f *File) error
}

type noopSealer struct{}

func (noopSealer) appendTag(*File) error             { return nil }
func (noopSealer) maybeAppendTag(*File) error        { return nil }
func (noopSealer) hmacPutObject(*File, uint64) error { return nil }
func (noopSealer) appendFirstTag(*File) error        { return nil }
func (noopSealer) fssLoad(*File) error               { return nil }
func (noopSealer) hmacSetup(*File) error             { return nil }
