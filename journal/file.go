package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/arloliu/jrnl/errs"
	"github.com/arloliu/jrnl/format"
	"github.com/arloliu/jrnl/hashtable"
	"github.com/arloliu/jrnl/internal/chaincache"
	"github.com/arloliu/jrnl/internal/hashing"
	"github.com/arloliu/jrnl/internal/mmapcache"
	"github.com/arloliu/jrnl/metrics"
	"github.com/arloliu/jrnl/offline"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// File is one open journal file: the mapped header, both hash tables, the
// object heap, and the offline state machine, wired together (§2).
//
// A File is not safe for concurrent use by multiple goroutines except for
// the asynchronous offline worker, which only ever touches the header
// through the documented CAS transitions (§5).
type File struct {
	path     string
	f        *os.File
	cache    *mmapcache.Cache
	hdr      *format.Header
	hdrBuf   []byte
	dataTbl  *hashtable.Table
	fieldTbl *hashtable.Table
	cfg      Config
	metrics  metrics.Metrics
	offline  *offline.Machine
	chains   *chaincache.Cache
	seal     sealer
	writable bool
	hashKey  hashing.Key
	log      *zap.Logger

	// defragOnClose is set by Rotate (§4.7 "Rotate"): a hint to vacuum the
	// predecessor file when it is eventually closed. This module records it
	// but does not implement an offline defragmenter; see DESIGN.md.
	defragOnClose bool
}

// Open opens or creates the journal file at path (§4.7 "Open").
func Open(path string, flag int, mode os.FileMode, opts ...Option) (*File, error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}

	var writable bool
	switch {
	case flag&os.O_RDWR != 0:
		writable = true
	case flag&os.O_WRONLY != 0:
		return nil, errs.NewLifecycleError("open", errs.ErrPerm).WithPath(path).
			WithDetail("reason", "journal files must be opened O_RDONLY or O_RDWR, never write-only")
	default:
		writable = false
	}

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)
	if isNew && !writable {
		return nil, errs.NewLifecycleError("open", errs.ErrPerm).WithPath(path).
			WithDetail("reason", "cannot create a new journal file read-only")
	}

	osFlag := flag
	if isNew {
		osFlag |= os.O_CREATE
	}
	f, err := os.OpenFile(path, osFlag, mode) //nolint:gosec
	if err != nil {
		return nil, errs.NewLifecycleError("open", errs.ErrIO).WithPath(path).WithCause(err)
	}

	file := &File{path: path, f: f, cfg: cfg, writable: writable, seal: noopSealer{}, log: cfg.Logger}

	if err := file.init(isNew); err != nil {
		_ = f.Close()
		return nil, err
	}

	return file, nil
}

// OpenReliably behaves like Open, but on any error classified by
// errs.IsRecoverable as "corrupt, please rotate" it disposes of the file and
// retries exactly once with a fresh file at path (§4.7).
func OpenReliably(path string, flag int, mode os.FileMode, opts ...Option) (*File, error) {
	f, err := Open(path, flag, mode, opts...)
	if err == nil {
		return f, nil
	}
	if !errs.IsRecoverable(err) {
		return nil, err
	}

	if dispErr := disposePath(path); dispErr != nil {
		return nil, fmt.Errorf("open_reliably: disposing corrupt file: %w (original error: %v)", dispErr, err)
	}

	return Open(path, flag, mode, opts...)
}

func (f *File) init(isNew bool) error {
	f.cache = mmapcache.New(f.f.Fd(), f.writable)
	if err := f.cache.RefreshFstat(true); err != nil {
		return errs.NewLifecycleError("open", errs.ErrIO).WithPath(f.path).WithCause(err)
	}

	m := metrics.Default(0)
	if f.cfg.Metrics != nil {
		m = *f.cfg.Metrics
	} else if derived, err := defaultMetricsForFd(int(f.f.Fd())); err == nil {
		m = derived
	}
	f.metrics = m

	if isNew {
		if err := f.initNew(); err != nil {
			return err
		}
	} else {
		if err := f.openExisting(); err != nil {
			return err
		}
	}

	f.hashKey = hashing.Key(f.hdr.FileID)
	f.chains, _ = chaincache.New(chaincache.DefaultSize)

	if f.cfg.Sealing {
		if isNew {
			if err := f.seal.hmacSetup(f); err != nil {
				return err
			}
		} else if err := f.seal.fssLoad(f); err != nil {
			return err
		}
	}

	fsyncFn := func() error { return f.f.Sync() }
	commitFn := func(archived bool) error {
		if archived {
			f.hdr.State = format.StateArchived
		} else {
			f.hdr.State = format.StateOffline
		}
		return f.flushHeader()
	}
	f.offline = offline.New(fsyncFn, commitFn, f.log)

	if f.writable {
		if err := f.refreshAndGoOnline(); err != nil {
			return err
		}
	}

	return nil
}

func (f *File) initNew() error {
	free, err := statvfsFreeBytes(int(f.f.Fd()))
	if err != nil {
		return err
	}

	if err := unix.Fallocate(int(f.f.Fd()), 0, 0, int64(format.HeaderSize)); err != nil { //nolint:gosec
		return errs.NewLifecycleError("open", errs.ErrIO).WithPath(f.path).WithCause(err)
	}
	if err := f.cache.RefreshFstat(true); err != nil {
		return err
	}

	hdr := &format.Header{
		Magic:      format.Magic,
		State:      format.StateOffline,
		HeaderSize: format.HeaderSize,
	}
	fid, _ := uuid.NewRandom()
	copy(hdr.FileID[:], fid[:])
	copy(hdr.MachineID[:], hostMachineID())
	copy(hdr.BootID[:], hostBootID())

	if f.cfg.Template != nil {
		hdr.SeqnumID = f.cfg.Template.SeqnumID
		hdr.TailEntrySeqnum = f.cfg.Template.TailEntrySeqnum
	} else {
		sid, _ := uuid.NewRandom()
		copy(hdr.SeqnumID[:], sid[:])
	}

	if f.cfg.KeyedHash {
		hdr.IncompatibleFlags |= format.FlagKeyedHash
	}
	if codecFlag := format.CodecFlag(f.cfg.Codec); codecFlag != 0 {
		hdr.IncompatibleFlags |= codecFlag
	}
	if f.cfg.Sealing {
		hdr.CompatibleFlags |= format.FlagSealed
	}

	f.hdr = hdr

	hdrBuf, err := f.cache.Map(mmapcache.CtxHeader, 0, format.HeaderSize, true)
	if err != nil {
		return err
	}
	f.hdrBuf = hdrBuf
	copy(hdrBuf, hdr.Bytes())

	dataTbl, err := hashtable.CreateDataTable(f.hdr, f.cache, f.metrics, free)
	if err != nil {
		return err
	}
	fieldTbl, err := hashtable.CreateFieldTable(f.hdr, f.cache, f.metrics, free)
	if err != nil {
		return err
	}
	f.dataTbl, f.fieldTbl = dataTbl, fieldTbl

	if err := f.flushHeader(); err != nil {
		return err
	}

	return f.setXattrCreationTime()
}

func (f *File) openExisting() error {
	if f.cache.Size() < format.HeaderSize {
		return errs.NewLifecycleError("open", errs.ErrNoData).WithPath(f.path)
	}

	hdrBuf, err := f.cache.Map(mmapcache.CtxHeader, 0, format.HeaderSize, true)
	if err != nil {
		return err
	}
	hdr, err := format.ParseHeader(hdrBuf)
	if err != nil {
		return errs.NewLifecycleError("open", err).WithPath(f.path)
	}
	if err := hdr.Validate(f.cache.Size()); err != nil {
		return errs.NewLifecycleError("open", err).WithPath(f.path)
	}

	if f.writable {
		if hdr.MachineID != [16]byte(hostMachineID()) {
			return errs.NewLifecycleError("open", errs.ErrHostDown).WithPath(f.path)
		}
		if hdr.State == format.StateOnline {
			return errs.NewLifecycleError("open", errs.ErrBusy).WithPath(f.path)
		}
		if hdr.State == format.StateArchived {
			return errs.NewLifecycleError("open", errs.ErrShutdown).WithPath(f.path)
		}
		if hdr.TailEntryRealtime != 0 && hdr.TailEntryRealtime > uint64(time.Now().UnixMicro()) { //nolint:gosec
			return errs.NewLifecycleError("open", errs.ErrTxtBsy).WithPath(f.path)
		}
	}

	f.hdr = hdr
	f.hdrBuf = hdrBuf

	dataTbl, err := hashtable.Open(f.cache, f.hdr, hashtable.KindData)
	if err != nil {
		return err
	}
	fieldTbl, err := hashtable.Open(f.cache, f.hdr, hashtable.KindField)
	if err != nil {
		return err
	}
	f.dataTbl, f.fieldTbl = dataTbl, fieldTbl

	return nil
}

// refreshAndGoOnline implements §4.7 step 5: refresh machine_id/boot_id,
// mark the file online, and fsync both the file and its containing
// directory so the state transition is durable.
func (f *File) refreshAndGoOnline() error {
	copy(f.hdr.MachineID[:], hostMachineID())
	copy(f.hdr.BootID[:], hostBootID())
	f.hdr.State = format.StateOnline

	if err := f.flushHeader(); err != nil {
		return err
	}
	if err := f.f.Sync(); err != nil {
		return fmt.Errorf("%w: fsync: %v", errs.ErrIO, err)
	}

	return fsyncDir(f.path)
}

// flushHeader serializes f.hdr and copies it into the mapped header window,
// which heap.Allocate and the hash-table/entry-array helpers mutate only
// in-memory.
func (f *File) flushHeader() error {
	copy(f.hdrBuf, f.hdr.Bytes())
	return nil
}

func (f *File) freeBytes() (uint64, error) {
	return statvfsFreeBytes(int(f.f.Fd()))
}

// Close flushes a writable file offline and releases its mappings. Readers
// (files opened read-only) simply unmap and close.
func (f *File) Close() error {
	if f.writable {
		if f.cfg.Sealing {
			if err := f.seal.appendTag(f); err != nil {
				return err
			}
		}
		if err := f.offline.SetOffline(true, false); err != nil {
			return err
		}
	}
	if err := f.cache.Close(); err != nil {
		return err
	}
	return f.f.Close()
}

// SetOnline cancels a pending offline transition and brings the file back
// online (§4.6 set_online).
func (f *File) SetOnline() error {
	if err := f.offline.SetOnline(); err != nil {
		return err
	}
	if f.hdr.State == format.StateArchived {
		return offline.ErrArchived
	}
	f.hdr.State = format.StateOnline
	if err := f.flushHeader(); err != nil {
		return err
	}
	return f.f.Sync()
}

// Archive requests the offline worker commit state=archived instead of
// state=offline on its next cycle (§4.6, used by Rotate on the predecessor).
func (f *File) Archive(wait bool) error {
	return f.offline.SetOffline(wait, true)
}

// setXattrCreationTime best-effort tags the file with a "creation time"
// extended attribute (§4.7 step 3). Not all filesystems support user xattrs;
// failure here is not fatal to Open.
func (f *File) setXattrCreationTime() error {
	val := fmt.Sprintf("%d", time.Now().UnixMicro())
	_ = unix.Fsetxattr(int(f.f.Fd()), "user.jrnl_created", []byte(val), 0)
	return nil
}

func fsyncDir(path string) error {
	dir, err := os.Open(filepath.Dir(path)) //nolint:gosec
	if err != nil {
		return fmt.Errorf("%w: opening directory for fsync: %v", errs.ErrIO, err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return fmt.Errorf("%w: fsync directory: %v", errs.ErrIO, err)
	}
	return nil
}

func disposePath(path string) error {
	now := time.Now()
	rnd, _ := uuid.NewRandom()
	target := fmt.Sprintf("%s@%x-%x.journal~", trimJournalSuffix(path), now.UnixMicro(), rnd[:4])
	if err := os.Rename(path, target); err != nil {
		return err
	}
	return fsyncDir(path)
}

func trimJournalSuffix(path string) string {
	const suffix = ".journal"
	if len(path) > len(suffix) && path[len(path)-len(suffix):] == suffix {
		return path[:len(path)-len(suffix)]
	}
	return path
}
