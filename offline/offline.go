// Package offline implements the lock-free online/offline state machine
// (§4.6): a caller thread and an asynchronous "journal-offline" worker
// goroutine race on a single state field through compare-and-swap, so that
// the caller never blocks on fsync unless it explicitly asks to.
package offline

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type state int32

const (
	stateIdle state = iota
	stateSyncing
	stateOfflining
	stateAgainFromSyncing
	stateAgainFromOfflining
	stateCancel
	stateDone
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateSyncing:
		return "syncing"
	case stateOfflining:
		return "offlining"
	case stateAgainFromSyncing:
		return "again-from-syncing"
	case stateAgainFromOfflining:
		return "again-from-offlining"
	case stateCancel:
		return "cancel"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Machine coordinates one file's offline transition. fsync and commit are
// supplied by the caller (the journal package): fsync flushes the file's
// mapped pages, commit writes the header's state byte (offline or archived)
// and fsyncs again.
type Machine struct {
	st     atomic.Int32
	wg     sync.WaitGroup
	mu     sync.Mutex
	fsync  func() error
	commit func(archived bool) error
	log    *zap.Logger

	archived bool
}

// New creates a Machine at rest (idle, no worker running).
func New(fsync func() error, commit func(archived bool) error, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{fsync: fsync, commit: commit, log: log}
}

func (m *Machine) load() state    { return state(m.st.Load()) }
func (m *Machine) cas(old, next state) bool {
	return m.st.CompareAndSwap(int32(old), int32(next))
}
func (m *Machine) store(s state) { m.st.Store(int32(s)) }

// run is the worker loop from §4.6's transition table. It returns once it
// reaches done (either by committing or by being cancelled).
func (m *Machine) run() {
	defer m.wg.Done()

	for {
		switch s := m.load(); s {
		case stateSyncing:
			if err := m.fsync(); err != nil {
				m.log.Error("offline worker fsync failed", zap.Error(err))
			}
			m.cas(stateSyncing, stateOfflining)

		case stateOfflining:
			if err := m.commit(m.archived); err != nil {
				m.log.Error("offline worker commit failed", zap.Error(err))
			} else if err := m.fsync(); err != nil {
				m.log.Error("offline worker post-commit fsync failed", zap.Error(err))
			}
			m.cas(stateOfflining, stateDone)
			return

		case stateAgainFromSyncing, stateAgainFromOfflining:
			m.cas(s, stateSyncing)

		case stateCancel:
			m.cas(stateCancel, stateDone)
			return

		default:
			return
		}
	}
}

// join waits for a running worker to reach done, then resets the machine to
// idle. It is a no-op if no worker is running.
func (m *Machine) join() {
	m.wg.Wait()
	m.st.CompareAndSwap(int32(stateDone), int32(stateIdle))
}

// SetOffline requests the file transition offline (or archived, if archived
// is true). If wait is true the work happens inline and SetOffline doesn't
// return until it's durable; otherwise a worker goroutine is spawned and
// SetOffline returns immediately (§4.6).
func (m *Machine) SetOffline(wait, archived bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch cur := m.load(); cur {
	case stateIdle:
		m.archived = archived
		m.store(stateSyncing)
		m.wg.Add(1)
		if wait {
			m.run()
			m.join()
		} else {
			go m.run()
		}

	case stateDone:
		m.join()
		return m.SetOffline(wait, archived)

	case stateSyncing:
		m.cas(stateSyncing, stateAgainFromSyncing)
		if wait {
			m.join()
		}

	case stateOfflining:
		m.cas(stateOfflining, stateAgainFromOfflining)
		if wait {
			m.join()
		}

	default:
		// Already mid-cancellation or transiently in a state another
		// caller is driving; nothing more to request.
	}

	return nil
}

// SetOnline cancels any pending syncing/again-* transition and joins the
// worker, leaving the file ready to be marked online by the caller. It does
// not check whether the file is archived; the caller does that.
func (m *Machine) SetOnline() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		cur := m.load()
		if cur != stateSyncing && cur != stateAgainFromSyncing && cur != stateAgainFromOfflining {
			break
		}
		if m.cas(cur, stateCancel) {
			break
		}
	}

	m.join()

	return nil
}

// State reports the current transition state, for diagnostics and tests.
func (m *Machine) State() string {
	return m.load().String()
}

// ErrArchived is the refusal to bring an archived file back online (§4.6
// "Refuses to online an archived file"); the journal package's
// File.SetOnline returns it when the file's header says archived.
var ErrArchived = fmt.Errorf("cannot set an archived file online")
