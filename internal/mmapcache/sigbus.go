package mmapcache

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// sigbusRegistry is the process-wide set of file descriptors known to have
// faulted. mmap access to a page backed by a file that was truncated or
// whose filesystem went away raises SIGBUS; since that fault is delivered
// asynchronously to whichever goroutine happened to touch the page, the only
// safe place to remember it is a process-wide registry that every Cache
// consults before trusting its own mappings (§9 "global mutable state").
//
// It is initialized lazily on the first Cache construction and lives for the
// process's lifetime; there is no teardown API by design, mirroring how the
// reference implementation treats its SIGBUS handler as a permanent,
// once-installed fixture of the process.
var (
	sigbusOnce sync.Once
	sigbusMu   sync.Mutex
	sigbusSet  map[uintptr]bool
	sigbusCh   chan os.Signal
)

func installSigbusHandler() {
	sigbusOnce.Do(func() {
		sigbusSet = make(map[uintptr]bool)
		sigbusCh = make(chan os.Signal, 16)
		signal.Notify(sigbusCh, syscall.SIGBUS)

		go func() {
			for range sigbusCh {
				// The signal alone does not identify which descriptor
				// faulted; callers that observe an unexpected error from a
				// mapped region call markFaulted explicitly once they
				// conclude the corresponding file is the cause. This
				// goroutine's job is solely to keep the process alive
				// instead of crashing on what would otherwise be a fatal
				// signal, and to give markAnyFault a global signal.
				markAnyFault()
			}
		}()
	})
}

// anyFault records that some Cache somewhere has observed a fault, for
// Caches that have not yet been able to attribute a failure to a specific
// descriptor. It degrades gracefully to "treat every open file as suspect"
// rather than silently trusting stale mappings.
var anyFault bool

func markAnyFault() {
	sigbusMu.Lock()
	anyFault = true
	sigbusMu.Unlock()
}

func markFaulted(fd uintptr) {
	sigbusMu.Lock()
	if sigbusSet == nil {
		sigbusSet = make(map[uintptr]bool)
	}
	sigbusSet[fd] = true
	sigbusMu.Unlock()
}

func hasFaulted(fd uintptr) bool {
	sigbusMu.Lock()
	defer sigbusMu.Unlock()
	return sigbusSet[fd] || anyFault
}
