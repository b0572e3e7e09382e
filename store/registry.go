package store

import "sync"

// fileState is the per-file shared state spec.md §5 and §9 require: two
// DataFile instances opened on the same path must serialize their
// Transactions through one mutex/condvar pair, not one per instance.
type fileState struct {
	mu      sync.Mutex
	cond    *sync.Cond
	current *Transaction // nil when no Transaction is open
	refs    int
}

var (
	registryMu sync.Mutex
	registry   = map[string]*fileState{}
)

// acquireFileState looks up or creates the shared state for path, bumping
// its reference count. Matches spec.md §9's "lazily-initialized singleton
// map path -> sharedState, with the map itself guarded by a single mutex."
func acquireFileState(path string) *fileState {
	registryMu.Lock()
	defer registryMu.Unlock()
	fs, ok := registry[path]
	if !ok {
		fs = &fileState{}
		fs.cond = sync.NewCond(&fs.mu)
		registry[path] = fs
	}
	fs.refs++
	return fs
}

// releaseFileState drops a reference; once no DataFile holds the path open
// the entry is removed so long-lived processes don't accumulate registry
// entries for files they've closed.
func releaseFileState(path string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	fs, ok := registry[path]
	if !ok {
		return
	}
	fs.refs--
	if fs.refs <= 0 {
		delete(registry, path)
	}
}

// beginTxn waits until no Transaction is open on fs, then installs txn.
func (fs *fileState) beginTxn(txn *Transaction) {
	fs.mu.Lock()
	for fs.current != nil {
		fs.cond.Wait()
	}
	fs.current = txn
	fs.mu.Unlock()
}

// endTxn clears the slot and wakes any waiters.
func (fs *fileState) endTxn() {
	fs.mu.Lock()
	fs.current = nil
	fs.cond.Broadcast()
	fs.mu.Unlock()
}
