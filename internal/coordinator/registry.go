package coordinator

import (
	"path/filepath"
	"sync"

	"github.com/synnergy-network/zkbob-cloud/internal/account"
	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
	"github.com/synnergy-network/zkbob-cloud/internal/kv"
)

// handle is one loaded account plus its in-flight reference count.
type handle struct {
	acct *account.Account
	refs int
}

// registry maps account id to its handle. Handle creation is
// serialised under mu, held only for the map mutation; loading an
// account from disk happens outside the lock, with a second map check
// to resolve the load race. Handles themselves are shared by
// reference count.
type registry struct {
	mu          sync.Mutex
	handles     map[string]*handle
	accountsDir string
}

func newRegistry(accountsDir string) *registry {
	return &registry{handles: map[string]*handle{}, accountsDir: accountsDir}
}

// Release, when called, decrements the handle's reference count and
// evicts it once it reaches zero, so accounts are loaded on demand and
// not kept resident between requests.
type Release func()

func (r *registry) accountPath(id string) string {
	return filepath.Join(r.accountsDir, id, "account.db")
}

// get loads id's handle, creating it on first access, and returns the
// account alongside a Release the caller must invoke exactly once
// (typically via `defer`) regardless of how the call that needed it
// exits.
func (r *registry) get(id string) (*account.Account, Release, error) {
	r.mu.Lock()
	if h, ok := r.handles[id]; ok {
		h.refs++
		r.mu.Unlock()
		return h.acct, r.releaseFunc(id), nil
	}
	r.mu.Unlock()

	store, err := kv.Open(kv.Options{Path: r.accountPath(id), Columns: account.Columns})
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.CodeInternal, err, "coordinator: open account store")
	}
	acct, err := account.Load(store)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	r.mu.Lock()
	if h, ok := r.handles[id]; ok {
		// Lost a race with another loader; keep theirs, discard ours.
		h.refs++
		r.mu.Unlock()
		_ = store.Close()
		return h.acct, r.releaseFunc(id), nil
	}
	r.handles[id] = &handle{acct: acct, refs: 1}
	r.mu.Unlock()
	return acct, r.releaseFunc(id), nil
}

func (r *registry) releaseFunc(id string) Release {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		r.mu.Lock()
		defer r.mu.Unlock()
		h, ok := r.handles[id]
		if !ok {
			return
		}
		h.refs--
		if h.refs <= 0 {
			_ = h.acct.Store().Close()
			delete(r.handles, id)
		}
	}
}

// isHeld reports whether id currently has any live handle, used to
// refuse deleting an account that is in use.
func (r *registry) isHeld(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[id]
	return ok
}
