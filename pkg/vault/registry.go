package vault

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// Handle pairs a vault with its mutation lock. All state transitions for a
// vault happen under this lock; reads that tolerate a torn snapshot may skip
// it.
type Handle struct {
	mu sync.Mutex
	V  *Vault
}

// WithLock runs fn while holding the vault's mutation lock.
func (h *Handle) WithLock(fn func(v *Vault) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h.V)
}

// Registry is the in-memory index of live vaults.
type Registry struct {
	vaults *xsync.Map[string, *Handle]
}

func NewRegistry() *Registry {
	return &Registry{vaults: xsync.NewMap[string, *Handle]()}
}

// Get returns the handle for a vault ID.
func (r *Registry) Get(id string) (*Handle, error) {
	h, ok := r.vaults.Load(id)
	if !ok {
		return nil, ErrVaultNotFound
	}
	return h, nil
}

// Put registers a vault, replacing any previous handle for the same ID.
func (r *Registry) Put(v *Vault) *Handle {
	h := &Handle{V: v}
	r.vaults.Store(v.ID, h)
	return h
}

// Range visits every registered handle until fn returns false.
func (r *Registry) Range(fn func(id string, h *Handle) bool) {
	r.vaults.Range(fn)
}

// Size returns the number of registered vaults.
func (r *Registry) Size() int {
	return r.vaults.Size()
}
