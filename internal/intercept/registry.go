package intercept

import (
	"sort"
	"sync"
)

// Registry maps owner/member keys to entries. It owns every entry it holds.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]*Entry // key -> entry
	maxEntries int
}

// NewRegistry creates an empty registry. maxEntries bounds the number of
// entries; zero means unbounded.
func NewRegistry(maxEntries int) *Registry {
	return &Registry{
		entries:    make(map[string]*Entry),
		maxEntries: maxEntries,
	}
}

// Register binds h to owner/member, replacing and releasing any previous entry
// for the same key. Names are copied. On error nothing is stored.
func (r *Registry) Register(owner, member string, h Interceptor) error {
	if !ValidName(owner) || !ValidName(member) {
		return &RegistrationError{Owner: owner, Member: member, Err: ErrInvalidName}
	}
	if h == nil {
		return &RegistrationError{Owner: owner, Member: member, Err: ErrInvalidHandler}
	}

	entry := newEntry(owner, member, h)
	key := entry.Key()

	r.mu.Lock()
	old, replacing := r.entries[key]
	if !replacing && r.maxEntries > 0 && len(r.entries) >= r.maxEntries {
		r.mu.Unlock()
		return &RegistrationError{Owner: owner, Member: member, Err: ErrOutOfMemory}
	}
	retain(h)
	r.entries[key] = entry
	r.mu.Unlock()

	// Release outside the lock; a handler's Release may do arbitrary work.
	if replacing {
		old.release()
	}
	return nil
}

// Find returns the entry for owner/member, or nil.
func (r *Registry) Find(owner, member string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[Key(owner, member)]
}

// Unregister removes and releases the entry for owner/member.
// Returns false if no entry was registered.
func (r *Registry) Unregister(owner, member string) bool {
	r.mu.Lock()
	key := Key(owner, member)
	entry, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if ok {
		entry.release()
	}
	return ok
}

// Clear releases every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	old := r.entries
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	for _, entry := range old {
		entry.release()
	}
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Entries returns a snapshot of all entries sorted by key.
func (r *Registry) Entries() []EntryInfo {
	r.mu.RLock()
	infos := make([]EntryInfo, 0, len(r.entries))
	for _, entry := range r.entries {
		infos = append(infos, entry.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Key() < infos[j].Key()
	})
	return infos
}
