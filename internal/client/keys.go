package client

import "sync"

// KeyRegistry remembers the last access key each server handed out. Every
// session to a destination sends the newest key and stores the key of every
// accepted reply, since servers may rotate keys mid conversation.
//
// The per destination mutex also serializes requests, so only one request per
// destination is on the wire at any time.
type KeyRegistry struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
	refs    int
}

type keyEntry struct {
	mu  sync.Mutex
	key uint16
}

func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{
		entries: make(map[string]*keyEntry),
	}
}

// entry returns the entry of destination, creating it on first contact.
// Entries are never removed.
func (r *KeyRegistry) entry(destination string) *keyEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[destination]
	if !ok {
		e = &keyEntry{}
		r.entries[destination] = e
	}
	return e
}

// Key returns the last key seen from destination. It blocks while a request
// to destination is in flight.
func (r *KeyRegistry) Key(destination string) uint16 {
	e := r.entry(destination)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.key
}

// Retain registers one more session using r.
func (r *KeyRegistry) Retain() {
	r.mu.Lock()
	r.refs++
	r.mu.Unlock()
}

// Release drops a session reference and returns the number left.
func (r *KeyRegistry) Release() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs > 0 {
		r.refs--
	}
	return r.refs
}

func (r *KeyRegistry) Refs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}

func (r *KeyRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
