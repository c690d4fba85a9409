package client

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrWriterBusy = errors.New("fsp: session writer is locked")
	ErrNotOwner   = errors.New("fsp: not writer lock owner")
)

// WriterID identifies the holder of a session writer lock.
type WriterID = uuid.UUID

func NewWriterID() WriterID {
	return uuid.New()
}

// AcquireWriter takes the session writer lock for owner. FSP allows only one
// upload per session; open more sessions for parallel uploads. Acquiring a lock
// owner already holds is a no-op. When the lock is held by someone else
// AcquireWriter fails with ErrWriterBusy, or blocks until release if wait is
// set. Waiters are not woken in any particular order.
func (s *Session) AcquireWriter(owner WriterID, wait bool) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	for {
		if s.closed.Load() {
			return ErrSessionClosed
		}
		if !s.writerHeld || s.writer == owner {
			s.writer = owner
			s.writerHeld = true
			return nil
		}
		if !wait {
			return ErrWriterBusy
		}
		s.writerCond.Wait()
	}
}

func (s *Session) ReleaseWriter(owner WriterID) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	if !s.writerHeld || s.writer != owner {
		return ErrNotOwner
	}
	s.writerHeld = false
	s.writerCond.Signal()
	return nil
}
