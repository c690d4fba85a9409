package client

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/fsp/internal/common"
)

var ErrStreamClosed = errors.New("fsp: stream closed")

// Reader reads a remote file sequentially, one reply at a time.
type Reader struct {
	s    *Session
	name []byte
	pos  uint32
	buf  []byte
	eof  bool
}

func (s *Session) NewReader(path string) *Reader {
	return &Reader{s: s, name: common.CString(path)}
}

func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(r.buf) == 0 {
		if r.eof {
			return 0, io.EOF
		}
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *Reader) fill() error {
	pck, err := r.s.Request(common.CmdGetFile, r.pos, r.name, nil)
	if err != nil {
		return err
	}
	if err := pck.Expect(common.CmdGetFile); err != nil {
		return err
	}
	if len(pck.Data) == 0 {
		r.eof = true
		return nil
	}
	if err := r.s.pace(len(pck.Data)); err != nil {
		return err
	}
	r.s.recordBytes("read", len(pck.Data))
	r.pos += uint32(len(pck.Data))
	r.buf = pck.Data
	return nil
}

// Seek moves the read offset. The size of a remote file is unknown, so
// io.SeekEnd is not supported.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	current := int64(r.pos) - int64(len(r.buf))
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += current
	default:
		return current, fmt.Errorf("fsp: unsupported whence %d", whence)
	}
	if offset < 0 || offset > 0xffffffff {
		return current, fmt.Errorf("fsp: offset %d out of range", offset)
	}
	if offset != current {
		r.pos = uint32(offset)
		r.buf = nil
		r.eof = false
	}
	return offset, nil
}

func (r *Reader) Close() error {
	r.buf = nil
	r.eof = true
	return nil
}

// Writer uploads a remote file. It holds the session writer lock from
// NewWriter until Close or Abort. Data is sent in full packets; the last
// packet is sent by Close, followed by the INSTALL that makes the file
// visible.
type Writer struct {
	s         *Session
	owner     WriterID
	name      []byte
	timestamp time.Time
	buf       []byte
	pos       uint32
	closed    bool
}

// NewWriter waits for the session writer lock and starts an upload to path.
// A non zero timestamp becomes the modification time of the file.
func (s *Session) NewWriter(path string, timestamp time.Time) (*Writer, error) {
	owner := NewWriterID()
	if err := s.AcquireWriter(owner, true); err != nil {
		return nil, err
	}
	return &Writer{
		s:         s,
		owner:     owner,
		name:      common.CString(path),
		timestamp: timestamp,
		buf:       make([]byte, 0, common.MaxDataSize),
	}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrStreamClosed
	}
	written := 0
	for len(p) > 0 {
		if len(w.buf) == cap(w.buf) {
			if err := w.flush(); err != nil {
				return written, err
			}
		}
		n := copy(w.buf[len(w.buf):cap(w.buf)], p)
		w.buf = w.buf[:len(w.buf)+n]
		p = p[n:]
		written += n
	}
	return written, nil
}

func (w *Writer) flush() error {
	if err := w.s.pace(len(w.buf)); err != nil {
		return err
	}
	pck, err := w.s.Request(common.CmdUpload, w.pos, w.buf, nil)
	if err != nil {
		return err
	}
	if err := pck.Expect(common.CmdUpload); err != nil {
		return err
	}
	w.s.recordBytes("write", len(w.buf))
	w.pos += uint32(len(w.buf))
	w.buf = w.buf[:0]
	return nil
}

// Close sends the buffered data, at least one UPLOAD even for an empty file,
// and installs the file. The writer lock is released in any case.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	defer w.release()

	if err := w.flush(); err != nil {
		return err
	}

	var extra []byte
	if !w.timestamp.IsZero() {
		extra = binary.BigEndian.AppendUint32(nil, uint32(w.timestamp.Unix()))
	}
	pck, err := w.s.Request(common.CmdInstall, uint32(len(extra)), w.name, extra)
	if err != nil {
		return err
	}
	return pck.Expect(common.CmdInstall)
}

// Abort releases the writer lock without installing the file. The server
// discards the partial upload.
func (w *Writer) Abort() {
	if !w.closed {
		w.release()
	}
}

func (w *Writer) release() {
	w.closed = true
	if err := w.s.ReleaseWriter(w.owner); err != nil && !w.s.closed.Load() {
		log.WithError(err).WithField("Destination", w.s.destination).Warn("Could not release writer lock")
	}
}
