package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Pablu23/fsp/internal/common"
	"github.com/Pablu23/fsp/internal/metrics"
)

var (
	ErrTimeout       = errors.New("fsp: request timed out")
	ErrSessionClosed = errors.New("fsp: session closed")
)

// The low 3 bits of a sequence number count resends of one request.
const seqMask uint16 = 0xfff8

// packetConn is the part of *net.UDPConn a Session uses.
type packetConn interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Session is one conversation with one FSP server. Requests are synchronous
// and retried until a matching reply arrives or the timeout is used up. A
// Session is safe for concurrent use; requests are serialized.
type Session struct {
	mu     sync.Mutex
	conn   packetConn
	codec  *common.Codec
	recv   []byte
	seq    uint16
	closed atomic.Bool

	destination string

	delay      time.Duration
	maxDelay   time.Duration
	timeout    time.Duration
	byeTimeout time.Duration

	keys    *KeyRegistry
	metrics metrics.Metrics
	limiter *rate.Limiter

	writerMu   sync.Mutex
	writerCond *sync.Cond
	writer     WriterID
	writerHeld bool

	clock  func() time.Time
	random func() uint16
}

// New opens a session to host:port. Port 0 selects common.DefaultPort.
func New(host string, port int, opts ...func(*Options)) (*Session, error) {
	options := NewDefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	options.normalize()

	if port == 0 {
		port = common.DefaultPort
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}

	var local *net.UDPAddr
	if options.LocalAddress != "" {
		local, err = net.ResolveUDPAddr("udp", options.LocalAddress)
		if err != nil {
			return nil, err
		}
	}

	conn, err := net.DialUDP("udp", local, addr)
	if err != nil {
		return nil, err
	}

	return newSession(conn, addr.String(), options), nil
}

func newSession(conn packetConn, destination string, options *Options) *Session {
	keys := options.Keys
	if keys == nil {
		keys = NewKeyRegistry()
	}
	keys.Retain()

	s := &Session{
		conn:        conn,
		codec:       common.NewCodec(false),
		recv:        make([]byte, common.PacketSize+1),
		destination: destination,
		delay:       options.Delay,
		maxDelay:    options.MaxDelay,
		timeout:     options.Timeout,
		byeTimeout:  options.ByeTimeout,
		keys:        keys,
		metrics:     options.Metrics,
		clock:       time.Now,
		random:      randomSeq,
	}
	s.seq = s.random() & seqMask
	s.writerCond = sync.NewCond(&s.writerMu)
	if options.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(options.RateLimit), common.MaxDataSize)
	}

	log.WithField("Destination", destination).Debug("Opened session")
	return s
}

func randomSeq() uint16 {
	return uint16(rand.Intn(0x10000))
}

// Destination is the "ip:port" identity used for key sharing.
func (s *Session) Destination() string {
	return s.destination
}

func (s *Session) Keys() *KeyRegistry {
	return s.keys
}

// Timeout returns the request timeout, 0 if requests never time out.
func (s *Session) Timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

func (s *Session) SetTimeout(timeout time.Duration) {
	if timeout < 0 {
		return
	}
	s.mu.Lock()
	s.timeout = timeout
	s.mu.Unlock()
}

// Request sends one request and returns the first valid reply to it. An ERR
// reply is returned as a packet; use Packet.Expect to turn it into an error.
func (s *Session) Request(cmd common.Command, position uint32, data []byte, extra []byte) (*common.Packet, error) {
	pck, err := common.NewPacket(cmd, position, data, extra)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	return s.interact(pck, s.timeout)
}

func (s *Session) interact(pck *common.Packet, timeout time.Duration) (*common.Packet, error) {
	start := time.Now()

	k := s.random() & seqMask
	if k == s.seq {
		s.seq ^= 0x1080
	} else {
		s.seq = k
	}

	entry := s.keys.entry(s.destination)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	pck.Key = entry.key
	delay := s.delay
	var waited time.Duration

	for attempt := 1; ; attempt++ {
		pck.Seq = s.seq + uint16(attempt&0x7)
		datagram, err := s.codec.Encode(pck)
		if err != nil {
			return nil, err
		}

		if reply := s.exchange(datagram, pck, delay); reply != nil {
			entry.key = reply.Key
			if s.metrics != nil {
				outcome := "ok"
				if reply.Command == common.CmdError {
					outcome = "error"
				}
				s.metrics.ObserveRequest(pck.Command.String(), time.Since(start), outcome)
			}
			return reply, nil
		}

		waited += delay
		if timeout > 0 && waited >= timeout {
			log.WithFields(log.Fields{
				"Destination": s.destination,
				"Command":     pck.Command,
				"Waited":      waited,
			}).Warn("Request timed out")
			if s.metrics != nil {
				s.metrics.ObserveRequest(pck.Command.String(), time.Since(start), "timeout")
			}
			return nil, fmt.Errorf("%w: %v to %s after %v", ErrTimeout, pck.Command, s.destination, waited)
		}

		delay = nextDelay(delay, s.maxDelay)
		log.WithFields(log.Fields{
			"Destination": s.destination,
			"Command":     pck.Command,
			"Delay":       delay,
		}).Debug("Resending request")
		if s.metrics != nil {
			s.metrics.RecordRetransmit(pck.Command.String())
		}
	}
}

func nextDelay(delay, maxDelay time.Duration) time.Duration {
	delay = time.Duration(float64(delay) * 1.5)
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// exchange sends datagram once and waits up to delay for a reply matching
// sent. It returns nil when the window expires.
func (s *Session) exchange(datagram []byte, sent *common.Packet, delay time.Duration) *common.Packet {
	deadline := s.clock().Add(delay)

	if _, err := s.conn.Write(datagram); err != nil {
		log.WithError(err).WithField("Destination", s.destination).Debug("Could not write packet")
		sleepUntil(deadline)
		return nil
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		log.WithError(err).WithField("Destination", s.destination).Debug("Could not set read deadline")
		sleepUntil(deadline)
		return nil
	}

	for {
		n, err := s.conn.Read(s.recv)
		if err != nil {
			var netErr net.Error
			if !errors.As(err, &netErr) || !netErr.Timeout() {
				// e.g. ICMP port unreachable, the server may come back.
				log.WithError(err).WithField("Destination", s.destination).Debug("Could not read packet")
				sleepUntil(deadline)
			}
			return nil
		}

		reply, err := s.codec.Decode(s.recv[:n])
		if err != nil {
			log.WithError(err).WithField("Destination", s.destination).Trace("Dropped datagram")
			if s.metrics != nil {
				s.metrics.RecordDropped("malformed")
			}
			continue
		}

		if !accepts(sent, reply) {
			log.WithFields(log.Fields{
				"Destination": s.destination,
				"Expected":    sent.String(),
				"Received":    reply.String(),
			}).Trace("Dropped reply")
			if s.metrics != nil {
				s.metrics.RecordDropped("mismatch")
			}
			continue
		}

		return reply
	}
}

// accepts reports whether reply answers sent. The low 3 bits of the sequence
// number are ignored since they differ between resends.
func accepts(sent, reply *common.Packet) bool {
	if reply.Command != sent.Command && reply.Command != common.CmdError {
		return false
	}
	if sent.Command.PositionSensitive() && reply.Position != sent.Position {
		return false
	}
	return reply.Seq&seqMask == sent.Seq&seqMask
}

func sleepUntil(deadline time.Time) {
	if d := time.Until(deadline); d > 0 {
		time.Sleep(d)
	}
}

// pace blocks until n more bytes may be transferred under the rate limit.
func (s *Session) pace(n int) error {
	if s.limiter == nil || n <= 0 {
		return nil
	}
	return s.limiter.WaitN(context.Background(), n)
}

func (s *Session) recordBytes(direction string, n int) {
	if s.metrics != nil {
		s.metrics.RecordBytes(direction, n)
	}
}

// Close says BYE to the server and releases the socket and any writer lock.
// It never fails once local resources are released and may be called more
// than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return nil
	}

	timeout := s.byeTimeout
	if s.timeout > 0 && s.timeout < timeout {
		timeout = s.timeout
	}
	bye := &common.Packet{Command: common.CmdBye}
	if _, err := s.interact(bye, timeout); err != nil {
		log.WithError(err).WithField("Destination", s.destination).Debug("Server did not answer BYE")
	}

	if err := s.conn.Close(); err != nil {
		log.WithError(err).WithField("Destination", s.destination).Debug("Could not close socket")
	}
	s.closed.Store(true)
	s.mu.Unlock()

	s.keys.Release()

	s.writerMu.Lock()
	s.writerHeld = false
	s.writerCond.Broadcast()
	s.writerMu.Unlock()

	log.WithField("Destination", s.destination).Debug("Closed session")
	return nil
}
