// Package fsptest provides a loopback FSP responder for tests.
package fsptest

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/fsp/internal/common"
)

// Handler answers one request. It may send any number of replies, including
// none to simulate loss.
type Handler func(req *Request)

// Request is a decoded request together with the means to answer it.
type Request struct {
	*common.Packet
	Addr   *net.UDPAddr
	server *Server
}

// Reply answers with the request command, sequence number and position.
func (req *Request) Reply(data, extra []byte) {
	req.ReplyAt(req.Position, data, extra)
}

func (req *Request) ReplyAt(position uint32, data, extra []byte) {
	req.Send(&common.Packet{
		Command:  req.Command,
		Seq:      req.Seq,
		Position: position,
		Data:     data,
		Extra:    extra,
	})
}

// Error answers with an ERR reply carrying message.
func (req *Request) Error(format string, args ...any) {
	req.Send(&common.Packet{
		Command:  common.CmdError,
		Seq:      req.Seq,
		Position: req.Position,
		Data:     common.CString(fmt.Sprintf(format, args...)),
	})
}

// Send stamps pck with the current access key and sends it.
func (req *Request) Send(pck *common.Packet) {
	req.server.sendPacket(req.Addr, pck)
}

// SendRaw sends datagram as is.
func (req *Request) SendRaw(datagram []byte) {
	if _, err := req.server.conn.WriteToUDP(datagram, req.Addr); err != nil {
		log.WithError(err).Error("Could not write Packet to UDP")
	}
}

type Server struct {
	conn           *net.UDPConn
	options        *Options
	parentFilePath string
	done           chan struct{}
	closeOnce      sync.Once

	mu       sync.Mutex
	requests *common.Codec
	replies  *common.Codec
	key      uint16
	handlers map[common.Command]Handler
	received []*common.Packet
	uploads  map[string][]byte
}

func New(opts ...func(*Options)) (*Server, error) {
	options := NewDefaultOptions()

	for _, opt := range opts {
		opt(options)
	}
	if options.PageSize <= 0 || options.PageSize > common.MaxDataSize {
		options.PageSize = common.MaxDataSize
	}

	udpAddr, err := net.ResolveUDPAddr("udp", options.Address)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	server := &Server{
		conn:     conn,
		options:  options,
		done:     make(chan struct{}),
		requests: common.NewCodec(true),
		replies:  common.NewCodec(!options.ClientChecksum),
		key:      options.Key,
		handlers: make(map[common.Command]Handler),
		uploads:  make(map[string][]byte),
	}

	server.Handle(common.CmdBye, func(req *Request) {
		req.Reply(nil, nil)
	})

	if options.Datapath != "" {
		server.parentFilePath, err = filepath.Abs(options.Datapath)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		server.handleFiles()
	}

	return server, nil
}

// Start creates a server, serves it in the background and closes it when the
// test ends.
func Start(t testing.TB, opts ...func(*Options)) *Server {
	t.Helper()
	server, err := New(opts...)
	if err != nil {
		t.Fatalf("fsptest: %v", err)
	}
	go server.Serve()
	t.Cleanup(func() {
		_ = server.Close()
	})
	return server
}

// Handle replaces the handler of cmd.
func (server *Server) Handle(cmd common.Command, handler Handler) {
	server.mu.Lock()
	server.handlers[cmd] = handler
	server.mu.Unlock()
}

func (server *Server) Addr() *net.UDPAddr {
	return server.conn.LocalAddr().(*net.UDPAddr)
}

func (server *Server) Host() string {
	return server.Addr().IP.String()
}

func (server *Server) Port() int {
	return server.Addr().Port
}

// Key returns the access key the next reply will carry.
func (server *Server) Key() uint16 {
	server.mu.Lock()
	defer server.mu.Unlock()
	return server.key
}

// Requests returns every well formed request received so far.
func (server *Server) Requests() []*common.Packet {
	server.mu.Lock()
	defer server.mu.Unlock()
	return append([]*common.Packet(nil), server.received...)
}

func (server *Server) sendPacket(addr *net.UDPAddr, pck *common.Packet) {
	server.mu.Lock()
	pck.Key = server.key
	if server.options.RotateKeys {
		server.key++
	}
	datagram, err := server.replies.Encode(pck)
	if err != nil {
		server.mu.Unlock()
		log.WithError(err).WithField("Command", pck.Command).Error("Could not encode reply")
		return
	}
	_, err = server.conn.WriteToUDP(datagram, addr)
	server.mu.Unlock()

	if err != nil {
		log.WithError(err).Error("Could not write Packet to UDP")
	}
}

// Serve answers requests until Close is called. Requests are handled one at a
// time in arrival order.
func (server *Server) Serve() error {
	log.WithField("Address", server.Addr()).Debug("Started listening")

	buf := make([]byte, common.PacketSize+1)
	for {
		n, addr, err := server.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-server.done:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.WithError(err).Error("Could not retrieve UDP Packet")
			continue
		}

		server.mu.Lock()
		pck, err := server.requests.Decode(buf[:n])
		if err != nil {
			server.mu.Unlock()
			log.WithError(err).Warn("Received invalid Packet")
			continue
		}
		server.received = append(server.received, pck)
		handler, ok := server.handlers[pck.Command]
		server.mu.Unlock()

		req := &Request{Packet: pck, Addr: addr, server: server}
		if !ok {
			req.Error("Unknown command %v", pck.Command)
			continue
		}
		handler(req)
	}
}

func (server *Server) Close() error {
	var err error
	server.closeOnce.Do(func() {
		close(server.done)
		err = server.conn.Close()
	})
	return err
}
