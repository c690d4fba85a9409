package fsptest

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pablu23/fsp/internal/common"
)

// roundTrip sends one client request and waits for one reply.
func roundTrip(t *testing.T, server *Server, pck *common.Packet) (*common.Packet, error) {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, server.Addr())
	require.NoError(t, err)
	defer conn.Close()

	datagram, err := pck.ToBytes()
	require.NoError(t, err)
	_, err = conn.Write(datagram)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, common.PacketSize)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return common.PacketFromBytes(buf[:n])
}

func TestUnknownCommand(t *testing.T) {
	server := Start(t)

	reply, err := roundTrip(t, server, &common.Packet{Command: common.CmdStat, Seq: 0x1230})
	require.NoError(t, err)
	assert.Equal(t, common.CmdError, reply.Command)
	assert.Equal(t, uint16(0x1230), reply.Seq)
	assert.Equal(t, uint16(0x1f2e), reply.Key)
}

func TestCustomHandler(t *testing.T) {
	server := Start(t, func(o *Options) {
		o.Key = 7
		o.RotateKeys = true
	})
	server.Handle(common.CmdVersion, func(req *Request) {
		req.ReplyAt(0, []byte("custom"), nil)
	})

	reply, err := roundTrip(t, server, &common.Packet{Command: common.CmdVersion, Seq: 8})
	require.NoError(t, err)
	assert.Equal(t, []byte("custom"), reply.Data)
	assert.Equal(t, uint16(7), reply.Key)
	assert.Equal(t, uint16(8), server.Key())
	require.Len(t, server.Requests(), 1)
}

func TestRepliesCarryServerChecksum(t *testing.T) {
	server := Start(t)

	reply, err := roundTrip(t, server, &common.Packet{Command: common.CmdBye, Seq: 0x0440})
	require.NoError(t, err)
	assert.Equal(t, common.CmdBye, reply.Command)
}

func TestClientChecksumReplies(t *testing.T) {
	server := Start(t, func(o *Options) {
		o.ClientChecksum = true
	})

	_, err := roundTrip(t, server, &common.Packet{Command: common.CmdBye})
	assert.ErrorIs(t, err, common.ErrMalformedPacket)
}

func TestRequestWithServerChecksumIgnored(t *testing.T) {
	server := Start(t)

	conn, err := net.DialUDP("udp", nil, server.Addr())
	require.NoError(t, err)
	defer conn.Close()

	datagram, err := common.NewCodec(true).Encode(&common.Packet{Command: common.CmdBye})
	require.NoError(t, err)
	_, err = conn.Write(datagram)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err = conn.Read(make([]byte, common.PacketSize))
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
	assert.Empty(t, server.Requests())
}

func TestPathOutsideDatapath(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "served")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret"), []byte("x"), 0o644))

	server := Start(t, func(o *Options) {
		o.Datapath = dir
	})

	reply, err := roundTrip(t, server, &common.Packet{
		Command: common.CmdGetFile,
		Data:    common.CString("../secret"),
	})
	require.NoError(t, err)
	assert.Equal(t, common.CmdError, reply.Command)

	_, ok := server.resolve("/a/../b")
	assert.True(t, ok)
}
