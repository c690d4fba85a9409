package common

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketFromBytes(t *testing.T) {
	bytes := []byte{
		0x42, 0x00, 0x12, 0x34, 0x56, 0x78, 0x00, 0x03, 0x00, 0x00, 0x04, 0x00,
		'a', 'b', 0, 0xff,
	}
	bytes[1] = Checksum(bytes, true)

	want := &Packet{
		Command:  CmdGetFile,
		Checksum: bytes[1],
		Key:      0x1234,
		Seq:      0x5678,
		Position: 1024,
		Data:     []byte{'a', 'b', 0},
		Extra:    []byte{0xff},
	}

	pck, err := PacketFromBytes(bytes)
	require.NoError(t, err)

	if !cmp.Equal(pck, want) {
		t.Fatal(cmp.Diff(want, pck))
	}
}

func TestChecksumVariants(t *testing.T) {
	datagram := make([]byte, HeaderSize)
	datagram[0] = byte(CmdVersion)

	assert.Equal(t, byte(0x1c), Checksum(datagram, false))
	assert.Equal(t, byte(0x10), Checksum(datagram, true))

	// The checksum byte itself never contributes.
	datagram[1] = 0xaa
	assert.Equal(t, byte(0x1c), Checksum(datagram, false))
}

func TestChecksumFoldsCarry(t *testing.T) {
	datagram := make([]byte, HeaderSize+4)
	for i := HeaderSize; i < len(datagram); i++ {
		datagram[i] = 0xff
	}
	// 16 + 4*255 = 1036 = 0x040c, folded 0x0c + 0x04.
	assert.Equal(t, byte(0x10), Checksum(datagram, false))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pck  Packet
	}{
		{"empty", Packet{Command: CmdBye}},
		{"data only", Packet{Command: CmdGetFile, Key: 0xbeef, Seq: 0x1231, Position: 0xfffffffe, Data: CString("/readme.txt")}},
		{"extra only", Packet{Command: CmdInstall, Key: 1, Seq: 2, Position: 4, Extra: []byte{0, 0, 0, 1}}},
		{"data and extra", Packet{Command: CmdRename, Seq: 0xfff8, Data: CString("/a"), Extra: CString("/b")}},
		{"full", Packet{Command: CmdUpload, Data: bytes.Repeat([]byte{0x5a}, MaxDataSize)}},
		{"full split", Packet{Command: CmdUpload, Data: bytes.Repeat([]byte{1}, 1000), Extra: bytes.Repeat([]byte{2}, 24)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, serverSide := range []bool{false, true} {
				codec := NewCodec(serverSide)
				pck := tt.pck
				datagram, err := codec.Encode(&pck)
				require.NoError(t, err)
				require.Len(t, datagram, HeaderSize+len(pck.Data)+len(pck.Extra))

				got, err := NewCodec(!serverSide).Decode(datagram)
				require.NoError(t, err)
				if diff := cmp.Diff(&pck, got, cmpopts.EquateEmpty()); diff != "" {
					t.Errorf("serverSide=%v round trip mismatch (-want +got):\n%s", serverSide, diff)
				}
			}
		})
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	codec := NewCodec(false)
	_, err := codec.Encode(&Packet{Command: CmdUpload, Data: make([]byte, 1000), Extra: make([]byte, 25)})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = NewPacket(CmdUpload, 0, make([]byte, MaxDataSize+1), nil)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	pck, err := NewPacket(CmdUpload, 0, make([]byte, MaxDataSize), nil)
	require.NoError(t, err)
	assert.Equal(t, MaxDataSize, pck.Length())
}

func TestDecodeDetectsSingleByteCorruption(t *testing.T) {
	codec := NewCodec(false)
	pck := &Packet{
		Command:  CmdGetDir,
		Key:      0x0102,
		Seq:      0x0304,
		Position: 0x05060708,
		Data:     CString("/pub/incoming"),
		Extra:    []byte{0x10, 0x20},
	}
	encoded, err := codec.Encode(pck)
	require.NoError(t, err)
	original := append([]byte(nil), encoded...)

	for i := range original {
		corrupted := append([]byte(nil), original...)
		corrupted[i] ^= 0x01
		_, err := NewCodec(true).Decode(corrupted)
		assert.ErrorIs(t, err, ErrMalformedPacket, "flipped byte %d", i)
	}
}

func TestDecodeMalformed(t *testing.T) {
	codec := NewCodec(false)

	_, err := codec.Decode(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrMalformedPacket)

	// Header declares more data than the datagram holds.
	short := make([]byte, HeaderSize+2)
	short[7] = 3
	short[1] = Checksum(short, true)
	_, err = codec.Decode(short)
	assert.ErrorIs(t, err, ErrMalformedPacket)

	big := make([]byte, HeaderSize+MaxDataSize+1)
	big[1] = Checksum(big, true)
	_, err = codec.Decode(big)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestCodecVerifiesPeerChecksum(t *testing.T) {
	client, server := NewCodec(false), NewCodec(true)

	request, err := client.Encode(&Packet{Command: CmdVersion})
	require.NoError(t, err)
	assert.Equal(t, Checksum(request, false), request[1])
	_, err = server.Decode(request)
	assert.NoError(t, err)
	_, err = client.Decode(request)
	assert.ErrorIs(t, err, ErrMalformedPacket)

	reply, err := server.Encode(&Packet{Command: CmdVersion})
	require.NoError(t, err)
	assert.Equal(t, Checksum(reply, true), reply[1])
	_, err = client.Decode(reply)
	assert.NoError(t, err)
	_, err = server.Decode(reply)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestDecodeServerReply(t *testing.T) {
	// VERSION reply, key 0x1234, seq 0x5678, data "fspd\0", summed from zero:
	// 0x10+0x12+0x34+0x56+0x78+0x05+'f'+'s'+'p'+'d' = 0x2d6, folded 0xd8.
	datagram := []byte{
		0x10, 0xd8, 0x12, 0x34, 0x56, 0x78, 0x00, 0x05, 0x00, 0x00, 0x00, 0x00,
		'f', 's', 'p', 'd', 0,
	}

	pck, err := NewCodec(false).Decode(datagram)
	require.NoError(t, err)
	assert.Equal(t, CmdVersion, pck.Command)
	assert.Equal(t, uint16(0x1234), pck.Key)
	assert.Equal(t, uint16(0x5678), pck.Seq)
	assert.Equal(t, CString("fspd"), pck.Data)
}

func TestDecodeZeroLengthReplyKeepsExtra(t *testing.T) {
	encoded, err := NewCodec(true).Encode(&Packet{Command: CmdVersion, Position: 3, Extra: []byte{1, 2, 3}})
	require.NoError(t, err)

	pck, err := NewCodec(false).Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, 0, pck.Length())
	assert.Equal(t, []byte{1, 2, 3}, pck.Extra)
}

func TestExpect(t *testing.T) {
	ok := &Packet{Command: CmdStat}
	assert.NoError(t, ok.Expect(CmdStat))

	errReply := &Packet{Command: CmdError, Data: CString("Permission denied")}
	err := errReply.Expect(CmdStat)
	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, "Permission denied", serverErr.Message)

	other := &Packet{Command: CmdGetDir}
	assert.ErrorIs(t, other.Expect(CmdStat), ErrUnexpectedReply)
}

func TestCString(t *testing.T) {
	assert.Equal(t, []byte{'/', 'a', 0}, CString("/a"))
	assert.Equal(t, []byte{0}, CString(""))
	assert.Equal(t, "/a", CStringValue([]byte{'/', 'a', 0, 'x'}))
	assert.Equal(t, "abc", CStringValue([]byte("abc")))
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "GET_FILE", CmdGetFile.String())
	assert.Equal(t, "0x81", Command(0x81).String())
	assert.True(t, CmdGetDir.PositionSensitive())
	assert.False(t, CmdStat.PositionSensitive())
}
