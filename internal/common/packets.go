package common

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrPayloadTooLarge = fmt.Errorf("payload exceeds %d bytes", MaxDataSize)
	ErrMalformedPacket = errors.New("malformed packet")
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// ServerError is an ERR reply sent by the server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "fsp server error: " + e.Message
}

type Packet struct {
	Command  Command
	Checksum byte
	Key      uint16
	Seq      uint16
	Position uint32
	// Data is the part of the payload covered by the header length field.
	Data []byte
	// Extra is whatever follows Data in the datagram.
	Extra []byte
}

func NewPacket(cmd Command, position uint32, data []byte, extra []byte) (*Packet, error) {
	if len(data)+len(extra) > MaxDataSize {
		return nil, ErrPayloadTooLarge
	}
	return &Packet{
		Command:  cmd,
		Position: position,
		Data:     data,
		Extra:    extra,
	}, nil
}

// Length is the value of the header length field.
func (pck *Packet) Length() int {
	return len(pck.Data)
}

// Expect checks that pck answers cmd. An ERR reply becomes a *ServerError.
func (pck *Packet) Expect(cmd Command) error {
	if pck.Command == cmd {
		return nil
	}
	if pck.Command == CmdError {
		return &ServerError{Message: CStringValue(pck.Data)}
	}
	return fmt.Errorf("%w: expected %v, received %v", ErrUnexpectedReply, cmd, pck.Command)
}

func (pck *Packet) String() string {
	return fmt.Sprintf("cmd=%v sum=0x%02x key=0x%04x seq=0x%04x len=%d pos=%d xtra_len=%d",
		pck.Command, pck.Checksum, pck.Key, pck.Seq, len(pck.Data), pck.Position, len(pck.Extra))
}

// Checksum computes the FSP checksum of an assembled datagram. Byte 1 (the
// checksum itself) is treated as zero. Client side sums start at the datagram
// length, server side sums start at zero.
func Checksum(datagram []byte, serverSide bool) byte {
	var sum uint32
	if !serverSide {
		sum = uint32(len(datagram))
	}
	for i, b := range datagram {
		if i == 1 {
			continue
		}
		sum += uint32(b)
	}
	return byte(sum + (sum >> 8))
}

// Codec assembles and disassembles datagrams for one side of the conversation.
// Encode signs with its own side's checksum, Decode verifies with the peer's:
// a client sends length seeded sums and checks zero seeded ones, a server the
// other way round. It owns a scratch buffer, so one Codec must not be used from
// two goroutines at once.
type Codec struct {
	ServerSide bool
	buf        [PacketSize]byte
}

func NewCodec(serverSide bool) *Codec {
	return &Codec{ServerSide: serverSide}
}

// Encode assembles pck into the codec buffer. The returned slice is only valid
// until the next call to Encode. pck.Checksum is updated.
func (c *Codec) Encode(pck *Packet) ([]byte, error) {
	payload := len(pck.Data) + len(pck.Extra)
	if payload > MaxDataSize {
		return nil, ErrPayloadTooLarge
	}

	arr := c.buf[:HeaderSize+payload]
	arr[0] = byte(pck.Command)
	arr[1] = 0
	binary.BigEndian.PutUint16(arr[2:4], pck.Key)
	binary.BigEndian.PutUint16(arr[4:6], pck.Seq)
	binary.BigEndian.PutUint16(arr[6:8], uint16(len(pck.Data)))
	binary.BigEndian.PutUint32(arr[8:12], pck.Position)
	copy(arr[HeaderSize:], pck.Data)
	copy(arr[HeaderSize+len(pck.Data):], pck.Extra)

	pck.Checksum = Checksum(arr, c.ServerSide)
	arr[1] = pck.Checksum

	return arr, nil
}

// Decode disassembles a received datagram. Any ErrMalformedPacket means the
// datagram is line noise and should be dropped.
func (c *Codec) Decode(datagram []byte) (*Packet, error) {
	if len(datagram) < HeaderSize {
		return nil, fmt.Errorf("%w: truncated header (%d bytes)", ErrMalformedPacket, len(datagram))
	}

	length := int(binary.BigEndian.Uint16(datagram[6:8]))
	extraLength := len(datagram) - HeaderSize - length
	if extraLength < 0 {
		return nil, fmt.Errorf("%w: truncated payload", ErrMalformedPacket)
	}
	if length+extraLength > MaxDataSize {
		return nil, fmt.Errorf("%w: payload too large", ErrMalformedPacket)
	}

	sum := Checksum(datagram, !c.ServerSide)
	if sum != datagram[1] {
		return nil, fmt.Errorf("%w: bad checksum, got 0x%02x computed 0x%02x", ErrMalformedPacket, datagram[1], sum)
	}

	payload := make([]byte, length+extraLength)
	copy(payload, datagram[HeaderSize:])

	return &Packet{
		Command:  Command(datagram[0]),
		Checksum: datagram[1],
		Key:      binary.BigEndian.Uint16(datagram[2:4]),
		Seq:      binary.BigEndian.Uint16(datagram[4:6]),
		Position: binary.BigEndian.Uint32(datagram[8:12]),
		Data:     payload[:length:length],
		Extra:    payload[length:],
	}, nil
}

// ToBytes assembles pck as a client request into a new slice.
func (pck *Packet) ToBytes() ([]byte, error) {
	var c Codec
	arr, err := c.Encode(pck)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), arr...), nil
}

// PacketFromBytes disassembles a server reply.
func PacketFromBytes(datagram []byte) (*Packet, error) {
	var c Codec
	return c.Decode(datagram)
}

// CString returns s as a NUL terminated byte string.
func CString(s string) []byte {
	arr := make([]byte, len(s)+1)
	copy(arr, s)
	return arr
}

// CStringValue returns the bytes of b up to the first NUL.
func CStringValue(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
