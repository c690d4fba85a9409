package common

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/kelindar/bitmap"
)

// Stat is the status of a remote file or directory.
type Stat struct {
	Name         string
	Length       uint32
	LastModified time.Time
	Type         FileType
}

func (s *Stat) IsDir() bool {
	return s.Type == TypeDir
}

func (s *Stat) String() string {
	return fmt.Sprintf("%v %s lastmod=%v size=%d", s.Type, s.Name, s.LastModified, s.Length)
}

const statSize = 4 + 4 + 1

// decodeStatFields reads the 9 byte mtime/size/type block at the start of b.
func decodeStatFields(b []byte) Stat {
	seconds := binary.BigEndian.Uint32(b[0:4])
	return Stat{
		LastModified: time.UnixMilli(int64(seconds) * 1000),
		Length:       binary.BigEndian.Uint32(b[4:8]),
		Type:         FileType(b[8]),
	}
}

func appendStatFields(b []byte, stat Stat) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(stat.LastModified.Unix()))
	b = binary.BigEndian.AppendUint32(b, stat.Length)
	return append(b, byte(stat.Type))
}

// EncodeStat builds the payload of a STAT reply. A nil stat reports a missing
// file.
func EncodeStat(stat *Stat) []byte {
	if stat == nil {
		return make([]byte, statSize)
	}
	return appendStatFields(make([]byte, 0, statSize), *stat)
}

// DecodeStat decodes a STAT reply. It returns nil without error when the
// server reports that name does not exist.
func DecodeStat(pck *Packet, name string) (*Stat, error) {
	if err := pck.Expect(CmdStat); err != nil {
		return nil, err
	}
	if len(pck.Data) < statSize {
		return nil, fmt.Errorf("%w: stat reply has %d bytes", ErrMalformedPacket, len(pck.Data))
	}
	stat := decodeStatFields(pck.Data)
	if stat.Type == TypeEnd {
		return nil, nil
	}
	stat.Name = name
	return &stat, nil
}

// Protection bits of a GET_PRO / SET_PRO reply.
const (
	DirOwner uint32 = iota
	DirDelete
	DirAdd
	DirMakeDir
	// DirGet is set when public get is forbidden.
	DirGet
	DirReadme
	DirList
	DirRename
)

type Protection struct {
	Owner   bool
	Delete  bool
	Add     bool
	MakeDir bool
	Get     bool
	List    bool
	Rename  bool
	Readme  string
}

// DecodeProtection decodes a GET_PRO or SET_PRO reply. Replies without the
// directory flags byte come from FSPv1 or embedded servers; they only allow
// get and list.
func DecodeProtection(pck *Packet) (*Protection, error) {
	if pck.Command != CmdGetProtection && pck.Command != CmdSetProtection {
		if err := pck.Expect(CmdGetProtection); err != nil {
			return nil, err
		}
	}

	pro := &Protection{}
	if len(pck.Data) > 0 {
		pro.Readme = CStringValue(pck.Data)
	}

	if pck.Position == 0 || len(pck.Extra) == 0 {
		pro.Get = true
		pro.List = true
		return pro, nil
	}

	flags := bitmap.Bitmap{uint64(pck.Extra[0])}
	pro.Owner = flags.Contains(DirOwner)
	pro.Delete = flags.Contains(DirDelete)
	pro.Add = flags.Contains(DirAdd)
	pro.MakeDir = flags.Contains(DirMakeDir)
	pro.Get = !flags.Contains(DirGet)
	pro.List = flags.Contains(DirList)
	pro.Rename = flags.Contains(DirRename)

	return pro, nil
}

// Capability bits of a VERSION reply.
const (
	VerLogging uint32 = iota
	VerReadOnly
	VerReverseLookup
	VerPrivateMode
	VerThroughput
	VerExtraData
)

// Version describes the server as reported by a VERSION reply. All fields
// except Version are only meaningful when ExtendedInfo is set.
type Version struct {
	Version       string
	ExtendedInfo  bool
	Logging       bool
	ReadOnly      bool
	ReverseLookup bool
	PrivateMode   bool
	// Throughput is the server transfer limit in bytes per second, 0 if unlimited.
	Throughput uint32
	ExtraData  bool
	// Payload is the preferred packet payload size, 0 if not announced.
	Payload uint16
}

func (v *Version) Clone() *Version {
	clone := *v
	return &clone
}

// isBlank matches control characters and spaces, including the NUL
// terminator servers send after the version string.
func isBlank(r rune) bool {
	return r <= ' '
}

func DecodeVersion(pck *Packet) (*Version, error) {
	if err := pck.Expect(CmdVersion); err != nil {
		return nil, err
	}

	ver := &Version{
		Version: strings.TrimFunc(string(pck.Data), isBlank),
	}
	if pck.Position == 0 || len(pck.Extra) == 0 {
		return ver, nil
	}

	ver.ExtendedInfo = true
	extra := pck.Extra
	flags := bitmap.Bitmap{uint64(extra[0])}
	ver.Logging = flags.Contains(VerLogging)
	ver.ReadOnly = flags.Contains(VerReadOnly)
	ver.ReverseLookup = flags.Contains(VerReverseLookup)
	ver.PrivateMode = flags.Contains(VerPrivateMode)
	if flags.Contains(VerThroughput) && len(extra) > 4 {
		ver.Throughput = binary.BigEndian.Uint32(extra[1:5])
	} else {
		flags.Remove(VerThroughput)
	}
	ver.ExtraData = flags.Contains(VerExtraData)

	// Optional max payload block follows the flags and the throughput.
	offset := 0
	if flags.Contains(VerThroughput) && len(extra) >= 7 {
		offset = 5
	} else if !flags.Contains(VerThroughput) && len(extra) >= 3 {
		offset = 1
	}
	if offset > 0 {
		ver.Payload = binary.BigEndian.Uint16(extra[offset : offset+2])
	}

	return ver, nil
}
