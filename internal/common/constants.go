package common

import (
	"fmt"
	"time"
)

const (
	HeaderSize int = 1 + 1 + 2 + 2 + 2 + 4
	// Every FSP peer must handle this much payload.
	MaxDataSize int = 1024
	PacketSize  int = HeaderSize + MaxDataSize
)

const DefaultPort = 21

const (
	MinDelay       = 1000 * time.Millisecond
	DefaultDelay   = 1340 * time.Millisecond
	MaxDelay       = 60 * time.Second
	DefaultTimeout = 300 * time.Second
)

type Command uint8

const (
	CmdVersion       Command = 0x10
	CmdInfo          Command = 0x11
	CmdError         Command = 0x40
	CmdGetDir        Command = 0x41
	CmdGetFile       Command = 0x42
	CmdUpload        Command = 0x43
	CmdInstall       Command = 0x44
	CmdDelFile       Command = 0x45
	CmdDelDir        Command = 0x46
	CmdGetProtection Command = 0x47
	CmdSetProtection Command = 0x48
	CmdMakeDir       Command = 0x49
	CmdBye           Command = 0x4A
	CmdGrabFile      Command = 0x4B
	CmdGrabDone      Command = 0x4C
	CmdStat          Command = 0x4D
	CmdRename        Command = 0x4E
	// Commands from here on carry FSP v3 headers.
	CmdLimit Command = 0x80
)

var commandNames = map[Command]string{
	CmdVersion:       "VERSION",
	CmdInfo:          "INFO",
	CmdError:         "ERR",
	CmdGetDir:        "GET_DIR",
	CmdGetFile:       "GET_FILE",
	CmdUpload:        "UP_LOAD",
	CmdInstall:       "INSTALL",
	CmdDelFile:       "DEL_FILE",
	CmdDelDir:        "DEL_DIR",
	CmdGetProtection: "GET_PRO",
	CmdSetProtection: "SET_PRO",
	CmdMakeDir:       "MAKE_DIR",
	CmdBye:           "BYE",
	CmdGrabFile:      "GRAB_FILE",
	CmdGrabDone:      "GRAB_DONE",
	CmdStat:          "STAT",
	CmdRename:        "RENAME",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", uint8(c))
}

// PositionSensitive reports whether a reply to c must echo the request position.
func (c Command) PositionSensitive() bool {
	switch c {
	case CmdGetDir, CmdGetFile, CmdUpload, CmdGrabFile, CmdInfo:
		return true
	}
	return false
}

// File types used by stat replies and directory records.
type FileType uint8

const (
	TypeEnd  FileType = 0x00
	TypeFile FileType = 0x01
	TypeDir  FileType = 0x02
	TypeSkip FileType = 0x2A
)

func (t FileType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDir:
		return "dir"
	default:
		return "unkn"
	}
}
