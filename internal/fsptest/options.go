package fsptest

import "github.com/Pablu23/fsp/internal/common"

type Options struct {
	Address string
	// Datapath is served by the built in file handlers. Without it only BYE is
	// answered and every other command gets an ERR reply.
	Datapath string
	// ClientChecksum signs replies with the client side checksum, which clients
	// drop as noise.
	ClientChecksum bool
	// Key is the first access key handed out.
	Key uint16
	// RotateKeys hands out a new key with every reply.
	RotateKeys bool
	// PageSize bounds the size of a directory page.
	PageSize int
	// Protection is the directory flag byte of GET_PRO replies.
	Protection byte
	Readme     string
	Version    string
}

func NewDefaultOptions() *Options {
	return &Options{
		Address:    "127.0.0.1:0",
		Key:        0x1f2e,
		PageSize:   common.MaxDataSize,
		Protection: 1<<common.DirOwner | 1<<common.DirList,
		Version:    "fsptest 1.0",
	}
}
