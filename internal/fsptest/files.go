package fsptest

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kelindar/bitmap"
	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/fsp/internal/common"
)

func (server *Server) handleFiles() {
	server.Handle(common.CmdVersion, server.version)
	server.Handle(common.CmdGetDir, server.getDir)
	server.Handle(common.CmdGetFile, server.getFile)
	server.Handle(common.CmdGrabFile, server.getFile)
	server.Handle(common.CmdGrabDone, server.grabDone)
	server.Handle(common.CmdUpload, server.upload)
	server.Handle(common.CmdInstall, server.install)
	server.Handle(common.CmdDelFile, server.delFile)
	server.Handle(common.CmdDelDir, server.delDir)
	server.Handle(common.CmdMakeDir, server.makeDir)
	server.Handle(common.CmdGetProtection, server.protection)
	server.Handle(common.CmdSetProtection, server.setProtection)
	server.Handle(common.CmdStat, server.stat)
	server.Handle(common.CmdRename, server.rename)
}

// resolve maps a request path into the served directory.
func (server *Server) resolve(path string) (string, bool) {
	file := filepath.Clean(filepath.Join(server.parentFilePath, path))
	rel, err := filepath.Rel(server.parentFilePath, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		log.WithFields(log.Fields{
			"ParentFilePath":    server.parentFilePath,
			"RequestedFilePath": path,
			"CleanedFilePath":   file,
		}).WithError(err).Warn("Requesting File out of Path")
		return "", false
	}
	return file, true
}

// path resolves the NUL terminated path in the request data. It sends an ERR
// reply and returns false when the path is not servable.
func (req *Request) path() (string, bool) {
	file, ok := req.server.resolve(common.CStringValue(req.Data))
	if !ok {
		req.Error("Permission denied")
	}
	return file, ok
}

func (server *Server) version(req *Request) {
	extra := []byte{0}
	req.ReplyAt(uint32(len(extra)), common.CString(server.options.Version), extra)
}

func (server *Server) getDir(req *Request) {
	dir, ok := req.path()
	if !ok {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		req.Error("%v", err)
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	records := make([][]byte, 0, len(entries)+1)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		records = append(records, common.AppendDirRecord(nil, statOf(entry.Name(), info)))
	}
	records = append(records, common.AppendDirEnd(nil))

	// Pages hold whole records, a page starts where the previous one ended.
	offset := uint32(0)
	i := 0
	for ; i < len(records) && offset < req.Position; i++ {
		offset += uint32(len(records[i]))
	}
	if offset != req.Position {
		req.Error("Invalid directory position %d", req.Position)
		return
	}

	var page []byte
	for ; i < len(records) && len(page)+len(records[i]) <= server.options.PageSize; i++ {
		page = append(page, records[i]...)
	}
	req.Reply(page, nil)
}

func (server *Server) getFile(req *Request) {
	path, ok := req.path()
	if !ok {
		return
	}
	file, err := os.Open(path)
	if err != nil {
		req.Error("%v", err)
		return
	}
	defer func(file *os.File) {
		err := file.Close()
		if err != nil {
			log.WithError(err).Error("Could not close File")
		}
	}(file)

	buf := make([]byte, common.MaxDataSize)
	n, err := file.ReadAt(buf, int64(req.Position))
	if err != nil && !errors.Is(err, io.EOF) {
		log.WithError(err).WithField("File Path", path).Error("Unable to read File")
		req.Error("%v", err)
		return
	}
	req.Reply(buf[:n], nil)
}

func (server *Server) grabDone(req *Request) {
	path, ok := req.path()
	if !ok {
		return
	}
	if err := os.Remove(path); err != nil {
		req.Error("%v", err)
		return
	}
	req.Reply(nil, nil)
}

// upload appends to the pending upload of the sending address. Resends of
// the last chunk are accepted again.
func (server *Server) upload(req *Request) {
	key := req.Addr.String()
	server.mu.Lock()
	pending := server.uploads[key]
	if req.Position == 0 {
		pending = pending[:0]
	}
	pos := int(req.Position)
	if pos > len(pending) {
		server.mu.Unlock()
		req.Error("Non sequential upload")
		return
	}
	server.uploads[key] = append(pending[:pos], req.Data...)
	server.mu.Unlock()

	req.Reply(nil, nil)
}

func (server *Server) install(req *Request) {
	path, ok := req.path()
	if !ok {
		return
	}

	key := req.Addr.String()
	server.mu.Lock()
	content := server.uploads[key]
	delete(server.uploads, key)
	server.mu.Unlock()

	if err := os.WriteFile(path, content, 0o644); err != nil {
		req.Error("%v", err)
		return
	}
	if len(req.Extra) >= 4 {
		mtime := time.Unix(int64(binary.BigEndian.Uint32(req.Extra)), 0)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			log.WithError(err).WithField("File Path", path).Warn("Could not set modification time")
		}
	}
	req.Reply(nil, nil)
}

func (server *Server) delFile(req *Request) {
	path, ok := req.path()
	if !ok {
		return
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		req.Error("Is a directory")
		return
	}
	if err := os.Remove(path); err != nil {
		req.Error("%v", err)
		return
	}
	req.Reply(nil, nil)
}

func (server *Server) delDir(req *Request) {
	path, ok := req.path()
	if !ok {
		return
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		req.Error("Not a directory")
		return
	}
	if err := os.Remove(path); err != nil {
		req.Error("%v", err)
		return
	}
	req.Reply(nil, nil)
}

func (server *Server) makeDir(req *Request) {
	path, ok := req.path()
	if !ok {
		return
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		req.Error("%v", err)
		return
	}
	server.protection(req)
}

func (server *Server) protection(req *Request) {
	server.mu.Lock()
	extra := []byte{server.options.Protection}
	readme := server.options.Readme
	server.mu.Unlock()

	req.ReplyAt(uint32(len(extra)), common.CString(readme), extra)
}

var protectionLetters = map[byte]uint32{
	'c': common.DirAdd,
	'd': common.DirDelete,
	'g': common.DirGet,
	'm': common.DirMakeDir,
	'l': common.DirList,
	'r': common.DirRename,
}

func (server *Server) setProtection(req *Request) {
	mode := common.CStringValue(req.Extra)
	if len(mode) != 2 {
		req.Error("Invalid protection mode")
		return
	}
	bit, ok := protectionLetters[mode[1]]
	if !ok {
		req.Error("Invalid protection mode")
		return
	}
	// The get bit is inverted on the wire.
	allow := mode[0] == '+'
	if bit == common.DirGet {
		allow = !allow
	}

	server.mu.Lock()
	flags := bitmap.Bitmap{uint64(server.options.Protection)}
	if allow {
		flags.Set(bit)
	} else {
		flags.Remove(bit)
	}
	server.options.Protection = byte(flags[0])
	server.mu.Unlock()

	server.protection(req)
}

func (server *Server) stat(req *Request) {
	path, ok := req.path()
	if !ok {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		req.Reply(common.EncodeStat(nil), nil)
		return
	}
	stat := statOf(info.Name(), info)
	req.Reply(common.EncodeStat(&stat), nil)
}

func (server *Server) rename(req *Request) {
	from, ok := req.path()
	if !ok {
		return
	}
	to, ok := server.resolve(common.CStringValue(req.Extra))
	if !ok {
		req.Error("Permission denied")
		return
	}
	if err := os.Rename(from, to); err != nil {
		req.Error("%v", err)
		return
	}
	req.Reply(nil, nil)
}

func statOf(name string, info os.FileInfo) common.Stat {
	stat := common.Stat{
		Name:         name,
		LastModified: info.ModTime(),
		Type:         common.TypeFile,
	}
	if info.IsDir() {
		stat.Type = common.TypeDir
	} else {
		stat.Length = uint32(info.Size())
	}
	return stat
}
