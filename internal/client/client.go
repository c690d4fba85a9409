package client

import (
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/fsp/internal/common"
)

// Download copies the file at path, starting at offset, to w. want limits the
// number of bytes copied; a negative want copies until the end of the file.
func (s *Session) Download(path string, w io.Writer, offset uint32, want int64) (int64, error) {
	n, err := s.fetch(common.CmdGetFile, path, w, offset, want)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", path, err)
	}
	return n, nil
}

// Grab downloads path and then asks the server to delete it.
func (s *Session) Grab(path string, w io.Writer) (int64, error) {
	n, err := s.fetch(common.CmdGrabFile, path, w, 0, -1)
	if err != nil {
		return n, fmt.Errorf("grab %s: %w", path, err)
	}
	if err := s.simple(common.CmdGrabDone, path); err != nil {
		return n, fmt.Errorf("grab %s: %w", path, err)
	}
	return n, nil
}

func (s *Session) fetch(cmd common.Command, path string, w io.Writer, offset uint32, want int64) (int64, error) {
	name := common.CString(path)
	var total int64
	for want != 0 {
		pck, err := s.Request(cmd, offset, name, nil)
		if err != nil {
			return total, err
		}
		if err := pck.Expect(cmd); err != nil {
			return total, err
		}

		data := pck.Data
		if len(data) == 0 {
			break
		}
		offset += uint32(len(data))
		if want >= 0 && int64(len(data)) > want {
			data = data[:want]
		}

		if err := s.pace(len(data)); err != nil {
			return total, err
		}
		n, err := w.Write(data)
		total += int64(n)
		s.recordBytes("read", n)
		if err != nil {
			return total, err
		}
		if want > 0 {
			want -= int64(n)
		}
	}
	return total, nil
}

// Upload stores everything read from r as path. A non zero timestamp sets the
// modification time of the installed file.
func (s *Session) Upload(path string, r io.Reader, timestamp time.Time) error {
	w, err := s.NewWriter(path, timestamp)
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Abort()
		return fmt.Errorf("upload %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

// List returns the names in directory dir.
func (s *Session) List(dir string) ([]string, error) {
	var names []string
	err := s.readDir(dir, func(page []byte) bool {
		entries, end := common.DecodeDirNames(page)
		names = append(names, entries...)
		return end
	})
	if err != nil {
		return names, fmt.Errorf("list %s: %w", dir, err)
	}
	return names, nil
}

// StatList returns the entries of directory dir including their status.
func (s *Session) StatList(dir string) ([]common.Stat, error) {
	var stats []common.Stat
	err := s.readDir(dir, func(page []byte) bool {
		entries, end := common.DecodeDirPage(page)
		stats = append(stats, entries...)
		return end
	})
	if err != nil {
		return stats, fmt.Errorf("list %s: %w", dir, err)
	}
	return stats, nil
}

// readDir requests directory pages until an empty page or until decode
// reports the end of listing marker.
func (s *Session) readDir(dir string, decode func(page []byte) bool) error {
	name := common.CString(dir)
	var pos uint32
	for {
		pck, err := s.Request(common.CmdGetDir, pos, name, nil)
		if err != nil {
			return err
		}
		if err := pck.Expect(common.CmdGetDir); err != nil {
			return err
		}
		if len(pck.Data) == 0 {
			return nil
		}
		pos += uint32(len(pck.Data))
		if decode(pck.Data) {
			return nil
		}
	}
}

// Stat returns the status of path, or nil if it does not exist.
func (s *Session) Stat(path string) (*common.Stat, error) {
	pck, err := s.Request(common.CmdStat, 0, common.CString(path), nil)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	stat, err := common.DecodeStat(pck, path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return stat, nil
}

// StatSupported reports whether the server understands STAT.
func (s *Session) StatSupported() (bool, error) {
	pck, err := s.Request(common.CmdStat, 0, common.CString("/"), nil)
	if err != nil {
		return false, err
	}
	return pck.Command == common.CmdStat, nil
}

func (s *Session) Version() (*common.Version, error) {
	pck, err := s.Request(common.CmdVersion, 0, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	ver, err := common.DecodeVersion(pck)
	if err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	return ver, nil
}

func (s *Session) GetProtection(dir string) (*common.Protection, error) {
	pck, err := s.Request(common.CmdGetProtection, 0, common.CString(dir), nil)
	if err != nil {
		return nil, fmt.Errorf("get protection %s: %w", dir, err)
	}
	pro, err := common.DecodeProtection(pck)
	if err != nil {
		return nil, fmt.Errorf("get protection %s: %w", dir, err)
	}
	return pro, nil
}

// SetProtection changes one public permission of dir. mode is '+' or '-'
// followed by one of c (add files), d (delete), g (get), m (make
// directories), l (list) or r (rename).
func (s *Session) SetProtection(dir string, mode string) (*common.Protection, error) {
	if len(mode) != 2 || (mode[0] != '+' && mode[0] != '-') || !strings.ContainsRune("cdgmlr", rune(mode[1])) {
		return nil, fmt.Errorf("set protection %s: invalid mode %q", dir, mode)
	}
	extra := common.CString(mode)
	pck, err := s.Request(common.CmdSetProtection, uint32(len(extra)), common.CString(dir), extra)
	if err != nil {
		return nil, fmt.Errorf("set protection %s: %w", dir, err)
	}
	pro, err := common.DecodeProtection(pck)
	if err != nil {
		return nil, fmt.Errorf("set protection %s: %w", dir, err)
	}
	return pro, nil
}

// CanUpload reports whether the server is expected to accept an upload to
// path. Without delete permission an existing file can not be replaced.
func (s *Session) CanUpload(path string) (bool, error) {
	dir := "/"
	if n := strings.LastIndex(path, "/"); n >= 1 {
		dir = path[:n]
	}

	pro, err := s.GetProtection(dir)
	if err != nil {
		return false, err
	}
	if pro.Owner {
		return true, nil
	}
	if !pro.Add {
		return false, nil
	}
	if !pro.Delete {
		stat, err := s.Stat(path)
		if err != nil {
			return false, err
		}
		if stat != nil {
			log.WithField("File Path", path).Debug("Upload would replace file without delete permission")
			return false, nil
		}
	}
	return true, nil
}

func (s *Session) Remove(path string) error {
	if err := s.simple(common.CmdDelFile, path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (s *Session) RemoveDir(path string) error {
	if err := s.simple(common.CmdDelDir, path); err != nil {
		return fmt.Errorf("remove directory %s: %w", path, err)
	}
	return nil
}

func (s *Session) MakeDir(path string) error {
	if err := s.simple(common.CmdMakeDir, path); err != nil {
		return fmt.Errorf("make directory %s: %w", path, err)
	}
	return nil
}

func (s *Session) Rename(from, to string) error {
	extra := common.CString(to)
	pck, err := s.Request(common.CmdRename, uint32(len(extra)), common.CString(from), extra)
	if err == nil {
		err = pck.Expect(common.CmdRename)
	}
	if err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}
	return nil
}

// simple sends cmd with path as the only argument and checks the reply.
func (s *Session) simple(cmd common.Command, path string) error {
	pck, err := s.Request(cmd, 0, common.CString(path), nil)
	if err != nil {
		return err
	}
	return pck.Expect(cmd)
}
