package commands

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <target> [local]",
	Short: "Download a file",
	Long: `Download a remote file. The local name defaults to the base name of the
remote path; "-" writes to stdout.

Examples:
  fsp get fsp://example.org/pub/README
  fsp get example.org:2121/pub/image.iso /tmp/image.iso`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDownload(cmd, args, false)
	},
}

var grabCmd = &cobra.Command{
	Use:   "grab <target> [local]",
	Short: "Download a file and delete it on the server",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDownload(cmd, args, true)
	},
}

var putCmd = &cobra.Command{
	Use:   "put <local> <target>",
	Short: "Upload a file",
	Long: `Upload a local file. A target ending in "/" keeps the local base name.

Examples:
  fsp put notes.txt example.org/incoming/`,
	Args: cobra.ExactArgs(2),
	RunE: runPut,
}

func init() {
	getCmd.Flags().Int64("offset", 0, "Start downloading at this byte offset")
	getCmd.Flags().Int64("length", -1, "Download at most this many bytes")
	putCmd.Flags().Bool("keep-time", true, "Preserve the local modification time")
	putCmd.Flags().Bool("check", false, "Check permissions before uploading")
}

func runDownload(cmd *cobra.Command, args []string, grab bool) error {
	s, remote, err := open(args[0])
	if err != nil {
		return err
	}
	defer closeSession(s)

	local := path.Base(remote)
	if len(args) > 1 {
		local = args[1]
	}

	var out io.Writer = cmd.OutOrStdout()
	if local != "-" {
		file, err := os.Create(local)
		if err != nil {
			return err
		}
		defer func(file *os.File) {
			err := file.Close()
			if err != nil {
				log.WithError(err).Error("Could not close File")
			}
		}(file)
		out = file
	}

	start := time.Now()
	var n int64
	if grab {
		n, err = s.Grab(remote, out)
	} else {
		offset, _ := cmd.Flags().GetInt64("offset")
		length, _ := cmd.Flags().GetInt64("length")
		if offset < 0 || offset > 0xffffffff {
			return fmt.Errorf("offset %d out of range", offset)
		}
		n, err = s.Download(remote, out, uint32(offset), length)
	}
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"File Path": remote,
		"Bytes":     n,
		"Duration":  time.Since(start),
	}).Info("Downloaded file")
	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	s, remote, err := open(args[1])
	if err != nil {
		return err
	}
	defer closeSession(s)

	if strings.HasSuffix(remote, "/") {
		remote += filepath.Base(args[0])
	}

	if check, _ := cmd.Flags().GetBool("check"); check {
		ok, err := s.CanUpload(remote)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no permission to upload %s", remote)
		}
	}

	file, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer func(file *os.File) {
		err := file.Close()
		if err != nil {
			log.WithError(err).Error("Could not close File")
		}
	}(file)

	var timestamp time.Time
	if keep, _ := cmd.Flags().GetBool("keep-time"); keep {
		info, err := file.Stat()
		if err != nil {
			return err
		}
		timestamp = info.ModTime()
	}

	start := time.Now()
	if err := s.Upload(remote, file, timestamp); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"File Path": remote,
		"Duration":  time.Since(start),
	}).Info("Uploaded file")
	return nil
}
