package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version <target>",
	Short: "Show the server version and capabilities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := open(args[0])
		if err != nil {
			return err
		}
		defer closeSession(s)

		ver, err := s.Version()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ver.Version)
		if !ver.ExtendedInfo {
			return nil
		}

		var caps []string
		for _, c := range []struct {
			set  bool
			name string
		}{
			{ver.Logging, "logging"},
			{ver.ReadOnly, "read-only"},
			{ver.ReverseLookup, "reverse-lookup"},
			{ver.PrivateMode, "private"},
			{ver.ExtraData, "extra-data"},
		} {
			if c.set {
				caps = append(caps, c.name)
			}
		}
		if len(caps) > 0 {
			fmt.Fprintf(out, "capabilities: %s\n", strings.Join(caps, ", "))
		}
		if ver.Throughput > 0 {
			fmt.Fprintf(out, "throughput: %d bytes/s\n", ver.Throughput)
		}
		if ver.Payload > 0 {
			fmt.Fprintf(out, "payload: %d bytes\n", ver.Payload)
		}
		return nil
	},
}
