package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Pablu23/fsp/internal/common"
)

var lsCmd = &cobra.Command{
	Use:   "ls <target>",
	Short: "List a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runLs,
}

var statCmd = &cobra.Command{
	Use:   "stat <target>",
	Short: "Show the status of a file or directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runStat,
}

var rmCmd = &cobra.Command{
	Use:   "rm <target>",
	Short: "Delete a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, remote, err := open(args[0])
		if err != nil {
			return err
		}
		defer closeSession(s)
		return s.Remove(remote)
	},
}

var rmdirCmd = &cobra.Command{
	Use:   "rmdir <target>",
	Short: "Delete an empty directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, remote, err := open(args[0])
		if err != nil {
			return err
		}
		defer closeSession(s)
		return s.RemoveDir(remote)
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <target>",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, remote, err := open(args[0])
		if err != nil {
			return err
		}
		defer closeSession(s)
		return s.MakeDir(remote)
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <target> <new path>",
	Short: "Rename a file or directory on the same server",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, remote, err := open(args[0])
		if err != nil {
			return err
		}
		defer closeSession(s)
		return s.Rename(remote, args[1])
	},
}

var proCmd = &cobra.Command{
	Use:   "pro <target> [mode]",
	Short: "Show or change directory permissions",
	Long: `Show the permissions of a directory, or change one of them.

mode is + or - followed by one of:
  c  create files     d  delete files   g  get files
  m  make directories l  list           r  rename

Examples:
  fsp pro example.org/incoming
  fsp pro example.org/incoming +c`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPro,
}

func init() {
	lsCmd.Flags().BoolP("long", "l", false, "Show size, modification time and type")
}

func runLs(cmd *cobra.Command, args []string) error {
	s, remote, err := open(args[0])
	if err != nil {
		return err
	}
	defer closeSession(s)

	out := cmd.OutOrStdout()
	if long, _ := cmd.Flags().GetBool("long"); !long {
		names, err := s.List(remote)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(out, name)
		}
		return nil
	}

	stats, err := s.StatList(remote)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, stat := range stats {
		name := stat.Name
		if stat.IsDir() {
			name += "/"
		}
		fmt.Fprintf(w, "%v\t%d\t%s\t\t%s\n", stat.Type, stat.Length, stat.LastModified.Format("2006-01-02 15:04"), name)
	}
	return w.Flush()
}

func runStat(cmd *cobra.Command, args []string) error {
	s, remote, err := open(args[0])
	if err != nil {
		return err
	}
	defer closeSession(s)

	stat, err := s.Stat(remote)
	if err != nil {
		return err
	}
	if stat == nil {
		return fmt.Errorf("%s: no such file or directory", remote)
	}
	fmt.Fprintln(cmd.OutOrStdout(), stat.String())
	return nil
}

func runPro(cmd *cobra.Command, args []string) error {
	s, remote, err := open(args[0])
	if err != nil {
		return err
	}
	defer closeSession(s)

	var pro *common.Protection
	if len(args) > 1 {
		pro, err = s.SetProtection(remote, args[1])
	} else {
		pro, err = s.GetProtection(remote)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, formatProtection(pro))
	if pro.Readme != "" {
		fmt.Fprintln(out, strings.TrimRight(pro.Readme, "\n"))
	}
	return nil
}

// formatProtection renders the permissions as "owner cdgmlr" with a dash for
// every missing permission.
func formatProtection(pro *common.Protection) string {
	flags := []struct {
		set    bool
		letter byte
	}{
		{pro.Add, 'c'},
		{pro.Delete, 'd'},
		{pro.Get, 'g'},
		{pro.MakeDir, 'm'},
		{pro.List, 'l'},
		{pro.Rename, 'r'},
	}
	b := make([]byte, 0, len(flags))
	for _, flag := range flags {
		if flag.set {
			b = append(b, flag.letter)
		} else {
			b = append(b, '-')
		}
	}

	owner := "public"
	if pro.Owner {
		owner = "owner"
	}
	return owner + " " + string(b)
}
