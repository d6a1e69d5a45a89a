package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jpfielding/godcm/pkg/logging"
	"github.com/spf13/cobra"
)

// NewRoot builds the dcmutil command tree.
func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	root := &cobra.Command{
		Use:   "dcmutil",
		Short: "inspect and rewrite DICOM Part-10 files",
		Long:  "dcmutil reads, prints, and re-encodes DICOM Part-10 streams.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logLevel, _ := cmd.Flags().GetString("log-level")
			var level slog.Level
			if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
				level = slog.LevelInfo
			}

			var w io.Writer = os.Stderr
			if logFile, _ := cmd.Flags().GetString("log-file"); logFile != "" {
				maxSizeMB, _ := cmd.Flags().GetInt("log-max-size-mb")
				maxBackups, _ := cmd.Flags().GetInt("log-max-backups")
				w = io.MultiWriter(os.Stderr, logging.RotatingFileWriter(logFile, maxSizeMB, maxBackups))
			}
			slog.SetDefault(logging.Logger(w, false, level))
		},
		Run: func(cmd *cobra.Command, args []string) {
			printCommandTree(cmd, 0)
		},
	}
	root.AddCommand(
		newVersionCmd(gitsha),
		newReadCmd(),
		newMetaCmd(),
		newSegmentsCmd(),
	)
	root.PersistentFlags().String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	root.PersistentFlags().String("log-file", "", "Also write logs to this path, rotating once it grows too large (batch/directory runs)")
	root.PersistentFlags().Int("log-max-size-mb", 100, "Rotate --log-file once it exceeds this size in megabytes")
	root.PersistentFlags().Int("log-max-backups", 3, "Number of rotated --log-file backups to keep")
	return root
}

func printCommandTree(cmd *cobra.Command, indent int) {
	fmt.Println(strings.Repeat("\t", indent), cmd.Use+":", cmd.Short)
	for _, sub := range cmd.Commands() {
		printCommandTree(sub, indent+1)
	}
}

func newVersionCmd(gitsha string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the build's git sha",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(gitsha)
		},
	}
}
