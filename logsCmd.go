package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"scrollgrab/logger"

	"github.com/spf13/cobra"
)

var (
	logsLines  int
	logsGrep   string
	logsFollow bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print or follow the scrollgrab log file",
	Example: `  scrollgrab logs --lines 50
  scrollgrab logs --grep challenge
  scrollgrab logs --follow`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path := cfg.Logging.File
		if path == "" {
			return fmt.Errorf("no log file configured")
		}

		out := cmd.OutOrStdout()
		lines, total, err := logger.LastLines(path, logsLines, logsGrep)
		if err != nil {
			return err
		}
		for _, l := range lines {
			fmt.Fprintln(out, l)
		}
		if !logsFollow {
			if total > len(lines) {
				fmt.Fprintf(cmd.ErrOrStderr(), "(%d of %d lines from %s)\n", len(lines), total, path)
			}
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return logger.Follow(ctx, path, func(line string) {
			if logger.Matches(line, logsGrep) {
				fmt.Fprintln(out, line)
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 200, "number of trailing lines to print (0 for all)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "only lines containing this text (case-insensitive)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "keep printing lines as they are written")
}
