package main

import (
	"fmt"

	"scrollgrab/parser"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index [dir]",
	Short: "Show where a rerun into a directory would continue",
	Long: `Scan [dir] for files named <prefix>_<n>.<ext> and print the highest n
and the number the next saved image would get. Other files are ignored.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		dir := cfg.Output.Directory
		if len(args) == 1 {
			dir = args[0]
		}
		prefix := cfg.Output.Prefix
		if prefix == "" {
			prefix = "image"
		}

		last, err := parser.LastImageIndex(dir, prefix)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if last < 0 {
			fmt.Fprintf(out, "%s: no %s_<n> files\n", dir, prefix)
		} else {
			fmt.Fprintf(out, "%s: last index %d\n", dir, last)
		}
		fmt.Fprintf(out, "next file: %s\n", parser.ImageFileName(prefix, last+1, "<ext>"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	// merged into output.prefix by loadConfig
	indexCmd.Flags().String("prefix", "", "file name prefix (default image)")
}
