package main

import (
	"errors"
	"fmt"
	"time"

	"scrollgrab/cf"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cookiesFile      string
	cookiesClipboard bool
)

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Manage stored Cloudflare bypass data",
	Long: `Bypass data is the cookie set (cf_clearance and friends) and user agent
captured in a real browser after passing a challenge by hand. It is stored
per domain and injected into the scrape browser before the first page load.`,
}

var cookiesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Store captured bypass data (JSON) for its domain",
	Example: `  scrollgrab cookies import --file captured.json
  scrollgrab cookies import --clipboard`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, done, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer done()

		var domain string
		switch {
		case cookiesFile != "" && cookiesClipboard:
			return errors.New("use either --file or --clipboard")
		case cookiesFile != "":
			domain, err = store.ImportFromFile(cookiesFile)
		case cookiesClipboard:
			domain, err = store.ImportFromClipboard()
		default:
			return errors.New("nothing to import: pass --file or --clipboard")
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "stored bypass data for %s in %s\n", domain, store.Dir())
		return nil
	},
}

var cookiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List domains with stored bypass data",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, done, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer done()
		domains, err := store.List()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(domains) == 0 {
			fmt.Fprintln(out, "no stored bypass data")
			return nil
		}
		now := time.Now()
		for _, d := range domains {
			status := "valid"
			data, err := store.Load(d)
			if err == nil {
				err = cf.Validate(data, now)
			}
			if err != nil {
				status = err.Error()
			}
			fmt.Fprintf(out, "%-30s %s\n", d, status)
		}
		return nil
	},
}

var cookiesDeleteCmd = &cobra.Command{
	Use:   "delete <domain>",
	Short: "Remove stored bypass data for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, done, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer done()
		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted bypass data for %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cookiesCmd)
	cookiesCmd.AddCommand(cookiesImportCmd)
	cookiesCmd.AddCommand(cookiesListCmd)
	cookiesCmd.AddCommand(cookiesDeleteCmd)

	cookiesImportCmd.Flags().StringVarP(&cookiesFile, "file", "f", "", "captured JSON file")
	cookiesImportCmd.Flags().BoolVar(&cookiesClipboard, "clipboard", false, "read captured JSON from the clipboard")
}

// openStore opens the default store with the configured logger; done
// releases the log file.
func openStore(cmd *cobra.Command) (*cf.Store, func(), error) {
	log := zerolog.Nop()
	done := func() {}
	if cfg, err := loadConfig(cmd); err == nil {
		if l, closer, err := setupLogging(cfg); err == nil {
			log = l
			done = func() { closer.Close() }
		}
	}

	dir, err := cf.DefaultDir()
	if err != nil {
		done()
		return nil, nil, err
	}
	return cf.NewStore(dir, log), done, nil
}
