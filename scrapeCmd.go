package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"scrollgrab/cf"
	"scrollgrab/downloader"
	"scrollgrab/logger"
	"scrollgrab/sites"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var fromClipboard bool

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url> [dir]",
	Short: "Download every image of a gallery, page by page",
	Long: `Open <url> in Chrome and save every gallery image into [dir]
(default: output.directory from the config, ./downloads).

Each page is scrolled to the bottom so lazy images load, then every image
is exported through a canvas in a new tab. The run follows the site's
"next" link until there is none. Ctrl+C stops the run; the browser is
still closed and the summary printed.

Cloudflare clearance cookies stored with 'scrollgrab cookies import' are
injected before the first page loads.`,
	Example: `  # Scrape a madara chapter into ./downloads
  scrollgrab scrape https://manhuaus.com/manga/some-title/chapter-1/

  # Into a specific directory, headless, with the HTTP fallback
  scrollgrab scrape https://example.com/gallery/1 ./out --headless --http-fallback

  # URL from the clipboard
  scrollgrab scrape --clipboard`,
	Args: cobra.RangeArgs(0, 2),
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	// these reach the config through changedFlags
	scrapeCmd.Flags().Bool("headless", false, "run Chrome without a window")
	scrapeCmd.Flags().String("site", "", "site profile (auto, "+strings.Join(sites.Default().Names(), ", ")+")")
	scrapeCmd.Flags().String("prefix", "", "file name prefix (default image)")
	scrapeCmd.Flags().StringP("output", "o", "", "output directory")
	scrapeCmd.Flags().String("exec-path", "", "Chrome executable")
	scrapeCmd.Flags().String("metrics-file", "", "write Prometheus metrics to this file when the run ends")
	scrapeCmd.Flags().Bool("http-fallback", false, "fetch images over HTTP when the canvas export fails")
	scrapeCmd.Flags().BoolVar(&fromClipboard, "clipboard", false, "read the start URL from the clipboard")
}

func runScrape(cmd *cobra.Command, args []string) error {
	startURL, dir, err := scrapeTarget(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.Output.Directory
	}

	log, closer, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	site, err := sites.Default().Resolve(cfg.Site.Profile, startURL)
	if err != nil {
		return err
	}

	metrics := downloader.NewMetrics()
	opts := []downloader.Option{
		downloader.WithLogger(logger.Component(log, "downloader")),
		downloader.WithMetrics(metrics),
		downloader.WithProgress(printProgress(cmd)),
	}

	bypass := loadBypass(log, startURL)
	if bypass != nil {
		opts = append(opts, downloader.WithBypass(bypass))
	}

	if cfg.Download.HTTPFallback {
		ua := bypassUserAgent(bypass)
		if ua == "" && len(cfg.Browser.UserAgents) > 0 {
			ua = cfg.Browser.UserAgents[0]
		}
		var fopts []downloader.FetcherOption
		if bypass != nil {
			fopts = append(fopts, downloader.WithBypassData(bypass))
		}
		fetcher := downloader.NewHTTPFetcher(ua, cfg.Download.HTTPTimeout, logger.Component(log, "fallback"), fopts...)
		opts = append(opts, downloader.WithFallback(fetcher))
	}

	session, err := downloader.NewSession(cfg, site, startURL, dir, opts...)
	if err != nil {
		return err
	}

	log.Info().
		Str("version", cmd.Root().Version).
		Str("site", site.Name).
		Msg("scrollgrab starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, runErr := session.Run(ctx)
	printReport(cmd, rep)

	if bypass != nil && rep.Challenges > 0 {
		markBypassFailed(log, bypass.Domain)
	}

	if err := metrics.WriteTextfile(cfg.Metrics.File); err != nil {
		log.Warn().Err(err).Str("path", cfg.Metrics.File).Msg("failed to write metrics")
	}
	return runErr
}

// scrapeTarget resolves the start URL from args or the clipboard
func scrapeTarget(args []string) (string, string, error) {
	var startURL, dir string
	switch {
	case fromClipboard:
		text, err := cf.ReadClipboard()
		if err != nil {
			return "", "", err
		}
		startURL = text
		if len(args) > 0 {
			dir = args[0]
		}
		if len(args) > 1 {
			return "", "", errors.New("with --clipboard only [dir] may be given")
		}
	case len(args) == 0:
		return "", "", errors.New("a gallery URL is required (or use --clipboard)")
	default:
		startURL = args[0]
		if len(args) > 1 {
			dir = args[1]
		}
	}
	return strings.TrimSpace(startURL), dir, nil
}

// loadBypass returns stored clearance data for the start URL host, or nil
// when there is none or it is stale.
func loadBypass(log zerolog.Logger, startURL string) *cf.BypassData {
	u, err := url.Parse(startURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	dir, err := cf.DefaultDir()
	if err != nil {
		log.Warn().Err(err).Msg("no bypass store")
		return nil
	}

	data, err := cf.NewStore(dir, log).LoadValid(u.Hostname(), time.Now())
	if err != nil {
		if !errors.Is(err, cf.ErrNoBypassData) {
			log.Warn().Err(err).Str("domain", u.Hostname()).Msg("ignoring stored bypass data")
		}
		return nil
	}
	log.Info().
		Str("domain", data.Domain).
		Int("cookies", len(data.CookieList())).
		Msg("using stored bypass data")
	return data
}

// markBypassFailed flags stored data that did not keep challenges away so
// the next run skips it until the cooldown passes.
func markBypassFailed(log zerolog.Logger, domain string) {
	dir, err := cf.DefaultDir()
	if err != nil {
		return
	}
	if err := cf.NewStore(dir, log).MarkFailed(domain, time.Now()); err != nil {
		log.Warn().Err(err).Str("domain", domain).Msg("failed to mark bypass data")
	}
}

func bypassUserAgent(data *cf.BypassData) string {
	if data == nil {
		return ""
	}
	return data.Entropy.UserAgent
}

func printProgress(cmd *cobra.Command) downloader.ProgressFunc {
	out := cmd.OutOrStdout()
	return func(o downloader.Outcome) {
		switch o.Status {
		case downloader.Saved:
			fmt.Fprintf(out, "saved   %s\n", o.Path)
		case downloader.Skipped:
			fmt.Fprintf(out, "skipped %s (%v)\n", o.URL, o.Err)
		case downloader.Failed:
			fmt.Fprintf(out, "failed  %s (%v)\n", o.URL, o.Err)
		}
	}
}

func printReport(cmd *cobra.Command, rep downloader.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Run        %s\n", rep.RunID)
	fmt.Fprintf(out, "Stopped    %s after %s\n", rep.Reason, rep.Duration.Round(time.Second))
	fmt.Fprintf(out, "Pages      %d (challenges: %d)\n", rep.Pages, rep.Challenges)
	fmt.Fprintf(out, "Saved      %d\n", rep.Downloaded)
	fmt.Fprintf(out, "Skipped    %d\n", rep.Skipped)
	fmt.Fprintf(out, "Failed     %d\n", rep.Failed)
	fmt.Fprintf(out, "Next index %d\n", rep.ResumeIndex)
}
