package main

// Command layout:
// - rootCmd.go    : persistent flags, config + logger bootstrap, version
// - scrapeCmd.go  : one scrape run against a gallery URL
// - indexCmd.go   : resume index of an output directory
// - cookiesCmd.go : stored Cloudflare bypass data (import, list, delete)
// - logsCmd.go    : print or follow the log file
// - configCmd.go  : show or create configuration files

func main() {
	Execute()
}
