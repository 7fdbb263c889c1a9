package cli

import "flag"

const versionString = "1.0.0"

type cliOptions struct {
	configPath  string
	watch       bool
	ui          bool
	sarifPath   string
	diff        bool
	trends      bool
	since       string
	trendWindow string
	trendJSON   string
	trendTSV    string
	verbose     bool
	version     bool
	args        []string
}

func parseOptions(args []string) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("pyscope", flag.ContinueOnError)

	fs.StringVar(&opts.configPath, "config", "", "Path to pyscope.toml (default: nearest upward from the working directory)")
	fs.BoolVar(&opts.watch, "watch", false, "Keep running and re-check on file changes")
	fs.BoolVar(&opts.ui, "ui", false, "Terminal UI watch mode (implies -watch)")
	fs.StringVar(&opts.sarifPath, "sarif", "", "Write diagnostics as SARIF 2.1.0 to this path")
	fs.BoolVar(&opts.diff, "diff", false, "Print the delta against the last recorded run (requires history)")
	fs.BoolVar(&opts.trends, "trends", false, "Print the run-history trend report and exit (requires history)")
	fs.StringVar(&opts.since, "since", "", "Include runs at/after this timestamp (RFC3339 or YYYY-MM-DD)")
	fs.StringVar(&opts.trendWindow, "trend-window", "24h", "Moving-average window for -trends")
	fs.StringVar(&opts.trendJSON, "trend-json", "", "Write the trend report JSON to this path (requires -trends)")
	fs.StringVar(&opts.trendTSV, "trend-tsv", "", "Write the trend report TSV to this path (requires -trends)")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	if opts.ui {
		opts.watch = true
	}
	opts.args = fs.Args()
	return opts, nil
}
