package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/iDeFi-AI/api-v2/internal/backend"
	"github.com/iDeFi-AI/api-v2/internal/check"
	cfgpkg "github.com/iDeFi-AI/api-v2/internal/config"
	"github.com/iDeFi-AI/api-v2/internal/export"
	"github.com/iDeFi-AI/api-v2/internal/flagged"
	"github.com/iDeFi-AI/api-v2/internal/logging"
)

var (
	// version is set via -ldflags "-X main.version=..."
	version = "dev"
	// exit is aliased to os.Exit to allow overriding in tests.
	exit = os.Exit
	// function variables allow tests to inject stubs
	newBackend  func(cfg cfgpkg.Config, endpoint string, rate int) (backend.Source, error)
	loadDataset func(path string) (backend.Source, error)
)

func defaultNewBackend(cfg cfgpkg.Config, endpoint string, rate int) (backend.Source, error) {
	return backend.New(endpoint, cfg.BackendAPIKey, rate, cfg.HTTPRetries, cfg.HTTPBackoffBase, cfg.FlaggedCacheTTL)
}

func defaultLoadDataset(path string) (backend.Source, error) {
	d, err := flagged.Load(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func wireDefaults() {
	newBackend = defaultNewBackend
	loadDataset = defaultLoadDataset
}

func init() { wireDefaults() }

// printUsage prints a detailed CLI help with env mappings and examples.
func printUsage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "\nUsage:\n  %s (--address 0x...[,0x...] | --file path | --records path) (--dataset path | --backend url) [flags]\n\n", os.Args[0])
	fmt.Fprintln(w, "Flags:")
	flag.PrintDefaults()
	fmt.Fprintln(w, "\nEnvironment variables (defaults):")
	fmt.Fprintln(w, "  BACKEND_URL        Risk backend base URL (default empty)")
	fmt.Fprintln(w, "  BACKEND_API_KEY    API key sent as X-API-Key (optional)")
	fmt.Fprintln(w, "  CHAIN              Chain name passed to the backend (default ethereum)")
	fmt.Fprintln(w, "  FLAGGED_DATASET    Offline flagged dataset, .json or .yaml (optional)")
	fmt.Fprintln(w, "  CLICKHOUSE_DSN     ClickHouse DSN (preferred if set)")
	fmt.Fprintln(w, "  CLICKHOUSE_URL     ClickHouse base URL (e.g., http://localhost:8123)")
	fmt.Fprintln(w, "  CLICKHOUSE_DB      ClickHouse database name")
	fmt.Fprintln(w, "  CLICKHOUSE_USER    ClickHouse username (optional)")
	fmt.Fprintln(w, "  CLICKHOUSE_PASS    ClickHouse password (optional)")
	fmt.Fprintln(w, "  STATUS_TABLE       Table for resolved statuses (default address_status)")
	fmt.Fprintln(w, "  RESOLVE_WORKERS    Resolver goroutines (default 4)")
	fmt.Fprintln(w, "  RATE_LIMIT         Backend rate limit (req/s, default 0 = unlimited)")
	fmt.Fprintln(w, "  HTTP_RETRIES       HTTP retries on 5xx/429/network (default 2)")
	fmt.Fprintln(w, "  HTTP_BACKOFF_BASE  Backoff base for retries (default 100ms)")
	fmt.Fprintln(w, "  FLAGGED_CACHE_TTL  Flagged set cache TTL (default 5m, 0 disables)")
	fmt.Fprintln(w, "  CHECK_TIMEOUT      Overall timeout (default 30s)")
	fmt.Fprintln(w, "  LOG_LEVEL          debug | info | warn | error (default info)")
	fmt.Fprintln(w, "\nExamples:")
	fmt.Fprintln(w, "  Check two addresses against an offline dataset:")
	fmt.Fprintln(w, "    riskcheck --address 0xabc...,0xdef... --dataset fixtures/flagged/flagged.json")
	fmt.Fprintln(w, "  Resolve exported records against the backend's flagged set as CSV:")
	fmt.Fprintln(w, "    riskcheck --records records.json --backend $BACKEND_URL --format csv --out status.csv")
}

// usageErr prints msg and exits with the usage code.
func usageErr(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	exit(2)
}

func main() {
	// Load centralized defaults from env.
	defaults := cfgpkg.Load()
	var (
		addresses   string
		file        string
		recordsPath string
		dataset     string
		backendURL  string
		chain       string
		format      string
		out         string
		workers     int
		rateLimit   int
		chDSN       string
		table       string
		timeout     time.Duration
		logLevel    string
		dryRun      bool
		showVersion bool
	)

	flag.Usage = printUsage
	flag.StringVar(&addresses, "address", "", "Comma-separated addresses to check (0x...)")
	flag.StringVar(&file, "file", "", "File with addresses, one per line or comma-separated")
	flag.StringVar(&recordsPath, "records", "", "JSON file with address records to resolve as-is")
	flag.StringVar(&dataset, "dataset", defaults.FlaggedDataset, "Offline flagged dataset (FLAGGED_DATASET)")
	flag.StringVar(&backendURL, "backend", defaults.BackendURL, "Risk backend base URL (BACKEND_URL)")
	flag.StringVar(&chain, "chain", defaults.Chain, "Chain name (CHAIN)")
	flag.StringVar(&format, "format", "json", "Output format: json | csv")
	flag.StringVar(&out, "out", "", "Output file (default stdout)")
	flag.IntVar(&workers, "workers", defaults.ResolveWorkers, "Resolver goroutines (0 = GOMAXPROCS)")
	flag.IntVar(&rateLimit, "rate-limit", defaults.RateLimit, "Backend rate limit (req/s, 0 = unlimited)")
	flag.StringVar(&chDSN, "clickhouse", defaults.ClickHouseDSN, "ClickHouse DSN (CLICKHOUSE_DSN or built from CLICKHOUSE_URL/DB/USER/PASS)")
	flag.StringVar(&table, "table", defaults.StatusTable, "ClickHouse table for statuses (STATUS_TABLE)")
	flag.DurationVar(&timeout, "timeout", defaults.Timeout, "Overall check timeout")
	flag.StringVar(&logLevel, "log-level", defaults.LogLevel, "Log level (LOG_LEVEL)")
	flag.BoolVar(&dryRun, "dry-run", false, "Print plan and exit")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}
	logging.SetLevel(logLevel)

	outFormat, err := export.ParseFormat(format)
	if err != nil {
		usageErr(err.Error())
	}
	hasAddrs := strings.TrimSpace(addresses) != "" || file != ""
	switch {
	case recordsPath != "" && hasAddrs:
		usageErr("--records cannot be combined with --address or --file")
	case recordsPath == "" && !hasAddrs:
		usageErr("missing --address, --file or --records; see --help")
	}
	if dataset == "" && backendURL == "" {
		usageErr("missing --dataset or --backend; see --help")
	}
	if workers < 0 {
		usageErr("--workers must be >= 0")
	}
	if timeout <= 0 {
		usageErr("--timeout must be > 0")
	}

	if dryRun {
		source := "backend"
		switch {
		case dataset != "" && backendURL != "":
			source = "backend+dataset"
		case dataset != "":
			source = "dataset"
		}
		mode := "addresses"
		if recordsPath != "" {
			mode = "records"
		}
		plan := map[string]any{
			"mode":           mode,
			"source":         source,
			"address":        splitAddresses(addresses),
			"file":           file,
			"records":        recordsPath,
			"dataset":        dataset,
			"backend":        cfgpkg.RedactDSN(backendURL),
			"api_key":        cfgpkg.RedactKey(defaults.BackendAPIKey),
			"chain":          chain,
			"format":         string(outFormat),
			"out":            out,
			"workers":        workers,
			"rate_limit":     rateLimit,
			"clickhouse_dsn": cfgpkg.RedactDSN(chDSN),
			"table":          table,
			"timeout":        timeout.String(),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(plan)
		return
	}

	src, err := buildSource(defaults, dataset, backendURL, rateLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "source error: %v\n", err)
		exit(1)
	}

	checker := check.New(src, check.Options{
		Chain:         chain,
		Workers:       workers,
		ClickHouseDSN: chDSN,
		Table:         table,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var rep *check.Report
	if recordsPath != "" {
		data, rerr := os.ReadFile(recordsPath)
		if rerr != nil {
			fmt.Fprintf(os.Stderr, "records error: %v\n", rerr)
			exit(1)
		}
		rep, err = checker.ResolveRecordsJSON(ctx, data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "records error: %v\n", err)
			exit(1)
		}
	} else {
		inputs := splitAddresses(addresses)
		if file != "" {
			fromFile, ferr := readAddressFile(file)
			if ferr != nil {
				fmt.Fprintf(os.Stderr, "read error: %v\n", ferr)
				exit(1)
			}
			inputs = append(inputs, fromFile...)
		}
		rep, err = checker.Run(ctx, inputs)
	}
	if err != nil {
		if errors.Is(err, check.ErrNoAddresses) {
			usageErr(err.Error())
		}
		fmt.Fprintf(os.Stderr, "check error: %v\n", err)
		exit(1)
	}

	if err := writeReport(out, outFormat, rep); err != nil {
		fmt.Fprintf(os.Stderr, "output error: %v\n", err)
		exit(1)
	}
}

// buildSource picks the record source. With only a dataset the run is fully
// offline. With both, the backend checks addresses and the dataset's
// addresses are added to its flagged set.
func buildSource(cfg cfgpkg.Config, dataset, backendURL string, rate int) (backend.Source, error) {
	var ds backend.Source
	if dataset != "" {
		d, err := loadDataset(dataset)
		if err != nil {
			return nil, err
		}
		if backendURL == "" {
			return d, nil
		}
		ds = d
	}
	be, err := newBackend(cfg, backendURL, rate)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return be, nil
	}
	extra, err := ds.FlaggedAddresses(context.Background())
	if err != nil {
		return nil, err
	}
	return backend.WithExtraFlagged(be, extra), nil
}

func splitAddresses(s string) []string {
	var out []string
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\n' || r == '\t' }) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// readAddressFile reads addresses separated by newlines or commas. Lines
// starting with '#' are skipped.
func readAddressFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, splitAddresses(line)...)
	}
	return out, sc.Err()
}

func writeReport(path string, f export.Format, rep *check.Report) error {
	if path == "" {
		return export.Write(os.Stdout, f, rep)
	}
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(fh, f, rep); err != nil {
		_ = fh.Close()
		return err
	}
	return fh.Close()
}
