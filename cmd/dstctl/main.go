package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"example.com/dstkit/internal/common"
	"example.com/dstkit/internal/dict"
	"example.com/dstkit/internal/dst"
	"example.com/dstkit/internal/manifest"
	"example.com/dstkit/internal/recipe"
	"example.com/dstkit/internal/report"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	switch os.Args[1] {
	case "scan":
		scanCmd(os.Args[2:])
	case "events":
		eventsCmd(os.Args[2:])
	case "decode":
		decodeCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "manifest":
		manifestCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`dstctl %s (built %s) <command> [options]

Commands:
  scan      --in <capture.dst[.gz]> [--dict <banks.yaml>] [--json <scan.json>] [--pdf <scan.pdf>] [--metrics] [--progress]
  events    --in <capture.dst[.gz]> --dict <banks.yaml> [--keep-markers] [--limit <n>]
  decode    --in <capture.dst[.gz]> --dict <banks.yaml> --recipes <dir> --out <records.ndjson> [--skip-unknown] [--metrics] [--progress]
  report    --scan <scan.json> --pdf <scan.pdf>
  manifest  --inputs <comma-separated> --out <manifest.json>
`, version, buildDate)
}

type logConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type config struct {
	Dict    string    `yaml:"dict"`
	Recipes string    `yaml:"recipes"`
	Logs    logConfig `yaml:"logs"`
}

func loadConfig(path string) (config, error) {
	var cfg config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	cfg.Dict = resolvePath(cfg.Dict)
	cfg.Recipes = resolvePath(cfg.Recipes)
	if cfg.Logs.Directory != "" {
		cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 50
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	return cfg, nil
}

func setupLogging(cfg logConfig) error {
	if cfg.Directory == "" {
		return nil
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Directory, "dstctl.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	common.SetLogOutput(io.MultiWriter(os.Stderr, rotator))
	return nil
}

// applyConfig loads the optional config file and wires log rotation. Explicit
// flags win over config values.
func applyConfig(path string, dictPath, recipesDir *string) {
	if path == "" {
		return
	}
	cfg, err := loadConfig(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := setupLogging(cfg.Logs); err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	if dictPath != nil && *dictPath == "" {
		*dictPath = cfg.Dict
	}
	if recipesDir != nil && *recipesDir == "" {
		*recipesDir = cfg.Recipes
	}
}

func newMetrics(enabled bool, in string) *common.Metrics {
	if !enabled {
		return nil
	}
	m := common.NewMetrics()
	if info, err := os.Stat(in); err == nil {
		m.SetTotalBytes(info.Size())
	}
	m.Start()
	return m
}

func printMetrics(m *common.Metrics) {
	m.Stop()
	snap := m.Snapshot()
	fmt.Printf("Processed %s in %s (%.2f MiB/s): %d blocks, %d banks, %d events\n",
		common.FormatBytes(snap.Bytes), snap.Duration.Round(time.Millisecond),
		snap.ThroughputBytesPerSecond()/(1024*1024), snap.Blocks, snap.Banks, snap.Events)
}

func scanCmd(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	in := fs.String("in", "", "input capture file")
	dictPath := fs.String("dict", "", "bank dictionary YAML")
	jsonOut := fs.String("json", "", "output scan report JSON")
	pdfOut := fs.String("pdf", "", "output scan report PDF")
	configPath := fs.String("config", "", "optional config YAML")
	metricsFlag := fs.Bool("metrics", false, "print throughput metrics")
	progressFlag := fs.Bool("progress", false, "display progress updates")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	applyConfig(*configPath, dictPath, nil)

	var table *dict.Table
	if *dictPath != "" {
		var err error
		table, err = dict.Load(*dictPath)
		if err != nil {
			fmt.Println("load dictionary:", err)
			os.Exit(1)
		}
	}

	// the scan report needs block/bank counts, so metrics always run here
	metrics := newMetrics(true, *in)
	var stopProgress func()
	if *progressFlag {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, time.Second)
	}

	rep := report.ScanReport{File: *in}
	if hash, size, err := common.Sha256OfFile(*in); err == nil {
		rep.Sha256 = hash
		rep.SizeBytes = size
	}

	br, err := dst.OpenBlockReader(*in)
	if err != nil {
		fmt.Println("open capture:", err)
		os.Exit(1)
	}
	defer br.Close()
	br.SetMetrics(metrics)

	assembler := dst.NewBankAssembler(br)
	assembler.SetMetrics(metrics)
	tally := report.NewTally()

	var markers dict.Markers
	if table != nil {
		markers = table.Markers()
	}
	var (
		inEvent bool
		pending int64
	)
	for {
		bank, err := assembler.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rep.Error = err.Error()
			break
		}
		tally.Add(bank.ID)
		if table == nil {
			continue
		}
		// mirror the event grouping rules so the report carries an event count
		switch bank.ID {
		case markers.Start:
			if inEvent && pending > 0 {
				rep.Events++
			}
			inEvent, pending = true, 0
		case markers.Stop:
			if inEvent {
				rep.Events++
			}
			inEvent, pending = false, 0
		default:
			if inEvent {
				pending++
			}
		}
	}
	if stopProgress != nil {
		stopProgress()
	}

	if metrics != nil {
		snap := metrics.Snapshot()
		rep.Blocks = snap.Blocks
		rep.Banks = snap.Banks
	}
	rep.BankCounts = tally.Counts(table)

	printScanSummary(rep)
	if *metricsFlag && metrics != nil {
		printMetrics(metrics)
	}
	if *jsonOut != "" {
		if err := report.SaveJSON(rep, *jsonOut); err != nil {
			fmt.Println("write json:", err)
			os.Exit(1)
		}
		fmt.Println("Wrote JSON:", *jsonOut)
	}
	if *pdfOut != "" {
		if err := report.SaveScanPDF(rep, *pdfOut); err != nil {
			fmt.Println("write pdf:", err)
			os.Exit(1)
		}
		fmt.Println("Wrote PDF:", *pdfOut)
	}
	if rep.Error != "" {
		fmt.Println("scan aborted:", rep.Error)
		os.Exit(1)
	}
}

func printScanSummary(rep report.ScanReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "File:\t%s\n", rep.File)
	if rep.Sha256 != "" {
		fmt.Fprintf(w, "SHA-256:\t%s\n", rep.Sha256)
		fmt.Fprintf(w, "Size:\t%s\n", common.FormatBytes(rep.SizeBytes))
	}
	fmt.Fprintf(w, "Blocks:\t%d\n", rep.Blocks)
	fmt.Fprintf(w, "Events:\t%d\n", rep.Events)
	fmt.Fprintf(w, "Banks:\t%d\n", totalBanks(rep))
	for _, row := range rep.BankCounts {
		fmt.Fprintf(w, "  %s (%d)\t%d\n", row.Name, row.ID, row.Count)
	}
	w.Flush()
}

func totalBanks(rep report.ScanReport) int64 {
	var n int64
	for _, row := range rep.BankCounts {
		n += row.Count
	}
	return n
}

func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	in := fs.String("in", "", "input capture file")
	dictPath := fs.String("dict", "", "bank dictionary YAML")
	configPath := fs.String("config", "", "optional config YAML")
	keepMarkers := fs.Bool("keep-markers", false, "keep marker banks inside events")
	limit := fs.Int("limit", 0, "stop after this many events (0 = all)")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	applyConfig(*configPath, dictPath, nil)
	if *dictPath == "" {
		fmt.Println("required: --dict")
		os.Exit(1)
	}
	table, err := dict.Load(*dictPath)
	if err != nil {
		fmt.Println("load dictionary:", err)
		os.Exit(1)
	}

	br, err := dst.OpenBlockReader(*in)
	if err != nil {
		fmt.Println("open capture:", err)
		os.Exit(1)
	}
	defer br.Close()

	markers := table.Markers()
	assembler := dst.NewEventAssembler(dst.NewBankAssembler(br), markers.Start, markers.Stop, *keepMarkers)
	count := 0
	for {
		ev, err := assembler.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Println("assemble events:", err)
			os.Exit(1)
		}
		count++
		fmt.Printf("event %d (%d banks)\n", count, len(ev.Banks))
		for _, bank := range ev.Banks {
			fmt.Println("  " + table.Describe(bank))
		}
		if *limit > 0 && count >= *limit {
			break
		}
	}
	fmt.Printf("%d events\n", count)
}

func decodeCmd(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	in := fs.String("in", "", "input capture file")
	dictPath := fs.String("dict", "", "bank dictionary YAML")
	recipesDir := fs.String("recipes", "", "recipe directory")
	out := fs.String("out", "records.ndjson", "output NDJSON file")
	configPath := fs.String("config", "", "optional config YAML")
	skipUnknown := fs.Bool("skip-unknown", false, "skip banks without a recipe instead of failing")
	metricsFlag := fs.Bool("metrics", false, "print throughput metrics")
	progressFlag := fs.Bool("progress", false, "display progress updates")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	applyConfig(*configPath, dictPath, recipesDir)
	if *dictPath == "" || *recipesDir == "" {
		fmt.Println("required: --dict and --recipes")
		os.Exit(1)
	}

	table, err := dict.Load(*dictPath)
	if err != nil {
		fmt.Println("load dictionary:", err)
		os.Exit(1)
	}
	registry, err := recipe.LoadDir(*recipesDir)
	if err != nil {
		fmt.Println("load recipes:", err)
		os.Exit(1)
	}
	common.Logf("loaded %d recipes from %s", registry.Len(), *recipesDir)

	metrics := newMetrics(*metricsFlag || *progressFlag, *in)
	var stopProgress func()
	if *progressFlag && metrics != nil {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, time.Second)
	}

	br, err := dst.OpenBlockReader(*in)
	if err != nil {
		fmt.Println("open capture:", err)
		os.Exit(1)
	}
	defer br.Close()
	br.SetMetrics(metrics)

	bankAssembler := dst.NewBankAssembler(br)
	bankAssembler.SetMetrics(metrics)
	markers := table.Markers()
	assembler := dst.NewEventAssembler(bankAssembler, markers.Start, markers.Stop, false)
	assembler.SetMetrics(metrics)

	writer, err := report.NewRecordWriter(*out)
	if err != nil {
		fmt.Println("create output:", err)
		os.Exit(1)
	}

	type bankDoc struct {
		ID     uint32        `json:"id"`
		Name   string        `json:"name"`
		Record recipe.Record `json:"record"`
	}
	type eventDoc struct {
		Event int       `json:"event"`
		Banks []bankDoc `json:"banks"`
	}

	events := 0
	skipped := 0
	for {
		ev, err := assembler.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writer.Close()
			fmt.Println("assemble events:", err)
			os.Exit(1)
		}
		events++
		doc := eventDoc{Event: events}
		for _, bank := range ev.Banks {
			rec, ok := registry.Lookup(bank.ID)
			if !ok {
				if *skipUnknown {
					skipped++
					continue
				}
				writer.Close()
				fmt.Println("no recipe for bank:", table.Describe(bank))
				os.Exit(1)
			}
			record, err := recipe.DecodeBank(bank, rec)
			if err != nil {
				writer.Close()
				fmt.Println("decode bank:", err)
				os.Exit(1)
			}
			doc.Banks = append(doc.Banks, bankDoc{ID: bank.ID, Name: table.Name(bank.ID), Record: record})
		}
		if err := writer.Write(doc); err != nil {
			writer.Close()
			fmt.Println("write record:", err)
			os.Exit(1)
		}
	}
	if stopProgress != nil {
		stopProgress()
	}
	if err := writer.Close(); err != nil {
		fmt.Println("close output:", err)
		os.Exit(1)
	}

	fmt.Printf("decoded %d events to %s\n", events, *out)
	if skipped > 0 {
		fmt.Printf("skipped %d banks without a recipe\n", skipped)
	}
	if *metricsFlag && metrics != nil {
		printMetrics(metrics)
	}
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	scanPath := fs.String("scan", "", "scan report JSON")
	pdfPath := fs.String("pdf", "", "output scan report PDF")
	fs.Parse(args)

	if *scanPath == "" || *pdfPath == "" {
		fmt.Println("required: --scan and --pdf")
		os.Exit(1)
	}
	rep, err := report.LoadJSON(*scanPath)
	if err != nil {
		fmt.Println("load scan report:", err)
		os.Exit(1)
	}
	if err := report.SaveScanPDF(rep, *pdfPath); err != nil {
		fmt.Println("write pdf:", err)
		os.Exit(1)
	}
	fmt.Println("Wrote PDF:", *pdfPath)
}

func manifestCmd(args []string) {
	fs := flag.NewFlagSet("manifest", flag.ExitOnError)
	inputs := fs.String("inputs", "", "comma-separated paths")
	out := fs.String("out", "manifest.json", "output json")
	fs.Parse(args)

	if *inputs == "" {
		fmt.Println("required: --inputs")
		os.Exit(1)
	}
	var paths []string
	for _, p := range strings.Split(*inputs, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	m, err := manifest.Build(paths)
	if err != nil {
		fmt.Println("build manifest:", err)
		os.Exit(1)
	}
	if err := manifest.Save(m, *out); err != nil {
		fmt.Println("write manifest:", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote manifest with %d items: %s\n", len(m.Items), *out)
}
