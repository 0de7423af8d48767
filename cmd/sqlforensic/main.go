// Command sqlforensic recovers live and deleted records from SQLite
// database files, their write-ahead logs and rollback journals.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/sqlforensic/core/forensic"
	"github.com/FocuswithJustin/sqlforensic/core/sqlite"
	"github.com/FocuswithJustin/sqlforensic/internal/config"
	"github.com/FocuswithJustin/sqlforensic/internal/evidence"
	"github.com/FocuswithJustin/sqlforensic/internal/export"
	"github.com/FocuswithJustin/sqlforensic/internal/logging"
	"github.com/FocuswithJustin/sqlforensic/internal/metrics"
)

const version = "0.1.0"

// Command output and logs are kept apart so output can be piped.
var (
	stdout    io.Writer = os.Stdout
	logOutput io.Writer = os.Stderr
)

// CLI defines the command-line interface for sqlforensic.
var CLI struct {
	// Global flags
	Config    string `name:"config" short:"c" help:"YAML configuration file" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" help:"Log format (json, text)"`

	Recover RecoverCmd `cmd:"" help:"Recover live and deleted records from a database"`
	Header  HeaderCmd  `cmd:"" help:"Print the database header"`
	WAL     WALCmd     `cmd:"" name:"wal" help:"List the frames of a write-ahead log"`
	Journal JournalCmd `cmd:"" help:"List the page records of a rollback journal"`
	Verify  VerifyCmd  `cmd:"" help:"Compare recovered row counts with the SQLite engine"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// loadConfig reads the configuration file and environment, applies the
// global log flags and initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, err
	}
	if CLI.LogLevel != "" {
		cfg.Log.Level = CLI.LogLevel
	}
	if CLI.LogFormat != "" {
		cfg.Log.Format = CLI.LogFormat
	}
	logging.InitLoggerTo(logOutput, logging.ParseLevel(cfg.Log.Level), logging.ParseFormat(cfg.Log.Format))
	return cfg, nil
}

// RecoverCmd runs a full recovery.
type RecoverCmd struct {
	Path string `arg:"" help:"Database file (.xz and .gz are decompressed)" type:"existingfile"`

	Out         string `short:"o" help:"Directory for per-table CSV files" type:"path"`
	Report      string `short:"r" help:"Write a YAML run report to this file" type:"path"`
	MetricsFile string `name:"metrics-file" help:"Write Prometheus metrics in text format to this file" type:"path"`

	Workers       int  `short:"w" help:"Worker pool size (0 uses the configured value)"`
	DeletedOnly   bool `name:"deleted-only" help:"Omit regular rows"`
	NoCarve       bool `name:"no-carve" help:"Decode live cells only"`
	NoFreelist    bool `name:"no-freelist" help:"Skip freelist pages"`
	NoUnallocated bool `name:"no-unallocated" help:"Do not carve unallocated space"`
	NoWAL         bool `name:"no-wal" help:"Ignore the write-ahead log"`
	NoJournal     bool `name:"no-journal" help:"Ignore the rollback journal"`
	Verify        bool `help:"Cross-check row counts with the SQLite engine"`
}

func (c *RecoverCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c.apply(cfg)

	set, err := evidence.Open(c.Path)
	if err != nil {
		return err
	}
	defer set.Close()

	reg := metrics.NewRegistry()
	opts := forensic.OptionsFromConfig(cfg)
	opts.Metrics = reg
	if set.WAL != nil {
		opts.WALPath = set.WAL.Path
	} else {
		opts.NoWAL = true
	}
	if set.Journal != nil {
		opts.JournalPath = set.Journal.Path
	} else {
		opts.NoJournal = true
	}

	ctx := context.Background()
	res, err := forensic.Recover(ctx, set.DB.Path, opts)
	if err != nil {
		return fmt.Errorf("recover %s: %w", c.Path, err)
	}

	var checks []forensic.Check
	if c.Verify {
		if checks, err = forensic.Verify(ctx, set.DB.Path, res); err != nil {
			return err
		}
	}

	var files []string
	if cfg.Output.Dir != "" {
		if files, err = export.WriteTables(cfg.Output.Dir, res); err != nil {
			return err
		}
	}

	printSummary(res, checks)

	if cfg.Output.Report != "" {
		rep := export.NewReport(res, set.Digests(), checks)
		rep.Files = files
		if err := rep.WriteFile(cfg.Output.Report); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Report: %s\n", cfg.Output.Report)
	}
	if cfg.Metrics.File != "" {
		if err := reg.WriteTextfile(cfg.Metrics.File); err != nil {
			return err
		}
	}
	return nil
}

// apply lets flags override configured values.
func (c *RecoverCmd) apply(cfg *config.Config) {
	if c.Workers > 0 {
		cfg.Workers = c.Workers
	}
	if c.Out != "" {
		cfg.Output.Dir = c.Out
	}
	if c.Report != "" {
		cfg.Output.Report = c.Report
	}
	if c.MetricsFile != "" {
		cfg.Metrics.File = c.MetricsFile
	}
	cfg.DeletedOnly = cfg.DeletedOnly || c.DeletedOnly
	cfg.Carve.Enabled = cfg.Carve.Enabled && !c.NoCarve
	cfg.Carve.Freelist = cfg.Carve.Freelist && !c.NoFreelist
	cfg.Carve.Unallocated = cfg.Carve.Unallocated && !c.NoUnallocated
	cfg.Logs.WAL = cfg.Logs.WAL && !c.NoWAL
	cfg.Logs.Journal = cfg.Logs.Journal && !c.NoJournal
}

func printSummary(res *forensic.Result, checks []forensic.Check) {
	fmt.Fprintf(stdout, "Run:      %s\n", res.RunID)
	fmt.Fprintf(stdout, "Database: %s (%d pages of %d bytes)\n", res.Path, res.Stats.Pages, res.Header.GetPageSize())
	if res.WAL != nil {
		fmt.Fprintf(stdout, "WAL:      %d frames, %d checkpoints\n", len(res.WAL.Frames), len(res.WAL.Checkpoints))
	}
	if res.Journal != nil {
		fmt.Fprintf(stdout, "Journal:  %d records\n", len(res.Journal.Frames))
	}
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "%-30s %-10s %8s %8s %8s %8s\n", "TABLE", "KIND", "REGULAR", "DELETED", "FREE", "UNALLOC")
	for _, t := range res.Tables {
		if len(t.Rows) == 0 {
			continue
		}
		name := t.Name
		if t.Dropped {
			name += " (dropped)"
		}
		fmt.Fprintf(stdout, "%-30s %-10s %8d %8d %8d %8d\n", name, t.Kind,
			t.Count(forensic.Regular), t.Count(forensic.DeletedInPage),
			t.Count(forensic.FreelistEntry), t.Count(forensic.UnallocatedSpace))
	}
	if len(res.Stats.Anomalies) > 0 {
		fmt.Fprintf(stdout, "\nAnomalies: %v\n", res.Stats.Anomalies)
	}
	if res.Stats.TaskFailures > 0 {
		fmt.Fprintf(stdout, "Task failures: %d\n", res.Stats.TaskFailures)
	}
	if len(checks) > 0 {
		fmt.Fprintln(stdout)
		printChecks(checks)
	}
}

func printChecks(checks []forensic.Check) int {
	failed := 0
	for _, c := range checks {
		status := "OK"
		if !c.OK() {
			status = "MISMATCH"
			failed++
		}
		fmt.Fprintf(stdout, "%-8s %-30s live=%d recovered=%d", status, c.Table, c.Live, c.Recovered)
		if c.Err != nil {
			fmt.Fprintf(stdout, " error=%v", c.Err)
		}
		fmt.Fprintln(stdout)
	}
	return failed
}

// HeaderCmd prints the database header as YAML.
type HeaderCmd struct {
	Path string `arg:"" help:"Database file" type:"existingfile"`
}

func (c *HeaderCmd) Run() error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	h, err := forensic.ReadHeader(c.Path)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(export.SummarizeHeader(h)); err != nil {
		return err
	}
	return enc.Close()
}

// WALCmd lists WAL frames.
type WALCmd struct {
	Path     string `arg:"" help:"Write-ahead log file" type:"existingfile"`
	PageSize int    `name:"page-size" help:"Page size to assume if the WAL header is damaged" default:"4096"`
}

func (c *WALCmd) Run() error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	info, err := forensic.InspectLog(c.Path, forensic.SourceWAL, c.PageSize)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "WAL: %s\n", info.Path)
	fmt.Fprintf(stdout, "Page size: %d, header checksum valid: %v\n", info.PageSize, info.HeaderValid)
	fmt.Fprintf(stdout, "\n%6s %8s %12s %6s %10s %10s %5s\n", "FRAME", "PAGE", "OFFSET", "COMMIT", "SALT1", "SALT2", "VALID")
	for _, f := range info.Frames {
		fmt.Fprintf(stdout, "%6d %8d %12d %6v %10d %10d %5v\n", f.Index, f.PageNumber, f.Offset, f.Commit, f.Salt1, f.Salt2, f.Valid)
	}
	fmt.Fprintf(stdout, "\nCheckpoints: %d\n", len(info.Checkpoints))
	for i, cp := range info.Checkpoints {
		fmt.Fprintf(stdout, "  %d: salt %d/%d, %d frames\n", i, cp.Salt1, cp.Salt2, len(cp.Frames))
	}
	return nil
}

// JournalCmd lists rollback journal records.
type JournalCmd struct {
	Path     string `arg:"" help:"Rollback journal file" type:"existingfile"`
	PageSize int    `name:"page-size" help:"Page size to assume if the journal header is damaged" default:"4096"`
}

func (c *JournalCmd) Run() error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	info, err := forensic.InspectLog(c.Path, forensic.SourceJournal, c.PageSize)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Journal: %s\n", info.Path)
	fmt.Fprintf(stdout, "Page size: %d, sector size: %d, initial pages: %d, nonce: %d\n",
		info.PageSize, info.SectorSize, info.InitialPages, info.Nonce)
	fmt.Fprintf(stdout, "\n%6s %8s %12s %5s\n", "RECORD", "PAGE", "OFFSET", "VALID")
	for _, f := range info.Frames {
		fmt.Fprintf(stdout, "%6d %8d %12d %5v\n", f.Index, f.PageNumber, f.Offset, f.Valid)
	}
	return nil
}

// VerifyCmd recovers a database and checks its live row counts.
type VerifyCmd struct {
	Path    string `arg:"" help:"Database file" type:"existingfile"`
	Workers int    `short:"w" help:"Worker pool size (0 uses the configured value)"`
}

func (c *VerifyCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Workers > 0 {
		cfg.Workers = c.Workers
	}
	opts := forensic.OptionsFromConfig(cfg)
	opts.Metrics = metrics.NewRegistry()
	opts.NoWAL, opts.NoJournal = true, true

	ctx := context.Background()
	res, err := forensic.Recover(ctx, c.Path, opts)
	if err != nil {
		return fmt.Errorf("recover %s: %w", c.Path, err)
	}
	checks, err := forensic.Verify(ctx, c.Path, res)
	if err != nil {
		return err
	}
	if failed := printChecks(checks); failed > 0 {
		return fmt.Errorf("%d of %d tables disagree with the SQLite engine", failed, len(checks))
	}
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := sqlite.GetInfo()
	fmt.Fprintf(stdout, "sqlforensic version %s\n", version)
	fmt.Fprintf(stdout, "SQLite driver: %s (%s, cgo=%v)\n", info.Package, info.DriverType, info.IsCGO)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name(filepath.Base(os.Args[0])),
		kong.Description("SQLite forensic record recovery"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
