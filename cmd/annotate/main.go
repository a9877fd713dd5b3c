// Command annotate classifies the columns of one or more tables and prints
// the resulting annotations as JSON.
//
//	annotate -path data/rain.csv -name "Rainfall" -description "Daily gauge readings"
//	annotate -meta datasets.txt
//
// A metadata file holds blocks separated by blank lines:
//
//	[rain.csv]
//	Name: Rainfall
//	Description: Daily gauge readings
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/colannotate/internal/config"
	"github.com/JonMunkholm/colannotate/internal/core"
	"github.com/JonMunkholm/colannotate/internal/dataset"
	"github.com/JonMunkholm/colannotate/internal/human"
	"github.com/JonMunkholm/colannotate/internal/logging"
	"github.com/JonMunkholm/colannotate/internal/oracle"
	"github.com/JonMunkholm/colannotate/internal/table"
)

// cliOptions are the command line flags.
type cliOptions struct {
	Path        string
	Name        string
	Description string
	Meta        string
	Rows        int
}

func parseFlags(args []string, stderr io.Writer) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("annotate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.Path, "path", "", "table to annotate (csv, tsv, arrow, sqlite#table, postgres://...#relation)")
	fs.StringVar(&opts.Name, "name", "", "dataset name (default: file name)")
	fs.StringVar(&opts.Description, "description", "", "dataset description")
	fs.StringVar(&opts.Meta, "meta", "", "metadata file listing several datasets")
	fs.IntVar(&opts.Rows, "rows", 0, "maximum rows to load per table (default: ANNOTATE_MAX_ROWS)")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if (opts.Path == "") == (opts.Meta == "") {
		return opts, errors.New("exactly one of -path or -meta is required")
	}
	return opts, nil
}

func main() {
	// A .env file is optional; real environment variables win.
	_ = godotenv.Load()

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// stdout carries only the annotation JSON.
	logging.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chat := oracle.NewChat(oracle.ChatConfig{
		BaseURL: cfg.Oracle.URL,
		APIKey:  cfg.Oracle.APIKey,
		Model:   cfg.Oracle.Model,
		Timeout: cfg.Oracle.Timeout,
	})

	var operator human.Prompter = human.NewSerialized(human.NewConsole(os.Stdin, os.Stderr))
	if cfg.Annotate.Unattended {
		operator = human.Decline{}
	}

	if err := run(ctx, cfg, opts, chat, operator, os.Stdout); err != nil {
		slog.Error("annotation failed", "error", err)
		fmt.Fprintln(os.Stderr, core.FormatUserError(err))
		os.Exit(1)
	}
}

// run annotates every requested dataset in order and writes one indented
// JSON report per dataset. A fatal error stops the batch after the partial
// report of the failing dataset has been written.
func run(ctx context.Context, cfg *config.Config, opts cliOptions, o oracle.Oracle, h human.Prompter, stdout io.Writer) error {
	metas, err := datasets(opts)
	if err != nil {
		return err
	}

	rows := opts.Rows
	if rows <= 0 {
		rows = cfg.Annotate.MaxRows
	}

	engine := core.NewEngine(o, h, core.Options{
		SampleRows:    cfg.Annotate.SampleRows,
		OracleTimeout: cfg.Oracle.Timeout,
	})

	for _, m := range metas {
		logger := logging.WithFields(ctx, "dataset", m.Name, "path", m.Path)

		m, err = dataset.Prepare(ctx, o, cfg.Oracle.Timeout, m, cfg.Annotate.ShortenDescriptionOver)
		if err != nil {
			return err
		}

		tbl, err := table.Load(ctx, m.Path, rows)
		if err != nil {
			return fmt.Errorf("load %s: %w", m.Path, err)
		}
		logger.Info("table loaded", "columns", len(tbl.Columns()), "rows", tbl.Rows())

		report, annotateErr := engine.Annotate(ctx, tbl, m.Dataset())
		if err := writeReport(stdout, report); err != nil {
			return err
		}
		if annotateErr != nil {
			return annotateErr
		}
		logger.Info("dataset annotated",
			"geo", len(report.Schema.Geo),
			"date", len(report.Schema.Date),
			"feature", len(report.Schema.Feature),
			"dropped", len(report.Dropped),
			"issues", len(report.Issues),
		)
	}
	return nil
}

// datasets resolves the flags into the list of datasets to annotate.
func datasets(opts cliOptions) ([]dataset.Meta, error) {
	if opts.Meta != "" {
		metas, err := dataset.LoadMetaFile(opts.Meta, filepath.Dir(opts.Meta))
		if err != nil {
			return nil, err
		}
		if len(metas) == 0 {
			return nil, fmt.Errorf("%s lists no datasets", opts.Meta)
		}
		return metas, nil
	}

	name := opts.Name
	if name == "" {
		path, _, _ := strings.Cut(opts.Path, "#")
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return []dataset.Meta{{Path: opts.Path, Name: name, Description: opts.Description}}, nil
}

func writeReport(w io.Writer, report core.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
