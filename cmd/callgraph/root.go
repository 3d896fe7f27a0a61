package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-callgraph/internal/config"
	"go-callgraph/internal/driver"
	"go-callgraph/internal/export"
	"go-callgraph/internal/graph"
)

// Version is set by build flags.
var Version = "dev"

type options struct {
	cfgFile string
	verbose bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options
	var logger *logrus.Logger

	cmd := &cobra.Command{
		Use:   "callgraph [flags] [packages...]",
		Short: "Build a static/dynamic call graph of a Go module",
		Long: `callgraph type-checks every package of a Go module and records, per package,
its functions, interface method declarations, the methods implementing them,
and every call edge classified as static or dynamic.

Reports go to stdout. Optionally they are also written to Neo4j and SQLite.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logrus.New()
			logger.SetOutput(stderr)
			if opts.verbose {
				logger.SetLevel(logrus.DebugLevel)
			} else {
				logger.SetLevel(logrus.InfoLevel)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.New(opts.cfgFile)
			if err != nil {
				return err
			}
			if err := bindFlags(cmd, v); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Patterns = args
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, stdout, logger)
		},
	}

	f := cmd.Flags()
	f.String("dir", ".", "module root directory")
	f.Bool("tests", false, "include test packages")
	f.String("format", string(graph.FormatText), "report format: text, json or yaml")
	f.Int("jobs", 0, "packages analyzed in parallel (0 = GOMAXPROCS)")
	f.Duration("timeout", driver.DefaultTimeout, "wall-clock budget per package")
	f.String("neo4j-uri", "", "Neo4j bolt URI, e.g. bolt://localhost:7687 (enables the Neo4j sink)")
	f.String("neo4j-user", "neo4j", "Neo4j username")
	f.String("neo4j-pass", "", "Neo4j password")
	f.Bool("neo4j-clean", false, "remove existing call graph data from Neo4j before loading")
	f.String("sqlite", "", "SQLite database path (enables the SQLite sink)")

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default: .callgraph.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	return cmd
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"dir":         "dir",
	"tests":       "tests",
	"format":      "format",
	"jobs":        "jobs",
	"timeout":     "timeout",
	"neo4j-uri":   "neo4j.uri",
	"neo4j-user":  "neo4j.user",
	"neo4j-pass":  "neo4j.password",
	"neo4j-clean": "neo4j.clean",
	"sqlite":      "sqlite.path",
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, out io.Writer, log *logrus.Logger) error {
	d := driver.New(cfg.Driver(), log)
	units, err := d.Load(ctx)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		log.Warn("No packages to analyze")
	}

	reports, err := d.Run(ctx, units)
	if err != nil {
		return err
	}
	if err := writeReports(out, reports, cfg.OutputFormat()); err != nil {
		return fmt.Errorf("write reports: %w", err)
	}

	sink, err := openSinks(ctx, cfg, log)
	if err != nil {
		return err
	}
	if sink == nil {
		return nil
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.WithError(err).Warn("Failed to close sink")
		}
	}()

	runID := export.NewRunID()
	log.WithField("run", runID).Info("Exporting reports")
	return sink.Write(ctx, runID, reports)
}

func writeReports(out io.Writer, reports []driver.UnitReport, format graph.Format) error {
	for _, ur := range reports {
		if format == graph.FormatYAML {
			if _, err := fmt.Fprintln(out, "---"); err != nil {
				return err
			}
		}
		if err := ur.Report.Encode(out, ur.Unit, format); err != nil {
			return err
		}
	}
	return nil
}

// openSinks opens every configured sink. It returns nil when none is.
func openSinks(ctx context.Context, cfg *config.Config, log *logrus.Logger) (export.Sink, error) {
	var sinks export.Multi
	if neo, ok := cfg.Neo4jSink(); ok {
		s, err := export.NewNeo4jSink(ctx, neo, log)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.SQLite.Path != "" {
		s, err := export.NewSQLiteSink(cfg.SQLite.Path, log)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	return sinks, nil
}
