package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kartikbazzad/bunbase/buntable"
	"github.com/kartikbazzad/bunbase/buntable/backend"
	"github.com/kartikbazzad/bunbase/buntable/backend/memory"
	"github.com/kartikbazzad/bunbase/buntable/backend/sqlite"
	"github.com/kartikbazzad/bunbase/buntable/internal/config"
	"github.com/kartikbazzad/bunbase/buntable/internal/logger"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

var (
	cfgFile string
	cfg     = config.DefaultConfig()
)

// --- Cobra root and top-level commands ---

var rootCmd = &cobra.Command{
	Use:           "buntable",
	Short:         "Embedded table engine CLI",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// flags win over file and environment
		flags := *cfg
		if err := config.Load(config.EnvPrefix, cfgFile, cfg); err != nil {
			return err
		}
		cmd.Flags().Visit(func(f *pflag.Flag) {
			switch f.Name {
			case "backend":
				cfg.Backend = flags.Backend
			case "path":
				cfg.Path = flags.Path
			case "schema":
				cfg.Schema = flags.Schema
			case "persistent":
				cfg.Persistent = flags.Persistent
			}
		})
		logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
		return cfg.Validate()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.StringVar(&cfg.Schema, "schema", cfg.Schema, "model declaration file (JSON)")
	pf.StringVar(&cfg.Backend, "backend", cfg.Backend, "storage backend: memory or sqlite")
	pf.StringVar(&cfg.Path, "path", cfg.Path, "sqlite database file")
	pf.BoolVar(&cfg.Persistent, "persistent", cfg.Persistent, "keep sqlite data in --path instead of memory")

	rootCmd.AddCommand(importCmd(), exportCmd(), queryCmd(), shellCmd())
}

// openDB builds the database described by cfg: backend, declared tables,
// connect.
func openDB(ctx context.Context, c *config.Config) (*buntable.DB, error) {
	if c.Schema == "" {
		return nil, fmt.Errorf("no model declarations: set --schema or BUNTABLE_SCHEMA")
	}
	f, err := os.Open(c.Schema)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	decls, err := schema.LoadDeclarations(f)
	if err != nil {
		return nil, err
	}

	var be backend.Backend
	switch strings.ToLower(c.Backend) {
	case sqlite.Name:
		be = sqlite.New(c.Path, c.Persistent)
	default:
		be = memory.New()
	}

	db, err := buntable.New(
		buntable.WithBackend(be),
		buntable.WithWorkers(c.Workers),
		buntable.WithExprCacheSize(c.ExprCacheSize),
	)
	if err != nil {
		return nil, err
	}
	for _, d := range decls.Tables {
		if err := db.Table(d.Name).Model(d.Model...); err != nil {
			db.Close()
			return nil, err
		}
	}
	if err := db.Connect(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
