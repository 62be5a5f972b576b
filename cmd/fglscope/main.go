package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jward/fglscope"
	"github.com/jward/fglscope/internal/config"
	"github.com/spf13/cobra"
)

var flagFormat string

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "fglscope",
	Short:         "Import graph and embedded SQL analysis for Genero 4GL projects",
	Long:          "fglscope resolves IMPORT FGL and include dependencies across 4GL projects, detects circular imports, extracts embedded SQL and records the results in a SQLite index.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	config.InitFlags(rootCmd)
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(watchCmd)
}

var flagForce bool

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Analyze every 4GL source under a directory",
	Long:  "Parses .4gl and .inc files, resolves their imports and includes, flags circular imports and writes the results to the SQLite index.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "delete the index and rebuild it from scratch")
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	engine, cfg, err := openEngine(cmd, targetDir, flagForce)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.IndexDirectory(commandContext(cmd), targetDir); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	stats, err := engine.Query().Stats()
	if err != nil {
		return err
	}
	printSummary(os.Stderr, targetDir, cfg.DB, stats, time.Since(start))
	return nil
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir...]",
	Short: "Index directories and keep the index current as files change",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	dirs := args
	if len(dirs) == 0 {
		dirs = []string{"."}
	}
	abs := make([]string, 0, len(dirs))
	for _, d := range dirs {
		dir, err := resolveTargetDir([]string{d})
		if err != nil {
			return err
		}
		abs = append(abs, dir)
	}

	engine, _, err := openEngine(cmd, abs[0], false)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, dir := range abs {
		if err := engine.IndexDirectory(ctx, dir); err != nil {
			return fmt.Errorf("indexing %s: %w", dir, err)
		}
	}
	return engine.Watch(ctx, abs...)
}

// openEngine loads configuration for the project containing dir and builds
// an Engine backed by the configured index. With force the index file is
// removed first.
func openEngine(cmd *cobra.Command, dir string, force bool) (*fglscope.Engine, *config.Config, error) {
	repoRoot := findRepoRoot(dir)
	cfg, err := config.Load(cmd, repoRoot)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	dbDir := filepath.Dir(cfg.DB)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", dbDir, err)
	}
	if force {
		if err := os.Remove(cfg.DB); err != nil && !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("removing database for --force: %w", err)
		}
		logger.Info("cleared database", "path", cfg.DB)
	}
	if cfg.File != "" {
		logger.Debug("loaded config", "file", cfg.File)
	}

	engine, err := fglscope.New(
		fglscope.WithDatabase(cfg.DB),
		fglscope.WithSearchPaths(cfg.SearchPaths...),
		fglscope.WithLanguageVersion(cfg.LanguageVersion),
		fglscope.WithResolverScript(cfg.ResolverScript),
		fglscope.WithWorkers(cfg.Workers),
		fglscope.WithWaitTimeout(cfg.WaitTimeout),
		fglscope.WithStuckPendingWarning(cfg.StuckPendingWarning),
		fglscope.WithPlaceholder(cfg.SQL.Placeholder),
		fglscope.WithSQLCacheSize(cfg.SQL.CacheSize),
		fglscope.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating engine: %w", err)
	}
	return engine, cfg, nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

// resolveTargetDir returns the absolute path of the directory to index.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// commandContext is cmd's context, or Background when run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
