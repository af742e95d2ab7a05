package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/KevinKickass/cangen/internal/compiler"
	"github.com/KevinKickass/cangen/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgFile string
	verbose bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cangen",
		Short: "CAN message set compiler",
		Long: `Compiles JSON/YAML message set descriptions into the C++ signal
tables, decoders and acceptance filters of the vehicle interface firmware.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default ./cangen.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newGenerateCmd(), newCheckCmd(), newDumpCmd(), newEnrichCmd())

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, compiler.ErrInvalid) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// session is what every subcommand needs: settings, a logger and the
// compiler built from both.
type session struct {
	cfg      *config.Config
	logger   *zap.Logger
	compiler *compiler.Compiler
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(cfgFile, config.Flags{
		"search_paths": cmd.Flags().Lookup("search-paths"),
		"output":       cmd.Flags().Lookup("output"),
	})
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	c, err := compiler.New(compiler.Options{
		SearchPaths: cfg.SearchPaths,
		Version:     cfg.Generator.Version,
	}, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug("Config loaded",
		zap.Strings("search_paths", cfg.SearchPaths),
		zap.String("output", cfg.Output))

	return &session{cfg: cfg, logger: logger, compiler: c}, nil
}

func (s *session) close() {
	_ = s.logger.Sync()
}

// newLogger builds the production config with a console encoder on stderr,
// stdout being reserved for generated output.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zc.OutputPaths = []string{"stderr"}
	zc.DisableStacktrace = true

	level, err := zap.ParseAtomicLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level.SetLevel(zap.DebugLevel)
	}
	zc.Level = level

	return zc.Build()
}

// inputFlags are shared by the commands that compile message sets.
type inputFlags struct {
	messageSets []string
	superSet    string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.messageSets, "message-sets", "m", nil, "message set documents to compile")
	cmd.Flags().StringVar(&f.superSet, "super-set", "", "superset document listing message_sets")
	cmd.Flags().StringSliceP("search-paths", "s", nil, "directories searched for documents, in order")
	cmd.MarkFlagsMutuallyExclusive("message-sets", "super-set")
	cmd.MarkFlagsOneRequired("message-sets", "super-set")
}

func (f *inputFlags) names(c *compiler.Compiler) ([]string, error) {
	if f.superSet != "" {
		return c.SupersetNames(f.superSet)
	}
	return f.messageSets, nil
}

// openOutput returns stdout for "-" and a created file otherwise.
func openOutput(cmd *cobra.Command, path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{cmd.OutOrStdout()}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
