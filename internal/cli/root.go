// Package cli implements the spbatch command line.
package cli

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/spbatch/internal/cliconfig"
	"github.com/bft-labs/spbatch/pkg/log"
)

const longHelp = `Plan and execute batched SharePoint REST and Microsoft Graph operations.

Operations are read from a YAML file, deduplicated, split into protocol
sub-batches and sent as one $batch request per sub-batch.

Configuration is read from $HOME/.spbatch/config.toml, SPBATCH_* environment
variables and flags, in increasing order of precedence.`

var exampleUsage = strings.TrimSpace(`
  spbatch plan ops.yaml
  spbatch plan ops.yaml --watch --disable-rest
  spbatch exec ops.yaml --site-url https://contoso.sharepoint.com/sites/dev --tenant-id <tenant> --client-id <app>
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// state is shared by all commands once PersistentPreRunE resolved the configuration.
type state struct {
	cfg     cliconfig.Config
	cfgPath string
	logger  zerolog.Logger
	out     io.Writer
	errOut  io.Writer
}

// NewRootCmd builds the spbatch command tree writing results to out and logs to errOut.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	s := &state{cfg: cliconfig.DefaultConfig(), out: out, errOut: errOut}
	s.logger = newLogger(errOut, zerolog.InfoLevel)

	root := &cobra.Command{
		Use:           "spbatch",
		Short:         "Batch SharePoint REST and Microsoft Graph requests",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.load(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	cfg := &s.cfg
	f := root.PersistentFlags()
	f.StringVar(&s.cfgPath, "config", "", "path to config file (default: $HOME/.spbatch/config.toml)")
	f.StringVar(&cfg.SiteURL, "site-url", cfg.SiteURL, "SharePoint site REST calls are relative to")
	f.StringVar(&cfg.GraphURL, "graph-url", cfg.GraphURL, "Microsoft Graph service root")
	f.StringVar(&cfg.TenantID, "tenant-id", cfg.TenantID, "Entra ID tenant")
	f.StringVar(&cfg.ClientID, "client-id", cfg.ClientID, "app registration client id")
	f.StringVar(&cfg.ClientSecret, "client-secret", cfg.ClientSecret, "app registration secret (prefer SPBATCH_CLIENT_SECRET)")
	f.StringVar(&cfg.AuthorityURL, "authority-url", cfg.AuthorityURL, "identity platform authority")
	if err := f.MarkHidden("authority-url"); err != nil {
		s.logger.Info().Err(err).Msg("failed to hide authority-url flag")
	}

	f.BoolVar(&cfg.PreferGraph, "prefer-graph", cfg.PreferGraph, "unify mixed batches onto Graph when possible")
	f.BoolVar(&cfg.DisableREST, "disable-rest", cfg.DisableREST, "never send SharePoint REST batches")
	f.BoolVar(&cfg.DisableGraph, "disable-graph", cfg.DisableGraph, "never send Graph batches")

	f.IntVar(&cfg.MaxConcurrency, "max-concurrency", cfg.MaxConcurrency, "sub-batches in flight per batch")
	f.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")
	f.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "retries of throttled batch requests")
	f.DurationVar(&cfg.RetryInitial, "retry-initial", cfg.RetryInitial, "initial retry backoff")
	f.DurationVar(&cfg.RetryMax, "retry-max", cfg.RetryMax, "maximum retry backoff")

	f.StringVar(&cfg.MetadataFile, "metadata-file", cfg.MetadataFile, "extra entity metadata tables (YAML)")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	root.AddCommand(planCmd(s))
	root.AddCommand(execCmd(s))
	return root
}

// load applies the config file, then the environment, then validates.
// Flags set on the command line win over both.
func (s *state) load(cmd *cobra.Command) error {
	cfgFile := s.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&s.cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(&s.cfg, changed); err != nil {
		return err
	}

	if err := s.cfg.Validate(); err != nil {
		return err
	}

	lvl, err := log.ParseLevel(s.cfg.LogLevel)
	if err != nil {
		return err
	}
	s.logger = newLogger(s.errOut, lvl)

	logCfg := s.cfg
	if logCfg.ClientSecret != "" {
		logCfg.ClientSecret = "*****"
	}
	s.logger.Debug().Interface("config", logCfg).Msg("configuration")
	return nil
}

func newLogger(w io.Writer, lvl zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(lvl).With().Timestamp().Logger()
}
