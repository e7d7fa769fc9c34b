// cmd/relayscraper/cli.go
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/valpere/relay-scraper/internal/config"
	errs "github.com/valpere/relay-scraper/internal/errors"
)

const defaultConfigFile = "seeds.yml"

var (
	flagConfig    string
	flagEnvFile   string
	flagLogLevel  string
	flagVerbose   bool
	flagCountries []string
	flagOut       string
	flagJSON      string
	flagNoCache   bool
	flagTemplate  string
)

// NewRootCmd creates the root command. Flag variables are reset on every
// call, so the command tree can be built more than once per process.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relayscraper",
		Short: "Collect Relay For Life events for AU, UK, US and CA",
		Long: `Relay For Life event scraper.
Discovers event pages for each configured country, extracts the event name,
date and contact emails, and writes one merged, deduplicated table.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%w: unknown command %q", errs.ErrUsage, args[0])
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(flagEnvFile)
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errs.ErrUsage, err)
	})

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", defaultConfigFile, "Configuration file")
	pf.StringVar(&flagEnvFile, "env-file", ".env", "Optional dotenv file loaded before the configuration")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn or error (overrides log_level)")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Show technical error details")

	cmd.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newTemplateCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scrape the configured countries and write the outputs",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), runOptions{
				ConfigFile:     flagConfig,
				ConfigExplicit: cmd.Flags().Changed("config"),
				LogLevel:       flagLogLevel,
				Countries:      flagCountries,
				CSV:            flagOut,
				JSON:           flagJSON,
				NoCache:        flagNoCache,
			})
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&flagCountries, "countries", nil, "Comma-separated country codes to scrape (default: all configured)")
	f.StringVarP(&flagOut, "out", "o", "", "CSV output path (overrides output.csv)")
	f.StringVar(&flagJSON, "json", "", "Also write JSON to this path")
	f.BoolVar(&flagNoCache, "no-cache", false, "Bypass the HTTP cache for this run")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a configuration file",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := flagConfig
			if len(args) == 1 {
				file = args[0]
			}
			return validateConfig(cmd.OutOrStdout(), file)
		},
	}
}

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Print a complete default configuration",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GenerateTemplate()
			if flagTemplate != "" {
				if err := config.SaveToFile(cfg, flagTemplate); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Configuration template written to %s\n", flagTemplate)
				return nil
			}
			return config.SaveToWriter(cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&flagTemplate, "output", "o", "", "Write the template to a file instead of stdout")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  usageArgs(cobra.NoArgs),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relayscraper %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Build time: %s\n", buildTime)
			fmt.Fprintf(cmd.OutOrStdout(), "Git commit: %s\n", gitCommit)
		},
	}
}

// usageArgs marks positional argument errors as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrUsage, err)
		}
		return nil
	}
}

// loadEnvFile loads KEY=VALUE pairs into the environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// validateConfig loads file and reports the enabled countries and any
// warnings.
func validateConfig(w io.Writer, file string) error {
	cfg, err := config.LoadFromFile(file)
	if err != nil {
		return err
	}

	result := cfg.ValidateWithDetails()
	fmt.Fprintf(w, "Configuration %s is valid\n", file)
	if enabled := cfg.Enabled(); len(enabled) > 0 {
		fmt.Fprintf(w, "Countries: %s\n", strings.Join(enabled, ", "))
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
	return nil
}
