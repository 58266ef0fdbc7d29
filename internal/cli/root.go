// Package cli implements the nitrix command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ThomasJRyan/Nitrix/internal/config"
	"github.com/ThomasJRyan/Nitrix/internal/logging"
)

const AppName = "nitrix"

// options are the persistent flags shared by every command.
type options struct {
	configFile string
	homeserver string
	username   string
	logLevel   string
	theme      string
	remember   bool

	cfg    *config.Config
	loader *config.Loader
}

// Execute runs the root command.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "Terminal Matrix client",
		Long:          "nitrix is a terminal client for Matrix chat rooms.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context(), opts)
		},
	}
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/nitrix/config.yaml)")
	flags.StringVar(&opts.homeserver, "homeserver", "", "homeserver URL, e.g. https://matrix.org")
	flags.StringVar(&opts.username, "username", "", "account username")
	flags.StringVar(&opts.logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	flags.StringVar(&opts.theme, "theme", "", "theme: default|high-contrast")
	cmd.Flags().BoolVar(&opts.remember, "remember", false, "save credentials after a successful login")

	cmd.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newVersionCmd(version),
	)
	return cmd
}

// load reads configuration with flag overrides.
func (o *options) load(cmd *cobra.Command) error {
	o.loader = config.NewLoader()
	if o.configFile != "" {
		o.loader.SetConfigFile(o.configFile)
	}

	flags := cmd.Flags()
	if flags.Changed("homeserver") {
		o.loader.Set("account.homeserver", o.homeserver)
	}
	if flags.Changed("username") {
		o.loader.Set("account.username", o.username)
	}
	if flags.Changed("log-level") {
		o.loader.Set("logging.level", o.logLevel)
	}
	if flags.Changed("theme") {
		o.loader.Set("tui.theme", o.theme)
	}

	cfg, err := o.loader.Load()
	if err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

// configPath is where credentials are saved: the file that was loaded, the
// --config path, or the default.
func (o *options) configPath() string {
	if o.loader != nil {
		if used := o.loader.ConfigFileUsed(); used != "" {
			return used
		}
	}
	if o.configFile != "" {
		return o.configFile
	}
	return config.DefaultConfigFile()
}

// initLogging starts file logging for the interactive client.
func (o *options) initLogging() (func(), error) {
	closer, err := logging.Init(logging.Config{
		Level:  o.cfg.Logging.Level,
		Format: o.cfg.Logging.Format,
		File:   o.cfg.Logging.File,
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return func() { _ = closer.Close() }, nil
}
