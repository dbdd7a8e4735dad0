package main

import (
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mastercactapus/zcal/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	logLevel   string
	port       string
	spjsURL    string
	sim        bool
}

var (
	flags globalFlags
	cfg   config.Config
)

func setupLogger(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrap(err, "failed to parse log level")
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if !color.NoColor {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}
	return nil
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zcal",
		Short: "zcal measures tool Z offsets against a fixed trigger switch",
		Long: `zcal measures the height of every tool head on a grbl controlled
toolchanger against a fixed Z switch and reports each tool's offset from a
reference tool.`,
		SilenceUsage: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if c.Flags().Changed("log-level") {
				cfg.LogLevel = flags.logLevel
			}
			if flags.port != "" {
				cfg.Port = flags.port
			}
			if flags.spjsURL != "" {
				cfg.SPJS = flags.spjsURL
			}
			return setupLogger(cfg.LogLevel)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "zcal.json", "path to config file")
	pf.StringVar(&flags.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&flags.port, "port", "", "serial port path, or port name when using SPJS")
	pf.StringVar(&flags.spjsURL, "spjs", "", "websocket URL of a serial-port-json-server")
	pf.BoolVar(&flags.sim, "sim", false, "use a simulated controller")

	cmd.AddCommand(
		NewServeCommand(),
		NewRunCommand(),
		NewStatusCommand(),
		NewHistoryCommand(),
	)

	return cmd
}
