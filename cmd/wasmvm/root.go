package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasmvm/engine"
	"github.com/wippyai/wasmvm/interp"
	"github.com/wippyai/wasmvm/validator"
)

// rootCommand keeps the state shared by all subcommands.
type rootCommand struct {
	cmd        *cobra.Command
	logger     *zap.Logger
	stdout     io.Writer
	stderr     io.Writer
	config     fileConfig
	logLevel   string
	configPath string
}

func newRootCommand(stdout, stderr io.Writer) *rootCommand {
	c := &rootCommand{
		logger: zap.NewNop(),
		stdout: stdout,
		stderr: stderr,
		config: defaultConfig(),
	}
	c.cmd = &cobra.Command{
		Use:               "wasmvm",
		Short:             "a validating WebAssembly 1.0 interpreter",
		SilenceUsage:      true,
		PersistentPreRunE: c.persistentPreRunE,
	}
	c.cmd.SetOut(stdout)
	c.cmd.SetErr(stderr)
	c.cmd.PersistentFlags().AddFlagSet(c.persistentFlagSet())

	c.cmd.AddCommand(
		getCmdRun(c),
		getCmdValidate(c),
		getCmdInspect(c),
	)
	return c
}

func (c *rootCommand) persistentFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.StringVar(&c.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	flags.StringVarP(&c.configPath, "config", "c", "", "YAML file with runtime limits")
	return flags
}

func (c *rootCommand) persistentPreRunE(cmd *cobra.Command, args []string) error {
	level, err := zapcore.ParseLevel(c.logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	c.logger = newLogger(c.stderr, level)
	validator.SetLogger(c.logger.Named("validator"))
	interp.SetLogger(c.logger.Named("interp"))
	engine.SetLogger(c.logger.Named("engine"))

	if c.configPath != "" {
		cfg, err := loadConfig(c.configPath)
		if err != nil {
			return err
		}
		c.config = cfg
		c.logger.Debug("loaded config", zap.String("path", c.configPath), zap.Any("config", cfg))
	}
	return nil
}

func newLogger(w io.Writer, level zapcore.Level) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	return zap.New(core)
}
