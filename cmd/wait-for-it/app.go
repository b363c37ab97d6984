package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"unicode"

	"github.com/CZERTAINLY/wait-for-it/internal/guard"
	"github.com/CZERTAINLY/wait-for-it/internal/log"
	"github.com/CZERTAINLY/wait-for-it/internal/model"
	"github.com/CZERTAINLY/wait-for-it/internal/probe"
	"github.com/CZERTAINLY/wait-for-it/internal/report"
	"github.com/CZERTAINLY/wait-for-it/internal/runner"
	"github.com/CZERTAINLY/wait-for-it/internal/wait"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	configEnv  = "WAITFORITCONFIG"
	envPrefix  = "WAITFORIT"
	configName = "wait-for-it.yaml"
)

// app holds the state of a single invocation
type app struct {
	stdout io.Writer
	stderr io.Writer
	exit   func(int)

	root   *cobra.Command
	v      *viper.Viper
	config model.Config // effective configuration, after flags and env
	code   int          // exit code of the trailing command

	flagConfigFilePath string
	flagPrintConfig    bool
	flagNoTags         bool
}

func newApp(stdout, stderr io.Writer, exit func(int)) *app {
	a := &app{
		stdout: stdout,
		stderr: stderr,
		exit:   exit,
		v:      viper.New(),
	}

	root := &cobra.Command{
		Use:     "wait-for-it [flags] [--] [command [args...]]",
		Short:   "Wait for service(s) to be available before executing a command.",
		Version: version(),
		Args:    cobra.ArbitraryArgs,
		// never print messages, errors are logged by Execute
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
		RunE:              a.run,
	}
	root.SetVersionTemplate("Version {{.Version}}\n")
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.Flags()
	// everything after the first positional argument belongs to the command
	flags.SetInterspersed(false)
	flags.StringArrayP("service", "s", nil, "Services to test, in the format host:port")
	flags.IntP("timeout", "t", model.DefaultTimeout, "Timeout in seconds, 0 for no timeout")
	flags.BoolP("parallel", "p", false, "Wait for all services in parallel")
	flags.BoolP("quiet", "q", false, "Do not output any status messages")
	flags.Bool("verbose", false, "Verbose logging to stderr")
	flags.BoolVar(&a.flagNoTags, "no-tags", false, "Do not prefix status messages with [+], [-] and [*]")
	flags.StringVar(&a.flagConfigFilePath, "config", "", "Config file to load - default is "+configName+" in current directory or in "+userConfigPath())
	flags.BoolVar(&a.flagPrintConfig, "print-config", false, "Print the effective configuration and exit")

	a.root = root
	return a
}

// Execute runs the command line and returns the process exit code.
func (a *app) Execute(ctx context.Context, args []string) int {
	a.root.SetArgs(args)
	if err := a.root.ExecuteContext(ctx); err != nil {
		slog.ErrorContext(ctx, "wait-for-it failed", "error", err)
		return a.exitCode(err)
	}
	return a.code
}

func (a *app) exitCode(err error) int {
	if errors.Is(err, model.ErrCommand) {
		return a.code
	}
	return 1
}

func (a *app) init(cmd *cobra.Command, _ []string) error {
	// preliminary logger, so config errors are visible
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}
	slog.SetDefault(log.New(a.stderr, verbose))

	fileConfig, err := a.loadConfig()
	if err != nil {
		return err
	}

	v := a.v
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("service", fileConfig.Services)
	v.SetDefault("timeout", fileConfig.Timeout)
	v.SetDefault("parallel", fileConfig.Parallel)
	v.SetDefault("quiet", fileConfig.Quiet)
	v.SetDefault("verbose", fileConfig.Verbose)
	v.SetDefault("tags", fileConfig.Tags)

	for _, name := range []string{"timeout", "parallel", "quiet", "verbose"} {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}

	services, err := a.services(cmd.Flags())
	if err != nil {
		return err
	}

	a.config = model.Config{
		Version:  fileConfig.Version,
		Services: services,
	}
	if a.config.Timeout, err = a.intValue("timeout"); err != nil {
		return err
	}
	for key, dst := range map[string]*bool{
		"parallel": &a.config.Parallel,
		"quiet":    &a.config.Quiet,
		"verbose":  &a.config.Verbose,
		"tags":     &a.config.Tags,
	} {
		if *dst, err = a.boolValue(key); err != nil {
			return err
		}
	}
	a.config.Tags = a.config.Tags && !a.flagNoTags
	if a.config.Timeout < 0 {
		return fmt.Errorf("%w: timeout must be >= 0, got %d", model.ErrConfig, a.config.Timeout)
	}

	slog.SetDefault(log.New(a.stderr, a.config.Verbose))
	slog.Debug("wait-for-it config", "config", a.config)
	return nil
}

// services returns the --service flags, or WAITFORIT_SERVICE, or the config
// file list, in this order. The environment variable is split on commas and
// whitespace.
func (a *app) services(flags *pflag.FlagSet) ([]string, error) {
	if flags.Changed("service") {
		return flags.GetStringArray("service")
	}
	switch value := a.v.Get("service").(type) {
	case nil:
		return nil, nil
	case string:
		return strings.FieldsFunc(value, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		}), nil
	default:
		services, err := cast.ToStringSliceE(value)
		if err != nil {
			return nil, fmt.Errorf("%w: service: %w", model.ErrConfig, err)
		}
		return services, nil
	}
}

// intValue and boolValue reject values viper would silently turn into zero
func (a *app) intValue(key string) (int, error) {
	n, err := cast.ToIntE(a.v.Get(key))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", model.ErrConfig, key, err)
	}
	return n, nil
}

func (a *app) boolValue(key string) (bool, error) {
	b, err := cast.ToBoolE(a.v.Get(key))
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", model.ErrConfig, key, err)
	}
	return b, nil
}

func (a *app) loadConfig() (model.Config, error) {
	configPath := a.configPath()
	if configPath == "" {
		return model.DefaultConfig(), nil
	}

	f, err := os.Open(configPath)
	if err != nil {
		return model.Config{}, fmt.Errorf("%w: opening config file: %w", model.ErrConfig, err)
	}
	defer func() {
		_ = f.Close()
	}()

	cfg, err := model.LoadConfig(f)
	if err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error("invalid config", d.Attr("detail"))
		}
		return model.Config{}, fmt.Errorf("parsing config %s: %w", configPath, err)
	}
	slog.Debug("config loaded", "configPath", configPath)
	return cfg, nil
}

func (a *app) configPath() string {
	if envConfig := os.Getenv(configEnv); envConfig != "" {
		return envConfig
	}
	if a.flagConfigFilePath != "" {
		return a.flagConfigFilePath
	}
	for _, d := range []string{".", userConfigPath()} {
		path := filepath.Join(d, configName)
		if exists(path) {
			return path
		}
	}
	return ""
}

func (a *app) run(cmd *cobra.Command, args []string) error {
	if a.flagPrintConfig {
		enc := yaml.NewEncoder(a.stdout)
		defer func() {
			_ = enc.Close()
		}()
		return enc.Encode(a.config)
	}

	cfg := a.config
	ctx := cmd.Context()
	attrs := slog.Group("wait-for-it",
		slog.String("run_id", uuid.NewString()),
		slog.Int("pid", os.Getpid()),
		slog.String("mode", cfg.Mode().String()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	var out = a.stdout
	if cfg.Quiet {
		out = io.Discard
	}
	reporter := report.New(out).WithTags(cfg.Tags)
	waiter := wait.New(
		probe.New(),
		reporter,
		guard.New().WithExit(a.exit),
		cfg.Timeout,
	)

	if err := waiter.Run(ctx, cfg.Services, cfg.Mode()); err != nil {
		return err
	}

	if len(args) == 0 {
		return nil
	}

	command := runner.FromArgv(args)
	command.Stdout = a.stdout
	command.Stderr = a.stderr
	res := runner.New().Run(ctx, command)
	a.code = res.ExitCode
	return res.Err
}

func version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "(devel)"
	}
	return info.Main.Version
}

func userConfigPath() string {
	d, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(d, "wait-for-it")
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
