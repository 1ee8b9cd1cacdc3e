package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Capitalisk/ldem/internal/app"
)

// WorkerCommand is the first argument selecting worker mode.
const WorkerCommand = "worker"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// WorkerConfig holds the settings of a worker process.
type WorkerConfig struct {
	Alias      string
	IPCTimeout time.Duration
	AckTimeout time.Duration
	LogFormat  string
	LogLevel   string
}

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// Parse processes the master's command-line arguments. It returns a
// populated Config, a boolean indicating if the program should exit
// cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("ldem", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
LDEM - runs each module of an application in its own process and wires
them together.

Usage:
  ldem [options] [CONFIG_PATH...]
  ldem worker --alias ALIAS [options]

Arguments:
  CONFIG_PATH
    Path to a .hcl or .toml file, or a directory containing them.

Options:
`)
		flagSet.PrintDefaults()
	}

	var configPaths stringList
	flagSet.Var(&configPaths, "config", "Path to a config file or directory. Repeatable.")
	flagSet.Var(&configPaths, "c", "Path to a config file or directory (shorthand).")
	statusPortFlag := flagSet.Int("status-port", 0, "Port for the HTTP status server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	updatesDirFlag := flagSet.String("updates-dir", "", "Directory watched for config update patches. Overrides the config file.")
	inProcessFlag := flagSet.Bool("in-process", false, "Host every module inside the master process.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	paths := append([]string(nil), configPaths...)
	paths = append(paths, flagSet.Args()...)
	slog.Debug("Config paths determined.", "paths", paths)

	if len(paths) == 0 {
		slog.Debug("No config path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat, logLevel, err := validateLogging(*logFormatFlag, *logLevelFlag)
	if err != nil {
		return nil, false, err
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ConfigPaths: paths,
		StatusPort:  *statusPortFlag,
		LogFormat:   logFormat,
		LogLevel:    logLevel,
		UpdatesDir:  *updatesDirFlag,
		InProcess:   *inProcessFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}

// ParseWorker processes the arguments following the worker command.
func ParseWorker(args []string, output io.Writer) (*WorkerConfig, error) {
	flagSet := flag.NewFlagSet("ldem worker", flag.ContinueOnError)
	flagSet.SetOutput(output)

	alias := flagSet.String("alias", "", "Alias of the module hosted by this worker.")
	ipcTimeout := flagSet.Duration("ipc-timeout", 0, "Control-plane timeout. 0 uses the application setting.")
	ackTimeout := flagSet.Duration("ack-timeout", 0, "Action call timeout. 0 uses the application setting.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	if *alias == "" {
		return nil, &ExitError{Code: 2, Message: "worker requires --alias"}
	}
	if *ipcTimeout < 0 || *ackTimeout < 0 {
		return nil, &ExitError{Code: 2, Message: "timeouts must not be negative"}
	}
	logFormat, logLevel, err := validateLogging(*logFormatFlag, *logLevelFlag)
	if err != nil {
		return nil, err
	}

	return &WorkerConfig{
		Alias:      *alias,
		IPCTimeout: *ipcTimeout,
		AckTimeout: *ackTimeout,
		LogFormat:  logFormat,
		LogLevel:   logLevel,
	}, nil
}

func validateLogging(format, level string) (string, string, error) {
	logFormat := strings.ToLower(format)
	if logFormat != "text" && logFormat != "json" {
		return "", "", &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(level)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return "", "", &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	return logFormat, logLevel, nil
}
