package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/devmgr/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// listFlag collects a repeatable, comma separated flag.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			*l = append(*l, item)
		}
	}
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("devmgr", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
devmgr - A user-space device manager: device tree, driver binding and
lifecycle sequencing.

Usage:
  devmgr [options] [BOARD_PATH]

Arguments:
  BOARD_PATH
    Path to the .hcl board file describing the boot-time devices.

Options:
`)
		flagSet.PrintDefaults()
	}

	boardFlag := flagSet.String("board", "", "Path to the board file.")
	bFlag := flagSet.String("b", "", "Path to the board file (shorthand).")
	manifestsFlag := flagSet.String("manifests", "drivers", "Path to the driver manifest file or directory.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	httpPortFlag := flagSet.Int("http-port", 0, "Port for the health, metrics and tree HTTP server. 0 is disabled.")
	workersFlag := flagSet.Int("workers", 4, "Number of concurrent matching workers.")
	journalFlag := flagSet.String("journal", "", "Append lifecycle events to this CBOR journal file.")
	var firmwareDirs listFlag
	flagSet.Var(&firmwareDirs, "firmware-dir", "Firmware directory; repeatable or comma separated.")
	bucketFlag := flagSet.String("firmware-bucket", "", "S3 bucket holding firmware images.")
	prefixFlag := flagSet.String("firmware-prefix", "", "Key prefix inside the firmware bucket.")
	regionFlag := flagSet.String("firmware-region", "", "AWS region of the firmware bucket.")
	endpointFlag := flagSet.String("firmware-endpoint", "", "Custom S3 endpoint, e.g. a local MinIO.")
	publishURLFlag := flagSet.String("publish-url", "", "socket.io server that receives device events.")
	publishNSFlag := flagSet.String("publish-namespace", "", "socket.io namespace for device events (default /devices).")
	interactiveFlag := flagSet.Bool("interactive", false, "Start the interactive console after booting.")
	iFlag := flagSet.Bool("i", false, "Start the interactive console (shorthand).")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *boardFlag != "" {
		path = *boardFlag
	} else if *bFlag != "" {
		path = *bFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	interactive := *interactiveFlag || *iFlag
	slog.Debug("Board path determined.", "path", path, "interactive", interactive)

	if path == "" && !interactive {
		slog.Debug("No board path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ManifestsPath:    *manifestsFlag,
		BoardPath:        path,
		LogFormat:        logFormat,
		LogLevel:         logLevel,
		HTTPPort:         *httpPortFlag,
		Workers:          *workersFlag,
		JournalPath:      *journalFlag,
		FirmwareDirs:     firmwareDirs,
		FirmwareBucket:   *bucketFlag,
		FirmwarePrefix:   *prefixFlag,
		FirmwareRegion:   *regionFlag,
		FirmwareEndpoint: *endpointFlag,
		PublishURL:       *publishURLFlag,
		PublishNamespace: *publishNSFlag,
		Interactive:      interactive,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
