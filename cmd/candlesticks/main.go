// Crypto Candlesticks CLI
// Downloads historical candlestick data for one trading pair from Bitfinex,
// stores it in a database and writes it to an Excel workbook.
//
// Usage:
//
//	candlesticks --symbol BTC --base_currency USD --interval 1D --start_date 2020-11-01 --end_date 2021-01-01
//
// Every flag may also come from an environment variable of the same name
// (symbol, base_currency, interval, start_date, end_date), or from a .env file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/johnayoung/crypto-candlesticks/internal/collector"
	"github.com/johnayoung/crypto-candlesticks/internal/config"
	"github.com/johnayoung/crypto-candlesticks/internal/console"
	apperrors "github.com/johnayoung/crypto-candlesticks/internal/errors"
	"github.com/johnayoung/crypto-candlesticks/internal/exchange"
	"github.com/johnayoung/crypto-candlesticks/internal/export"
	"github.com/johnayoung/crypto-candlesticks/internal/logger"
	"github.com/johnayoung/crypto-candlesticks/internal/metrics"
	"github.com/johnayoung/crypto-candlesticks/internal/storage"
	"github.com/johnayoung/crypto-candlesticks/internal/validator"
)

// CLI version information
const (
	Version = "1.0.0"
	AppName = "candlesticks"
)

// Exit codes following standard conventions
const (
	ExitSuccess       = 0
	ExitUsageError    = 1
	ExitConfigError   = 2
	ExitConnectionErr = 3
	ExitDataError     = 4
)

const defaultCountdownSeconds = 3

// Flags represents the download arguments
type Flags struct {
	validator.Request
	ConfigPath string
	Help       bool
	Version    bool
}

func main() {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one download and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags, err := parseFlags(args, os.Getenv)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\nRun with --help for the arguments\n", err)
		return ExitUsageError
	}
	if flags.Help {
		printUsage(stdout)
		return ExitSuccess
	}
	if flags.Version {
		fmt.Fprintf(stdout, "%s version %s\n", AppName, Version)
		return ExitSuccess
	}

	cfg, err := config.NewConfigManager(flags.ConfigPath, nil).LoadConfig(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	lm, err := logger.NewLoggerManager(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to setup logging: %v\n", err)
		return ExitConfigError
	}
	defer lm.Close()

	printer := console.NewPrinter(stdout)
	recorder := metrics.NewRecorder()
	req := flags.Request
	ticker := req.Ticker()

	ctx = logger.NewRunContext(ctx, ticker, req.Interval)
	log := lm.WithComponentContext(ctx, "cli")
	defer recorder.LogSummary(log.Logger)

	printer.Info("Welcome, let's download your data")

	client := exchange.NewBitfinexClient(
		exchange.ClientConfigFrom(cfg.Exchange, cfg.Version),
		lm.WithComponentContext(ctx, "exchange").Logger,
	).WithNotifier(printer).WithRecorder(recorder)

	v := validator.New(client, lm.WithComponentContext(ctx, "validator").Logger)
	if err := v.ValidateInputs(ctx, req); err != nil {
		printer.Failure(fmt.Sprintf("Data could not be downloaded, please make sure your inputs are correct. %v", err))
		return exitCodeFor(err)
	}

	startMs, endMs, err := v.NormalizeDates(req.StartDate, req.EndDate)
	if err != nil {
		printer.Failure(fmt.Sprintf("Data could not be downloaded, please make sure your dates are in the format YYYY-MM-DD. %v", err))
		return exitCodeFor(err)
	}

	if req.IsDefault() {
		printer.Info("USING DEFAULT VALUES: run --help to know what arguments you can pass")
		printer.Countdown(defaultCountdownSeconds)
		printer.Info("Starting!")
	}

	writer, err := storage.New(cfg.Storage, ticker, req.Interval, lm.WithComponentContext(ctx, "storage").Logger)
	if err != nil {
		printer.Failure(apperrors.UserMessage(err))
		return exitCodeFor(err)
	}

	var exporter export.Exporter
	if cfg.Export.Enabled {
		exporter = export.NewXLSXExporter(cfg.Export.Directory, cfg.Export.SheetName, lm.WithComponentContext(ctx, "export").Logger)
	}

	acquisition := collector.Config{
		SliceWidth:    collector.DefaultSliceWidth,
		CourtesyDelay: cfg.Acquisition.CourtesyPause(),
	}

	driver := collector.NewDriver(client, acquisition, lm.WithComponentContext(ctx, "collector").Logger).
		WithRecorder(recorder)
	if cfg.Console.Enabled {
		driver.WithProgress(console.NewProgressPrinter(stdout, ticker, req.Interval, cfg.Console.MaxRows).Update)
	}

	pipeline := collector.NewPipeline(driver, writer, exporter, lm.WithComponentContext(ctx, "pipeline").Logger).
		WithReporter(printer).
		WithRecorder(recorder)

	summary, err := pipeline.Run(ctx, acquisition.Request(ticker, req.Interval, startMs, endMs))
	if err != nil {
		log.Error("download failed", "error", err, "type", apperrors.GetErrorType(err))
		// The client has already told the user it cannot connect.
		if !errors.Is(err, exchange.ErrCannotConnect) {
			printer.Failure(apperrors.UserMessage(err))
		}
		return exitCodeFor(err)
	}

	log.Info("download finished",
		"records", summary.Result.Records,
		"rows_stored", summary.RowsStored,
		"export_path", summary.ExportPath,
		"elapsed", summary.Result.Elapsed)

	printer.Banner(fmt.Sprintf("Thank you for using Crypto Candlesticks! %d %s candles saved.", summary.RowsStored, ticker))
	return ExitSuccess
}

// exitCodeFor maps a failure class to the process exit code.
func exitCodeFor(err error) int {
	switch apperrors.GetErrorType(err) {
	case "":
		return ExitSuccess
	case apperrors.ErrorTypeValidation:
		return ExitUsageError
	case apperrors.ErrorTypeConfiguration:
		return ExitConfigError
	case apperrors.ErrorTypeNetwork, apperrors.ErrorTypeStatus:
		return ExitConnectionErr
	default:
		return ExitDataError
	}
}

// parseFlags parses command line arguments. Unset arguments fall back to the
// environment variable of the same name, then to validator.Defaults.
func parseFlags(args []string, getenv func(string) string) (*Flags, error) {
	flags := &Flags{Request: validator.Defaults}

	fromEnv := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	fromEnv("symbol", &flags.Symbol)
	fromEnv("base_currency", &flags.BaseCurrency)
	fromEnv("interval", &flags.Interval)
	fromEnv("start_date", &flags.StartDate)
	fromEnv("end_date", &flags.EndDate)

	for i := 0; i < len(args); i++ {
		arg := args[i]
		var value *string

		switch arg {
		case "--symbol", "-s":
			value = &flags.Symbol
		case "--base_currency", "-b":
			value = &flags.BaseCurrency
		case "--interval", "-i":
			value = &flags.Interval
		case "--start_date", "-d":
			value = &flags.StartDate
		case "--end_date", "-e":
			value = &flags.EndDate
		case "--config", "-c":
			value = &flags.ConfigPath
		case "--help", "-h":
			flags.Help = true
			continue
		case "--version", "-v":
			flags.Version = true
			continue
		default:
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}

		if i+1 >= len(args) {
			return nil, fmt.Errorf("%s requires a value", arg)
		}
		*value = args[i+1]
		i++
	}

	return flags, nil
}

// printUsage prints the usage information
func printUsage(w io.Writer) {
	fmt.Fprintf(w, `%s - Crypto Candlesticks v%s

Download cryptocurrency candlestick data from Bitfinex. If the data is obtained
successfully, it is written to a database and an Excel workbook.

USAGE:
    %s [options]

OPTIONS:
    --symbol, -s          Cryptocurrency symbol to download (ie. BTC, ETH, LTC)   [default: %s]
    --base_currency, -b   Base trading pair (%s)   [default: %s]
    --interval, -i        Candle interval (%s)   [default: %s]
    --start_date, -d      Date to start downloading the data (YYYY-MM-DD)   [default: %s]
    --end_date, -e        Date up to which data is downloaded (YYYY-MM-DD)   [default: %s]
    --config, -c          Configuration file (.json, .yaml or .yml)
    --help, -h            Show help information
    --version, -v         Show version information

CONFIGURATION:
    Arguments can also be set with the environment variables symbol,
    base_currency, interval, start_date and end_date, or in a .env file.
    Settings can be overridden with %s* variables (e.g. %sSTORAGE_TYPE=duckdb).
`,
		AppName, Version, AppName,
		validator.Defaults.Symbol,
		strings.Join(validator.BaseCurrencies, ", "), validator.Defaults.BaseCurrency,
		strings.Join(validator.Intervals, ", "), validator.Defaults.Interval,
		validator.Defaults.StartDate, validator.Defaults.EndDate,
		config.EnvPrefix, config.EnvPrefix)
}
