package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-extractor/internal/extraction"
	"github.com/zombor/receipt-extractor/internal/metrics"
	"github.com/zombor/receipt-extractor/internal/receipt"
	"github.com/zombor/receipt-extractor/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		slog.Error("Exiting", "error", err)
		os.Exit(1)
	}
}

// run parses args and either serves HTTP until ctx is done or runs a single
// extraction and writes the result to stdout. Everything it opens is closed
// before it returns.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	defaults := extraction.DefaultParams()
	guardDefaults := scanning.DefaultGuardConfig()

	fs := ff.NewFlagSet("receipt-extractor")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		scannerType = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2.5vl)")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn, error")
		logFormat   = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")

		bareConfidence = fs.Float64Long("bare-value-confidence", defaults.BareValueConfidence, "Confidence given to model values without one")
		classifierCap  = fs.Float64Long("classifier-fallback-ceiling", defaults.ClassifierFallbackCeiling, "Confidence ceiling for unrecognized classifier labels")
		regexCeiling   = fs.Float64Long("regex-ceiling", defaults.RegexCeiling, "Confidence ceiling for regex fallback values")
		minYear        = fs.IntLong("min-year", defaults.MinYear, "Earliest accepted document year")
		callTimeout    = fs.DurationLong("call-timeout", defaults.CallTimeout, "Timeout for each vision model call")

		regexDate     = fs.Float64Long("regex-date-confidence", defaults.Regex.Date, "Confidence of a date found by the regex fallback")
		regexCurrency = fs.Float64Long("regex-currency-confidence", defaults.Regex.Currency, "Confidence of an unlabelled amount found by the regex fallback")
		regexTotal    = fs.Float64Long("regex-total-confidence", defaults.Regex.LabelledCurrency, "Confidence of an amount labelled as a total")
		regexPlate    = fs.Float64Long("regex-plate-confidence", defaults.Regex.Plate, "Confidence of a plate found by the regex fallback")
		regexOdometer = fs.Float64Long("regex-odometer-confidence", defaults.Regex.Odometer, "Confidence of an odometer reading found by the regex fallback")
		regexKeyword  = fs.Float64Long("regex-keyword-confidence", defaults.Regex.Keyword, "Confidence of a keyword-derived type, category or document type")
		regexLiters   = fs.Float64Long("regex-liters-confidence", defaults.Regex.Liters, "Confidence of a liters reading found by the regex fallback")

		breakerOff   = fs.BoolLong("breaker-disabled", "Disable the vision circuit breaker")
		breakerMin   = fs.UintLong("breaker-min-requests", uint(guardDefaults.BreakerMinRequests), "Requests before the breaker may trip")
		breakerRatio = fs.Float64Long("breaker-failure-ratio", guardDefaults.BreakerFailureRatio, "Failure ratio that trips the breaker")
		breakerOpen  = fs.DurationLong("breaker-open-timeout", guardDefaults.BreakerOpenTimeout, "How long the breaker stays open")
		rateLimit    = fs.Float64Long("rate-limit", guardDefaults.RatePerSecond, "Vision calls per second (0 disables)")
		rateBurst    = fs.IntLong("rate-burst", guardDefaults.Burst, "Vision call burst size")

		file     = fs.StringLong("file", "", "Extract a single document and print the result instead of serving")
		textFile = fs.StringLong("text-file", "", "Recognized text to use with --file, or alone for a text-only extraction")
		kind     = fs.StringLong("kind", "maintenance", "Document kind for one-shot extraction: 'maintenance' or 'fuel'")

		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix("RECEIPT_EXTRACTOR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		return fmt.Errorf("parsing flags: %w", err)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Fprintln(stdout, version)
		return nil
	}

	if err := setupLogger(*logLevel, *logFormat); err != nil {
		return err
	}

	params := defaults
	params.BareValueConfidence = *bareConfidence
	params.ClassifierFallbackCeiling = *classifierCap
	params.RegexCeiling = *regexCeiling
	params.MinYear = *minYear
	params.CallTimeout = *callTimeout
	params.Regex = extraction.RegexConfidence{
		Date:             *regexDate,
		Currency:         *regexCurrency,
		LabelledCurrency: *regexTotal,
		Plate:            *regexPlate,
		Odometer:         *regexOdometer,
		Keyword:          *regexKeyword,
		Liters:           *regexLiters,
	}

	m := metrics.New()

	// Text-only runs never need a model
	if *file == "" && *textFile != "" {
		service := receipt.NewService(extraction.NewPipelineWithDeps(nil, params, nil, m))
		return extractText(ctx, service, *textFile, *kind, stdout)
	}

	// Initialize scanner based on type
	var scanner scanning.Scanner
	var err error
	switch *scannerType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			return fmt.Errorf("initializing Gemini: %w", err)
		}
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			return fmt.Errorf("initializing Ollama: %w", err)
		}
	default:
		return fmt.Errorf("invalid scanner type %q: use gemini or ollama", *scannerType)
	}

	guarded := scanning.NewGuarded(scanner, *scannerType, scanning.GuardConfig{
		BreakerEnabled:          !*breakerOff,
		BreakerMinRequests:      uint32(*breakerMin),
		BreakerFailureRatio:     *breakerRatio,
		BreakerOpenTimeout:      *breakerOpen,
		BreakerHalfOpenMaxCalls: guardDefaults.BreakerHalfOpenMaxCalls,
		RatePerSecond:           *rateLimit,
		Burst:                   *rateBurst,
	}, m)
	defer func() {
		if err := guarded.Close(); err != nil {
			slog.Warn("Error closing scanner", "error", err)
		}
	}()

	service := receipt.NewService(extraction.NewPipelineWithDeps(guarded, params, nil, m))

	if *file != "" {
		return extractFile(ctx, service, *file, *textFile, *kind, *callTimeout, stdout)
	}

	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(service, basicAuth, m)

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	if err := server.Start(ctx, addr); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}

// setupLogger installs the default slog handler
func setupLogger(level string, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// extractFile runs one document through the service and prints the extraction
func extractFile(ctx context.Context, service *receipt.Service, path string, textPath string, kind string, callTimeout time.Duration, stdout io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var text string
	if textPath != "" {
		raw, err := os.ReadFile(textPath)
		if err != nil {
			return fmt.Errorf("reading %s: %w", textPath, err)
		}
		text = string(raw)
	}

	// Classification and extraction each get a call timeout
	ctx, cancel := context.WithTimeout(ctx, 2*callTimeout+10*time.Second)
	defer cancel()

	ext, err := service.ProcessDocument(ctx, filepath.Base(path), data, contentTypeFor(path), kind, text)
	if err != nil {
		return fmt.Errorf("processing %s: %w", path, err)
	}

	slog.Info("Extraction complete", "id", ext.ID, "source", ext.Source, "extracted", ext.Fields.Extracted())
	return printJSON(stdout, ext)
}

// extractText runs recognized text through the regex path and prints the extraction
func extractText(ctx context.Context, service *receipt.Service, path string, kind string, stdout io.Writer) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	ext, err := service.ProcessText(ctx, receipt.TextRequest{Text: string(text), Kind: kind})
	if err != nil {
		if errors.Is(err, receipt.ErrEmptyDocument) {
			return fmt.Errorf("%s has no text: %w", path, err)
		}
		return fmt.Errorf("processing %s: %w", path, err)
	}
	return printJSON(stdout, ext)
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "image/jpeg"
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}
