package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/foofork/tidepool"
	"github.com/foofork/tidepool/breaker"
	"github.com/foofork/tidepool/fs"
	"github.com/foofork/tidepool/gemini"
	"github.com/foofork/tidepool/goquery"
	tphttp "github.com/foofork/tidepool/http"
	"github.com/foofork/tidepool/htmltomarkdown"
	"github.com/foofork/tidepool/pool"
	"github.com/foofork/tidepool/readability"
	"github.com/foofork/tidepool/rod"
	tpslog "github.com/foofork/tidepool/slog"
	"github.com/foofork/tidepool/trafilatura"
	"github.com/foofork/tidepool/wazero"
	"google.golang.org/genai"
)

func main() {
	ctx := context.Background()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Path to the extractor wasm module. Set before calling Run().
	ModulePath string

	// Engine compiles the wasm module and stamps out sandboxed
	// instances. Pre-assign for end-to-end testing to skip compilation.
	Engine tidepool.Engine

	// Pool of warmed instances behind the extract, ask and serve
	// commands.
	Pool *pool.Pool
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{
		ModulePath: defaultModulePath(),
	}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	ctx := context.Background()
	if m.Pool != nil {
		if err := m.Pool.Close(ctx); err != nil {
			return err
		}
	}
	if m.Engine != nil {
		return m.Engine.Close(ctx)
	}
	return nil
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	// Initialize dependencies struct for Kong binding
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	// Create Kong parser with dependency binding
	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("tidepool"),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	// Handle help flags using Kong
	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'tidepool --help' to see available commands")
	}

	cmd := args[0]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	// Parse arguments first to know which command and its flags
	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	// Collect per-command engine and pool configuration
	modulePath := m.ModulePath
	cacheDir := ""
	poolSize := 0
	verbose := false
	render := false
	fallbackName := ""
	switch cmd {
	case "extract":
		if cli.Extract.Module != "" {
			modulePath = cli.Extract.Module
		}
		cacheDir = cli.Extract.CacheDir
		poolSize = cli.Extract.PoolSize
		verbose = cli.Extract.Verbose
		render = cli.Extract.Render
		fallbackName = cli.Extract.Fallback
	case "ask":
		if cli.Ask.Module != "" {
			modulePath = cli.Ask.Module
		}
		cacheDir = cli.Ask.CacheDir
		poolSize = cli.Ask.PoolSize
		verbose = cli.Ask.Verbose
		render = cli.Ask.Render
		fallbackName = cli.Ask.Fallback
	case "info":
		if cli.Info.Module != "" {
			modulePath = cli.Info.Module
		}
		cacheDir = cli.Info.CacheDir
	case "serve":
		if cli.Serve.Module != "" {
			modulePath = cli.Serve.Module
		}
		cacheDir = cli.Serve.CacheDir
		poolSize = cli.Serve.PoolSize
		verbose = cli.Serve.Verbose
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	deps.Logger = logger

	limits := tidepool.DefaultResourceLimits()
	if poolSize > 0 {
		limits.PoolSize = poolSize
	}

	// Compile the wasm module
	if m.Engine == nil {
		binary, err := os.ReadFile(modulePath)
		if err != nil {
			fmt.Fprintln(stderr, "Hint: Set TIDEPOOL_MODULE or pass --module to locate the extractor wasm module")
			return fmt.Errorf("failed to read wasm module at %q: %w", modulePath, err)
		}

		var opts []wazero.Option
		if cacheDir != "" {
			opts = append(opts, wazero.WithCompilationCacheDir(cacheDir))
		}

		engine, err := wazero.NewEngine(ctx, binary, limits, opts...)
		if err != nil {
			return fmt.Errorf("failed to compile wasm module at %q: %w", modulePath, err)
		}
		m.Engine = tpslog.NewLoggingEngine(engine, logger)
	}
	defer m.Close()

	deps.Engine = m.Engine

	// Wire the instance pool and extraction facade for commands that
	// extract or report on extraction
	if cmd == "extract" || cmd == "ask" || cmd == "serve" {
		p, err := pool.New(ctx, m.Engine, limits, logger)
		if err != nil {
			return fmt.Errorf("failed to warm instance pool: %w", err)
		}
		m.Pool = p

		brk, err := breaker.New(tidepool.DefaultBreakerConfig())
		if err != nil {
			return fmt.Errorf("failed to create circuit breaker: %w", err)
		}

		converter := htmltomarkdown.NewConverter()
		var fallback tidepool.Extractor
		switch fallbackName {
		case "trafilatura":
			fallback = trafilatura.NewExtractor(converter)
		case "readability":
			fallback = readability.NewExtractor(converter)
		default:
			fallback = goquery.NewExtractor(converter)
		}

		facade := pool.NewExtractor(p, brk, fallback)
		deps.Extractor = tpslog.NewLoggingExtractor(facade, logger)
		deps.Metrics = facade
		deps.Health = facade
	}

	// Commands that accept URL inputs need a fetcher
	if cmd == "extract" || cmd == "ask" {
		var fetcher tidepool.Fetcher
		if render {
			fetcher, err = rod.NewFetcher()
			if err != nil {
				fmt.Fprintln(stderr, "Hint: Chrome or Chromium must be installed")
				return fmt.Errorf("failed to start browser: %w", err)
			}
		} else {
			fetcher = tphttp.NewFetcher()
		}
		defer fetcher.Close()

		deps.Fetcher = tpslog.NewLoggingFetcher(fetcher, logger)
	}

	if cmd == "extract" && cli.Extract.Out != "" {
		deps.Writer = fs.NewWriter(cli.Extract.Out)
	}

	if cmd == "ask" {
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			fmt.Fprintln(stderr, "GEMINI_API_KEY environment variable not set. Get an API key at https://aistudio.google.com/apikey")
			return fmt.Errorf("GEMINI_API_KEY not set. Get a key at https://aistudio.google.com/apikey")
		}

		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			fmt.Fprintln(stderr, "Hint: Check your GEMINI_API_KEY is valid")
			return fmt.Errorf("failed to connect to Gemini API: %w", err)
		}

		counter, err := gemini.NewTokenCounter(tokenizerModel)
		if err != nil {
			return fmt.Errorf("failed to create token counter: %w", err)
		}

		deps.Asker = gemini.NewAsker(client, counter, defaultModel)
	}

	return kongCtx.Run(deps)
}

const defaultModel = "gemini-2.5-flash"

// tokenizerModel is used for the local prompt budget check. It must be
// a model google.golang.org/genai/tokenizer ships a vocabulary for; the
// 2.x models share one vocabulary, so counts carry over to defaultModel.
const tokenizerModel = "gemini-2.0-flash"

func defaultModulePath() string {
	if path := os.Getenv("TIDEPOOL_MODULE"); path != "" {
		return path
	}
	return "extractor.wasm"
}
