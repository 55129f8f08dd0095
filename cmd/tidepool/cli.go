package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/foofork/tidepool"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx       context.Context
	Stdout    io.Writer
	Stderr    io.Writer
	Logger    *slog.Logger
	Engine    tidepool.Engine
	Extractor tidepool.Extractor
	Fetcher   tidepool.Fetcher
	Writer    tidepool.DocWriter
	Asker     tidepool.Asker
	Metrics   tidepool.MetricsSource
	Health    tidepool.HealthSource
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Extract ExtractCmd `cmd:"" help:"Extract structured content from HTML files or URLs"`
	Ask     AskCmd     `cmd:"" help:"Ask a question about extracted pages"`
	Info    InfoCmd    `cmd:"" help:"Show extractor wasm module information"`
	Serve   ServeCmd   `cmd:"" help:"Serve pool health and metrics over HTTP"`
}

// ExtractCmd is the "extract" subcommand.
type ExtractCmd struct {
	Inputs      []string      `arg:"" help:"HTML files or http(s) URLs to extract"`
	Module      string        `short:"m" help:"Path to the extractor wasm module"`
	Mode        string        `default:"article" enum:"article,full_page,metadata,custom" help:"Extraction mode"`
	Selector    string        `help:"CSS selector for custom mode"`
	URL         string        `help:"Source URL recorded on the document (single file only)"`
	Fallback    string        `default:"goquery" enum:"goquery,trafilatura,readability" help:"Fallback extractor used when the sandbox fails"`
	Render      bool          `help:"Fetch URL inputs through headless Chrome to include JavaScript-rendered content"`
	Timeout     time.Duration `default:"30s" help:"Per-input extraction deadline"`
	Concurrency int           `short:"c" default:"4" help:"Concurrent extraction limit"`
	PoolSize    int           `help:"Instance pool size (0 uses the default)"`
	Out         string        `help:"Write extracted documents as markdown files under this directory"`
	JSON        bool          `help:"Print extracted documents as JSON"`
	Full        bool          `help:"Print full document content instead of summary lines"`
	Verbose     bool          `short:"v" help:"Enable debug logging"`
	CacheDir    string        `help:"Compilation cache directory for faster startup"`
}

// AskCmd is the "ask" subcommand.
type AskCmd struct {
	Question    string        `arg:"" help:"Question to answer from the extracted pages"`
	Inputs      []string      `arg:"" help:"HTML files or http(s) URLs to extract"`
	Module      string        `short:"m" help:"Path to the extractor wasm module"`
	Fallback    string        `default:"goquery" enum:"goquery,trafilatura,readability" help:"Fallback extractor used when the sandbox fails"`
	Render      bool          `help:"Fetch URL inputs through headless Chrome to include JavaScript-rendered content"`
	Timeout     time.Duration `default:"30s" help:"Per-input extraction deadline"`
	Concurrency int           `short:"c" default:"4" help:"Concurrent extraction limit"`
	PoolSize    int           `help:"Instance pool size (0 uses the default)"`
	Verbose     bool          `short:"v" help:"Enable debug logging"`
	CacheDir    string        `help:"Compilation cache directory for faster startup"`
}

// InfoCmd is the "info" subcommand.
type InfoCmd struct {
	Module   string `short:"m" help:"Path to the extractor wasm module"`
	JSON     bool   `help:"Print module info as JSON"`
	CacheDir string `help:"Compilation cache directory for faster startup"`
}

// ServeCmd is the "serve" subcommand.
type ServeCmd struct {
	Module   string `short:"m" help:"Path to the extractor wasm module"`
	Listen   string `default:":9090" help:"HTTP listen address"`
	PoolSize int    `help:"Instance pool size (0 uses the default)"`
	Verbose  bool   `short:"v" help:"Enable debug logging"`
	CacheDir string `help:"Compilation cache directory for faster startup"`
}
