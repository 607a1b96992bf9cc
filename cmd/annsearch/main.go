package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/seanblong/annsearch/internal/config"
	"github.com/seanblong/annsearch/internal/conn"
	"github.com/seanblong/annsearch/internal/console"
	"github.com/seanblong/annsearch/internal/query"
	"github.com/seanblong/annsearch/internal/render"
	"github.com/seanblong/annsearch/internal/search"
	"github.com/spf13/pflag"
)

// oneShot wraps the terminal for --question runs and signals once the query
// has an outcome.
type oneShot struct {
	*console.Terminal
	once sync.Once
	done chan struct{}
}

func (o *oneShot) ShowResults(content string) {
	o.Terminal.ShowResults(content)
	if content != render.SearchingText {
		o.once.Do(func() { close(o.done) })
	}
}

func (o *oneShot) ShowStatus(msg string) {
	o.Terminal.ShowStatus(msg)
	o.once.Do(func() { close(o.done) })
}

func main() {
	// Create flagset for configuration
	fs := pflag.NewFlagSet("annsearch", pflag.ExitOnError)

	// Load configuration
	cfg, err := config.Load("", fs, os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	// Set up logging; stdout is the results area so logs go to stderr
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	variant, err := query.ParseVariant(cfg.Protocol)
	if err != nil {
		log.Fatalf("Invalid protocol: %v", err)
	}

	useColor := console.ColorEnabled(cfg.Color, os.Stdout)
	term := console.NewTerminal(os.Stdout, useColor)

	scheme := "http"
	if cfg.Secure {
		scheme = "https"
	}
	endpoint := conn.Endpoint(cfg.Host, cfg.Secure)
	logger.Info().Str("endpoint", endpoint).Str("protocol", variant.String()).Msg("starting annsearch client")

	mgr := conn.NewManager(endpoint, conn.WebsocketDialer{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}, logger)

	opts := search.Options{
		Variant:        variant,
		RequestTimeout: cfg.RequestTimeout,
		Render: render.Options{
			BaseURL: &url.URL{Scheme: scheme, Host: cfg.Host, Path: "/"},
			Color:   useColor,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	form := query.Form{TopN: strconv.Itoa(cfg.TopN), Filepath: cfg.Filepath}

	if cfg.Question != "" {
		os.Exit(runOnce(ctx, mgr, term, opts, form, cfg.Question, logger))
	}

	sess := search.NewSession(mgr, term, opts, logger)
	go sess.Run(ctx)
	mgr.Open(ctx)
	defer mgr.Close()

	prompt := console.NewPrompt(os.Stdin, os.Stdout, form)
	prompt.Help()

	quit := make(chan struct{})
	go func() {
		defer close(quit)
		for {
			action, err := prompt.Next()
			if err != nil || action == console.Quit {
				return
			}
			if action == console.Submit {
				// Failures are already on the status line.
				_ = sess.Submit(ctx, prompt.Form())
			}
		}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stdout)
	case <-quit:
	}
}

func runOnce(ctx context.Context, mgr *conn.Manager, term *console.Terminal, opts search.Options, form query.Form, question string, logger zerolog.Logger) int {
	display := &oneShot{Terminal: term, done: make(chan struct{})}
	sess := search.NewSession(mgr, display, opts, logger)
	go sess.Run(ctx)
	mgr.Open(ctx)
	defer mgr.Close()

	form.Question = question
	if err := sess.Submit(ctx, form); err != nil {
		return 1
	}

	select {
	case <-display.done:
	case <-ctx.Done():
		return 130
	}
	if out := term.Results(); strings.Contains(out, "Error: ") && !strings.Contains(out, render.Heading) {
		return 1
	}
	return 0
}
