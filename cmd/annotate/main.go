// Terminal annotator
// Select text with the mouse or shift+arrows to highlight it; Ctrl-S saves
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"

	"github.com/nainya/textanchor/internal/config"
	"github.com/nainya/textanchor/internal/logger"
	"github.com/nainya/textanchor/internal/tui"
	"github.com/nainya/textanchor/pkg/annotator"
	"github.com/nainya/textanchor/pkg/document"
)

var (
	configPath = flag.String("config", "textanchor.toml", "Config file path")
	output     = flag.String("out", "", "Where Ctrl-S writes annotations (defaults to -annotations)")
	logFile    = flag.String("log", "", "Log file; logging is off when empty")
	user       = flag.String("user", "", "Creator recorded on new annotations")
)

func main() {
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: annotate [flags] <document> [annotations.json]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Document.Path = flag.Arg(0)
	if flag.NArg() > 1 {
		cfg.Document.Annotations = flag.Arg(1)
	}
	if *user != "" {
		cfg.Document.User = *user
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	// The terminal owns stdout, so logs go to a file or nowhere
	log := logger.Nop()
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		lc := cfg.LoggerConfig()
		lc.Output = f
		log = logger.NewLogger(lc)
	}

	if err := run(cfg, log); err != nil {
		fmt.Fprintf(os.Stderr, "annotate: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	doc, err := document.LoadFile(cfg.Document.Path, cfg.Document.Format)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	opts := cfg.AnnotatorOptions()
	opts.Logger = log.Zerolog()
	ann := annotator.New(doc, opts)
	defer ann.Close()

	if cfg.Document.Annotations != "" {
		data, err := os.ReadFile(cfg.Document.Annotations)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return fmt.Errorf("read annotations: %w", err)
		default:
			if _, err := ann.LoadAnnotations(string(data), false); err != nil {
				return fmt.Errorf("load annotations: %w", err)
			}
		}
	}

	outPath := *output
	if outPath == "" {
		outPath = cfg.Document.Annotations
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()
	screen.EnableMouse()

	app := tui.New(screen, ann, tui.Options{
		Logger: log.Zerolog(),
		OnSave: func(json string) error {
			if outPath == "" {
				return fmt.Errorf("no output file, pass -out")
			}
			return os.WriteFile(outPath, []byte(json), 0o644)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
