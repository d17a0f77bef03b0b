// Annotator gRPC Server
// Serves highlight geometry and W3C annotations for one document
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/nainya/textanchor/internal/config"
	"github.com/nainya/textanchor/internal/logger"
	"github.com/nainya/textanchor/internal/metrics"
	"github.com/nainya/textanchor/internal/server"
	"github.com/nainya/textanchor/internal/watch"
	"github.com/nainya/textanchor/pkg/annotator"
	"github.com/nainya/textanchor/pkg/document"
)

var (
	configPath  = flag.String("config", "textanchor.toml", "Config file path")
	port        = flag.Int("port", 0, "The server port (overrides config)")
	metricsPort = flag.Int("metrics-port", 0, "The metrics port (overrides config)")
	docPath     = flag.String("doc", "", "Document to annotate (overrides config)")
	annotations = flag.String("annotations", "", "W3C annotations to load at startup (overrides config)")
	logLevel    = flag.String("log-level", "", "Log level (overrides config)")
	noWatch     = flag.Bool("no-watch", false, "Do not reload the document when it changes")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger.InitGlobalLogger(cfg.LoggerConfig())
	log := logger.GetGlobalLogger()

	if cfg.Document.Path == "" {
		log.Fatal("No document configured").Msg("Pass -doc or set document.path")
	}

	loadDocument := func() (*document.Document, error) {
		return document.LoadFile(cfg.Document.Path, cfg.Document.Format)
	}
	doc, err := loadDocument()
	if err != nil {
		log.Fatal("Failed to load document").Err(err).Str("document", cfg.Document.Path).Send()
	}

	m := metrics.NewMetrics()
	opts := cfg.AnnotatorOptions()
	opts.Logger = log.Zerolog()
	opts.Recorder = m
	ann := annotator.New(doc, opts)

	if cfg.Document.Annotations != "" {
		data, err := os.ReadFile(cfg.Document.Annotations)
		if err != nil {
			log.Fatal("Failed to read annotations").Err(err).Str("path", cfg.Document.Annotations).Send()
		}
		res, err := ann.LoadAnnotations(string(data), false)
		if err != nil {
			log.Fatal("Failed to load annotations").Err(err).Send()
		}
		log.Info("Annotations loaded").
			Int("parsed", len(res.Parsed)).
			Int("failed", len(res.Failed)).
			Int("outdated", ann.Stats().Outdated).
			Send()
	}

	srv := server.NewServer(ann, server.Options{
		LoadDocument: loadDocument,
		DocumentPath: cfg.Document.Path,
		Logger:       log,
		Metrics:      m,
	})
	defer srv.Close()

	log.LogServerStart(cfg.Server.Port, cfg.Document.Path)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		log.Fatal("Failed to listen").Err(err).Send()
	}

	// Create gRPC server with options
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(100*1024*1024), // 100 MB
		grpc.MaxSendMsgSize(100*1024*1024), // 100 MB
		grpc.UnaryInterceptor(server.GrpcMetricsInterceptor(m, log)),
	)

	// Register service
	server.RegisterAnnotatorServer(grpcServer, srv)

	// Register reflection service for grpcurl/grpcui
	reflection.Register(grpcServer)

	obs := server.NewObservabilityServer(cfg.Server.MetricsPort, m, log)
	go func() {
		if err := obs.Start(); err != nil {
			log.Error("Observability server stopped").Err(err).Send()
		}
	}()

	var watcher *watch.Watcher
	if !*noWatch {
		watcher, err = watch.New(cfg.Document.Path, func(path string) {
			doc, err := loadDocument()
			if err != nil {
				log.Warn("Failed to reload document").Err(err).Str("document", path).Send()
				return
			}
			if _, err := srv.ReloadDocument(doc); err != nil {
				log.Warn("Some targets no longer anchor").Err(err).Send()
			}
		}, watch.Options{
			Delay:  200 * time.Millisecond,
			Logger: log.Zerolog(),
		})
		if err != nil {
			log.Warn("Document watching disabled").Err(err).Send()
		}
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.LogServerShutdown()
		if watcher != nil {
			watcher.Close()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(ctx)
		grpcServer.GracefulStop()
	}()

	// Start server
	log.LogServerReady(cfg.Server.Port)
	if err := grpcServer.Serve(lis); err != nil {
		log.Fatal("Failed to serve").Err(err).Send()
	}
}

func applyFlags(cfg *config.Config) {
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *metricsPort != 0 {
		cfg.Server.MetricsPort = *metricsPort
	}
	if *docPath != "" {
		cfg.Document.Path = *docPath
		if cfg.Document.Source == "" {
			cfg.Document.Source = *docPath
		}
	}
	if *annotations != "" {
		cfg.Document.Annotations = *annotations
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
}
