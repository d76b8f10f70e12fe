package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/accident.report/internal/api"
	"github.com/banshee-data/accident.report/internal/config"
	"github.com/banshee-data/accident.report/internal/db"
	"github.com/banshee-data/accident.report/internal/pipeline"
	"github.com/banshee-data/accident.report/internal/report"
	"github.com/banshee-data/accident.report/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Run in dev mode (migrations read from internal/db/migrations)")
	listen      = flag.String("listen", ":8000", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", ":50051", "gRPC health listen address (empty disables)")
	configPath  = flag.String("config", config.DefaultConfigPath, "Pipeline configuration JSON")
	dbPath      = flag.String("db", "accident_runs.db", "Run history database (empty disables history)")
	workdir     = flag.String("workdir", "workdir", "Root directory for per-run workspaces")
	logDiag     = flag.Bool("log-diag", false, "Enable diagnostic logging for pipeline packages")
	logTrace    = flag.Bool("log-trace", false, "Enable per-frame trace logging for pipeline packages")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: accident-report [flags] [command]

Commands:
  serve                 Run the HTTP API (default)
  analyze [opts] <mp4>  Analyse a local video and print the report JSON
  migrate <action>      Manage the run history schema (see 'migrate help')

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	db.DevMode = *devMode
	configureLogging(*logDiag, *logTrace)

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = serve()
	case "analyze":
		err = analyze(args, os.Stdout)
	case "migrate":
		err = db.RunMigrateCommand(args, *dbPath, os.Stdout)
	default:
		usage()
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func loadConfig() (*config.PipelineConfig, error) {
	cfg, err := config.LoadPipelineConfig(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", *configPath, err)
	}
	return cfg, nil
}

// serve runs the HTTP API and the gRPC health service until SIGINT/SIGTERM.
func serve() error {
	if *listen == "" {
		return errors.New("listen address is required")
	}
	log.Print(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := newService(ctx, cfg, *workdir)
	if err != nil {
		return err
	}
	defer svc.Close()

	opts := api.Options{
		Analyzer: svc.Pipeline,
		Ready:    svc.Models.Ready,
		Timeout:  cfg.GetRequestTimeout(),
	}

	mux := http.NewServeMux()
	if *dbPath != "" {
		history, err := db.NewDB(*dbPath)
		if err != nil {
			return fmt.Errorf("failed to open run history: %w", err)
		}
		defer history.Close()
		opts.Runs = history
		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		history.AttachAdminRoutes(mux)
	}
	mux.Handle("/", api.NewServer(opts).ServeMux())

	var wg sync.WaitGroup

	if *grpcListen != "" {
		lis, err := net.Listen("tcp", *grpcListen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", *grpcListen, err)
		}
		health := api.NewGRPCHealth()
		health.SyncFromModels(svc.Models.Ready())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := health.Serve(lis); err != nil {
				log.Printf("gRPC health server error: %v", err)
			}
			log.Printf("gRPC health routine stopped")
		}()
		go func() {
			<-ctx.Done()
			health.Stop()
		}()
	}

	server := &http.Server{
		Addr:              *listen,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		go func() {
			log.Printf("HTTP server listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")
		// In-flight analyses may run for minutes; give them a bounded grace.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
	return nil
}

// analyze runs the pipeline once over a local file.
func analyze(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	userID := fs.Int64("user", 1, "User id recorded in the report")
	videoID := fs.Int64("video", 1, "Video id recorded in the report")
	maskDir := fs.String("masks", "", "Reuse foreground counts from an earlier run's background directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: accident-report analyze [-user N] [-video N] [-masks DIR] <video.mp4>")
	}
	videoPath := fs.Arg(0)
	if _, err := os.Stat(videoPath); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := newService(ctx, cfg, *workdir)
	if err != nil {
		return err
	}
	defer svc.Close()

	req := report.Request{UserID: *userID, VideoID: *videoID, FileName: videoPath}
	res, err := svc.Pipeline.RunFile(ctx, req, pipeline.Source{VideoPath: videoPath, MaskDir: *maskDir})
	if err != nil {
		return err
	}
	log.Printf("run %s artifacts in %s", res.RunID, res.Workspace.Dir)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Report)
}
