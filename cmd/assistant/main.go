package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/il-dat/open-code-assistant/pkg/completion"
	"github.com/il-dat/open-code-assistant/pkg/config"
	"github.com/il-dat/open-code-assistant/pkg/logging"
	"github.com/il-dat/open-code-assistant/pkg/model"
	"github.com/il-dat/open-code-assistant/pkg/prompt"
	"github.com/il-dat/open-code-assistant/pkg/telemetry"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(dispatchSubcommand(os.Args[1:]))
}

func dispatchSubcommand(args []string) int {
	if len(args) == 0 {
		printHelp()
		return 1
	}
	switch args[0] {
	case "--version", "-v", "version":
		printVersion()
		return 0
	case "--help", "-h", "help":
		printHelp()
		return 0
	case "complete":
		return runCompleteCommand(args[1:])
	case "models":
		return runModelsCommand(args[1:])
	case "status":
		return runStatusCommand(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", args[0])
		printHelp()
		return 1
	}
}

func printVersion() {
	fmt.Printf("assistant %s (commit %s, built %s)\n", version, commit, buildDate)
}

func printHelp() {
	fmt.Print(`assistant - inline code completion against a local inference server

Usage:
  assistant complete -file FILE -line N -col M [-config PATH] [-metrics ADDR]
  assistant models   [-config PATH]
  assistant status   [-config PATH]

Commands:
  complete   Run one completion at the given cursor position and print it
  models     List models available on the inference server
  status     Check whether the inference server is reachable
`)
}

// runtime bundles the shared pieces every subcommand needs.
type runtime struct {
	cfg    *config.Config
	logger *logging.Logger
	client *model.Client
}

func newRuntime(configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.LogDir(), uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("opening log files: %w", err)
	}
	if cfg.Logging.Level != "" {
		logger.SetMinLevel(logging.Level(cfg.Logging.Level))
	}

	client := model.NewClient(model.ClientConfig{
		BaseURL:            cfg.Endpoint.BaseURL,
		AuthToken:          cfg.Endpoint.AuthToken,
		NetworkLogsEnabled: cfg.Diagnostics.NetworkLogsEnabled,
		NetworkLogDir:      cfg.LogDir(),
	}, logger)

	return &runtime{cfg: cfg, logger: logger, client: client}, nil
}

func (rt *runtime) close() {
	rt.client.Close()
	rt.logger.Close()
}

func runCompleteCommand(args []string) int {
	fs := flag.NewFlagSet("complete", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	metricsAddr := fs.String("metrics", "", "serve Prometheus metrics on this address")
	file := fs.String("file", "", "source file to complete in")
	line := fs.Int("line", 0, "zero-based cursor line")
	col := fs.Int("col", 0, "zero-based cursor column")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: -file is required")
		return 1
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	rt, err := newRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer rt.close()

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", telemetry.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "metrics listener: %v\n", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc := completion.NewService(
		rt.client,
		completion.NotifierFunc(func(msg string) {
			fmt.Fprintln(os.Stderr, msg)
		}),
		completion.Options{
			Model:       rt.cfg.Completion.Model,
			MaxTokens:   rt.cfg.Completion.MaxTokens,
			Temperature: rt.cfg.Completion.Temperature,
		},
		rt.logger,
	)
	defer svc.Dispose()

	doc := prompt.NewDocument(string(data))
	result := svc.ProvideCompletion(ctx, doc, prompt.Position{Line: *line, Col: *col})
	if result == nil {
		fmt.Fprintln(os.Stderr, "no completion")
		return 1
	}
	fmt.Println(result.Text)
	return 0
}

func runModelsCommand(args []string) int {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	rt, err := newRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer rt.close()

	models, err := rt.client.ListModels(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(models) == 0 {
		fmt.Println("No models available.")
		return 0
	}

	fmt.Printf("%-40s %10s  %s\n", "NAME", "SIZE", "MODIFIED")
	for _, m := range models {
		fmt.Printf("%-40s %10s  %s\n", m.Name, formatBytes(m.Size), m.ModifiedAt.Format("2006-01-02 15:04"))
	}
	return 0
}

func runStatusCommand(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	rt, err := newRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer rt.close()

	if rt.client.CheckHealth(context.Background()) {
		fmt.Printf("Inference server is healthy at %s\n", rt.client.BaseURL())
		return 0
	}
	fmt.Fprintf(os.Stderr, "Cannot reach the inference server at %s. Start it with `ollama serve`.\n", rt.client.BaseURL())
	return 1
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
