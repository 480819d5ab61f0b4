package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/queryloom/queryloom/capability/llmhttp"
	"github.com/queryloom/queryloom/tools"
	"github.com/queryloom/queryloom/workflow"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to workflow config file, JSON or YAML (required)")
		query      = flag.String("query", "", "Natural-language query to run (required)")
		sessionID  = flag.String("session", "", "Session id to append to (default: new session)")
		endpoint   = flag.String("endpoint", "http://localhost:11434", "Chat-completions endpoint")
		model      = flag.String("model", "", "Model name (required)")
		apiKey     = flag.String("api-key", "", "Bearer token for the endpoint")
		dataDir    = flag.String("data", "data", "Directory of JSON document collections")
		stream     = flag.Bool("stream", false, "Print step events as they happen")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	flag.Parse()

	if *configFile == "" || *query == "" || *model == "" {
		fmt.Fprintln(os.Stderr, "Usage: queryloom -config <file> -model <name> -query <text>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := workflow.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	registry := tools.NewRegistry()
	registerBuiltinTools(registry, *dataDir)

	providerCfg := llmhttp.Config{Endpoint: *endpoint, Model: *model, APIKey: *apiKey}
	provider := llmhttp.New(providerCfg)

	caps := workflow.Capabilities{
		Classifier: provider,
		Context:    provider,
		DataQuery: llmhttp.New(providerCfg, llmhttp.WithSystemPrompt(
			"Answer the user's question about the data. Use the document tools when you need to look anything up.")),
		CodeGenerator: llmhttp.New(providerCfg, llmhttp.WithSystemPrompt(
			"Write a complete python script that answers the user's question. Reply with the code only.")),
		CodeExecutor: llmhttp.New(providerCfg, llmhttp.WithSystemPrompt(
			"Run the provided script with the run_script tool and answer from its output.")),
		Summarizer: provider,
		Reformat:   provider,
	}

	wf, err := workflow.New(*cfg, caps, registry)
	if err != nil {
		log.Fatalf("Failed to create workflow: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *stream {
		runStream(ctx, wf, *query, *sessionID)
		return
	}

	result, err := wf.Invoke(ctx, *query, *sessionID)
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	printOutcome(result.Generation, result.Error)
	fmt.Printf("\nSession: %s\nRun: %s\nSteps: %d\n", result.SessionID, result.RunID, result.Steps)
}

func runStream(ctx context.Context, wf *workflow.Workflow, query, sessionID string) {
	for ev := range wf.Stream(ctx, query, sessionID) {
		if ev.State == nil {
			fmt.Printf("step: %s\n", ev.Step)
			continue
		}
		if ev.Err != nil {
			log.Fatalf("Run failed: %v", ev.Err)
		}
		printOutcome(ev.State.Generation, ev.State.Error)
		fmt.Printf("\nSession: %s\nRun: %s\n", ev.State.SessionID, ev.State.RunID)
	}
}

func printOutcome(generation, errText string) {
	switch {
	case errText != "":
		fmt.Printf("Error: %s\n", errText)
	case generation != "":
		fmt.Printf("Answer: %s\n", generation)
	default:
		fmt.Println("No answer: the query loop reached its call limit.")
	}
}
