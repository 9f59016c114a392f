// Command ordermesh runs the purchase-order agent pipeline.
//
// Usage:
//
//	ordermesh serve --role processing --config config.yaml
//	ordermesh run --text "Order 3 boxes of paper from ..." --config config.yaml
//	ordermesh card --role intake
//	ordermesh card --url http://localhost:8080
//	ordermesh version
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/ordermesh/ordermesh/internal/agents"
	"github.com/ordermesh/ordermesh/pkg/a2a"
	"github.com/ordermesh/ordermesh/pkg/agent"
	"github.com/ordermesh/ordermesh/pkg/config"
	"github.com/ordermesh/ordermesh/pkg/logger"
	"github.com/ordermesh/ordermesh/pkg/model"
	"github.com/ordermesh/ordermesh/pkg/purchaseorder"
	"github.com/ordermesh/ordermesh/pkg/task"
	"github.com/ordermesh/ordermesh/pkg/workflow"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start one pipeline agent as an A2A server."`
	Run     RunCmd     `cmd:"" help:"Run a request through the full pipeline."`
	Card    CardCmd    `cmd:"" help:"Print an agent's capability card."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (text or json)." default:"text"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("ordermesh"),
		kong.Description("Multi-agent purchase order pipeline speaking the A2A protocol."),
		kong.UsageOnError(),
	)

	if err := initLogging(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initLogging(cli *CLI) error {
	output := os.Stderr
	if cli.LogFile != "" {
		f, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		_ = cleanup // held for process lifetime
		output = f
	}
	logger.Init(logger.ParseLevel(cli.LogLevel), output, cli.LogFormat)
	return nil
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ============================================================================
// VERSION
// ============================================================================

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(*CLI) error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("ordermesh version %s\n", version)
	return nil
}

// ============================================================================
// SERVE
// ============================================================================

// ServeCmd starts one pipeline agent as an A2A server.
type ServeCmd struct {
	Role string `help:"Which agent to serve: intake, processing, or data." enum:"intake,processing,data" required:""`
	Port int    `help:"Port to listen on (overrides config)." default:"0"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	baseURL := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	ag, err := buildAgent(cfg, c.Role, baseURL)
	if err != nil {
		return err
	}

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	mgr := task.NewManager(ag.Card(), store, task.ExecutorFunc(ag.Execute), task.ManagerConfig{})
	srv := a2a.NewServer(a2a.ServerConfig{Host: cfg.Server.Host, Port: cfg.Server.Port}, mgr)
	return srv.Start(ctx)
}

func buildStore(cfg *config.Config) (task.Store, error) {
	if cfg.Store.Driver == "sqlite" {
		return task.NewSQLStore(cfg.Store.Path)
	}
	return task.NewMemoryStore(), nil
}

func buildModel(cfg *config.Config) (model.LLM, error) {
	if !cfg.Model.Configured() {
		return nil, nil
	}
	return model.NewOpenAI(model.OpenAIConfig{
		BaseURL:    cfg.Model.BaseURL,
		APIKey:     cfg.Model.APIKey,
		Model:      cfg.Model.Model,
		Deployment: cfg.Model.Deployment,
		APIVersion: cfg.Model.APIVersion,
	})
}

func buildAgent(cfg *config.Config, role, baseURL string) (agent.Agent, error) {
	switch role {
	case "intake":
		llm, err := buildModel(cfg)
		if err != nil {
			return nil, err
		}
		if llm == nil {
			return nil, fmt.Errorf("the intake agent requires a configured model")
		}
		return agents.NewIntake(agents.IntakeCard(baseURL), llm)
	case "processing":
		llm, err := buildModel(cfg)
		if err != nil {
			return nil, err
		}
		return agents.NewProcessing(agents.ProcessingCard(baseURL), llm), nil
	case "data":
		return agents.NewData(agents.DataCard(baseURL), purchaseorder.NewLedger(cfg.Ledger.Path)), nil
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
}

// ============================================================================
// RUN
// ============================================================================

// RunCmd drives a request through the full pipeline: intake, processing,
// then data. Peers configured with URLs are resolved over the network;
// unset peers run in process.
type RunCmd struct {
	Text string `help:"Free-text purchasing request for the intake agent."`
	File string `help:"Path to a JSON purchase order to feed past intake." type:"path"`
}

func (c *RunCmd) Run(cli *CLI) error {
	if (c.Text == "") == (c.File == "") {
		return fmt.Errorf("exactly one of --text or --file is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	stages, err := buildStages(ctx, cfg, c.File != "")
	if err != nil {
		return err
	}

	wf, err := workflow.NewSequential(stages...)
	if err != nil {
		return err
	}

	var input a2a.Message
	if c.Text != "" {
		input = a2a.NewUserMessage(c.Text)
	} else {
		raw, err := os.ReadFile(c.File)
		if err != nil {
			return fmt.Errorf("reading %s: %w", c.File, err)
		}
		po, err := purchaseorder.Decode(raw)
		if err != nil {
			return err
		}
		part, err := a2a.JSONPart(po)
		if err != nil {
			return err
		}
		input = a2a.NewAgentMessage(part)
		input.Role = a2a.MessageRoleUser
	}

	if err := wf.Post(input); err != nil {
		return err
	}
	wf.Signal()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range wf.Events() {
			printEvent(ev)
		}
	}()

	final, err := wf.Run(ctx)
	<-done
	if err != nil {
		return err
	}
	fmt.Println(a2a.ExtractAllText(*final))
	return nil
}

// buildStages assembles the pipeline. skipIntake drops the intake stage
// when the caller already has a structured order.
func buildStages(ctx context.Context, cfg *config.Config, skipIntake bool) ([]agent.Agent, error) {
	client := a2a.NewClient(nil)
	var stages []agent.Agent

	stage := func(url, role string) (agent.Agent, error) {
		if url != "" {
			return agent.NewRemote(ctx, client, url)
		}
		return buildAgent(cfg, role, "local://"+role)
	}

	if !skipIntake {
		intake, err := stage(cfg.Peers.Intake, "intake")
		if err != nil {
			return nil, err
		}
		stages = append(stages, intake)
	}
	processing, err := stage(cfg.Peers.Processing, "processing")
	if err != nil {
		return nil, err
	}
	data, err := stage(cfg.Peers.Data, "data")
	if err != nil {
		return nil, err
	}
	return append(stages, processing, data), nil
}

func printEvent(ev workflow.Event) {
	switch ev.Kind {
	case workflow.EventAgentDelta:
		fmt.Printf("[%s] %s\n", ev.Stage, ev.Text)
	case workflow.EventToolCall:
		fmt.Printf("[%s] tool: %s\n", ev.Stage, ev.Tool)
	case workflow.EventStageComplete:
		fmt.Printf("[%s] done\n", ev.Stage)
	case workflow.EventFailed:
		fmt.Printf("[%s] failed: %s\n", ev.Stage, ev.Err)
	}
}

// ============================================================================
// CARD
// ============================================================================

// CardCmd prints an agent's capability card as JSON: built locally from a
// role, or fetched live from a running agent's well-known endpoint.
type CardCmd struct {
	Role string `help:"Build the card locally: intake, processing, or data."`
	URL  string `help:"Fetch the card from a running agent at this base URL."`
}

func (c *CardCmd) Run(*CLI) error {
	if (c.Role == "") == (c.URL == "") {
		return fmt.Errorf("exactly one of --role or --url is required")
	}

	card, err := resolveCard(c.Role, c.URL)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(card)
}

func resolveCard(role, url string) (*a2a.AgentCard, error) {
	if url != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a2a.NewClient(nil).ResolveCard(ctx, url)
	}
	switch role {
	case "intake":
		return agents.IntakeCard("http://localhost:8080"), nil
	case "processing":
		return agents.ProcessingCard("http://localhost:8080"), nil
	case "data":
		return agents.DataCard("http://localhost:8080"), nil
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
}
