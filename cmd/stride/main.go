package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rahul/stride/internal/engine"
	"github.com/rahul/stride/internal/gateway"
	"github.com/rahul/stride/internal/governance"
	"github.com/rahul/stride/internal/observability"
	"github.com/rahul/stride/internal/store"
	"github.com/rahul/stride/internal/tools"
	"github.com/rahul/stride/pkg/config"
)

func main() {
	observability.PrintBanner()
	observability.InitializeTerminal()

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	cfg := config.LoadConfig("config.json")

	st, err := store.New(cfg.Memory.Path)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	// Initialize Tools
	registry := tools.NewRegistry()

	searchTool, err := tools.NewSearchTool()
	if err != nil {
		log.Printf("Warning: Failed to initialize search tool: %v", err)
	} else {
		registry.Register(searchTool)
	}

	registry.Register(tools.NewFilesystemTool(cfg.App.Workspace))
	registry.Register(tools.NewScraperTool())
	registry.Register(tools.NewShellTool())
	registry.Register(tools.NewBrowserTool(cfg.Engine.Headless()))
	registry.Register(tools.NewSystemTool())
	registry.Register(tools.NewScheduleTool(st))

	prompts := engine.NewPromptManager("./prompts")

	gov := governance.NewDefaultPolicyEngine()
	// Default safety rules: Block dangerous destructive commands
	_ = gov.DenyArguments(`rm\s+-rf`)
	_ = gov.DenyArguments(`mkfs`)
	_ = gov.DenyArguments(`shutdown`)
	_ = gov.DenyArguments(`reboot`)

	logger := observability.NewLogger()

	// Initialize LLM (using default enabled provider)
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		log.Fatal("No enabled provider found in config")
	}

	var llm llms.Model
	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	default:
		log.Fatalf("Provider %s not yet implemented in main", pName)
	}

	if err != nil {
		log.Fatal(err)
	}

	eng := engine.New(llm, registry, gov, nil, prompts, logger)
	eng.Sink = st
	eng.Checkpoints = st
	applyEngineConfig(eng, cfg.Engine)
	wireCallbacks(eng)

	// Surface guarded waits orphaned by a previous run.
	if cps, err := st.LoadCheckpoints(); err == nil {
		for _, cp := range cps {
			log.Printf("Found suspended authorization from a previous run (task %s, step %d); it was cleared.", cp.TaskID, cp.StepID)
			_ = st.ClearCheckpoint(cp.TaskID)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := engine.NewScheduler(eng, st)
	go scheduler.Start(ctx)

	// Start Live Resource Dashboard (1-second updates)
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.PrintLiveStatus()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
				logger.LogHeartbeat()
			}
		}
	}()

	if tgCfg, ok := cfg.GetTelegramConfig(); ok {
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, eng)
		if err != nil {
			log.Fatal(err)
		}
		eng.Auth = tg
		scheduler.Notify = tg.Notify

		go func() {
			if err := tg.Start(); err != nil {
				log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
				stop()
			}
		}()

		<-ctx.Done()
	} else {
		eng.Auth = gateway.NewConsoleAuthorizer(os.Stdin, os.Stdout)
		runConsole(ctx, eng, cfg.Engine.TemplateDir, stop)
	}

	// Reset terminal aesthetics
	observability.CleanupTerminal()

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("\033[95m[ EXIT ] CORE DE-INITIALIZED. GOODBYE.\033[0m")
}

func applyEngineConfig(eng *engine.Engine, ec config.EngineConfig) {
	if mode, ok := engine.ParseMode(ec.ExecutionMode); ok {
		eng.Options.Mode = mode
	}
	eng.Options.HaltOnStepFailure = ec.HaltOnStepFailure
	eng.Options.RetryFailedStep = ec.RetryFailedStep
	if ec.MaxStepIterations > 0 {
		eng.Options.MaxStepIterations = ec.MaxStepIterations
	}
	if ec.MaxModelRetries > 0 {
		eng.Options.MaxModelRetries = ec.MaxModelRetries
	}
}

func wireCallbacks(eng *engine.Engine) {
	eng.Callbacks = engine.Callbacks{
		OnTaskStart: func(state *engine.GlobalState) {
			observability.SetStatus(observability.PhasePlanning, string(state.Mode()), "")
		},
		OnPlanCreated: func(goal string, steps []*engine.Step) {
			log.Printf("Plan for %q:", goal)
			for _, s := range steps {
				log.Printf("  %d. %s", s.ID, s.Description)
			}
		},
		OnStepStart: func(step *engine.Step) {
			observability.SetStatus(observability.PhaseExecuting, "", step.Description)
		},
		OnPendingAuthorization: func(batch engine.CallBatch) {
			observability.SetStatus(observability.PhaseAwaiting, "", fmt.Sprintf("batch of %d", len(batch.Calls)))
		},
		OnStepConcluded: func(step *engine.Step, report engine.Message) {
			log.Println(report.Content)
		},
		OnTaskDone: func(state *engine.GlobalState) {
			observability.SetStatus(observability.PhaseIdle, "", "")
		},
	}
}

// runConsole is the interactive loop: each line is either an inline
// command or a goal to execute.
func runConsole(ctx context.Context, eng *engine.Engine, templateDir string, stop func()) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("Type a goal, or /mode, /goal, /plan <file>, /quit.")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		cmd, ok := engine.ParseCommand(line)
		if !ok {
			executeGoal(ctx, eng, line)
			continue
		}

		switch c := cmd.(type) {
		case engine.QuitCommand:
			stop()
			return
		case engine.ModeCommand:
			eng.Options.Mode = c.Mode
			fmt.Printf("Execution mode set to %s.\n", c.Mode)
		case engine.GoalCommand:
			executeGoal(ctx, eng, c.Goal)
		case engine.TemplateCommand:
			path := c.Path
			if templateDir != "" && !filepath.IsAbs(path) {
				path = filepath.Join(templateDir, path)
			}
			tpl, err := engine.LoadTemplate(path)
			if err != nil {
				fmt.Printf("Failed to load template: %v\n", err)
				continue
			}
			state, err := eng.RunTemplate(ctx, tpl)
			reportOutcome(state, err)
		default:
			fmt.Println("Unrecognized command. Use /mode, /goal, /plan, /quit.")
		}
	}
}

func executeGoal(ctx context.Context, eng *engine.Engine, goal string) {
	state, err := eng.RunTask(ctx, goal)
	reportOutcome(state, err)
}

func reportOutcome(state *engine.GlobalState, err error) {
	if err != nil {
		fmt.Printf("Task error: %v\n", err)
		return
	}
	if state.Failed {
		fmt.Println("Task finished with a failed step.")
	}
	if last, ok := state.History.Last(engine.RoleAssistant); ok {
		fmt.Println(last.Content)
	}
}
