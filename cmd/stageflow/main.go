// Copyright 2026 Stageflow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command stageflow runs multi-stage LLM scenarios from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	stageflow "github.com/stageflow-ai/stageflow"
	"github.com/stageflow-ai/stageflow/pkg/config"
	"github.com/stageflow-ai/stageflow/pkg/contextstore"
	"github.com/stageflow-ai/stageflow/pkg/functions"
	"github.com/stageflow-ai/stageflow/pkg/knowledge"
	"github.com/stageflow-ai/stageflow/pkg/llm"
	"github.com/stageflow-ai/stageflow/pkg/logger"
	"github.com/stageflow-ai/stageflow/pkg/orchestrator"
	"github.com/stageflow-ai/stageflow/pkg/scenario"
	"github.com/stageflow-ai/stageflow/pkg/scenario/store"
	"github.com/stageflow-ai/stageflow/pkg/schema"
)

type CLI struct {
	Config    string `name:"config" short:"c" help:"Path to the configuration file." default:"stageflow.yaml" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `name:"log-format" help:"Log format (simple, verbose)." default:"simple"`
	LogFile   string `name:"log-file" help:"Write logs to a file instead of stderr." type:"path"`

	Run      RunCmd      `cmd:"" help:"Execute a scenario end to end."`
	Stage    StageCmd    `cmd:"" help:"Execute a single stage of a scenario."`
	List     ListCmd     `cmd:"" help:"List the scenarios the configured stores hold."`
	Validate ValidateCmd `cmd:"" help:"Validate scenario definition files without executing them."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	fmt.Println(stageflow.GetVersion().String())
	return nil
}

type RunCmd struct {
	Scenario string `arg:"" help:"Scenario name."`
	Session  string `name:"session" help:"Session id. A fresh one is generated when omitted."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApp(ctx, cli.Config)
	if err != nil {
		return err
	}

	sessionID := c.Session
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	results, err := app.orchestrator.ExecuteScenario(ctx, sessionID, c.Scenario)
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"sessionId": sessionID,
		"scenario":  c.Scenario,
		"stages":    results,
	})
}

type StageCmd struct {
	Scenario string `arg:"" help:"Scenario name."`
	StageID  int    `arg:"" name:"stage-id" help:"Stage id within the scenario."`
	Session  string `name:"session" help:"Session id. A fresh one is generated when omitted."`
}

func (c *StageCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApp(ctx, cli.Config)
	if err != nil {
		return err
	}

	sessionID := c.Session
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	results, err := app.orchestrator.ExecuteStage(ctx, sessionID, c.Scenario, c.StageID)
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"sessionId": sessionID,
		"scenario":  c.Scenario,
		"stage":     c.StageID,
		"results":   results,
	})
}

type ListCmd struct{}

func (c *ListCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApp(ctx, cli.Config)
	if err != nil {
		return err
	}

	if err := app.registry.Refresh(ctx); err != nil {
		return err
	}

	for _, name := range app.registry.ListScenarioNames() {
		fmt.Println(name)
	}
	return nil
}

type ValidateCmd struct {
	Paths []string `arg:"" help:"Scenario definition files to validate." type:"path"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	failed := 0
	for _, path := range c.Paths {
		def, err := scenario.LoadDefinitionFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}

		if errs := scenario.Validate(def); len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintf(os.Stderr, "%s: %s\n", path, e.String())
			}
			failed++
			continue
		}

		fmt.Printf("%s: ok (%s, %d stages)\n", path, def.Name, len(def.Stages))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed validation", failed, len(c.Paths))
	}
	return nil
}

// app holds the assembled runtime components.
type app struct {
	cfg          *config.Config
	registry     *scenario.Registry
	orchestrator *orchestrator.Orchestrator
}

func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}

	items, err := buildContextStore(cfg)
	if err != nil {
		return nil, err
	}

	funcs := functions.NewRegistry()
	if cfg.Knowledge.Enabled {
		knowledgeStore, err := knowledge.NewStore(knowledge.Config{
			Collection:  cfg.Knowledge.Collection,
			PersistPath: cfg.Knowledge.PersistPath,
			Compress:    cfg.Knowledge.Compress,
		})
		if err != nil {
			return nil, err
		}
		if err := knowledgeStore.RegisterSearchFunction(funcs); err != nil {
			return nil, err
		}
	}

	registry, err := buildScenarioRegistry(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		OrganizationID: cfg.LLM.OrganizationID,
		ProjectID:      cfg.LLM.ProjectID,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		MaxRetries:     cfg.LLM.MaxRetries,
	})
	adapter := llm.NewAdapter(client, funcs,
		llm.WithParallelToolCalls(cfg.LLM.AllowParallelToolCalls),
		llm.WithSupportedModels(cfg.LLM.SupportedModels...),
		llm.WithTurnStore(items),
	)

	return &app{
		cfg:          cfg,
		registry:     registry,
		orchestrator: orchestrator.New(registry, adapter, items),
	}, nil
}

func buildContextStore(cfg *config.Config) (contextstore.Store, error) {
	opts := contextstore.Options{
		KeyPrefix:       cfg.ContextStore.KeyPrefix,
		DefaultTTL:      cfg.ContextStore.DefaultTTL,
		DefaultMaxTurns: cfg.ContextStore.DefaultMaxTurns,
	}

	switch cfg.ContextStore.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.ContextStore.Redis.Addr,
			Password: cfg.ContextStore.Redis.Password,
			DB:       cfg.ContextStore.Redis.DB,
		})
		return contextstore.NewRedis(client, opts)
	default:
		return contextstore.NewMemory(opts)
	}
}

func buildScenarioRegistry(ctx context.Context, cfg *config.Config) (*scenario.Registry, error) {
	schemas := schema.NewRegistry()

	stores := make([]scenario.Store, 0, len(cfg.Scenarios.Paths))
	watched := make([]*store.Filesystem, 0, len(cfg.Scenarios.Paths))
	for _, path := range cfg.Scenarios.Paths {
		fs, err := store.NewFilesystem(path, schemas)
		if err != nil {
			return nil, err
		}
		stores = append(stores, fs)
		watched = append(watched, fs)
	}

	registry, err := scenario.NewRegistry(ctx, stores...)
	if err != nil {
		return nil, err
	}

	if cfg.Scenarios.Watch {
		for _, fs := range watched {
			changes, err := fs.Watch(ctx)
			if err != nil {
				return nil, err
			}
			go func(dir string, changes <-chan struct{}) {
				for range changes {
					if err := registry.Refresh(ctx); err != nil {
						slog.Error("Failed to refresh scenario registry", "dir", dir, "error", err)
					}
				}
			}(fs.Dir(), changes)
		}
	}

	return registry, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func initLogger(cli *CLI) (func(), error) {
	levelStr := cli.LogLevel
	format := cli.LogFormat
	logFile := cli.LogFile

	// The config file's logger section fills in whatever the flags left at
	// their defaults; explicit flags win.
	if cfg, err := config.LoadFile(cli.Config); err == nil {
		if levelStr == "info" && cfg.Logger.Level != "" {
			levelStr = cfg.Logger.Level
		}
		if format == "simple" && cfg.Logger.Format != "" {
			format = cfg.Logger.Format
		}
		if logFile == "" && cfg.Logger.Output != "" && cfg.Logger.Output != "stderr" {
			logFile = cfg.Logger.Output
		}
	}

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}

	output := os.Stderr
	cleanup := func() {}
	if logFile == "stdout" {
		output = os.Stdout
		logFile = ""
	}
	if logFile != "" {
		file, closeFile, err := logger.OpenLogFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = closeFile
	}

	logger.Init(level, output, format)
	return cleanup, nil
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("stageflow"),
		kong.Description("Multi-stage LLM scenario orchestrator"),
		kong.UsageOnError(),
	)

	cleanup, err := initLogger(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
