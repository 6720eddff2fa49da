// Command flowmesh runs workflow documents from the command line: execute a
// workflow against a trigger payload, validate a document, render its graph,
// or browse stored run history.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/flowmesh/flowmesh/internal/diagram"
	"github.com/flowmesh/flowmesh/internal/engine"
	"github.com/flowmesh/flowmesh/internal/logging"
	"github.com/flowmesh/flowmesh/internal/nodes"
	"github.com/flowmesh/flowmesh/internal/runtime"
	"github.com/flowmesh/flowmesh/internal/secrets"
	"github.com/flowmesh/flowmesh/internal/store"
	"github.com/flowmesh/flowmesh/internal/streaming"
	"github.com/flowmesh/flowmesh/internal/validation"
	"github.com/flowmesh/flowmesh/pkg/schema"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(cfg, logger, os.Args[2:])
	case "validate":
		err = cmdValidate(os.Args[2:])
	case "graph":
		err = cmdGraph(os.Args[2:])
	case "runs":
		err = cmdRuns(cfg, os.Args[2:])
	case "secret":
		err = cmdSecret(cfg, os.Args[2:])
	case "version":
		printVersion()
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: flowmesh <command> [args]

commands:
  run <workflow.json>       execute a workflow (--follow streams events)
  validate <workflow.json>  check a workflow document
  graph <workflow.json>     render the workflow as a Mermaid flowchart
  runs [get|rm <id>]        browse stored run history
  secret <set|ls|rm> [...]  manage vault secrets
  version                   print the version`)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func cmdRun(cfg Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	triggerPath := fs.String("trigger", "", "path to a JSON trigger payload")
	parallel := fs.Bool("parallel", cfg.Parallel, "execute independent nodes concurrently")
	noStore := fs.Bool("no-store", false, "skip persisting the run result")
	follow := fs.Bool("follow", false, "stream run events to stderr as they happen")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("run: expected exactly one workflow file")
	}

	wf, err := loadWorkflow(fs.Arg(0))
	if err != nil {
		return err
	}

	var trigger any
	if *triggerPath != "" {
		data, err := os.ReadFile(*triggerPath)
		if err != nil {
			return fmt.Errorf("read trigger: %w", err)
		}
		if err := json.Unmarshal(data, &trigger); err != nil {
			return fmt.Errorf("parse trigger: %w", err)
		}
	}

	registry, err := nodes.BuiltinRegistry()
	if err != nil {
		return err
	}

	opts := engine.Options{
		Parallel: *parallel,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
	}
	if cfg.SandboxTimeout != "" {
		if d, err := time.ParseDuration(cfg.SandboxTimeout); err == nil {
			opts.SandboxTimeout = d
		}
	}

	ctx := context.Background()

	if !*noStore {
		db, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		opts.Recorder = db

		if cfg.VaultKey != "" {
			vault, err := openVault(cfg, db)
			if err != nil {
				return err
			}
			opts.Vault = vault
		}
	}

	var stopFollow func()
	if *follow {
		hub := streaming.NewMemoryHub(0)
		opts.Hub = hub
		events, cancelSub, err := hub.Subscribe(ctx, streaming.EventFilter{})
		if err != nil {
			return err
		}
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range events {
				line, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				fmt.Fprintln(os.Stderr, string(line))
			}
		}()
		// Unsubscribing closes the channel; the printer drains what is
		// buffered and exits.
		stopFollow = func() {
			cancelSub()
			<-done
		}
	}

	xctx := &runtime.ExecutionContext{
		HTTP:   runtime.NewClient(runtime.HTTPConfig{}),
		Logger: logger,
	}

	executor := engine.New(registry, opts)
	result := executor.Execute(ctx, wf, trigger, xctx)
	if stopFollow != nil {
		stopFollow()
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if result.Status != schema.RunStatusSuccess {
		os.Exit(1)
	}
	return nil
}

func cmdValidate(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("validate: expected exactly one workflow file")
	}

	wf, err := loadWorkflow(args[0])
	if err != nil {
		return err
	}

	registry, err := nodes.BuiltinRegistry()
	if err != nil {
		return err
	}

	validator, err := validation.New(registry)
	if err != nil {
		return err
	}

	result := validator.Validate(wf)
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !result.Valid() {
		os.Exit(1)
	}
	return nil
}

func cmdGraph(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("graph: expected exactly one workflow file")
	}

	wf, err := loadWorkflow(args[0])
	if err != nil {
		return err
	}

	fmt.Print(diagram.RenderMermaid(wf, nil))
	return nil
}

func cmdRuns(cfg Config, args []string) error {
	ctx := context.Background()

	if len(args) > 0 && (args[0] == "get" || args[0] == "rm") {
		if len(args) != 2 {
			return fmt.Errorf("runs %s: expected exactly one run id", args[0])
		}
		db, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if args[0] == "rm" {
			return db.DeleteRun(ctx, args[1])
		}
		run, err := db.GetRun(ctx, args[1])
		if err != nil {
			return err
		}
		return printJSON(run)
	}

	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "maximum number of runs to list")
	status := fs.String("status", "", "filter by status (success|failed)")
	_ = fs.Parse(args)

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(ctx, store.RunFilter{
		Status: schema.RunStatus(*status),
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	return printJSON(runs)
}

func cmdSecret(cfg Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("secret: expected set, ls, or rm")
	}

	ctx := context.Background()
	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	vault, err := openVault(cfg, db)
	if err != nil {
		return err
	}

	switch args[0] {
	case "set":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("secret set: expected <KEY> [value] (value read from stdin when omitted)")
		}
		value := ""
		if len(args) == 3 {
			value = args[2]
		} else {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("read secret value: %w", err)
			}
			value = strings.TrimRight(string(data), "\r\n")
		}
		if value == "" {
			return fmt.Errorf("secret set: empty value")
		}
		return vault.Store(ctx, args[1], []byte(value))
	case "ls":
		keys, err := vault.List(ctx)
		if err != nil {
			return err
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	case "rm":
		if len(args) != 2 {
			return fmt.Errorf("secret rm: expected exactly one key")
		}
		return vault.Delete(ctx, args[1])
	default:
		return fmt.Errorf("secret: unknown subcommand %q", args[0])
	}
}

// openVault builds the AES vault over the store. The passphrase comes from
// the environment only, never from settings.json.
func openVault(cfg Config, db *store.LibSQLStore) (secrets.Vault, error) {
	if cfg.VaultKey == "" {
		return nil, fmt.Errorf("vault: FLOWMESH_VAULT_KEY is not set")
	}
	return secrets.NewAESVault(db, secrets.VaultConfig{
		Passphrase: cfg.VaultKey,
		Salt:       []byte(cfg.VaultSalt),
	})
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func openStore(ctx context.Context, cfg Config) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(flowmeshDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func loadWorkflow(path string) (*schema.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	var wf schema.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse workflow: %w", err)
	}
	return &wf, nil
}
