package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/flowc/pkg/compiler"
	"github.com/ravi-parthasarathy/flowc/pkg/engineapi"
	"github.com/ravi-parthasarathy/flowc/pkg/linker"
	"github.com/ravi-parthasarathy/flowc/pkg/provision"
	"github.com/ravi-parthasarathy/flowc/pkg/server"
	"github.com/ravi-parthasarathy/flowc/pkg/store"
	"github.com/ravi-parthasarathy/flowc/pkg/store/postgres"
	"github.com/ravi-parthasarathy/flowc/pkg/workflow"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		logLevel  string
		logFormat string
		envFile   string
	)

	root := &cobra.Command{
		Use:   "flowc",
		Short: "flowc: voice agent flow compiler",
		Long: `flowc compiles visual conversation flows into voice engine workflows.

Flows are read from editor JSON or Graphviz DOT. Condition nodes are folded
into guarded edges, tools are linked against the engine, and agents are
provisioned in two phases.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}
			return initLogger(logLevel, logFormat)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "environment file to load")

	root.AddCommand(compileCmd())
	root.AddCommand(lintCmd())
	root.AddCommand(graphCmd())
	root.AddCommand(linkCmd())
	root.AddCommand(provisionCmd())
	root.AddCommand(serveCmd())
	return root
}

// ─── compile ──────────────────────────────────────────────────────────────────

func compileCmd() *cobra.Command {
	var (
		format    string
		outPath   string
		formsPath string
	)

	cmd := &cobra.Command{
		Use:   "compile <flow>",
		Short: "Compile a flow into an engine workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := compileFile(args[0], formsPath)
			if err != nil {
				return err
			}
			reportWarnings(res)

			var out []byte
			switch strings.ToLower(format) {
			case "json", "":
				if out, err = json.MarshalIndent(res, "", "  "); err != nil {
					return fmt.Errorf("encode result: %w", err)
				}
				out = append(out, '\n')
			case "dot":
				s, err := workflow.RenderDOT(res.Workflow, "workflow")
				if err != nil {
					return err
				}
				out = []byte(s)
			case "text":
				out = []byte(workflow.RenderText(res.Workflow))
			default:
				return fmt.Errorf("unknown format %q: use json, dot or text", format)
			}
			return writeOutput(cmd.OutOrStdout(), outPath, out)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format: json, dot or text")
	cmd.Flags().StringVar(&outPath, "out", "", "write output to this file instead of stdout")
	cmd.Flags().StringVar(&formsPath, "forms", "", "JSON file with form definitions")
	return cmd
}

// ─── lint ─────────────────────────────────────────────────────────────────────

func lintCmd() *cobra.Command {
	var formsPath string

	cmd := &cobra.Command{
		Use:   "lint <flow>",
		Short: "Compile a flow and validate the result without provisioning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := compileFile(args[0], formsPath)
			if err != nil {
				return err
			}
			reportWarnings(res)
			if lintErr := workflow.ValidateErr(res.Workflow); lintErr != nil {
				return lintErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: workflow is valid (%d nodes, %d edges)\n",
				len(res.Workflow.Nodes), len(res.Workflow.Edges))
			return nil
		},
	}
	cmd.Flags().StringVar(&formsPath, "forms", "", "JSON file with form definitions")
	return cmd
}

// ─── link ─────────────────────────────────────────────────────────────────────

func linkCmd() *cobra.Command {
	var (
		formsPath string
		cachePath string
		outPath   string
	)

	cmd := &cobra.Command{
		Use:   "link <flow>",
		Short: "Register the flow's webhook tools and print the resolved handles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			res, err := compileFile(args[0], formsPath)
			if err != nil {
				return err
			}
			reportWarnings(res)

			ctx := signalContext(cmd.Context())
			l, done, err := buildLinker(ctx, cfg, cachePath)
			if err != nil {
				return err
			}
			defer done()

			handles := l.RegisterAndRewrite(ctx, linker.WebhookTools(res.Features), res.Workflow)
			names := make([]string, 0, len(handles))
			for name := range handles {
				names = append(names, name)
			}
			sort.Strings(names)
			w := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintf(w, "%s\t%s\n", name, handles[name])
			}
			if outPath == "" {
				return nil
			}
			data, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			return writeOutput(w, outPath, data)
		},
	}
	cmd.Flags().StringVar(&formsPath, "forms", "", "JSON file with form definitions")
	cmd.Flags().StringVar(&cachePath, "cache", "", "tool handle cache snapshot file (ignored when REDIS_ADDR is set)")
	cmd.Flags().StringVar(&outPath, "out", "", "write the linked compile result to this file")
	return cmd
}

// ─── provision ────────────────────────────────────────────────────────────────

func provisionCmd() *cobra.Command {
	var (
		name      string
		prompt    string
		formsPath string
		cachePath string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "provision <flow>",
		Short: "Create a voice agent from a flow (two-phase)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			res, err := compileFile(args[0], formsPath)
			if err != nil {
				return err
			}
			reportWarnings(res)

			ctx := signalContext(cmd.Context())
			client, err := engineClient(cfg)
			if err != nil {
				return err
			}
			l, done, err := buildLinkerWith(ctx, cfg, cachePath, client)
			if err != nil {
				return err
			}
			defer done()

			p := provision.New(client, l, cfg.PlatformURL, slog.Default())
			agentID, err := p.Provision(ctx, provision.AgentSpec{
				Name:   name,
				Prompt: prompt,
				Result: res,
				Force:  force,
			})
			if agentID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "agent: %s\n", agentID)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "agent name")
	cmd.Flags().StringVar(&prompt, "prompt", "", "base system prompt for the agent")
	cmd.Flags().StringVar(&formsPath, "forms", "", "JSON file with form definitions")
	cmd.Flags().StringVar(&cachePath, "cache", "", "tool handle cache snapshot file (ignored when REDIS_ADDR is set)")
	cmd.Flags().BoolVar(&force, "force", false, "provision even if the workflow fails validation")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// ─── serve ────────────────────────────────────────────────────────────────────

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the compile API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := signalContext(cmd.Context())

			var st store.Store
			if cfg.DatabaseURL != "" {
				pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer pool.Close()
				pg := postgres.New(pool)
				if err := pg.CreateSchema(ctx); err != nil {
					return fmt.Errorf("create schema: %w", err)
				}
				st = pg
			} else {
				slog.Warn("DATABASE_URL not set: flow storage routes are disabled")
			}

			srv := server.New(st, slog.Default())
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Listen(addr) }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func compileFile(flowPath, formsPath string) (*compiler.Result, error) {
	g, err := loadFlow(flowPath)
	if err != nil {
		return nil, err
	}
	catalog, err := loadForms(formsPath)
	if err != nil {
		return nil, err
	}
	res, err := compiler.Compile(g, compiler.WithForms(catalog))
	if err != nil {
		return nil, err
	}
	slog.Debug("flow compiled",
		"flow", flowPath,
		"nodes", len(res.Workflow.Nodes),
		"edges", len(res.Workflow.Edges),
		"valid", res.Validation.Valid)
	return res, nil
}

func reportWarnings(res *compiler.Result) {
	for _, w := range res.Warnings {
		slog.Warn("compile warning", "detail", w)
	}
}

func engineClient(cfg appConfig) (*engineapi.Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("FLOWC_API_KEY is not set")
	}
	return engineapi.New(engineapi.Config{
		BaseURL:    cfg.EngineURL,
		APIKey:     cfg.APIKey,
		AuthHeader: cfg.AuthHeader,
		Logger:     slog.Default(),
	})
}

func buildLinker(ctx context.Context, cfg appConfig, cachePath string) (*linker.Linker, func(), error) {
	client, err := engineClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return buildLinkerWith(ctx, cfg, cachePath, client)
}

// buildLinkerWith picks the cache: Redis when configured, otherwise an
// in-memory cache optionally persisted to cachePath. The returned func
// releases the cache and saves the snapshot.
func buildLinkerWith(ctx context.Context, cfg appConfig, cachePath string, reg linker.Registry) (*linker.Linker, func(), error) {
	opts := []linker.Option{linker.WithWorkspace(cfg.Workspace), linker.WithLogger(slog.Default())}

	if cfg.RedisAddr != "" {
		client, err := linker.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, linker.WithCache(linker.NewRedisCache(client, "")))
		return linker.New(reg, opts...), func() { _ = client.Close() }, nil
	}

	cache := linker.NewMemoryCache()
	if cachePath != "" {
		loaded, err := linker.LoadSnapshot(cachePath)
		switch {
		case err == nil:
			cache = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, nil, err
		}
	}
	done := func() {
		if cachePath == "" {
			return
		}
		if err := cache.SaveSnapshot(cachePath); err != nil {
			slog.Warn("could not save tool cache", "path", cachePath, "err", err)
		}
	}
	return linker.New(reg, append(opts, linker.WithCache(cache))...), done, nil
}

// writeOutput writes data to path, or to w when path is empty.
func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		select {
		case <-ch:
			fmt.Fprintln(os.Stderr, "\n[flowc] interrupted, cancelling")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
