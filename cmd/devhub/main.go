package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"devhub/internal/app"
	"devhub/internal/audit"
	"devhub/internal/config"
	"devhub/internal/dbctx"
	"devhub/internal/domain"
	"devhub/internal/migrate"
	"devhub/internal/repo"
	"devhub/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "devhub",
	Short: "devhub CLI",
	Long: `devhub manages the records of a development team: staff, applications, projects with
their related apps, timelines, configs and templates, and reusable material components
and templates.

Every module supports list, show, delete, import and export. Imports and exports use
XLSX workbooks with two title rows above the header row. 'devhub serve' exposes the same
operations over HTTP with a {code, message, data} envelope.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DEVHUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", config.FileName, "config file")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier recorded on changes")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(staffCmd())
	rootCmd.AddCommand(appCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(materialCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(auditCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage the config file"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var workspace string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if workspace != "" {
				path = config.Path(workspace)
			}
			cfg, err := config.FromYAML([]byte(config.GenerateDefault(workspace)))
			if err != nil {
				return err
			}
			if err := config.Write(path, cfg); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace directory for the config and sqlite file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return err
			}
			cfg.Auth.JWTSecret = redact(cfg.Auth.JWTSecret)
			for i := range cfg.Webhooks {
				cfg.Webhooks[i].Secret = redact(cfg.Webhooks[i].Secret)
			}
			return printJSON(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("config")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				v, err := migrate.Version(rt.DB)
				if err != nil {
					return err
				}
				fmt.Printf("schema at version %d\n", v)
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				cfg := rt.Config
				if addr == "" {
					addr = cfg.Server.Addr
				}
				if basePath == "" {
					basePath = cfg.Server.BasePath
				}
				authCfg := server.AuthConfig{
					JWTSecret:              cfg.Auth.JWTSecret,
					AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
					EnforcePermissions:     cfg.Auth.EnforcePermissions,
					DevLogin:               cfg.Auth.DevLogin,
					Logger:                 rt.Log,
				}
				if authCfg.JWTSecret == "" {
					if authCfg.DevLogin {
						return fmt.Errorf("auth.jwt_secret is required when auth.dev_login is enabled")
					}
					rt.Log.Warn("auth.jwt_secret is empty; bearer tokens are rejected")
				}
				handler, err := server.New(server.Config{Engine: rt.Engine, BasePath: basePath, Auth: authCfg, Log: rt.Log})
				if err != nil {
					return err
				}
				if server.StartWebhooks(ctx, rt.Engine.Events, cfg.Webhooks, rt.Log) {
					rt.Log.Info("webhook dispatcher started", "webhooks", len(cfg.Webhooks))
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				rt.Log.Info("serving devhub API", "addr", addr, "base_path", basePath)
				fmt.Printf("Serving devhub API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apiKeyCreateCmd())
	cmd.AddCommand(apiKeyListCmd())
	cmd.AddCommand(apiKeyRevokeCmd())
	return cmd
}

func apiKeyCreateCmd() *cobra.Command {
	var actor, name string
	var perms []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(actor) == "" {
				return fmt.Errorf("--actor required")
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				key := "dh_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				rec := domain.APIKey{
					ID:          uuid.NewString(),
					ActorID:     actor,
					Name:        name,
					KeyHash:     repo.HashAPIKey(key),
					Permissions: strings.Join(perms, ","),
					CreatedAt:   time.Now().UTC(),
				}
				if err := rt.Engine.Repo.InsertAPIKey(dbctx.New(ctx), rec); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": rec.ID, "key": key})
				}
				fmt.Printf("API key %s created for %s\n%s\n", rec.ID, actor, key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "label")
	cmd.Flags().StringSliceVar(&perms, "permission", nil, "granted permission, e.g. staff:list or project:* (repeatable)")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				keys, err := rt.Engine.Repo.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable("ID", "Actor", "Name", "Permissions", "Created")
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.Permissions, k.CreatedAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor filter")
	return cmd
}

func apiKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				return rt.Engine.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func auditCmd() *cobra.Command {
	a := &cobra.Command{Use: "audit", Short: "Audit log"}
	a.AddCommand(auditTailCmd())
	return a
}

func auditTailCmd() *cobra.Command {
	var n int
	var f audit.Filter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				events, _, err := rt.Engine.Events.List(dbctx.New(ctx), f, n, 0)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "Time", "Module", "Action", "Entity", "Actor")
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS.Format(time.RFC3339), e.Module, e.Action, e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Module, "module", "", "module filter")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity filter")
	cmd.Flags().StringVar(&f.ActorID, "actor", "", "actor filter")
	return cmd
}

// --- helpers ---

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(ctx, app.Options{ConfigPath: viper.GetString("config")})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func actorID() string {
	return viper.GetString("actor-id")
}

func newTable(headers ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(headers))
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
