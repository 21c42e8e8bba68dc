package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/schoolworks/maintenance-desk/internal/auth"
	"github.com/schoolworks/maintenance-desk/internal/config"
	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/observability"
	"github.com/schoolworks/maintenance-desk/internal/persistence"
	"github.com/schoolworks/maintenance-desk/internal/repository"
	"github.com/schoolworks/maintenance-desk/internal/service"
)

// cliActor is the identity used for administrative writes made from the CLI.
var cliActor = &domain.Actor{
	Identity: domain.Identity{ID: "smcctl", Name: "smcctl"},
	Role:     domain.RoleAdmin,
}

var rootCmd = &cobra.Command{
	Use:   "smcctl",
	Short: "School maintenance desk administration",
	Long: `smcctl manages the maintenance desk database directly: seeding reference
data, granting roles, issuing development tokens and reporting workload.
Settings come from the same environment variables as the API server.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("postgres-dsn", "", "postgres connection string (env POSTGRES_DSN)")
	rootCmd.PersistentFlags().String("auth-jwt-secret", "dev-secret", "token signing secret (env AUTH_JWT_SECRET)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (env LOG_LEVEL)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("postgres-dsn", rootCmd.PersistentFlags().Lookup("postgres-dsn"))
	_ = viper.BindPFlag("auth-jwt-secret", rootCmd.PersistentFlags().Lookup("auth-jwt-secret"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(workloadCmd())
	rootCmd.AddCommand(grantCmd())
	rootCmd.AddCommand(hashKeyCmd())
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the default categories and locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPostgres(cmd.Context(), func(pg *persistence.Postgres, _ *zap.Logger) error {
				catalog := service.NewCatalogService(repository.NewCatalogRepository(pg.Pool))
				added, err := catalog.Seed(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("seeded %d reference records\n", added)
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var identity domain.Identity
	var ttl int
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if identity.ID == "" {
				return errors.New("--id is required")
			}
			tokens := auth.NewTokenManager(viper.GetString("auth-jwt-secret"), ttl)
			token, expires, err := tokens.GenerateToken(identity)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": token, "expires_at": expires})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity.ID, "id", "", "identity provider user id")
	cmd.Flags().StringVar(&identity.Email, "email", "", "email address")
	cmd.Flags().StringVar(&identity.Name, "name", "", "display name")
	cmd.Flags().IntVar(&ttl, "ttl-minutes", 60, "token lifetime")
	return cmd
}

func workloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workload",
		Short: "Print tickets per assignee",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPostgres(cmd.Context(), func(pg *persistence.Postgres, logger *zap.Logger) error {
				roles := service.NewRoleService(service.RoleDependencies{RoleRepo: repository.NewRoleRepository(pg.Pool), Logger: logger})
				catalog := service.NewCatalogService(repository.NewCatalogRepository(pg.Pool))
				analytics := service.NewAnalyticsService(repository.NewTicketRepository(pg.Pool), roles, catalog, nil)
				rows, err := analytics.Workload(cmd.Context(), cliActor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Assignee", "New", "In progress", "Paused", "Completed", "Avg hours"})
				for _, r := range rows {
					tw.AppendRow(table.Row{r.AssigneeName, r.New, r.InProgress, r.Paused, r.Completed, r.AverageResolutionHours})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func grantCmd() *cobra.Command {
	var input service.SetRoleInput
	var role string
	cmd := &cobra.Command{
		Use:   "grant <user-id>",
		Short: "Set a user's role (staff, supervisor or admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input.UserID = args[0]
			input.Role = domain.Role(strings.ToLower(role))
			return withPostgres(cmd.Context(), func(pg *persistence.Postgres, logger *zap.Logger) error {
				roles := service.NewRoleService(service.RoleDependencies{RoleRepo: repository.NewRoleRepository(pg.Pool), Logger: logger})
				record, err := roles.SetRole(cmd.Context(), cliActor, input)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(record)
				}
				fmt.Printf("%s (%s) is now %s\n", record.ID, record.Email, record.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStaff), "role to grant")
	cmd.Flags().StringVar(&input.Email, "email", "", "email address")
	cmd.Flags().StringVar(&input.Name, "name", "", "display name")
	return cmd
}

func hashKeyCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-ingest-key <key>",
		Short: "Hash a mail relay key for INGEST_API_KEY_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hashed, err := auth.HashIngestKey(args[0], cost)
			if err != nil {
				return err
			}
			fmt.Println(hashed)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (default 10)")
	return cmd
}

func withPostgres(ctx context.Context, fn func(*persistence.Postgres, *zap.Logger) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := observability.NewLogger(config.LoggerConfig{Level: viper.GetString("log-level")}, config.AppConfig{Name: "smcctl", Env: "cli"})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	dsn := viper.GetString("postgres-dsn")
	if dsn == "" {
		return errors.New("POSTGRES_DSN or --postgres-dsn is required")
	}
	pg, err := persistence.NewPostgres(ctx, config.PostgresConfig{DSN: dsn, MaxConns: 2}, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()
	return fn(pg, logger)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
