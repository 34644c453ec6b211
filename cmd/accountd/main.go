// Command accountd serves the account flows over HTTP
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	auth "github.com/goliatone/go-account"
	"github.com/goliatone/go-account/accountlog"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/spf13/cobra"
)

func main() {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "accountd",
		Short:         "User account service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, newLogger(cfg))
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			newLogger(cfg).Info("migrations applied to %s", cfg.DBDriver)
			return nil
		},
	}

	setRoleCmd := &cobra.Command{
		Use:   "set-role <username> <role>",
		Short: "Change the role of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			role, ok := auth.ParseRole(args[1])
			if !ok {
				return fmt.Errorf("unknown role %q", args[1])
			}
			return setRole(cmd.Context(), cfg, newLogger(cfg), args[0], role)
		},
	}

	rootCmd.AddCommand(serveCmd, migrateCmd, setRoleCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "accountd:", err)
		os.Exit(1)
	}
}

func newLogger(cfg Config) auth.Logger {
	return accountlog.New("accountd", accountlog.WithLevel(cfg.LogLevel))
}

func setRole(ctx context.Context, cfg Config, logger auth.Logger, username string, role auth.Role) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	users := auth.NewUsersRepository(db)
	user, err := users.GetByIdentifier(ctx, auth.NormalizeUsername(username))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return goerrors.New("unknown user "+username, goerrors.CategoryNotFound)
		}
		return err
	}

	manager := auth.NewAccountManager(users, logMailer(logger), cfg.Account, auth.WithLogger(logger))
	actor := auth.ActorRef{ID: "accountd", Type: "system"}
	if err := manager.UpdateRole(ctx, actor, user.ID, role); err != nil {
		return err
	}
	logger.Info("role of %s set to %s", username, role)
	return nil
}
