package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/habedi/gigsync/client"
	"github.com/habedi/gigsync/config"
	"github.com/habedi/gigsync/db"
	"github.com/habedi/gigsync/pkg/clierr"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// sessionEndedNotice is printed when the server refuses to renew the stored session.
const sessionEndedNotice = "Your session has ended. Please run 'gigsync login' to sign in again."

func Execute(ctx context.Context) {
	rootCmd := createRootCmd()

	rootCmd.PersistentFlags().BoolP("help", "h", false, "Show help for a command")

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command execution failed.")
		os.Exit(1)
	}
}

func createRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gigsync",
		Short: "A command-line client for the band community board and chat",
	}

	rootCmd.PersistentFlags().String("config", "", "Path to the config file (default ~/.gigsync/config.yaml)")

	rootCmd.AddCommand(
		loginCmd(),
		logoutCmd(),
		whoamiCmd(),
		signupCmd(),
		boardsCmd(),
		commentsCmd(),
		chatCmd(),
		usersCmd(),
		adminCmd(),
		versionCmd(),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	return rootCmd
}

// session bundles the API client with the store it persists credentials in.
type session struct {
	cfg    config.Config
	client *client.Client
	close  func() error
}

func openSession(cmd *cobra.Command) (*session, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, clierr.New(clierr.Validation, "Invalid configuration: "+err.Error(), err)
	}

	store, closeStore, err := openStore(commandContext(cmd), cfg)
	if err != nil {
		return nil, clierr.New(clierr.Internal, "Failed to open the credential store.", err)
	}

	errOut := cmd.ErrOrStderr()
	c, err := client.New(cfg.ClientConfig(func(reason error) {
		log.Warn().Err(reason).Msg("Session ended by the server")
		fmt.Fprintln(errOut, sessionEndedNotice)
	}), store)
	if err != nil {
		_ = closeStore()
		return nil, clierr.New(clierr.Validation, "Invalid configuration: "+err.Error(), err)
	}

	return &session{
		cfg:    cfg,
		client: c,
		close: func() error {
			c.Close()
			return closeStore()
		},
	}, nil
}

// openStore opens the credential store selected in the config.
func openStore(ctx context.Context, cfg config.Config) (db.CredentialRepository, func() error, error) {
	switch cfg.Store {
	case config.StoreRedis:
		rdb, err := db.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return db.NewRedisCredentialRepository(rdb, cfg.RedisKey), rdb.Close, nil
	default:
		db.Path = cfg.DBPath
		if err := db.InitDB(); err != nil {
			return nil, nil, err
		}
		return db.NewCredentialRepository(db.Db), db.CloseDB, nil
	}
}

// withSession opens a session, runs fn and reports any failure on stderr.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) {
	s, err := openSession(cmd)
	if err != nil {
		printError(cmd, err)
		return
	}
	defer func() {
		if err := s.close(); err != nil {
			log.Error().Err(err).Msg("Failed to close the credential store.")
		}
	}()

	if err := fn(commandContext(cmd), s); err != nil {
		printError(cmd, err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
