package cmd

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/habedi/gigsync/db"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCreateRootCmd checks that createRootCmd returns a root command
// with the expected use string, subcommands, and a replaced help command.
func TestCreateRootCmd(t *testing.T) {
	rootCmd := createRootCmd()
	if rootCmd.Use != "gigsync" {
		t.Errorf("expected root command use to be 'gigsync', got: %s", rootCmd.Use)
	}

	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		if cmd.Use == "help" {
			t.Error("expected help command to be replaced, but found a subcommand with use 'help'")
		}
		names[cmd.Name()] = true
	}
	for _, want := range []string{"login", "logout", "whoami", "signup", "boards", "comments", "chat", "users", "admin", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

// TestExecuteFailure runs a subprocess where the root command's RunE is overridden
// to always return an error, and checks the process exits with code 1.
func TestExecuteFailure(t *testing.T) {
	if os.Getenv("TEST_EXECUTE_FAILURE") == "1" {
		rootCmd := createRootCmd()
		rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
			return errors.New("dummy failure")
		}
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestExecuteFailure")
	cmd.Env = append(os.Environ(), "TEST_EXECUTE_FAILURE=1")
	err := cmd.Run()
	if exitError, ok := err.(*exec.ExitError); ok {
		if exitError.ExitCode() != 1 {
			t.Fatalf("expected exit code 1, got %d", exitError.ExitCode())
		}
	} else if err == nil {
		t.Fatalf("expected an exit error, but command succeeded")
	} else {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigFlag_MissingFileIsReported(t *testing.T) {
	newTestEnv(t, newBoardAPI("t1"))
	out := runCLI(t, nil, "whoami", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Contains(t, out, "Error: Invalid configuration")
}

func TestConfigFlag_FileSettingsApply(t *testing.T) {
	env := newTestEnv(t, newBoardAPI(mintToken(t, time.Now().Add(time.Hour))))
	t.Setenv("GIGSYNC_BASE_URL", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: "+env.srv.URL+"/api\n"), 0o600))
	env.loggedIn(t)

	out := runCLI(t, nil, "boards", "list", "--config", path)
	assert.Contains(t, out, "Looking for a bassist")
}

func TestRedisStore_SharesSession(t *testing.T) {
	api := newBoardAPI(mintToken(t, time.Now().Add(time.Hour)))
	newTestEnv(t, api)

	mr := miniredis.RunT(t)
	t.Setenv("GIGSYNC_STORE", "redis")
	t.Setenv("GIGSYNC_REDIS_URL", "redis://"+mr.Addr())

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	repo := db.NewRedisCredentialRepository(rdb, "")
	require.NoError(t, repo.Upsert(context.Background(), &db.Credential{AccessToken: api.token, SessionCookie: testCookie, NickName: "drummer"}))

	out := runCLI(t, nil, "whoami")
	assert.Contains(t, out, "Nickname: drummer")
	assert.Contains(t, out, "Access token: valid for")
}

func TestRedisStore_UnreachableServer(t *testing.T) {
	newTestEnv(t, newBoardAPI("t1"))
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	t.Setenv("GIGSYNC_STORE", "redis")
	t.Setenv("GIGSYNC_REDIS_URL", "redis://"+addr)

	out := runCLI(t, nil, "whoami")
	assert.Contains(t, out, "Error: Failed to open the credential store.")
}
