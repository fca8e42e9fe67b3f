package commands

import (
	"context"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/deck/internal/config"
	"github.com/dyluth/deck/internal/printer"
	"github.com/dyluth/deck/internal/testutil"
	"github.com/dyluth/deck/pkg/deck"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag of cmd and its subcommands to its default,
// since the command tree is shared between tests.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// execute runs the deck root command with args against a fresh environment
// and returns what it wrote to stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	restore := printer.SetOutput(&stdout, &stderr)
	prevColor := color.NoColor
	color.NoColor = true
	defer func() {
		restore()
		color.NoColor = prevColor
	}()

	// cobra falls back to os.Args when args is nil
	if args == nil {
		args = []string{}
	}

	resetFlags(rootCmd)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// sqliteEnv points the commands at a fresh SQLite file and a config path
// that does not exist.
func sqliteEnv(t *testing.T) []string {
	dir := t.TempDir()
	for _, key := range []string{config.EnvInstanceName, config.EnvRedisURL, config.EnvAddr} {
		t.Setenv(key, "")
	}
	t.Setenv(config.EnvStoreBackend, config.BackendSQLite)
	t.Setenv(config.EnvSQLitePath, filepath.Join(dir, "deck.db"))

	return []string{
		"--config", filepath.Join(dir, "deck.yml"),
		"--env-file", filepath.Join(dir, ".env"),
	}
}

// redisEnv points the commands at a fresh miniredis.
func redisEnv(t *testing.T) ([]string, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	for _, key := range []string{config.EnvInstanceName, config.EnvAddr, config.EnvSQLitePath} {
		t.Setenv(key, "")
	}
	t.Setenv(config.EnvStoreBackend, config.BackendRedis)
	t.Setenv(config.EnvRedisURL, "redis://"+mr.Addr())

	return []string{
		"--config", filepath.Join(dir, "deck.yml"),
		"--env-file", filepath.Join(dir, ".env"),
	}, mr
}

func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	stdout, _, err := execute(t)

	assert.NoError(t, err)
	assert.Contains(t, stdout, "Usage:", "Help should be displayed")
	assert.Contains(t, stdout, "deck", "Help should show command name")
}

func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	_, _, err := execute(t, "--unknown-flag", "value")
	require.Error(t, err, "Unknown flag should cause an error")
	assert.Contains(t, err.Error(), "unknown flag")
}

// TestRootCommand_RejectsSubcommandFlags tests that flags meant for
// subcommands (like --user) are rejected when passed to the root command
func TestRootCommand_RejectsSubcommandFlags(t *testing.T) {
	_, _, err := execute(t, "--user", "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag: --user")
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "init", "create", "list", "show", "watch"} {
		assert.Contains(t, names, want)
	}
}

func TestSetVersionInfo(t *testing.T) {
	prev := rootCmd.Version
	defer func() { rootCmd.Version = prev }()

	SetVersionInfo("1.2.3", "abc1234", "2026-01-01")
	assert.Equal(t, "1.2.3 (commit: abc1234, built: 2026-01-01)", rootCmd.Version)
}

func TestCreateListShow(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		testCreateListShow(t, sqliteEnv(t))
	})
	t.Run("redis", func(t *testing.T) {
		env, _ := redisEnv(t)
		testCreateListShow(t, env)
	})
}

func testCreateListShow(t *testing.T, env []string) {
	stdout, _, err := execute(t, append([]string{"create", "Quarterly Review", "--user", "u-alice", "--nickname", "Alice"}, env...)...)
	require.NoError(t, err)
	id := strings.TrimSpace(stdout)
	require.Len(t, id, 36)

	stdout, _, err = execute(t, append([]string{"list", "--output", "jsonl"}, env...)...)
	require.NoError(t, err)

	var summary deck.Summary
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(stdout)), &summary))
	assert.Equal(t, id, summary.ID)
	assert.Equal(t, "Quarterly Review", summary.Title)

	stdout, _, err = execute(t, append([]string{"list", "--title", "other*"}, env...)...)
	require.NoError(t, err)
	assert.NotContains(t, stdout, "Quarterly Review")

	stdout, _, err = execute(t, append([]string{"show", id[:8]}, env...)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Quarterly Review")
	assert.Contains(t, stdout, "Alice")

	stdout, _, err = execute(t, append([]string{"show", id, "--json"}, env...)...)
	require.NoError(t, err)

	var doc deck.Document
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	assert.Equal(t, id, doc.ID)
	require.Len(t, doc.Users, 1)
	assert.Equal(t, deck.RoleOwner, doc.Users[0].Role)
}

func TestCreate_NicknameDefaultsToUser(t *testing.T) {
	env := sqliteEnv(t)

	stdout, _, err := execute(t, append([]string{"create", "Solo", "--user", "u-solo"}, env...)...)
	require.NoError(t, err)

	stdout, _, err = execute(t, append([]string{"show", strings.TrimSpace(stdout), "--json"}, env...)...)
	require.NoError(t, err)

	var doc deck.Document
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	require.Len(t, doc.Users, 1)
	assert.Equal(t, "u-solo", doc.Users[0].Nickname)
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		errMsg string
	}{
		{"create without user", []string{"create", "Untitled"}, `required flag(s) "user" not set`},
		{"create with blank title", []string{"create", "  ", "--user", "u1"}, "title required"},
		{"create without title", []string{"create", "--user", "u1"}, "accepts 1 arg(s)"},
		{"unknown list format", []string{"list", "--output", "xml"}, "invalid output format"},
		{"bad since", []string{"list", "--since", "yesterday"}, "invalid time filter"},
		{"show unknown id", []string{"show", "abcdef12"}, "presentation not found"},
		{"show short prefix", []string{"show", "abc"}, "failed to resolve presentation id"},
		{"watch on sqlite", []string{"watch"}, "watch requires the Redis backend"},
		{"watch unknown format", []string{"watch", "--output", "xml"}, "invalid output format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := sqliteEnv(t)
			_, _, err := execute(t, append(tt.args, env...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestShow_ReportsSuggestions(t *testing.T) {
	env := sqliteEnv(t)

	_, stderr, err := execute(t, append([]string{"show", "abcdef12"}, env...)...)
	require.Error(t, err)
	assert.Contains(t, stderr, "No presentation matches 'abcdef12'")
	assert.Contains(t, stderr, "deck list")
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	env := sqliteEnv(t)
	configFile := env[1]
	require.NoError(t, os.WriteFile(configFile, []byte("version: \"2.0\"\n"), 0644))

	_, stderr, err := execute(t, append([]string{"list"}, env...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, stderr, "unsupported version")
}

func TestLoadConfig_ReadsEnvFile(t *testing.T) {
	env := sqliteEnv(t)
	envFile := env[3]

	t.Setenv(config.EnvInstanceName, "")
	os.Unsetenv(config.EnvInstanceName)
	require.NoError(t, os.WriteFile(envFile, []byte("DECK_INSTANCE_NAME=from-dotenv\n"), 0644))

	_, _, err := execute(t, append([]string{"create", "Dotenv", "--user", "u1"}, env...)...)
	require.NoError(t, err)

	stdout, _, err := execute(t, append([]string{"list"}, env...)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "from-dotenv")
}

func TestOpenStore_RedisUnreachable(t *testing.T) {
	env, mr := redisEnv(t)
	mr.Close()

	_, stderr, err := execute(t, append([]string{"list"}, env...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unreachable")
	assert.Contains(t, stderr, "Backend: redis")
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	for _, key := range []string{config.EnvInstanceName, config.EnvRedisURL, config.EnvAddr, config.EnvStoreBackend, config.EnvSQLitePath} {
		t.Setenv(key, "")
	}

	stdout, _, err := execute(t, "init", "--dir", dir, "--instance", "team-a", "--backend", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Initialized deck configuration")

	cfg, err := config.Load(filepath.Join(dir, "deck.yml"))
	require.NoError(t, err)
	assert.Equal(t, "team-a", cfg.Instance)
	assert.Equal(t, config.BackendSQLite, cfg.Store.Backend)
	assert.FileExists(t, filepath.Join(dir, ".env.example"))

	t.Run("refuses to overwrite", func(t *testing.T) {
		_, stderr, err := execute(t, "init", "--dir", dir)
		require.Error(t, err)
		assert.Contains(t, stderr, "--force")
	})

	t.Run("force overwrites", func(t *testing.T) {
		_, _, err := execute(t, "init", "--dir", dir, "--force")
		require.NoError(t, err)

		cfg, err := config.Load(filepath.Join(dir, "deck.yml"))
		require.NoError(t, err)
		assert.Equal(t, config.BackendRedis, cfg.Store.Backend)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, _, err := execute(t, "init", "--dir", filepath.Join(dir, "missing"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "target directory not found")
	})

	t.Run("invalid instance", func(t *testing.T) {
		_, _, err := execute(t, "init", "--dir", t.TempDir(), "--instance", "Bad_Name")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "initialization failed")
	})
}

func TestNewServer(t *testing.T) {
	store, backend, mr := testutil.NewRedisStore(t)
	cfg := config.Default()
	cfg.Instance = "test-instance"

	srv := newServer(cfg, store, backend)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Creating over the API is persisted to the store the server was given
	resp, err = http.Post(ts.URL+"/api/presentations", "application/json",
		strings.NewReader(`{"title":"Wired","creatorNickname":"A","creatorUserId":"u1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	summaries, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.True(t, mr.Exists(deck.DocumentKey("test-instance", summaries[0].ID)))
}

func TestRetryPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Retry.MaxAttempts = 4
	cfg.Retry.BaseBackoff = 50 * time.Millisecond

	p := retryPolicy(cfg)
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, p.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.True(t, p.IsRetryable(deck.ErrConflict))
	assert.False(t, p.IsRetryable(deck.ErrNotFound))
}
