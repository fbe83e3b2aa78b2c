package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/entity-history/backend/internal/auth"
	"github.com/entity-history/backend/internal/backend"
	"github.com/entity-history/backend/internal/config"
	"github.com/entity-history/backend/internal/events"
	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/services"
	"github.com/entity-history/backend/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testEnv shares one seeded memory store across every command run.
func testEnv(t *testing.T) (*Env, *memory.Store) {
	t.Helper()
	st := memory.NewSeeded()
	bus := events.NewLocalBus()
	return &Env{
		Config: &config.Config{
			StoreBackend:  config.BackendMemory,
			JWTSecret:     "cli-secret",
			JWTExpiration: time.Hour,
			AsOfPageSize:  10,
		},
		Log: zap.NewNop(),
		Open: func(context.Context) (*backend.Backend, error) {
			return &backend.Backend{Store: st, Publisher: bus, Subscriber: bus}, nil
		},
	}, st
}

func run(t *testing.T, env *Env, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(env)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	env, _ := testEnv(t)
	cmd := NewRootCommand(env)
	for _, path := range [][]string{
		{"migrate", "up"}, {"migrate", "down"}, {"migrate", "version"},
		{"types", "list"}, {"types", "add"}, {"types", "activate"}, {"types", "deactivate"},
		{"export", "asof"}, {"export", "diff"}, {"export", "history"},
		{"verify"}, {"token"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "%v", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestInvalidFormat(t *testing.T) {
	env, _ := testEnv(t)
	_, err := run(t, env, "--format", "yaml", "verify")
	assert.Error(t, err)
}

func TestMigrateRequiresPostgres(t *testing.T) {
	env, _ := testEnv(t)
	_, err := run(t, env, "migrate", "version")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTypesCommands(t *testing.T) {
	env, _ := testEnv(t)

	out, err := run(t, env, "types", "add", "detail", "fax", "--name", "Fax number")
	require.NoError(t, err)
	assert.Contains(t, out, "added FAX")

	out, err = run(t, env, "types", "deactivate", "detail", "fax")
	require.NoError(t, err)
	assert.Contains(t, out, "deactivated FAX (active=false)")

	out, err = run(t, env, "--format", "json", "types", "list", "detail")
	require.NoError(t, err)
	var resp struct {
		Status string           `json:"status"`
		Data   []models.RefType `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	codes := make([]string, 0, len(resp.Data))
	for _, rt := range resp.Data {
		codes = append(codes, rt.Code)
	}
	assert.Contains(t, codes, "FAX")

	_, err = run(t, env, "types", "list", "widget")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExportAndVerify(t *testing.T) {
	env, st := testEnv(t)
	ctx := context.Background()
	transitions := services.NewTransitionService(st, events.NewLocalBus(), zap.NewNop())
	person := "PERSON"
	name := "Ann"
	res, err := transitions.Create(ctx, models.EntityWrite{
		EntityType:  &person,
		DisplayName: &name,
		Details:     []models.DetailWrite{{DetailType: "EMAIL", DetailValue: "ann@x.io"}},
		ChangeTS:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Actor:       models.Actor{ID: "cli-test"},
	})
	require.NoError(t, err)

	dir := t.TempDir()
	asof := filepath.Join(dir, "asof.xlsx")
	out, err := run(t, env, "export", "asof", "--at", "2024-06-01", "-o", asof)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 1 rows")
	info, err := os.Stat(asof)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	diff := filepath.Join(dir, "diff.xlsx")
	_, err = run(t, env, "export", "diff", "--from", "2023-12-01", "--to", "2024-06-01", "-o", diff)
	require.NoError(t, err)

	hist := filepath.Join(dir, "history.xlsx")
	_, err = run(t, env, "export", "history", res.EntityUID.String(), "-o", hist)
	require.NoError(t, err)

	_, err = run(t, env, "export", "history", "not-a-uid")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err = run(t, env, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "checked 1 entities")
}

func TestTokenCommand(t *testing.T) {
	env, _ := testEnv(t)
	out, err := run(t, env, "--format", "json", "token", "--subject", "ops", "--role", "writer", "--role", "admin")
	require.NoError(t, err)

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	claims, err := auth.ParseJWT("cli-secret", resp.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Actor())
	assert.Equal(t, []string{"writer", "admin"}, claims.Roles)

	_, err = run(t, env, "token", "--subject", "ops", "--role", "root")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
