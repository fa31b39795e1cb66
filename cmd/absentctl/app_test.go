package main

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"absencetracker/internal/authority"
	"absencetracker/internal/config"
)

func testConfig(t *testing.T) config.App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := authority.NewService(authority.NewMemoryStore(),
		authority.Tokens{Issuer: "test", SigningKey: "k", TTL: time.Hour},
		authority.WithHashCost(bcrypt.MinCost),
		authority.WithRegisterer(prometheus.NewRegistry()))
	r := gin.New()
	authority.Routes(r, svc, "k", "test")
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return config.App{
		APIBaseURL:   srv.URL,
		APITimeout:   5 * time.Second,
		TokenBackend: "file",
		TokenDir:     t.TempDir(),
		LogLevel:     slog.LevelError,
	}
}

func run(t *testing.T, cfg config.App, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd, shutdown := rootCmd(cfg)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errors.Join(err, shutdown())
}

func TestCommandLifecycle(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "not logged in\n", out)

	_, err = run(t, cfg, "", "list")
	assert.ErrorIs(t, err, errNotLoggedIn)

	out, err = run(t, cfg, "", "register", "-u", "alice", "-p", "pw", "--name", "Alice")
	require.NoError(t, err)
	assert.Contains(t, out, "registered and logged in as alice")

	_, err = run(t, cfg, "", "login", "-u", "alice", "-p", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username or password is incorrect")

	out, err = run(t, cfg, "pw\n", "login", "-u", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in as alice")

	out, err = run(t, cfg, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "Alice")

	out, err = run(t, cfg, "", "list")
	require.NoError(t, err)
	assert.Equal(t, "no absences recorded\n", out)

	out, err = run(t, cfg, "", "add", "--day", "monday", "--type", "medical", "--date", "2024-03-04")
	require.NoError(t, err)
	id := strings.TrimSpace(strings.TrimPrefix(out, "added "))
	require.NotEmpty(t, id)

	out, err = run(t, cfg, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Monday")
	assert.Contains(t, out, "Medical")
	assert.Contains(t, out, "March 04 2024")

	out, err = run(t, cfg, "", "edit", id, "--type", "emergency leave")
	require.NoError(t, err)
	assert.Equal(t, "updated "+id+"\n", out)

	out, err = run(t, cfg, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Emergency leave")
	assert.Contains(t, out, "Monday")

	_, err = run(t, cfg, "", "edit", "no-such-row", "--day", "tuesday")
	assert.Error(t, err)

	metrics := filepath.Join(t.TempDir(), "metrics.prom")
	out, err = run(t, cfg, "", "--metrics-file", metrics, "delete", id)
	require.NoError(t, err)
	assert.Equal(t, "deleted "+id+"\n", out)
	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `absencetracker_remote_requests_total{op="delete",outcome="2xx"} 1`)

	out, err = run(t, cfg, "", "list")
	require.NoError(t, err)
	assert.Equal(t, "no absences recorded\n", out)

	out, err = run(t, cfg, "", "logout")
	require.NoError(t, err)
	assert.Equal(t, "logged out\n", out)

	out, err = run(t, cfg, "", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "not logged in\n", out)
}

func TestAddRejectsUnknownDay(t *testing.T) {
	cfg := testConfig(t)
	_, err := run(t, cfg, "", "add", "--day", "saturday")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, config.App{TokenBackend: "bogus"}, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "absentctl version "+Version+" (build: dev)\n", out)
}

func TestUnknownTokenBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.TokenBackend = "bogus"
	_, err := run(t, cfg, "", "whoami")
	assert.ErrorContains(t, err, "unknown TOKEN_BACKEND")
}

func TestMetricsWrittenWhenCommandFails(t *testing.T) {
	cfg := testConfig(t)
	_, err := run(t, cfg, "", "register", "-u", "alice", "-p", "pw")
	require.NoError(t, err)

	metrics := filepath.Join(t.TempDir(), "metrics.prom")
	_, err = run(t, cfg, "", "--metrics-file", metrics, "delete", "no-such-row")
	require.Error(t, err)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `op="list"`)
}

func TestListFormatsAndFilters(t *testing.T) {
	cfg := testConfig(t)
	_, err := run(t, cfg, "", "register", "-u", "alice", "-p", "pw", "--name", "Alice")
	require.NoError(t, err)
	out, err := run(t, cfg, "", "add", "--day", "monday", "--type", "medical", "--date", "2024-03-04",
		"--from", "2024-03-04T09:00:00Z")
	require.NoError(t, err)
	monday := strings.TrimSpace(strings.TrimPrefix(out, "added "))
	out, err = run(t, cfg, "", "add", "--day", "tuesday", "--type", "permission")
	require.NoError(t, err)
	tuesday := strings.TrimSpace(strings.TrimPrefix(out, "added "))

	out, err = run(t, cfg, "", "list", "--format", "csv")
	require.NoError(t, err)
	recs, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"id", "name", "day", "date", "type", "from", "to"}, recs[0])
	byID := map[string][]string{recs[1][0]: recs[1], recs[2][0]: recs[2]}
	assert.Equal(t, []string{monday, "Alice", "Monday", "2024-03-04", "Medical", "2024-03-04T09:00:00Z", ""}, byID[monday])
	assert.Equal(t, []string{tuesday, "Alice", "Tuesday", "", "Permission", "", ""}, byID[tuesday])

	out, err = run(t, cfg, "", "list", "--day", "tuesday")
	require.NoError(t, err)
	assert.Contains(t, out, tuesday)
	assert.NotContains(t, out, monday)

	out, err = run(t, cfg, "", "list", "-o", "csv", "--type", "medical")
	require.NoError(t, err)
	assert.Contains(t, out, monday)
	assert.NotContains(t, out, tuesday)

	out, err = run(t, cfg, "", "list", "--type", "emergency leave")
	require.NoError(t, err)
	assert.Equal(t, "no absences recorded\n", out)

	_, err = run(t, cfg, "", "list", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
	_, err = run(t, cfg, "", "list", "--day", "saturday")
	assert.Error(t, err)
}
