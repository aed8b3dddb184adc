package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restopos-backend/internal/config"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/logger"
	"restopos-backend/internal/repository"
	"restopos-backend/internal/service"
)

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/restopos_test")
	t.Setenv("JWT_SECRET", "cli-secret")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"token", "chef-1", "--tenant", "t9", "--role", "Manager", "--roles", "kitchen, bar"})
	require.NoError(t, root.Execute())

	var res struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.NotEmpty(t, res.Token)

	auth := service.AuthService{Config: config.Config{JWTSecret: "cli-secret"}, Logger: logger.Discard()}
	user, err := auth.Authenticate(context.Background(), res.Token)
	require.NoError(t, err)
	assert.Equal(t, "chef-1", user.UID)
	assert.Equal(t, "t9", user.TenantID)
	assert.Equal(t, domain.RoleManager, user.Role)
	assert.Equal(t, []string{"kitchen", "bar"}, user.Roles)
}

func TestCommandsValidateArgs(t *testing.T) {
	for _, args := range [][]string{{"run-job"}, {"token"}, {"dispatch", "extra"}, {"migrate", "now"}} {
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetArgs(args)
		assert.Error(t, root.Execute(), "%v", args)
	}
}

func TestConfigErrorsSurface(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	root := newRootCmd()
	root.SetArgs([]string{"token", "u1"})
	assert.ErrorContains(t, root.Execute(), "DATABASE_URL is required")
}

func TestWriteTasks(t *testing.T) {
	var out bytes.Buffer
	writeTasks(&out, []repository.BackfillTask{
		{ID: 7, Collection: "menu_items", StartAfter: "m050", BatchSize: 50, Status: repository.TaskFailed, Attempts: 5, LastError: "timeout", CreatedAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
	})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "menu_items")
	assert.Contains(t, lines[1], "2026-04-01T00:00:00Z")
	assert.True(t, strings.HasSuffix(lines[1], "timeout"))
}
