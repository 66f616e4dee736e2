package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_HOST", "")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("PW_HEADLESS", "")
	t.Setenv("TASK_MAX_TRY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Database.Enabled())
	assert.Equal(t, "8787", cfg.App.Port)
	assert.Equal(t, 3, cfg.Tasks.MaxTryCount)
	assert.Equal(t, 30*time.Second, cfg.Browser.Timeout)
	assert.False(t, cfg.Browser.Headless)
	assert.NotNil(t, cfg.Tasks.Location)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "live")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_PASS", "p")
	t.Setenv("PW_HEADLESS", "YES")
	t.Setenv("TASK_MAX_TRY", "5")
	t.Setenv("COMMENT_HISTORY", "not-a-number")
	t.Setenv("TIMEZONE", "Nowhere/Invalid")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, "postgres://u:p@db:5432/live?sslmode=disable", cfg.Database.URL())
	assert.Contains(t, cfg.Database.DSN(), "dbname=live")
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 5, cfg.Tasks.MaxTryCount)
	assert.Equal(t, 200, cfg.App.CommentHistory)
	assert.Equal(t, time.Local, cfg.Tasks.Location)
}
