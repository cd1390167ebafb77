package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexa/stylebot/internal/models"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/stylebot?parseTime=true")
	t.Setenv("AI_API_KEY", "ai-key")
	t.Setenv("ADMIN_IDS", "1001,1002")
	t.Setenv("S3_REGION", "eu-central-1")
	t.Setenv("S3_ACCESS_KEY", "access")
	t.Setenv("S3_SECRET_KEY", "secret")
	t.Setenv("S3_BUCKET", "stylebot")
	t.Setenv("S3_PUBLIC_BASE_URL", "https://cdn.example")
	t.Setenv("CONFIG_ENV_PATH", "/nonexistent/.env")
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, []int64{1001, 1002}, cfg.AdminIDs)
		assert.Equal(t, 3, cfg.BonusCredits)
		assert.Equal(t, models.LanguageEN, cfg.DefaultLanguage)
		assert.Equal(t, 2, cfg.AIMaxAttempts)
		assert.Equal(t, 2*time.Second, cfg.AIRetryDelay)
		assert.Equal(t, 15*time.Minute, cfg.StalePendingAfter)
		assert.Equal(t, ":8080", cfg.AdminListenAddr)
	})

	t.Run("Packages", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		pkg, ok := cfg.Package("10_images")
		require.True(t, ok)
		assert.Equal(t, 10, pkg.Credits)
		assert.Equal(t, 150, pkg.PriceBirr)

		_, ok = cfg.Package("999_images")
		assert.False(t, ok)

		list := cfg.PackageList()
		require.Len(t, list, 3)
		assert.Equal(t, "5_images", list[0].Type)
		assert.Equal(t, "25_images", list[2].Type)
	})

	t.Run("MissingRequired", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TELEGRAM_BOT_TOKEN", "")
		t.Setenv("AI_API_KEY", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
		assert.Contains(t, err.Error(), "AI_API_KEY")
	})

	t.Run("InvalidDefaultLanguage", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("DEFAULT_LANGUAGE", "fr")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestIsAdmin(t *testing.T) {
	cfg := Config{AdminIDs: []int64{1001, 1002}}
	isAdmin := cfg.IsAdmin()

	assert.True(t, isAdmin(1001))
	assert.True(t, isAdmin(1002))
	assert.False(t, isAdmin(7))
}
