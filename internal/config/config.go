package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/flexa/stylebot/internal/models"
)

// AdminChecker reports whether a chat identity may perform admin operations.
// It is injected into workflows instead of a package-level admin set.
type AdminChecker func(userID int64) bool

// Config aggregates runtime configuration for the service.
type Config struct {
	BotToken string
	MySQLDSN string

	AdminIDs            []int64
	AdminManualGroupID  int64
	AdminPaymentGroupID int64
	AdminNewUserGroupID int64

	AIAPIKey       string
	AIBaseURL      string
	AIProvider     string
	OCRBaseURL     string
	OCRAPIKey      string
	RequestTimeout time.Duration

	BonusCredits    int
	DefaultLanguage models.Language
	Packages        map[string]models.Package

	AIMaxAttempts int
	AIRetryDelay  time.Duration

	StalePendingAfter  time.Duration
	StaleSweepInterval time.Duration

	AdminListenAddr string
	AdminUsername   string
	AdminPassword   string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AIBaseURL:       getEnv("AI_BASE_URL", "https://api.kie.ai"),
		AIProvider:      getEnv("AI_PROVIDER", "banana"),
		OCRBaseURL:      getEnv("OCR_BASE_URL", ""),
		RequestTimeout:  time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		BonusCredits:    getInt("BONUS_CREDITS", 3),
		DefaultLanguage: models.Language(getEnv("DEFAULT_LANGUAGE", "en")),
		AIMaxAttempts:   getInt("AI_MAX_ATTEMPTS", 2),
		AIRetryDelay:    time.Second * time.Duration(getInt("AI_RETRY_DELAY_SECONDS", 2)),

		StalePendingAfter:  time.Second * time.Duration(getInt("STALE_PENDING_SECONDS", 900)),
		StaleSweepInterval: time.Second * time.Duration(getInt("STALE_SWEEP_SECONDS", 300)),

		AdminListenAddr: getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		AdminUsername:   getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:   getEnv("ADMIN_PASSWORD", "change-me"),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3Region:        os.Getenv("S3_REGION"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:  getBool("S3_USE_PATH_STYLE", false),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.AIAPIKey = os.Getenv("AI_API_KEY")
	cfg.OCRAPIKey = os.Getenv("OCR_API_KEY")
	cfg.AdminIDs = parseAdminIDs(os.Getenv("ADMIN_IDS"))
	cfg.AdminManualGroupID = getInt64("ADMIN_MANUAL_GROUP_ID", 0)
	cfg.AdminPaymentGroupID = getInt64("ADMIN_PAYMENT_GROUP_ID", 0)
	cfg.AdminNewUserGroupID = getInt64("ADMIN_NEWUSER_GROUP_ID", 0)
	cfg.Packages = defaultPackages()

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.AIAPIKey == "" {
		missing = append(missing, "AI_API_KEY")
	}
	if len(cfg.AdminIDs) == 0 {
		missing = append(missing, "ADMIN_IDS")
	}
	if cfg.S3Region == "" {
		missing = append(missing, "S3_REGION")
	}
	if cfg.S3AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if cfg.S3SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if cfg.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if cfg.S3PublicBaseURL == "" {
		missing = append(missing, "S3_PUBLIC_BASE_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if cfg.DefaultLanguage != models.LanguageEN && cfg.DefaultLanguage != models.LanguageAM {
		return Config{}, fmt.Errorf("unsupported DEFAULT_LANGUAGE: %s", cfg.DefaultLanguage)
	}

	return cfg, nil
}

// IsAdmin returns the capability check used by admin-only operations.
func (c Config) IsAdmin() AdminChecker {
	ids := make(map[int64]struct{}, len(c.AdminIDs))
	for _, id := range c.AdminIDs {
		ids[id] = struct{}{}
	}
	return func(userID int64) bool {
		_, ok := ids[userID]
		return ok
	}
}

// Package resolves a purchasable credit package by its type key.
func (c Config) Package(packageType string) (models.Package, bool) {
	pkg, ok := c.Packages[packageType]
	return pkg, ok
}

// PackageList returns the purchasable packages ordered by credit size.
func (c Config) PackageList() []models.Package {
	list := make([]models.Package, 0, len(c.Packages))
	for _, pkg := range c.Packages {
		list = append(list, pkg)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Credits < list[j].Credits })
	return list
}

func defaultPackages() map[string]models.Package {
	return map[string]models.Package{
		"5_images":  {Type: "5_images", Credits: 5, PriceBirr: 100, NameEN: "5 Images", NameAM: "5 ፎቶዎች"},
		"10_images": {Type: "10_images", Credits: 10, PriceBirr: 150, NameEN: "10 Images", NameAM: "10 ፎቶዎች"},
		"25_images": {Type: "25_images", Credits: 25, PriceBirr: 300, NameEN: "25 Images", NameAM: "25 ፎቶዎች"},
	}
}

func parseAdminIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Environment variables may be set directly, without an env file.
	return nil
}
