package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Provider names accepted by AI_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverNone   = "none"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config groups every setting the service reads at startup.
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Store   StoreConfig
	Auth    AuthConfig
	Trigger TriggerConfig
	Log     LogConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	seed, err := parseOptionalUintEnv("TRIGGER_SEED")
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Store:   store,
		Auth:    auth,
		Trigger: TriggerConfig{Seed: seed},
		Log:     LogConfig{Mode: getEnvOrDefault("LOG_MODE", "development")},
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}
	origins := splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))

	if strings.Contains(port, ":") {
		// ":8080" and "127.0.0.1:8080" are taken verbatim.
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// AIConfig holds both generation backends. Gemini is preferred when its key is set.
type AIConfig struct {
	Provider       string
	GeminiAPIKey   string
	GeminiModel    string
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	StreamResponse bool
}

// GeminiEnabled reports whether a Gemini key was supplied.
func (c AIConfig) GeminiEnabled() bool {
	return c.GeminiAPIKey != ""
}

// Enabled reports whether the Ark credentials and model are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds an Ark chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv("AI_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	provider := strings.ToLower(strings.TrimSpace(os.Getenv("AI_PROVIDER")))
	switch provider {
	case "", ProviderGemini, ProviderArk:
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value: %q", provider)
	}

	return AIConfig{
		Provider:       provider,
		GeminiAPIKey:   strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:    getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
	}, nil
}

// StoreConfig selects and configures the conversation repository.
type StoreConfig struct {
	Driver        string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// EncryptionKey is a base64 encoded 32-byte key.
	EncryptionKey string
}

func loadStoreConfig() (StoreConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORE_DRIVER", DriverNone))
	switch driver {
	case DriverNone, DriverSQLite, DriverRedis:
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value: %q", driver)
	}

	redisDB := 0
	if db, err := parseOptionalIntEnv("REDIS_DB"); err != nil {
		return StoreConfig{}, err
	} else if db != nil {
		redisDB = *db
	}

	cfg := StoreConfig{
		Driver:        driver,
		SQLitePath:    getEnvOrDefault("SQLITE_PATH", "data/cycore.db"),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
		EncryptionKey: strings.TrimSpace(os.Getenv("ENCRYPTION_KEY")),
	}
	if cfg.Driver != DriverNone && cfg.EncryptionKey == "" {
		return StoreConfig{}, fmt.Errorf("ENCRYPTION_KEY is required when STORE_DRIVER=%s", cfg.Driver)
	}
	return cfg, nil
}

// AuthConfig holds the bearer token secret.
type AuthConfig struct {
	JWTSecret    string
	SecureCookie bool
}

func loadAuthConfig() (AuthConfig, error) {
	secure, err := parseBoolEnv("COOKIE_SECURE", false)
	if err != nil {
		return AuthConfig{}, err
	}
	return AuthConfig{
		JWTSecret:    strings.TrimSpace(os.Getenv("JWT_SECRET")),
		SecureCookie: secure,
	}, nil
}

// TriggerConfig controls the early-trigger coin. A nil Seed uses the
// global random source.
type TriggerConfig struct {
	Seed *uint64
}

// LogConfig selects the zap preset.
type LogConfig struct {
	Mode string
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalUintEnv(key string) (*uint64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
