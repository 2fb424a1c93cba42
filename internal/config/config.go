// Package config defines the configuration contract and handles loading and
// validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken  = "TELEGRAM_TOKEN"
	KeyGroupID        = "GROUP_ID"
	KeyPingKey        = "PING_KEY"
	KeyInitialCounter = "INITIAL_COUNTER_VALUE"
	KeyDataDir        = "DATA_DIR"
	KeyAppEnv         = "APP_ENV"
	KeyLogLevel       = "LOG_LEVEL"
	KeyHTTPPort       = "HTTP_PORT"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv         = EnvProduction
	DefaultLogLevel       = "info"
	DefaultHTTPPort       = 8080
	DefaultInitialCounter = 1
	DefaultDataDir        = "data"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyGroupID,
		Example:     "-1001234567890",
		Required:    true,
		Description: "Chat id of the staff group receiving submitted tickets.",
		Notes:       "Supergroup ids are negative; the bot must be a member of the chat.",
	},
	{
		Key:         KeyPingKey,
		Example:     "s3cret",
		Required:    true,
		Description: "Shared secret required by the HTTP liveness endpoint.",
	},
	{
		Key:         KeyInitialCounter,
		Example:     strconv.Itoa(DefaultInitialCounter),
		Default:     strconv.Itoa(DefaultInitialCounter),
		Description: "First ticket sequence number used when no counter file exists yet.",
	},
	{
		Key:         KeyDataDir,
		Example:     DefaultDataDir,
		Default:     DefaultDataDir,
		Description: "Directory holding the ticket store and counter files.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP liveness endpoint port.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken  string
	GroupID        int64
	PingKey        string
	InitialCounter int64
	DataDir        string
	AppEnv         string
	LogLevel       string
	HTTPPort       int
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:         firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:  strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		PingKey:        strings.TrimSpace(os.Getenv(KeyPingKey)),
		DataDir:        firstNonEmpty(strings.TrimSpace(os.Getenv(KeyDataDir)), DefaultDataDir),
		LogLevel:       firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		InitialCounter: DefaultInitialCounter,
		HTTPPort:       DefaultHTTPPort,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	groupRaw := strings.TrimSpace(os.Getenv(KeyGroupID))
	if groupRaw == "" {
		missing = append(missing, KeyGroupID)
	} else {
		groupID, parseErr := strconv.ParseInt(groupRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyGroupID, parseErr)
		}
		cfg.GroupID = groupID
	}

	if cfg.PingKey == "" {
		missing = append(missing, KeyPingKey)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	counterRaw := strings.TrimSpace(os.Getenv(KeyInitialCounter))
	if counterRaw != "" {
		initial, parseErr := strconv.ParseInt(counterRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyInitialCounter, parseErr)
		}
		if initial <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyInitialCounter)
		}
		cfg.InitialCounter = initial
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// FormatRedacted renders the resolved configuration with secrets masked,
// suitable for startup diagnostics.
func (c Config) FormatRedacted() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s=%s\n", KeyTelegramToken, redact(c.TelegramToken))
	fmt.Fprintf(&b, "%s=%d\n", KeyGroupID, c.GroupID)
	fmt.Fprintf(&b, "%s=%s\n", KeyPingKey, redact(c.PingKey))
	fmt.Fprintf(&b, "%s=%d\n", KeyInitialCounter, c.InitialCounter)
	fmt.Fprintf(&b, "%s=%s\n", KeyDataDir, c.DataDir)
	fmt.Fprintf(&b, "%s=%s\n", KeyAppEnv, c.AppEnv)
	fmt.Fprintf(&b, "%s=%s\n", KeyLogLevel, c.LogLevel)
	fmt.Fprintf(&b, "%s=%d", KeyHTTPPort, c.HTTPPort)

	return b.String()
}

func redact(value string) string {
	if value == "" {
		return ""
	}

	return "***"
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
