// Пакет config собирает конфигурацию сервиса из окружения (.env через godotenv):
//  1. обязательные параметры (строка подключения к PostgreSQL), без них старт невозможен;
//  2. необязательные параметры с дефолтами, при подстановке дефолта копится предупреждение;
//  3. результат фиксируется в singleton и отдаётся неизменяемым снимком через Env().
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// EnvConfig: операционные настройки запуска.
type EnvConfig struct {
	DatabaseURL     string
	DBMaxOpenConns  int
	MigrateOnStart  bool
	HTTPAddress     string
	LogLevel        string
	NegativeWords   string
	PeersCacheFile  string
	TestDC          bool
	TelegramRPS     int
	FloodMaxWaitSec int
	// Модель тональности
	ModelURL        string
	ModelToken      string
	ModelMaxInput   int
	ModelTimeoutSec int
	ModelRPS        int
	ModelWorkers    int
	// Файловое логирование
	LogFile           string
	LogFileLevel      string
	LogFileMaxSize    int
	LogFileMaxBackups int
	LogFileMaxAge     int
	LogFileCompress   bool
}

// Config хранит конфигурацию среды и предупреждения, накопленные при чтении.
type Config struct {
	Env      EnvConfig
	warnings []string
	mu       sync.RWMutex
}

const (
	defaultDBMaxOpenConns  = 10
	defaultMigrateOnStart  = true
	defaultHTTPAddress     = "127.0.0.1:8000"
	defaultLogLevel        = "info"
	defaultNegativeWords   = "data/uz_negative_words.txt"
	defaultPeersCacheFile  = "data/peers_cache.bbolt"
	defaultTelegramRPS     = 3
	defaultFloodMaxWaitSec = 5
	defaultModelURL        = "http://127.0.0.1:8080/models/distilbert-base-uncased-finetuned-sst-2-english"
	defaultModelMaxInput   = 512
	defaultModelTimeoutSec = 30
	defaultModelRPS        = 5
	defaultModelWorkers    = 4
	// LOG_FILE не имеет дефолта, файловый лог включается только явно.
	defaultLogFileLevel      = "debug"
	defaultLogFileMaxSize    = 50
	defaultLogFileMaxBackups = 3
	defaultLogFileMaxAge     = 7
	defaultLogFileCompress   = true
)

var (
	cfgInstance *Config
	cfgDone     bool
)

// Load читает .env (если файл есть) и окружение, фиксирует результат в singleton.
// Повторный вызов запрещён.
func Load(envPath string) error {
	if cfgDone {
		return errors.New("config already loaded")
	}
	newCfg, err := loadConfig(envPath)
	if err != nil {
		return err
	}
	cfgInstance = newCfg
	cfgDone = true
	return nil
}

// loadConfig выполняет загрузку/валидацию без установки глобального состояния.
// Отсутствующий .env не ошибка: в контейнерах переменные приходят из окружения.
func loadConfig(envPath string) (*Config, error) {
	var warnings []string

	if strings.TrimSpace(envPath) != "" {
		if err := godotenv.Load(envPath); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to load .env: %w", err)
			}
			appendWarningf(&warnings, "env file %q not found; using process environment", envPath)
		}
	}

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		return nil, errors.New("env DATABASE_URL must be set")
	}

	env := EnvConfig{
		DatabaseURL:     databaseURL,
		DBMaxOpenConns:  parseIntDefault("DB_MAX_OPEN_CONNS", defaultDBMaxOpenConns, greaterThanZero, &warnings),
		MigrateOnStart:  parseBoolDefault("MIGRATE_ON_START", defaultMigrateOnStart, &warnings),
		HTTPAddress:     sanitizeString("HTTP_ADDRESS", defaultHTTPAddress, &warnings),
		LogLevel:        sanitizeLogLevel("LOG_LEVEL", defaultLogLevel, &warnings),
		NegativeWords:   sanitizeString("NEGATIVE_WORDS_FILE", defaultNegativeWords, &warnings),
		PeersCacheFile:  sanitizeString("PEERS_CACHE_FILE", defaultPeersCacheFile, &warnings),
		TestDC:          strings.EqualFold(strings.TrimSpace(os.Getenv("TEST_DC")), "true"),
		TelegramRPS:     parseIntDefault("TG_RPS", defaultTelegramRPS, greaterThanZero, &warnings),
		FloodMaxWaitSec: parseIntDefault("TG_FLOOD_MAX_WAIT_SEC", defaultFloodMaxWaitSec, nonNegative, &warnings),

		ModelURL:        sanitizeString("MODEL_URL", defaultModelURL, &warnings),
		ModelToken:      strings.TrimSpace(os.Getenv("MODEL_TOKEN")),
		ModelMaxInput:   parseIntDefault("MODEL_MAX_INPUT", defaultModelMaxInput, greaterThanZero, &warnings),
		ModelTimeoutSec: parseIntDefault("MODEL_TIMEOUT_SEC", defaultModelTimeoutSec, greaterThanZero, &warnings),
		ModelRPS:        parseIntDefault("MODEL_RPS", defaultModelRPS, greaterThanZero, &warnings),
		ModelWorkers:    parseIntDefault("MODEL_WORKERS", defaultModelWorkers, greaterThanZero, &warnings),

		LogFile:           strings.TrimSpace(os.Getenv("LOG_FILE")),
		LogFileLevel:      sanitizeLogLevel("LOG_FILE_LEVEL", defaultLogFileLevel, &warnings),
		LogFileMaxSize:    parseIntDefault("LOG_FILE_MAX_SIZE_MB", defaultLogFileMaxSize, greaterThanZero, &warnings),
		LogFileMaxBackups: parseIntDefault("LOG_FILE_MAX_BACKUPS", defaultLogFileMaxBackups, nonNegative, &warnings),
		LogFileMaxAge:     parseIntDefault("LOG_FILE_MAX_AGE_DAYS", defaultLogFileMaxAge, nonNegative, &warnings),
		LogFileCompress:   parseBoolDefault("LOG_FILE_COMPRESS", defaultLogFileCompress, &warnings),
	}

	return &Config{Env: env, warnings: warnings}, nil
}

// Warnings возвращает копию накопленных предупреждений.
func Warnings() []string {
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	result := make([]string, len(cfgInstance.warnings))
	copy(result, cfgInstance.warnings)
	return result
}

// Env возвращает неизменяемый снимок EnvConfig.
func Env() EnvConfig {
	return cfgInstance.Env
}

// parseIntDefault читает name как int; пусто/некорректно/не прошло validator, defaultVal и предупреждение.
func parseIntDefault(name string, defaultVal int, validator func(int) bool, warnings *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %d", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid integer; using default %d", name, value, defaultVal)
		return defaultVal
	}
	if validator != nil && !validator(v) {
		appendWarningf(warnings, "env %s value %d does not satisfy constraints; using default %d", name, v, defaultVal)
		return defaultVal
	}
	return v
}

func appendWarningf(warnings *[]string, format string, args ...any) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf(format, args...))
}

func greaterThanZero(v int) bool { return v > 0 }
func nonNegative(v int) bool     { return v >= 0 }

// parseBoolDefault читает name как bool. Если пусто/некорректно, defaultVal и предупреждение.
func parseBoolDefault(name string, defaultVal bool, warnings *[]string) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %v", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid boolean; using default %v", name, value, defaultVal)
		return defaultVal
	}
	return v
}

// sanitizeLogLevel ограничивает значения набором {debug, info, warn, error}.
func sanitizeLogLevel(name, defaultVal string, warnings *[]string) string {
	raw := os.Getenv(name)
	lvl := strings.ToLower(strings.TrimSpace(raw))
	if lvl == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, defaultVal)
		return defaultVal
	}
	switch lvl {
	case "debug", "info", "warn", "error":
		return lvl
	default:
		appendWarningf(warnings, "env %s value %q is invalid; using default %q", name, raw, defaultVal)
		return defaultVal
	}
}

// sanitizeString возвращает непустое значение переменной или fallback с предупреждением.
func sanitizeString(name, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, fallback)
		return fallback
	}
	return v
}
