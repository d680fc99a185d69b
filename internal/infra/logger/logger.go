// Package logger даёт централизованную обёртку над zap для всего сервиса.
// Консольный вывод и (опционально) ротация в файл через lumberjack собираются в один
// zapcore.Tee. Уровни консоли и файла независимы и меняются через zap.AtomicLevel.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions описывает файловый sink. Пустой Path выключает запись в файл.
type FileOptions struct {
	Path       string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	// mu защищает глобальное состояние логгера от одновременных изменений.
	mu  sync.Mutex
	log *zap.Logger
	// logLevel задаёт уровень консоли, fileLevel задаёт уровень файла.
	logLevel  = zap.NewAtomicLevelAt(zap.InfoLevel)
	fileLevel = zap.NewAtomicLevelAt(zap.DebugLevel)

	stdoutWriter = zapcore.Lock(zapcore.AddSync(os.Stdout))
	stderrWriter = zapcore.Lock(zapcore.AddSync(os.Stderr))
	// fileWriter != nil, если настроен LOG_FILE.
	fileWriter *lumberjack.Logger
)

// consoleEncoderConfig: цветной консольный формат с коротким caller.
func consoleEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// fileEncoderConfig: JSON для файла: без цветов, время в ISO8601.
func fileEncoderConfig() zapcore.EncoderConfig {
	cfg := consoleEncoderConfig()
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

// rebuildLoggerLocked пересоздаёт глобальный логгер. Вызывающий держит mu.
func rebuildLoggerLocked() {
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig()), stdoutWriter, logLevel),
	}
	if fileWriter != nil {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig()), zapcore.AddSync(fileWriter), fileLevel))
	}
	if log != nil {
		_ = log.Sync()
	}
	log = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1), zap.ErrorOutput(stderrWriter))
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// Init задаёт уровень консоли и пересобирает логгер. Потокобезопасно.
func Init(level string) {
	mu.Lock()
	defer mu.Unlock()

	logLevel.SetLevel(parseLevel(level))
	rebuildLoggerLocked()
}

// EnableFile подключает ротируемый файловый лог. Повторный вызов закрывает прежний файл.
func EnableFile(opts FileOptions) {
	mu.Lock()
	defer mu.Unlock()

	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}
	if strings.TrimSpace(opts.Path) != "" {
		fileLevel.SetLevel(parseLevel(opts.Level))
		fileWriter = &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
	}
	rebuildLoggerLocked()
}

// SetWriters переназначает консольные потоки (например, на readline в CLI). Nil, Stdout/Stderr.
func SetWriters(stdout, stderr io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	stdoutWriter = zapcore.Lock(zapcore.AddSync(stdout))
	stderrWriter = zapcore.Lock(zapcore.AddSync(stderr))

	rebuildLoggerLocked()
}

// Close сбрасывает буферы и закрывает файловый sink.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if log != nil {
		_ = log.Sync()
	}
	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}
}

// Logger возвращает текущий zap.Logger, лениво создавая его при первом обращении.
func Logger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	if log == nil {
		rebuildLoggerLocked()
	}
	return log
}

// IsDebugEnabled проверяет, включен ли debug хотя бы в одном sink.
func IsDebugEnabled() bool {
	return Logger().Core().Enabled(zap.DebugLevel)
}

func Debug(msg string, fields ...zap.Field) { Logger().Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { Logger().Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { Logger().Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { Logger().Error(msg, fields...) }

// Fatal пишет сообщение уровня Fatal и завершает процесс.
func Fatal(msg string, fields ...zap.Field) {
	Logger().Fatal(msg, fields...)
	_ = Logger().Sync()
	os.Exit(1)
}

// Debugf форматирует сообщение через fmt.Sprintf. Для горячих путей лучше поля.
func Debugf(msg string, a ...any) { Logger().Debug(fmt.Sprintf(msg, a...)) }

func Infof(msg string, a ...any) { Logger().Info(fmt.Sprintf(msg, a...)) }

func Warnf(msg string, a ...any) { Logger().Warn(fmt.Sprintf(msg, a...)) }

func Errorf(msg string, a ...any) { Logger().Error(fmt.Sprintf(msg, a...)) }
