// internal/utils/logger.go
package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Logger 结构化日志门面，底层使用 zerolog
type Logger struct {
	mu   sync.Mutex
	zl   zerolog.Logger
	file *os.File
}

var (
	globalLogger *Logger
	loggerOnce   sync.Once
)

// GetLogger 返回全局日志实例
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		globalLogger = &Logger{
			zl: zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05.000"}).
				With().Timestamp().Caller().Logger(),
		}
	})
	return globalLogger
}

// InitLogger 初始化日志文件输出，同时保留控制台输出
func InitLogger(logFile string) error {
	logger := GetLogger()

	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("打开日志文件失败: %w", err)
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if logger.file != nil {
		logger.file.Close()
	}
	logger.file = file

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05.000"}
	multi := io.MultiWriter(console, file)
	logger.zl = zerolog.New(multi).With().Timestamp().Caller().Logger()

	return nil
}

// SetLogLevel 设置最低日志级别
func (l *Logger) SetLogLevel(level zerolog.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zl = l.zl.Level(level)
}

func (l *Logger) emit(ev *zerolog.Event, message string, fields map[string]interface{}) {
	for key, value := range fields {
		ev = ev.Interface(key, value)
	}
	ev.Msg(message)
}

// Debug 记录调试日志
func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.emit(l.zl.Debug(), message, fields)
}

// Info 记录信息日志
func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.emit(l.zl.Info(), message, fields)
}

// Warn 记录警告日志
func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.emit(l.zl.Warn(), message, fields)
}

// Error 记录错误日志
func (l *Logger) Error(message string, fields map[string]interface{}) {
	l.emit(l.zl.Error(), message, fields)
}

// Fatal 记录致命错误并退出
func (l *Logger) Fatal(message string, fields map[string]interface{}) {
	l.emit(l.zl.Fatal(), message, fields)
}

// Debugf 记录格式化调试日志
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

// Infof 记录格式化信息日志
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

// Warnf 记录格式化警告日志
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

// Errorf 记录格式化错误日志
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}

// Fatalf 记录格式化致命错误并退出
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.zl.Fatal().Msgf(format, args...)
}
