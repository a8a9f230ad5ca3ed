package utils

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel уровень логирования
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelNames = map[LogLevel]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
	FatalLevel: "FATAL",
}

// Logger структурированный логгер с поддержкой полей
type Logger struct {
	mu     sync.Mutex
	level  LogLevel
	format string // "json" или "text"
	output *log.Logger
	fields map[string]interface{}
}

// NewLogger создает новый логгер с заданным уровнем и форматом вывода
func NewLogger(level, format string) *Logger {
	logLevel := InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		logLevel = DebugLevel
	case "info":
		logLevel = InfoLevel
	case "warn", "warning":
		logLevel = WarnLevel
	case "error":
		logLevel = ErrorLevel
	case "fatal":
		logLevel = FatalLevel
	}

	return &Logger{
		level:  logLevel,
		format: format,
		output: log.New(os.Stdout, "", 0),
		fields: make(map[string]interface{}),
	}
}

// WithField возвращает копию логгера с добавленным полем
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields возвращает копию логгера с добавленными полями
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	return &Logger{
		level:  l.level,
		format: l.format,
		output: l.output,
		fields: merged,
	}
}

// Debug логирует сообщение уровня debug
func (l *Logger) Debug(msg string) { l.log(DebugLevel, msg) }

// Debugf логирует форматированное сообщение уровня debug
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(DebugLevel, fmt.Sprintf(format, args...))
}

// Info логирует сообщение уровня info
func (l *Logger) Info(msg string) { l.log(InfoLevel, msg) }

// Infof логирует форматированное сообщение уровня info
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(InfoLevel, fmt.Sprintf(format, args...))
}

// Warn логирует сообщение уровня warn
func (l *Logger) Warn(msg string) { l.log(WarnLevel, msg) }

// Warnf логирует форматированное сообщение уровня warn
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(WarnLevel, fmt.Sprintf(format, args...))
}

// Error логирует сообщение уровня error
func (l *Logger) Error(msg string) { l.log(ErrorLevel, msg) }

// Errorf логирует форматированное сообщение уровня error
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ErrorLevel, fmt.Sprintf(format, args...))
}

// Fatal логирует сообщение уровня fatal и завершает процесс
func (l *Logger) Fatal(msg string) {
	l.log(FatalLevel, msg)
	os.Exit(1)
}

// Fatalf логирует форматированное сообщение уровня fatal и завершает процесс
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(FatalLevel, fmt.Sprintf(format, args...))
	os.Exit(1)
}

func (l *Logger) log(level LogLevel, msg string) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		record := make(map[string]interface{}, len(l.fields)+3)
		for k, v := range l.fields {
			record[k] = v
		}
		record["time"] = time.Now().Format(time.RFC3339)
		record["level"] = levelNames[level]
		record["msg"] = msg

		data, err := json.Marshal(record)
		if err != nil {
			l.output.Printf(`{"level":"ERROR","msg":"failed to marshal log record: %v"}`, err)
			return
		}
		l.output.Print(string(data))
		return
	}

	// Текстовый формат: поля сортируются для стабильного вывода
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s %s", time.Now().Format(time.RFC3339), levelNames[level], msg)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, l.fields[k])
	}
	l.output.Print(sb.String())
}
