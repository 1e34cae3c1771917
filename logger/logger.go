package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	ERROR LogLevel = iota
	WARN
	INFO
	DEBUG
	TRACE
)

var levelNames = map[LogLevel]string{
	ERROR: "ERROR",
	WARN:  "WARN",
	INFO:  "INFO",
	DEBUG: "DEBUG",
	TRACE: "TRACE",
}

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
	Context   map[string]interface{}
}

// Logger provides structured logging with levels and variadic key/value context.
// When logDir is empty, entries go to the console (and the ring buffer) only.
type Logger struct {
	mu              sync.RWMutex
	level           LogLevel
	logDir          string
	currentFile     *os.File
	currentFilePath string
	buffer          []LogEntry
	maxBufferSize   int
	consoleOutput   bool
	rotationPolicy  RotationPolicy
}

// RotationPolicy defines when and how to rotate log files
type RotationPolicy struct {
	Enabled   bool
	MaxSizeMB int
	MaxFiles  int
}

// New creates a new Logger instance
func New(level LogLevel, logDir string, maxBufferSize int) *Logger {
	return &Logger{
		level:         level,
		logDir:        logDir,
		buffer:        make([]LogEntry, 0, maxBufferSize),
		maxBufferSize: maxBufferSize,
		consoleOutput: true,
		rotationPolicy: RotationPolicy{
			Enabled:   true,
			MaxSizeMB: 50,
			MaxFiles:  10,
		},
	}
}

// SetConsoleOutput enables or disables console output
func (l *Logger) SetConsoleOutput(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consoleOutput = enabled
}

// SetLevel changes the current log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// SetRotationPolicy configures log rotation
func (l *Logger) SetRotationPolicy(policy RotationPolicy) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rotationPolicy = policy
}

// Error logs an error level message
func (l *Logger) Error(msg string, context ...interface{}) {
	l.log(ERROR, msg, context...)
}

// Warn logs a warning level message
func (l *Logger) Warn(msg string, context ...interface{}) {
	l.log(WARN, msg, context...)
}

// Info logs an info level message
func (l *Logger) Info(msg string, context ...interface{}) {
	l.log(INFO, msg, context...)
}

// Debug logs a debug level message
func (l *Logger) Debug(msg string, context ...interface{}) {
	l.log(DEBUG, msg, context...)
}

// Trace logs a trace level message
func (l *Logger) Trace(msg string, context ...interface{}) {
	l.log(TRACE, msg, context...)
}

// RecentEntries returns a copy of the buffered log entries, oldest first.
func (l *Logger) RecentEntries() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entries := make([]LogEntry, len(l.buffer))
	copy(entries, l.buffer)
	return entries
}

// Close flushes and closes the current log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.currentFile != nil {
		err := l.currentFile.Close()
		l.currentFile = nil
		return err
	}
	return nil
}

// log is the internal logging function
func (l *Logger) log(level LogLevel, msg string, context ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level > l.level {
		return
	}

	ctx := make(map[string]interface{})
	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			ctx[key] = context[i+1]
		}
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Context:   ctx,
	}

	// Circular buffer of recent entries
	if l.maxBufferSize > 0 {
		if len(l.buffer) >= l.maxBufferSize {
			l.buffer = l.buffer[1:]
		}
		l.buffer = append(l.buffer, entry)
	}

	if l.consoleOutput {
		fmt.Println(formatLogEntry(entry))
	}

	if l.logDir != "" {
		l.writeToFile(entry)
	}
}

// writeToFile writes a log entry to the current log file
func (l *Logger) writeToFile(entry LogEntry) {
	if err := os.MkdirAll(l.logDir, 0755); err != nil {
		return
	}

	if l.currentFile == nil {
		filename := filepath.Join(l.logDir, "server.log")
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}
		l.currentFile = f
		l.currentFilePath = filename
	}

	line := formatLogEntry(entry)
	l.currentFile.WriteString(line + "\n")

	if l.shouldRotate() {
		l.rotate()
	}
}

// shouldRotate reports whether the current log file exceeds the size limit.
func (l *Logger) shouldRotate() bool {
	if !l.rotationPolicy.Enabled || l.currentFile == nil {
		return false
	}
	info, err := l.currentFile.Stat()
	if err != nil {
		return false
	}
	return info.Size() >= int64(l.rotationPolicy.MaxSizeMB)*1024*1024
}

// rotate renames the current file with a timestamp suffix and prunes old files.
func (l *Logger) rotate() {
	if l.currentFile == nil {
		return
	}
	l.currentFile.Close()
	l.currentFile = nil

	rotated := fmt.Sprintf("%s.%s", l.currentFilePath, time.Now().Format("20060102-150405"))
	os.Rename(l.currentFilePath, rotated)

	l.pruneRotated()
}

// pruneRotated removes the oldest rotated files beyond MaxFiles.
func (l *Logger) pruneRotated() {
	if l.rotationPolicy.MaxFiles <= 0 {
		return
	}
	matches, err := filepath.Glob(l.currentFilePath + ".*")
	if err != nil || len(matches) <= l.rotationPolicy.MaxFiles {
		return
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-l.rotationPolicy.MaxFiles] {
		os.Remove(old)
	}
}

// formatLogEntry renders an entry as a single line with key=value context.
func formatLogEntry(entry LogEntry) string {
	var b strings.Builder
	b.WriteString(entry.Timestamp.Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(LevelToString(entry.Level))
	b.WriteString("] ")
	b.WriteString(entry.Message)

	if len(entry.Context) > 0 {
		keys := make([]string, 0, len(entry.Context))
		for k := range entry.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(" ")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(fmt.Sprint(entry.Context[k]))
		}
	}
	return b.String()
}

// LevelToString returns the string name for a log level
func LevelToString(level LogLevel) string {
	if name, ok := levelNames[level]; ok {
		return name
	}
	return "INFO"
}

// ParseLevel converts a level name to a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return ERROR
	case "warn", "warning":
		return WARN
	case "info":
		return INFO
	case "debug":
		return DEBUG
	case "trace":
		return TRACE
	default:
		return INFO
	}
}
