package sellergo

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// Logger is the minimal logging interface the client emits debug output
// through. Adapt your structured logger of choice behind it.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SimpleLogger writes leveled key/value lines to stderr.
type SimpleLogger struct {
	logger *log.Logger
}

// NewSimpleLogger creates a stderr logger.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{logger: log.New(os.Stderr, "sellergo ", log.LstdFlags|log.Lmicroseconds)}
}

func (l *SimpleLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log("DEBUG", msg, keysAndValues...)
}

func (l *SimpleLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log("INFO", msg, keysAndValues...)
}

func (l *SimpleLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log("WARN", msg, keysAndValues...)
}

func (l *SimpleLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log("ERROR", msg, keysAndValues...)
}

func (l *SimpleLogger) log(level, msg string, keysAndValues ...interface{}) {
	line := level + " " + msg
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		line += fmt.Sprintf(" %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	l.logger.Println(line)
}

// DebugConfig selects which pipeline stages emit debug logs.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogRateLimit bool
	LogCache     bool
	RequestIDGen func() string
}

var requestIDCounter uint64

// DefaultDebugConfig returns a config with all stages enabled once debug is
// switched on, and a monotonic request-ID generator.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		LogRequests:  true,
		LogRetries:   true,
		LogRateLimit: true,
		LogCache:     true,
		RequestIDGen: func() string {
			return fmt.Sprintf("req-%d", atomic.AddUint64(&requestIDCounter, 1))
		},
	}
}
