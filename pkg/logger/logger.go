// Package logger provides structured logging for the escrow orchestrator.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with the fields the orchestrator attaches to
// every entry (component name, trade/bot identifiers).
type Logger struct {
	*logrus.Logger
	component string
}

// Config contains logging configuration.
type Config struct {
	Level  string
	Format string
}

// New creates a new Logger instance for the given component.
func New(component string, cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.ToLower(cfg.Format) == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, component: component}
}

// NewDefault creates a logger with sensible defaults for the given component.
func NewDefault(component string) *Logger {
	return New(component, Config{Level: "info", Format: "text"})
}

// NewFromEnv builds a logger using LOG_LEVEL/LOG_FORMAT, defaulting to info/json.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, Config{Level: level, Format: format})
}

// WithTrade returns an entry tagged with the trade's UUID.
func (l *Logger) WithTrade(tradeID string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"component": l.component, "trade_id": tradeID})
}

// WithBot returns an entry tagged with a bot identifier.
func (l *Logger) WithBot(botID string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"component": l.component, "bot_id": botID})
}

// WithUser returns an entry tagged with a user identifier.
func (l *Logger) WithUser(userID int64) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"component": l.component, "user_id": userID})
}

// WithError returns an entry tagged with an error and this logger's component.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"component": l.component, "error": err.Error()})
}

// WithFields returns an entry with custom fields plus the component tag.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}
