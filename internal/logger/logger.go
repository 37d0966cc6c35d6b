package logger

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type ContextKey string

const (
	RequestIDKey      ContextKey = "request_id"
	UserIDKey         ContextKey = "user_id"
	ConversationIDKey ContextKey = "conversation_id"
)

type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// Init configures the global logrus logger.
func Init(cfg *Config) {
	InitWithOutput(cfg, os.Stdout)
}

func InitWithOutput(cfg *Config, out io.Writer) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	if cfg.Format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	logrus.SetOutput(out)
	logrus.SetLevel(level)
}

// WithContext returns an entry carrying the request, user and conversation ids found in ctx.
func WithContext(ctx context.Context) *logrus.Entry {
	fields := logrus.Fields{}
	if ctx != nil {
		for _, key := range []ContextKey{RequestIDKey, UserIDKey, ConversationIDKey} {
			if v, ok := ctx.Value(key).(string); ok && v != "" {
				fields[string(key)] = v
			}
		}
	}
	return logrus.WithFields(fields)
}

func WithConversation(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, ConversationIDKey, conversationID)
}

func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}
