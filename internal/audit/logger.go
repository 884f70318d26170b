// Package audit records the operational trail of the analytics service as a
// rotating JSONL event log: accepted and rejected ingests, raised alerts,
// WebSocket evictions and authentication failures. The trail is write-only;
// nothing in the service reads it back.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for event logging
type Logger interface {
	// Log records a single event
	Log(ctx context.Context, event *Event) error

	// LogIngest records ingest pipeline outcomes
	LogIngestAccepted(ctx context.Context, store, dept int, riskLevel string, riskScore float64, anomaly bool) error
	LogIngestRejected(ctx context.Context, store, dept int, reason string) error

	// LogAlertRaised records a high-risk alert
	LogAlertRaised(ctx context.Context, store, dept int, message string, riskScore float64) error

	// LogClientEvicted records a WebSocket client dropped during broadcast
	LogClientEvicted(ctx context.Context, clientID string) error

	// LogAuthFailure records a rejected authentication attempt
	LogAuthFailure(ctx context.Context, sourceIP, reason string) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the event logger
	Close() error
}

// Config represents event logger configuration
type Config struct {
	// EventLogPath is the path to the event log file
	EventLogPath string

	// AppLogPath is the path to the application log file
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string
}

// DefaultConfig returns default event logger configuration
func DefaultConfig() *Config {
	return &Config{
		EventLogPath: "logs/events.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
		LogLevel:     "info",
	}
}

// eventLogger implements the Logger interface
type eventLogger struct {
	app         *zap.Logger
	events      *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
}

// NewLogger creates a new event logger
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// Application logger with rotation
	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(appRotator),
		level,
	)

	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// Event logger with rotation (always INFO level, append-only)
	eventRotator := &lumberjack.Logger{
		Filename:   config.EventLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	eventCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(eventRotator),
		zapcore.InfoLevel,
	)

	logger := &eventLogger{
		app:         appLogger,
		events:      zap.New(eventCore),
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	go logger.autoFlush()

	return logger, nil
}

// Log records a single event
func (l *eventLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)

	// Flush if buffer is full
	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *eventLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.app.Error("failed to marshal event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.events.Info(string(eventJSON),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer
func (l *eventLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogIngestAccepted records a committed IoT ingest with its analysis outcome
func (l *eventLogger) LogIngestAccepted(ctx context.Context, store, dept int, riskLevel string, riskScore float64, anomaly bool) error {
	event := NewEvent(EventIngestAccepted).
		WithStore(store, dept).
		WithRisk(riskLevel, riskScore).
		WithMetadata("anomaly", anomaly).
		WithDescription(fmt.Sprintf("IoT update for store %d dept %d accepted", store, dept))

	return l.Log(ctx, event)
}

// LogIngestRejected records an ingest that failed validation
func (l *eventLogger) LogIngestRejected(ctx context.Context, store, dept int, reason string) error {
	event := NewEvent(EventIngestRejected).
		WithStore(store, dept).
		WithResult(ResultDenied).
		WithDescription(reason)

	return l.Log(ctx, event)
}

// LogAlertRaised records a high-risk alert emitted by the ingest pipeline
func (l *eventLogger) LogAlertRaised(ctx context.Context, store, dept int, message string, riskScore float64) error {
	event := NewEvent(EventAlertRaised).
		WithStore(store, dept).
		WithRisk("HIGH", riskScore).
		WithDescription(message)

	return l.Log(ctx, event)
}

// LogClientEvicted records a WebSocket client dropped for failed sends
func (l *eventLogger) LogClientEvicted(ctx context.Context, clientID string) error {
	event := NewEvent(EventClientEvicted).
		WithResult(ResultFailure).
		WithMetadata("client_id", clientID).
		WithDescription(fmt.Sprintf("WebSocket client %s evicted after send failure", clientID))

	return l.Log(ctx, event)
}

// LogAuthFailure records a rejected authentication attempt
func (l *eventLogger) LogAuthFailure(ctx context.Context, sourceIP, reason string) error {
	event := NewEvent(EventAuthFailure).
		WithResult(ResultDenied).
		WithSourceIP(sourceIP).
		WithDescription(reason)

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *eventLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.events.Sync(); err != nil {
		return err
	}

	return l.app.Sync()
}

// Close stops the flush loop and drains the buffer. Safe to call twice.
func (l *eventLogger) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopCh)
		l.flushTicker.Stop()
	})

	return l.Sync()
}
