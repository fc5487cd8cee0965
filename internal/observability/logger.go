package observability

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeRoute     EventType = "route"
	EventTypeResearch  EventType = "research"
	EventTypePlan      EventType = "plan"
	EventTypeStep      EventType = "step"
	EventTypeCritic    EventType = "critic"
	EventTypeInterrupt EventType = "interrupt"
	EventTypeDecision  EventType = "decision"
	EventTypeCommit    EventType = "commit"
	EventTypePolish    EventType = "polish"
	EventTypeRetrieval EventType = "retrieval"
	EventTypeCost      EventType = "cost"
	EventTypeLLM       EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	ChatID    string    `json:"chat_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configures NewLogger.
type Options struct {
	Level   string
	Format  string
	LLMPath string
}

// Logger handles structured logging. Events go through zap; LLM events are
// also appended to a rotated JSONL file for prompt debugging.
type Logger struct {
	zap        *zap.Logger
	llmLogPath string
	maxSize    int64
	fileMu     *sync.Mutex
}

func NewLogger(opts Options) (*Logger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	core := zapcore.NewCore(newEncoder(opts.Format), zapcore.Lock(os.Stderr), level)

	return &Logger{
		zap:        zap.New(core),
		llmLogPath: opts.LLMPath,
		maxSize:    10 * 1024 * 1024, // 10MB
		fileMu:     &sync.Mutex{},
	}, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	return FromZap(zap.NewNop())
}

// FromZap wraps an existing zap logger without an LLM file sink.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{zap: z, fileMu: &sync.Mutex{}}
}

func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

// Log emits a structured event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	fields := []zap.Field{zap.String("event", string(evt.Type))}
	if evt.RunID != "" {
		fields = append(fields, zap.String("run_id", evt.RunID))
	}
	if evt.ChatID != "" {
		fields = append(fields, zap.String("chat_id", evt.ChatID))
	}
	if evt.Data != nil {
		fields = append(fields, zap.Any("data", evt.Data))
	}

	if evt.Type == EventTypeLLM {
		// Prompts are large; keep them out of the main stream.
		l.zap.Debug(string(evt.Type), fields...)
		l.writeToFile(evt)
		return
	}
	l.zap.Info(string(evt.Type), fields...)
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zap.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zap.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, fields...) }

// With returns a child logger carrying fields on every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		zap:        l.zap.With(fields...),
		llmLogPath: l.llmLogPath,
		maxSize:    l.maxSize,
		fileMu:     l.fileMu,
	}
}

// Underlying returns the zap logger for libraries that want one.
func (l *Logger) Underlying() *zap.Logger {
	return l.zap
}

func (l *Logger) Sync() error {
	return l.zap.Sync()
}

func (l *Logger) writeToFile(evt Event) {
	if l.llmLogPath == "" {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		l.zap.Warn("failed to marshal llm event", zap.Error(err))
		return
	}

	l.fileMu.Lock()
	defer l.fileMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		l.zap.Warn("failed to create log directory", zap.Error(err))
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.zap.Warn("failed to open llm log file", zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.zap.Warn("failed to write llm log file", zap.Error(err))
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogInterrupt(runID, kind, question string) {
	l.Log(Event{
		Type:  EventTypeInterrupt,
		RunID: runID,
		Data: map[string]string{
			"kind":     kind,
			"question": question,
		},
	})
}

func (l *Logger) LogDecision(runID, kind, decision string) {
	l.Log(Event{
		Type:  EventTypeDecision,
		RunID: runID,
		Data: map[string]string{
			"kind":     kind,
			"decision": decision,
		},
	})
}

func (l *Logger) LogCost(runID string, promptTokens, completionTokens int, model string) {
	l.Log(Event{
		Type:  EventTypeCost,
		RunID: runID,
		Data: map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
			"model":             model,
		},
	})
}

func (l *Logger) LogLLM(runID string, prompt any, response string) {
	l.Log(Event{
		Type:  EventTypeLLM,
		RunID: runID,
		Data: map[string]any{
			"prompt":   prompt,
			"response": response,
		},
	})
}
