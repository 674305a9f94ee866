package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypeGate        EventType = "gate"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeToolCall    EventType = "tool_call"
	EventTypeToolResult  EventType = "tool_result"
	EventTypeCost        EventType = "cost"
	EventTypeHeartbeat   EventType = "heartbeat"
	EventTypeLLM         EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	StepID    string    `json:"step_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	// Out receives the JSON event stream; stdout when nil.
	Out io.Writer

	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return &Logger{
		llmLogPath: filepath.Join("logs", "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	out := l.Out
	if out == nil {
		out = os.Stdout
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Fprintf(out, "{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Fprintln(out, string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogPlan(taskID string, steps []string) {
	l.Log(Event{
		Type:   EventTypePlan,
		TaskID: taskID,
		Data:   map[string]any{"steps": steps},
	})
}

func (l *Logger) LogStep(taskID, stepID, status, detail string) {
	l.Log(Event{
		Type:   EventTypeStep,
		TaskID: taskID,
		StepID: stepID,
		Data: map[string]string{
			"status": status,
			"detail": detail,
		},
	})
}

func (l *Logger) LogGate(taskID, batchID, decision, reason string) {
	l.Log(Event{
		Type:   EventTypeGate,
		TaskID: taskID,
		Data: map[string]string{
			"batch":    batchID,
			"decision": decision,
			"reason":   reason,
		},
	})
}

func (l *Logger) LogPolicyCheck(taskID, tool, effect, reason string) {
	l.Log(Event{
		Type:   EventTypePolicyCheck,
		TaskID: taskID,
		Data: map[string]string{
			"tool":   tool,
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogToolCall(taskID, callID, tool, args string) {
	l.Log(Event{
		Type:   EventTypeToolCall,
		TaskID: taskID,
		Data: map[string]string{
			"call": callID,
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogToolResult(taskID, callID, tool, kind string) {
	l.Log(Event{
		Type:   EventTypeToolResult,
		TaskID: taskID,
		Data: map[string]string{
			"call": callID,
			"tool": tool,
			"kind": kind,
		},
	})
}

func (l *Logger) LogCost(taskID, stepID string, promptTokens, completionTokens int, model string) {
	l.Log(Event{
		Type:   EventTypeCost,
		TaskID: taskID,
		StepID: stepID,
		Data: map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
			"model":             model,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(taskID, stepID string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:   EventTypeLLM,
		TaskID: taskID,
		StepID: stepID,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}
