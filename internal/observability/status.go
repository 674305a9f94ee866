package observability

import (
	"sync"
	"time"
)

type Phase string

const (
	PhaseIdle      Phase = "IDLE"
	PhasePlanning  Phase = "PLANNING"
	PhaseExecuting Phase = "EXECUTING"
	PhaseAwaiting  Phase = "AWAITING" // suspended on an authorization gate
)

type SystemStatus struct {
	mu            sync.RWMutex
	CurrentPhase  Phase
	Mode          string
	ActiveStep    string
	LastHeartbeat time.Time
}

var globalStatus = &SystemStatus{
	CurrentPhase:  PhaseIdle,
	LastHeartbeat: time.Now(),
}

// SetStatus updates the global system status. An empty mode keeps the
// last known one, so callers only need to pass it when it changes.
func SetStatus(phase Phase, mode string, step string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.CurrentPhase = phase
	if mode != "" {
		globalStatus.Mode = mode
	}
	globalStatus.ActiveStep = step
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (Phase, string, string, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.CurrentPhase, globalStatus.Mode, globalStatus.ActiveStep, globalStatus.LastHeartbeat
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
