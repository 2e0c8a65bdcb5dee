package pipeline

import (
	"sync"
	"time"
)

// Job status values reported through the StatusManager.
const (
	StatusQueued    = "Queued"
	StatusRunning   = "Running"
	StatusCompleted = "Completed"
	StatusCached    = "Completed [cache]"
	StatusFailed    = "Failed"
	StatusSkipped   = "Skipped"
)

type JobStatus struct {
	Status    string
	StartTime time.Time
	EndTime   time.Time
	LogLines  []string
}

type StatusManager interface {
	SetStatus(name, status string)
	UpdateStatus(name, status string, startTime, endTime time.Time)
	AppendLog(name, line string)
	MarkAsFailed(name string)
	FailedCount() int
	Snapshot() map[string]JobStatus
}

type statusManager struct {
	statusMap  map[string]*JobStatus
	failedJobs []string
	mu         sync.Mutex
}

func NewStatusManager() StatusManager {
	return &statusManager{
		statusMap: make(map[string]*JobStatus),
	}
}

func (sm *statusManager) SetStatus(name, status string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.ensure(name).Status = status
}

func (sm *statusManager) UpdateStatus(name, status string, startTime, endTime time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	js := sm.ensure(name)
	js.Status = status
	if !startTime.IsZero() {
		js.StartTime = startTime
	}
	if !endTime.IsZero() {
		js.EndTime = endTime
	}
}

func (sm *statusManager) AppendLog(name, line string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	js := sm.ensure(name)
	js.LogLines = append(js.LogLines, line)
}

func (sm *statusManager) MarkAsFailed(name string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.failedJobs = append(sm.failedJobs, name)
	sm.ensure(name).Status = StatusFailed
}

func (sm *statusManager) FailedCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.failedJobs)
}

// Snapshot copies the current state of every job for display.
func (sm *statusManager) Snapshot() map[string]JobStatus {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make(map[string]JobStatus, len(sm.statusMap))
	for name, js := range sm.statusMap {
		copied := *js
		copied.LogLines = append([]string(nil), js.LogLines...)
		out[name] = copied
	}
	return out
}

func (sm *statusManager) ensure(name string) *JobStatus {
	if _, ok := sm.statusMap[name]; !ok {
		sm.statusMap[name] = &JobStatus{Status: StatusQueued}
	}
	return sm.statusMap[name]
}
