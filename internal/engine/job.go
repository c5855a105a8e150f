package engine

import (
	"sync"
	"time"

	"github.com/snarg/stt-engine/internal/media"
	"github.com/snarg/stt-engine/internal/transcribe"
)

// Status is a job lifecycle state. Queued → Active → {Completed, Failed};
// no transition skips a state. A retried job goes back to Queued rather than
// to a new terminal state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one transcription request's lifecycle record. Identity fields are
// written once at submission; mutable state is guarded by mu because multiple
// workers and the janitor touch it concurrently.
type Job struct {
	ID            string
	RequestID     string
	SourceFile    string
	FileSizeBytes int64
	Provider      string
	Options       transcribe.Options
	Priority      int
	CacheKey      string
	Media         *media.Info
	CreatedAt     time.Time

	mu         sync.Mutex
	status     Status
	progress   int
	attempts   int
	startedAt  time.Time
	finishedAt time.Time
	result     *transcribe.Result
	errKind    ErrKind
	errMsg     string
}

// CASStatus transitions from → to atomically. Returns false when the job is
// not in the expected state, which is how two workers are kept from claiming
// the same job.
func (j *Job) CASStatus(from, to Status) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != from {
		return false
	}
	j.status = to
	return true
}

// Status returns the current lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) setProgress(p int) {
	j.mu.Lock()
	if p > j.progress {
		j.progress = p
	}
	j.mu.Unlock()
}

// markStarted records the attempt now running and the first-start timestamp.
func (j *Job) markStarted(attempt int) {
	j.mu.Lock()
	if attempt > j.attempts {
		j.attempts = attempt
	}
	if j.startedAt.IsZero() {
		j.startedAt = time.Now()
	}
	if j.progress < progressClaimed {
		j.progress = progressClaimed
	}
	j.mu.Unlock()
}

// Attempts returns how many attempts have started.
func (j *Job) Attempts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempts
}

func (j *Job) complete(res *transcribe.Result) {
	j.mu.Lock()
	j.result = res
	j.progress = progressDone
	j.finishedAt = time.Now()
	j.mu.Unlock()
}

func (j *Job) fail(kind ErrKind, msg string) {
	j.mu.Lock()
	j.errKind = kind
	j.errMsg = msg
	j.finishedAt = time.Now()
	j.mu.Unlock()
}

// Coarse progress milestones. Workers report these instead of a continuous
// percentage.
const (
	progressProbed       = 10
	progressClaimed      = 25
	progressPreprocessed = 40
	progressCallStarted  = 60
	progressCallFinished = 90
	progressDone         = 100
)

// JobError is the caller-visible failure of a terminal job.
type JobError struct {
	Kind    ErrKind `json:"kind"`
	Message string  `json:"message"`
}

// JobStatus is a point-in-time snapshot served by GetStatus.
type JobStatus struct {
	RequestID       string             `json:"request_id"`
	JobID           string             `json:"job_id"`
	Provider        string             `json:"provider"`
	Status          Status             `json:"status"`
	ProgressPercent int                `json:"progress_percent"`
	Attempts        int                `json:"attempts"`
	CreatedAt       time.Time          `json:"created_at"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	FinishedAt      *time.Time         `json:"finished_at,omitempty"`
	Result          *transcribe.Result `json:"result,omitempty"`
	Error           *JobError          `json:"error,omitempty"`
}

// snapshot copies current state without blocking workers for long.
func (j *Job) snapshot() *JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	st := &JobStatus{
		RequestID:       j.RequestID,
		JobID:           j.ID,
		Provider:        j.Provider,
		Status:          j.status,
		ProgressPercent: j.progress,
		Attempts:        j.attempts,
		CreatedAt:       j.CreatedAt,
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		st.StartedAt = &t
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		st.FinishedAt = &t
	}
	if j.result != nil {
		res := *j.result
		st.Result = &res
	}
	if j.errKind != "" {
		st.Error = &JobError{Kind: j.errKind, Message: j.errMsg}
	}
	return st
}

func (j *Job) finishedBefore(cutoff time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status.Terminal() && !j.finishedAt.IsZero() && j.finishedAt.Before(cutoff)
}
