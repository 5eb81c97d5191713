package jobcontext

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type KeyContext string

var (
	keyJobID        KeyContext = "job_id"
	keyJobType      KeyContext = "job_type"
	keyWorkerID     KeyContext = "worker_id"
	keyJobStartTime KeyContext = "job_start_time"
	keyDeadline     KeyContext = "job_budget"
)

// Job types
const (
	JobTypeIndex    = "index"
	JobTypeDrain    = "drain"
	JobTypeRecovery = "recovery"
)

// JobMetadata holds metadata for a job execution
type JobMetadata struct {
	JobID     uuid.UUID
	JobType   string
	WorkerID  string
	StartTime time.Time
	Budget    time.Duration
}

// NewWorkerID returns a worker id such as "recovery-1a2b3c4d"
func NewWorkerID(jobType string) string {
	return fmt.Sprintf("%s-%s", jobType, uuid.NewString()[:8])
}

// JobBegin initializes a job context with metadata and a wall-clock budget.
// A zero budget adds no deadline.
func JobBegin(parentCtx context.Context, jobType, workerID string, budget time.Duration) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if budget > 0 {
		ctx, cancel = context.WithTimeout(parentCtx, budget)
	} else {
		ctx, cancel = context.WithCancel(parentCtx)
	}

	ctx = context.WithValue(ctx, keyJobType, jobType)
	ctx = context.WithValue(ctx, keyWorkerID, workerID)
	ctx = context.WithValue(ctx, keyJobStartTime, time.Now())
	ctx = context.WithValue(ctx, keyDeadline, budget)

	return ctx, cancel
}

// WithJobID attaches the embedding job being worked on
func WithJobID(ctx context.Context, jobID uuid.UUID) context.Context {
	return context.WithValue(ctx, keyJobID, jobID)
}

// GetJobID extracts job ID from context
func GetJobID(ctx context.Context) (uuid.UUID, bool) {
	jobID, ok := ctx.Value(keyJobID).(uuid.UUID)
	return jobID, ok
}

// GetJobType extracts job type from context
func GetJobType(ctx context.Context) (string, bool) {
	jobType, ok := ctx.Value(keyJobType).(string)
	return jobType, ok
}

// GetWorkerID extracts worker ID from context
func GetWorkerID(ctx context.Context) string {
	workerID, _ := ctx.Value(keyWorkerID).(string)
	return workerID
}

// GetJobStartTime extracts job start time from context
func GetJobStartTime(ctx context.Context) (time.Time, bool) {
	startTime, ok := ctx.Value(keyJobStartTime).(time.Time)
	return startTime, ok
}

// Elapsed returns the time since JobBegin, or 0 outside a job
func Elapsed(ctx context.Context) time.Duration {
	start, ok := GetJobStartTime(ctx)
	if !ok {
		return 0
	}
	return time.Since(start)
}

// Remaining returns the budget left before the job deadline. ok is false
// when the job has no deadline.
func Remaining(ctx context.Context) (time.Duration, bool) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0, false
	}
	return time.Until(deadline), true
}

// GetJobMetadata extracts all job metadata from context
func GetJobMetadata(ctx context.Context) *JobMetadata {
	jobID, _ := GetJobID(ctx)
	jobType, _ := GetJobType(ctx)
	startTime, _ := GetJobStartTime(ctx)
	budget, _ := ctx.Value(keyDeadline).(time.Duration)

	return &JobMetadata{
		JobID:     jobID,
		JobType:   jobType,
		WorkerID:  GetWorkerID(ctx),
		StartTime: startTime,
		Budget:    budget,
	}
}
