package embedding

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/johnquangdev/transcript-indexer/internal/domain/entities"
	"github.com/johnquangdev/transcript-indexer/internal/domain/repositories"
	"github.com/johnquangdev/transcript-indexer/internal/usecase/indexing"
)

// store keeps jobs and tasks in memory with the same settlement rules as
// the gorm repositories.
type store struct {
	mu    sync.Mutex
	now   func() time.Time
	jobs  map[uuid.UUID]*entities.EmbeddingJob
	tasks map[uuid.UUID]*entities.QueueTask
	order []uuid.UUID

	refuseClaim  bool
	failComplete error
}

func newStore(now func() time.Time) *store {
	return &store{
		now:   now,
		jobs:  make(map[uuid.UUID]*entities.EmbeddingJob),
		tasks: make(map[uuid.UUID]*entities.QueueTask),
	}
}

func (s *store) job(id uuid.UUID) *entities.EmbeddingJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := *s.jobs[id]
	return &j
}

func (s *store) task(id uuid.UUID) *entities.QueueTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *s.tasks[id]
	return &t
}

func (s *store) tasksOf(jobID uuid.UUID) []*entities.QueueTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.QueueTask
	for _, id := range s.order {
		if t := s.tasks[id]; t.JobID == jobID {
			c := *t
			out = append(out, &c)
		}
	}
	return out
}

// seed stores a finished job with one task in the given state.
func (s *store) seed(userID uuid.UUID, recordingID int64, status entities.QueueTaskStatus, attempts int, nextRetryAt *time.Time) (*entities.EmbeddingJob, *entities.QueueTask) {
	job := entities.NewEmbeddingJob(userID, []int64{recordingID}, entities.EmbeddingJobMetadata{})
	job.Status = entities.EmbeddingJobStatusFailed
	job.ProgressCurrent = 1
	job.QueueFailed = 1
	job.FailedRecordingIDs = pq.Int64Array{recordingID}
	job.UpdatedAt = s.now().Add(-time.Hour)

	task := entities.NewQueueTask(job.ID, userID, recordingID, entities.DefaultMaxAttempts)
	task.Status = status
	task.Attempts = attempts
	task.NextRetryAt = nextRetryAt
	task.CreatedAt = s.now().Add(time.Duration(len(s.order)) * time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	s.tasks[task.ID] = task
	s.order = append(s.order, task.ID)
	j, t := *job, *task
	return &j, &t
}

func hasFailed(j *entities.EmbeddingJob, recordingID int64) bool {
	for _, id := range j.FailedRecordingIDs {
		if id == recordingID {
			return true
		}
	}
	return false
}

// recordFailure is the job-side half of a failed settlement; it applies
// once per recording.
func (s *store) recordFailure(j *entities.EmbeddingJob, recordingID int64) {
	if hasFailed(j, recordingID) {
		return
	}
	if j.ProgressCurrent < j.ProgressTotal {
		j.ProgressCurrent++
	}
	j.QueueFailed++
	j.FailedRecordingIDs = append(j.FailedRecordingIDs, recordingID)
	j.UpdatedAt = s.now()
}

type fakeJobs struct{ *store }

func (f fakeJobs) CreateWithTasks(ctx context.Context, job *entities.EmbeddingJob, tasks []*entities.QueueTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := *job
	j.UpdatedAt = f.now()
	f.jobs[job.ID] = &j
	for _, t := range tasks {
		c := *t
		f.tasks[t.ID] = &c
		f.order = append(f.order, t.ID)
	}
	return nil
}

func (f fakeJobs) GetByID(ctx context.Context, jobID uuid.UUID) (*entities.EmbeddingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, nil
	}
	c := *j
	return &c, nil
}

func (f fakeJobs) RecordFailure(ctx context.Context, jobID uuid.UUID, recordingID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[jobID]; ok {
		f.recordFailure(j, recordingID)
	}
	return nil
}

func (f fakeJobs) Finalize(ctx context.Context, jobID uuid.UUID, status entities.EmbeddingJobStatus, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	j := f.jobs[jobID]
	j.Status = status
	j.ErrorMessage = errMsg
	j.CompletedAt = &now
	return nil
}

func (f fakeJobs) FinalizeSettled(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, j := range f.jobs {
		if j.Status != entities.EmbeddingJobStatusRunning {
			continue
		}
		settled := true
		for _, t := range f.tasks {
			if t.JobID == j.ID && (t.Status == entities.QueueTaskStatusPending ||
				t.Status == entities.QueueTaskStatusProcessing ||
				t.Status == entities.QueueTaskStatusFailed) {
				settled = false
			}
		}
		if settled {
			j.Status = entities.ResolveJobStatus(j.QueueTotal, j.QueueFailed)
			n++
		}
	}
	return n, nil
}

type fakeQueue struct{ *store }

func lockFree(t *entities.QueueTask, now time.Time, ttl time.Duration) bool {
	return t.LockedAt == nil || t.LockedAt.Before(now.Add(-ttl))
}

func (f fakeQueue) lock(t *entities.QueueTask, workerID string, now time.Time) {
	t.LockedAt = &now
	t.WorkerID = &workerID
}

func (f fakeQueue) Claim(ctx context.Context, taskID uuid.UUID, workerID string, now time.Time, lockTTL time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[taskID]
	if f.refuseClaim || t == nil || t.Status == entities.QueueTaskStatusCompleted || !lockFree(t, now, lockTTL) {
		return false, nil
	}
	t.Status = entities.QueueTaskStatusProcessing
	f.lock(t, workerID, now)
	return true, nil
}

func (f fakeQueue) ClaimBatch(ctx context.Context, filter repositories.ClaimFilter) ([]*entities.QueueTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := filter.Now.Add(-filter.LockTTL)
	var out []*entities.QueueTask
	for _, id := range f.order {
		if len(out) >= filter.Limit {
			break
		}
		t := f.tasks[id]
		switch t.Status {
		case entities.QueueTaskStatusPending, entities.QueueTaskStatusFailed, entities.QueueTaskStatusProcessing:
		default:
			continue
		}
		if t.IsCoolingDown(filter.Now) || !lockFree(t, filter.Now, filter.LockTTL) {
			continue
		}
		if filter.JobID != nil && t.JobID != *filter.JobID {
			continue
		}
		if j := f.jobs[t.JobID]; j.Status == entities.EmbeddingJobStatusRunning && j.UpdatedAt.After(cutoff) {
			continue
		}
		t.Status = entities.QueueTaskStatusProcessing
		f.lock(t, filter.WorkerID, filter.Now)
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

func (f fakeQueue) ClaimDeadLetter(ctx context.Context, filter repositories.DeadLetterFilter) (*entities.QueueTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		t := f.tasks[id]
		if t.Status != entities.QueueTaskStatusDeadLetter || !lockFree(t, filter.Now, filter.LockTTL) {
			continue
		}
		if filter.RecordingID != nil && t.RecordingID != *filter.RecordingID {
			continue
		}
		if filter.UserID != nil && t.UserID != *filter.UserID {
			continue
		}
		if !filter.ForceRetry && t.IsCoolingDown(filter.Now) {
			continue
		}
		f.lock(t, filter.WorkerID, filter.Now)
		c := *t
		return &c, nil
	}
	return nil, nil
}

func (f fakeQueue) Release(ctx context.Context, taskID uuid.UUID, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[taskID]
	if t.WorkerID != nil && *t.WorkerID == workerID && t.Status == entities.QueueTaskStatusProcessing {
		t.Status = entities.QueueTaskStatusPending
		t.LockedAt, t.WorkerID = nil, nil
	}
	return nil
}

func (f fakeQueue) Complete(ctx context.Context, task *entities.QueueTask, chunksCreated int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failComplete != nil {
		return false, f.failComplete
	}
	t := f.tasks[task.ID]
	if t.Status == entities.QueueTaskStatusCompleted {
		return false, nil
	}
	now := f.now()
	t.Status = entities.QueueTaskStatusCompleted
	t.CompletedAt = &now
	t.LockedAt, t.WorkerID = nil, nil

	j := f.jobs[task.JobID]
	j.ChunksCreated += chunksCreated
	j.QueueCompleted++
	j.UpdatedAt = now
	if !hasFailed(j, task.RecordingID) {
		if j.ProgressCurrent < j.ProgressTotal {
			j.ProgressCurrent++
		}
		return true, nil
	}
	if j.QueueFailed > 0 {
		j.QueueFailed--
	}
	kept := pq.Int64Array{}
	for _, id := range j.FailedRecordingIDs {
		if id != task.RecordingID {
			kept = append(kept, id)
		}
	}
	j.FailedRecordingIDs = kept
	if j.Status == entities.EmbeddingJobStatusFailed {
		j.Status = entities.EmbeddingJobStatusCompleted
	}
	return true, nil
}

func (f fakeQueue) Fail(ctx context.Context, task *entities.QueueTask, failure repositories.TaskFailure) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[task.ID]
	if t.Attempts != task.Attempts {
		return nil
	}
	t.Status = entities.QueueTaskStatusFailed
	if failure.DeadLetter {
		t.Status = entities.QueueTaskStatusDeadLetter
	}
	t.Attempts++
	msg := failure.Error
	t.LastError = &msg
	t.NextRetryAt = failure.NextRetryAt
	t.LockedAt, t.WorkerID = nil, nil

	f.recordFailure(f.jobs[task.JobID], task.RecordingID)
	return nil
}

func (f fakeQueue) DeferDeadLetter(ctx context.Context, task *entities.QueueTask, errMsg string, nextRetryAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[task.ID]
	if t.Status != entities.QueueTaskStatusDeadLetter {
		return nil
	}
	t.Attempts++
	t.LastError = &errMsg
	t.NextRetryAt = &nextRetryAt
	t.LockedAt, t.WorkerID = nil, nil
	return nil
}

func (f fakeQueue) CountByStatus(ctx context.Context, status entities.QueueTaskStatus, userID *uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, t := range f.tasks {
		if t.Status == status && (userID == nil || t.UserID == *userID) {
			n++
		}
	}
	return n, nil
}

func (f fakeQueue) CountDue(ctx context.Context, now time.Time, jobID *uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, t := range f.tasks {
		if t.Status != entities.QueueTaskStatusPending && t.Status != entities.QueueTaskStatusFailed {
			continue
		}
		if t.IsCoolingDown(now) || (jobID != nil && t.JobID != *jobID) {
			continue
		}
		n++
	}
	return n, nil
}

type fakeTranscripts struct {
	unindexed []int64
}

func (f *fakeTranscripts) GetCall(ctx context.Context, userID uuid.UUID, recordingID int64) (*entities.Call, error) {
	return nil, nil
}

func (f *fakeTranscripts) ListSegments(ctx context.Context, userID uuid.UUID, recordingID int64) ([]entities.TranscriptSegment, error) {
	return nil, nil
}

func (f *fakeTranscripts) GetCallCategory(ctx context.Context, recordingID int64) (string, error) {
	return "", nil
}

func (f *fakeTranscripts) ListUnindexedRecordingIDs(ctx context.Context, userID uuid.UUID) ([]int64, error) {
	return f.unindexed, nil
}

// fakeIndexer returns chunksPer chunks unless fail names the recording.
type fakeIndexer struct {
	mu        sync.Mutex
	chunksPer int
	fail      map[int64]error
	block     bool
	calls     []int64
	params    []indexing.Params
}

func (f *fakeIndexer) IndexRecording(ctx context.Context, userID uuid.UUID, recordingID int64, params indexing.Params) (*indexing.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordingID)
	f.params = append(f.params, params)
	block := f.block
	err := f.fail[recordingID]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, f.chunksPer)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return &indexing.Result{ChunksCreated: f.chunksPer, ChunkIDs: ids}, nil
}
