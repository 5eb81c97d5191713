package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnquangdev/transcript-indexer/internal/domain/entities"
	"github.com/johnquangdev/transcript-indexer/internal/usecase/chunking"
	"github.com/johnquangdev/transcript-indexer/internal/usecase/indexing"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{
		Primary: indexing.Params{
			Chunking:        chunking.Options{TargetTokens: 400, OverlapTokens: 100, MaxTokens: 1200},
			EmbedBatchSize:  100,
			InsertBatchSize: 50,
			Budget:          5 * time.Minute,
		},
		Recovery: indexing.Params{
			Chunking:        chunking.Options{TargetTokens: 500, OverlapTokens: 100, MaxTokens: 1200},
			EmbedBatchSize:  100,
			InsertBatchSize: 5,
			Budget:          2 * time.Minute,
		},
		MaxAttempts:    3,
		LockTTL:        10 * time.Minute,
		EmbeddingModel: "text-embedding-3-small",
	}
}

type harness struct {
	svc         *service
	store       *store
	indexer     *fakeIndexer
	transcripts *fakeTranscripts
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	now := func() time.Time { return testNow }
	st := newStore(now)
	idx := &fakeIndexer{chunksPer: 4, fail: map[int64]error{}}
	tr := &fakeTranscripts{}
	svc := NewService(tr, fakeJobs{st}, fakeQueue{st}, idx, opts, nil).(*service)
	svc.now = now
	return &harness{svc: svc, store: st, indexer: idx, transcripts: tr}
}

func TestStartJob_AllRecordingsIndexed(t *testing.T) {
	h := newHarness(t, testOptions())
	userID := uuid.New()

	res, err := h.svc.StartJob(context.Background(), StartJobInput{UserID: userID, RecordingIDs: []int64{1, 2, 3}})
	require.NoError(t, err)
	require.NotNil(t, res.JobID)

	assert.Equal(t, entities.EmbeddingJobStatusCompleted, res.Status)
	assert.Equal(t, 3, res.RecordingsProcessed)
	assert.Zero(t, res.RecordingsFailed)
	assert.Equal(t, 12, res.ChunksCreated)
	assert.Empty(t, res.FailedRecordingIDs)
	assert.Equal(t, []int64{1, 2, 3}, h.indexer.calls)
	assert.Equal(t, testOptions().Primary, h.indexer.params[0])

	job := h.store.job(*res.JobID)
	assert.Equal(t, entities.EmbeddingJobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.ProgressCurrent)
	assert.Equal(t, 3, job.ProgressTotal)
	assert.Equal(t, 12, job.ChunksCreated)
	assert.Equal(t, 3, job.QueueCompleted)
	assert.Equal(t, entities.EmbeddingJobTriggerExplicit, job.Metadata.Data().Trigger)
	assert.Equal(t, 400, job.Metadata.Data().TargetTokens)

	for _, task := range h.store.tasksOf(*res.JobID) {
		assert.Equal(t, entities.QueueTaskStatusCompleted, task.Status)
		assert.Nil(t, task.WorkerID)
	}
}

func TestStartJob_PartialFailureIsCompleted(t *testing.T) {
	h := newHarness(t, testOptions())
	h.indexer.fail[2] = errors.New("embedding provider returned status 500: upstream")

	res, err := h.svc.StartJob(context.Background(), StartJobInput{UserID: uuid.New(), RecordingIDs: []int64{1, 2, 3}})
	require.NoError(t, err)

	assert.Equal(t, entities.EmbeddingJobStatusCompleted, res.Status)
	assert.Equal(t, 2, res.RecordingsProcessed)
	assert.Equal(t, 1, res.RecordingsFailed)
	assert.Equal(t, 8, res.ChunksCreated)
	assert.Equal(t, []int64{2}, res.FailedRecordingIDs)

	job := h.store.job(*res.JobID)
	assert.Equal(t, entities.EmbeddingJobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.ProgressCurrent)
	assert.Equal(t, []int64{2}, []int64(job.FailedRecordingIDs))
	assert.Equal(t, 1, job.QueueFailed)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "1 of 3 recordings failed", *job.ErrorMessage)

	var failed *entities.QueueTask
	for _, task := range h.store.tasksOf(*res.JobID) {
		if task.RecordingID == 2 {
			failed = task
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, entities.QueueTaskStatusFailed, failed.Status)
	assert.Equal(t, 1, failed.Attempts)
	require.NotNil(t, failed.NextRetryAt)
	assert.Equal(t, testNow.Add(30*time.Second), *failed.NextRetryAt)
	require.NotNil(t, failed.LastError)
	assert.Contains(t, *failed.LastError, "status 500")
	assert.Nil(t, failed.LockedAt)
}

func TestStartJob_AllFailedMarksJobFailed(t *testing.T) {
	h := newHarness(t, testOptions())
	h.indexer.fail[1] = entities.ErrNoSegments
	h.indexer.fail[2] = entities.ErrCallNotFound

	res, err := h.svc.StartJob(context.Background(), StartJobInput{UserID: uuid.New(), RecordingIDs: []int64{1, 2}})
	require.NoError(t, err)

	assert.Equal(t, entities.EmbeddingJobStatusFailed, res.Status)
	assert.Zero(t, res.RecordingsProcessed)
	assert.Equal(t, []int64{1, 2}, res.FailedRecordingIDs)
	assert.Equal(t, entities.EmbeddingJobStatusFailed, h.store.job(*res.JobID).Status)
}

func TestStartJob_UnclaimedRecordingsAreCountedAsFailed(t *testing.T) {
	h := newHarness(t, testOptions())
	h.store.refuseClaim = true

	res, err := h.svc.StartJob(context.Background(), StartJobInput{UserID: uuid.New(), RecordingIDs: []int64{1, 2}})
	require.NoError(t, err)

	assert.Equal(t, entities.EmbeddingJobStatusFailed, res.Status)
	assert.Equal(t, []int64{1, 2}, res.FailedRecordingIDs)
	assert.Empty(t, h.indexer.calls)

	job := h.store.job(*res.JobID)
	assert.Equal(t, entities.EmbeddingJobStatusFailed, job.Status)
	assert.Equal(t, 2, job.ProgressCurrent)
	assert.Equal(t, 2, job.ProgressTotal)
	assert.Equal(t, 2, job.QueueFailed)
	assert.Equal(t, []int64{1, 2}, []int64(job.FailedRecordingIDs))

	// A later drain settles the pending tasks against the same tallies.
	h.store.refuseClaim = false
	drained, err := h.svc.DrainQueue(context.Background(), DrainInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, drained.Processed)

	job = h.store.job(*res.JobID)
	assert.Equal(t, entities.EmbeddingJobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.ProgressCurrent)
	assert.Zero(t, job.QueueFailed)
	assert.Equal(t, 2, job.QueueCompleted)
	assert.Empty(t, job.FailedRecordingIDs)
}

func TestStartJob_DeduplicatesRecordings(t *testing.T) {
	h := newHarness(t, testOptions())

	res, err := h.svc.StartJob(context.Background(), StartJobInput{UserID: uuid.New(), RecordingIDs: []int64{5, 5, 6}})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, h.indexer.calls)
	assert.Equal(t, 2, h.store.job(*res.JobID).ProgressTotal)
}

func TestStartJob_EmptySelection(t *testing.T) {
	h := newHarness(t, testOptions())

	_, err := h.svc.StartJob(context.Background(), StartJobInput{UserID: uuid.New()})
	assert.ErrorIs(t, err, entities.ErrEmptyRecordingSelection)
}

func TestStartJob_AutoDiscoverNothingToDo(t *testing.T) {
	h := newHarness(t, testOptions())

	res, err := h.svc.StartJob(context.Background(), StartJobInput{UserID: uuid.New(), AutoDiscover: true})
	require.NoError(t, err)
	assert.Nil(t, res.JobID)
	assert.Zero(t, res.RecordingsProcessed)
	assert.NotNil(t, res.FailedRecordingIDs)
	assert.Empty(t, h.store.jobs)
}

func TestStartJob_AutoDiscover(t *testing.T) {
	h := newHarness(t, testOptions())
	h.transcripts.unindexed = []int64{7, 9}

	res, err := h.svc.StartJob(context.Background(), StartJobInput{UserID: uuid.New(), AutoDiscover: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 9}, h.indexer.calls)
	assert.Equal(t, entities.EmbeddingJobTriggerAutoDiscover, h.store.job(*res.JobID).Metadata.Data().Trigger)
}

func TestGetJob_ScopedToOwner(t *testing.T) {
	h := newHarness(t, testOptions())
	owner := uuid.New()
	res, err := h.svc.StartJob(context.Background(), StartJobInput{UserID: owner, RecordingIDs: []int64{1}})
	require.NoError(t, err)

	job, err := h.svc.GetJob(context.Background(), owner, *res.JobID)
	require.NoError(t, err)
	assert.Equal(t, *res.JobID, job.ID)

	_, err = h.svc.GetJob(context.Background(), uuid.New(), *res.JobID)
	assert.ErrorIs(t, err, entities.ErrJobNotFound)

	_, err = h.svc.GetJob(context.Background(), owner, uuid.New())
	assert.ErrorIs(t, err, entities.ErrJobNotFound)
}

func TestDrainQueue_RetrySuccessCreditsJob(t *testing.T) {
	h := newHarness(t, testOptions())
	due := testNow.Add(-time.Second)
	job, task := h.store.seed(uuid.New(), 11, entities.QueueTaskStatusFailed, 1, &due)

	res, err := h.svc.DrainQueue(context.Background(), DrainInput{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.WorkerID, "drain-"))
	assert.Equal(t, 1, res.Processed)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 4, res.ChunksCreated)
	assert.Zero(t, res.PendingRemaining)

	assert.Equal(t, entities.QueueTaskStatusCompleted, h.store.task(task.ID).Status)
	got := h.store.job(job.ID)
	assert.Equal(t, entities.EmbeddingJobStatusCompleted, got.Status)
	assert.Empty(t, got.FailedRecordingIDs)
	assert.Zero(t, got.QueueFailed)
	assert.Equal(t, 1, got.QueueCompleted)
	assert.Equal(t, 1, got.ProgressCurrent)
}

func TestDrainQueue_LastAttemptDeadLetters(t *testing.T) {
	h := newHarness(t, testOptions())
	h.indexer.fail[11] = errors.New("still broken")
	due := testNow.Add(-time.Second)
	job, task := h.store.seed(uuid.New(), 11, entities.QueueTaskStatusFailed, 2, &due)

	res, err := h.svc.DrainQueue(context.Background(), DrainInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	got := h.store.task(task.ID)
	assert.Equal(t, entities.QueueTaskStatusDeadLetter, got.Status)
	assert.Equal(t, 3, got.Attempts)
	assert.Nil(t, got.NextRetryAt)
	assert.Nil(t, got.WorkerID)
	assert.Equal(t, 1, h.store.job(job.ID).QueueFailed)
}

func TestDrainQueue_SecondFailureBacksOff(t *testing.T) {
	h := newHarness(t, testOptions())
	h.indexer.fail[11] = errors.New("timeout")
	due := testNow.Add(-time.Second)
	_, task := h.store.seed(uuid.New(), 11, entities.QueueTaskStatusFailed, 1, &due)

	_, err := h.svc.DrainQueue(context.Background(), DrainInput{})
	require.NoError(t, err)

	got := h.store.task(task.ID)
	assert.Equal(t, entities.QueueTaskStatusFailed, got.Status)
	require.NotNil(t, got.NextRetryAt)
	assert.Equal(t, testNow.Add(90*time.Second), *got.NextRetryAt)
}

func TestDrainQueue_SkipsTasksNotDue(t *testing.T) {
	h := newHarness(t, testOptions())
	later := testNow.Add(time.Minute)
	h.store.seed(uuid.New(), 11, entities.QueueTaskStatusFailed, 1, &later)

	res, err := h.svc.DrainQueue(context.Background(), DrainInput{})
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Empty(t, h.indexer.calls)
}

func TestDrainQueue_LeavesLivePrimaryRunAlone(t *testing.T) {
	h := newHarness(t, testOptions())
	job := entities.NewEmbeddingJob(uuid.New(), []int64{1}, entities.EmbeddingJobMetadata{})
	task := entities.NewQueueTask(job.ID, job.UserID, 1, 3)
	require.NoError(t, fakeJobs{h.store}.CreateWithTasks(context.Background(), job, []*entities.QueueTask{task}))

	res, err := h.svc.DrainQueue(context.Background(), DrainInput{})
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Equal(t, entities.QueueTaskStatusPending, h.store.task(task.ID).Status)
}

func TestDrainQueue_BudgetReleasesRemainingTasks(t *testing.T) {
	opts := testOptions()
	opts.DrainBudget = 20 * time.Millisecond
	h := newHarness(t, opts)
	h.indexer.block = true

	due := testNow.Add(-time.Second)
	var ids []uuid.UUID
	for i := int64(1); i <= 3; i++ {
		_, task := h.store.seed(uuid.New(), i, entities.QueueTaskStatusFailed, 1, &due)
		ids = append(ids, task.ID)
	}

	res, err := h.svc.DrainQueue(context.Background(), DrainInput{BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Released)
	assert.Len(t, h.indexer.calls, 1)

	for _, id := range ids[1:] {
		got := h.store.task(id)
		assert.Equal(t, entities.QueueTaskStatusPending, got.Status)
		assert.Nil(t, got.WorkerID)
		assert.Equal(t, 1, got.Attempts)
	}
}

func TestDrainQueue_BatchSizeIsCapped(t *testing.T) {
	h := newHarness(t, testOptions())
	due := testNow.Add(-time.Second)
	for i := int64(1); i <= 60; i++ {
		h.store.seed(uuid.New(), i, entities.QueueTaskStatusFailed, 1, &due)
	}

	res, err := h.svc.DrainQueue(context.Background(), DrainInput{BatchSize: 500})
	require.NoError(t, err)
	assert.Equal(t, maxDrainBatchSize, res.Processed)
	assert.Equal(t, int64(10), res.PendingRemaining)
}

func TestRecoverDeadLetter_NoWork(t *testing.T) {
	h := newHarness(t, testOptions())

	res, err := h.svc.RecoverDeadLetter(context.Background(), RecoveryInput{})
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.True(t, strings.HasPrefix(res.WorkerID, "recovery-"))
	assert.Empty(t, h.indexer.calls)
}

func TestRecoverDeadLetter_Success(t *testing.T) {
	h := newHarness(t, testOptions())
	userID := uuid.New()
	job, task := h.store.seed(userID, 21, entities.QueueTaskStatusDeadLetter, 3, nil)
	h.store.seed(userID, 22, entities.QueueTaskStatusDeadLetter, 3, nil)

	res, err := h.svc.RecoverDeadLetter(context.Background(), RecoveryInput{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, int64(21), res.RecordingID)
	assert.Equal(t, 4, res.ChunksCreated)
	assert.Equal(t, int64(1), res.DeadLetterRemaining)
	assert.Equal(t, testOptions().Recovery, h.indexer.params[0])

	assert.Equal(t, entities.QueueTaskStatusCompleted, h.store.task(task.ID).Status)
	got := h.store.job(job.ID)
	assert.Equal(t, entities.EmbeddingJobStatusCompleted, got.Status)
	assert.Equal(t, 4, got.ChunksCreated)
	assert.Empty(t, got.FailedRecordingIDs)
}

func TestRecoverDeadLetter_FailureDefersAndReports(t *testing.T) {
	h := newHarness(t, testOptions())
	h.indexer.fail[21] = errors.New("embedding provider returned status 503: overloaded")
	_, task := h.store.seed(uuid.New(), 21, entities.QueueTaskStatusDeadLetter, 3, nil)

	_, err := h.svc.RecoverDeadLetter(context.Background(), RecoveryInput{})
	require.Error(t, err)

	var recErr *RecoveryError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, int64(21), recErr.RecordingID)
	assert.Equal(t, testNow.Add(time.Hour), recErr.NextRetryAt)

	got := h.store.task(task.ID)
	assert.Equal(t, entities.QueueTaskStatusDeadLetter, got.Status)
	assert.Equal(t, 4, got.Attempts)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "[RETRY] embedding provider returned status 503: overloaded", *got.LastError)
	require.NotNil(t, got.NextRetryAt)
	assert.Equal(t, testNow.Add(time.Hour), *got.NextRetryAt)
	assert.Nil(t, got.LockedAt)
	assert.Nil(t, got.WorkerID)
}

func TestRecoverDeadLetter_CompleteFailureReleasesClaim(t *testing.T) {
	h := newHarness(t, testOptions())
	h.store.failComplete = errors.New("connection reset")
	_, task := h.store.seed(uuid.New(), 21, entities.QueueTaskStatusDeadLetter, 3, nil)

	_, err := h.svc.RecoverDeadLetter(context.Background(), RecoveryInput{})
	require.Error(t, err)

	var recErr *RecoveryError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, testNow.Add(time.Hour), recErr.NextRetryAt)

	got := h.store.task(task.ID)
	assert.Equal(t, entities.QueueTaskStatusDeadLetter, got.Status)
	assert.Equal(t, 4, got.Attempts)
	assert.Nil(t, got.LockedAt)
	assert.Nil(t, got.WorkerID)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "[RETRY] complete task: connection reset", *got.LastError)

	// The released task is claimable again once forced.
	h.store.failComplete = nil
	res, err := h.svc.RecoverDeadLetter(context.Background(), RecoveryInput{ForceRetry: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
}

func TestRecoverDeadLetter_CooldownGrows(t *testing.T) {
	h := newHarness(t, testOptions())
	h.indexer.fail[21] = errors.New("broken")
	past := testNow.Add(-time.Minute)
	_, task := h.store.seed(uuid.New(), 21, entities.QueueTaskStatusDeadLetter, 4, &past)

	_, err := h.svc.RecoverDeadLetter(context.Background(), RecoveryInput{})
	require.Error(t, err)
	assert.Equal(t, testNow.Add(2*time.Hour), *h.store.task(task.ID).NextRetryAt)
}

func TestRecoverDeadLetter_CooldownAndForce(t *testing.T) {
	h := newHarness(t, testOptions())
	later := testNow.Add(30 * time.Minute)
	h.store.seed(uuid.New(), 21, entities.QueueTaskStatusDeadLetter, 4, &later)

	res, err := h.svc.RecoverDeadLetter(context.Background(), RecoveryInput{})
	require.NoError(t, err)
	assert.Zero(t, res.Processed)

	res, err = h.svc.RecoverDeadLetter(context.Background(), RecoveryInput{ForceRetry: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
}

func TestRecoverDeadLetter_Filters(t *testing.T) {
	h := newHarness(t, testOptions())
	alice, bob := uuid.New(), uuid.New()
	h.store.seed(alice, 21, entities.QueueTaskStatusDeadLetter, 3, nil)
	h.store.seed(bob, 22, entities.QueueTaskStatusDeadLetter, 3, nil)

	res, err := h.svc.RecoverDeadLetter(context.Background(), RecoveryInput{UserID: &bob})
	require.NoError(t, err)
	assert.Equal(t, int64(22), res.RecordingID)
	assert.Zero(t, res.DeadLetterRemaining)

	missing := int64(99)
	res, err = h.svc.RecoverDeadLetter(context.Background(), RecoveryInput{RecordingID: &missing})
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
}
