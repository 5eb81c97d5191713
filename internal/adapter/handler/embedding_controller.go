package handler

import (
	stdErrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/johnquangdev/transcript-indexer/errors"
	dto "github.com/johnquangdev/transcript-indexer/internal/adapter/dto/embedding"
	"github.com/johnquangdev/transcript-indexer/internal/adapter/presenter"
	"github.com/johnquangdev/transcript-indexer/internal/domain/entities"
	"github.com/johnquangdev/transcript-indexer/internal/infrastructure/http/middleware"
	embeddinguc "github.com/johnquangdev/transcript-indexer/internal/usecase/embedding"
	"github.com/johnquangdev/transcript-indexer/pkg/ai"
)

// EmbeddingController handles the indexing, queue and recovery endpoints
type EmbeddingController struct {
	svc         embeddinguc.Service
	serviceRole string
	logger      *zap.Logger
}

// NewEmbeddingController creates a new embedding controller. Callers whose
// token carries serviceRole may drain and recover any user's tasks.
func NewEmbeddingController(svc embeddinguc.Service, serviceRole string, logger *zap.Logger) *EmbeddingController {
	return &EmbeddingController{svc: svc, serviceRole: serviceRole, logger: logger}
}

// StartJob indexes the selected recordings
func (ec *EmbeddingController) StartJob(c echo.Context) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return HandleError(ec.logger, c, errors.ErrUnauthenticated())
	}

	var req dto.StartJobRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(ec.logger, c, errors.ErrInvalidPayload())
	}
	if err := c.Validate(&req); err != nil {
		return HandleError(ec.logger, c, errors.ErrInvalidArgument(err.Error()))
	}
	if req.AutoDiscover == (len(req.RecordingIDs) > 0) {
		return HandleError(ec.logger, c, errors.ErrInvalidArgument("provide either recording_ids or auto_discover"))
	}

	res, err := ec.svc.StartJob(c.Request().Context(), embeddinguc.StartJobInput{
		UserID:       userID,
		RecordingIDs: req.RecordingIDs,
		AutoDiscover: req.AutoDiscover,
	})
	if err != nil {
		if stdErrors.Is(err, entities.ErrEmptyRecordingSelection) {
			return HandleError(ec.logger, c, errors.ErrInvalidArgument(err.Error()))
		}
		return HandleError(ec.logger, c, errors.ErrJobCreationFailed(err))
	}
	return HandleSuccess(ec.logger, c, presenter.ToStartJobResponse(res))
}

// GetJob returns one of the caller's jobs
func (ec *EmbeddingController) GetJob(c echo.Context) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return HandleError(ec.logger, c, errors.ErrUnauthenticated())
	}

	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return HandleError(ec.logger, c, errors.ErrInvalidArgument("invalid job id"))
	}

	job, err := ec.svc.GetJob(c.Request().Context(), userID, jobID)
	if err != nil {
		if stdErrors.Is(err, entities.ErrJobNotFound) {
			return HandleError(ec.logger, c, errors.ErrJobNotFound(jobID.String()))
		}
		return HandleError(ec.logger, c, errors.ErrDBQueryFailed("get embedding job", err))
	}
	return HandleSuccess(ec.logger, c, &dto.GetJobResponse{Success: true, Job: presenter.ToJobResponse(job)})
}

// ProcessQueue drains due queue tasks
func (ec *EmbeddingController) ProcessQueue(c echo.Context) error {
	if !ec.isService(c) {
		return HandleError(ec.logger, c, errors.ErrPermissionDenied("process embedding queue"))
	}

	var req dto.ProcessQueueRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(ec.logger, c, errors.ErrInvalidPayload())
	}
	if err := c.Validate(&req); err != nil {
		return HandleError(ec.logger, c, errors.ErrInvalidArgument(err.Error()))
	}

	input := embeddinguc.DrainInput{BatchSize: req.BatchSize}
	if req.JobID != nil {
		jobID, err := uuid.Parse(*req.JobID)
		if err != nil {
			return HandleError(ec.logger, c, errors.ErrInvalidArgument("invalid job_id"))
		}
		input.JobID = &jobID
	}

	res, err := ec.svc.DrainQueue(c.Request().Context(), input)
	if err != nil {
		return HandleError(ec.logger, c, errors.ErrQueueDrainFailed(err))
	}
	return HandleSuccess(ec.logger, c, presenter.ToProcessQueueResponse(res))
}

// RetryDeadLetter recovers one dead-lettered task
func (ec *EmbeddingController) RetryDeadLetter(c echo.Context) error {
	userID, ok := middleware.GetUserID(c)
	service := ec.isService(c)
	if !ok && !service {
		return HandleError(ec.logger, c, errors.ErrUnauthenticated())
	}

	var req dto.RetryDeadLetterRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(ec.logger, c, errors.ErrInvalidPayload())
	}
	if err := c.Validate(&req); err != nil {
		return HandleError(ec.logger, c, errors.ErrInvalidArgument(err.Error()))
	}

	input := embeddinguc.RecoveryInput{RecordingID: req.RecordingID, ForceRetry: req.ForceRetry}
	if !service {
		input.UserID = &userID
	}

	res, err := ec.svc.RecoverDeadLetter(c.Request().Context(), input)
	if err != nil {
		return HandleError(ec.logger, c, recoveryError(err))
	}
	return HandleSuccess(ec.logger, c, presenter.ToRetryDeadLetterResponse(res))
}

func (ec *EmbeddingController) isService(c echo.Context) bool {
	return middleware.HasRole(c, ec.serviceRole)
}

func recoveryError(err error) errors.AppError {
	var recErr *embeddinguc.RecoveryError
	if !stdErrors.As(err, &recErr) {
		return errors.ErrDBQueryFailed("claim dead-letter task", err)
	}

	var providerErr *ai.ProviderError
	appErr := errors.ErrRecoveryFailed(recErr.RecordingID, recErr.Err)
	if stdErrors.As(err, &providerErr) {
		appErr = errors.ErrEmbeddingProviderFailed(recErr.Err).
			WithDetail("recording_id", appErr.Details["recording_id"])
	}
	appErr = appErr.WithDetail("worker_id", recErr.WorkerID)
	if !recErr.NextRetryAt.IsZero() {
		appErr = appErr.WithDetail("next_retry_at", recErr.NextRetryAt.UTC().Format(time.RFC3339))
	}
	return appErr
}
