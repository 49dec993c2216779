package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/skillnova/lifecycle-hub/internal/application/command"
	"github.com/skillnova/lifecycle-hub/internal/domain/enrollment"
	"github.com/skillnova/lifecycle-hub/internal/domain/shared"
	"github.com/skillnova/lifecycle-hub/internal/infrastructure/scheduler"
	"github.com/skillnova/lifecycle-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports store connectivity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"uptime": s.Uptime().Round(time.Second).String(),
		})
		return
	}

	status := s.deps.Health.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleReady is the readiness probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if status := s.deps.Health.Check(r.Context()); !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive is the liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// JobView is the JSON shape of a registered job.
type JobView struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Schedule    string    `json:"schedule"`
	Enabled     bool      `json:"enabled"`
	Running     bool      `json:"running"`
	LastRun     time.Time `json:"last_run"`
	NextRun     time.Time `json:"next_run"`
	RunCount    int64     `json:"run_count"`
	FailCount   int64     `json:"fail_count"`
	SkipCount   int64     `json:"skip_count"`
	LastError   string    `json:"last_error,omitempty"`
}

// RunView is the JSON shape of one manual tick.
type RunView struct {
	Job       string    `json:"job"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Scheduler is disabled")
		return
	}

	infos := s.deps.Jobs.ListJobs()
	views := make([]JobView, 0, len(infos))
	for _, info := range infos {
		v := JobView{
			Name:        info.Name,
			Description: info.Description,
			Schedule:    info.Schedule,
			Enabled:     info.Enabled,
			Running:     info.Running,
			LastRun:     info.LastRun,
			NextRun:     info.NextRun,
			RunCount:    info.RunCount,
			FailCount:   info.FailCount,
			SkipCount:   info.SkipCount,
		}
		if info.LastResult != nil && info.LastResult.Error != nil {
			v.LastError = info.LastResult.Error.Error()
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

// handleRunJob handles POST /api/v1/jobs/{name}/run
// A tick already in flight is reported as 409 and the request starts nothing.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Scheduler is disabled")
		return
	}

	name := r.PathValue("name")
	// The tick outlives a dropped client so a send is never cut off before its marker.
	result, err := s.deps.Jobs.RunNow(context.WithoutCancel(r.Context()), name)
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		writeJSONError(w, http.StatusNotFound, "job_not_found", "Unknown job: "+name)
		return
	case errors.Is(err, scheduler.ErrJobRunning):
		writeJSONError(w, http.StatusConflict, "job_running", "Job is already running, tick coalesced")
		return
	case result == nil:
		s.logger.Error("manual run failed", logger.Job(name), logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to run job")
		return
	}

	view := RunView{
		Job:       result.JobName,
		StartedAt: result.StartedAt,
		Duration:  result.Duration.String(),
		Success:   result.Success,
	}
	if result.Error != nil {
		view.Error = result.Error.Error()
	}
	writeJSON(w, http.StatusOK, view)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentView is the JSON shape of an enrollment.
type EnrollmentView struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Contact       string     `json:"contact"`
	ProgramID     string     `json:"program_id"`
	Payment       string     `json:"payment"`
	EnrolledAt    time.Time  `json:"enrolled_at"`
	DurationUnits int        `json:"duration_units"`
	TotalStages   int        `json:"total_stages"`
	TotalUnits    int        `json:"total_units"`
	Progress      int        `json:"progress"`
	Status        StatusView `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
}

// StatusView mirrors the notification status record.
type StatusView struct {
	ConfirmationSent bool       `json:"confirmation_sent"`
	DetailsSent      bool       `json:"details_sent"`
	OfferLetterSent  bool       `json:"offer_letter_sent"`
	CompletionSent   bool       `json:"completion_sent"`
	StageCounter     int        `json:"stage_counter"`
	LastStageSentAt  *time.Time `json:"last_stage_sent_at,omitempty"`
}

func toEnrollmentView(e *enrollment.Enrollment) EnrollmentView {
	return EnrollmentView{
		ID:            e.ID,
		Name:          e.Name,
		Contact:       e.Contact,
		ProgramID:     e.ProgramID,
		Payment:       string(e.Payment),
		EnrolledAt:    e.EnrolledAt,
		DurationUnits: e.DurationUnits,
		TotalStages:   e.TotalStages,
		TotalUnits:    e.TotalUnits,
		Progress:      e.Progress,
		Status: StatusView{
			ConfirmationSent: e.Status.ConfirmationSent,
			DetailsSent:      e.Status.DetailsSent,
			OfferLetterSent:  e.Status.OfferLetterSent,
			CompletionSent:   e.Status.CompletionSent,
			StageCounter:     e.Status.StageCounter,
			LastStageSentAt:  e.Status.LastStageSentAt,
		},
		CreatedAt: e.CreatedAt,
	}
}

type registerRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	ProgramID     string `json:"program_id"`
	Payment       string `json:"payment"`
	DurationUnits int    `json:"duration_units"`
}

type registerResponse struct {
	Enrollment       EnrollmentView `json:"enrollment"`
	ConfirmationSent bool           `json:"confirmation_sent"`
}

// handleRegister handles POST /api/v1/enrollments
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.deps.Register == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Registration is not configured")
		return
	}

	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Register.Handle(r.Context(), command.RegisterEnrollmentCommand{
		Name:          req.Name,
		Contact:       req.Email,
		ProgramID:     req.ProgramID,
		Payment:       enrollment.PaymentState(req.Payment),
		DurationUnits: req.DurationUnits,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{
		Enrollment:       toEnrollmentView(res.Enrollment),
		ConfirmationSent: res.ConfirmationSent,
	})
}

// handleGetEnrollment handles GET /api/v1/enrollments/{id}
func (s *Server) handleGetEnrollment(w http.ResponseWriter, r *http.Request) {
	if s.deps.Enrollments == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Store is not configured")
		return
	}

	e, err := s.deps.Enrollments.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEnrollmentView(e))
}

type paymentRequest struct {
	State string `json:"state"`
}

// handlePayment handles POST /api/v1/enrollments/{id}/payment
func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	if s.deps.Payment == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Payments are not configured")
		return
	}

	var req paymentRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Payment.Handle(r.Context(), command.ConfirmPaymentCommand{
		EnrollmentID: r.PathValue("id"),
		State:        enrollment.PaymentState(req.State),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{
		Enrollment:       toEnrollmentView(res.Enrollment),
		ConfirmationSent: res.ConfirmationSent,
	})
}

type completionRequest struct {
	UnitID string `json:"unit_id"`
}

type completionResponse struct {
	EnrollmentID string `json:"enrollment_id"`
	UnitID       string `json:"unit_id"`
	Changed      bool   `json:"changed"`
	Progress     int    `json:"progress"`
}

// handleRecordCompletion handles POST /api/v1/enrollments/{id}/completions
func (s *Server) handleRecordCompletion(w http.ResponseWriter, r *http.Request) {
	if s.deps.Completions == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Completions are not configured")
		return
	}

	var req completionRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Completions.Record(r.Context(), command.CompletionCommand{
		EnrollmentID: r.PathValue("id"),
		UnitID:       req.UnitID,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Changed {
		status = http.StatusCreated
	}
	writeJSON(w, status, completionResponse(*res))
}

// handleRetractCompletion handles DELETE /api/v1/enrollments/{id}/completions/{unit}
func (s *Server) handleRetractCompletion(w http.ResponseWriter, r *http.Request) {
	if s.deps.Completions == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Completions are not configured")
		return
	}

	res, err := s.deps.Completions.Retract(r.Context(), command.CompletionCommand{
		EnrollmentID: r.PathValue("id"),
		UnitID:       r.PathValue("unit"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completionResponse(*res))
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON: "+err.Error())
		return false
	}
	return true
}

// writeDomainError maps domain error kinds to HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case shared.IsAlreadyExists(err):
		writeJSONError(w, http.StatusConflict, "already_exists", err.Error())
	case shared.IsStateTransition(err):
		writeJSONError(w, http.StatusConflict, "invalid_transition", err.Error())
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	default:
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", getRequestID(r.Context())),
			logger.Err(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Internal error")
	}
}
