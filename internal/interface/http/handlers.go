package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/application/command"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/application/query"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/application/saga"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/challenge"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/entry"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/subject"
	"github.com/pawlog-hub/pawlog-progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot handles GET /.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Resource not found")
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"service": "pawlog-progress-engine",
		"version": "v1",
		"status":  "running",
		"uptime":  s.Uptime().String(),
	})
}

// handleHealth handles GET /health and /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	checks := s.deps.HealthChecker.Check(r.Context())

	healthy := true
	components := make(map[string]string, len(checks))
	for name, err := range checks {
		if err != nil {
			healthy = false
			components[name] = err.Error()
		} else {
			components[name] = "ok"
		}
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	writeJSON(w, r, status, map[string]interface{}{
		"status":     overall,
		"components": components,
	})
}

// handleReady handles GET /ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.handleHealth(w, r)
}

// handleLive handles GET /live.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// handleMetrics handles GET /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.deps.MetricsSource == nil {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{})
		return
	}
	writeJSON(w, r, http.StatusOK, s.deps.MetricsSource())
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// submitEntryRequest is the request body of POST /api/v1/subjects/{id}/entries.
type submitEntryRequest struct {
	OccurredAt     time.Time `json:"occurred_at"`
	Consistency    string    `json:"consistency"`
	Color          string    `json:"color"`
	Location       string    `json:"location,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// submitEntryResponse is the response body of a log submission.
type submitEntryResponse struct {
	EntryID   string `json:"entry_id"`
	Duplicate bool   `json:"duplicate"`
	SubjectID string `json:"subject_id"`
	UserID    string `json:"user_id"`

	CurrentStreak int `json:"current_streak"`
	LongestStreak int `json:"longest_streak"`

	UnlockedAchievements []unlockedAchievementDTO `json:"unlocked_achievements"`
	Penalties            []penaltyDTO             `json:"penalties"`
	CompletedChallenges  []completedChallengeDTO  `json:"completed_challenges"`

	CoinsAwarded   int `json:"coins_awarded"`
	CoinsPenalized int `json:"coins_penalized"`
	XPAwarded      int `json:"xp_awarded"`
	LevelsGained   int `json:"levels_gained"`

	Level       int       `json:"level"`
	CoinBalance int       `json:"coin_balance"`
	ProcessedAt time.Time `json:"processed_at"`
}

type unlockedAchievementDTO struct {
	AchievementID string `json:"achievement_id"`
	Title         string `json:"title"`
	CoinReward    int    `json:"coin_reward"`
	XPBonus       int    `json:"xp_bonus"`
}

type penaltyDTO struct {
	AchievementID string `json:"achievement_id"`
	Title         string `json:"title"`
	WindowKey     string `json:"window_key"`
}

type completedChallengeDTO struct {
	ChallengeID string `json:"challenge_id"`
	Title       string `json:"title"`
	Points      int    `json:"points"`
}

// handleSubmitEntry handles POST /api/v1/subjects/{id}/entries.
func (s *Server) handleSubmitEntry(w http.ResponseWriter, r *http.Request) {
	if s.deps.SubmitEventHandler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "not_configured", "Submission endpoint is not configured")
		return
	}

	var req submitEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "Request body must be valid JSON")
		return
	}

	cmd := command.SubmitEventCommand{
		SubjectID:      r.PathValue("id"),
		OccurredAt:     req.OccurredAt,
		Consistency:    req.Consistency,
		Color:          req.Color,
		Location:       req.Location,
		Notes:          req.Notes,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  getRequestID(r.Context()),
	}

	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.deps.SubmitEventHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}

	s.logger.Info("entry submitted",
		logger.SubjectID(result.SubjectID.String()),
		logger.UserID(result.UserID.String()),
		logger.EntryID(result.EntryID),
		logger.CoinAmount(result.CoinsAwarded),
		logger.Bool("duplicate", result.Duplicate),
	)

	writeJSON(w, r, status, toSubmitEntryResponse(result))
}

// toSubmitEntryResponse maps the flow outcome to the transport DTO.
func toSubmitEntryResponse(result *saga.SubmitResult) submitEntryResponse {
	resp := submitEntryResponse{
		EntryID:              result.EntryID,
		Duplicate:            result.Duplicate,
		SubjectID:            result.SubjectID.String(),
		UserID:               result.UserID.String(),
		CurrentStreak:        result.Streak.Current,
		LongestStreak:        result.Streak.Longest,
		UnlockedAchievements: make([]unlockedAchievementDTO, 0, len(result.UnlockedAchievements)),
		Penalties:            make([]penaltyDTO, 0, len(result.Penalties)),
		CompletedChallenges:  make([]completedChallengeDTO, 0, len(result.CompletedChallenges)),
		CoinsAwarded:         result.CoinsAwarded,
		CoinsPenalized:       result.CoinsPenalized,
		XPAwarded:            result.XPAwarded,
		LevelsGained:         result.LevelsGained,
		ProcessedAt:          result.ProcessedAt,
	}

	if result.State != nil {
		resp.Level = result.State.Level.Int()
		resp.CoinBalance = result.State.CoinBalance.Int()
	}

	for _, u := range result.UnlockedAchievements {
		resp.UnlockedAchievements = append(resp.UnlockedAchievements, unlockedAchievementDTO{
			AchievementID: u.Definition.ID,
			Title:         u.Definition.Title,
			CoinReward:    u.Definition.CoinReward.Int(),
			XPBonus:       int(u.Definition.XPBonus),
		})
	}

	for _, p := range result.Penalties {
		resp.Penalties = append(resp.Penalties, penaltyDTO{
			AchievementID: p.Definition.ID,
			Title:         p.Definition.Title,
			WindowKey:     p.WindowKey,
		})
	}

	for _, c := range result.CompletedChallenges {
		resp.CompletedChallenges = append(resp.CompletedChallenges, completedChallengeDTO{
			ChallengeID: c.Definition.ID,
			Title:       c.Definition.Title,
			Points:      c.Definition.Points,
		})
	}

	return resp
}

// ══════════════════════════════════════════════════════════════════════════════
// REDEEM REWARD
// ══════════════════════════════════════════════════════════════════════════════

// redeemRewardRequest is the request body of POST /api/v1/users/{id}/redemptions.
type redeemRewardRequest struct {
	RedemptionID string `json:"redemption_id"`
	Cost         int    `json:"cost"`
}

// handleRedeemReward handles POST /api/v1/users/{id}/redemptions.
func (s *Server) handleRedeemReward(w http.ResponseWriter, r *http.Request) {
	if s.deps.RedeemRewardHandler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "not_configured", "Redemption endpoint is not configured")
		return
	}

	var req redeemRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "Request body must be valid JSON")
		return
	}

	cmd := command.RedeemRewardCommand{
		UserID:        r.PathValue("id"),
		RedemptionID:  req.RedemptionID,
		Cost:          req.Cost,
		CorrelationID: getRequestID(r.Context()),
	}

	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.deps.RedeemRewardHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.logger.Info("reward redeemed",
		logger.UserID(cmd.UserID),
		logger.String("redemption_id", cmd.RedemptionID),
		logger.CoinAmount(result.NewBalance),
	)

	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// handleGetStats handles GET /api/v1/users/{id}/stats.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetStatsSnapshotHandler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "not_configured", "Stats endpoint is not configured")
		return
	}

	snapshot, err := s.deps.GetStatsSnapshotHandler.Handle(r.Context(), query.GetStatsSnapshotQuery{
		UserID:    r.PathValue("id"),
		SkipCache: getQueryParamBool(r, "skip_cache"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, snapshot)
}

// handleGetLedger handles GET /api/v1/users/{id}/ledger.
func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetLedgerHandler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "not_configured", "Ledger endpoint is not configured")
		return
	}

	ledger, err := s.deps.GetLedgerHandler.Handle(r.Context(), query.GetLedgerQuery{
		UserID: r.PathValue("id"),
		Limit:  getQueryParamInt(r, "limit", 0),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, ledger)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps domain errors to HTTP statuses. Saga errors wrap
// their cause, so errors.Is sees through the flow wrapper.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, subject.ErrSubjectNotFound),
		errors.Is(err, entry.ErrEntryNotFound),
		errors.Is(err, challenge.ErrDefinitionNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, shared.ErrInsufficientFunds):
		writeJSONError(w, http.StatusConflict, "insufficient_funds", "Coin balance does not cover the redemption cost")

	case errors.Is(err, shared.ErrInvalidSubjectID),
		errors.Is(err, shared.ErrInvalidUserID),
		errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrEmptyValue),
		errors.Is(err, shared.ErrFutureTimestamp),
		errors.Is(err, entry.ErrInvalidOccurredAt),
		errors.Is(err, entry.ErrInvalidConsistency),
		errors.Is(err, entry.ErrInvalidColor),
		errors.Is(err, entry.ErrLocationTooLong),
		errors.Is(err, entry.ErrNotesTooLong):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())

	default:
		s.logger.Error("request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
			logger.Err(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
