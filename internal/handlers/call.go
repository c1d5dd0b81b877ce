package handlers

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lexvoice/casecall-backend/internal/middleware"
	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/repos"
	"github.com/lexvoice/casecall-backend/internal/services"
	"github.com/lexvoice/casecall-backend/internal/types"
)

const transcriptPageLimit = 200

type CallHandler struct {
	log          *logger.Logger
	sessions     services.SessionStateService
	orchestrator services.TurnOrchestrator
	summaries    services.SummaryService
	turns        repos.CallTurnRepo
	audits       repos.CallAuditRepo
}

func NewCallHandler(
	log *logger.Logger,
	sessions services.SessionStateService,
	orchestrator services.TurnOrchestrator,
	summaries services.SummaryService,
	turns repos.CallTurnRepo,
	audits repos.CallAuditRepo,
) *CallHandler {
	return &CallHandler{
		log:          log.With("handler", "CallHandler"),
		sessions:     sessions,
		orchestrator: orchestrator,
		summaries:    summaries,
		turns:        turns,
		audits:       audits,
	}
}

type createCallRequest struct {
	CaseID          string  `json:"case_id" binding:"required"`
	ParentSessionID *string `json:"parent_session_id,omitempty"`
}

func (h *CallHandler) CreateCall(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing user"))
		return
	}
	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	caseID, err := uuid.Parse(req.CaseID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid case_id"))
		return
	}
	var parentID *uuid.UUID
	if req.ParentSessionID != nil {
		parsed, err := uuid.Parse(*req.ParentSessionID)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid parent_session_id"))
			return
		}
		parentID = &parsed
	}
	session, err := h.sessions.Create(c.Request.Context(), caseID, userID, parentID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// ownedSession loads the session and enforces that the caller owns it.
func (h *CallHandler) ownedSession(c *gin.Context) (*types.CallSession, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing user"))
		return nil, false
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid session id"))
		return nil, false
	}
	session, err := h.sessions.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		RespondDomainError(c, err)
		return nil, false
	}
	if session.UserID != userID {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("session belongs to another user"))
		return nil, false
	}
	return session, true
}

func (h *CallHandler) PrepareCall(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	updated, err := h.sessions.Prepare(c.Request.Context(), session.ID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, updated)
}

func (h *CallHandler) StartCall(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	updated, err := h.sessions.Start(c.Request.Context(), session.ID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, updated)
}

type turnRequest struct {
	AudioBase64     string `json:"audio_base64,omitempty"`
	Text            string `json:"text,omitempty"`
	Language        string `json:"language,omitempty"`
	SampleRateHertz int    `json:"sample_rate_hertz,omitempty"`
	RetainPrompt    bool   `json:"retain_prompt,omitempty"`
}

type turnResponse struct {
	UserTurn     *types.CallTranscriptTurn `json:"user_turn,omitempty"`
	AITurn       *types.CallTranscriptTurn `json:"ai_turn,omitempty"`
	ResponseText string                    `json:"response_text"`
	AudioBase64  string                    `json:"audio_base64,omitempty"`
	ContentType  string                    `json:"content_type,omitempty"`
	Refused      bool                      `json:"refused"`
	Sanitized    bool                      `json:"sanitized"`
	Escalated    bool                      `json:"escalated"`
	Transcribed  string                    `json:"transcribed,omitempty"`
}

func (h *CallHandler) PostTurn(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	input := services.TurnInput{
		Text:            req.Text,
		Language:        req.Language,
		SampleRateHertz: req.SampleRateHertz,
		RetainPrompt:    req.RetainPrompt,
	}
	if req.AudioBase64 != "" {
		audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid audio_base64"))
			return
		}
		input.Audio = audio
	}

	result, err := h.orchestrator.ProcessTurn(c.Request.Context(), session.ID, input)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	resp := turnResponse{
		UserTurn:     result.UserTurn,
		AITurn:       result.AITurn,
		ResponseText: result.ResponseText,
		Refused:      result.Refused,
		Sanitized:    result.Sanitized,
		Escalated:    result.Escalated,
		Transcribed:  result.Transcribed,
	}
	if result.Audio != nil {
		resp.AudioBase64 = base64.StdEncoding.EncodeToString(result.Audio.Audio)
		resp.ContentType = result.Audio.ContentType
	}
	RespondOK(c, resp)
}

type interruptRequest struct {
	SpokenSoFar string `json:"spoken_so_far,omitempty"`
}

func (h *CallHandler) Interrupt(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	var req interruptRequest
	_ = c.ShouldBindJSON(&req)
	if err := h.orchestrator.HandleInterruption(c.Request.Context(), session.ID, req.SpokenSoFar); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "interrupted"})
}

type endCallRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *CallHandler) EndCall(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	var req endCallRequest
	_ = c.ShouldBindJSON(&req)
	updated, err := h.sessions.End(c.Request.Context(), session.ID, req.Reason)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, updated)
}

func (h *CallHandler) TerminateCall(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	var req endCallRequest
	_ = c.ShouldBindJSON(&req)
	reason := req.Reason
	if reason == "" {
		reason = "user_requested"
	}
	updated, err := h.sessions.Terminate(c.Request.Context(), session.ID, reason, "user")
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, updated)
}

func (h *CallHandler) Heartbeat(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	if err := h.sessions.Heartbeat(c.Request.Context(), session.ID); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "ok"})
}

func (h *CallHandler) GetCall(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	RespondOK(c, session)
}

func (h *CallHandler) GetTranscript(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	turns, err := h.turns.ListBySession(c.Request.Context(), nil, session.ID, transcriptPageLimit)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"session_id": session.ID, "turns": turns})
}

func (h *CallHandler) GetAuditLog(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	entries, err := h.audits.ListBySession(c.Request.Context(), nil, session.ID, transcriptPageLimit)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"session_id": session.ID, "entries": entries})
}

func (h *CallHandler) GetSummary(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	summary, err := h.summaries.GetForSession(c.Request.Context(), session)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, summary)
}
