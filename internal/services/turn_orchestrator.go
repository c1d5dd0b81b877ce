package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/lexvoice/casecall-backend/internal/clients/openai"
	"github.com/lexvoice/casecall-backend/internal/contextseal"
	"github.com/lexvoice/casecall-backend/internal/guardrails"
	"github.com/lexvoice/casecall-backend/internal/pkg/errors"
	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/repos"
	"github.com/lexvoice/casecall-backend/internal/types"
)

// TurnInput carries one captured user utterance into the pipeline. Either
// Audio or Text must be set; Text skips transcription.
type TurnInput struct {
	Audio           []byte
	SampleRateHertz int
	Language        string
	Text            string
	// RetainPrompt opts this turn into full prompt retention. Prompts are
	// otherwise stored as a hash only, unless guardrails trigger.
	RetainPrompt bool
}

// TurnResult is what the caller speaks back to the user.
type TurnResult struct {
	UserTurn     *types.CallTranscriptTurn
	AITurn       *types.CallTranscriptTurn
	ResponseText string
	// Audio is nil when synthesis was unavailable; the text still stands.
	Audio       *SpeechAudio
	Refused     bool
	Sanitized   bool
	Escalated   bool
	Transcribed string
}

type TurnOrchestrator interface {
	ProcessTurn(ctx context.Context, sessionID uuid.UUID, input TurnInput) (*TurnResult, error)
	HandleInterruption(ctx context.Context, sessionID uuid.UUID, spokenSoFar string) error
}

type turnOrchestrator struct {
	log      *logger.Logger
	sessions SessionStateService
	turns    repos.CallTurnRepo
	audits   repos.CallAuditRepo
	engine   *guardrails.Engine
	stt      SpeechToText
	llm      LLMChat
	tts      TextToSpeech
}

func NewTurnOrchestrator(
	log *logger.Logger,
	sessions SessionStateService,
	turns repos.CallTurnRepo,
	audits repos.CallAuditRepo,
	engine *guardrails.Engine,
	stt SpeechToText,
	llm LLMChat,
	tts TextToSpeech,
) TurnOrchestrator {
	return &turnOrchestrator{
		log:      log.With("service", "TurnOrchestrator"),
		sessions: sessions,
		turns:    turns,
		audits:   audits,
		engine:   engine,
		stt:      stt,
		llm:      llm,
		tts:      tts,
	}
}

func (o *turnOrchestrator) ProcessTurn(ctx context.Context, sessionID uuid.UUID, input TurnInput) (*TurnResult, error) {
	session, err := o.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != types.SessionStatusInProgress {
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, session.Status, errors.ErrSessionNotActive)
	}

	bundle, err := decodeBundle(session)
	if err != nil {
		failErr := o.sessions.Fail(ctx, sessionID, "corrupt_context_bundle", map[string]any{"error": err.Error()})
		if failErr != nil {
			o.log.Error("Session fail after corrupt bundle", "session_id", sessionID, "error", failErr)
		}
		return nil, fmt.Errorf("decode context bundle: %w", err)
	}

	userText := strings.TrimSpace(input.Text)
	var confidence *float64
	if userText == "" && len(input.Audio) > 0 {
		transcription, err := o.stt.Transcribe(ctx, input.Audio, input.Language, input.SampleRateHertz)
		if err != nil {
			// Transcription trouble is the caller's cue to ask the user to
			// repeat; the session stays healthy.
			o.heartbeat(ctx, sessionID)
			return nil, fmt.Errorf("transcribe audio: %w", err)
		}
		userText = strings.TrimSpace(transcription.Text)
		if userText == "" {
			o.heartbeat(ctx, sessionID)
			return nil, fmt.Errorf("transcription produced no text")
		}
		confidence = &transcription.Confidence
	}

	result := &TurnResult{Transcribed: userText}

	pre := o.engine.CheckUserInput(userText, bundle.RestrictedTopics)
	if pre.Action == guardrails.ActionRefuse {
		return o.refuseTurn(ctx, session, userText, confidence, pre, result)
	}

	userTurn := &types.CallTranscriptTurn{
		SessionID:        sessionID,
		TurnType:         types.TurnTypeUser,
		Text:             userText,
		SpeechConfidence: confidence,
	}
	if err := o.turns.CreateNext(ctx, nil, userTurn); err != nil {
		return nil, fmt.Errorf("record user turn: %w", err)
	}
	result.UserTurn = userTurn

	systemMessage := buildSystemMessage(bundle)
	promptHash := hashPrompt(systemMessage, userText)

	reply, err := o.llm.Complete(ctx, systemMessage, userText)
	if err != nil {
		return nil, o.handleLLMError(ctx, sessionID, err)
	}
	aiText := strings.TrimSpace(reply.Text)
	if aiText == "" {
		o.auditEvent(ctx, sessionID, types.AuditEventSystemError, "high", map[string]any{
			"stage": "llm", "reason": "empty_completion", "model": reply.Model,
		})
		return nil, fmt.Errorf("model returned empty completion")
	}

	post := o.engine.CheckAIResponse(aiText)
	finalText := aiText
	if post.Action == guardrails.ActionSanitize {
		finalText = o.engine.Sanitize(aiText, post.Violations)
		result.Sanitized = true
		o.auditGuardrail(ctx, sessionID, post, nil, &finalText)
		o.applyOutcome(ctx, sessionID, 0, 1, post.Violations, result)
	}

	aiTurn := &types.CallTranscriptTurn{
		SessionID:           sessionID,
		TurnType:            types.TurnTypeAI,
		Text:                finalText,
		AIModel:             &reply.Model,
		AIPromptHash:        &promptHash,
		GuardrailsTriggered: result.Sanitized,
	}
	if result.Sanitized {
		aiTurn.GuardrailsAction = string(guardrails.ActionSanitize)
	}
	if input.RetainPrompt || result.Sanitized {
		prompt := systemMessage + "\n\n" + userText
		aiTurn.AIPromptUsed = &prompt
	}
	if err := o.turns.CreateNext(ctx, nil, aiTurn); err != nil {
		return nil, fmt.Errorf("record ai turn: %w", err)
	}
	result.AITurn = aiTurn
	result.ResponseText = finalText

	o.synthesize(ctx, result, input.Language)
	o.heartbeat(ctx, sessionID)
	return result, nil
}

// refuseTurn records the blocked user turn and returns the canned refusal.
// The model is never invoked and no AI transcript turn is written; the
// refusal text exists only in the response and the audit trail.
func (o *turnOrchestrator) refuseTurn(ctx context.Context, session *types.CallSession, userText string, confidence *float64, pre guardrails.Result, result *TurnResult) (*TurnResult, error) {
	userTurn := &types.CallTranscriptTurn{
		SessionID:           session.ID,
		TurnType:            types.TurnTypeUser,
		Text:                userText,
		SpeechConfidence:    confidence,
		GuardrailsTriggered: true,
		GuardrailsAction:    string(guardrails.ActionRefuse),
	}
	if err := o.turns.CreateNext(ctx, nil, userTurn); err != nil {
		return nil, fmt.Errorf("record refused user turn: %w", err)
	}

	o.auditGuardrail(ctx, session.ID, pre, &userText, nil)
	o.auditEvent(ctx, session.ID, types.AuditEventRefusal, severityFor(pre), map[string]any{
		"violations": pre.Violations, "matched_topic": pre.MatchedTopic,
	})
	o.applyOutcome(ctx, session.ID, 1, 0, pre.Violations, result)

	result.UserTurn = userTurn
	result.ResponseText = pre.Message
	result.Refused = true

	o.synthesize(ctx, result, "")
	o.heartbeat(ctx, session.ID)
	return result, nil
}

func (o *turnOrchestrator) HandleInterruption(ctx context.Context, sessionID uuid.UUID, spokenSoFar string) error {
	session, err := o.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != types.SessionStatusInProgress {
		return errors.ErrSessionNotActive
	}
	meta := map[string]any{}
	if spokenSoFar != "" {
		meta["spoken_so_far_chars"] = len(spokenSoFar)
	}
	o.auditEvent(ctx, sessionID, types.AuditEventInterruption, "low", meta)
	o.heartbeat(ctx, sessionID)
	return nil
}

// handleLLMError splits persistent provider failures, which take the session
// down, from transient ones the caller may retry within the same turn.
func (o *turnOrchestrator) handleLLMError(ctx context.Context, sessionID uuid.UUID, err error) error {
	if openai.IsPersistent(err) {
		failErr := o.sessions.Fail(ctx, sessionID, "llm_persistent_failure", map[string]any{
			"error": err.Error(), "status_code": openai.ErrorStatusCode(err),
		})
		if failErr != nil {
			o.log.Error("Session fail after persistent model error", "session_id", sessionID, "error", failErr)
		}
		return fmt.Errorf("model unavailable, session failed: %w", err)
	}
	o.auditEvent(ctx, sessionID, types.AuditEventSystemError, "medium", map[string]any{
		"stage": "llm", "transient": openai.IsTransient(err), "error": err.Error(),
	})
	return fmt.Errorf("model completion: %w", err)
}

func (o *turnOrchestrator) applyOutcome(ctx context.Context, sessionID uuid.UUID, refusals, warnings int, violations []string, result *TurnResult) {
	escalate := o.engine.ShouldEscalate(violations)
	result.Escalated = result.Escalated || escalate
	if err := o.sessions.ApplyGuardrailOutcome(ctx, sessionID, refusals, warnings, escalate); err != nil {
		o.log.Error("Guardrail counter update failed", "session_id", sessionID, "error", err)
	}
}

func (o *turnOrchestrator) auditGuardrail(ctx context.Context, sessionID uuid.UUID, res guardrails.Result, userInput *string, aiResponse *string) {
	row := &types.CallAuditLog{
		SessionID:  sessionID,
		EventType:  types.AuditEventGuardrailTriggered,
		Severity:   severityFor(res),
		UserInput:  userInput,
		AIResponse: aiResponse,
	}
	meta := map[string]any{"action": res.Action, "violations": res.Violations}
	if res.MatchedTopic != "" {
		meta["matched_topic"] = res.MatchedTopic
	}
	if raw, err := json.Marshal(meta); err == nil {
		row.Metadata = datatypes.JSON(raw)
	}
	if err := o.audits.Create(ctx, nil, row); err != nil {
		o.log.Error("Audit write failed", "session_id", sessionID, "event_type", row.EventType, "error", err)
	}
}

func (o *turnOrchestrator) auditEvent(ctx context.Context, sessionID uuid.UUID, eventType, severity string, metadata map[string]any) {
	row := &types.CallAuditLog{SessionID: sessionID, EventType: eventType, Severity: severity}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			row.Metadata = datatypes.JSON(raw)
		}
	}
	if err := o.audits.Create(ctx, nil, row); err != nil {
		o.log.Error("Audit write failed", "session_id", sessionID, "event_type", eventType, "error", err)
	}
}

// synthesize is degrade-not-fail: a dead TTS provider leaves Audio nil and
// the caller falls back to text.
func (o *turnOrchestrator) synthesize(ctx context.Context, result *TurnResult, language string) {
	if o.tts == nil || result.ResponseText == "" {
		return
	}
	audio, err := o.tts.Synthesize(ctx, result.ResponseText, language)
	if err != nil {
		o.log.Warn("Speech synthesis failed, returning text only", "error", err)
		return
	}
	result.Audio = audio
}

func (o *turnOrchestrator) heartbeat(ctx context.Context, sessionID uuid.UUID) {
	if err := o.sessions.Heartbeat(ctx, sessionID); err != nil && !stderrors.Is(err, errors.ErrSessionNotActive) {
		o.log.Warn("Heartbeat failed", "session_id", sessionID, "error", err)
	}
}

func severityFor(res guardrails.Result) string {
	max := guardrails.SeverityLow
	rank := map[guardrails.Severity]int{
		guardrails.SeverityLow:      0,
		guardrails.SeverityMedium:   1,
		guardrails.SeverityHigh:     2,
		guardrails.SeverityCritical: 3,
	}
	for _, sev := range res.Severities {
		if rank[sev] > rank[max] {
			max = sev
		}
	}
	return string(max)
}

func decodeBundle(session *types.CallSession) (*contextseal.Bundle, error) {
	if len(session.ContextBundle) == 0 {
		return nil, fmt.Errorf("session has no sealed context")
	}
	var bundle contextseal.Bundle
	if err := json.Unmarshal(session.ContextBundle, &bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// buildSystemMessage renders the reactive system prompt from the sealed
// bundle. The assistant answers questions about this case only and never
// volunteers advice.
func buildSystemMessage(bundle *contextseal.Bundle) string {
	var b strings.Builder
	b.WriteString("You are a case assistant on a voice call about one visa application case. ")
	b.WriteString("Answer only what the applicant asks, using only the case file below. ")
	b.WriteString("Never give legal advice, never guarantee outcomes, never discuss visa types other than the case's, ")
	b.WriteString("and never suggest actions the applicant did not ask about. ")
	b.WriteString("Keep answers short and spoken-friendly. ")
	b.WriteString("Always make clear the information comes from the case file and is not legal advice.\n\n")

	b.WriteString("Allowed topics: ")
	b.WriteString(strings.Join(bundle.AllowedTopics, ", "))
	b.WriteString("\nRestricted topics: ")
	b.WriteString(strings.Join(bundle.RestrictedTopics, ", "))
	b.WriteString("\n\nCase file:\n")

	raw, err := json.Marshal(bundle)
	if err != nil {
		// Marshal of an already-decoded bundle cannot realistically fail;
		// keep the prompt usable regardless.
		b.WriteString("(case file unavailable)")
	} else {
		b.Write(raw)
	}
	return b.String()
}

func hashPrompt(systemMessage, userPrompt string) string {
	sum := sha256.Sum256([]byte(systemMessage + "\x00" + userPrompt))
	return hex.EncodeToString(sum[:])
}
