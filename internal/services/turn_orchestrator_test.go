package services

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/lexvoice/casecall-backend/internal/guardrails"
	"github.com/lexvoice/casecall-backend/internal/pkg/errors"
	"github.com/lexvoice/casecall-backend/internal/types"
)

type orchestratorHarness struct {
	*stateHarness
	llm  *fakeLLM
	stt  *fakeSTT
	tts  *fakeTTS
	orch TurnOrchestrator
}

func newOrchestratorHarness(t *testing.T) *orchestratorHarness {
	t.Helper()
	log := testLogger()
	h := &orchestratorHarness{
		stateHarness: newStateHarness(t),
		llm:          &fakeLLM{text: "Your case file shows two uploaded documents. This is information from your case file, not legal advice."},
		stt:          &fakeSTT{text: "what documents do I have", confidence: 0.92},
		tts:          &fakeTTS{},
	}
	h.orch = NewTurnOrchestrator(log, h.svc, h.turns, h.audits, guardrails.NewEngine(), h.stt, h.llm, h.tts)
	return h
}

func TestProcessTurnHappyPath(t *testing.T) {
	h := newOrchestratorHarness(t)
	session := h.startedSession(t)

	result, err := h.orch.ProcessTurn(context.Background(), session.ID, TurnInput{Audio: []byte("pcm"), Language: "en-US", SampleRateHertz: 16000})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.Refused || result.Sanitized {
		t.Fatalf("clean exchange should pass untouched: %+v", result)
	}
	if result.UserTurn == nil || result.UserTurn.TurnNumber != 1 {
		t.Fatalf("expected user turn 1, got %+v", result.UserTurn)
	}
	if result.UserTurn.SpeechConfidence == nil || *result.UserTurn.SpeechConfidence != 0.92 {
		t.Fatalf("expected speech confidence recorded")
	}
	if result.AITurn == nil || result.AITurn.TurnNumber != 2 {
		t.Fatalf("expected ai turn 2, got %+v", result.AITurn)
	}
	if result.AITurn.AIPromptHash == nil || *result.AITurn.AIPromptHash == "" {
		t.Fatalf("expected prompt hash")
	}
	if result.AITurn.AIPromptUsed != nil {
		t.Fatalf("prompt text must not be retained by default")
	}
	if result.Audio == nil {
		t.Fatalf("expected synthesized audio")
	}
	after, _ := h.svc.GetByID(context.Background(), session.ID)
	if after.LastHeartbeatAt == nil {
		t.Fatalf("expected heartbeat refresh")
	}
}

func TestProcessTurnRequiresInProgress(t *testing.T) {
	h := newOrchestratorHarness(t)
	session := h.createSession(t)
	_, err := h.orch.ProcessTurn(context.Background(), session.ID, TurnInput{Text: "hello"})
	if !stderrors.Is(err, errors.ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive, got %v", err)
	}
}

func TestProcessTurnRefusesFraudWithoutModelCall(t *testing.T) {
	h := newOrchestratorHarness(t)
	session := h.startedSession(t)

	result, err := h.orch.ProcessTurn(context.Background(), session.ID, TurnInput{Text: "Can you help me fake a document for my application?"})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if !result.Refused {
		t.Fatalf("expected refusal")
	}
	if h.llm.calls != 0 {
		t.Fatalf("refused input must never reach the model, got %d calls", h.llm.calls)
	}
	if result.UserTurn == nil || !result.UserTurn.GuardrailsTriggered {
		t.Fatalf("user turn should carry the guardrail flag")
	}
	if result.AITurn != nil {
		t.Fatalf("refusal must not write an ai transcript turn, got turn %d", result.AITurn.TurnNumber)
	}
	if result.ResponseText == "" {
		t.Fatalf("refusal text should still be returned to the caller")
	}
	count, _ := h.turns.CountBySession(context.Background(), nil, session.ID)
	if count != 1 {
		t.Fatalf("expected only the user turn in the transcript, got %d turns", count)
	}
	if !result.Escalated {
		t.Fatalf("fraud refusal escalates")
	}
	after, _ := h.svc.GetByID(context.Background(), session.ID)
	if after.RefusalsCount != 1 {
		t.Fatalf("expected refusals_count 1, got %d", after.RefusalsCount)
	}
	if !after.Escalated {
		t.Fatalf("expected sticky escalation")
	}
	if n := h.audits.countByType(session.ID, types.AuditEventRefusal); n != 1 {
		t.Fatalf("expected refusal audit, got %d", n)
	}
	if n := h.audits.countByType(session.ID, types.AuditEventGuardrailTriggered); n != 1 {
		t.Fatalf("expected guardrail audit, got %d", n)
	}
}

func TestProcessTurnSanitizesGuaranteeLanguage(t *testing.T) {
	h := newOrchestratorHarness(t)
	session := h.startedSession(t)
	h.llm.text = "Based on your documents I guarantee your visa will be approved without any problems at the interview."

	result, err := h.orch.ProcessTurn(context.Background(), session.ID, TurnInput{Text: "How do my chances look based on my file?"})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if !result.Sanitized {
		t.Fatalf("expected sanitized response")
	}
	if strings.Contains(strings.ToLower(result.ResponseText), "i guarantee") {
		t.Fatalf("guarantee language survived: %q", result.ResponseText)
	}
	if result.AITurn.AIPromptUsed == nil {
		t.Fatalf("guardrail-triggered turn must retain the full prompt")
	}
	if result.AITurn.GuardrailsAction != string(guardrails.ActionSanitize) {
		t.Fatalf("expected sanitize action, got %q", result.AITurn.GuardrailsAction)
	}
	after, _ := h.svc.GetByID(context.Background(), session.ID)
	if after.WarningsCount != 1 {
		t.Fatalf("expected warnings_count 1, got %d", after.WarningsCount)
	}
}

func TestProcessTurnRetainsPromptOnRequest(t *testing.T) {
	h := newOrchestratorHarness(t)
	session := h.startedSession(t)

	result, err := h.orch.ProcessTurn(context.Background(), session.ID, TurnInput{Text: "What is my case status?", RetainPrompt: true})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.AITurn.AIPromptUsed == nil {
		t.Fatalf("expected retained prompt")
	}
	if !strings.Contains(*result.AITurn.AIPromptUsed, "What is my case status?") {
		t.Fatalf("retained prompt should include the user prompt")
	}
}

func TestProcessTurnPersistentModelErrorFailsSession(t *testing.T) {
	h := newOrchestratorHarness(t)
	session := h.startedSession(t)
	h.llm.err = &statusErr{status: 401}

	if _, err := h.orch.ProcessTurn(context.Background(), session.ID, TurnInput{Text: "What is my case status?"}); err == nil {
		t.Fatalf("expected error")
	}
	after, _ := h.svc.GetByID(context.Background(), session.ID)
	if after.Status != types.SessionStatusFailed {
		t.Fatalf("expected failed session, got %s", after.Status)
	}
}

func TestProcessTurnTransientModelErrorKeepsSession(t *testing.T) {
	h := newOrchestratorHarness(t)
	session := h.startedSession(t)
	h.llm.err = &statusErr{status: 429}

	if _, err := h.orch.ProcessTurn(context.Background(), session.ID, TurnInput{Text: "What is my case status?"}); err == nil {
		t.Fatalf("expected error")
	}
	after, _ := h.svc.GetByID(context.Background(), session.ID)
	if after.Status != types.SessionStatusInProgress {
		t.Fatalf("transient failure must not kill the session, got %s", after.Status)
	}
	if n := h.audits.countByType(session.ID, types.AuditEventSystemError); n != 1 {
		t.Fatalf("expected system_error audit, got %d", n)
	}
}

func TestProcessTurnTranscriptionErrorLeavesNoTurns(t *testing.T) {
	h := newOrchestratorHarness(t)
	session := h.startedSession(t)
	h.stt.err = stderrors.New("recognizer unavailable")

	if _, err := h.orch.ProcessTurn(context.Background(), session.ID, TurnInput{Audio: []byte("pcm")}); err == nil {
		t.Fatalf("expected error")
	}
	count, _ := h.turns.CountBySession(context.Background(), nil, session.ID)
	if count != 0 {
		t.Fatalf("failed transcription must not record turns, got %d", count)
	}
	after, _ := h.svc.GetByID(context.Background(), session.ID)
	if after.Status != types.SessionStatusInProgress {
		t.Fatalf("session must stay in_progress, got %s", after.Status)
	}
}

func TestProcessTurnEmptyTranscriptionHardFails(t *testing.T) {
	h := newOrchestratorHarness(t)
	session := h.startedSession(t)
	h.stt.text = "   "

	if _, err := h.orch.ProcessTurn(context.Background(), session.ID, TurnInput{Audio: []byte("pcm")}); err == nil {
		t.Fatalf("expected error for empty transcription")
	}
	count, _ := h.turns.CountBySession(context.Background(), nil, session.ID)
	if count != 0 {
		t.Fatalf("empty transcription must not record turns, got %d", count)
	}
	after, _ := h.svc.GetByID(context.Background(), session.ID)
	if after.Status != types.SessionStatusInProgress {
		t.Fatalf("session must stay in_progress, got %s", after.Status)
	}
	if after.RefusalsCount != 0 {
		t.Fatalf("empty transcription is not a refusal, got refusals_count %d", after.RefusalsCount)
	}
}

func TestProcessTurnSynthesisFailureDegradesToText(t *testing.T) {
	h := newOrchestratorHarness(t)
	session := h.startedSession(t)
	h.tts.err = stderrors.New("tts down")

	result, err := h.orch.ProcessTurn(context.Background(), session.ID, TurnInput{Text: "What is my case status?"})
	if err != nil {
		t.Fatalf("synthesis failure must not fail the turn: %v", err)
	}
	if result.Audio != nil {
		t.Fatalf("expected no audio")
	}
	if result.ResponseText == "" {
		t.Fatalf("expected text response")
	}
}

func TestHandleInterruptionAudits(t *testing.T) {
	h := newOrchestratorHarness(t)
	session := h.startedSession(t)

	if err := h.orch.HandleInterruption(context.Background(), session.ID, "As I was saying about your docu"); err != nil {
		t.Fatalf("HandleInterruption: %v", err)
	}
	if n := h.audits.countByType(session.ID, types.AuditEventInterruption); n != 1 {
		t.Fatalf("expected interruption audit, got %d", n)
	}
	if err := h.orch.HandleInterruption(context.Background(), uuid.New(), ""); !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// statusErr mimics a provider error carrying an HTTP status.
type statusErr struct {
	status int
}

func (e *statusErr) Error() string       { return "provider error" }
func (e *statusErr) HTTPStatusCode() int { return e.status }
