package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/lexvoice/casecall-backend/internal/clients/openai"
	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/repos"
	"github.com/lexvoice/casecall-backend/internal/types"
)

const summaryTurnLimit = 500

const summarySystemMessage = `You summarize a voice call between an applicant and an AI case assistant.
Return a JSON object with exactly these keys:
"summary_text" (string, 3-6 sentences),
"key_questions" (array of strings, questions the applicant asked),
"action_items" (array of strings),
"missing_documents" (array of strings),
"suggested_next_steps" (array of strings).
Base everything strictly on the transcript. Do not invent facts.`

// CaseTimeline receives finished summaries so the case history reflects the
// call. Implementations outside this service own delivery semantics.
type CaseTimeline interface {
	AttachSummary(ctx context.Context, summary *types.CallSummary) error
}

// SummaryService turns a finished session's transcript into a persisted
// CallSummary. Partial summaries cover terminated sessions that had turns.
type SummaryService interface {
	GenerateAndAttach(ctx context.Context, session *types.CallSession, partial bool) (*types.CallSummary, error)
	GetForSession(ctx context.Context, session *types.CallSession) (*types.CallSummary, error)
}

type summaryService struct {
	log       *logger.Logger
	ai        openai.Client
	turns     repos.CallTurnRepo
	summaries repos.CallSummaryRepo
	timeline  CaseTimeline
}

func NewSummaryService(
	log *logger.Logger,
	ai openai.Client,
	turns repos.CallTurnRepo,
	summaries repos.CallSummaryRepo,
	timeline CaseTimeline,
) SummaryService {
	return &summaryService{
		log:       log.With("service", "SummaryService"),
		ai:        ai,
		turns:     turns,
		summaries: summaries,
		timeline:  timeline,
	}
}

func (s *summaryService) GenerateAndAttach(ctx context.Context, session *types.CallSession, partial bool) (*types.CallSummary, error) {
	turns, err := s.turns.ListBySession(ctx, nil, session.ID, summaryTurnLimit)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	row := &types.CallSummary{
		SessionID: &session.ID,
		CaseID:    session.CaseID,
		TurnCount: len(turns),
		Partial:   partial,
	}
	if session.DurationSeconds != nil {
		row.DurationSeconds = *session.DurationSeconds
	}

	if len(turns) == 0 {
		row.SummaryText = "No conversation took place during this call."
	} else {
		out, err := s.ai.GenerateJSON(ctx, summarySystemMessage, renderTranscript(turns))
		if err != nil {
			return nil, fmt.Errorf("summarize transcript: %w", err)
		}
		applySummaryOutput(row, out)
	}

	if err := s.summaries.Create(ctx, nil, row); err != nil {
		return nil, err
	}

	if s.timeline != nil {
		if err := s.timeline.AttachSummary(ctx, row); err != nil {
			s.log.Warn("Timeline attach failed", "summary_id", row.ID, "case_id", row.CaseID, "error", err)
		}
	}
	return row, nil
}

func (s *summaryService) GetForSession(ctx context.Context, session *types.CallSession) (*types.CallSummary, error) {
	return s.summaries.GetBySession(ctx, nil, session.ID)
}

func renderTranscript(turns []*types.CallTranscriptTurn) string {
	var b strings.Builder
	for _, turn := range turns {
		switch turn.TurnType {
		case types.TurnTypeUser:
			b.WriteString("Applicant: ")
		case types.TurnTypeAI:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("System: ")
		}
		b.WriteString(turn.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func applySummaryOutput(row *types.CallSummary, out map[string]any) {
	if text, ok := out["summary_text"].(string); ok && strings.TrimSpace(text) != "" {
		row.SummaryText = strings.TrimSpace(text)
	} else {
		row.SummaryText = "Summary unavailable for this call."
	}
	row.KeyQuestions = marshalStringList(out["key_questions"])
	row.ActionItems = marshalStringList(out["action_items"])
	row.MissingDocuments = marshalStringList(out["missing_documents"])
	row.SuggestedNextSteps = marshalStringList(out["suggested_next_steps"])
}

// marshalStringList tolerates the model returning non-strings inside the
// array; anything unusable becomes an empty list rather than an error.
func marshalStringList(v any) datatypes.JSON {
	items, ok := v.([]any)
	if !ok {
		return datatypes.JSON([]byte("[]"))
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(raw)
}

// logTimeline is the default CaseTimeline when no case-service integration is
// configured. It records the attachment so the gap is visible in logs.
type logTimeline struct {
	log *logger.Logger
}

func NewLogTimeline(log *logger.Logger) CaseTimeline {
	return &logTimeline{log: log.With("service", "CaseTimeline")}
}

func (t *logTimeline) AttachSummary(ctx context.Context, summary *types.CallSummary) error {
	t.log.Info("Call summary ready for case timeline", "summary_id", summary.ID, "case_id", summary.CaseID, "partial", summary.Partial)
	return nil
}
