package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lexvoice/casecall-backend/internal/clients/openai"
	"github.com/lexvoice/casecall-backend/internal/pkg/errors"
	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/types"
)

func testLogger() *logger.Logger {
	log, err := logger.New("development")
	if err != nil {
		panic(err)
	}
	return log
}

// --- session repo ---

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*types.CallSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[uuid.UUID]*types.CallSession{}}
}

func (r *fakeSessionRepo) put(s *types.CallSession) *types.CallSession {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Version == 0 {
		s.Version = 1
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	copied := *s
	r.sessions[s.ID] = &copied
	return s
}

func (r *fakeSessionRepo) Create(ctx context.Context, tx *gorm.DB, row *types.CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sessions {
		if existing.CaseID == row.CaseID && existing.IsActive() {
			return fmt.Errorf("case %s already has an active session: %w", row.CaseID, errors.ErrInvalidArgument)
		}
	}
	row.ID = uuid.New()
	row.Version = 1
	row.CreatedAt = time.Now().UTC()
	copied := *row
	r.sessions[row.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSessionRepo) FindActiveByCase(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) (*types.CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.CaseID == caseID && s.IsActive() {
			copied := *s
			return &copied, nil
		}
	}
	return nil, errors.ErrNotFound
}

func (r *fakeSessionRepo) ListByCase(ctx context.Context, tx *gorm.DB, caseID uuid.UUID, limit int) ([]*types.CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.CallSession
	for _, s := range r.sessions {
		if s.CaseID == caseID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) UpdateWithVersion(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedVersion int, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return errors.ErrNotFound
	}
	if s.Version != expectedVersion {
		return errors.ErrVersionConflict
	}
	for key, value := range updates {
		applySessionUpdate(s, key, value)
	}
	s.Version = expectedVersion + 1
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func applySessionUpdate(s *types.CallSession, key string, value interface{}) {
	switch key {
	case "status":
		s.Status = value.(string)
	case "ready_at":
		t := value.(time.Time)
		s.ReadyAt = &t
	case "started_at":
		t := value.(time.Time)
		s.StartedAt = &t
	case "ended_at":
		t := value.(time.Time)
		s.EndedAt = &t
	case "duration_seconds":
		d := value.(int)
		s.DurationSeconds = &d
	case "timebox_task_id":
		if value == nil {
			s.TimeboxTaskID = nil
		} else {
			h := value.(string)
			s.TimeboxTaskID = &h
		}
	case "context_bundle":
		s.ContextBundle = value.(datatypes.JSON)
	case "context_hash":
		s.ContextHash = value.(string)
	case "context_version":
		s.ContextVersion = value.(int)
	case "refusals_count":
		s.RefusalsCount = value.(int)
	case "warnings_count":
		s.WarningsCount = value.(int)
	case "escalated":
		s.Escalated = value.(bool)
	case "summary_id":
		id := value.(uuid.UUID)
		s.SummaryID = &id
	}
}

func (r *fakeSessionRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return errors.ErrNotFound
	}
	s.LastHeartbeatAt = &at
	return nil
}

func (r *fakeSessionRepo) SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return errors.ErrNotFound
	}
	s.IsDeleted = true
	return nil
}

// --- turn repo ---

type fakeTurnRepo struct {
	mu    sync.Mutex
	turns []*types.CallTranscriptTurn
}

func newFakeTurnRepo() *fakeTurnRepo {
	return &fakeTurnRepo{}
}

func (r *fakeTurnRepo) CreateNext(ctx context.Context, tx *gorm.DB, row *types.CallTranscriptTurn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := 1
	for _, t := range r.turns {
		if t.SessionID == row.SessionID && t.TurnNumber >= next {
			next = t.TurnNumber + 1
		}
	}
	row.ID = uuid.New()
	row.TurnNumber = next
	if row.StorageTier == "" {
		row.StorageTier = types.StorageTierHot
	}
	row.CreatedAt = time.Now().UTC()
	copied := *row
	r.turns = append(r.turns, &copied)
	return nil
}

func (r *fakeTurnRepo) ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, limit int) ([]*types.CallTranscriptTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.CallTranscriptTurn
	for _, t := range r.turns {
		if t.SessionID == sessionID {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeTurnRepo) CountBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.turns {
		if t.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (r *fakeTurnRepo) ListHotBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*types.CallTranscriptTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.CallTranscriptTurn
	for _, t := range r.turns {
		if t.StorageTier == types.StorageTierHot && t.CreatedAt.Before(cutoff) {
			copied := *t
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeTurnRepo) MarkCold(ctx context.Context, tx *gorm.DB, id uuid.UUID, objectKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.turns {
		if t.ID == id {
			t.StorageTier = types.StorageTierCold
			key := objectKey
			t.ArchiveObjectKey = &key
			return nil
		}
	}
	return errors.ErrNotFound
}

// --- audit repo ---

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*types.CallAuditLog
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{}
}

func (r *fakeAuditRepo) Create(ctx context.Context, tx *gorm.DB, row *types.CallAuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row.ID = uuid.New()
	row.CreatedAt = time.Now().UTC()
	copied := *row
	r.entries = append(r.entries, &copied)
	return nil
}

func (r *fakeAuditRepo) ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, limit int) ([]*types.CallAuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.CallAuditLog
	for _, e := range r.entries {
		if e.SessionID == sessionID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) ListBySessionAndType(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, eventType string) ([]*types.CallAuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.CallAuditLog
	for _, e := range r.entries {
		if e.SessionID == sessionID && e.EventType == eventType {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) countByType(sessionID uuid.UUID, eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.SessionID == sessionID && e.EventType == eventType {
			n++
		}
	}
	return n
}

// --- summary repo ---

type fakeSummaryRepo struct {
	mu        sync.Mutex
	summaries map[uuid.UUID]*types.CallSummary
}

func newFakeSummaryRepo() *fakeSummaryRepo {
	return &fakeSummaryRepo{summaries: map[uuid.UUID]*types.CallSummary{}}
}

func (r *fakeSummaryRepo) Create(ctx context.Context, tx *gorm.DB, row *types.CallSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row.ID = uuid.New()
	row.CreatedAt = time.Now().UTC()
	copied := *row
	r.summaries[row.ID] = &copied
	return nil
}

func (r *fakeSummaryRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CallSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.summaries[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSummaryRepo) GetBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.CallSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.summaries {
		if s.SessionID != nil && *s.SessionID == sessionID && !s.IsDeleted {
			copied := *s
			return &copied, nil
		}
	}
	return nil, errors.ErrNotFound
}

func (r *fakeSummaryRepo) SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.summaries[id]
	if !ok {
		return errors.ErrNotFound
	}
	s.IsDeleted = true
	return nil
}

// --- case reader ---

type fakeCaseReader struct {
	cases        map[uuid.UUID]*types.LegalCase
	documents    map[uuid.UUID][]*types.CaseDocument
	notes        map[uuid.UUID][]*types.HumanReviewNote
	findings     map[uuid.UUID][]*types.AIEligibilityFinding
	requirements map[string][]*types.VisaRuleRequirement
}

func newFakeCaseReader() *fakeCaseReader {
	return &fakeCaseReader{
		cases:        map[uuid.UUID]*types.LegalCase{},
		documents:    map[uuid.UUID][]*types.CaseDocument{},
		notes:        map[uuid.UUID][]*types.HumanReviewNote{},
		findings:     map[uuid.UUID][]*types.AIEligibilityFinding{},
		requirements: map[string][]*types.VisaRuleRequirement{},
	}
}

func (r *fakeCaseReader) GetCase(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) (*types.LegalCase, error) {
	c, ok := r.cases[caseID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return c, nil
}

func (r *fakeCaseReader) ListDocuments(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) ([]*types.CaseDocument, error) {
	return r.documents[caseID], nil
}

func (r *fakeCaseReader) ListReviewNotes(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) ([]*types.HumanReviewNote, error) {
	return r.notes[caseID], nil
}

func (r *fakeCaseReader) ListFindings(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) ([]*types.AIEligibilityFinding, error) {
	return r.findings[caseID], nil
}

func (r *fakeCaseReader) ListRuleRequirements(ctx context.Context, tx *gorm.DB, visaType string) ([]*types.VisaRuleRequirement, error) {
	return r.requirements[visaType], nil
}

// --- timebox scheduler ---

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []uuid.UUID
	cancelled []string
	failNext  bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{}
}

func (s *fakeScheduler) Schedule(ctx context.Context, sessionID uuid.UUID, startTime time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return "", fmt.Errorf("temporal unavailable")
	}
	s.scheduled = append(s.scheduled, sessionID)
	return "timebox-" + sessionID.String(), nil
}

func (s *fakeScheduler) Cancel(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, handle)
	return nil
}

// --- ai providers ---

type fakeAI struct {
	completeText string
	completeErr  error
	jsonOut      map[string]any
	jsonErr      error
	synthErr     error
}

func (f *fakeAI) Complete(ctx context.Context, system string, user string, opts openai.CompleteOptions) (*openai.Completion, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &openai.Completion{Text: f.completeText, Model: "gpt-test"}, nil
}

func (f *fakeAI) GenerateJSON(ctx context.Context, system string, user string) (map[string]any, error) {
	if f.jsonErr != nil {
		return nil, f.jsonErr
	}
	return f.jsonOut, nil
}

func (f *fakeAI) SynthesizeSpeech(ctx context.Context, text string, opts openai.SpeechOptions) (*openai.Synthesis, error) {
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return &openai.Synthesis{Audio: []byte("audio"), ContentType: "audio/mpeg"}, nil
}

type fakeSTT struct {
	text       string
	confidence float64
	err        error
}

func (f *fakeSTT) Transcribe(ctx context.Context, audio []byte, language string, sampleRateHertz int) (*Transcription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &Transcription{Text: f.text, Confidence: f.confidence}, nil
}

func (f *fakeSTT) Close() error { return nil }

type fakeLLM struct {
	text  string
	model string
	err   error
	calls int
}

func (f *fakeLLM) Complete(ctx context.Context, systemMessage string, userPrompt string) (*LLMReply, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	model := f.model
	if model == "" {
		model = "gpt-test"
	}
	return &LLMReply{Text: f.text, Model: model}, nil
}

type fakeTTS struct {
	err   error
	calls int
}

func (f *fakeTTS) Synthesize(ctx context.Context, text string, language string) (*SpeechAudio, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &SpeechAudio{Audio: []byte("audio"), ContentType: "audio/mpeg"}, nil
}
