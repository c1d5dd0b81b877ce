package contextseal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lexvoice/casecall-backend/internal/pkg/errors"
	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/types"
)

type fakeCaseReader struct {
	legalCase *types.LegalCase
	documents []*types.CaseDocument
	notes     []*types.HumanReviewNote
	findings  []*types.AIEligibilityFinding
	rules     []*types.VisaRuleRequirement

	notesErr    error
	findingsErr error
}

func (f *fakeCaseReader) GetCase(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) (*types.LegalCase, error) {
	if f.legalCase == nil {
		return nil, errors.ErrNotFound
	}
	return f.legalCase, nil
}

func (f *fakeCaseReader) ListDocuments(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) ([]*types.CaseDocument, error) {
	return f.documents, nil
}

func (f *fakeCaseReader) ListReviewNotes(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) ([]*types.HumanReviewNote, error) {
	if f.notesErr != nil {
		return nil, f.notesErr
	}
	return f.notes, nil
}

func (f *fakeCaseReader) ListFindings(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) ([]*types.AIEligibilityFinding, error) {
	if f.findingsErr != nil {
		return nil, f.findingsErr
	}
	return f.findings, nil
}

func (f *fakeCaseReader) ListRuleRequirements(ctx context.Context, tx *gorm.DB, visaType string) ([]*types.VisaRuleRequirement, error) {
	return f.rules, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func seededReader() *fakeCaseReader {
	caseID := uuid.New()
	return &fakeCaseReader{
		legalCase: &types.LegalCase{
			ID:           caseID,
			UserID:       uuid.New(),
			CaseType:     "skilled_worker",
			Jurisdiction: "UK",
			Status:       types.CaseStatusOpen,
			Facts:        datatypes.JSON([]byte(`{"applicant_name":"R. Okafor","entry_date":"2024-05-01"}`)),
		},
		documents: []*types.CaseDocument{
			{CaseID: caseID, DocType: "passport", Status: "verified"},
			{CaseID: caseID, DocType: "sponsorship_letter", Status: "uploaded"},
		},
		notes: []*types.HumanReviewNote{
			{CaseID: caseID, Note: "Sponsor details confirmed by reviewer."},
		},
		findings: []*types.AIEligibilityFinding{
			{CaseID: caseID, VisaType: "skilled_worker", Outcome: "likely_eligible", Confidence: 0.8},
			{CaseID: caseID, VisaType: "student", Outcome: "uncertain", Confidence: 0.3},
		},
		rules: []*types.VisaRuleRequirement{
			{
				VisaType:          "skilled_worker",
				Description:       "Certificate of sponsorship from a licensed sponsor",
				RequiredDocuments: datatypes.JSON([]byte(`["passport","sponsorship_letter","bank_statement"]`)),
			},
		},
	}
}

func TestBuildBundle(t *testing.T) {
	reader := seededReader()
	s := NewSealer(reader, testLogger(t))

	bundle, err := s.Build(context.Background(), reader.legalCase.ID, 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if bundle.CaseID != reader.legalCase.ID.String() {
		t.Fatalf("case id mismatch")
	}
	if bundle.CaseFacts["applicant_name"] != "R. Okafor" {
		t.Fatalf("case facts not sealed: %v", bundle.CaseFacts)
	}
	if len(bundle.DocumentsSummary.Uploaded) != 2 {
		t.Fatalf("expected 2 uploaded doc types, got %v", bundle.DocumentsSummary.Uploaded)
	}
	if len(bundle.DocumentsSummary.Missing) != 1 || bundle.DocumentsSummary.Missing[0] != "bank_statement" {
		t.Fatalf("expected bank_statement missing, got %v", bundle.DocumentsSummary.Missing)
	}
	if bundle.DocumentsSummary.Status["passport"] != "verified" {
		t.Fatalf("document status not sealed: %v", bundle.DocumentsSummary.Status)
	}
	if bundle.AIFindings.MostRelevantVisaType != "skilled_worker" {
		t.Fatalf("highest-confidence visa type should win, got %s", bundle.AIFindings.MostRelevantVisaType)
	}
	if bundle.RulesKnowledge.VisaType != "skilled_worker" || len(bundle.RulesKnowledge.Requirements) != 1 {
		t.Fatalf("rules knowledge not sealed: %+v", bundle.RulesKnowledge)
	}

	// One issue per missing mandatory document, one per low-confidence finding.
	if len(bundle.OutstandingIssues) != 2 {
		t.Fatalf("expected 2 outstanding issues, got %v", bundle.OutstandingIssues)
	}
	if ok, err := Validate(bundle); !ok {
		t.Fatalf("built bundle should validate: %v", err)
	}
}

func TestBuildToleratesPartialFailures(t *testing.T) {
	reader := seededReader()
	reader.notesErr = fmt.Errorf("review store down")
	reader.findingsErr = fmt.Errorf("findings store down")
	s := NewSealer(reader, testLogger(t))

	bundle, err := s.Build(context.Background(), reader.legalCase.ID, 1)
	if err != nil {
		t.Fatalf("partial sub-gatherer failures must not fail the build: %v", err)
	}
	if len(bundle.HumanReviewNotes) != 0 {
		t.Fatalf("expected empty notes section, got %v", bundle.HumanReviewNotes)
	}
	if len(bundle.AIFindings.Findings) != 0 {
		t.Fatalf("expected empty findings section, got %v", bundle.AIFindings.Findings)
	}
	// With findings gone, the case's own type drives the rules lookup.
	if bundle.RulesKnowledge.VisaType != "skilled_worker" {
		t.Fatalf("expected fallback to case type, got %s", bundle.RulesKnowledge.VisaType)
	}
}

func TestBuildMissingCaseFails(t *testing.T) {
	s := NewSealer(&fakeCaseReader{}, testLogger(t))
	if _, err := s.Build(context.Background(), uuid.New(), 1); err == nil {
		t.Fatal("missing case must fail the whole build")
	}
}

func TestComputeHashDeterministic(t *testing.T) {
	reader := seededReader()
	s := NewSealer(reader, testLogger(t))
	ctx := context.Background()

	a, err := s.Build(ctx, reader.legalCase.ID, 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	b, err := s.Build(ctx, reader.legalCase.ID, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	hashA, err := ComputeHash(a)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	hashB, err := ComputeHash(b)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	// Same underlying case state: the hash must match even though version
	// and created_at differ between builds.
	if hashA != hashB {
		t.Fatalf("identical inputs must hash identically: %s vs %s", hashA, hashB)
	}
}

func TestComputeHashSensitive(t *testing.T) {
	reader := seededReader()
	s := NewSealer(reader, testLogger(t))
	ctx := context.Background()

	a, err := s.Build(ctx, reader.legalCase.ID, 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	hashA, _ := ComputeHash(a)

	reader.legalCase.Facts = datatypes.JSON([]byte(`{"applicant_name":"R. Okafor","entry_date":"2024-06-01"}`))
	b, err := s.Build(ctx, reader.legalCase.ID, 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	hashB, _ := ComputeHash(b)

	if hashA == hashB {
		t.Fatal("changing one field must change the hash")
	}
}

func TestValidateRequiredFields(t *testing.T) {
	reader := seededReader()
	s := NewSealer(reader, testLogger(t))
	bundle, err := s.Build(context.Background(), reader.legalCase.ID, 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	broken := *bundle
	broken.CaseID = ""
	if ok, err := Validate(&broken); ok || err == nil {
		t.Fatal("missing case_id must fail validation")
	}

	broken = *bundle
	broken.AllowedTopics = nil
	if ok, _ := Validate(&broken); ok {
		t.Fatal("missing allowed_topics must fail validation")
	}

	broken = *bundle
	broken.CaseFacts = nil
	if ok, _ := Validate(&broken); ok {
		t.Fatal("missing case_facts must fail validation")
	}

	if ok, err := Validate(nil); ok || err == nil {
		t.Fatal("nil bundle must fail validation")
	}
}
