package contextseal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/repos"
)

// LowConfidenceThreshold marks eligibility findings that become outstanding
// issues in the sealed bundle.
const LowConfidenceThreshold = 0.5

// AllowedTopics is the fixed allow-list sealed into every bundle.
var AllowedTopics = []string{
	"case status",
	"case facts on file",
	"uploaded documents",
	"missing documents",
	"application timeline",
	"next procedural steps",
}

// BaseRestrictedTopics is the fixed restricted-topic baseline; case-specific
// restrictions from review notes are appended at build time.
var BaseRestrictedTopics = []string{
	"other people's cases",
	"fee refunds",
	"legal strategy",
}

type Sealer interface {
	// Build assembles a fresh bundle for the case at the given context
	// version. Every sub-gatherer tolerates failure by falling back to an
	// empty section; only a missing case fails the build.
	Build(ctx context.Context, caseID uuid.UUID, version int) (*Bundle, error)
}

type sealer struct {
	log   *logger.Logger
	cases repos.CaseReaderRepo
}

func NewSealer(cases repos.CaseReaderRepo, baseLog *logger.Logger) Sealer {
	return &sealer{log: baseLog.With("service", "ContextSealer"), cases: cases}
}

func (s *sealer) Build(ctx context.Context, caseID uuid.UUID, version int) (*Bundle, error) {
	legalCase, err := s.cases.GetCase(ctx, nil, caseID)
	if err != nil {
		return nil, fmt.Errorf("load case %s: %w", caseID, err)
	}

	bundle := &Bundle{
		Version:          version,
		CreatedAt:        time.Now().UTC(),
		CaseID:           legalCase.ID.String(),
		CaseType:         legalCase.CaseType,
		Jurisdiction:     legalCase.Jurisdiction,
		CaseStatus:       legalCase.Status,
		AllowedTopics:    append([]string(nil), AllowedTopics...),
		RestrictedTopics: append([]string(nil), BaseRestrictedTopics...),
		CaseFacts:        map[string]string{},
	}

	if len(legalCase.Facts) > 0 {
		var facts map[string]string
		if err := json.Unmarshal(legalCase.Facts, &facts); err != nil {
			s.log.Warn("Case facts not decodable, sealing empty facts", "case_id", caseID, "error", err)
		} else {
			bundle.CaseFacts = facts
		}
	}

	findings := s.gatherFindings(ctx, caseID)
	bundle.AIFindings = findings
	visaType := findings.MostRelevantVisaType
	if visaType == "" {
		visaType = legalCase.CaseType
	}

	required := s.gatherRules(ctx, visaType)
	bundle.RulesKnowledge = required.knowledge

	bundle.DocumentsSummary = s.gatherDocuments(ctx, caseID, required.requiredDocs)
	bundle.HumanReviewNotes = s.gatherReviewNotes(ctx, caseID)
	bundle.OutstandingIssues = outstandingIssues(bundle.DocumentsSummary.Missing, findings.Findings)

	return bundle, nil
}

func (s *sealer) gatherFindings(ctx context.Context, caseID uuid.UUID) AIFindings {
	out := AIFindings{Findings: []Finding{}}
	rows, err := s.cases.ListFindings(ctx, nil, caseID)
	if err != nil {
		s.log.Warn("Findings unavailable, sealing empty section", "case_id", caseID, "error", err)
		return out
	}
	best := -1.0
	for _, row := range rows {
		out.Findings = append(out.Findings, Finding{
			VisaType:   row.VisaType,
			Outcome:    row.Outcome,
			Confidence: row.Confidence,
		})
		if row.Confidence > best {
			best = row.Confidence
			out.MostRelevantVisaType = row.VisaType
		}
	}
	return out
}

type ruleGather struct {
	knowledge    RulesKnowledge
	requiredDocs []string
}

func (s *sealer) gatherRules(ctx context.Context, visaType string) ruleGather {
	out := ruleGather{knowledge: RulesKnowledge{VisaType: visaType, Requirements: []string{}}}
	rows, err := s.cases.ListRuleRequirements(ctx, nil, visaType)
	if err != nil {
		s.log.Warn("Rule requirements unavailable, sealing empty section", "visa_type", visaType, "error", err)
		return out
	}
	docSet := map[string]bool{}
	for _, row := range rows {
		if row.Description != "" {
			out.knowledge.Requirements = append(out.knowledge.Requirements, row.Description)
		}
		if len(row.RequiredDocuments) == 0 {
			continue
		}
		var docs []string
		if err := json.Unmarshal(row.RequiredDocuments, &docs); err != nil {
			s.log.Warn("Required documents not decodable, skipping", "visa_type", visaType, "error", err)
			continue
		}
		for _, d := range docs {
			docSet[d] = true
		}
	}
	for d := range docSet {
		out.requiredDocs = append(out.requiredDocs, d)
	}
	sort.Strings(out.requiredDocs)
	return out
}

func (s *sealer) gatherDocuments(ctx context.Context, caseID uuid.UUID, requiredDocs []string) DocumentsSummary {
	out := DocumentsSummary{Uploaded: []string{}, Missing: []string{}, Status: map[string]string{}}
	rows, err := s.cases.ListDocuments(ctx, nil, caseID)
	if err != nil {
		s.log.Warn("Documents unavailable, sealing empty section", "case_id", caseID, "error", err)
		out.Missing = append(out.Missing, requiredDocs...)
		return out
	}
	uploaded := map[string]bool{}
	for _, row := range rows {
		if !uploaded[row.DocType] {
			uploaded[row.DocType] = true
			out.Uploaded = append(out.Uploaded, row.DocType)
		}
		out.Status[row.DocType] = row.Status
	}
	sort.Strings(out.Uploaded)
	for _, required := range requiredDocs {
		if !uploaded[required] {
			out.Missing = append(out.Missing, required)
		}
	}
	sort.Strings(out.Missing)
	return out
}

func (s *sealer) gatherReviewNotes(ctx context.Context, caseID uuid.UUID) []string {
	rows, err := s.cases.ListReviewNotes(ctx, nil, caseID)
	if err != nil {
		s.log.Warn("Review notes unavailable, sealing empty section", "case_id", caseID, "error", err)
		return []string{}
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Note)
	}
	return out
}

func outstandingIssues(missingDocs []string, findings []Finding) []string {
	issues := []string{}
	for _, doc := range missingDocs {
		issues = append(issues, fmt.Sprintf("missing mandatory document: %s", doc))
	}
	for _, f := range findings {
		if f.Confidence < LowConfidenceThreshold {
			issues = append(issues, fmt.Sprintf("low-confidence finding: %s for %s (%.2f)", f.Outcome, f.VisaType, f.Confidence))
		}
	}
	return issues
}
