package contextseal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Bundle is the immutable, versioned snapshot of case state handed to the
// AI. Once sealed into a session it is never patched in place; a rebuild
// produces a new bundle under a new context version.
type Bundle struct {
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	CaseID       string    `json:"case_id"`
	CaseType     string    `json:"case_type"`
	Jurisdiction string    `json:"jurisdiction"`
	CaseStatus   string    `json:"case_status"`

	AllowedTopics    []string          `json:"allowed_topics"`
	RestrictedTopics []string          `json:"restricted_topics"`
	CaseFacts        map[string]string `json:"case_facts"`

	DocumentsSummary DocumentsSummary `json:"documents_summary"`
	HumanReviewNotes []string         `json:"human_review_notes"`
	AIFindings       AIFindings       `json:"ai_findings"`
	RulesKnowledge   RulesKnowledge   `json:"rules_knowledge"`

	OutstandingIssues []string `json:"outstanding_issues"`
}

type DocumentsSummary struct {
	Uploaded []string          `json:"uploaded"`
	Missing  []string          `json:"missing"`
	Status   map[string]string `json:"status"`
}

type Finding struct {
	VisaType   string  `json:"visa_type"`
	Outcome    string  `json:"outcome"`
	Confidence float64 `json:"confidence"`
}

type AIFindings struct {
	Findings             []Finding `json:"findings"`
	MostRelevantVisaType string    `json:"most_relevant_visa_type"`
}

type RulesKnowledge struct {
	VisaType     string   `json:"visa_type"`
	Requirements []string `json:"requirements"`
}

// ComputeHash canonicalizes the bundle (stable key ordering, no incidental
// whitespace) and returns a hex SHA-256. Version and CreatedAt are build
// bookkeeping, not context the AI sees differently, so they are excluded:
// sealing the same underlying case state twice must yield the same hash.
func ComputeHash(b *Bundle) (string, error) {
	if b == nil {
		return "", fmt.Errorf("nil bundle")
	}
	canonical, err := canonicalize(b)
	if err != nil {
		return "", err
	}
	delete(canonical, "version")
	delete(canonical, "created_at")
	raw, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize round-trips the bundle through a generic map so that every
// object, nested ones included, marshals with sorted keys.
func canonicalize(b *Bundle) (map[string]interface{}, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

var requiredFields = []string{
	"version",
	"created_at",
	"case_id",
	"case_type",
	"case_status",
	"allowed_topics",
	"restricted_topics",
	"case_facts",
	"documents_summary",
	"rules_knowledge",
	"outstanding_issues",
}

// Validate checks that the fixed set of required top-level fields is present
// and non-empty where emptiness would leave the AI without grounding.
func Validate(b *Bundle) (bool, error) {
	if b == nil {
		return false, fmt.Errorf("nil bundle")
	}
	if b.Version <= 0 {
		return false, fmt.Errorf("bundle missing version")
	}
	if b.CreatedAt.IsZero() {
		return false, fmt.Errorf("bundle missing created_at")
	}
	if b.CaseID == "" {
		return false, fmt.Errorf("bundle missing case_id")
	}
	if b.CaseType == "" {
		return false, fmt.Errorf("bundle missing case_type")
	}
	if b.CaseStatus == "" {
		return false, fmt.Errorf("bundle missing case_status")
	}
	if len(b.AllowedTopics) == 0 {
		return false, fmt.Errorf("bundle missing allowed_topics")
	}
	if b.RestrictedTopics == nil {
		return false, fmt.Errorf("bundle missing restricted_topics")
	}
	if b.CaseFacts == nil {
		return false, fmt.Errorf("bundle missing case_facts")
	}
	return true, nil
}

// RequiredFields exposes the canonical required-field list for audit tooling.
func RequiredFields() []string {
	out := make([]string, len(requiredFields))
	copy(out, requiredFields)
	return out
}
