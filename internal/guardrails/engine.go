package guardrails

import (
	"strings"
)

type Action string

const (
	ActionAllow    Action = "allow"
	ActionRefuse   Action = "refuse"
	ActionSanitize Action = "sanitize"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	ViolationEmptyInput             = "empty_input"
	ViolationFraud                  = "fraud"
	ViolationRestrictedTopic        = "restricted_topic"
	ViolationLegalAdvice            = "legal_advice"
	ViolationGuarantee              = "guarantee"
	ViolationOtherVisa              = "other_visa"
	ViolationFinancialGuarantee     = "financial_guarantee"
	ViolationAuthorityImpersonation = "authority_impersonation"
	ViolationProactiveSuggestion    = "proactive_suggestion"
	ViolationOffScope               = "off_scope"
	ViolationMissingSafetyLanguage  = "missing_safety_language"
)

// Result is the outcome of one classification pass. Violations preserves
// detection order; Severities maps each violation type to its tier.
type Result struct {
	Action     Action
	Violations []string
	Severities map[string]Severity
	// Message is the canned refusal text for refuse results.
	Message string
	// MatchedTopic names the restricted topic that triggered a
	// restricted_topic refusal.
	MatchedTopic string
}

func allowResult() Result {
	return Result{Action: ActionAllow, Severities: map[string]Severity{}}
}

// Engine classifies user input (pre-prompt) and AI output (post-response)
// against ordered rule sets. It is stateless and safe for concurrent use.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// CheckUserInput runs the pre-prompt cascade. Category order is a policy
// contract: the first matching category wins and later categories are not
// evaluated.
func (e *Engine) CheckUserInput(text string, restrictedTopics []string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{
			Action:     ActionRefuse,
			Violations: []string{ViolationEmptyInput},
			Severities: map[string]Severity{ViolationEmptyInput: SeverityLow},
			Message:    msgEmptyInput,
		}
	}
	lowered := strings.ToLower(trimmed)

	for _, rule := range preRules {
		matched, topic := rule.match(lowered, restrictedTopics)
		if !matched {
			continue
		}
		msg := rule.message
		if topic != "" {
			msg = strings.ReplaceAll(msg, "{topic}", topic)
		}
		return Result{
			Action:       ActionRefuse,
			Violations:   []string{rule.violation},
			Severities:   map[string]Severity{rule.violation: rule.severity},
			Message:      msg,
			MatchedTopic: topic,
		}
	}
	return allowResult()
}

// CheckAIResponse runs the post-response pass. Authority impersonation
// short-circuits; every other category accumulates.
func (e *Engine) CheckAIResponse(text string) Result {
	trimmed := strings.TrimSpace(text)
	lowered := strings.ToLower(trimmed)

	if matchAny(authorityImpersonationPatterns, lowered) {
		return Result{
			Action:     ActionSanitize,
			Violations: []string{ViolationAuthorityImpersonation},
			Severities: map[string]Severity{ViolationAuthorityImpersonation: SeverityCritical},
		}
	}

	out := allowResult()
	for _, rule := range postRules {
		if rule.minLength > 0 && len(trimmed) <= rule.minLength {
			continue
		}
		if rule.match(lowered) {
			out.Violations = append(out.Violations, rule.violation)
			out.Severities[rule.violation] = rule.severity
		}
	}
	if len(out.Violations) > 0 {
		out.Action = ActionSanitize
	}
	return out
}

// ShouldEscalate reports whether the given violation types warrant session
// escalation: any critical-tier violation, or two or more distinct high-tier
// violations together.
func (e *Engine) ShouldEscalate(violations []string) bool {
	high := map[string]bool{}
	for _, v := range violations {
		switch v {
		case ViolationFraud, ViolationAuthorityImpersonation:
			return true
		case ViolationLegalAdvice, ViolationGuarantee, ViolationFinancialGuarantee:
			high[v] = true
		}
	}
	return len(high) >= 2
}
