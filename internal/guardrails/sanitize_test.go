package guardrails

import (
	"strings"
	"testing"
)

func TestSanitizeImpersonation(t *testing.T) {
	e := NewEngine()
	in := "I am an immigration officer and your file looks complete to me today."
	out := e.Sanitize(in, []string{ViolationAuthorityImpersonation})
	if strings.Contains(strings.ToLower(out), "i am an immigration officer") {
		t.Fatalf("impersonation phrase not removed: %q", out)
	}
	if !strings.HasPrefix(out, SafetyLanguage) {
		t.Fatalf("safety language not prepended: %q", out)
	}
}

func TestSanitizeGuaranteeSoftening(t *testing.T) {
	e := NewEngine()
	out := e.Sanitize("Your approval is guaranteed and you will definitely succeed.", []string{ViolationGuarantee})
	lowered := strings.ToLower(out)
	if strings.Contains(lowered, "guaranteed") || strings.Contains(lowered, "definitely") {
		t.Fatalf("guarantee language not softened: %q", out)
	}
	if !strings.Contains(lowered, "likely") {
		t.Fatalf("expected hedged language, got %q", out)
	}
}

func TestSanitizeLegalObligationRewrites(t *testing.T) {
	e := NewEngine()
	out := e.Sanitize("You must file the form now. I advise you to appeal.", []string{ViolationLegalAdvice})
	lowered := strings.ToLower(out)
	if strings.Contains(lowered, "you must") {
		t.Fatalf("obligation language not rewritten: %q", out)
	}
	if strings.Contains(lowered, "i advise you to") {
		t.Fatalf("advice language not rewritten: %q", out)
	}
}

func TestSanitizeDropsProactiveSentences(t *testing.T) {
	e := NewEngine()
	in := "Your passport is on file. Have you considered applying for a work permit? The review is pending."
	out := e.Sanitize(in, []string{ViolationProactiveSuggestion})
	if strings.Contains(strings.ToLower(out), "have you considered") {
		t.Fatalf("proactive sentence not removed: %q", out)
	}
	if !strings.Contains(out, "Your passport is on file.") || !strings.Contains(out, "The review is pending.") {
		t.Fatalf("non-violating sentences must survive: %q", out)
	}
}

func TestSanitizeCollapseFallback(t *testing.T) {
	e := NewEngine()
	// The whole text is one proactive sentence; removal collapses it to
	// nothing and the canned fallback takes over.
	out := e.Sanitize("Have you considered a different visa?", []string{ViolationProactiveSuggestion})
	if !strings.Contains(out, fallbackResponse) {
		t.Fatalf("expected fallback response, got %q", out)
	}
	if out == "" {
		t.Fatal("sanitize must be total")
	}
}

func TestSanitizeNoDuplicateSafetyLanguage(t *testing.T) {
	e := NewEngine()
	in := SafetyLanguage + " Your file shows a pending review that will take several more weeks to finish."
	out := e.Sanitize(in, []string{ViolationGuarantee})
	if strings.Count(out, SafetyLanguage) != 1 {
		t.Fatalf("safety language duplicated: %q", out)
	}
}

func TestSanitizedResponsePassesRecheck(t *testing.T) {
	e := NewEngine()
	in := "I guarantee your approval. You must file an appeal today, and the officer will definitely agree with the assessment."
	first := e.CheckAIResponse(in)
	if first.Action != ActionSanitize {
		t.Fatalf("expected sanitize, got %s", first.Action)
	}
	cleaned := e.Sanitize(in, first.Violations)
	second := e.CheckAIResponse(cleaned)
	if second.Action != ActionAllow {
		t.Fatalf("sanitized text should pass re-check, got %s (violations %v, text %q)",
			second.Action, second.Violations, cleaned)
	}
}

func TestSanitizeDenialCertaintyPassesRecheck(t *testing.T) {
	e := NewEngine()
	in := "Based on your file, there's no way this will be denied."
	first := e.CheckAIResponse(in)
	if first.Action != ActionSanitize {
		t.Fatalf("expected sanitize, got %s (violations %v)", first.Action, first.Violations)
	}
	cleaned := e.Sanitize(in, first.Violations)
	if strings.Contains(strings.ToLower(cleaned), "no way") {
		t.Fatalf("denial certainty survived: %q", cleaned)
	}
	second := e.CheckAIResponse(cleaned)
	if second.Action != ActionAllow {
		t.Fatalf("sanitized text should pass re-check, got %s (violations %v, text %q)",
			second.Action, second.Violations, cleaned)
	}
}

func TestSanitizeDeterministic(t *testing.T) {
	e := NewEngine()
	in := "Approval is guaranteed. You must sign now."
	violations := []string{ViolationGuarantee, ViolationLegalAdvice}
	a := e.Sanitize(in, violations)
	b := e.Sanitize(in, violations)
	if a != b {
		t.Fatalf("sanitize not deterministic: %q vs %q", a, b)
	}
}
