package guardrails

import (
	"regexp"
	"strings"
)

// SafetyLanguage is the fixed prefix sanitization prepends when a response
// is missing it.
const SafetyLanguage = "This is information from your case file, not legal advice."

const fallbackResponse = "I'm sorry, I can't answer that in a way that stays within the scope " +
	"of your case. Could you ask about something in your case file?"

type rewrite struct {
	re          *regexp.Regexp
	replacement string
}

// Ordered so the output is deterministic. Longer phrases come before the
// single words they contain.
var guaranteeRewrites = []rewrite{
	{regexp.MustCompile(`(?i)\bthere('| i)s no (way|chance)\b`), "it is unlikely"},
	{regexp.MustCompile(`(?i)\bi guarantee\b`), "I anticipate"},
	{regexp.MustCompile(`(?i)\bi promise\b`), "I anticipate"},
	{regexp.MustCompile(`(?i)\bguaranteed\b`), "likely"},
	{regexp.MustCompile(`(?i)\bguarantee\b`), "expect"},
	{regexp.MustCompile(`(?i)\bdefinitely\b`), "likely"},
	{regexp.MustCompile(`(?i)\bcertainly\b`), "possibly"},
	{regexp.MustCompile(`(?i)\b100%\b`), "very likely"},
	{regexp.MustCompile(`(?i)\bis (certain|assured)\b`), "is possible"},
}

var legalAdviceRewrites = []rewrite{
	{regexp.MustCompile(`(?i)\bmy legal (advice|opinion|recommendation)\b`), "this general information"},
	{regexp.MustCompile(`(?i)\byou are (required|legally obligated) to\b`), "you are typically expected to"},
	{regexp.MustCompile(`(?i)\bi advise you to\b`), "you might consider"},
	{regexp.MustCompile(`(?i)\byou must\b`), "you may want to"},
	{regexp.MustCompile(`(?i)\byou have to\b`), "you may want to"},
	{regexp.MustCompile(`(?i)\byou should (sue|appeal|sign|plead|refuse)\b`), "you could discuss with an attorney whether to $1"},
	{regexp.MustCompile(`(?i)\blegally, you\b`), "generally, you"},
}

var sentenceSplitRe = regexp.MustCompile(`[^.!?]*[.!?]+|[^.!?]+$`)

// Case-insensitive variants of the impersonation patterns; sanitization runs
// on the original-case text.
var authorityStripPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(authorityImpersonationPatterns))
	for _, p := range authorityImpersonationPatterns {
		out = append(out, regexp.MustCompile(`(?i)`+p.String()))
	}
	return out
}()

// Sanitize applies phrase-level rewrites for the given violations and always
// returns non-empty text. It is deterministic and total.
func (e *Engine) Sanitize(text string, violations []string) string {
	out := text
	has := map[string]bool{}
	for _, v := range violations {
		has[v] = true
	}

	if has[ViolationAuthorityImpersonation] {
		for _, p := range authorityStripPatterns {
			out = p.ReplaceAllString(out, "")
		}
	}
	if has[ViolationGuarantee] {
		for _, r := range guaranteeRewrites {
			out = r.re.ReplaceAllString(out, r.replacement)
		}
	}
	if has[ViolationLegalAdvice] {
		for _, r := range legalAdviceRewrites {
			out = r.re.ReplaceAllString(out, r.replacement)
		}
	}
	if has[ViolationProactiveSuggestion] {
		out = dropProactiveSentences(out)
	}

	out = strings.TrimSpace(collapseSpaces(out))
	if len(out) < 10 {
		out = fallbackResponse
	}
	if !hasSafetyLanguage(strings.ToLower(out)) {
		out = SafetyLanguage + " " + out
	}
	return out
}

func hasSafetyLanguage(lowered string) bool {
	return strings.Contains(lowered, "not legal advice")
}

// dropProactiveSentences removes whole sentences that introduce topics the
// user did not ask about.
func dropProactiveSentences(text string) string {
	sentences := sentenceSplitRe.FindAllString(text, -1)
	kept := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if matchAny(proactivePatterns, strings.ToLower(s)) {
			continue
		}
		trimmed := strings.TrimSpace(s)
		if trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, " ")
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

func collapseSpaces(s string) string {
	return multiSpaceRe.ReplaceAllString(s, " ")
}
