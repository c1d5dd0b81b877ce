package guardrails

import (
	"regexp"
	"strings"
)

const (
	msgEmptyInput = "I didn't catch that. Could you repeat your question about your case?"

	msgFraud = "I can't help with that. I can only discuss legitimate steps for your own case. " +
		"Anything involving false information or documents could seriously harm your application."

	msgRestrictedTopic = "I'm not able to discuss {topic} on this call. " +
		"I can only talk about the details already in your case file."

	msgLegalAdvice = "I can't give legal advice or tell you what legal action to take. " +
		"For that you would need to speak with a licensed attorney. I can explain what is in your case file."

	msgGuarantee = "I can't promise or predict any outcome. Decisions are made by the authorities, " +
		"not by me. I can tell you what your case file currently shows."

	msgOtherVisa = "I can only discuss your own case on this call, not other people's situations " +
		"or other visa types. Is there something about your case I can help with?"

	msgFinancialGuarantee = "I can't make any commitments about fees, refunds, or payment outcomes. " +
		"I can only discuss the contents of your case."
)

type preRule struct {
	violation string
	severity  Severity
	message   string
	match     func(lowered string, restrictedTopics []string) (bool, string)
}

func patternRule(violation string, severity Severity, message string, patterns []*regexp.Regexp) preRule {
	return preRule{
		violation: violation,
		severity:  severity,
		message:   message,
		match: func(lowered string, _ []string) (bool, string) {
			return matchAny(patterns, lowered), ""
		},
	}
}

// preRules is evaluated in order; the first matching category wins. The
// ordering is a policy contract, not an implementation detail.
var preRules = []preRule{
	patternRule(ViolationFraud, SeverityCritical, msgFraud, fraudPatterns),
	{
		violation: ViolationRestrictedTopic,
		severity:  SeverityHigh,
		message:   msgRestrictedTopic,
		match:     matchRestrictedTopic,
	},
	patternRule(ViolationLegalAdvice, SeverityHigh, msgLegalAdvice, legalAdviceRequestPatterns),
	patternRule(ViolationGuarantee, SeverityHigh, msgGuarantee, guaranteeRequestPatterns),
	patternRule(ViolationOtherVisa, SeverityMedium, msgOtherVisa, otherVisaPatterns),
	patternRule(ViolationFinancialGuarantee, SeverityHigh, msgFinancialGuarantee, financialGuaranteePatterns),
}

type postRule struct {
	violation string
	severity  Severity
	// minLength skips the rule for responses at or under this many bytes.
	minLength int
	match     func(lowered string) bool
}

var postRules = []postRule{
	{
		violation: ViolationLegalAdvice,
		severity:  SeverityHigh,
		match:     func(lowered string) bool { return matchAny(legalAdviceLanguagePatterns, lowered) },
	},
	{
		violation: ViolationGuarantee,
		severity:  SeverityHigh,
		match:     func(lowered string) bool { return matchAny(guaranteeLanguagePatterns, lowered) },
	},
	{
		violation: ViolationProactiveSuggestion,
		severity:  SeverityMedium,
		match:     func(lowered string) bool { return matchAny(proactivePatterns, lowered) },
	},
	{
		violation: ViolationOffScope,
		severity:  SeverityMedium,
		match:     func(lowered string) bool { return matchAny(offScopePatterns, lowered) },
	},
	{
		violation: ViolationMissingSafetyLanguage,
		severity:  SeverityLow,
		minLength: 50,
		match:     func(lowered string) bool { return !hasSafetyLanguage(lowered) },
	},
}

var fraudPatterns = compileAll(
	`\b(fake|forged?|falsif(y|ied)|counterfeit|fabricate[d]?)\b.{0,40}\b(document|passport|certificate|record|evidence|signature)`,
	`\b(document|passport|certificate|record|evidence|signature)s?\b.{0,40}\b(fake|forged?|falsified|counterfeit)`,
	`\b(lie|lying|lied)\b.{0,30}\b(officer|official|interview|application|form|government)`,
	`\bbribe`,
	`\bbuy\b.{0,20}\b(visa|passport|green card|approval)`,
	`\b(hide|conceal|cover up)\b.{0,40}\b(overstay|criminal|conviction|deportation|record)`,
	`\b(avoid|evade|get around|trick)\b.{0,30}\b(detection|background check|immigration|the system|the rules)`,
	`\bwork(ing)? (illegally|under the table|without (a )?permit)`,
)

var legalAdviceRequestPatterns = compileAll(
	`\b(legal advice|legal opinion)\b`,
	`\bshould i (sue|appeal|sign|plead|refuse|withdraw|file)\b`,
	`\bwhat (are|re) my legal (rights|options|remedies)\b`,
	`\b(be|act as|are you) my (lawyer|attorney|legal counsel)\b`,
	`\brepresent me\b`,
	`\b(file|start|bring) a lawsuit\b`,
	`\binterpret (the|this) (law|statute|regulation)\b`,
)

var guaranteeRequestPatterns = compileAll(
	`\b(guarantee|promise|assure) (me )?(that )?`,
	`\bwill i (definitely|certainly|for sure|100%) (get|be granted|be approved|receive)\b`,
	`\bam i (definitely|certainly|100%) (getting|approved)\b`,
	`\bcan you (confirm|swear) .{0,30}(approved|granted|succeed)`,
)

var otherVisaPatterns = compileAll(
	`\bmy (friend|cousin|brother|sister|wife|husband|spouse|mother|father|parent|relative|neighbor|colleague|boss)\b`,
	`\b(someone|somebody) (else|i know)\b`,
	`\banother (person|case|application|visa)\b`,
	`\b(other|different|alternative) visa (type|types|option|options|category|categories)\b`,
	`\bwhat visa should\b`,
	`\bswitch(ing)? to a (different|another) (visa|status)\b`,
)

var financialGuaranteePatterns = compileAll(
	`\b(refund|money back|reimburse)\b.{0,40}\b(if|unless|when)\b`,
	`\b(guarantee|promise)\b.{0,40}\b(refund|fee|money|payment|price)\b`,
	`\bpay (only )?(if|when|once) (i('| a)m )?(approved|successful|granted)\b`,
	`\bno (win|visa),? no fee\b`,
)

var authorityImpersonationPatterns = compileAll(
	`\bi('| a)?m (an? )?(immigration|government|consular|visa) (officer|official|agent|representative)\b`,
	`\bi am (an? )?(officer|official) (of|at|with)\b`,
	`\b(speaking|acting) (as|on behalf of) (an? )?(officer|official|the government|immigration|the embassy)\b`,
	`\bon behalf of (the )?(government|immigration|embassy|consulate|authorities)\b`,
	`\bas your case officer\b`,
)

var legalAdviceLanguagePatterns = compileAll(
	`\byou (must|are required to|are legally obligated to|have to) (file|sue|appeal|sign|submit|withdraw)\b`,
	`\bmy legal (advice|opinion|recommendation)\b`,
	`\byou should (definitely )?(sue|appeal|sign|plead|refuse)\b`,
	`\bi advise you to\b`,
	`\blegally,? you (must|cannot|may not)\b`,
)

var guaranteeLanguagePatterns = compileAll(
	`\bi guarantee\b`,
	`\bguaranteed?\b`,
	`\byou will (definitely|certainly|surely|100%) (be )?(approved|granted|succeed)\b`,
	`\b(approval|success) is (certain|assured|guaranteed)\b`,
	`\bthere('| i)s no (way|chance) (you|this)\b.{0,20}\b(denied|refused|rejected)\b`,
	`\bi promise\b`,
)

var proactivePatterns = compileAll(
	`\bhave you (considered|thought about)\b`,
	`\byou (might|may|could) also (want|consider|try|look into)\b`,
	`\bby the way\b`,
	`\bi('| wou)?ld (also )?suggest\b`,
	`\banother (option|thing) (is|to consider|you could)\b`,
	`\bwhile we('| a)re at it\b`,
	`\bone more thing\b`,
	`\bspeaking of which\b`,
)

var offScopePatterns = compileAll(
	`\b(tax|taxes|tax advice|tax return)\b`,
	`\bcriminal (law|charge|charges|defense)\b`,
	`\b(divorce|custody|alimony)\b`,
	`\b(real estate|mortgage|property purchase)\b`,
	`\b(stock|stocks|investment|crypto|bitcoin)\b`,
	`\bmedical (advice|treatment|diagnosis)\b`,
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

func matchAny(patterns []*regexp.Regexp, lowered string) bool {
	for _, p := range patterns {
		if p.MatchString(lowered) {
			return true
		}
	}
	return false
}

// matchRestrictedTopic does word-level overlap between the input and the
// sealed bundle's restricted-topic list. Only topic terms longer than 3
// characters count, so connective words never trigger a refusal.
func matchRestrictedTopic(lowered string, restrictedTopics []string) (bool, string) {
	if len(restrictedTopics) == 0 {
		return false, ""
	}
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(lowered, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		words[w] = true
	}
	for _, topic := range restrictedTopics {
		terms := strings.Fields(strings.ToLower(topic))
		for _, term := range terms {
			if len(term) <= 3 {
				continue
			}
			if words[term] {
				return true, topic
			}
		}
	}
	return false, ""
}
