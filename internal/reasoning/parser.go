package reasoning

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/trial-match-server/internal/domain"
)

// Step is one labeled stage of the model's reasoning. Labels are free-form
// here; the orchestrator maps them onto its closed category set.
type Step struct {
	Type       string  `json:"type"`
	Details    string  `json:"details"`
	Confidence float64 `json:"confidence"`
}

// Result is the parsed outcome of an eligibility assessment
type Result struct {
	EligibilityStatus domain.MatchStatus `json:"eligibility_status"`
	ConfidenceScore   float64            `json:"confidence_score"`
	ReasoningChain    []Step             `json:"reasoning_chain"`
	Contraindications []string           `json:"contraindications"`
	Recommendations   []string           `json:"recommendations"`
	Conclusion        string             `json:"conclusion"`
	Metadata          map[string]string  `json:"metadata,omitempty"`
	ModelVersion      string             `json:"model_version,omitempty"`
	RawResponse       string             `json:"-"`
}

const (
	stepExcerptLimit      = 200
	maxContraindications  = 5
	maxRecommendations    = 3
	defaultStepConfidence = 0.7
)

var (
	negativeVerdict = regexp.MustCompile(`\b(?:not eligible|ineligible|does not qualify)\b`)
	positiveVerdict = regexp.MustCompile(`\b(?:eligible|qualifies|meets criteria)\b`)

	confidencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`confidence[:\s]+(\d{1,3})\s*%`),
		regexp.MustCompile(`(\d{1,3})\s*%\s+confidence`),
		regexp.MustCompile(`confident[:\s]+(\d{1,3})\s*%`),
		regexp.MustCompile(`certainty[:\s]+(\d{1,3})\s*%`),
	}

	contraindicationLine = regexp.MustCompile(`contraindication|contraindicated|not recommended|risk|interaction|allergy|adverse`)
	recommendationLine   = regexp.MustCompile(`recommend|suggest|advise|should|consider`)

	sectionHeadings = []string{"assessment", "analysis", "conclusion"}
)

// ParseResponse turns raw model output into a structured result. The parser
// never fails: unrecognizable content yields a requires_review result with
// neutral confidence.
func ParseResponse(content string) Result {
	lower := strings.ToLower(content)

	status := parseVerdict(lower)
	result := Result{
		EligibilityStatus: status,
		ConfidenceScore:   parseConfidence(lower, status),
		ReasoningChain:    parseSections(content),
		Contraindications: collectLines(content, contraindicationLine, maxContraindications),
		Recommendations:   collectLines(content, recommendationLine, maxRecommendations),
		Conclusion:        parseConclusion(content),
		RawResponse:       content,
	}
	return result
}

// parseVerdict classifies the model's verdict. Conflicting or absent signals
// both resolve to requires_review.
func parseVerdict(lower string) domain.MatchStatus {
	negative := negativeVerdict.MatchString(lower)
	// Positive matches are checked with negated phrases removed so that
	// "not eligible" never counts as "eligible".
	positive := positiveVerdict.MatchString(negativeVerdict.ReplaceAllString(lower, ""))

	switch {
	case positive && negative:
		return domain.MatchRequiresReview
	case positive:
		return domain.MatchEligible
	case negative:
		return domain.MatchIneligible
	}
	return domain.MatchRequiresReview
}

// parseConfidence extracts a stated percentage, falling back to a
// verdict-dependent default.
func parseConfidence(lower string, status domain.MatchStatus) float64 {
	for _, pattern := range confidencePatterns {
		if m := pattern.FindStringSubmatch(lower); m != nil {
			if pct, err := strconv.Atoi(m[1]); err == nil && pct <= 100 {
				return float64(pct) / 100
			}
		}
	}
	switch status {
	case domain.MatchEligible:
		return 0.8
	case domain.MatchIneligible:
		return 0.7
	}
	return 0.5
}

// parseSections finds the assessment/analysis/conclusion headings in order;
// each present section becomes one reasoning step with a bounded excerpt.
func parseSections(content string) []Step {
	lower := strings.ToLower(content)
	var steps []Step
	cursor := 0
	for _, heading := range sectionHeadings {
		idx := strings.Index(lower[cursor:], heading)
		if idx < 0 {
			continue
		}
		start := cursor + idx + len(heading)
		excerpt := strings.TrimLeft(content[start:], ": \t\n")
		if len(excerpt) > stepExcerptLimit {
			excerpt = excerpt[:stepExcerptLimit]
		}
		steps = append(steps, Step{
			Type:       heading,
			Details:    strings.TrimSpace(excerpt),
			Confidence: defaultStepConfidence,
		})
		cursor = start
	}
	return steps
}

// collectLines returns up to limit lines whose lowercased text matches
func collectLines(content string, pattern *regexp.Regexp, limit int) []string {
	var collected []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• "))
		if trimmed == "" {
			continue
		}
		if pattern.MatchString(strings.ToLower(trimmed)) {
			collected = append(collected, trimmed)
			if len(collected) >= limit {
				break
			}
		}
	}
	return collected
}

// parseConclusion returns the content after a conclusion heading, or the
// first sentence when no heading exists.
func parseConclusion(content string) string {
	lower := strings.ToLower(content)
	if idx := strings.Index(lower, "conclusion"); idx >= 0 {
		after := strings.TrimLeft(content[idx+len("conclusion"):], ": \t\n")
		if after != "" {
			if end := strings.IndexByte(after, '\n'); end > 0 {
				return strings.TrimSpace(after[:end])
			}
			return strings.TrimSpace(after)
		}
	}
	trimmed := strings.TrimSpace(content)
	if end := strings.IndexByte(trimmed, '.'); end > 0 {
		return trimmed[:end+1]
	}
	return trimmed
}
