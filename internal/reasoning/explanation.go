package reasoning

import (
	"fmt"
	"strings"

	"github.com/trial-match-server/internal/domain"
)

// Audience selects the register of a generated explanation
type Audience string

const (
	AudiencePatient    Audience = "patient"
	AudiencePhysician  Audience = "physician"
	AudienceResearcher Audience = "researcher"
)

// GenerateExplanation renders an assessment result for the given audience.
// Unknown audiences fall back to the patient wording.
func GenerateExplanation(result Result, audience Audience) string {
	switch audience {
	case AudiencePhysician:
		return physicianExplanation(result)
	case AudienceResearcher:
		return researcherExplanation(result)
	default:
		return patientExplanation(result)
	}
}

func patientExplanation(result Result) string {
	var verdict string
	switch result.EligibilityStatus {
	case domain.MatchEligible:
		verdict = "You may be a good fit for this trial"
	case domain.MatchIneligible:
		verdict = "This trial does not appear to be a match for you"
	default:
		verdict = "Your eligibility for this trial needs review by a medical professional"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (confidence %d%%).", verdict, int(result.ConfidenceScore*100))
	if result.Conclusion != "" {
		b.WriteString(" ")
		b.WriteString(result.Conclusion)
	}
	if len(result.Recommendations) > 0 {
		b.WriteString(" Suggested next step: ")
		b.WriteString(result.Recommendations[0])
	}
	return b.String()
}

func physicianExplanation(result Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assessment: %s, confidence %.2f.", result.EligibilityStatus, result.ConfidenceScore)
	if len(result.Contraindications) > 0 {
		b.WriteString(" Contraindications: ")
		b.WriteString(strings.Join(result.Contraindications, "; "))
		b.WriteString(".")
	}
	for _, step := range result.ReasoningChain {
		fmt.Fprintf(&b, " [%s] %s", step.Type, step.Details)
	}
	return b.String()
}

func researcherExplanation(result Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "status=%s confidence=%.2f steps=%d model=%s",
		result.EligibilityStatus, result.ConfidenceScore, len(result.ReasoningChain), result.ModelVersion)
	if result.Conclusion != "" {
		b.WriteString(" conclusion=")
		b.WriteString(result.Conclusion)
	}
	return b.String()
}
