package service

import (
	"regexp"
	"sort"
	"strings"

	"github.com/trial-match-server/internal/domain"
	"github.com/trial-match-server/internal/nlp"
)

// patientProfile is the normalized, request-scoped view of a patient that
// the pipeline works with. It is never persisted.
type patientProfile struct {
	input             *domain.PatientInput
	entities          domain.ExtractedEntities
	primaryConditions []string
	biomarkers        map[string]string
	medications       []string
	age               *int
	sex               domain.Sex
	freeText          string
}

// buildPatientProfile merges structured fields with entities extracted from
// any free-text narrative. Structured values win over extracted ones.
func buildPatientProfile(input *domain.PatientInput, extractor *nlp.Extractor) *patientProfile {
	profile := &patientProfile{
		input:       input,
		biomarkers:  input.Biomarkers,
		medications: input.AllMedications(),
		age:         input.Age,
		sex:         input.Sex,
		freeText:    input.Narrative(),
	}

	if profile.freeText != "" {
		profile.entities = extractor.Extract(profile.freeText)
	}

	profile.primaryConditions = mergeUnique(input.Conditions, profile.entities.Conditions)
	if len(profile.entities.Medications) > 0 {
		profile.medications = mergeUnique(profile.medications, profile.entities.Medications)
	}
	if profile.age == nil {
		profile.age = profile.entities.Demographics.Age
	}
	if profile.sex == "" || profile.sex == domain.SexUnknown {
		if profile.entities.Demographics.Sex != "" {
			profile.sex = profile.entities.Demographics.Sex
		}
	}
	return profile
}

// mergeUnique concatenates two lists, case-insensitively deduplicated,
// preserving first-seen order.
func mergeUnique(first, second []string) []string {
	seen := make(map[string]bool, len(first)+len(second))
	var merged []string
	for _, list := range [][]string{first, second} {
		for _, item := range list {
			key := strings.ToLower(strings.TrimSpace(item))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, item)
		}
	}
	return merged
}

// searchQueryText joins the profile's conditions and biomarker names into
// retrieval query text, with progressively narrower fallbacks.
func (p *patientProfile) searchQueryText() string {
	var parts []string
	parts = append(parts, p.primaryConditions...)
	parts = append(parts, p.biomarkerNames()...)
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}

	if terms := fallbackKeyTerms(p.freeText); len(terms) > 0 {
		return strings.Join(terms, " ")
	}
	return "cancer"
}

// Narrow fallback vocabulary used only when entity extraction found nothing

var fallbackCancerTypes = []string{
	"breast cancer", "lung cancer", "colorectal cancer", "prostate cancer",
	"pancreatic cancer", "melanoma", "leukemia", "lymphoma",
}

var fallbackConditions = []string{
	"diabetes", "hypertension", "asthma", "arthritis", "depression",
	"heart failure", "kidney disease", "stroke",
}

var fallbackAgeMention = regexp.MustCompile(`\b\d{1,3}\s*(?:years?\s*old|yo)\b`)

// fallbackKeyTerms is a deliberately narrow extractor for query building
// when the full extraction produced no conditions.
func fallbackKeyTerms(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var terms []string
	for _, cancerType := range fallbackCancerTypes {
		if strings.Contains(lower, cancerType) {
			terms = append(terms, cancerType)
		}
	}
	for _, condition := range fallbackConditions {
		if strings.Contains(lower, condition) {
			terms = append(terms, condition)
		}
	}
	if strings.Contains(lower, "female") || strings.Contains(lower, "woman") {
		terms = append(terms, "female")
	} else if strings.Contains(lower, "male") || strings.Contains(lower, "man") {
		terms = append(terms, "male")
	}
	if fallbackAgeMention.MatchString(lower) {
		terms = append(terms, "adult")
	}
	return terms
}

// biomarkerNames returns the marker names in stable sorted order
func (p *patientProfile) biomarkerNames() []string {
	if len(p.biomarkers) == 0 {
		return nil
	}
	names := make([]string, 0, len(p.biomarkers))
	for marker := range p.biomarkers {
		names = append(names, marker)
	}
	sort.Strings(names)
	return names
}

// llmPayload renders the profile as the field map handed to the LLM client,
// which sanitizes it before any prompt is built.
func (p *patientProfile) llmPayload() map[string]interface{} {
	payload := make(map[string]interface{})
	if p.age != nil {
		payload["age"] = *p.age
	}
	if p.sex != "" && p.sex != domain.SexUnknown {
		payload["sex"] = string(p.sex)
	}
	if len(p.primaryConditions) > 0 {
		payload["conditions"] = p.primaryConditions
	}
	if len(p.medications) > 0 {
		payload["medications"] = p.medications
	}
	if len(p.input.Allergies) > 0 {
		payload["allergies"] = p.input.Allergies
	}
	if len(p.biomarkers) > 0 {
		payload["biomarkers"] = p.biomarkers
	}
	if len(p.input.LabResults) > 0 {
		payload["lab_results"] = p.input.LabResults
	}
	if p.input.MedicalHistory != "" {
		payload["medical_history"] = p.input.MedicalHistory
	}
	if p.input.Location != nil {
		payload["location"] = map[string]interface{}{
			"city":    p.input.Location.City,
			"state":   p.input.Location.State,
			"country": p.input.Location.Country,
		}
	}
	return payload
}

// stagePattern summarizes disease stage for the response entity summary
var stagePattern = regexp.MustCompile(`stage\s+(?:[1-4]|i{1,3}v?|iv)\b`)

// entitySummary condenses the profile for the outbound response
func (p *patientProfile) entitySummary() domain.EntitySummary {
	summary := domain.EntitySummary{
		Conditions: p.primaryConditions,
	}
	if summary.Conditions == nil {
		summary.Conditions = []string{}
	}
	summary.Biomarkers = p.biomarkerNames()
	if stage := stagePattern.FindString(strings.ToLower(p.freeText)); stage != "" {
		summary.Stage = stage
	}
	if p.input.Location != nil {
		parts := make([]string, 0, 3)
		for _, part := range []string{p.input.Location.City, p.input.Location.State, p.input.Location.Country} {
			if part != "" {
				parts = append(parts, part)
			}
		}
		summary.Location = strings.Join(parts, ", ")
	}
	return summary
}

// anonymizedPatientID returns the caller-supplied opaque id or "anonymous"
func (p *patientProfile) anonymizedPatientID() string {
	if p.input.PatientID != "" {
		return p.input.PatientID
	}
	return "anonymous"
}
