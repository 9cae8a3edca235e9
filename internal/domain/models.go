package domain

import (
	"strings"
	"time"
)

// Request/Response Models

// PatientLocation is the coarse location a patient chooses to share
type PatientLocation struct {
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
}

// PatientInput represents an incoming patient profile. Structured fields and
// free-text narratives may be mixed; at least one source of clinical signal
// must be present. The value is request-scoped and never persisted.
type PatientInput struct {
	PatientID          string            `json:"patient_id,omitempty"`
	Age                *int              `json:"age,omitempty"`
	Sex                Sex               `json:"sex,omitempty"`
	Conditions         []string          `json:"conditions,omitempty"`
	Medications        []string          `json:"medications,omitempty"`
	CurrentMedications []string          `json:"current_medications,omitempty"`
	Allergies          []string          `json:"allergies,omitempty"`
	Biomarkers         map[string]string `json:"biomarkers,omitempty"`
	LabResults         map[string]string `json:"lab_results,omitempty"`
	MedicalHistory     string            `json:"medical_history,omitempty"`
	MedicalQuery       string            `json:"medical_query,omitempty"`
	ClinicalNotes      string            `json:"clinical_notes,omitempty"`
	Location           *PatientLocation  `json:"location,omitempty"`
}

// MaxNarrativeLength bounds free-text clinical narratives
const MaxNarrativeLength = 10000

// Validate checks that the input carries at least one clinical signal and
// that free-text narratives are within bounds.
func (p *PatientInput) Validate() error {
	if p == nil {
		return NewValidationError("patient_data", "patient data is required", nil)
	}
	hasSignal := p.MedicalQuery != "" ||
		p.ClinicalNotes != "" ||
		p.MedicalHistory != "" ||
		p.Age != nil || (p.Sex != "" && p.Sex != SexUnknown) ||
		len(p.Conditions) > 0 ||
		len(p.Medications) > 0 || len(p.CurrentMedications) > 0
	if !hasSignal {
		return NewValidationError("patient_data",
			"at least one of medical_query, clinical_notes, medical_history, demographics, or current_medications is required", nil)
	}
	for field, text := range map[string]string{
		"medical_query":   p.MedicalQuery,
		"clinical_notes":  p.ClinicalNotes,
		"medical_history": p.MedicalHistory,
	} {
		if len(text) > MaxNarrativeLength {
			return NewValidationError(field, "narrative exceeds 10000 characters", len(text))
		}
	}
	return nil
}

// Narrative returns the free-text clinical narrative for entity extraction,
// preferring the explicit query over notes over history.
func (p *PatientInput) Narrative() string {
	if p.MedicalQuery != "" {
		return p.MedicalQuery
	}
	if p.ClinicalNotes != "" {
		return p.ClinicalNotes
	}
	return p.MedicalHistory
}

// AllMedications merges the two medication fields, deduplicated case-insensitively
func (p *PatientInput) AllMedications() []string {
	seen := make(map[string]bool)
	merged := make([]string, 0, len(p.Medications)+len(p.CurrentMedications))
	for _, m := range append(append([]string{}, p.Medications...), p.CurrentMedications...) {
		key := strings.ToLower(strings.TrimSpace(m))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, m)
	}
	return merged
}

// Entity Models

// Demographics holds patient demographic markers extracted from text
type Demographics struct {
	Age          *int     `json:"age"`
	Sex          Sex      `json:"sex,omitempty"`
	OtherMarkers []string `json:"other_markers,omitempty"`
}

// ExtractedEntities is the output of medical entity extraction. Compound
// multi-word conditions are kept atomic; overlapping single-word matches are
// not duplicated alongside them.
type ExtractedEntities struct {
	Conditions         []string          `json:"conditions"`
	ExcludedConditions []string          `json:"excluded_conditions,omitempty"`
	Medications        []string          `json:"medications,omitempty"`
	Procedures         []string          `json:"procedures,omitempty"`
	LabValues          []string          `json:"lab_values,omitempty"`
	Demographics       Demographics      `json:"demographics"`
	AgeRequirements    AgeRange          `json:"age_requirements"`
	GenderRequirements GenderRequirement `json:"gender_requirements,omitempty"`
}

// TotalEntities counts all extracted terms across categories
func (e *ExtractedEntities) TotalEntities() int {
	return len(e.Conditions) + len(e.ExcludedConditions) + len(e.Medications) +
		len(e.Procedures) + len(e.LabValues)
}

// Trial Models

// Contact is a point of contact for a trial site
type Contact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// TrialLocation is a single study site
type TrialLocation struct {
	Facility string   `json:"facility,omitempty"`
	City     string   `json:"city,omitempty"`
	State    string   `json:"state,omitempty"`
	Country  string   `json:"country,omitempty"`
	Contact  *Contact `json:"contact,omitempty"`
}

// EligibilityCriteria holds the parsed eligibility rules of a trial
type EligibilityCriteria struct {
	RawText            string             `json:"raw_text,omitempty"`
	Inclusion          []string           `json:"inclusion,omitempty"`
	Exclusion          []string           `json:"exclusion,omitempty"`
	AgeRequirements    AgeRange           `json:"age_requirements"`
	GenderRequirements GenderRequirement  `json:"gender_requirements,omitempty"`
	ExtractedEntities  *ExtractedEntities `json:"extracted_entities,omitempty"`
	ComplexityScore    float64            `json:"complexity_score,omitempty"`
}

// Validate checks internal consistency of the criteria
func (e *EligibilityCriteria) Validate() error {
	return e.AgeRequirements.Validate()
}

// Trial represents a registered clinical trial in the internal model
type Trial struct {
	NCTID               string              `json:"nct_id"`
	Title               string              `json:"title"`
	BriefSummary        string              `json:"brief_summary,omitempty"`
	DetailedDescription string              `json:"detailed_description,omitempty"`
	PrimaryPurpose      PrimaryPurpose      `json:"primary_purpose,omitempty"`
	Phase               Phase               `json:"phase,omitempty"`
	Status              TrialStatus         `json:"status"`
	Enrollment          *int                `json:"enrollment,omitempty"`
	StudyType           StudyType           `json:"study_type,omitempty"`
	Conditions          []string            `json:"conditions,omitempty"`
	Interventions       []string            `json:"interventions,omitempty"`
	Eligibility         EligibilityCriteria `json:"eligibility_criteria"`
	Locations           []TrialLocation     `json:"locations,omitempty"`
	PrimaryOutcomes     []string            `json:"primary_outcomes,omitempty"`
	StartDate           string              `json:"start_date,omitempty"`
	CompletionDate      string              `json:"completion_date,omitempty"`
	Embedding           []float64           `json:"embedding,omitempty"`
	EmbeddingModel      string              `json:"embedding_model,omitempty"`
	SearchText          string              `json:"search_text,omitempty"`
}

// Validate checks the trial's identifier and eligibility consistency
func (t *Trial) Validate() error {
	if err := ValidateNCTID(t.NCTID); err != nil {
		return err
	}
	return t.Eligibility.Validate()
}

// Match Models

// ReasoningStep is a single labeled step in a match's reasoning chain
type ReasoningStep struct {
	Step     int          `json:"step"`
	Category StepCategory `json:"category"`
	Result   StepResult   `json:"result"`
	Details  string       `json:"details"`
	Score    *float64     `json:"score,omitempty"`
	Weight   *float64     `json:"weight,omitempty"`
}

// MatchResult represents a scored patient/trial pairing with its justification
type MatchResult struct {
	MatchID           string             `json:"match_id"`
	PatientID         string             `json:"patient_id"`
	NCTID             string             `json:"trial_nct_id"`
	OverallScore      float64            `json:"overall_score"`
	ConfidenceScore   float64            `json:"confidence_score"`
	Status            MatchStatus        `json:"match_status"`
	ReasoningChain    []ReasoningStep    `json:"reasoning_chain"`
	Explanation       string             `json:"explanation,omitempty"`
	NextSteps         []string           `json:"next_steps,omitempty"`
	ConfidenceFactors map[string]float64 `json:"confidence_factors,omitempty"`
	AuditMetadata     map[string]string  `json:"audit_metadata,omitempty"`
	ProcessingTimeMS  int64              `json:"processing_time_ms"`
	AIModelVersion    string             `json:"ai_model_version,omitempty"`
}

// neutralScore is returned for a chain with no steps
const neutralScore = 0.5

// ComputeOverallScore derives the overall score as a weighted mean of step
// scores. A fail step contributes 0 regardless of its declared score; a chain
// with no steps yields the neutral 0.5. Unweighted steps count with weight 1.
func (m *MatchResult) ComputeOverallScore() float64 {
	if len(m.ReasoningChain) == 0 {
		return neutralScore
	}
	var sum, totalWeight float64
	for _, step := range m.ReasoningChain {
		weight := 1.0
		if step.Weight != nil {
			weight = *step.Weight
		}
		score := neutralScore
		if step.Score != nil {
			score = *step.Score
		}
		if step.Result == ResultFail {
			score = 0
		}
		sum += score * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return neutralScore
	}
	return sum / totalWeight
}

// RenumberChain makes step numbers strictly increasing and contiguous from 1
func (m *MatchResult) RenumberChain() {
	for i := range m.ReasoningChain {
		m.ReasoningChain[i].Step = i + 1
	}
}

// HasDisqualifyingFailure reports whether the chain contains a failed
// exclusion or allergy check, which bars an eligible verdict.
func (m *MatchResult) HasDisqualifyingFailure() bool {
	for _, step := range m.ReasoningChain {
		if step.Result != ResultFail {
			continue
		}
		if step.Category == StepExclusionCheck || step.Category == StepAllergyCheck {
			return true
		}
	}
	return false
}

// Finalize normalizes a match result: step numbering, overall score when
// unset, and the eligibility override rule for disqualifying failures.
func (m *MatchResult) Finalize() {
	m.RenumberChain()
	if m.OverallScore == 0 && len(m.ReasoningChain) > 0 {
		m.OverallScore = m.ComputeOverallScore()
	}
	if m.Status == MatchEligible && m.HasDisqualifyingFailure() {
		m.Status = MatchRequiresReview
	}
}

// Pipeline Request/Response Models

// MatchRequest is the inbound contract from the HTTP layer
type MatchRequest struct {
	PatientData             *PatientInput `json:"patient_data" binding:"required"`
	MaxResults              int           `json:"max_results,omitempty"`
	MinConfidence           *float64      `json:"min_confidence,omitempty"`
	EnableAdvancedReasoning *bool         `json:"enable_advanced_reasoning,omitempty"`
}

// Defaults and bounds for MatchRequest
const (
	DefaultMaxResults    = 3
	MaxResultsCeiling    = 10
	DefaultMinConfidence = 0.5
)

// Normalize applies defaults and clamps bounds
func (r *MatchRequest) Normalize() {
	if r.MaxResults <= 0 {
		r.MaxResults = DefaultMaxResults
	}
	if r.MaxResults > MaxResultsCeiling {
		r.MaxResults = MaxResultsCeiling
	}
	if r.MinConfidence == nil {
		v := DefaultMinConfidence
		r.MinConfidence = &v
	}
	if r.EnableAdvancedReasoning == nil {
		v := true
		r.EnableAdvancedReasoning = &v
	}
}

// Validate checks the request envelope and embedded patient data
func (r *MatchRequest) Validate() error {
	if r.PatientData == nil {
		return NewValidationError("patient_data", "patient data is required", nil)
	}
	if r.MaxResults < 0 || r.MaxResults > MaxResultsCeiling {
		return NewValidationError("max_results", "must be between 1 and 10", r.MaxResults)
	}
	if r.MinConfidence != nil && (*r.MinConfidence < 0 || *r.MinConfidence > 1) {
		return NewValidationError("min_confidence", "must be between 0 and 1", *r.MinConfidence)
	}
	return r.PatientData.Validate()
}

// MatchLocation is the presentation form of a trial site in a match payload
type MatchLocation struct {
	Facility string `json:"facility,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Country  string `json:"country,omitempty"`
	Distance string `json:"distance,omitempty"`
}

// MatchReasoning carries the reasoning breakdown of a single match
type MatchReasoning struct {
	ChainOfThought         []string `json:"chain_of_thought"`
	MedicalAnalysis        string   `json:"medical_analysis,omitempty"`
	EligibilityAssessment  string   `json:"eligibility_assessment,omitempty"`
	ContraindicationCheck  string   `json:"contraindication_check,omitempty"`
	ConfidenceFactors      []string `json:"confidence_factors,omitempty"`
	ExcludedFactors        []string `json:"excluded_factors,omitempty"`
}

// MatchPayload is the per-trial entry in the outbound response
type MatchPayload struct {
	ID              string         `json:"id"`
	NCTID           string         `json:"nctId"`
	Title           string         `json:"title"`
	MatchScore      int            `json:"matchScore"`
	ConfidenceScore float64        `json:"confidence_score"`
	Location        MatchLocation  `json:"location"`
	Explanation     string         `json:"explanation,omitempty"`
	Contact         Contact        `json:"contact"`
	Eligibility     []string       `json:"eligibility,omitempty"`
	Phase           string         `json:"phase,omitempty"`
	Status          string         `json:"status"`
	Conditions      []string       `json:"conditions,omitempty"`
	Reasoning       MatchReasoning `json:"reasoning"`
}

// EntitySummary is the condensed entity view returned with a match response
type EntitySummary struct {
	Conditions []string `json:"conditions"`
	Stage      string   `json:"stage,omitempty"`
	Biomarkers []string `json:"biomarkers,omitempty"`
	Location   string   `json:"location,omitempty"`
}

// ProcessingMetadata describes how the pipeline produced its response
type ProcessingMetadata struct {
	DataSource       string `json:"data_source"`
	ReasoningEnabled bool   `json:"reasoning_enabled"`
	ModelUsed        string `json:"model_used,omitempty"`
	InferenceTimeMS  int64  `json:"inference_time_ms"`
	RealTrials       bool   `json:"real_trials"`
	FallbackReason   string `json:"fallback_reason,omitempty"`
	FailedCandidates int    `json:"failed_candidates,omitempty"`
}

// LLMFeatures describes the reasoning configuration used
type LLMFeatures struct {
	ModelVersion   string `json:"model_version"`
	ReasoningDepth string `json:"reasoning_depth"`
}

// MatchResponse is the outbound contract to the HTTP layer
type MatchResponse struct {
	RequestID          string             `json:"request_id"`
	PatientID          string             `json:"patient_id"`
	Matches            []MatchPayload     `json:"matches"`
	Total              int                `json:"total"`
	ProcessingTimeMS   int64              `json:"processing_time_ms"`
	Timestamp          string             `json:"timestamp"`
	ExtractedEntities  EntitySummary      `json:"extracted_entities"`
	ProcessingMetadata ProcessingMetadata `json:"processing_metadata"`
	LLMFeatures        *LLMFeatures       `json:"llm_features,omitempty"`
	Message            string             `json:"message,omitempty"`
}

// UTCTimestamp renders a time in the response timestamp format (ISO-8601 UTC)
func UTCTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
