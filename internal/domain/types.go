package domain

import (
	"fmt"
	"regexp"
)

// Core Enums and Types

// TrialStatus represents the recruitment status of a registered trial
type TrialStatus string

const (
	StatusRecruiting            TrialStatus = "recruiting"
	StatusNotYetRecruiting      TrialStatus = "not_yet_recruiting"
	StatusActiveNotRecruiting   TrialStatus = "active_not_recruiting"
	StatusCompleted             TrialStatus = "completed"
	StatusSuspended             TrialStatus = "suspended"
	StatusTerminated            TrialStatus = "terminated"
	StatusWithdrawn             TrialStatus = "withdrawn"
	StatusEnrollingByInvitation TrialStatus = "enrolling_by_invitation"
	StatusAvailable             TrialStatus = "available"
	StatusNoLongerAvailable     TrialStatus = "no_longer_available"
)

// IsOpen reports whether the trial is accepting or about to accept participants
func (s TrialStatus) IsOpen() bool {
	switch s {
	case StatusRecruiting, StatusNotYetRecruiting, StatusActiveNotRecruiting:
		return true
	}
	return false
}

// IsClosed reports whether the trial has finished or been stopped
func (s TrialStatus) IsClosed() bool {
	switch s {
	case StatusCompleted, StatusTerminated, StatusWithdrawn:
		return true
	}
	return false
}

// StudyType represents the design category of a trial
type StudyType string

const (
	StudyInterventional StudyType = "interventional"
	StudyObservational  StudyType = "observational"
	StudyExpandedAccess StudyType = "expanded_access"
)

// PrimaryPurpose represents the stated purpose of a trial
type PrimaryPurpose string

const (
	PurposeTreatment      PrimaryPurpose = "treatment"
	PurposePrevention     PrimaryPurpose = "prevention"
	PurposeDiagnostic     PrimaryPurpose = "diagnostic"
	PurposeSupportiveCare PrimaryPurpose = "supportive_care"
	PurposeScreening      PrimaryPurpose = "screening"
	PurposeBasicScience   PrimaryPurpose = "basic_science"
	PurposeOther          PrimaryPurpose = "other"
)

// Phase represents the clinical trial phase
type Phase string

const (
	Phase1             Phase = "phase-1"
	Phase2             Phase = "phase-2"
	Phase3             Phase = "phase-3"
	Phase4             Phase = "phase-4"
	PhaseNotApplicable Phase = "not_applicable"
)

// Sex represents a patient's reported sex
type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexOther   Sex = "other"
	SexUnknown Sex = "unknown"
)

// GenderRequirement represents the sex/gender eligibility of a trial
type GenderRequirement string

const (
	GenderAll            GenderRequirement = "all"
	GenderMale           GenderRequirement = "male"
	GenderFemale         GenderRequirement = "female"
	GenderOther          GenderRequirement = "other"
	GenderPreferNotToSay GenderRequirement = "prefer_not_to_say"
)

// Admits reports whether a patient of the given sex satisfies the requirement.
// Unknown patient sex is admitted; the eligibility check is deferred to review.
func (g GenderRequirement) Admits(sex Sex) bool {
	if g == GenderAll || g == "" {
		return true
	}
	if sex == SexUnknown || sex == "" {
		return true
	}
	return string(g) == string(sex)
}

// MatchStatus represents the eligibility verdict for a patient/trial pair
type MatchStatus string

const (
	MatchEligible            MatchStatus = "eligible"
	MatchIneligible          MatchStatus = "ineligible"
	MatchPotentiallyEligible MatchStatus = "potentially_eligible"
	MatchRequiresReview      MatchStatus = "requires_review"
	MatchInsufficientData    MatchStatus = "insufficient_data"
)

// StepCategory is the closed set of reasoning step labels
type StepCategory string

const (
	StepAgeCheck                StepCategory = "age_check"
	StepGenderCheck             StepCategory = "gender_check"
	StepConditionMatch          StepCategory = "condition_match"
	StepMedicationCompatibility StepCategory = "medication_compatibility"
	StepAllergyCheck            StepCategory = "allergy_check"
	StepExclusionCheck          StepCategory = "exclusion_check"
	StepInclusionCheck          StepCategory = "inclusion_check"
	StepLocationProximity       StepCategory = "location_proximity"
	StepTrialStatusCheck        StepCategory = "trial_status_check"
	StepLabValuesCheck          StepCategory = "lab_values_check"
	StepSpecialPopulations      StepCategory = "special_populations_check"
)

// StepResult is the closed set of reasoning step outcomes
type StepResult string

const (
	ResultPass           StepResult = "pass"
	ResultFail           StepResult = "fail"
	ResultPartial        StepResult = "partial"
	ResultUnknown        StepResult = "unknown"
	ResultRequiresReview StepResult = "requires_review"
)

// nctIDPattern is the registry identifier grammar: "NCT" followed by exactly 8 digits
var nctIDPattern = regexp.MustCompile(`^NCT\d{8}$`)

// ValidateNCTID checks an NCT identifier against the registry grammar
func ValidateNCTID(id string) error {
	if !nctIDPattern.MatchString(id) {
		return NewValidationError("nct_id", "must match NCT followed by 8 digits", id)
	}
	return nil
}

// IsValidNCTID reports whether the identifier matches the registry grammar
func IsValidNCTID(id string) bool {
	return nctIDPattern.MatchString(id)
}

// AgeRange represents an age requirement in years. Nil bounds are open.
type AgeRange struct {
	Min   *int   `json:"min"`
	Max   *int   `json:"max"`
	Units string `json:"units"`
}

// NewAgeRange builds an age range from optional bounds in years
func NewAgeRange(min, max *int) AgeRange {
	return AgeRange{Min: min, Max: max, Units: "years"}
}

// IsZero reports whether no bound is set
func (r AgeRange) IsZero() bool {
	return r.Min == nil && r.Max == nil
}

// Validate checks that the bounds are ordered and non-negative
func (r AgeRange) Validate() error {
	if r.Min != nil && *r.Min < 0 {
		return NewValidationError("age_requirements.min", "must be non-negative", *r.Min)
	}
	if r.Max != nil && *r.Max < 0 {
		return NewValidationError("age_requirements.max", "must be non-negative", *r.Max)
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return NewValidationError("age_requirements", fmt.Sprintf("min %d exceeds max %d", *r.Min, *r.Max), r)
	}
	return nil
}

// Overlaps reports whether two ranges intersect, treating absent bounds as open:
// trial_min <= patient_max AND trial_max >= patient_min.
func (r AgeRange) Overlaps(other AgeRange) bool {
	if r.Min != nil && other.Max != nil && *r.Min > *other.Max {
		return false
	}
	if r.Max != nil && other.Min != nil && *r.Max < *other.Min {
		return false
	}
	return true
}

// Contains reports whether a single age falls inside the range
func (r AgeRange) Contains(age int) bool {
	if r.Min != nil && age < *r.Min {
		return false
	}
	if r.Max != nil && age > *r.Max {
		return false
	}
	return true
}

// IntPtr returns a pointer to v, for building optional bounds
func IntPtr(v int) *int {
	return &v
}

// Float64Ptr returns a pointer to v, for optional step scores and weights
func Float64Ptr(v float64) *float64 {
	return &v
}
