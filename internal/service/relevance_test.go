package service

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/trial-match-server/internal/domain"
	"github.com/trial-match-server/internal/nlp"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func profileFor(t *testing.T, input *domain.PatientInput) *patientProfile {
	t.Helper()
	return buildPatientProfile(input, nlp.NewExtractor())
}

func TestScoreRelevancePreventionAutoDisqualify(t *testing.T) {
	profile := profileFor(t, &domain.PatientInput{
		Age:        domain.IntPtr(58),
		Conditions: []string{"stage IV metastatic breast cancer"},
	})
	trial := domain.Trial{
		NCTID:  "NCT00000001",
		Title:  "Prevention of breast cancer in high-risk postmenopausal women",
		Status: domain.StatusRecruiting,
	}

	assert.Equal(t, 0.0, scoreRelevance(profile, &trial),
		"prevention trials are disqualified for advanced-stage cancer patients")
}

func TestScoreRelevanceSurgicalAutoDisqualify(t *testing.T) {
	profile := profileFor(t, &domain.PatientInput{
		Conditions: []string{"metastatic breast cancer"},
	})
	trial := domain.Trial{
		NCTID: "NCT00000002",
		Title: "Breast reconstruction outcomes after mastectomy",
	}
	assert.Equal(t, 0.0, scoreRelevance(profile, &trial))
}

func TestScoreRelevanceHealthyVolunteersAutoDisqualify(t *testing.T) {
	profile := profileFor(t, &domain.PatientInput{
		Conditions: []string{"lung cancer"},
	})
	trial := domain.Trial{
		NCTID: "NCT00000003",
		Title: "Pharmacokinetics in healthy volunteers",
	}
	assert.Equal(t, 0.0, scoreRelevance(profile, &trial))
}

func TestScoreRelevanceTreatmentTrialScoresHigh(t *testing.T) {
	profile := profileFor(t, &domain.PatientInput{
		Age:        domain.IntPtr(52),
		Conditions: []string{"triple-negative breast cancer"},
	})
	trial := domain.Trial{
		NCTID:        "NCT00000004",
		Title:        "Phase 2 immunotherapy treatment for metastatic breast cancer",
		BriefSummary: "Pembrolizumab treatment study",
		Status:       domain.StatusRecruiting,
		Phase:        domain.Phase2,
	}

	score := scoreRelevance(profile, &trial)
	// condition 0.4 + treatment 0.3 + phase 0.2 + recruiting 0.1 + breast 0.3, clamped
	assert.Equal(t, 1.0, score)
}

func TestScoreRelevancePediatricMismatch(t *testing.T) {
	profile := profileFor(t, &domain.PatientInput{
		Age:        domain.IntPtr(45),
		Conditions: []string{"leukemia"},
	})
	adultTrialScore := scoreRelevance(profile, &domain.Trial{
		NCTID: "NCT00000005",
		Title: "Treatment of leukemia in adults",
	})
	pediatricTrialScore := scoreRelevance(profile, &domain.Trial{
		NCTID: "NCT00000006",
		Title: "Treatment of pediatric leukemia in children",
	})
	assert.Greater(t, adultTrialScore, pediatricTrialScore)
}

func TestScoreRelevanceImagingPenalty(t *testing.T) {
	profile := profileFor(t, &domain.PatientInput{
		Conditions: []string{"breast cancer"},
	})
	treatment := scoreRelevance(profile, &domain.Trial{
		NCTID: "NCT00000007",
		Title: "Chemotherapy treatment for breast cancer",
	})
	imaging := scoreRelevance(profile, &domain.Trial{
		NCTID: "NCT00000008",
		Title: "Quantitative ultrasound imaging study of breast cancer",
	})
	assert.Greater(t, treatment, imaging)
}

func TestScoreRelevanceClosedStatusPenalty(t *testing.T) {
	profile := profileFor(t, &domain.PatientInput{
		Conditions: []string{"diabetes"},
	})
	open := domain.Trial{NCTID: "NCT00000009", Title: "Treatment of diabetes", Status: domain.StatusRecruiting}
	closed := domain.Trial{NCTID: "NCT00000010", Title: "Treatment of diabetes", Status: domain.StatusCompleted}

	assert.Greater(t, scoreRelevance(profile, &open), scoreRelevance(profile, &closed))
}

func TestScoreRelevanceClampedToUnitInterval(t *testing.T) {
	profile := profileFor(t, &domain.PatientInput{
		Age:        domain.IntPtr(40),
		Conditions: []string{"breast cancer"},
	})
	trials := []domain.Trial{
		{NCTID: "NCT00000011", Title: "Phase 3 targeted therapy treatment clinical trial for breast cancer", Status: domain.StatusRecruiting},
		{NCTID: "NCT00000012", Title: "Observational registry of unrelated imaging study", Status: domain.StatusTerminated},
	}
	for _, trial := range trials {
		score := scoreRelevance(profile, &trial)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestFilterByRelevanceDropsAndOrders(t *testing.T) {
	profile := profileFor(t, &domain.PatientInput{
		Age:        domain.IntPtr(58),
		Conditions: []string{"stage IV metastatic breast cancer"},
	})

	trials := []domain.Trial{
		{NCTID: "NCT00000020", Title: "Prevention of breast cancer in high-risk postmenopausal women", Status: domain.StatusRecruiting},
		{NCTID: "NCT00000021", Title: "Phase 2 immunotherapy treatment for metastatic breast cancer", Status: domain.StatusRecruiting, Phase: domain.Phase2},
		{NCTID: "NCT00000022", Title: "Registry of blood samples", Status: domain.StatusRecruiting},
	}

	kept := filterByRelevance(profile, trials, 10, quietLogger())

	ids := make([]string, len(kept))
	for i, trial := range kept {
		ids[i] = trial.NCTID
	}
	assert.Contains(t, ids, "NCT00000021")
	assert.NotContains(t, ids, "NCT00000020", "auto-disqualified trial must not reach LLM scoring")
	assert.NotContains(t, ids, "NCT00000022")
}

func TestFilterByRelevanceTruncates(t *testing.T) {
	profile := profileFor(t, &domain.PatientInput{Conditions: []string{"asthma"}})
	trials := make([]domain.Trial, 6)
	for i := range trials {
		trials[i] = domain.Trial{
			NCTID:  "NCT0000003" + string(rune('0'+i)),
			Title:  "Treatment therapy clinical trial for asthma",
			Status: domain.StatusRecruiting,
		}
	}
	kept := filterByRelevance(profile, trials, 4, quietLogger())
	assert.Len(t, kept, 4)
}
