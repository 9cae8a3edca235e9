package reasoning

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-match-server/internal/domain"
	"github.com/trial-match-server/pkg/external"
)

type fakeLLM struct {
	response  string
	err       error
	retries   int
	calls     int
	responses map[string]string
}

func (f *fakeLLM) result(content string) *external.ChatResult {
	return &external.ChatResult{Content: content, Model: "test-model", Retries: f.retries}
}

func (f *fakeLLM) ChatCompletion(ctx context.Context, messages []external.ChatMessage) (*external.ChatResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result(f.response), nil
}

func (f *fakeLLM) AnalyzePatientTrialCompatibility(ctx context.Context, patientData map[string]interface{}, trial *domain.Trial) (*external.ChatResult, error) {
	f.calls++
	if f.responses != nil {
		if resp, ok := f.responses[trial.NCTID]; ok {
			return f.result(resp), nil
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result(f.response), nil
}

func (f *fakeLLM) Model() string { return "test-model" }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestAssessEligibility(t *testing.T) {
	llm := &fakeLLM{response: "Assessment: good match.\nThe patient is eligible. Confidence: 85%"}
	svc := NewService(llm, Config{}, quietLogger())

	result := svc.AssessEligibility(context.Background(),
		map[string]interface{}{"age": 52}, &domain.Trial{NCTID: "NCT04444444"}, true)

	assert.Equal(t, domain.MatchEligible, result.EligibilityStatus)
	assert.InDelta(t, 0.85, result.ConfidenceScore, 1e-9)
	assert.Equal(t, "test-model", result.ModelVersion)
	assert.NotEmpty(t, result.ReasoningChain)
	assert.Equal(t, "0", result.Metadata["retry_count"])
}

func TestAssessEligibilityRecordsRetryCount(t *testing.T) {
	llm := &fakeLLM{response: "Eligible. Confidence: 80%", retries: 1}
	svc := NewService(llm, Config{}, quietLogger())

	result := svc.AssessEligibility(context.Background(),
		map[string]interface{}{"age": 52}, &domain.Trial{NCTID: "NCT04444444"}, true)

	assert.Equal(t, "1", result.Metadata["retry_count"])
}

func TestAssessEligibilityStripsChainWhenNotRequested(t *testing.T) {
	llm := &fakeLLM{response: "Assessment: fine.\nEligible."}
	svc := NewService(llm, Config{}, quietLogger())

	result := svc.AssessEligibility(context.Background(), nil, &domain.Trial{NCTID: "NCT04444444"}, false)
	assert.Empty(t, result.ReasoningChain)
}

func TestAssessEligibilitySafeFallback(t *testing.T) {
	llm := &fakeLLM{err: errors.New("service unavailable")}
	svc := NewService(llm, Config{}, quietLogger())

	result := svc.AssessEligibility(context.Background(),
		map[string]interface{}{"age": 52}, &domain.Trial{NCTID: "NCT04444444"}, true)

	assert.Equal(t, domain.MatchRequiresReview, result.EligibilityStatus)
	assert.Equal(t, 0.0, result.ConfidenceScore)
	assert.Empty(t, result.ReasoningChain)
	assert.Equal(t, []string{"Assessment error - manual review needed"}, result.Contraindications)
	assert.Equal(t, []string{"Consult with medical professional for eligibility determination"}, result.Recommendations)
	assert.Equal(t, "service unavailable", result.Metadata["error"])
}

func TestAssessEligibilityCaching(t *testing.T) {
	llm := &fakeLLM{response: "Eligible. Confidence: 80%"}
	patient := map[string]interface{}{"age": 52, "conditions": []string{"asthma"}}
	trial := &domain.Trial{NCTID: "NCT04444444"}

	t.Run("disabled by default", func(t *testing.T) {
		svc := NewService(llm, Config{}, quietLogger())
		llm.calls = 0
		svc.AssessEligibility(context.Background(), patient, trial, true)
		svc.AssessEligibility(context.Background(), patient, trial, true)
		assert.Equal(t, 2, llm.calls)
	})

	t.Run("enabled", func(t *testing.T) {
		svc := NewService(llm, Config{CacheEnabled: true, CacheSize: 8}, quietLogger())
		llm.calls = 0
		first := svc.AssessEligibility(context.Background(), patient, trial, true)
		second := svc.AssessEligibility(context.Background(), patient, trial, true)
		assert.Equal(t, 1, llm.calls, "second assessment must be served from cache")
		assert.Equal(t, first, second)

		other := &domain.Trial{NCTID: "NCT05555555"}
		svc.AssessEligibility(context.Background(), patient, other, true)
		assert.Equal(t, 2, llm.calls, "different trial is a different cache key")
	})
}

func TestCheckContraindications(t *testing.T) {
	llm := &fakeLLM{response: "drug_interaction | Warfarin potentiates study drug | RISK: high | Monitor INR closely\n" +
		"allergy | Possible cross-reactivity | RISK: low | Review allergy history"}
	svc := NewService(llm, Config{}, quietLogger())

	findings := svc.CheckContraindications(context.Background(),
		map[string]interface{}{"medications": []string{"warfarin"}}, "study drug X")

	require.Len(t, findings, 2)
	assert.Equal(t, "drug_interaction", findings[0].Type)
	assert.Equal(t, "high", findings[0].RiskLevel)
	assert.Equal(t, "Monitor INR closely", findings[0].Recommendation)
	assert.Equal(t, "low", findings[1].RiskLevel)
}

func TestCheckContraindicationsNone(t *testing.T) {
	llm := &fakeLLM{response: "No contraindications identified"}
	svc := NewService(llm, Config{}, quietLogger())

	findings := svc.CheckContraindications(context.Background(), nil, "aspirin")
	assert.Empty(t, findings)
}

func TestCheckContraindicationsFailure(t *testing.T) {
	llm := &fakeLLM{err: errors.New("timeout")}
	svc := NewService(llm, Config{}, quietLogger())

	findings := svc.CheckContraindications(context.Background(), nil, "aspirin")
	require.Len(t, findings, 1)
	assert.Equal(t, "unknown", findings[0].RiskLevel)
}

func TestRankTrialMatches(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		"NCT00000001": "The patient is not eligible. Confidence: 90%",
		"NCT00000002": "The patient is eligible. Confidence: 95%",
		"NCT00000003": "The patient is eligible. Confidence: 70%",
	}}
	svc := NewService(llm, Config{}, quietLogger())

	trials := []*domain.Trial{
		{NCTID: "NCT00000001"},
		{NCTID: "NCT00000002"},
		{NCTID: "NCT00000003"},
	}

	rankings := svc.RankTrialMatches(context.Background(), map[string]interface{}{"age": 40}, trials, 2)

	require.Len(t, rankings, 2)
	assert.Equal(t, "NCT00000002", rankings[0].Trial.NCTID)
	assert.Equal(t, "NCT00000003", rankings[1].Trial.NCTID)
	assert.Greater(t, rankings[0].CompatibilityScore, rankings[1].CompatibilityScore)
}

func TestGenerateExplanation(t *testing.T) {
	result := Result{
		EligibilityStatus: domain.MatchEligible,
		ConfidenceScore:   0.85,
		Conclusion:        "Good candidate for enrollment.",
		Recommendations:   []string{"Schedule screening visit"},
		Contraindications: []string{"Monitor renal function"},
		ReasoningChain:    []Step{{Type: "assessment", Details: "profile matches"}},
		ModelVersion:      "test-model",
	}

	patient := GenerateExplanation(result, AudiencePatient)
	assert.Contains(t, patient, "good fit")
	assert.Contains(t, patient, "85%")
	assert.Contains(t, patient, "Schedule screening visit")

	physician := GenerateExplanation(result, AudiencePhysician)
	assert.Contains(t, physician, "eligible")
	assert.Contains(t, physician, "Monitor renal function")
	assert.Contains(t, physician, "profile matches")

	researcher := GenerateExplanation(result, AudienceResearcher)
	assert.Contains(t, researcher, "status=eligible")
	assert.Contains(t, researcher, "model=test-model")

	unknown := GenerateExplanation(result, Audience("robot"))
	assert.Equal(t, patient, unknown)
}
