package reasoning

import (
	"context"
	"crypto/md5"
	"fmt"
	"sort"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/trial-match-server/internal/domain"
	"github.com/trial-match-server/pkg/external"
)

// LLMCaller is the inference dependency of the reasoning service
type LLMCaller interface {
	ChatCompletion(ctx context.Context, messages []external.ChatMessage) (*external.ChatResult, error)
	AnalyzePatientTrialCompatibility(ctx context.Context, patientData map[string]interface{}, trial *domain.Trial) (*external.ChatResult, error)
	Model() string
}

// Config controls the reasoning service
type Config struct {
	// CacheEnabled turns on result caching; off by default so repeated
	// assessments stay fresh.
	CacheEnabled bool
	CacheSize    int
}

// Service runs LLM-backed eligibility reasoning over patient/trial pairs
type Service struct {
	llm    LLMCaller
	cache  *lru.Cache[string, Result]
	logger *logrus.Logger
}

// NewService creates a reasoning service. The cache is allocated only when
// enabled.
func NewService(llm LLMCaller, config Config, logger *logrus.Logger) *Service {
	s := &Service{llm: llm, logger: logger}
	if config.CacheEnabled {
		size := config.CacheSize
		if size <= 0 {
			size = 256
		}
		cache, err := lru.New[string, Result](size)
		if err == nil {
			s.cache = cache
		}
	}
	return s
}

// AssessEligibility evaluates a patient against one trial. It never returns
// an error: any failure produces the safe fallback result so the pipeline
// can keep going.
func (s *Service) AssessEligibility(ctx context.Context, patientData map[string]interface{}, trial *domain.Trial, includeDetailedReasoning bool) Result {
	cacheKey := s.cacheKey(patientData, trial.NCTID)
	if s.cache != nil {
		if cached, ok := s.cache.Get(cacheKey); ok {
			return cached
		}
	}

	response, err := s.llm.AnalyzePatientTrialCompatibility(ctx, patientData, trial)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"nct_id": trial.NCTID,
			"error":  err.Error(),
		}).Warn("Eligibility assessment failed, returning safe fallback")
		return fallbackResult(err)
	}

	result := ParseResponse(response.Content)
	result.ModelVersion = response.Model
	if result.ModelVersion == "" {
		result.ModelVersion = s.llm.Model()
	}
	if result.Metadata == nil {
		result.Metadata = make(map[string]string)
	}
	result.Metadata["retry_count"] = strconv.Itoa(response.Retries)
	result.Metadata["response_time_ms"] = strconv.FormatInt(response.ResponseTime.Milliseconds(), 10)
	if response.RequestID != "" {
		result.Metadata["request_id"] = response.RequestID
	}
	if !includeDetailedReasoning {
		result.ReasoningChain = nil
	}

	if s.cache != nil {
		s.cache.Add(cacheKey, result)
	}
	return result
}

// fallbackResult is the safe verdict used when assessment cannot complete
func fallbackResult(err error) Result {
	return Result{
		EligibilityStatus: domain.MatchRequiresReview,
		ConfidenceScore:   0,
		Contraindications: []string{"Assessment error - manual review needed"},
		Recommendations:   []string{"Consult with medical professional for eligibility determination"},
		Metadata:          map[string]string{"error": err.Error()},
	}
}

// cacheKey hashes the sanitized patient summary, trial id, and model version
func (s *Service) cacheKey(patientData map[string]interface{}, nctID string) string {
	summary := BuildPatientSummary(patientData)
	digest := md5.Sum([]byte(summary + "|" + nctID + "|" + s.llm.Model()))
	return fmt.Sprintf("%x", digest)
}

// Contraindication is one detected risk of an intervention for a patient
type Contraindication struct {
	Type           string `json:"type"`
	Description    string `json:"description"`
	RiskLevel      string `json:"risk_level"`
	Recommendation string `json:"recommendation"`
}

const contraindicationSystemPrompt = `You are a clinical safety reviewer. ` +
	`Given a patient profile and a proposed intervention, list each potential ` +
	`contraindication on its own line in the form ` +
	`"TYPE | DESCRIPTION | RISK: low/medium/high | RECOMMENDATION". ` +
	`If there are none, reply "No contraindications identified".`

// CheckContraindications asks the model for risks of an intervention and
// parses the line-per-finding reply. Failures return an unknown-risk entry
// rather than an error.
func (s *Service) CheckContraindications(ctx context.Context, patientData map[string]interface{}, intervention string) []Contraindication {
	summary := BuildPatientSummary(patientData)
	prompt := fmt.Sprintf("Patient: %s\nProposed intervention: %s", summary, intervention)

	response, err := s.llm.ChatCompletion(ctx, []external.ChatMessage{
		{Role: "system", Content: contraindicationSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"intervention": intervention,
			"error":        err.Error(),
		}).Warn("Contraindication check failed")
		return []Contraindication{{
			Type:           "assessment_error",
			Description:    "Contraindication check could not complete",
			RiskLevel:      "unknown",
			Recommendation: "Consult with medical professional",
		}}
	}

	return parseContraindications(response.Content)
}

// parseContraindications reads the pipe-separated reply lines
func parseContraindications(response string) []Contraindication {
	if strings.Contains(strings.ToLower(response), "no contraindications identified") {
		return nil
	}

	var findings []Contraindication
	for _, line := range strings.Split(response, "\n") {
		fields := strings.Split(line, "|")
		if len(fields) < 2 {
			continue
		}
		finding := Contraindication{
			Type:        strings.TrimSpace(fields[0]),
			Description: strings.TrimSpace(fields[1]),
			RiskLevel:   "unknown",
		}
		for _, field := range fields[2:] {
			lower := strings.ToLower(field)
			switch {
			case strings.Contains(lower, "risk"):
				finding.RiskLevel = parseRiskLevel(lower)
			default:
				finding.Recommendation = strings.TrimSpace(field)
			}
		}
		if finding.Type != "" {
			findings = append(findings, finding)
		}
	}
	return findings
}

func parseRiskLevel(text string) string {
	switch {
	case strings.Contains(text, "high"):
		return "high"
	case strings.Contains(text, "medium"):
		return "medium"
	case strings.Contains(text, "low"):
		return "low"
	}
	return "unknown"
}

// TrialRanking is one entry of a ranked compatibility list
type TrialRanking struct {
	Trial              *domain.Trial `json:"trial"`
	CompatibilityScore float64       `json:"compatibility_score"`
	Reasoning          string        `json:"reasoning"`
	KeyFactors         []string      `json:"key_factors"`
	Concerns           []string      `json:"concerns"`
}

// RankTrialMatches assesses each trial and returns them ordered by
// compatibility, best first, truncated to limit.
func (s *Service) RankTrialMatches(ctx context.Context, patientData map[string]interface{}, trials []*domain.Trial, limit int) []TrialRanking {
	rankings := make([]TrialRanking, 0, len(trials))
	for _, trial := range trials {
		result := s.AssessEligibility(ctx, patientData, trial, true)
		rankings = append(rankings, TrialRanking{
			Trial:              trial,
			CompatibilityScore: compatibilityScore(result),
			Reasoning:          result.Conclusion,
			KeyFactors:         result.Recommendations,
			Concerns:           result.Contraindications,
		})
	}

	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].CompatibilityScore > rankings[j].CompatibilityScore
	})
	if limit > 0 && len(rankings) > limit {
		rankings = rankings[:limit]
	}
	return rankings
}

// compatibilityScore folds the verdict into the stated confidence
func compatibilityScore(result Result) float64 {
	switch result.EligibilityStatus {
	case domain.MatchEligible:
		return result.ConfidenceScore
	case domain.MatchIneligible:
		return (1 - result.ConfidenceScore) * 0.3
	}
	return result.ConfidenceScore * 0.6
}
