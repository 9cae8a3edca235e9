package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/trial-match-server/internal/domain"
	"github.com/trial-match-server/internal/nlp"
	"github.com/trial-match-server/internal/reasoning"
	"github.com/trial-match-server/internal/search"
	"github.com/trial-match-server/pkg/external"
)

// candidateMultiplier widens retrieval beyond the requested result count so
// the relevance filter and confidence threshold have room to cut.
const candidateMultiplier = 3

// defaultScoringConcurrency bounds parallel per-candidate LLM assessments
const defaultScoringConcurrency = 5

// noMatchesMessage is returned when the pipeline ends with zero matches
const noMatchesMessage = "No matching clinical trials found for the given criteria."

// CandidateSearcher is the in-memory retrieval dependency
type CandidateSearcher interface {
	Search(query search.Query) (*search.Results, error)
	Size() int
}

// RegistrySearcher is the live-registry retrieval dependency
type RegistrySearcher interface {
	SearchForPatient(ctx context.Context, excerpt external.PatientExcerpt, maxDistanceMiles, maxResults int) ([]domain.Trial, error)
}

// EligibilityAssessor runs per-candidate LLM reasoning
type EligibilityAssessor interface {
	AssessEligibility(ctx context.Context, patientData map[string]interface{}, trial *domain.Trial, includeDetailedReasoning bool) reasoning.Result
}

// Matcher drives the full matching pipeline: normalize, extract, retrieve,
// relevance-filter, LLM-score, rank, and shape the response.
type Matcher struct {
	searcher    CandidateSearcher
	registry    RegistrySearcher
	assessor    EligibilityAssessor
	extractor   *nlp.Extractor
	config      domain.MatchingConfig
	modelName   string
	concurrency int
	logger      *logrus.Logger
}

// NewMatcher creates the orchestrator
func NewMatcher(searcher CandidateSearcher, registry RegistrySearcher, assessor EligibilityAssessor,
	config domain.MatchingConfig, modelName string, logger *logrus.Logger) *Matcher {
	return &Matcher{
		searcher:    searcher,
		registry:    registry,
		assessor:    assessor,
		extractor:   nlp.NewExtractor(),
		config:      config,
		modelName:   modelName,
		concurrency: defaultScoringConcurrency,
		logger:      logger,
	}
}

// Match runs the pipeline for one request. The returned error is non-nil
// only for invalid input; downstream failures degrade into an empty or
// partial response with explanatory metadata.
func (m *Matcher) Match(ctx context.Context, req *domain.MatchRequest) (*domain.MatchResponse, error) {
	start := time.Now()
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	logger := m.logger.WithField("request_id", requestID)

	profile := buildPatientProfile(req.PatientData, m.extractor)
	logger.WithFields(logrus.Fields{
		"query_text":         profile.searchQueryText(),
		"patient_conditions": strings.Join(profile.primaryConditions, ", "),
	}).Debug("Patient profile prepared")

	response := &domain.MatchResponse{
		RequestID:         requestID,
		PatientID:         profile.anonymizedPatientID(),
		Matches:           []domain.MatchPayload{},
		ExtractedEntities: profile.entitySummary(),
		ProcessingMetadata: domain.ProcessingMetadata{
			ReasoningEnabled: *req.EnableAdvancedReasoning,
			ModelUsed:        m.modelName,
		},
	}

	maxCandidates := candidateMultiplier * req.MaxResults
	candidates, dataSource, fallbackReason := m.retrieveCandidates(ctx, profile, maxCandidates, logger)
	response.ProcessingMetadata.DataSource = dataSource
	response.ProcessingMetadata.FallbackReason = fallbackReason
	response.ProcessingMetadata.RealTrials = len(candidates) > 0

	if len(candidates) == 0 {
		finishResponse(response, start, noMatchesMessage)
		return response, nil
	}

	relevant := filterByRelevance(profile, candidates, maxCandidates, m.logger)
	logger.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"relevant":   len(relevant),
	}).Info("Relevance filter applied")

	if len(relevant) == 0 {
		finishResponse(response, start, noMatchesMessage)
		return response, nil
	}

	inferenceStart := time.Now()
	results, failed := m.scoreCandidates(ctx, profile, relevant, *req.EnableAdvancedReasoning)
	response.ProcessingMetadata.InferenceTimeMS = time.Since(inferenceStart).Milliseconds()
	response.ProcessingMetadata.FailedCandidates = failed

	// Stable sort keeps pre-sort order on confidence ties
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].result.ConfidenceScore > results[j].result.ConfidenceScore
	})

	for _, scored := range results {
		if scored.result.ConfidenceScore < *req.MinConfidence {
			continue
		}
		response.Matches = append(response.Matches, buildMatchPayload(scored))
		if len(response.Matches) >= req.MaxResults {
			break
		}
	}

	depth := "standard"
	if *req.EnableAdvancedReasoning {
		depth = "advanced"
	}
	response.LLMFeatures = &domain.LLMFeatures{ModelVersion: m.modelName, ReasoningDepth: depth}

	message := ""
	if len(response.Matches) == 0 {
		message = noMatchesMessage
	}
	finishResponse(response, start, message)
	return response, nil
}

// finishResponse stamps the timing and totals fields
func finishResponse(response *domain.MatchResponse, start time.Time, message string) {
	response.Total = len(response.Matches)
	response.Timestamp = domain.UTCTimestamp(time.Now())
	elapsed := time.Since(start).Milliseconds()
	if elapsed < 1 {
		elapsed = 1
	}
	response.ProcessingTimeMS = elapsed
	response.Message = message
}

// retrieveCandidates fetches trials from the configured source, falling back
// to the alternate source on failure or empty results.
func (m *Matcher) retrieveCandidates(ctx context.Context, profile *patientProfile, maxCandidates int, logger *logrus.Entry) ([]domain.Trial, string, string) {
	primary := m.config.CandidateSource
	if primary == "" {
		primary = "index"
	}

	var fallbackReason string
	order := []string{primary}
	if primary == "index" {
		order = append(order, "registry")
	} else {
		order = append(order, "index")
	}

	for _, source := range order {
		trials, err := m.retrieveFrom(ctx, source, profile, maxCandidates)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"source": source,
				"error":  err.Error(),
			}).Warn("Candidate retrieval failed")
			fallbackReason = source + " retrieval failed: " + err.Error()
			continue
		}
		if len(trials) == 0 {
			fallbackReason = "no candidates from " + source
			continue
		}
		sourceName := "search_index"
		if source == "registry" {
			sourceName = "registry"
		}
		return trials, sourceName, ""
	}

	if fallbackReason == "" {
		fallbackReason = "no candidate sources configured"
	}
	return nil, "none", fallbackReason
}

// retrieveFrom queries one candidate source
func (m *Matcher) retrieveFrom(ctx context.Context, source string, profile *patientProfile, maxCandidates int) ([]domain.Trial, error) {
	switch source {
	case "registry":
		if m.registry == nil {
			return nil, nil
		}
		excerpt := external.PatientExcerpt{
			Conditions: profile.primaryConditions,
			Keywords:   profile.biomarkerNames(),
			Age:        profile.age,
		}
		if len(excerpt.Conditions) == 0 {
			excerpt.Keywords = append(excerpt.Keywords, fallbackKeyTerms(profile.freeText)...)
		}
		return m.registry.SearchForPatient(ctx, excerpt, 0, maxCandidates)
	default:
		if m.searcher == nil || m.searcher.Size() == 0 {
			return nil, nil
		}
		query := search.Query{
			Text:  profile.searchQueryText(),
			Mode:  search.ModeHybrid,
			Limit: maxCandidates,
		}
		results, err := m.searcher.Search(query)
		if err != nil {
			return nil, err
		}
		trials := make([]domain.Trial, len(results.Results))
		for i, r := range results.Results {
			trials[i] = r.Trial
		}
		return trials, nil
	}
}

// scoredResult pairs a trial with its finished match result
type scoredResult struct {
	trial  domain.Trial
	result domain.MatchResult
	raw    reasoning.Result
}

// scoreCandidates runs bounded-concurrency LLM assessment over the
// candidates, preserving input order. Failed assessments are dropped and
// counted rather than aborting the batch.
func (m *Matcher) scoreCandidates(ctx context.Context, profile *patientProfile, trials []domain.Trial, detailed bool) ([]scoredResult, int) {
	type slot struct {
		result reasoning.Result
		failed bool
	}
	slots := make([]slot, len(trials))
	payload := profile.llmPayload()

	sem := make(chan struct{}, m.concurrency)
	done := make(chan struct{}, len(trials))
	for i := range trials {
		go func(idx int) {
			defer func() { done <- struct{}{} }()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				slots[idx].failed = true
				return
			}
			defer func() { <-sem }()

			trial := trials[idx]
			result := m.assessor.AssessEligibility(ctx, payload, &trial, detailed)
			if result.Metadata["error"] != "" {
				slots[idx].failed = true
				return
			}
			slots[idx].result = result
		}(i)
	}
	for range trials {
		<-done
	}

	var scored []scoredResult
	failed := 0
	for i, s := range slots {
		if s.failed {
			failed++
			continue
		}
		scored = append(scored, scoredResult{
			trial:  trials[i],
			result: m.buildMatchResult(profile, trials[i], s.result),
			raw:    s.result,
		})
	}
	return scored, failed
}

// buildMatchResult converts a reasoning outcome into the domain match record
func (m *Matcher) buildMatchResult(profile *patientProfile, trial domain.Trial, assessment reasoning.Result) domain.MatchResult {
	chain := make([]domain.ReasoningStep, 0, len(assessment.ReasoningChain))
	for _, step := range assessment.ReasoningChain {
		confidence := step.Confidence
		category := mapStepCategory(step.Type)
		chain = append(chain, domain.ReasoningStep{
			Category: category,
			Result:   stepResult(category, assessment.EligibilityStatus),
			Details:  step.Details,
			Score:    &confidence,
		})
	}

	result := domain.MatchResult{
		MatchID:         uuid.NewString(),
		PatientID:       profile.anonymizedPatientID(),
		NCTID:           trial.NCTID,
		OverallScore:    assessment.ConfidenceScore,
		ConfidenceScore: assessment.ConfidenceScore,
		Status:          assessment.EligibilityStatus,
		ReasoningChain:  chain,
		Explanation:     reasoning.GenerateExplanation(assessment, reasoning.AudiencePatient),
		NextSteps:       assessment.Recommendations,
		AIModelVersion:  assessment.ModelVersion,
	}
	result.Finalize()
	return result
}

// stepResult derives a step outcome from the overall verdict. Narrative
// reasoning carries no per-step pass or fail signal, so steps stay unknown
// except that an ineligible verdict marks its exclusion findings as failed.
func stepResult(category domain.StepCategory, status domain.MatchStatus) domain.StepResult {
	if status == domain.MatchIneligible && category == domain.StepExclusionCheck {
		return domain.ResultFail
	}
	return domain.ResultUnknown
}

// mapStepCategory maps a free-form reasoning label onto the closed category
// set via a keyword rubric.
func mapStepCategory(label string) domain.StepCategory {
	lower := strings.ToLower(label)
	contains := func(terms ...string) bool {
		for _, term := range terms {
			if strings.Contains(lower, term) {
				return true
			}
		}
		return false
	}
	switch {
	case contains("demographic", "age"):
		return domain.StepAgeCheck
	case contains("gender", "sex"):
		return domain.StepGenderCheck
	case contains("risk", "exclusion", "contraindication"):
		return domain.StepExclusionCheck
	case contains("allergy"):
		return domain.StepAllergyCheck
	case contains("condition", "diagnosis", "disease"):
		return domain.StepConditionMatch
	case contains("medication", "drug", "treatment"):
		return domain.StepMedicationCompatibility
	case contains("location", "geographic"):
		return domain.StepLocationProximity
	case contains("status", "recruiting"):
		return domain.StepTrialStatusCheck
	case contains("lab", "laboratory"):
		return domain.StepLabValuesCheck
	case contains("inclusion", "criteria"):
		return domain.StepInclusionCheck
	}
	return domain.StepInclusionCheck
}

// buildMatchPayload shapes one match for the outbound response
func buildMatchPayload(scored scoredResult) domain.MatchPayload {
	trial := scored.trial
	assessment := scored.raw

	payload := domain.MatchPayload{
		ID:              scored.result.MatchID,
		NCTID:           trial.NCTID,
		Title:           trial.Title,
		MatchScore:      int(scored.result.ConfidenceScore*100 + 0.5),
		ConfidenceScore: scored.result.ConfidenceScore,
		Explanation:     scored.result.Explanation,
		Eligibility:     trial.Eligibility.Inclusion,
		Phase:           string(trial.Phase),
		Status:          string(trial.Status),
		Conditions:      trial.Conditions,
		Reasoning: domain.MatchReasoning{
			ChainOfThought:        chainOfThought(scored.result.ReasoningChain),
			MedicalAnalysis:       sectionDetails(assessment, "analysis"),
			EligibilityAssessment: sectionDetails(assessment, "assessment"),
			ContraindicationCheck: strings.Join(assessment.Contraindications, "; "),
			ConfidenceFactors:     assessment.Recommendations,
			ExcludedFactors:       assessment.Contraindications,
		},
	}

	if len(trial.Locations) > 0 {
		site := trial.Locations[0]
		payload.Location = domain.MatchLocation{
			Facility: site.Facility,
			City:     site.City,
			State:    site.State,
			Country:  site.Country,
		}
		if site.Contact != nil {
			payload.Contact = *site.Contact
		}
	}
	return payload
}

// chainOfThought renders reasoning steps as readable lines
func chainOfThought(chain []domain.ReasoningStep) []string {
	lines := make([]string, len(chain))
	for i, step := range chain {
		lines[i] = string(step.Category) + ": " + step.Details
	}
	return lines
}

// sectionDetails finds the details of a named reasoning section
func sectionDetails(assessment reasoning.Result, sectionType string) string {
	for _, step := range assessment.ReasoningChain {
		if step.Type == sectionType {
			return step.Details
		}
	}
	return ""
}
