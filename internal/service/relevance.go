package service

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/trial-match-server/internal/domain"
)

// relevanceThreshold keeps candidates worth sending to LLM scoring
const relevanceThreshold = 0.5

var (
	cancerCondition  = regexp.MustCompile(`cancer|tumor|carcinoma`)
	advancedStage    = regexp.MustCompile(`stage 4|stage iv|metastatic|advanced`)
	preventionTrial  = regexp.MustCompile(`prevention|prophylaxis|risk reduction|preventive|high-risk|postmenopausal women`)
	surgicalTrial    = regexp.MustCompile(`reconstruction|surgery|surgical|cosmetic|aesthetic|mastectomy|lumpectomy|breast reconstruction`)
	healthyVolunteer = regexp.MustCompile(`healthy subjects|healthy volunteers|healthy participants|in healthy|pharmacokinetics in healthy`)
	nonTreatment     = regexp.MustCompile(`quantitative ultrasound|imaging study|diagnostic study|biomarker study|blood samples|registry`)
	pediatricTrial   = regexp.MustCompile(`pediatric|children|adolescent|child\b`)
	adultTrial       = regexp.MustCompile(`\badults?\b`)
	treatmentTrial   = regexp.MustCompile(`treatment|therapy|therapeutic|drug trial|medication|chemotherapy|immunotherapy|targeted therapy|clinical trial`)
	phaseMarker      = regexp.MustCompile(`phase (?:1|2|3|4|i{1,3}v?)\b`)
	observational    = regexp.MustCompile(`observational`)

	cancerTypes = []string{"breast", "lung", "colorectal", "prostate", "pancreatic"}
)

const adultAge = 18

// scoreRelevance rates how clinically sensible a candidate trial is for the
// patient before spending an LLM call on it. Known anti-patterns return 0
// outright; everything else accumulates bonuses and penalties and clamps to
// [0, 1].
func scoreRelevance(profile *patientProfile, trial *domain.Trial) float64 {
	trialText := strings.ToLower(trial.Title + " " + trial.BriefSummary)
	patientText := strings.ToLower(profile.freeText + " " + strings.Join(profile.primaryConditions, " "))

	score := 0.0

	if conditionWordInText(profile.primaryConditions, trialText) {
		score += 0.4
	}

	if cancerCondition.MatchString(patientText) {
		advanced := advancedStage.MatchString(patientText)
		if advanced && preventionTrial.MatchString(trialText) {
			return 0
		}
		if advanced && surgicalTrial.MatchString(trialText) {
			return 0
		}
		if healthyVolunteer.MatchString(trialText) {
			return 0
		}
		if nonTreatment.MatchString(trialText) {
			score -= 0.4
		}
	}

	if profile.age != nil {
		pediatricTerms := pediatricTrial.MatchString(trialText)
		adultTerms := adultTrial.MatchString(trialText)
		if *profile.age >= adultAge && pediatricTerms && !adultTerms {
			score -= 0.6
		}
		if *profile.age < adultAge && adultTerms && !pediatricTerms {
			score -= 0.6
		}
	}

	if treatmentTrial.MatchString(trialText) {
		score += 0.3
	}
	if phaseMarker.MatchString(trialText) || trial.Phase != "" {
		score += 0.2
	}
	if observational.MatchString(trialText) || trial.StudyType == domain.StudyObservational {
		score -= 0.1
	}

	switch {
	case trial.Status.IsOpen():
		score += 0.1
	case trial.Status.IsClosed():
		score -= 0.2
	}

	for _, cancerType := range cancerTypes {
		if strings.Contains(patientText, cancerType) && strings.Contains(trialText, cancerType) {
			score += 0.3
			break
		}
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// conditionWordInText reports whether any meaningful word of any patient
// condition appears in the trial text.
func conditionWordInText(conditions []string, trialText string) bool {
	for _, condition := range conditions {
		for _, word := range strings.Fields(strings.ToLower(condition)) {
			word = strings.Trim(word, "-,.")
			if len(word) < 4 {
				continue
			}
			if strings.Contains(trialText, word) {
				return true
			}
		}
	}
	return false
}

type scoredCandidate struct {
	trial domain.Trial
	score float64
}

// filterByRelevance scores each candidate, drops those below the threshold,
// and returns the survivors ordered by relevance, best first, truncated to
// limit. A scoring panic marks the trial borderline instead of dropping it.
func filterByRelevance(profile *patientProfile, trials []domain.Trial, limit int, logger *logrus.Logger) []domain.Trial {
	scored := make([]scoredCandidate, 0, len(trials))
	for _, trial := range trials {
		score := safeScore(profile, trial, logger)
		if score < relevanceThreshold {
			continue
		}
		scored = append(scored, scoredCandidate{trial: trial, score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}

	kept := make([]domain.Trial, len(scored))
	for i, sc := range scored {
		kept[i] = sc.trial
	}
	return kept
}

// safeScore shields the pipeline from a scoring panic on malformed data
func safeScore(profile *patientProfile, trial domain.Trial, logger *logrus.Logger) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"nct_id": trial.NCTID,
				"panic":  r,
			}).Error("Relevance scoring failed, treating trial as borderline")
			score = relevanceThreshold
		}
	}()
	return scoreRelevance(profile, &trial)
}
