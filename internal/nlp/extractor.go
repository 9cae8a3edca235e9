package nlp

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/trial-match-server/internal/domain"
)

// Extractor pulls medical entities out of clinical free text. Extraction is
// a pure function of the input text; the extractor holds only compiled
// patterns and is safe for concurrent use.
type Extractor struct {
	compounds   []termPattern
	conditions  []termPattern
	medications []termPattern
	procedures  []termPattern
	labs        []termPattern
}

type termPattern struct {
	term    string
	pattern *regexp.Regexp
}

// termRegexp builds a word-boundary pattern for a dictionary term, with
// hyphen and whitespace interchangeable between tokens.
func termRegexp(term string) *regexp.Regexp {
	tokens := strings.FieldsFunc(term, func(r rune) bool {
		return r == ' ' || r == '-'
	})
	quoted := make([]string, len(tokens))
	for i, token := range tokens {
		quoted[i] = regexp.QuoteMeta(token)
	}
	return regexp.MustCompile(`\b` + strings.Join(quoted, `[\s-]+`) + `\b`)
}

func compilePatterns(terms []string) []termPattern {
	patterns := make([]termPattern, len(terms))
	for i, term := range terms {
		patterns[i] = termPattern{term: term, pattern: termRegexp(term)}
	}
	return patterns
}

// NewExtractor creates an extractor with all dictionaries compiled
func NewExtractor() *Extractor {
	return &Extractor{
		compounds:   compilePatterns(compoundConditions),
		conditions:  compilePatterns(conditionTerms),
		medications: compilePatterns(medicationTerms),
		procedures:  compilePatterns(procedureTerms),
		labs:        compilePatterns(labTerms),
	}
}

var (
	slashWithout   = regexp.MustCompile(`\bw/o\b`)
	slashWith      = regexp.MustCompile(`\bw/`)
	abbrevPattern  = regexp.MustCompile(`\b(hx|dx|tx|pt|yrs|yr|mos|mo)\b`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// Preprocess lowercases, expands abbreviations, and collapses whitespace.
// Extraction over preprocessed text equals extraction over the original.
func Preprocess(text string) string {
	out := strings.ToLower(text)
	out = slashWithout.ReplaceAllString(out, "without")
	out = slashWith.ReplaceAllString(out, "with ")
	out = abbrevPattern.ReplaceAllStringFunc(out, func(match string) string {
		return abbreviations[match]
	})
	out = whitespaceRuns.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// Extract runs the full entity extraction pipeline over clinical text
func (e *Extractor) Extract(text string) domain.ExtractedEntities {
	normalized := Preprocess(text)

	conditions := e.extractConditions(normalized)
	entities := domain.ExtractedEntities{
		Conditions:         conditions,
		ExcludedConditions: e.extractExcluded(normalized),
		Medications:        matchTerms(normalized, e.medications, nil),
		Procedures:         matchTerms(normalized, e.procedures, nil),
		LabValues:          matchTerms(normalized, e.labs, nil),
		Demographics:       extractDemographics(normalized),
		AgeRequirements:    extractAgeRange(normalized),
		GenderRequirements: extractGenderRequirement(normalized),
	}
	return entities
}

// extractConditions runs the compound pass first, then single terms that do
// not overlap a recorded compound.
func (e *Extractor) extractConditions(text string) []string {
	found := make([]string, 0, 4)
	for _, compound := range e.compounds {
		if compound.pattern.MatchString(text) && !shadowedBy(found, compound.term) {
			found = append(found, compound.term)
		}
	}
	return dedupe(matchTerms(text, e.conditions, found), found)
}

// extractExcluded re-runs the condition pass over exclusion-context spans
func (e *Extractor) extractExcluded(text string) []string {
	var excluded []string
	for _, span := range exclusionSpans(text) {
		excluded = append(excluded, e.extractConditions(span)...)
	}
	return dedupe(excluded, nil)
}

// matchTerms collects dictionary hits, skipping terms shadowed by a compound
func matchTerms(text string, patterns []termPattern, compounds []string) []string {
	var found []string
	for _, tp := range patterns {
		if tp.pattern.MatchString(text) && !shadowedBy(compounds, tp.term) {
			found = append(found, tp.term)
		}
	}
	return found
}

// shadowedBy reports whether term is a strict substring of any recorded
// compound, comparing with hyphens normalized to spaces.
func shadowedBy(compounds []string, term string) bool {
	normalizedTerm := strings.ReplaceAll(term, "-", " ")
	for _, compound := range compounds {
		normalizedCompound := strings.ReplaceAll(compound, "-", " ")
		if normalizedCompound != normalizedTerm && strings.Contains(normalizedCompound, normalizedTerm) {
			return true
		}
	}
	return false
}

// dedupe removes repeats preserving first-seen order; seed entries count as
// already seen and lead the result.
func dedupe(terms []string, seed []string) []string {
	seen := make(map[string]bool, len(terms)+len(seed))
	out := make([]string, 0, len(terms)+len(seed))
	for _, term := range seed {
		if !seen[term] {
			seen[term] = true
			out = append(out, term)
		}
	}
	for _, term := range terms {
		if !seen[term] {
			seen[term] = true
			out = append(out, term)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Exclusion spans

var exclusionHeading = regexp.MustCompile(`(?:exclusions?|excluded?|not eligible|contraindications?)\s*:`)
var anyHeading = regexp.MustCompile(`(?:inclusions?|exclusions?|excluded?|eligible|eligibility|not eligible|contraindications?)\s*:`)

// exclusionSpans returns the text regions introduced by an exclusion marker,
// each running to the next section heading or end of text.
func exclusionSpans(text string) []string {
	var spans []string
	for _, loc := range exclusionHeading.FindAllStringIndex(text, -1) {
		rest := text[loc[1]:]
		if next := anyHeading.FindStringIndex(rest); next != nil {
			rest = rest[:next[0]]
		}
		if trimmed := strings.TrimSpace(rest); trimmed != "" {
			spans = append(spans, trimmed)
		}
	}
	return spans
}

// Demographics

var agePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bage[:\s]+(\d{1,3})\b`),
	regexp.MustCompile(`\b(\d{1,3})[\s-]*years?[\s-]*old\b`),
	regexp.MustCompile(`\b(\d{1,3})\s*(?:yo|y/o)\b`),
}

var (
	femalePattern = regexp.MustCompile(`\b(?:female|woman|women|girl)\b`)
	malePattern   = regexp.MustCompile(`\b(?:male|man|men|boy)\b`)
)

// extractDemographics pulls patient age and sex mentions. Age requires
// explicit context (age prefix or year-old suffix) so stage numbers and
// other bare integers never match.
func extractDemographics(text string) domain.Demographics {
	demo := domain.Demographics{}

	for _, pattern := range agePatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			if age, err := strconv.Atoi(m[1]); err == nil {
				demo.Age = &age
				break
			}
		}
	}

	femaleAt := femalePattern.FindStringIndex(text)
	maleAt := malePattern.FindStringIndex(text)
	switch {
	case femaleAt != nil && (maleAt == nil || femaleAt[0] < maleAt[0]):
		demo.Sex = domain.SexFemale
	case maleAt != nil:
		demo.Sex = domain.SexMale
	}

	return demo
}

// Age-range requirements

var ageRangePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d{1,3})\s*(?:-|to)\s*(\d{1,3})\s*years\b`),
	regexp.MustCompile(`\bbetween\s+(\d{1,3})\s+and\s+(\d{1,3})\b`),
	regexp.MustCompile(`\baged\s+(\d{1,3})\s+to\s+(\d{1,3})\b`),
}

var minAgePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bminimum age[:\s]*(\d{1,3})\b`),
	regexp.MustCompile(`\bover\s+(\d{1,3})\b`),
	regexp.MustCompile(`\b(\d{1,3})\s+years\s+(?:or|and)\s+older\b`),
}

var maxAgePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bmaximum age[:\s]*(\d{1,3})\b`),
	regexp.MustCompile(`\bunder\s+(\d{1,3})\b`),
	regexp.MustCompile(`\b(\d{1,3})\s+years\s+(?:or|and)\s+younger\b`),
}

// extractAgeRange finds eligibility age bounds in criteria-style text
func extractAgeRange(text string) domain.AgeRange {
	for _, pattern := range ageRangePatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			min, err1 := strconv.Atoi(m[1])
			max, err2 := strconv.Atoi(m[2])
			if err1 == nil && err2 == nil && min <= max {
				return domain.NewAgeRange(&min, &max)
			}
		}
	}

	r := domain.AgeRange{Units: "years"}
	for _, pattern := range minAgePatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			if min, err := strconv.Atoi(m[1]); err == nil {
				r.Min = &min
				break
			}
		}
	}
	for _, pattern := range maxAgePatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			if max, err := strconv.Atoi(m[1]); err == nil {
				r.Max = &max
				break
			}
		}
	}
	return r
}

// Gender requirements

var (
	maleOnlyPattern   = regexp.MustCompile(`\b(?:males?|men)\s+only\b|\bonly\s+(?:males?|men)\b`)
	femaleOnlyPattern = regexp.MustCompile(`\b(?:females?|women)\s+only\b|\bonly\s+(?:females?|women)\b`)
	allGendersPattern = regexp.MustCompile(`\ball genders\b|\bboth sexes\b|\bany gender\b`)
)

// extractGenderRequirement detects sex restrictions in criteria text.
// Pregnancy and nursing references alone never force a gender requirement.
func extractGenderRequirement(text string) domain.GenderRequirement {
	switch {
	case femaleOnlyPattern.MatchString(text):
		return domain.GenderFemale
	case maleOnlyPattern.MatchString(text):
		return domain.GenderMale
	case allGendersPattern.MatchString(text):
		return domain.GenderAll
	}
	return ""
}

// Complexity scoring

var (
	bulletLine       = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+`)
	logicalOperators = regexp.MustCompile(`\b(?:and|or|not)\b`)
)

// ComplexityScore rates eligibility criteria text by length, entity density,
// bullet count, and logical-operator count, each capped before weighting.
func ComplexityScore(text string, totalEntities int) float64 {
	length := float64(len(text))
	bullets := float64(len(bulletLine.FindAllString(text, -1)))
	operators := float64(len(logicalOperators.FindAllString(strings.ToLower(text), -1)))

	score := 0.2*math.Min(1, length/1000) +
		0.3*math.Min(1, float64(totalEntities)/20) +
		0.3*math.Min(1, bullets/10) +
		0.2*math.Min(1, operators/5)
	return score
}

// AnnotateEligibility fills the derived fields of parsed criteria: extracted
// entities from the raw text and the complexity score.
func (e *Extractor) AnnotateEligibility(criteria *domain.EligibilityCriteria) {
	if criteria == nil || criteria.RawText == "" {
		return
	}
	entities := e.Extract(criteria.RawText)
	criteria.ExtractedEntities = &entities
	criteria.ComplexityScore = ComplexityScore(criteria.RawText, entities.TotalEntities())
}
