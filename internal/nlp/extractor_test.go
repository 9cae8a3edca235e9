package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-match-server/internal/domain"
)

func TestExtractCompoundConditionPreserved(t *testing.T) {
	extractor := NewExtractor()

	entities := extractor.Extract("52 year old woman with triple-negative breast cancer, stage 4, on pembrolizumab")

	assert.Contains(t, entities.Conditions, "triple-negative breast cancer")
	assert.NotContains(t, entities.Conditions, "breast cancer",
		"substring of a compound must not duplicate it")
	assert.NotContains(t, entities.Conditions, "cancer")
	require.NotNil(t, entities.Demographics.Age)
	assert.Equal(t, 52, *entities.Demographics.Age)
	assert.Equal(t, domain.SexFemale, entities.Demographics.Sex)
	assert.Contains(t, entities.Medications, "pembrolizumab")
}

func TestExtractConditions(t *testing.T) {
	extractor := NewExtractor()

	tests := []struct {
		name        string
		text        string
		want        []string
		wantAbsent  []string
	}{
		{
			name: "single term",
			text: "patient diagnosed with asthma and hypertension",
			want: []string{"asthma", "hypertension"},
		},
		{
			name:       "compound shadows single",
			text:       "history of type 2 diabetes",
			want:       []string{"type 2 diabetes"},
			wantAbsent: []string{"diabetes"},
		},
		{
			name:       "longer compound shadows shorter compound",
			text:       "non-small cell lung cancer confirmed by biopsy",
			want:       []string{"non-small cell lung cancer"},
			wantAbsent: []string{"lung cancer", "cancer"},
		},
		{
			name: "hyphen and space interchangeable",
			text: "triple negative breast cancer",
			want: []string{"triple-negative breast cancer"},
		},
		{
			name: "unrelated terms coexist",
			text: "breast cancer with comorbid depression",
			want: []string{"breast cancer", "depression"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities := extractor.Extract(tt.text)
			for _, term := range tt.want {
				assert.Contains(t, entities.Conditions, term)
			}
			for _, term := range tt.wantAbsent {
				assert.NotContains(t, entities.Conditions, term)
			}
		})
	}
}

func TestExtractExcludedConditions(t *testing.T) {
	extractor := NewExtractor()

	text := "Inclusion: adults with breast cancer.\n" +
		"Exclusion: active hepatitis or prior stroke.\n" +
		"Contraindication: uncontrolled hypertension"

	entities := extractor.Extract(text)

	assert.Contains(t, entities.Conditions, "breast cancer")
	assert.Contains(t, entities.ExcludedConditions, "hepatitis")
	assert.Contains(t, entities.ExcludedConditions, "stroke")
	assert.Contains(t, entities.ExcludedConditions, "hypertension")
	assert.NotContains(t, entities.ExcludedConditions, "breast cancer",
		"inclusion section must not leak into exclusions")
}

func TestExtractDemographics(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantAge *int
		wantSex domain.Sex
	}{
		{"age prefix", "age: 64, male patient", domain.IntPtr(64), domain.SexMale},
		{"year old", "a 33-year-old man", domain.IntPtr(33), domain.SexMale},
		{"yo shorthand", "45 yo female", domain.IntPtr(45), domain.SexFemale},
		{"yr abbreviation", "70 yr old woman", domain.IntPtr(70), domain.SexFemale},
		{"stage number not an age", "stage 4 melanoma in a woman", nil, domain.SexFemale},
		{"female not mistaken for male", "female participant", nil, domain.SexFemale},
		{"no demographics", "metastatic disease", nil, ""},
	}

	extractor := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities := extractor.Extract(tt.text)
			if tt.wantAge == nil {
				assert.Nil(t, entities.Demographics.Age)
			} else {
				require.NotNil(t, entities.Demographics.Age)
				assert.Equal(t, *tt.wantAge, *entities.Demographics.Age)
			}
			assert.Equal(t, tt.wantSex, entities.Demographics.Sex)
		})
	}
}

func TestExtractAgeRange(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantMin *int
		wantMax *int
	}{
		{"dash range", "participants 18-65 years of age", domain.IntPtr(18), domain.IntPtr(65)},
		{"to range", "18 to 75 years", domain.IntPtr(18), domain.IntPtr(75)},
		{"between", "between 21 and 80", domain.IntPtr(21), domain.IntPtr(80)},
		{"aged to", "aged 40 to 70", domain.IntPtr(40), domain.IntPtr(70)},
		{"minimum only", "minimum age: 18", domain.IntPtr(18), nil},
		{"over", "adults over 50", domain.IntPtr(50), nil},
		{"maximum only", "maximum age 85", nil, domain.IntPtr(85)},
		{"under", "children under 12", nil, domain.IntPtr(12)},
		{"none", "no age limits stated", nil, nil},
	}

	extractor := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := extractor.Extract(tt.text).AgeRequirements
			if tt.wantMin == nil {
				assert.Nil(t, r.Min)
			} else {
				require.NotNil(t, r.Min)
				assert.Equal(t, *tt.wantMin, *r.Min)
			}
			if tt.wantMax == nil {
				assert.Nil(t, r.Max)
			} else {
				require.NotNil(t, r.Max)
				assert.Equal(t, *tt.wantMax, *r.Max)
			}
		})
	}
}

func TestExtractGenderRequirement(t *testing.T) {
	tests := []struct {
		name string
		text string
		want domain.GenderRequirement
	}{
		{"male only", "male only study", domain.GenderMale},
		{"only males", "enrolling only males", domain.GenderMale},
		{"female only", "females only", domain.GenderFemale},
		{"all genders", "open to all genders", domain.GenderAll},
		{"both sexes", "both sexes eligible", domain.GenderAll},
		{"pregnancy does not force gender", "pregnant or nursing participants excluded", ""},
		{"unspecified", "adults with diabetes", ""},
	}

	extractor := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractor.Extract(tt.text).GenderRequirements)
		})
	}
}

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase and collapse", "Breast   Cancer\n\tStage 4", "breast cancer stage 4"},
		{"with without", "tumor w/ metastasis w/o symptoms", "tumor with metastasis without symptoms"},
		{"abbreviations", "hx of dx and tx, 5 yrs", "history of diagnosis and treatment, 5 years"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Preprocess(tt.in))
		})
	}
}

func TestExtractIdempotent(t *testing.T) {
	extractor := NewExtractor()
	text := "52 YR old Woman w/ Triple-Negative Breast Cancer on pembrolizumab"

	first := extractor.Extract(text)
	second := extractor.Extract(text)
	preprocessed := extractor.Extract(Preprocess(text))

	assert.Equal(t, first, second)
	assert.Equal(t, first, preprocessed)
}

func TestExtractMedicationsProceduresLabs(t *testing.T) {
	extractor := NewExtractor()
	entities := extractor.Extract(
		"on metformin and insulin after mastectomy, monitoring hba1c and creatinine")

	assert.ElementsMatch(t, []string{"metformin", "insulin"}, entities.Medications)
	assert.Contains(t, entities.Procedures, "mastectomy")
	assert.ElementsMatch(t, []string{"hba1c", "creatinine"}, entities.LabValues)
}

func TestComplexityScore(t *testing.T) {
	assert.Equal(t, 0.0, ComplexityScore("", 0))

	long := "- criterion one and two\n- criterion two or three\n- not criterion three\n"
	score := ComplexityScore(long, 10)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)

	// More bullets and entities must not decrease the score
	denser := long + "- four\n- five\n- six and seven\n"
	assert.GreaterOrEqual(t, ComplexityScore(denser, 20), score)
}

func TestAnnotateEligibility(t *testing.T) {
	extractor := NewExtractor()
	criteria := &domain.EligibilityCriteria{
		RawText: "Inclusion:\n- adults with breast cancer\nExclusion:\n- active hepatitis",
	}

	extractor.AnnotateEligibility(criteria)

	require.NotNil(t, criteria.ExtractedEntities)
	assert.Contains(t, criteria.ExtractedEntities.Conditions, "breast cancer")
	assert.Contains(t, criteria.ExtractedEntities.ExcludedConditions, "hepatitis")
	assert.Greater(t, criteria.ComplexityScore, 0.0)
}
