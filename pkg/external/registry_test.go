package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-match-server/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestRegistryClient(t *testing.T, handler http.Handler) (*RegistryClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewRegistryClient(RegistryConfig{
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		RateLimit:  100,
		RateWindow: time.Minute,
		MaxRetries: 2,
	}, testLogger())
	return client, server
}

const sampleStudyJSON = `{
	"protocolSection": {
		"identificationModule": {"nctId": "NCT04444444", "briefTitle": "Pembrolizumab in TNBC"},
		"statusModule": {"overallStatus": "RECRUITING"},
		"designModule": {"studyType": "INTERVENTIONAL", "phases": ["PHASE2", "PHASE3"], "designInfo": {"primaryPurpose": "TREATMENT"}},
		"conditionsModule": {"conditions": ["Triple Negative Breast Cancer"]},
		"eligibilityModule": {
			"eligibilityCriteria": "Inclusion Criteria:\n- Age 18 or older\n- Histologically confirmed TNBC\n  with measurable disease\nExclusion Criteria:\n- Prior checkpoint inhibitor therapy\n- Active autoimmune disease",
			"sex": "FEMALE",
			"minimumAge": "18 Years",
			"maximumAge": "75 Years"
		},
		"contactsLocationsModule": {
			"centralContacts": [{"name": "Study Desk", "phone": "555-0100"}],
			"locations": [{"facility": "General Hospital", "city": "Boston", "state": "MA", "country": "US"}]
		},
		"descriptionModule": {"briefSummary": "A study of pembrolizumab."}
	}
}`

func TestRegistrySearchNormalizesStudies(t *testing.T) {
	client, _ := newTestRegistryClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "breast cancer", r.URL.Query().Get("query.cond"))
		assert.Contains(t, r.URL.Query().Get("filter.overallStatus"), "RECRUITING")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"studies": [` + sampleStudyJSON + `], "totalCount": 1}`))
	}))

	result, err := client.Search(context.Background(), SearchParams{
		Conditions: []string{"breast cancer"},
	})
	require.NoError(t, err)
	require.Len(t, result.Trials, 1)
	assert.Equal(t, 1, result.TotalCount)

	trial := result.Trials[0]
	assert.Equal(t, "NCT04444444", trial.NCTID)
	assert.Equal(t, domain.StatusRecruiting, trial.Status)
	assert.Equal(t, domain.StudyInterventional, trial.StudyType)
	assert.Equal(t, domain.PurposeTreatment, trial.PrimaryPurpose)
	assert.Equal(t, domain.Phase3, trial.Phase, "highest declared phase wins")
	assert.Equal(t, domain.GenderFemale, trial.Eligibility.GenderRequirements)
	require.NotNil(t, trial.Eligibility.AgeRequirements.Min)
	require.NotNil(t, trial.Eligibility.AgeRequirements.Max)
	assert.Equal(t, 18, *trial.Eligibility.AgeRequirements.Min)
	assert.Equal(t, 75, *trial.Eligibility.AgeRequirements.Max)
	require.Len(t, trial.Locations, 1)
	require.NotNil(t, trial.Locations[0].Contact)
	assert.Equal(t, "Study Desk", trial.Locations[0].Contact.Name)
}

func TestRegistrySearchRetriesRateLimit(t *testing.T) {
	var calls int32
	client, _ := newTestRegistryClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"studies": [], "totalCount": 0}`))
	}))

	result, err := client.Search(context.Background(), SearchParams{Keywords: []string{"diabetes"}})
	require.NoError(t, err)
	assert.Empty(t, result.Trials)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "429 with Retry-After must be retried once")
}

func TestRegistrySearchClientSideAgeFilter(t *testing.T) {
	client, _ := newTestRegistryClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"studies": [` + sampleStudyJSON + `], "totalCount": 1}`))
	}))

	tooOld := domain.NewAgeRange(domain.IntPtr(80), domain.IntPtr(80))
	result, err := client.Search(context.Background(), SearchParams{AgeRange: &tooOld})
	require.NoError(t, err)
	assert.Empty(t, result.Trials, "trial capped at 75 must not match an 80 year old")

	inRange := domain.NewAgeRange(domain.IntPtr(52), domain.IntPtr(52))
	result, err = client.Search(context.Background(), SearchParams{AgeRange: &inRange})
	require.NoError(t, err)
	assert.Len(t, result.Trials, 1)
}

func TestRegistryGetByNCTID(t *testing.T) {
	var calls int32
	client, _ := newTestRegistryClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Contains(t, r.URL.Path, "NCT04444444")
		w.Write([]byte(sampleStudyJSON))
	}))

	trial, err := client.GetByNCTID(context.Background(), "NCT04444444")
	require.NoError(t, err)
	assert.Equal(t, "Pembrolizumab in TNBC", trial.Title)

	// Second fetch must come from the TTL cache
	_, err = client.GetByNCTID(context.Background(), "NCT04444444")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRegistryGetByNCTIDNotFound(t *testing.T) {
	client, _ := newTestRegistryClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.GetByNCTID(context.Background(), "NCT09999999")
	assert.ErrorIs(t, err, ErrTrialNotFound)
}

func TestRegistryGetByNCTIDInvalidID(t *testing.T) {
	client, _ := newTestRegistryClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("invalid ids must not reach the registry")
	}))

	_, err := client.GetByNCTID(context.Background(), "NCT123")
	require.Error(t, err)
	var regErr *RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, KindValidation, regErr.Kind)
}

func TestRegistryClientErrorsFailFast(t *testing.T) {
	var calls int32
	client, _ := newTestRegistryClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, err := client.Search(context.Background(), SearchParams{Keywords: []string{"x"}})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx responses must not be retried")
}

func TestParseAgeYears(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *int
	}{
		{"years", "18 Years", domain.IntPtr(18)},
		{"months floor", "30 Months", domain.IntPtr(2)},
		{"days floor", "400 Days", domain.IntPtr(1)},
		{"sub-year months", "6 Months", domain.IntPtr(0)},
		{"empty", "", nil},
		{"not applicable", "N/A", nil},
		{"garbage", "unknown", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAgeYears(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestParseEligibilityText(t *testing.T) {
	raw := "Inclusion Criteria:\n" +
		"- Age 18 or older\n" +
		"* ECOG performance status 0-1\n" +
		"1. Histologically confirmed disease\n" +
		"   with measurable lesions\n" +
		"Exclusion Criteria:\n" +
		"• Pregnancy or breastfeeding\n" +
		"a) Prior systemic therapy\n"

	inclusion, exclusion := ParseEligibilityText(raw)

	assert.Equal(t, []string{
		"Age 18 or older",
		"ECOG performance status 0-1",
		"Histologically confirmed disease with measurable lesions",
	}, inclusion)
	assert.Equal(t, []string{
		"Pregnancy or breastfeeding",
		"Prior systemic therapy",
	}, exclusion)
}

func TestParseEligibilityTextEmpty(t *testing.T) {
	inclusion, exclusion := ParseEligibilityText("   \n  ")
	assert.Nil(t, inclusion)
	assert.Nil(t, exclusion)
}
