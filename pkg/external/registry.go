package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/trial-match-server/internal/domain"
)

const (
	// DefaultRegistryBaseURL is the public clinical-trials v2 endpoint
	DefaultRegistryBaseURL = "https://clinicaltrials.gov/api/v2/studies"
	// maxRegistryPageSize is the registry's hard page-size ceiling
	maxRegistryPageSize = 1000
)

// RegistryConfig represents configuration for the registry client
type RegistryConfig struct {
	BaseURL    string        `json:"base_url"`
	Timeout    time.Duration `json:"timeout"`
	RateLimit  int           `json:"rate_limit"`  // requests per window
	RateWindow time.Duration `json:"rate_window"` // sliding window size
	MaxRetries int           `json:"max_retries"`
	PageSize   int           `json:"page_size"`
	CacheTTL   time.Duration `json:"cache_ttl"`
}

// RegistryClient handles interactions with the external clinical-trials
// registry. Requests serialize through a process-scoped sliding-window rate
// limiter and pass a circuit breaker; retries follow the shared retry policy.
type RegistryClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *SlidingWindowLimiter
	breaker    *gobreaker.CircuitBreaker
	cache      *gocache.Cache
	maxRetries int
	pageSize   int
	logger     *logrus.Logger
}

// NewRegistryClient creates a new registry client
func NewRegistryClient(config RegistryConfig, logger *logrus.Logger) *RegistryClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultRegistryBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 100
	}
	if config.RateWindow == 0 {
		config.RateWindow = 60 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.PageSize == 0 {
		config.PageSize = 100
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = 15 * time.Minute
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "TrialsRegistry",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &RegistryClient{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    NewSlidingWindowLimiter(config.RateLimit, config.RateWindow),
		breaker:    breaker,
		cache:      gocache.New(config.CacheTTL, 2*config.CacheTTL),
		maxRetries: config.MaxRetries,
		pageSize:   config.PageSize,
		logger:     logger,
	}
}

// GeoFilter restricts a search to trials with a site near a point
type GeoFilter struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	DistanceMiles int     `json:"distance_miles"`
}

// SearchParams describes a registry search
type SearchParams struct {
	Conditions []string
	Keywords   []string
	Statuses   []domain.TrialStatus
	Location   *GeoFilter
	AgeRange   *domain.AgeRange
	PageSize   int
	PageToken  string
}

// SearchResult is one page of registry search results
type SearchResult struct {
	Trials        []domain.Trial
	TotalCount    int
	NextPageToken string
}

// defaultStatusFilter admits trials a patient could still join
var defaultStatusFilter = []domain.TrialStatus{
	domain.StatusRecruiting,
	domain.StatusNotYetRecruiting,
	domain.StatusActiveNotRecruiting,
}

// Search queries the registry for trials matching the given parameters.
// Age filtering happens client-side: the registry cannot filter by age
// directly, so trials whose declared range does not overlap the requested
// range are dropped after normalization.
func (c *RegistryClient) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := c.buildQueryParams(params)
	fullURL := fmt.Sprintf("%s?%s", c.baseURL, query.Encode())

	start := time.Now()
	payload, err := c.fetchWithBreaker(ctx, fullURL)
	if err != nil {
		return nil, err
	}

	var apiResp studiesResponse
	if err := json.Unmarshal(payload, &apiResp); err != nil {
		return nil, &RegistryError{Kind: KindOther, Snippet: bodySnippet(payload), Err: err}
	}

	trials := make([]domain.Trial, 0, len(apiResp.Studies))
	for _, study := range apiResp.Studies {
		trial := convertStudyToTrial(study)
		if params.AgeRange != nil && !trial.Eligibility.AgeRequirements.Overlaps(*params.AgeRange) {
			continue
		}
		trials = append(trials, trial)
	}

	c.logger.WithFields(logrus.Fields{
		"api":              "trials_registry",
		"conditions":       len(params.Conditions),
		"total_count":      apiResp.TotalCount,
		"studies_returned": len(apiResp.Studies),
		"after_age_filter": len(trials),
		"duration_ms":      time.Since(start).Milliseconds(),
	}).Info("Registry search completed")

	return &SearchResult{
		Trials:        trials,
		TotalCount:    apiResp.TotalCount,
		NextPageToken: apiResp.NextPageToken,
	}, nil
}

// GetByNCTID fetches a single trial record, serving repeats from a TTL cache
func (c *RegistryClient) GetByNCTID(ctx context.Context, nctID string) (*domain.Trial, error) {
	if err := domain.ValidateNCTID(nctID); err != nil {
		return nil, &RegistryError{Kind: KindValidation, Err: err}
	}

	if cached, found := c.cache.Get(nctID); found {
		trial := cached.(domain.Trial)
		return &trial, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("format", "json")
	fullURL := fmt.Sprintf("%s/%s?%s", c.baseURL, nctID, query.Encode())

	payload, err := c.fetchWithBreaker(ctx, fullURL)
	if err != nil {
		return nil, err
	}

	var study studyData
	if err := json.Unmarshal(payload, &study); err != nil {
		return nil, &RegistryError{Kind: KindOther, Snippet: bodySnippet(payload), Err: err}
	}

	trial := convertStudyToTrial(study)
	c.cache.Set(nctID, trial, gocache.DefaultExpiration)
	return &trial, nil
}

// PatientExcerpt carries the minimal patient-derived fields needed to build
// a registry search; it deliberately has no room for identifiers.
type PatientExcerpt struct {
	Conditions []string
	Keywords   []string
	Age        *int
	Latitude   float64
	Longitude  float64
}

// SearchForPatient builds filters from a patient excerpt and iterates pages
// until maxResults trials have been collected or the registry runs out.
func (c *RegistryClient) SearchForPatient(ctx context.Context, excerpt PatientExcerpt, maxDistanceMiles, maxResults int) ([]domain.Trial, error) {
	if maxResults <= 0 {
		maxResults = c.pageSize
	}

	params := SearchParams{
		Conditions: excerpt.Conditions,
		Keywords:   excerpt.Keywords,
		Statuses:   defaultStatusFilter,
		PageSize:   c.pageSize,
	}
	if excerpt.Age != nil {
		r := domain.NewAgeRange(excerpt.Age, excerpt.Age)
		params.AgeRange = &r
	}
	if excerpt.Latitude != 0 || excerpt.Longitude != 0 {
		if maxDistanceMiles <= 0 {
			maxDistanceMiles = 50
		}
		params.Location = &GeoFilter{
			Latitude:      excerpt.Latitude,
			Longitude:     excerpt.Longitude,
			DistanceMiles: maxDistanceMiles,
		}
	}

	collected := make([]domain.Trial, 0, maxResults)
	for {
		page, err := c.Search(ctx, params)
		if err != nil {
			return collected, err
		}
		for _, trial := range page.Trials {
			collected = append(collected, trial)
			if len(collected) >= maxResults {
				return collected, nil
			}
		}
		if page.NextPageToken == "" {
			return collected, nil
		}
		params.PageToken = page.NextPageToken
	}
}

// fetchWithBreaker executes a GET through the circuit breaker and retry loop
func (c *RegistryClient) fetchWithBreaker(ctx context.Context, fullURL string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		var payload []byte
		err := Retry(ctx, c.maxRetries, func(ctx context.Context, attempt int) error {
			body, opErr := c.doGet(ctx, fullURL, attempt)
			if opErr != nil {
				return opErr
			}
			payload = body
			return nil
		})
		return payload, err
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &RegistryError{Kind: KindNetwork, Err: err}
		}
		return nil, err
	}
	return result.([]byte), nil
}

// doGet performs one attempt and classifies the outcome for the retry loop
func (c *RegistryClient) doGet(ctx context.Context, fullURL string, attempt int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &RegistryError{Kind: KindOther, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, RetryAfter(Backoff(attempt), &RegistryError{Kind: KindTimeout, Err: err})
		}
		return nil, &RegistryError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, &RegistryError{Kind: KindNetwork, Err: readErr}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, &RegistryError{Kind: KindValidation, Status: resp.StatusCode, Snippet: bodySnippet(body), Err: ErrTrialNotFound}
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.logger.WithFields(logrus.Fields{
			"api":         "trials_registry",
			"retry_after": wait.Seconds(),
			"attempt":     attempt,
		}).Warn("Registry rate limit hit")
		return nil, RetryAfter(wait, &RegistryError{Kind: KindRateLimit, Status: resp.StatusCode, RetryAfter: wait})
	case resp.StatusCode >= 500:
		return nil, RetryAfter(Backoff(attempt), &RegistryError{Kind: KindOther, Status: resp.StatusCode, Snippet: bodySnippet(body)})
	default:
		// Remaining 4xx are request errors; retrying cannot help
		return nil, &RegistryError{Kind: KindValidation, Status: resp.StatusCode, Snippet: bodySnippet(body)}
	}
}

// buildQueryParams constructs registry query parameters from search params
func (c *RegistryClient) buildQueryParams(params SearchParams) url.Values {
	query := url.Values{}
	query.Set("format", "json")
	query.Set("countTotal", "true")

	if len(params.Conditions) > 0 {
		query.Set("query.cond", strings.Join(params.Conditions, " OR "))
	}
	if len(params.Keywords) > 0 {
		query.Set("query.term", strings.Join(params.Keywords, " OR "))
	}

	statuses := params.Statuses
	if len(statuses) == 0 {
		statuses = defaultStatusFilter
	}
	upper := make([]string, len(statuses))
	for i, s := range statuses {
		upper[i] = strings.ToUpper(string(s))
	}
	query.Set("filter.overallStatus", strings.Join(upper, ","))

	if params.Location != nil {
		query.Set("filter.geo", fmt.Sprintf("distance(%f,%f,%dmi)",
			params.Location.Latitude, params.Location.Longitude, params.Location.DistanceMiles))
	}

	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = c.pageSize
	}
	if pageSize > maxRegistryPageSize {
		pageSize = maxRegistryPageSize
	}
	query.Set("pageSize", strconv.Itoa(pageSize))

	if params.PageToken != "" {
		query.Set("pageToken", params.PageToken)
	}

	return query
}

// parseRetryAfter reads a Retry-After header in seconds, defaulting to 1s
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}

// Registry payload structures (clinical-trials API v2)

type studiesResponse struct {
	Studies       []studyData `json:"studies"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
	TotalCount    int         `json:"totalCount"`
}

type studyData struct {
	ProtocolSection protocolSection `json:"protocolSection"`
}

type protocolSection struct {
	IdentificationModule    identificationModule    `json:"identificationModule"`
	StatusModule            statusModule            `json:"statusModule"`
	DesignModule            designModule            `json:"designModule,omitempty"`
	ConditionsModule        conditionsModule        `json:"conditionsModule,omitempty"`
	ArmsInterventionsModule armsInterventionsModule `json:"armsInterventionsModule,omitempty"`
	EligibilityModule       eligibilityModule       `json:"eligibilityModule,omitempty"`
	ContactsLocationsModule contactsLocationsModule `json:"contactsLocationsModule,omitempty"`
	DescriptionModule       descriptionModule       `json:"descriptionModule,omitempty"`
	OutcomesModule          outcomesModule          `json:"outcomesModule,omitempty"`
}

type identificationModule struct {
	NCTID         string `json:"nctId"`
	BriefTitle    string `json:"briefTitle,omitempty"`
	OfficialTitle string `json:"officialTitle,omitempty"`
}

type statusModule struct {
	OverallStatus        string     `json:"overallStatus,omitempty"`
	StartDateStruct      dateStruct `json:"startDateStruct,omitempty"`
	CompletionDateStruct dateStruct `json:"completionDateStruct,omitempty"`
}

type dateStruct struct {
	Date string `json:"date,omitempty"`
}

type designModule struct {
	StudyType       string           `json:"studyType,omitempty"`
	Phases          []string         `json:"phases,omitempty"`
	DesignInfo      designInfo       `json:"designInfo,omitempty"`
	EnrollmentInfo  enrollmentInfo   `json:"enrollmentInfo,omitempty"`
}

type designInfo struct {
	PrimaryPurpose string `json:"primaryPurpose,omitempty"`
}

type enrollmentInfo struct {
	Count int `json:"count,omitempty"`
}

type conditionsModule struct {
	Conditions []string `json:"conditions,omitempty"`
}

type armsInterventionsModule struct {
	Interventions []interventionData `json:"interventions,omitempty"`
}

type interventionData struct {
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

type eligibilityModule struct {
	EligibilityCriteria string `json:"eligibilityCriteria,omitempty"`
	Sex                 string `json:"sex,omitempty"`
	MinimumAge          string `json:"minimumAge,omitempty"`
	MaximumAge          string `json:"maximumAge,omitempty"`
}

type contactsLocationsModule struct {
	CentralContacts []contactData  `json:"centralContacts,omitempty"`
	Locations       []locationData `json:"locations,omitempty"`
}

type contactData struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type locationData struct {
	Facility string `json:"facility,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Country  string `json:"country,omitempty"`
}

type descriptionModule struct {
	BriefSummary        string `json:"briefSummary,omitempty"`
	DetailedDescription string `json:"detailedDescription,omitempty"`
}

type outcomesModule struct {
	PrimaryOutcomes []outcomeData `json:"primaryOutcomes,omitempty"`
}

type outcomeData struct {
	Measure string `json:"measure,omitempty"`
}

// Normalization

// convertStudyToTrial normalizes a registry payload into the internal Trial
func convertStudyToTrial(study studyData) domain.Trial {
	protocol := study.ProtocolSection

	trial := domain.Trial{
		NCTID:               protocol.IdentificationModule.NCTID,
		Title:               protocol.IdentificationModule.BriefTitle,
		BriefSummary:        protocol.DescriptionModule.BriefSummary,
		DetailedDescription: protocol.DescriptionModule.DetailedDescription,
		Status:              normalizeStatus(protocol.StatusModule.OverallStatus),
		StudyType:           normalizeStudyType(protocol.DesignModule.StudyType),
		PrimaryPurpose:      normalizePurpose(protocol.DesignModule.DesignInfo.PrimaryPurpose),
		Phase:               normalizePhase(protocol.DesignModule.Phases),
		Conditions:          protocol.ConditionsModule.Conditions,
		StartDate:           protocol.StatusModule.StartDateStruct.Date,
		CompletionDate:      protocol.StatusModule.CompletionDateStruct.Date,
	}

	if trial.Title == "" {
		trial.Title = protocol.IdentificationModule.OfficialTitle
	}
	if protocol.DesignModule.EnrollmentInfo.Count > 0 {
		trial.Enrollment = domain.IntPtr(protocol.DesignModule.EnrollmentInfo.Count)
	}

	for _, intervention := range protocol.ArmsInterventionsModule.Interventions {
		if intervention.Name != "" {
			trial.Interventions = append(trial.Interventions, intervention.Name)
		}
	}
	for _, outcome := range protocol.OutcomesModule.PrimaryOutcomes {
		if outcome.Measure != "" {
			trial.PrimaryOutcomes = append(trial.PrimaryOutcomes, outcome.Measure)
		}
	}

	elig := protocol.EligibilityModule
	inclusion, exclusion := ParseEligibilityText(elig.EligibilityCriteria)
	trial.Eligibility = domain.EligibilityCriteria{
		RawText:            elig.EligibilityCriteria,
		Inclusion:          inclusion,
		Exclusion:          exclusion,
		AgeRequirements:    normalizeAgeRange(elig.MinimumAge, elig.MaximumAge),
		GenderRequirements: normalizeGender(elig.Sex),
	}

	var contact *domain.Contact
	if len(protocol.ContactsLocationsModule.CentralContacts) > 0 {
		c := protocol.ContactsLocationsModule.CentralContacts[0]
		contact = &domain.Contact{Name: c.Name, Phone: c.Phone, Email: c.Email}
	}
	for _, loc := range protocol.ContactsLocationsModule.Locations {
		trial.Locations = append(trial.Locations, domain.TrialLocation{
			Facility: loc.Facility,
			City:     loc.City,
			State:    loc.State,
			Country:  loc.Country,
			Contact:  contact,
		})
	}

	return trial
}

// normalizeStatus maps registry status strings onto the internal enum
func normalizeStatus(status string) domain.TrialStatus {
	normalized := strings.ToLower(strings.TrimSpace(status))
	switch domain.TrialStatus(normalized) {
	case domain.StatusRecruiting, domain.StatusNotYetRecruiting, domain.StatusActiveNotRecruiting,
		domain.StatusCompleted, domain.StatusSuspended, domain.StatusTerminated,
		domain.StatusWithdrawn, domain.StatusEnrollingByInvitation,
		domain.StatusAvailable, domain.StatusNoLongerAvailable:
		return domain.TrialStatus(normalized)
	}
	return domain.TrialStatus(normalized)
}

// normalizeStudyType maps registry study types onto the internal enum
func normalizeStudyType(studyType string) domain.StudyType {
	switch strings.ToLower(strings.TrimSpace(studyType)) {
	case "interventional":
		return domain.StudyInterventional
	case "observational":
		return domain.StudyObservational
	case "expanded_access":
		return domain.StudyExpandedAccess
	}
	return ""
}

// normalizePurpose maps registry primary purposes onto the internal enum
func normalizePurpose(purpose string) domain.PrimaryPurpose {
	switch strings.ToLower(strings.TrimSpace(purpose)) {
	case "treatment":
		return domain.PurposeTreatment
	case "prevention":
		return domain.PurposePrevention
	case "diagnostic":
		return domain.PurposeDiagnostic
	case "supportive_care":
		return domain.PurposeSupportiveCare
	case "screening":
		return domain.PurposeScreening
	case "basic_science":
		return domain.PurposeBasicScience
	case "":
		return ""
	}
	return domain.PurposeOther
}

// normalizePhase picks the highest declared phase from the registry list
func normalizePhase(phases []string) domain.Phase {
	best := domain.Phase("")
	for _, phase := range phases {
		switch strings.ToUpper(strings.TrimSpace(phase)) {
		case "EARLY_PHASE1", "PHASE1":
			if best == "" {
				best = domain.Phase1
			}
		case "PHASE2":
			if best == "" || best == domain.Phase1 {
				best = domain.Phase2
			}
		case "PHASE3":
			if best != domain.Phase4 {
				best = domain.Phase3
			}
		case "PHASE4":
			best = domain.Phase4
		case "NA":
			if best == "" {
				best = domain.PhaseNotApplicable
			}
		}
	}
	return best
}

// normalizeGender maps registry sex values onto the internal enum
func normalizeGender(sex string) domain.GenderRequirement {
	switch strings.ToLower(strings.TrimSpace(sex)) {
	case "all", "":
		return domain.GenderAll
	case "male":
		return domain.GenderMale
	case "female":
		return domain.GenderFemale
	}
	return domain.GenderAll
}

// ageValuePattern extracts the numeric part of a registry age string
var ageValuePattern = regexp.MustCompile(`(\d+)`)

// ParseAgeYears converts a registry age string with units to integer years.
// Months divide by 12 and days by 365, rounded down, minimum 0. A nil return
// means the bound is absent or unparseable (treated as open).
func ParseAgeYears(ageStr string) *int {
	normalized := strings.ToLower(strings.TrimSpace(ageStr))
	if normalized == "" || normalized == "n/a" {
		return nil
	}
	match := ageValuePattern.FindString(normalized)
	if match == "" {
		return nil
	}
	value, err := strconv.Atoi(match)
	if err != nil {
		return nil
	}
	switch {
	case strings.Contains(normalized, "month"):
		value /= 12
	case strings.Contains(normalized, "day"):
		value /= 365
	}
	if value < 0 {
		value = 0
	}
	return &value
}

// normalizeAgeRange builds an AgeRange from registry min/max age strings
func normalizeAgeRange(minAge, maxAge string) domain.AgeRange {
	return domain.NewAgeRange(ParseAgeYears(minAge), ParseAgeYears(maxAge))
}

// Eligibility text parsing

// bulletPattern matches criterion line starts: -, *, •, and numeric or
// letter enumerators like "1." / "2)" / "a."
var bulletPattern = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)]|[a-z][.)])\s+`)

// sectionHeading classifies a line as an inclusion or exclusion heading
func sectionHeading(line string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(line))
	normalized = strings.TrimRight(normalized, ":")
	if strings.HasPrefix(normalized, "inclusion") {
		return "inclusion", true
	}
	if strings.HasPrefix(normalized, "exclusion") {
		return "exclusion", true
	}
	return "", false
}

// ParseEligibilityText splits raw eligibility text into inclusion and
// exclusion criteria by section heading and line-start markers. Continuation
// lines are joined to the previous criterion.
func ParseEligibilityText(raw string) (inclusion, exclusion []string) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	section := "inclusion"
	var current *[]string
	appendTo := func() *[]string {
		if section == "exclusion" {
			return &exclusion
		}
		return &inclusion
	}

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if name, ok := sectionHeading(trimmed); ok {
			section = name
			current = nil
			continue
		}
		if bulletPattern.MatchString(trimmed) {
			criterion := strings.TrimSpace(bulletPattern.ReplaceAllString(trimmed, ""))
			if criterion == "" {
				continue
			}
			target := appendTo()
			*target = append(*target, criterion)
			current = target
			continue
		}
		// Continuation line: join to the previous criterion
		if current != nil && len(*current) > 0 {
			(*current)[len(*current)-1] += " " + trimmed
		}
	}

	return inclusion, exclusion
}
