package search

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trial-match-server/internal/domain"
	"github.com/trial-match-server/internal/nlp"
)

// rrfK is the reciprocal-rank-fusion constant
const rrfK = 60

// defaultMinSimilarity and minKeywordScore cut candidates with negligible signal
const (
	defaultMinSimilarity = 0.1
	minKeywordScore      = 0.1
)

// Mode selects the retrieval strategy
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeLexical  Mode = "lexical"
	ModeHybrid   Mode = "hybrid"
)

// IndexedTrial is one entry of the in-memory corpus
type IndexedTrial struct {
	Trial      domain.Trial
	SearchText string
	Embedding  []float64
	Keywords   []string
	IndexedAt  time.Time
}

// Query describes one search over the index
type Query struct {
	Text       string
	Conditions []string
	Keywords   []string
	AgeRange   *domain.AgeRange
	Gender     domain.GenderRequirement
	Statuses   []domain.TrialStatus
	Location   string
	Mode       Mode
	Limit      int
	Offset     int
}

// Result is one scored trial from a search
type Result struct {
	TrialID         string
	NCTID           string
	Title           string
	BriefSummary    string
	Conditions      []string
	RelevanceScore  float64
	SimilarityScore float64
	KeywordScore    float64
	Explanation     string
	MatchedKeywords []string
	MatchedConcepts []string
	Trial           domain.Trial
}

// Results is a search response page
type Results struct {
	Results    []Result
	TotalCount int
	Mode       Mode
}

// Engine is the process-wide hybrid search index. Reads dominate; writers
// serialize against readers through the RWMutex.
type Engine struct {
	mu            sync.RWMutex
	index         map[string]*IndexedTrial
	dimension     int
	minSimilarity float64
	extractor     *nlp.Extractor
	logger        *logrus.Logger
}

// NewEngine creates an empty search engine. A non-positive
// similarityThreshold falls back to the default semantic cut.
func NewEngine(dimension int, similarityThreshold float64, logger *logrus.Logger) *Engine {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	if similarityThreshold <= 0 {
		similarityThreshold = defaultMinSimilarity
	}
	return &Engine{
		index:         make(map[string]*IndexedTrial),
		dimension:     dimension,
		minSimilarity: similarityThreshold,
		extractor:     nlp.NewExtractor(),
		logger:        logger,
	}
}

// Index adds or replaces a trial in the corpus
func (e *Engine) Index(trial domain.Trial) error {
	if err := domain.ValidateNCTID(trial.NCTID); err != nil {
		return err
	}
	if trial.Eligibility.ExtractedEntities == nil {
		e.extractor.AnnotateEligibility(&trial.Eligibility)
	}

	searchText := buildSearchText(&trial)
	trial.SearchText = searchText
	trial.Embedding = Embed(searchText, e.dimension)
	trial.EmbeddingModel = EmbeddingModelName

	entry := &IndexedTrial{
		Trial:      trial,
		SearchText: strings.ToLower(searchText),
		Embedding:  trial.Embedding,
		Keywords:   ExtractKeywords(searchText),
		IndexedAt:  time.Now(),
	}

	e.mu.Lock()
	e.index[trial.NCTID] = entry
	e.mu.Unlock()
	return nil
}

// BulkIndex indexes each trial, returning the number indexed successfully
func (e *Engine) BulkIndex(trials []domain.Trial) int {
	indexed := 0
	for _, trial := range trials {
		if err := e.Index(trial); err != nil {
			e.logger.WithFields(logrus.Fields{
				"nct_id": trial.NCTID,
				"error":  err.Error(),
			}).Warn("Skipping trial during bulk index")
			continue
		}
		indexed++
	}
	e.logger.WithFields(logrus.Fields{
		"indexed": indexed,
		"total":   len(trials),
	}).Info("Bulk index completed")
	return indexed
}

// Remove deletes a trial from the corpus, reporting whether it was present
func (e *Engine) Remove(nctID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.index[nctID]; !ok {
		return false
	}
	delete(e.index, nctID)
	return true
}

// Clear empties the corpus
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.index = make(map[string]*IndexedTrial)
}

// Size returns the number of indexed trials
func (e *Engine) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.index)
}

// Get returns an indexed trial by NCT id
func (e *Engine) Get(nctID string) (*domain.Trial, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.index[nctID]
	if !ok {
		return nil, false
	}
	trial := entry.Trial
	return &trial, true
}

// Search scores the corpus against the query, applies post-filters, and
// paginates. Identical queries over identical index state return identical
// rankings and scores.
func (e *Engine) Search(query Query) (*Results, error) {
	if query.Limit <= 0 {
		query.Limit = 10
	}
	if query.Mode == "" {
		query.Mode = ModeHybrid
	}

	e.mu.RLock()
	entries := make([]*IndexedTrial, 0, len(e.index))
	for _, entry := range e.index {
		entries = append(entries, entry)
	}
	e.mu.RUnlock()

	var scored []Result
	switch query.Mode {
	case ModeSemantic:
		scored = e.semanticSearch(query, entries)
	case ModeLexical:
		scored = e.lexicalSearch(query, entries)
	case ModeHybrid:
		scored = e.hybridSearch(query, entries)
	default:
		return nil, fmt.Errorf("unknown search mode %q", query.Mode)
	}

	filtered := applyFilters(scored, query)
	total := len(filtered)
	page := paginate(filtered, query.Offset, query.Limit)

	return &Results{Results: page, TotalCount: total, Mode: query.Mode}, nil
}

// semanticSearch ranks by cosine similarity of the deterministic embeddings
func (e *Engine) semanticSearch(query Query, entries []*IndexedTrial) []Result {
	queryVec := Embed(queryText(query), e.dimension)

	var results []Result
	for _, entry := range entries {
		sim := CosineSimilarity(queryVec, entry.Embedding)
		if sim <= e.minSimilarity {
			continue
		}
		r := newResult(entry)
		r.SimilarityScore = sim
		r.RelevanceScore = sim
		r.Explanation = fmt.Sprintf("semantic similarity %.3f", sim)
		results = append(results, r)
	}
	sortByScore(results)
	return results
}

// lexicalSearch ranks by keyword overlap with synonym expansion
func (e *Engine) lexicalSearch(query Query, entries []*IndexedTrial) []Result {
	queryKeywords := queryKeywords(query)
	if len(queryKeywords) == 0 {
		return nil
	}

	var results []Result
	for _, entry := range entries {
		score, matched, concepts := lexicalScore(queryKeywords, entry.SearchText)
		if score <= minKeywordScore {
			continue
		}
		r := newResult(entry)
		r.KeywordScore = score
		r.RelevanceScore = score
		r.MatchedKeywords = matched
		r.MatchedConcepts = concepts
		r.Explanation = fmt.Sprintf("keyword score %.3f, matched: %s", score, strings.Join(matched, ", "))
		results = append(results, r)
	}
	sortByScore(results)
	return results
}

// hybridSearch fuses the semantic and lexical rankings with RRF
func (e *Engine) hybridSearch(query Query, entries []*IndexedTrial) []Result {
	return fuseRankings(e.semanticSearch(query, entries), e.lexicalSearch(query, entries))
}

// fuseRankings merges two ranked lists with reciprocal rank fusion. A trial
// absent from one ranking receives no contribution from it; every returned
// trial has at least one finite rank.
func fuseRankings(semantic, lexical []Result) []Result {
	semanticRank := make(map[string]int, len(semantic))
	for i, r := range semantic {
		semanticRank[r.NCTID] = i + 1
	}
	lexicalRank := make(map[string]int, len(lexical))
	for i, r := range lexical {
		lexicalRank[r.NCTID] = i + 1
	}

	merged := make(map[string]Result, len(semantic)+len(lexical))
	for _, r := range semantic {
		merged[r.NCTID] = r
	}
	for _, r := range lexical {
		if existing, ok := merged[r.NCTID]; ok {
			existing.KeywordScore = r.KeywordScore
			existing.MatchedKeywords = r.MatchedKeywords
			existing.MatchedConcepts = r.MatchedConcepts
			merged[r.NCTID] = existing
		} else {
			merged[r.NCTID] = r
		}
	}

	results := make([]Result, 0, len(merged))
	for nctID, r := range merged {
		var rrf float64
		if rank, ok := semanticRank[nctID]; ok {
			rrf += 1.0 / float64(rrfK+rank)
		}
		if rank, ok := lexicalRank[nctID]; ok {
			rrf += 1.0 / float64(rrfK+rank)
		}
		r.RelevanceScore = rrf
		r.Explanation = fmt.Sprintf("hybrid rrf %.4f (similarity %.3f, keywords %.3f)",
			rrf, r.SimilarityScore, r.KeywordScore)
		results = append(results, r)
	}
	sortByScore(results)
	return results
}

// lexicalScore computes matches/total_query_weight for one candidate. Exact
// substring matches contribute full weight, synonym matches 0.8.
func lexicalScore(queryKeywords []string, searchText string) (float64, []string, []string) {
	var matchedWeight float64
	var matched, concepts []string

	for _, keyword := range queryKeywords {
		if strings.Contains(searchText, keyword) {
			matchedWeight += 1.0
			matched = append(matched, keyword)
			continue
		}
		for _, synonym := range SynonymsOf(keyword) {
			if strings.Contains(searchText, synonym) {
				matchedWeight += 0.8
				matched = append(matched, keyword)
				concepts = append(concepts, synonym)
				break
			}
		}
	}
	return matchedWeight / float64(len(queryKeywords)), matched, concepts
}

// queryText concatenates all textual signal of a query for embedding
func queryText(query Query) string {
	parts := make([]string, 0, 3)
	if query.Text != "" {
		parts = append(parts, query.Text)
	}
	if len(query.Conditions) > 0 {
		parts = append(parts, strings.Join(query.Conditions, " "))
	}
	if len(query.Keywords) > 0 {
		parts = append(parts, strings.Join(query.Keywords, " "))
	}
	return strings.Join(parts, " ")
}

// queryKeywords merges extracted text keywords with explicit query terms
func queryKeywords(query Query) []string {
	seen := make(map[string]bool)
	var keywords []string
	add := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && !seen[term] {
			seen[term] = true
			keywords = append(keywords, term)
		}
	}
	for _, kw := range ExtractKeywords(query.Text) {
		add(kw)
	}
	for _, cond := range query.Conditions {
		add(cond)
	}
	for _, kw := range query.Keywords {
		add(kw)
	}
	return keywords
}

// newResult copies the presentation fields of an indexed trial
func newResult(entry *IndexedTrial) Result {
	return Result{
		TrialID:      entry.Trial.NCTID,
		NCTID:        entry.Trial.NCTID,
		Title:        entry.Trial.Title,
		BriefSummary: entry.Trial.BriefSummary,
		Conditions:   entry.Trial.Conditions,
		Trial:        entry.Trial,
	}
}

// sortByScore orders results by score descending, NCT id ascending on ties
// so rankings are deterministic.
func sortByScore(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		return results[i].NCTID < results[j].NCTID
	})
}

// applyFilters drops scored results that fail the query's post-filters
func applyFilters(results []Result, query Query) []Result {
	if len(query.Conditions) == 0 && len(query.Statuses) == 0 &&
		query.AgeRange == nil && (query.Gender == "" || query.Gender == domain.GenderAll) {
		return results
	}

	filtered := make([]Result, 0, len(results))
	for _, r := range results {
		if !matchesConditionFilter(r.Trial.Conditions, query.Conditions) {
			continue
		}
		if !matchesStatusFilter(r.Trial.Status, query.Statuses) {
			continue
		}
		if query.AgeRange != nil && !r.Trial.Eligibility.AgeRequirements.Overlaps(*query.AgeRange) {
			continue
		}
		if !matchesGenderFilter(r.Trial.Eligibility.GenderRequirements, query.Gender) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

func matchesConditionFilter(trialConditions, requested []string) bool {
	if len(requested) == 0 {
		return true
	}
	for _, tc := range trialConditions {
		for _, rc := range requested {
			if strings.EqualFold(tc, rc) {
				return true
			}
		}
	}
	return false
}

func matchesStatusFilter(status domain.TrialStatus, requested []domain.TrialStatus) bool {
	if len(requested) == 0 {
		return true
	}
	for _, s := range requested {
		if status == s {
			return true
		}
	}
	return false
}

func matchesGenderFilter(trialGender domain.GenderRequirement, requested domain.GenderRequirement) bool {
	if requested == "" || requested == domain.GenderAll {
		return true
	}
	return trialGender == requested || trialGender == domain.GenderAll || trialGender == ""
}

// paginate slices [offset : offset+limit] of the filtered set
func paginate(results []Result, offset, limit int) []Result {
	if offset >= len(results) {
		return []Result{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}

// buildSearchText concatenates the searchable fields of a trial
func buildSearchText(trial *domain.Trial) string {
	var b strings.Builder
	b.WriteString(trial.Title)
	if trial.BriefSummary != "" {
		b.WriteString(" ")
		b.WriteString(trial.BriefSummary)
	}
	for _, condition := range trial.Conditions {
		b.WriteString(" ")
		b.WriteString(condition)
	}
	for _, intervention := range trial.Interventions {
		b.WriteString(" ")
		b.WriteString(intervention)
	}
	if trial.PrimaryPurpose != "" {
		b.WriteString(" ")
		b.WriteString(string(trial.PrimaryPurpose))
	}
	if trial.Phase != "" {
		b.WriteString(" ")
		b.WriteString(string(trial.Phase))
	}
	for _, criterion := range trial.Eligibility.Inclusion {
		b.WriteString(" ")
		b.WriteString(criterion)
	}
	for _, criterion := range trial.Eligibility.Exclusion {
		b.WriteString(" ")
		b.WriteString(criterion)
	}
	return b.String()
}
