package search

import (
	"regexp"
	"strings"

	"github.com/trial-match-server/internal/nlp"
)

// synonymGroups are clusters of interchangeable medical terms. Membership is
// symmetric: any term in a group is a synonym of every other term in it.
var synonymGroups = [][]string{
	{"diabetes", "dm", "diabetic", "hyperglycemia"},
	{"cancer", "carcinoma", "tumor", "neoplasm", "malignancy", "oncology"},
	{"hypertension", "htn", "high blood pressure"},
	{"heart attack", "myocardial infarction", "mi"},
	{"stroke", "cva", "cerebrovascular accident"},
	{"kidney", "renal", "nephro"},
	{"liver", "hepatic"},
	{"lung", "pulmonary", "respiratory"},
	{"heart", "cardiac", "cardio", "cardiovascular"},
	{"breast", "mammary"},
	{"treatment", "therapy", "intervention"},
	{"drug", "medication", "pharmaceutical"},
}

// synonyms maps each term to its group mates
var synonyms = buildSynonymMap()

func buildSynonymMap() map[string][]string {
	m := make(map[string][]string)
	for _, group := range synonymGroups {
		for _, term := range group {
			for _, other := range group {
				if other != term {
					m[term] = append(m[term], other)
				}
			}
		}
	}
	return m
}

// SynonymsOf returns the known synonyms of a term, or nil
func SynonymsOf(term string) []string {
	return synonyms[strings.ToLower(term)]
}

// keywordPatterns pick up domain terms the static vocabulary misses
var keywordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\w*diabet\w*\b`),
	regexp.MustCompile(`\b\w*cancer\w*\b`),
	regexp.MustCompile(`\b\w*cardio\w*\b`),
	regexp.MustCompile(`\b\w*therap\w*\b`),
	regexp.MustCompile(`\bnct\d+\b`),
	regexp.MustCompile(`\btype [12]\b`),
}

// properNounPattern matches capitalized words in original-case text
var properNounPattern = regexp.MustCompile(`\b[A-Z][a-z]{2,}\b`)

// stopWords excludes sentence-leading capitals that are not entities
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "this": true,
	"that": true, "study": true, "trial": true, "patients": true,
	"inclusion": true, "exclusion": true, "criteria": true, "phase": true,
}

// ExtractKeywords derives index keywords from trial or query text by
// vocabulary membership, domain patterns, and capitalized proper nouns.
// The original-case text is needed for the proper-noun pass.
func ExtractKeywords(text string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	var keywords []string
	add := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && !stopWords[term] && !seen[term] {
			seen[term] = true
			keywords = append(keywords, term)
		}
	}

	for _, term := range nlp.VocabularyTerms() {
		if strings.Contains(lower, term) {
			add(term)
		}
	}
	for _, pattern := range keywordPatterns {
		for _, match := range pattern.FindAllString(lower, -1) {
			add(match)
		}
	}
	for _, match := range properNounPattern.FindAllString(text, -1) {
		add(match)
	}
	return keywords
}
