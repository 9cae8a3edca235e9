package search

import (
	"crypto/md5"
	"math"
	"strings"

	"github.com/trial-match-server/internal/nlp"
)

// DefaultDimension is the embedding width when configuration does not set one
const DefaultDimension = 384

// EmbeddingModelName identifies the deterministic embedder in trial records
const EmbeddingModelName = "hash-projection-v1"

// categoryWeight scales the vocabulary contribution per term category
type weightedTerm struct {
	term   string
	weight float64
}

// vocabularyWeights is built once; conditions dominate, supporting
// categories contribute progressively less.
var vocabularyWeights = buildVocabularyWeights()

func buildVocabularyWeights() []weightedTerm {
	var terms []weightedTerm
	for _, t := range nlp.ConditionVocabulary() {
		terms = append(terms, weightedTerm{t, 1.0})
	}
	for _, t := range nlp.MedicationVocabulary() {
		terms = append(terms, weightedTerm{t, 0.8})
	}
	for _, t := range nlp.ProcedureVocabulary() {
		terms = append(terms, weightedTerm{t, 0.6})
	}
	for _, t := range nlp.LabVocabulary() {
		terms = append(terms, weightedTerm{t, 0.4})
	}
	return terms
}

// Embed produces a deterministic unit-norm vector for text. The base signal
// comes from the MD5 of the full text; each vocabulary term present adds a
// term-hash-derived contribution scaled by its category weight. Identical
// text always yields an identical vector, so rankings are reproducible
// without an external model. A real embedder can replace this function
// without touching the engine contract.
func Embed(text string, dimension int) []float64 {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	lower := strings.ToLower(text)
	vec := make([]float64, dimension)

	digest := md5.Sum([]byte(lower))
	for i := range vec {
		b := digest[i%md5.Size]
		vec[i] = float64(b)/255.0 - 0.5
	}

	// Each matched term spreads its contribution over 2*md5.Size positions
	// so shared vocabulary dominates the base hash signal in the cosine.
	for _, wt := range vocabularyWeights {
		if !strings.Contains(lower, wt.term) {
			continue
		}
		termDigest := md5.Sum([]byte(wt.term))
		for round := 0; round < 2; round++ {
			for j := 0; j < md5.Size; j++ {
				pos := (int(termDigest[j])*(round+1) + j*31) % dimension
				contribution := float64(termDigest[(j+7*(round+1))%md5.Size])/255.0 - 0.5
				vec[pos] += 1.5 * wt.weight * contribution
			}
		}
	}

	return l2Normalize(vec)
}

// l2Normalize scales a vector to unit norm; zero vectors are returned as-is
func l2Normalize(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
