package profile

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// MatchTopics ranks journal topics against a target topic name by TF-IDF
// cosine similarity and returns those above the threshold, best first.
// An empty result means the caller should fall back to full subject history.
func MatchTopics(target string, topics []string, threshold float64) []string {
	if len(topics) == 0 {
		return nil
	}

	docs := make([][]string, 0, len(topics)+1)
	docs = append(docs, tokenize(target))
	for _, t := range topics {
		docs = append(docs, tokenize(t))
	}

	vectors := tfidfVectors(docs)

	type match struct {
		topic string
		sim   float64
	}
	var matches []match
	for i, t := range topics {
		sim := cosineMap(vectors[0], vectors[i+1])
		if sim > threshold {
			matches = append(matches, match{topic: t, sim: sim})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].sim > matches[j].sim
	})

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.topic
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tfidfVectors computes smoothed TF-IDF weights with L2 normalization:
// idf(t) = ln((1+n)/(1+df)) + 1.
func tfidfVectors(docs [][]string) []map[string]float64 {
	n := len(docs)

	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, tok := range doc {
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}

	vectors := make([]map[string]float64, n)
	for i, doc := range docs {
		tf := make(map[string]float64)
		for _, tok := range doc {
			tf[tok]++
		}

		vec := make(map[string]float64, len(tf))
		var norm float64
		for tok, count := range tf {
			idf := math.Log(float64(1+n)/float64(1+df[tok])) + 1
			w := count * idf
			vec[tok] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for tok := range vec {
				vec[tok] /= norm
			}
		}
		vectors[i] = vec
	}
	return vectors
}

func cosineMap(a, b map[string]float64) float64 {
	// Vectors are L2-normalized, so the dot product is the cosine.
	var dot float64
	for tok, w := range a {
		dot += w * b[tok]
	}
	return dot
}
