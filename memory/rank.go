package memory

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Okapi BM25 parameters.
const (
	bm25K1      = 1.2
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// Field weights: a token in a key point or entity counts twice as much as one
// in the free text summary.
const (
	summaryWeight  = 1
	keyPointWeight = 2
	entityWeight   = 2
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// tokenize lowercases text and splits it into letter/digit runs of at least
// two runes.
func tokenize(s string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(s), -1)
	tokens := matches[:0]
	for _, m := range matches {
		if len([]rune(m)) >= 2 {
			tokens = append(tokens, m)
		}
	}
	return tokens
}

func documentTokens(m ConversationMemory) []string {
	var tokens []string
	add := func(text string, weight int) {
		t := tokenize(text)
		for i := 0; i < weight; i++ {
			tokens = append(tokens, t...)
		}
	}
	add(m.Summary, summaryWeight)
	for _, k := range m.KeyPoints {
		add(k, keyPointWeight)
	}
	for _, e := range m.Entities {
		add(e, entityWeight)
	}
	return tokens
}

// Rank orders memories by BM25 relevance to query and drops those that match
// no query term. Ties keep the most recently updated record first. A limit of
// zero or less returns every match.
func Rank(memories []ConversationMemory, query string, limit int) []ConversationMemory {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 || len(memories) == 0 {
		return nil
	}

	frequencies := make([]map[string]int, len(memories))
	lengths := make([]int, len(memories))
	documentFrequency := map[string]int{}
	total := 0
	for i, m := range memories {
		tokens := documentTokens(m)
		lengths[i] = len(tokens)
		total += len(tokens)
		tf := map[string]int{}
		for _, t := range tokens {
			if tf[t] == 0 {
				documentFrequency[t]++
			}
			tf[t]++
		}
		frequencies[i] = tf
	}
	avgLength := float64(total) / float64(len(memories))
	if avgLength == 0 {
		return nil
	}

	n := float64(len(memories))
	type hit struct {
		index int
		score float64
	}
	var hits []hit
	for i := range memories {
		score := 0.0
		for _, t := range queryTokens {
			f := float64(frequencies[i][t])
			if f == 0 {
				continue
			}
			df := float64(documentFrequency[t])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			if idf <= 0 {
				idf = bm25Epsilon
			}
			score += idf * f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*float64(lengths[i])/avgLength))
		}
		if score > 0 {
			hits = append(hits, hit{index: i, score: score})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return memories[hits[a].index].UpdatedAt.After(memories[hits[b].index].UpdatedAt)
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]ConversationMemory, 0, len(hits))
	for _, h := range hits {
		out = append(out, memories[h.index])
	}
	return out
}
