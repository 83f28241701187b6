// Package search ranks short texts against a free-text query. It keeps no
// state between calls: the caller hands in the candidate documents and gets
// back the best matches.
//
// Scoring uses Jaccard similarity between the query word set and each
// document's word set: score = |Q ∩ D| / |Q ∪ D|. Words are case-folded
// Unicode letter runs (optionally followed by digits); a leading '#' or '@'
// is dropped so "#golang" matches "golang".
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Doc is one searchable text.
type Doc struct {
	ID   uint64
	Text string
}

// Hit is a ranked document with its similarity score in (0, 1].
type Hit struct {
	ID    uint64  `json:"id"`
	Score float64 `json:"score"`
}

// Option configures a Ranker.
type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	minScore  float64
}

func defaultConfig() config {
	return config{}
}

// WithStopwords drops the given words from both query and documents.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = fold(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMinScore discards hits scoring below s. Values outside [0,1] are ignored.
func WithMinScore(s float64) Option {
	return func(c *config) {
		if s >= 0 && s <= 1 {
			c.minScore = s
		}
	}
}

// Ranker scores documents against queries. It is safe for concurrent use.
type Ranker struct {
	cfg config
}

// NewRanker builds a Ranker.
func NewRanker(opts ...Option) *Ranker {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Ranker{cfg: cfg}
}

// TopK returns up to k best-matching docs. Ties prefer the shorter text and
// then the higher id. A k <= 0 means 10.
func (r *Ranker) TopK(q string, docs []Doc, k int) []Hit {
	if len(docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 10
	}
	qTokens := tokenize(q, r.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	type scored struct {
		id       uint64
		score    float64
		lenRunes int
	}

	buf := make([]scored, 0, min(k*4, len(docs)))
	for _, d := range docs {
		dTokens := tokenize(d.Text, r.cfg.stopwords)
		over := overlap(qTokens, dTokens)
		if over == 0 {
			continue
		}
		score := float64(over) / float64(qLen+len(dTokens)-over)
		if score < r.cfg.minScore {
			continue
		}
		buf = append(buf, scored{id: d.ID, score: score, lenRunes: utf8.RuneCountInString(d.Text)})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].lenRunes != buf[b].lenRunes {
			return buf[a].lenRunes < buf[b].lenRunes
		}
		return buf[a].id > buf[b].id
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Hit, k)
	for i := 0; i < k; i++ {
		out[i] = Hit{ID: buf[i].id, Score: buf[i].score}
	}
	return out
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(fold(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// fold applies Unicode case folding. A Caser is not safe for concurrent use,
// so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
