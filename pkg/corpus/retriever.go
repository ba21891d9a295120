package corpus

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/aretw0/arbiter/pkg/ports"
)

// BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true, "with": true, "that": true,
	"this": true, "what": true, "does": true, "can": true, "our": true, "we": true, "of": true,
	"to": true, "in": true, "a": true, "an": true, "is": true, "it": true, "be": true, "or": true,
	"on": true, "by": true, "as": true, "if": true, "do": true, "i": true, "my": true,
}

type posting struct {
	doc int
	tf  int
}

type clauseDoc struct {
	article int
	clause  int
	length  int
}

// Retriever is a BM25 index over clauses. It implements ports.Retriever.
type Retriever struct {
	corpus   *Corpus
	docs     []clauseDoc
	postings map[string][]posting
	avgLen   float64
}

var _ ports.Retriever = (*Retriever)(nil)

// NewRetriever indexes every clause of the corpus.
func NewRetriever(c *Corpus) *Retriever {
	r := &Retriever{corpus: c, postings: make(map[string][]posting)}
	total := 0
	for ai, a := range c.articles {
		for ci, cl := range a.Clauses {
			tokens := tokenize(a.Title + " " + cl.Text)
			doc := len(r.docs)
			r.docs = append(r.docs, clauseDoc{article: ai, clause: ci, length: len(tokens)})
			total += len(tokens)

			counts := make(map[string]int)
			for _, t := range tokens {
				counts[t]++
			}
			for t, n := range counts {
				r.postings[t] = append(r.postings[t], posting{doc: doc, tf: n})
			}
		}
	}
	if len(r.docs) > 0 {
		r.avgLen = float64(total) / float64(len(r.docs))
	}
	return r
}

// Search returns the k best clauses, tagged with their article identifier.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]ports.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := float64(len(r.docs))
	scores := make(map[int]float64)
	for _, term := range uniq(tokenize(query)) {
		list := r.postings[term]
		if len(list) == 0 {
			continue
		}
		idf := math.Log(1 + (n-float64(len(list))+0.5)/(float64(len(list))+0.5))
		for _, p := range list {
			norm := 1 - bm25B + bm25B*float64(r.docs[p.doc].length)/r.avgLen
			tf := float64(p.tf)
			scores[p.doc] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}

	ranked := make([]int, 0, len(scores))
	for doc := range scores {
		ranked = append(ranked, doc)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if scores[ranked[i]] != scores[ranked[j]] {
			return scores[ranked[i]] > scores[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}

	out := make([]ports.Passage, len(ranked))
	for i, doc := range ranked {
		d := r.docs[doc]
		a := r.corpus.articles[d.article]
		out[i] = ports.Passage{
			ID:    a.ID,
			Title: a.Title,
			Text:  a.Clauses[d.clause].Text,
			Score: scores[doc],
		}
	}
	return out, nil
}

// Expand returns the full rendered article.
func (r *Retriever) Expand(ctx context.Context, id string) (string, error) {
	return r.corpus.Expand(id)
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

func uniq(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
