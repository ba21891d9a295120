// Package corpus loads structured regulation text and serves it to the
// pipeline: identifier expansion, lexical retrieval and keyword search.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Clause is one numbered paragraph of an article.
type Clause struct {
	ID   string `json:"clause_id" mapstructure:"clause_id"`
	Text string `json:"text" mapstructure:"text"`
}

// Article is a regulation article with its clauses.
type Article struct {
	ID      string   `json:"article_id" mapstructure:"article_id"`
	Title   string   `json:"title" mapstructure:"title"`
	Clauses []Clause `json:"clauses" mapstructure:"clauses"`
}

// Corpus is an immutable, indexed set of articles.
type Corpus struct {
	articles []Article
	byID     map[string]int
}

// New indexes articles. Later duplicates of an identifier are ignored.
func New(articles []Article) *Corpus {
	c := &Corpus{byID: make(map[string]int, len(articles))}
	for _, a := range articles {
		if _, dup := c.byID[a.ID]; dup || a.ID == "" {
			continue
		}
		clauses := append([]Clause(nil), a.Clauses...)
		sort.SliceStable(clauses, func(i, j int) bool { return clauses[i].ID < clauses[j].ID })
		a.Clauses = clauses
		c.byID[a.ID] = len(c.articles)
		c.articles = append(c.articles, a)
	}
	return c
}

// Parse decodes a corpus document of the form {"articles": [...]}.
// Numeric identifiers are accepted and normalized to strings.
func Parse(data []byte) (*Corpus, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse corpus: %w", err)
	}
	var doc struct {
		Articles []Article `mapstructure:"articles"`
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &doc,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode corpus: %w", err)
	}
	if len(doc.Articles) == 0 {
		return nil, fmt.Errorf("corpus has no articles")
	}
	return New(doc.Articles), nil
}

// Load reads a corpus file from disk.
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Len returns the number of articles.
func (c *Corpus) Len() int { return len(c.articles) }

// Articles returns the articles in load order.
func (c *Corpus) Articles() []Article {
	return append([]Article(nil), c.articles...)
}

// Article looks up an article by identifier.
func (c *Corpus) Article(id string) (Article, bool) {
	i, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Article{}, false
	}
	return c.articles[i], true
}

// Render formats an article as "Article {id}: {title}" followed by "[clause] text" lines.
func (a Article) Render() string {
	lines := make([]string, 0, len(a.Clauses)+1)
	lines = append(lines, fmt.Sprintf("Article %s: %s", a.ID, a.Title))
	for _, cl := range a.Clauses {
		lines = append(lines, fmt.Sprintf("[%s] %s", cl.ID, cl.Text))
	}
	return strings.Join(lines, "\n")
}

// Expand returns the rendered text of an article.
func (c *Corpus) Expand(id string) (string, error) {
	a, ok := c.Article(id)
	if !ok {
		return "", fmt.Errorf("%w: article %s", domain.ErrPassageNotFound, id)
	}
	return a.Render(), nil
}

// KeywordSearch ranks articles by how many query terms (longer than two
// characters) occur in their title or clauses, and returns the best limit.
func (c *Corpus) KeywordSearch(query string, limit int) []Article {
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(query)) {
		if len(t) > 2 {
			terms = append(terms, t)
		}
	}

	type hit struct {
		idx   int
		score int
	}
	var hits []hit
	for i, a := range c.articles {
		var b strings.Builder
		b.WriteString(strings.ToLower(a.Title))
		for _, cl := range a.Clauses {
			b.WriteByte(' ')
			b.WriteString(strings.ToLower(cl.Text))
		}
		text := b.String()
		score := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{idx: i, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]Article, len(hits))
	for i, h := range hits {
		out[i] = c.articles[h.idx]
	}
	return out
}
