package ports

import "context"

// Passage is one ranked retrieval hit.
type Passage struct {
	ID    string  `json:"id"`
	Title string  `json:"title,omitempty"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Retriever is the retrieval collaborator.
// An empty result is valid and handled by the caller.
type Retriever interface {
	// Search returns at most k passages ordered by relevance.
	Search(ctx context.Context, query string, k int) ([]Passage, error)

	// Expand returns the full text of a passage identifier.
	// Returns domain.ErrPassageNotFound for unknown identifiers.
	Expand(ctx context.Context, id string) (string, error)
}
