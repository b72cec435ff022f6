package domain

// Document is an immutable corpus entry. Documents are produced by the
// ingestion pipeline and are read-only inside the retrieval core.
type Document struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Namespace string            `json:"namespace"`
}

// Filter is an equality predicate over document metadata. Every key must
// match for a document to pass. A nil or empty filter passes everything.
type Filter map[string]string

func (f Filter) Matches(metadata map[string]string) bool {
	if len(f) == 0 {
		return true
	}
	for key, want := range f {
		if metadata[key] != want {
			return false
		}
	}
	return true
}
