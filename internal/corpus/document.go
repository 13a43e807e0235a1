// Package corpus holds the document snapshot that every retrieval method is
// built from.
package corpus

import (
	"context"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/lexical"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/textproc"
)

// Document is immutable once indexed. Content is the normalized text used
// for scoring; OriginalContent is what users see.
type Document struct {
	Path            string `json:"path"`
	Name            string `json:"name"`
	Content         string `json:"content"`
	OriginalContent string `json:"original_content"`
}

// NewDocument derives the processed content from original.
func NewDocument(path, name, original string) Document {
	return Document{
		Path:            path,
		Name:            name,
		Content:         textproc.Normalize(original),
		OriginalContent: original,
	}
}

// Provider supplies the ordered corpus at build time.
type Provider interface {
	Documents(ctx context.Context) ([]Document, error)
}

// Static is a Provider over an in-memory slice.
type Static []Document

func (s Static) Documents(context.Context) ([]Document, error) {
	return []Document(s), nil
}

// LexicalEntries maps documents to scorer input. The name is indexed along
// with the body.
func LexicalEntries(docs []Document) []lexical.Entry {
	entries := make([]lexical.Entry, len(docs))
	for i, d := range docs {
		text := d.Content
		if name := textproc.Normalize(d.Name); name != "" {
			text = strings.TrimSpace(name + " " + d.Content)
		}
		entries[i] = lexical.Entry{ID: d.Path, Text: text}
	}
	return entries
}

// Catalog indexes a document snapshot by path and by build position.
type Catalog struct {
	docs   []Document
	byPath map[string]int
}

func NewCatalog(docs []Document) *Catalog {
	byPath := make(map[string]int, len(docs))
	for i, d := range docs {
		byPath[d.Path] = i
	}
	return &Catalog{docs: docs, byPath: byPath}
}

func (c *Catalog) Len() int { return len(c.docs) }

func (c *Catalog) At(pos int) Document { return c.docs[pos] }

func (c *Catalog) Get(path string) (Document, bool) {
	i, ok := c.byPath[path]
	if !ok {
		return Document{}, false
	}
	return c.docs[i], true
}

