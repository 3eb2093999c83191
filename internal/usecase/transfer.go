package usecase

import (
	"context"
	"io"
	"notesync/internal/domain"
	"strings"
)

// Import queues notes from an exported JSON document. Only id, title,
// content and tags are taken over; everything else gets its default and
// updatedAt is stamped with the import time.
func (s Notes) Import(ctx context.Context, ownerID string, notes []domain.Note) ([]domain.Note, error) {
	in := make([]domain.Note, 0, len(notes))
	for _, n := range notes {
		in = append(in, domain.Note{ID: n.ID, Title: n.Title, Content: n.Content, Tags: n.Tags})
	}
	return s.SaveBulk(ctx, ownerID, in)
}

// WriteMarkdown renders notes as markdown sections separated by rules.
func WriteMarkdown(w io.Writer, notes []domain.Note) error {
	var b strings.Builder
	for i, n := range notes {
		if i > 0 {
			b.WriteString("\n")
		}
		title := n.Title
		if title == "" {
			title = domain.DefaultTitle
		}
		tags := make([]string, 0, len(n.Tags))
		for _, t := range n.Tags {
			tags = append(tags, "#"+t)
		}
		b.WriteString("# " + title + "\n\n")
		b.WriteString(strings.Join(tags, " ") + "\n\n")
		b.WriteString(n.Content + "\n\n---\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
