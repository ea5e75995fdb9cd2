// Package retrieval implements the retrieval orchestration core: it partitions
// a conversation's file attachments into embedding groups, runs each group's
// query in that group's own embedding space, tolerates per-group failures, and
// merges the survivors into one bounded, cited context block.
package retrieval

import (
	"github.com/54b3r/docchat-go/internal/rag"
)

// Group is an ephemeral set of file attachments sharing one embedding model
// tag, computed per retrieval request and never persisted. Every file in a
// group has an identical tag and dimension, so the group can be queried as a
// single embedding space.
type Group struct {
	// ModelTag is the embedding model tag shared by every file in the group.
	ModelTag string

	// Dimension is the embedding vector length for ModelTag.
	Dimension int

	// Files is the subset of the request's attachments carrying ModelTag,
	// in input order.
	Files []rag.FileRef
}

// FileIDs returns the IDs of the group's files, in input order.
func (g *Group) FileIDs() []string {
	ids := make([]string, 0, len(g.Files))
	for _, f := range g.Files {
		ids = append(ids, f.ID)
	}
	return ids
}

// ResolveGroups partitions attachments by embedding model tag. The partition
// is deterministic: groups appear in order of each tag's first occurrence,
// and files keep their input order within a group. Attachments that have not
// finished ingesting have no retrievable chunks and are skipped. Zero
// attachments yield zero groups — the caller degrades to no context.
func ResolveGroups(files []rag.FileRef) []Group {
	var groups []Group
	index := make(map[string]int)

	for _, f := range files {
		if f.Status != rag.StatusCompleted {
			continue
		}
		i, ok := index[f.ModelTag]
		if !ok {
			i = len(groups)
			index[f.ModelTag] = i
			groups = append(groups, Group{
				ModelTag:  f.ModelTag,
				Dimension: f.Dimension,
			})
		}
		groups[i].Files = append(groups[i].Files, f)
	}

	return groups
}
