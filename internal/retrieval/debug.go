package retrieval

// GroupDebug records the outcome of one embedding group's query within a
// retrieval call.
type GroupDebug struct {
	// ModelTag identifies the group's embedding space.
	ModelTag string `json:"model_tag"`

	// FileCount is the number of attachments in the group.
	FileCount int `json:"file_count"`

	// Succeeded is false when the group failed (embed error, backend error,
	// timeout, or dimension mismatch) and was excluded from the merge.
	Succeeded bool `json:"succeeded"`

	// Error holds the failure reason when Succeeded is false.
	Error string `json:"error,omitempty"`

	// Chunks is the number of results the group contributed to the merge.
	Chunks int `json:"chunks"`
}

// Debug is the diagnostic snapshot of one retrieval call. It is built fresh
// per call and lives only as long as the response.
type Debug struct {
	// Mode is the retrieval mode the call ran under.
	Mode Mode `json:"retrieval_mode"`

	// MixedEmbeddings is true iff the attachments resolved to more than one
	// embedding group.
	MixedEmbeddings bool `json:"mixed_embeddings"`

	// GroupCount is the number of embedding groups resolved.
	GroupCount int `json:"group_count"`

	// Groups holds the per-group outcomes, in group resolution order.
	Groups []GroupDebug `json:"groups,omitempty"`

	// FullFileLimitHit is true when full-file mode truncated a group at the
	// configured chunk ceiling.
	FullFileLimitHit bool `json:"full_file_limit_hit"`

	// FullFileMaxChunks is the chunk ceiling in effect for full-file mode.
	FullFileMaxChunks int `json:"full_file_max_chunks"`

	// ContextChars is the length of the assembled context text.
	ContextChars int `json:"context_chars"`
}

// failedGroups returns how many groups are marked failed.
func (d *Debug) failedGroups() int {
	n := 0
	for _, g := range d.Groups {
		if !g.Succeeded {
			n++
		}
	}
	return n
}
