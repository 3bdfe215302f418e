// Package proto defines the shared message types used for control RPC
// communication between the synchronizer daemon and its admin clients.
//
// The types use JSON struct tags for serialization over the lightweight
// JSON-over-TCP RPC layer (see pkg/grpc).
package proto

// ---------- Common ----------

// Ack is the generic response for fire-and-forget control operations.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ---------- Sync ----------

// RebuildRequest starts a full re-synchronization of the index from the
// primary store. The rebuild runs in the background; poll Sync.Progress.
type RebuildRequest struct{}

// ClearRequest starts a full removal of every indexed document. Runs in the
// background like a rebuild.
type ClearRequest struct{}

// ReindexTopicRequest re-derives one topic and all its posts.
type ReindexTopicRequest struct {
	TopicID int64 `json:"topic_id"`
}

// ReindexPostRequest re-derives a single post.
type ReindexPostRequest struct {
	PostID int64 `json:"post_id"`
}

// ProgressRequest asks for the current rebuild progress counters.
type ProgressRequest struct{}

// ProgressResponse reports rebuild progress per document kind. Percentages
// are clamped to [0,100] and Working reflects the persisted rebuild flag.
type ProgressResponse struct {
	TopicsIndexed int64   `json:"topics_indexed"`
	TopicsTotal   int64   `json:"topics_total"`
	TopicsPercent float64 `json:"topics_percent"`
	PostsIndexed  int64   `json:"posts_indexed"`
	PostsTotal    int64   `json:"posts_total"`
	PostsPercent  float64 `json:"posts_percent"`
	Working       bool    `json:"working"`
}

// ---------- Settings ----------

// GetSettingsRequest fetches the shared runtime settings.
type GetSettingsRequest struct{}

// SettingsResponse is the current shared settings snapshot.
type SettingsResponse struct {
	TopicLimit         int     `json:"topic_limit"`
	PostLimit          int     `json:"post_limit"`
	ExcludedCategories []int64 `json:"excluded_categories"`
	Language           string  `json:"language"`
}

// SaveSettingsRequest updates the shared runtime settings. Limits arrive in
// string form, exactly as admin forms submit them; non-numeric values are
// rejected.
type SaveSettingsRequest struct {
	TopicLimit         string  `json:"topic_limit"`
	PostLimit          string  `json:"post_limit"`
	ExcludedCategories []int64 `json:"excluded_categories"`
	Language           string  `json:"language"`
}

// ChangeLanguageRequest switches the index language. Existing entries keep
// their old segmentation until the next rebuild.
type ChangeLanguageRequest struct {
	Language string `json:"language"`
}

// ---------- Search ----------

// QueryRequest is the input to the Search.Query RPC.
type QueryRequest struct {
	Kind        string  `json:"kind"` // "topic" or "post"
	Query       string  `json:"query"`
	CategoryIDs []int64 `json:"category_ids,omitempty"`
	AuthorID    int64   `json:"author_id,omitempty"`
	MatchMode   string  `json:"match_mode,omitempty"` // "all" (default) or "any"
	Limit       int     `json:"limit,omitempty"`
}

// QueryResponse is the output of the Search.Query RPC: matching document
// IDs in engine relevance order.
type QueryResponse struct {
	IDs       []int64 `json:"ids"`
	LatencyMs int64   `json:"latency_ms"`
}
