package models

// Tag is one row of either tag family (SourceTag or RoleTag).
// Num caches the number of relation rows referencing the tag.
type Tag struct {
	ID   int64  `json:"tag_id"`
	Text string `json:"tag"`
	Num  int    `json:"num"`
}

// ExternalLink is a deduplicated outbound URL seen on subject pages.
type ExternalLink struct {
	ID        int64  `json:"link_id"`
	Title     string `json:"title"`
	URL       string `json:"original_url"`
	Publisher string `json:"publisher,omitempty"`
}
