package models

// SourceType classifies a work.
type SourceType string

const (
	TypeAnimation SourceType = "animation"
	TypeBook      SourceType = "book"
	TypeGame      SourceType = "game"
)

// SourceStatus is the airing/publication state of a work.
// StatusUnclassified marks status text the scraper could not map to the
// fixed vocabulary; those rows need manual classification and are never
// silently defaulted.
type SourceStatus string

const (
	StatusNotReleased  SourceStatus = "not_released"
	StatusOngoing      SourceStatus = "ongoing"
	StatusEnded        SourceStatus = "ended"
	StatusUnclassified SourceStatus = "unclassified"
)

// Source is a work (anime/book/game). (source_type, name) is unique.
type Source struct {
	ID          int64        `json:"source_id"`
	Type        SourceType   `json:"source_type"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Author      string       `json:"author,omitempty"`
	Studio      string       `json:"studio,omitempty"`
	ReleaseDate string       `json:"release_date,omitempty"` // YYYY-MM-DD
	Status      SourceStatus `json:"status,omitempty"`
}
