package models

// Image is a discovered image URL owned by either a Source or a Role.
// IsDownloaded/LocalPath are filled by the separate download step, not
// at ingestion time.
type Image struct {
	ID           int64  `json:"image_id"`
	URL          string `json:"url"`
	Format       string `json:"format,omitempty"`
	IsDownloaded bool   `json:"is_downloaded"`
	LocalPath    string `json:"local_path,omitempty"`
	OwnerID      int64  `json:"owner_id"`
}
