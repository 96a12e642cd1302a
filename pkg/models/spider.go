package models

// SpiderStatus is the job lifecycle state. active ⇄ inactive → expired;
// expired rows are hard-deleted by the periodic sweep.
type SpiderStatus string

const (
	SpiderActive   SpiderStatus = "active"
	SpiderInactive SpiderStatus = "inactive"
	SpiderExpired  SpiderStatus = "expired"
)

// Spider is a named, persisted ingestion job over an ordered list of
// external subject ids.
type Spider struct {
	ID              int64        `json:"spider_id"`
	Name            string       `json:"name"`
	SubjectIDs      []string     `json:"subject_ids"`
	DownloadToLocal bool         `json:"download_to_local"`
	Status          SpiderStatus `json:"status"`
}
