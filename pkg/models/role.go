package models

type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// Role is a character. Roles are shared across works by exact name, so
// ingesting two subjects that both list "X" yields one Role row linked
// to both Sources.
type Role struct {
	ID          int64  `json:"role_id"`
	Name        string `json:"name"`
	Gender      Gender `json:"gender"`
	Description string `json:"description,omitempty"`
	Birthday    string `json:"birthday,omitempty"` // YYYY-MM-DD, year is the 2000 placeholder
	VoiceActor  string `json:"voice_actor,omitempty"`
}
