package extract

import (
	"strings"

	"animehub/pkg/models"
)

// statusVocabulary is the exact-match table for airing-status text as
// it appears on the source sites. Unrecognized text maps to
// StatusUnclassified so a human can resolve it; nothing is ever
// defaulted by guesswork.
var statusVocabulary = map[string]models.SourceStatus{
	"放送中":          models.StatusOngoing,
	"连载中":          models.StatusOngoing,
	"放送":           models.StatusOngoing,
	"连载":           models.StatusOngoing,
	"ongoing":      models.StatusOngoing,
	"完结":           models.StatusEnded,
	"已完结":          models.StatusEnded,
	"ended":        models.StatusEnded,
	"未放送":          models.StatusNotReleased,
	"未上映":          models.StatusNotReleased,
	"未发布":          models.StatusNotReleased,
	"not_released": models.StatusNotReleased,
}

// MapStatus maps raw status text through the fixed vocabulary.
func MapStatus(text string) models.SourceStatus {
	if s, ok := statusVocabulary[strings.TrimSpace(text)]; ok {
		return s
	}
	return models.StatusUnclassified
}
