package ingest

import (
	"net/url"
	"strings"
)

// Sites holds the base URLs of the two scraped websites. Overridable so
// tests (and the local mirror) can point at fake servers.
type Sites struct {
	BangumiBase string
	MoegirlBase string
}

func (s Sites) SubjectURL(subjectID string) string {
	return strings.TrimRight(s.BangumiBase, "/") + "/subject/" + subjectID
}

func (s Sites) CharacterListURL(subjectID string) string {
	return s.SubjectURL(subjectID) + "/characters"
}

// CharacterURL resolves a site-relative character path from the
// character-list page.
func (s Sites) CharacterURL(detailPath string) string {
	return strings.TrimRight(s.BangumiBase, "/") + detailPath
}

// MoegirlURL is the wiki page for a character, addressed by name.
func (s Sites) MoegirlURL(characterName string) string {
	return strings.TrimRight(s.MoegirlBase, "/") + "/" + url.PathEscape(characterName)
}
