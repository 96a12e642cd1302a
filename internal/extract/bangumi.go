// Package extract turns raw page markup from the two supported site
// layouts into structured field sets. Parsers are pure and tolerant:
// a missing optional field is reported in Missing and left zero, never
// an error. Only markup that cannot be parsed as HTML at all fails.
package extract

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"animehub/pkg/models"
)

const (
	subjectDateLayout  = "2006年1月2日"
	birthdayLayout     = "1月2日"
	birthdayYearFiller = 2000
)

// SubjectDetail is the field set of a bangumi subject page.
type SubjectDetail struct {
	Name        string
	Description string
	Author      string
	Studio      string
	ReleaseDate string // YYYY-MM-DD
	Status      models.SourceStatus
	CoverURL    string

	// Missing lists the optional fields whose markup was absent or
	// unparseable on this page.
	Missing []string
}

// CharacterDetail is the field set of a bangumi character page.
type CharacterDetail struct {
	Gender      models.Gender
	Description string
	Birthday    string // YYYY-MM-DD with the placeholder year
	VoiceActor  string
	ImageURL    string
	Missing     []string
}

// ParseSubject extracts the Source fields from a subject detail page.
// The localized name is preferred; the canonical page title is the
// fallback when the localized field is blank.
func ParseSubject(html []byte) (*SubjectDetail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse subject page: %w", err)
	}

	d := &SubjectDetail{}

	d.Name = infoboxText(doc, "中文名: ")
	if d.Name == "" {
		d.Name = strings.TrimSpace(doc.Find("h1 a").First().Text())
	}
	if d.Name == "" {
		d.Missing = append(d.Missing, "name")
	}

	d.Description = strings.TrimSpace(doc.Find("#subject_summary").Text())
	if d.Description == "" {
		d.Missing = append(d.Missing, "description")
	}

	d.Author = infoboxLinkText(doc, "导演: ")
	if d.Author == "" {
		d.Missing = append(d.Missing, "author")
	}

	d.Studio = infoboxLinkText(doc, "动画制作: ")
	if d.Studio == "" {
		d.Missing = append(d.Missing, "studio")
	}

	if raw := infoboxText(doc, "放送开始: "); raw != "" {
		if t, err := time.Parse(subjectDateLayout, raw); err == nil {
			d.ReleaseDate = t.Format("2006-01-02")
		} else {
			// only this field degrades on a bad date, not the record
			d.Missing = append(d.Missing, "release_date")
		}
	} else {
		d.Missing = append(d.Missing, "release_date")
	}

	if raw := infoboxText(doc, "状态: "); raw != "" {
		d.Status = MapStatus(raw)
	} else {
		d.Missing = append(d.Missing, "status")
	}

	if href, ok := doc.Find("div.infobox a").First().Attr("href"); ok {
		d.CoverURL = strings.TrimSpace(href)
	}
	if d.CoverURL == "" {
		d.Missing = append(d.Missing, "cover")
	}

	return d, nil
}

// ParseSubjectTagsAndLinks extracts the tag list (first five, as the
// site orders them by weight) and the official-site links.
func ParseSubjectTagsAndLinks(html []byte) (tags, links []string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, nil, fmt.Errorf("parse tag/link page: %w", err)
	}

	doc.Find("div.subject_tag_section a.l.meta span").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= 5 {
			return false
		}
		if t := strings.TrimSpace(s.Text()); t != "" {
			tags = append(tags, t)
		}
		return true
	})

	findTipParent(doc, "官方网站: ").Find("a.tag.link.thumbTipSmall").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok && strings.TrimSpace(href) != "" {
			links = append(links, strings.TrimSpace(href))
		}
	})

	return tags, links, nil
}

// MainCharacter is one 主角 entry on a subject's character-list page.
// DetailPath is the site-relative path of the character's own page.
type MainCharacter struct {
	Name       string
	DetailPath string
}

// ParseMainCharacters extracts the characters marked 主角 on a
// subject's character-list page, in page order.
func ParseMainCharacters(html []byte) ([]MainCharacter, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse character list page: %w", err)
	}

	var chars []MainCharacter
	doc.Find("div.light_odd, div.light_even").Each(func(_ int, block *goquery.Selection) {
		badge := block.Find("span.badge_job").First()
		if !strings.Contains(badge.Text(), "主角") {
			return
		}
		tip := block.Find("h2 span.tip").First().Text()
		name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tip), "/"))
		if name == "" {
			return
		}
		href, _ := block.Find("h2 a.l").First().Attr("href")
		chars = append(chars, MainCharacter{Name: name, DetailPath: strings.TrimSpace(href)})
	})
	return chars, nil
}

// ParseCharacterDetail extracts the Role fields from a bangumi
// character page. The birthday carries month-day precision only; the
// year is a fixed placeholder.
func ParseCharacterDetail(html []byte) (*CharacterDetail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse character page: %w", err)
	}

	d := &CharacterDetail{Gender: models.GenderUnknown}

	switch infoboxText(doc, "性别: ") {
	case "女":
		d.Gender = models.GenderFemale
	case "男":
		d.Gender = models.GenderMale
	case "":
		d.Missing = append(d.Missing, "gender")
	}

	if raw := infoboxText(doc, "生日: "); raw != "" {
		if t, err := time.Parse(birthdayLayout, raw); err == nil {
			d.Birthday = fmt.Sprintf("%04d-%02d-%02d", birthdayYearFiller, t.Month(), t.Day())
		} else {
			d.Missing = append(d.Missing, "birthday")
		}
	} else {
		d.Missing = append(d.Missing, "birthday")
	}

	d.Description = strings.TrimSpace(doc.Find("div.detail").First().Text())
	if d.Description == "" {
		d.Missing = append(d.Missing, "description")
	}

	doc.Find("div.inner h3 a.l").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if href, ok := a.Attr("href"); ok && strings.HasPrefix(href, "/person/") {
			d.VoiceActor = strings.TrimSpace(a.Text())
			return false
		}
		return true
	})
	if d.VoiceActor == "" {
		d.Missing = append(d.Missing, "voice_actor")
	}

	if src, ok := doc.Find("img.cover").First().Attr("src"); ok {
		d.ImageURL = strings.TrimSpace(src)
	}
	if d.ImageURL == "" {
		d.Missing = append(d.Missing, "image")
	}

	return d, nil
}

// infoboxText finds the infobox row labelled by a span.tip with the
// exact label text and returns the row's remaining text.
func infoboxText(doc *goquery.Document, label string) string {
	parent := findTipParent(doc, label)
	if parent.Length() == 0 {
		return ""
	}
	text := strings.TrimSpace(strings.Replace(parent.Text(), label, "", 1))
	return strings.Trim(text, `"`)
}

// infoboxLinkText is like infoboxText but takes the text of the first
// link following the label, for rows whose value is an anchor.
func infoboxLinkText(doc *goquery.Document, label string) string {
	parent := findTipParent(doc, label)
	if parent.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(parent.Find("a").First().Text())
}

func findTipParent(doc *goquery.Document, label string) *goquery.Selection {
	var parent *goquery.Selection
	doc.Find("span.tip").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Text() == label {
			parent = s.Parent()
			return false
		}
		return true
	})
	if parent == nil {
		return doc.Find("span.tip-none-existent")
	}
	return parent
}
