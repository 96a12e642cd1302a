// Package ingest implements the fetch-parse-normalize-upsert pipeline
// for one external subject id. All writes for a subject happen inside
// one transaction: a subject either commits fully or leaves no rows
// behind, and re-running an already-ingested subject is a no-op.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"animehub/internal/extract"
	"animehub/internal/fetch"
	"animehub/pkg/models"
)

// Outcome is the per-subject result reported to the job runner.
type Outcome string

const (
	OutcomeCommitted Outcome = "committed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

const defaultLinkTitle = "官方网站"

// Ingestor drives the per-subject pipeline:
// fetch subject page → parse → idempotence check → upsert Source, tags,
// links, cover → fetch characters → upsert Roles and relations.
type Ingestor struct {
	db     *sql.DB
	client *fetch.Client
	sites  Sites
	logger *zap.Logger
}

func NewIngestor(db *sql.DB, client *fetch.Client, sites Sites, logger *zap.Logger) *Ingestor {
	return &Ingestor{db: db, client: client, sites: sites, logger: logger}
}

// IngestSubject runs the whole pipeline for one subject id. A missing
// subject page yields OutcomeSkipped; any other failure rolls the
// subject back and yields OutcomeFailed with the error. Errors never
// abort the surrounding job.
func (in *Ingestor) IngestSubject(ctx context.Context, subjectID string) (Outcome, error) {
	subjectURL := in.sites.SubjectURL(subjectID)

	html, err := in.client.Fetch(ctx, subjectURL)
	if errors.Is(err, fetch.ErrNotFound) {
		in.logger.Info("subject page gone, skipping", zap.String("subject", subjectID))
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("fetch subject %s: %w", subjectID, err)
	}

	detail, err := extract.ParseSubject(html)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("parse subject %s: %w", subjectID, err)
	}
	if detail.Name == "" {
		return OutcomeFailed, fmt.Errorf("subject %s: page carries no usable name", subjectID)
	}
	if len(detail.Missing) > 0 {
		in.logger.Info("subject fields absent",
			zap.String("subject", subjectID), zap.Strings("fields", detail.Missing))
	}

	// idempotence gate: a re-run (a resumed job re-walks its whole id
	// list) must skip before touching the rate-limited character pages
	known, err := sourceExists(ctx, in.db, detail.Name)
	if err != nil {
		return OutcomeFailed, err
	}
	if known {
		in.logger.Info("source already present, skipping",
			zap.String("subject", subjectID), zap.String("name", detail.Name))
		return OutcomeSkipped, nil
	}

	// characters are fetched before the transaction opens so a fetch
	// failure cannot strand a half-written subject
	characters, err := in.fetchCharacters(ctx, subjectID)
	if err != nil {
		return OutcomeFailed, err
	}

	tx, err := in.db.BeginTx(ctx, nil)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("begin tx for subject %s: %w", subjectID, err)
	}
	defer func() { _ = tx.Rollback() }()

	// re-check inside the transaction: two jobs racing on one id can
	// both pass the gate above, only one may insert
	known, err = sourceExists(ctx, tx, detail.Name)
	if err != nil {
		return OutcomeFailed, err
	}
	if known {
		in.logger.Info("source appeared concurrently, skipping",
			zap.String("subject", subjectID), zap.String("name", detail.Name))
		return OutcomeSkipped, nil
	}

	sourceID, err := in.insertSource(ctx, tx, detail)
	if err != nil {
		return OutcomeFailed, err
	}

	tags, links, err := extract.ParseSubjectTagsAndLinks(html)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("parse tags/links of subject %s: %w", subjectID, err)
	}
	if _, err := ApplyTags(ctx, tx, SourceTags, sourceID, tags); err != nil {
		return OutcomeFailed, fmt.Errorf("apply source tags for %q: %w", detail.Name, err)
	}
	for _, link := range links {
		if err := in.linkSource(ctx, tx, sourceID, link); err != nil {
			return OutcomeFailed, err
		}
	}

	if detail.CoverURL != "" {
		if err := insertImage(ctx, tx, "SourceImage", "source_id", sourceID, detail.CoverURL); err != nil {
			return OutcomeFailed, fmt.Errorf("insert cover for %q: %w", detail.Name, err)
		}
	}

	for _, ch := range characters {
		if err := in.upsertCharacter(ctx, tx, sourceID, ch); err != nil {
			return OutcomeFailed, err
		}
	}

	if err := tx.Commit(); err != nil {
		return OutcomeFailed, fmt.Errorf("commit subject %s: %w", subjectID, err)
	}
	in.logger.Info("subject committed",
		zap.String("subject", subjectID),
		zap.String("name", detail.Name),
		zap.Int("characters", len(characters)))
	return OutcomeCommitted, nil
}

// fetchCharacters retrieves the character-list page and each new
// character's detail and wiki pages. A missing character-list page
// degrades to no characters; a missing detail page degrades that one
// character to its name alone.
func (in *Ingestor) fetchCharacters(ctx context.Context, subjectID string) ([]characterRecord, error) {
	html, err := in.client.Fetch(ctx, in.sites.CharacterListURL(subjectID))
	if errors.Is(err, fetch.ErrNotFound) {
		in.logger.Info("character list page gone", zap.String("subject", subjectID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch characters of subject %s: %w", subjectID, err)
	}

	mains, err := extract.ParseMainCharacters(html)
	if err != nil {
		return nil, fmt.Errorf("parse characters of subject %s: %w", subjectID, err)
	}

	records := make([]characterRecord, 0, len(mains))
	for _, mc := range mains {
		rec := characterRecord{name: mc.Name}

		// reuse across works: a known name skips the detail re-fetch
		if known, err := in.roleExists(ctx, mc.Name); err != nil {
			return nil, err
		} else if known {
			records = append(records, rec)
			continue
		}

		if mc.DetailPath != "" {
			detail, err := in.fetchCharacterDetail(ctx, mc)
			if err != nil {
				return nil, err
			}
			rec.detail = detail
		}

		rec.tags = in.fetchMoePoints(ctx, mc.Name)
		records = append(records, rec)
	}
	return records, nil
}

func (in *Ingestor) fetchCharacterDetail(ctx context.Context, mc extract.MainCharacter) (*extract.CharacterDetail, error) {
	html, err := in.client.Fetch(ctx, in.sites.CharacterURL(mc.DetailPath))
	if errors.Is(err, fetch.ErrNotFound) {
		in.logger.Info("character page gone", zap.String("character", mc.Name))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch character %q: %w", mc.Name, err)
	}
	detail, err := extract.ParseCharacterDetail(html)
	if err != nil {
		return nil, fmt.Errorf("parse character %q: %w", mc.Name, err)
	}
	if len(detail.Missing) > 0 {
		in.logger.Info("character fields absent",
			zap.String("character", mc.Name), zap.Strings("fields", detail.Missing))
	}
	return detail, nil
}

// fetchMoePoints pulls the supplementary tag list from the wiki site.
// The wiki is best-effort: any failure degrades to no tags.
func (in *Ingestor) fetchMoePoints(ctx context.Context, name string) []string {
	html, err := in.client.Fetch(ctx, in.sites.MoegirlURL(name))
	if err != nil {
		in.logger.Info("wiki page unavailable", zap.String("character", name), zap.Error(err))
		return nil
	}
	points, err := extract.ParseMoePoints(html)
	if err != nil {
		in.logger.Info("wiki page unparseable", zap.String("character", name), zap.Error(err))
		return nil
	}
	return points
}

type characterRecord struct {
	name   string
	detail *extract.CharacterDetail // nil when the role exists or the page is gone
	tags   []string
}

func sourceExists(ctx context.Context, q querier, name string) (bool, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`SELECT source_id FROM Source WHERE source_type = ? AND name = ?`,
		models.TypeAnimation, name,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up source %q: %w", name, err)
	}
	return true, nil
}

func (in *Ingestor) roleExists(ctx context.Context, name string) (bool, error) {
	var id int64
	err := in.db.QueryRowContext(ctx, `SELECT role_id FROM Role WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up role %q: %w", name, err)
	}
	return true, nil
}

func (in *Ingestor) insertSource(ctx context.Context, tx *sql.Tx, d *extract.SubjectDetail) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO Source (source_type, name, description, author, studio, release_date, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_type, name) DO NOTHING`,
		models.TypeAnimation, d.Name,
		nullable(d.Description), nullable(d.Author), nullable(d.Studio),
		nullable(d.ReleaseDate), nullable(string(d.Status)),
	); err != nil {
		return 0, fmt.Errorf("insert source %q: %w", d.Name, err)
	}

	// re-read the id: a concurrent job may have won the insert, and
	// "already exists" is not an error here
	var id int64
	if err := tx.QueryRowContext(ctx,
		`SELECT source_id FROM Source WHERE source_type = ? AND name = ?`,
		models.TypeAnimation, d.Name,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("read back source %q: %w", d.Name, err)
	}
	return id, nil
}

func (in *Ingestor) linkSource(ctx context.Context, tx *sql.Tx, sourceID int64, rawURL string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ExternalLinks (title, original_url) VALUES (?, ?)
		 ON CONFLICT(original_url) DO NOTHING`,
		defaultLinkTitle, rawURL,
	); err != nil {
		return fmt.Errorf("insert link %s: %w", rawURL, err)
	}

	var linkID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT link_id FROM ExternalLinks WHERE original_url = ?`, rawURL,
	).Scan(&linkID); err != nil {
		return fmt.Errorf("read back link %s: %w", rawURL, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO LinksOnPage (source_id, link_id) VALUES (?, ?)
		 ON CONFLICT DO NOTHING`,
		sourceID, linkID,
	); err != nil {
		return fmt.Errorf("relate link %s: %w", rawURL, err)
	}
	return nil
}

func (in *Ingestor) upsertCharacter(ctx context.Context, tx *sql.Tx, sourceID int64, rec characterRecord) error {
	var roleID int64
	err := tx.QueryRowContext(ctx, `SELECT role_id FROM Role WHERE name = ?`, rec.name).Scan(&roleID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		roleID, err = in.insertRole(ctx, tx, rec)
		if err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("look up role %q: %w", rec.name, err)
	}

	// a shared role may already be linked to other sources
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO RoleSourceRelation (role_id, source_id) VALUES (?, ?)
		 ON CONFLICT DO NOTHING`,
		roleID, sourceID,
	); err != nil {
		return fmt.Errorf("relate role %q: %w", rec.name, err)
	}
	return nil
}

func (in *Ingestor) insertRole(ctx context.Context, tx *sql.Tx, rec characterRecord) (int64, error) {
	detail := rec.detail
	if detail == nil {
		detail = &extract.CharacterDetail{Gender: models.GenderUnknown}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO Role (name, gender, description, birthday, voice_actor)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		rec.name, detail.Gender,
		nullable(detail.Description), nullable(detail.Birthday), nullable(detail.VoiceActor),
	); err != nil {
		return 0, fmt.Errorf("insert role %q: %w", rec.name, err)
	}

	var roleID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT role_id FROM Role WHERE name = ?`, rec.name,
	).Scan(&roleID); err != nil {
		return 0, fmt.Errorf("read back role %q: %w", rec.name, err)
	}

	if detail.ImageURL != "" {
		if err := insertImage(ctx, tx, "RoleImage", "role_id", roleID, detail.ImageURL); err != nil {
			return 0, fmt.Errorf("insert image for role %q: %w", rec.name, err)
		}
	}

	if _, err := ApplyTags(ctx, tx, RoleTags, roleID, rec.tags); err != nil {
		return 0, fmt.Errorf("apply role tags for %q: %w", rec.name, err)
	}
	return roleID, nil
}

func insertImage(ctx context.Context, tx *sql.Tx, table, ownerColumn string, ownerID int64, url string) error {
	_, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (url, format, %s) VALUES (?, ?, ?)
			ON CONFLICT(url) DO NOTHING`, table, ownerColumn),
		url, imageFormat(url), ownerID,
	)
	return err
}

// imageFormat derives the format column from the URL extension,
// defaulting to jpg as the sites overwhelmingly serve.
func imageFormat(url string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(url)), ".")
	switch ext {
	case "jpg", "jpeg", "png", "gif", "webp":
		return ext
	default:
		return "jpg"
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
