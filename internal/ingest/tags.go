package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// TagFamily names one of the two independent tag namespaces and the
// tables backing it.
type TagFamily struct {
	TagTable      string
	RelationTable string
	EntityColumn  string
}

var (
	SourceTags = TagFamily{TagTable: "SourceTag", RelationTable: "SourceTagRelation", EntityColumn: "source_id"}
	RoleTags   = TagFamily{TagTable: "RoleTag", RelationTable: "RoleTagRelation", EntityColumn: "role_id"}
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ApplyTags ensures every tag exists, links it to the entity, and keeps
// the cached num column equal to the relation-row count. The count is
// bumped only when a relation row is actually created, so re-applying
// the same tags is a no-op and never inflates counts.
func ApplyTags(ctx context.Context, q querier, fam TagFamily, entityID int64, tags []string) (int, error) {
	applied := 0
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}

		// insert-if-absent, then re-read the id: LastInsertId is not
		// trustworthy after a conflict no-op.
		if _, err := q.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (tag, num) VALUES (?, 0) ON CONFLICT(tag) DO NOTHING`, fam.TagTable),
			tag,
		); err != nil {
			return applied, fmt.Errorf("upsert tag %q: %w", tag, err)
		}

		var tagID int64
		if err := q.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT tag_id FROM %s WHERE tag = ?`, fam.TagTable), tag,
		).Scan(&tagID); err != nil {
			return applied, fmt.Errorf("read tag id %q: %w", tag, err)
		}

		res, err := q.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (%s, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
				fam.RelationTable, fam.EntityColumn),
			entityID, tagID,
		)
		if err != nil {
			return applied, fmt.Errorf("link tag %q: %w", tag, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return applied, fmt.Errorf("link tag %q: %w", tag, err)
		}
		if n == 0 {
			// relation already present, count stays untouched
			continue
		}

		if _, err := q.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET num = num + 1 WHERE tag_id = ?`, fam.TagTable), tagID,
		); err != nil {
			return applied, fmt.Errorf("bump tag count %q: %w", tag, err)
		}
		applied++
	}
	return applied, nil
}

// AddTags links already-existing tags to an entity (the UI's tag-add
// surface). Unknown tag texts are ignored. Counts are reconciled by an
// exact recount rather than arithmetic.
func AddTags(ctx context.Context, q querier, fam TagFamily, entityID int64, tags []string) (int, error) {
	added := 0
	for _, tag := range tags {
		res, err := q.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (%s, tag_id)
				SELECT ?, t.tag_id FROM %s t WHERE t.tag = ?
				ON CONFLICT DO NOTHING`,
				fam.RelationTable, fam.EntityColumn, fam.TagTable),
			entityID, tag,
		)
		if err != nil {
			return added, fmt.Errorf("add tag %q: %w", tag, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return added, fmt.Errorf("add tag %q: %w", tag, err)
		}
		added += int(n)
	}
	if err := recountTags(ctx, q, fam, tags); err != nil {
		return added, err
	}
	return added, nil
}

// RemoveTags unlinks tags from an entity and reconciles counts.
func RemoveTags(ctx context.Context, q querier, fam TagFamily, entityID int64, tags []string) (int, error) {
	removed := 0
	for _, tag := range tags {
		res, err := q.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE %s = ? AND tag_id IN
				(SELECT tag_id FROM %s WHERE tag = ?)`,
				fam.RelationTable, fam.EntityColumn, fam.TagTable),
			entityID, tag,
		)
		if err != nil {
			return removed, fmt.Errorf("remove tag %q: %w", tag, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("remove tag %q: %w", tag, err)
		}
		removed += int(n)
	}
	if err := recountTags(ctx, q, fam, tags); err != nil {
		return removed, err
	}
	return removed, nil
}

// recountTags sets num to the true relation-row count for each tag.
// Never trusts subtraction: partial failures elsewhere must not let
// the cached count drift.
func recountTags(ctx context.Context, q querier, fam TagFamily, tags []string) error {
	for _, tag := range tags {
		if _, err := q.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET num =
				(SELECT COUNT(*) FROM %s r WHERE r.tag_id = %s.tag_id)
				WHERE tag = ?`,
				fam.TagTable, fam.RelationTable, fam.TagTable),
			tag,
		); err != nil {
			return fmt.Errorf("recount tag %q: %w", tag, err)
		}
	}
	return nil
}
