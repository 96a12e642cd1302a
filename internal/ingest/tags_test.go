package ingest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertSourceRow(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO Source (source_type, name) VALUES ('animation', ?)`, name)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func tagNum(t *testing.T, db *sql.DB, fam TagFamily, tag string) int {
	t.Helper()
	var num int
	require.NoError(t, db.QueryRow(
		`SELECT num FROM `+fam.TagTable+` WHERE tag = ?`, tag).Scan(&num))
	return num
}

func TestApplyTagsCreatesAndCounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sourceID := insertSourceRow(t, db, "某作品")

	applied, err := ApplyTags(ctx, db, SourceTags, sourceID, []string{"奇幻", "治愈", ""})
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.Equal(t, 1, tagNum(t, db, SourceTags, "奇幻"))
	assertTagCountsConsistent(t, db)
}

func TestApplyTagsIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sourceID := insertSourceRow(t, db, "某作品")

	_, err := ApplyTags(ctx, db, SourceTags, sourceID, []string{"奇幻"})
	require.NoError(t, err)
	applied, err := ApplyTags(ctx, db, SourceTags, sourceID, []string{"奇幻"})
	require.NoError(t, err)

	assert.Equal(t, 0, applied)
	assert.Equal(t, 1, tagNum(t, db, SourceTags, "奇幻"))
	assert.Equal(t, 1, countRows(t, db, `SELECT COUNT(*) FROM SourceTagRelation`))
}

func TestApplyTagsSharedAcrossEntities(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := insertSourceRow(t, db, "作品甲")
	b := insertSourceRow(t, db, "作品乙")

	_, err := ApplyTags(ctx, db, SourceTags, a, []string{"奇幻"})
	require.NoError(t, err)
	_, err = ApplyTags(ctx, db, SourceTags, b, []string{"奇幻"})
	require.NoError(t, err)

	assert.Equal(t, 1, countRows(t, db, `SELECT COUNT(*) FROM SourceTag`))
	assert.Equal(t, 2, tagNum(t, db, SourceTags, "奇幻"))
	assertTagCountsConsistent(t, db)
}

func TestRemoveTagsRecountsExactly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := insertSourceRow(t, db, "作品甲")
	b := insertSourceRow(t, db, "作品乙")
	for _, id := range []int64{a, b} {
		_, err := ApplyTags(ctx, db, SourceTags, id, []string{"奇幻", "治愈"})
		require.NoError(t, err)
	}

	removed, err := RemoveTags(ctx, db, SourceTags, a, []string{"奇幻"})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.Equal(t, 1, tagNum(t, db, SourceTags, "奇幻"))
	assert.Equal(t, 2, tagNum(t, db, SourceTags, "治愈"))
	assertTagCountsConsistent(t, db)

	// removing an unlinked tag is a no-op
	removed, err = RemoveTags(ctx, db, SourceTags, a, []string{"奇幻"})
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Equal(t, 1, tagNum(t, db, SourceTags, "奇幻"))
}

func TestAddTagsLinksExistingOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := insertSourceRow(t, db, "作品甲")
	b := insertSourceRow(t, db, "作品乙")
	_, err := ApplyTags(ctx, db, SourceTags, a, []string{"奇幻"})
	require.NoError(t, err)

	added, err := AddTags(ctx, db, SourceTags, b, []string{"奇幻", "不存在的"})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 2, tagNum(t, db, SourceTags, "奇幻"))

	// re-adding the same pair never duplicates the relation
	added, err = AddTags(ctx, db, SourceTags, b, []string{"奇幻"})
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, 2, tagNum(t, db, SourceTags, "奇幻"))
	assertTagCountsConsistent(t, db)
}

func TestRoleTagFamilyIsIndependent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sourceID := insertSourceRow(t, db, "某作品")
	res, err := db.Exec(`INSERT INTO Role (name) VALUES ('某角色')`)
	require.NoError(t, err)
	roleID, err := res.LastInsertId()
	require.NoError(t, err)

	_, err = ApplyTags(ctx, db, SourceTags, sourceID, []string{"治愈"})
	require.NoError(t, err)
	_, err = ApplyTags(ctx, db, RoleTags, roleID, []string{"治愈"})
	require.NoError(t, err)

	// same text, two namespaces, independent counts
	assert.Equal(t, 1, tagNum(t, db, SourceTags, "治愈"))
	assert.Equal(t, 1, tagNum(t, db, RoleTags, "治愈"))
}
