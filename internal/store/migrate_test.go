package store

import (
	"context"
	"io/fs"
	"path"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)

	for _, dialect := range []Dialect{DialectPostgres, DialectMySQL, DialectSQLite} {
		entries, err := fs.ReadDir(migrationFiles, path.Join("migrations", string(dialect)))
		if err != nil {
			t.Fatalf("read %s migrations: %v", dialect, err)
		}

		byVersion := map[string]map[string]bool{}
		for _, entry := range entries {
			match := pattern.FindStringSubmatch(entry.Name())
			if match == nil {
				continue
			}
			version, direction := match[1], match[2]
			if byVersion[version] == nil {
				byVersion[version] = map[string]bool{}
			}
			byVersion[version][direction] = true
		}

		if len(byVersion) == 0 {
			t.Fatalf("no %s migrations discovered", dialect)
		}
		for version, dirs := range byVersion {
			if !dirs["up"] || !dirs["down"] {
				t.Fatalf("%s version %s must include both up and down files", dialect, version)
			}
		}
	}
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, ApplyMigrations(ctx, db))

	count, err := CountRows(ctx, db, "schema_migrations")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMigrationsRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, RollbackMigrations(ctx, db))
	tables, err := ListUserTables(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, tables)

	require.NoError(t, ApplyMigrations(ctx, db))
	tables, err = ListUserTables(ctx, db)
	require.NoError(t, err)
	assert.Len(t, tables, 4)
}

func TestSplitStatements(t *testing.T) {
	script := `
-- leading comment
CREATE TABLE a (
	id TEXT PRIMARY KEY
);

CREATE INDEX idx_a ON a (id);
INSERT INTO a (id) VALUES ('x;y')
`
	stmts := SplitStatements(script)
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE TABLE a (\n\tid TEXT PRIMARY KEY\n)", stmts[0])
	assert.Equal(t, "CREATE INDEX idx_a ON a (id)", stmts[1])
	assert.Equal(t, "INSERT INTO a (id) VALUES ('x;y')", stmts[2])
}
