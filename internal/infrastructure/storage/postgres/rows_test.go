package postgres

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsettings/db"
	"fieldsettings/internal/core/apperror"
	"fieldsettings/internal/core/id"
	"fieldsettings/internal/domain/fieldsettings"
)

func TestExtractDBColumns_FieldRow(t *testing.T) {
	cols := ExtractDBColumns[fieldRow]()

	assert.Equal(t, []string{
		"institute_id", "id", "category", "name", "field_type", "options",
		"required", "visibility", "sort_order",
		"can_be_deleted", "can_be_edited", "can_be_renamed",
	}, cols)
}

func TestStructToMap_SettingsRow(t *testing.T) {
	now := time.Now().UTC()
	m := StructToMap(settingsRow{InstituteID: "inst-1", Version: 5, LastUpdated: now})

	assert.Equal(t, "inst-1", m["institute_id"])
	assert.Equal(t, 5, m["version"])
	assert.Equal(t, now, m["last_updated"])
	assert.Nil(t, StructToMap(42))
}

func TestValuesOf_FollowsColumnOrder(t *testing.T) {
	row := memberRow{InstituteID: "inst-1", GroupID: "g", FieldID: "f", SortOrder: 2}

	assert.Equal(t, []any{"f", "g", 2}, ValuesOf([]string{"field_id", "group_id", "sort_order"}, row))
}

// savedSnapshot is the default snapshot plus a custom field and a group.
func savedSnapshot(t *testing.T) *fieldsettings.Snapshot {
	t.Helper()
	reg, err := fieldsettings.NewRegistryFromSnapshot(fieldsettings.DefaultSnapshot())
	require.NoError(t, err)

	bus, err := reg.AddCustomField("Bus Route", fieldsettings.TypeDropdown, "North", "South")
	require.NoError(t, err)
	require.NoError(t, reg.SetFieldVisibility(bus.ID, fieldsettings.LocationLearnerProfile))

	snap := reg.Snapshot()
	_, err = reg.CreateGroupFromSelection([]string{snap.FixedFields[0].ID, bus.ID}, "Transport")
	require.NoError(t, err)
	return reg.Snapshot()
}

func TestToRows_SwapsTemporaryIDs(t *testing.T) {
	snap := savedSnapshot(t)
	idMap := persistIDs(snap)
	require.Len(t, idMap, len(snap.TempIDs()))

	rows := toRows("inst-1", snap, idMap)

	assert.Equal(t, "inst-1", rows.head.InstituteID)
	assert.Len(t, rows.system, len(snap.SystemFields))
	assert.Len(t, rows.fields, len(snap.FixedFields)+len(snap.CustomFields))
	require.Len(t, rows.groups, 1)
	require.Len(t, rows.members, 2)

	for _, r := range rows.fields {
		assert.False(t, id.IsTemp(r.ID), r.ID)
		assert.Equal(t, "inst-1", r.InstituteID)
	}
	assert.False(t, id.IsTemp(rows.groups[0].ID))
	for _, m := range rows.members {
		assert.Equal(t, rows.groups[0].ID, m.GroupID)
		assert.False(t, id.IsTemp(m.FieldID))
	}
}

func TestFromRows_RestoresSnapshot(t *testing.T) {
	snap := savedSnapshot(t)
	idMap := persistIDs(snap)

	got := fromRows(toRows("inst-1", snap, idMap))

	assert.Empty(t, got.TempIDs())
	assert.Equal(t, len(snap.SystemFields), len(got.SystemFields))
	require.Len(t, got.CustomFields, 1)
	bus := got.CustomFields[0]
	assert.Equal(t, idMap[snap.CustomFields[0].ID], bus.ID)
	assert.Equal(t, []string{"North", "South"}, bus.Options)
	assert.True(t, bus.Visibility.Shown(fieldsettings.LocationLearnerProfile))

	require.Len(t, got.FieldGroups, 1)
	g := got.FieldGroups[0]
	assert.Equal(t, "Transport", g.Name)
	require.Len(t, g.Members, 2)
	assert.Equal(t, fieldsettings.CategoryFixed, g.Members[0].Category)
	assert.Equal(t, fieldsettings.CategoryCustom, g.Members[1].Category)

	for i, f := range got.FixedFields {
		assert.Equal(t, snap.FixedFields[i].CanBeRenamed, f.CanBeRenamed)
	}
}

func TestFromRows_EmptyInstitute(t *testing.T) {
	got := fromRows(settingsRows{head: settingsRow{InstituteID: "inst-1", Version: 1}})

	assert.NotNil(t, got.SystemFields)
	assert.NotNil(t, got.FieldGroups)
	assert.Equal(t, 1, got.Version)
}

func TestReplaceStatements(t *testing.T) {
	snap := savedSnapshot(t)
	rows := toRows("inst-1", snap, persistIDs(snap))

	t.Run("first save inserts the head", func(t *testing.T) {
		batch, err := replaceStatements(rows, false)
		require.NoError(t, err)

		q := batch.Queries()
		require.Len(t, q, 9)
		assert.True(t, strings.HasPrefix(q[0].SQL, "INSERT INTO field_settings "), q[0].SQL)
		assert.Equal(t, "DELETE FROM field_settings_group_members WHERE institute_id = $1", q[1].SQL)
		assert.Equal(t, "DELETE FROM field_settings_system WHERE institute_id = $1", q[4].SQL)
		assert.True(t, strings.HasPrefix(q[8].SQL, "INSERT INTO field_settings_group_members "), q[8].SQL)
		assert.Len(t, q[6].Args, len(rows.fields)*len(fieldColumns))
	})

	t.Run("later saves update the head", func(t *testing.T) {
		batch, err := replaceStatements(rows, true)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(batch.Queries()[0].SQL, "UPDATE field_settings SET version = $1"))
	})

	t.Run("empty collections queue no inserts", func(t *testing.T) {
		batch, err := replaceStatements(settingsRows{head: rows.head}, true)
		require.NoError(t, err)
		assert.Len(t, batch.Queries(), 5)
	})
}

func TestHistory_CompressesLargeSnapshots(t *testing.T) {
	h, err := NewHistory(nil)
	require.NoError(t, err)
	snap := savedSnapshot(t)

	h.compressThreshold = 1 << 20
	small, err := h.newEntry("inst-1", "u-1", snap)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, small.CompressionAlgo)
	assert.NotEmpty(t, small.Snapshot)

	h.compressThreshold = 16
	large, err := h.newEntry("inst-1", "u-1", snap)
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, large.CompressionAlgo)
	assert.Nil(t, large.Snapshot)
	assert.NotEmpty(t, large.SnapshotZstd)

	require.NoError(t, h.decode(&large))
	assert.JSONEq(t, string(small.Snapshot), string(large.Snapshot))
	assert.Nil(t, large.SnapshotZstd)
}

func TestMigrator_ListsEmbeddedMigrations(t *testing.T) {
	sqlDB, err := sql.Open("pgx", "postgres://localhost:5432/fieldsettings?sslmode=disable")
	require.NoError(t, err)
	defer sqlDB.Close()

	provider, err := newMigrator(sqlDB, db.Migrations)
	require.NoError(t, err)

	sources := provider.ListSources()
	require.NotEmpty(t, sources)
	assert.Equal(t, int64(1), sources[0].Version)
	assert.Equal(t, goose.TypeSQL, sources[0].Type)
}

func TestMigrator_RejectsMissingDirectory(t *testing.T) {
	sqlDB, err := sql.Open("pgx", "postgres://localhost:5432/fieldsettings?sslmode=disable")
	require.NoError(t, err)
	defer sqlDB.Close()

	_, err = newMigrator(sqlDB, fstest.MapFS{"other/00001_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")}})
	assert.Error(t, err)
}

func TestEmbeddedMigrations_CreateEveryTable(t *testing.T) {
	body, err := fs.ReadFile(db.Migrations, MigrationsDir+"/00001_field_settings.sql")
	require.NoError(t, err)

	up, _, ok := strings.Cut(string(body), "-- +goose Down")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(up, "-- +goose Up"))
	for _, table := range []string{tableSettings, tableSystem, tableFields, tableGroups, tableMembers, tableHistory} {
		assert.Contains(t, up, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
	assert.Contains(t, up, constraintFieldName)
}

func TestHistory_PruneQuery(t *testing.T) {
	sql, args, err := pruneQuery("inst-1", 5).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"DELETE FROM field_settings_history WHERE institute_id = $1 AND id NOT IN "+
			"(SELECT id FROM field_settings_history WHERE institute_id = $2 ORDER BY version DESC LIMIT 5)",
		sql)
	assert.Equal(t, []any{"inst-1", "inst-1"}, args)

	h, err := NewHistory(nil)
	require.NoError(t, err)
	_, err = h.Prune(context.Background(), "inst-1", 0)
	assert.Error(t, err)
}

func TestUniqueViolation(t *testing.T) {
	tests := []struct {
		name     string
		pgErr    *pgconn.PgError
		wantCode string
		wantName string
	}{
		{
			name:     "racing first save",
			pgErr:    &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "field_settings_pkey"},
			wantCode: apperror.CodeConcurrentModification,
		},
		{
			name: "duplicate field name",
			pgErr: &pgconn.PgError{
				Code:           pgUniqueViolation,
				ConstraintName: "idx_field_settings_fields_name",
				Detail:         "Key (institute_id, lower(btrim(name)))=(inst-1, blood group) already exists.",
			},
			wantCode: apperror.CodeDuplicateFieldName,
			wantName: "blood group",
		},
		{
			name:     "repeated field id",
			pgErr:    &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "field_settings_fields_pkey"},
			wantCode: apperror.CodeValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr, ok := apperror.AsAppError(uniqueViolation("inst-1", tt.pgErr))
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, appErr.Code)
			if tt.wantName != "" {
				assert.Equal(t, tt.wantName, appErr.Details["name"])
			}
		})
	}
}
