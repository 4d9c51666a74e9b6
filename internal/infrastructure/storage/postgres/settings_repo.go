package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"fieldsettings/internal/core/apperror"
	appctx "fieldsettings/internal/core/context"
	"fieldsettings/internal/domain/fieldsettings"
	"fieldsettings/internal/infrastructure/cache"
	"fieldsettings/pkg/logger"
)

// SettingsStore persists one snapshot per institute. A save replaces the
// institute's rows in a single transaction, guarded by the stored version.
type SettingsStore struct {
	txManager *TxManager
	batches   *BatchExecutor
	history   *History
}

// NewSettingsStore creates a store. history may be nil.
func NewSettingsStore(txManager *TxManager, history *History) *SettingsStore {
	return &SettingsStore{
		txManager: txManager,
		batches:   NewBatchExecutor(txManager),
		history:   history,
	}
}

// ForInstitute binds the store to one institute.
func (s *SettingsStore) ForInstitute(instituteID string) fieldsettings.Backend {
	return instituteBackend{store: s, instituteID: instituteID}
}

type instituteBackend struct {
	store       *SettingsStore
	instituteID string
}

func (b instituteBackend) Load(ctx context.Context) (*fieldsettings.Snapshot, error) {
	return b.store.Load(ctx, b.instituteID)
}

func (b instituteBackend) Save(ctx context.Context, snap *fieldsettings.Snapshot) (*fieldsettings.SaveResult, error) {
	return b.store.Save(ctx, b.instituteID, snap)
}

// Load returns the stored snapshot, or the default one for an institute
// that never saved.
func (s *SettingsStore) Load(ctx context.Context, instituteID string) (*fieldsettings.Snapshot, error) {
	var snap *fieldsettings.Snapshot
	err := s.txManager.ReadOnly(ctx, func(ctx context.Context) error {
		q := s.txManager.GetQuerier(ctx)

		var rows settingsRows
		sql, args, err := builder().
			Select(settingsColumns...).
			From(tableSettings).
			Where(squirrel.Eq{"institute_id": instituteID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build settings query: %w", err)
		}
		if err := pgxscan.Get(ctx, q, &rows.head, sql, args...); err != nil {
			if pgxscan.NotFound(err) {
				snap = fieldsettings.DefaultSnapshot()
				return nil
			}
			return fmt.Errorf("get settings: %w", err)
		}

		if err := selectChildren(ctx, q, &rows.system, tableSystem, systemColumns, instituteID, "sort_order"); err != nil {
			return err
		}
		if err := selectChildren(ctx, q, &rows.fields, tableFields, fieldColumns, instituteID, "category", "sort_order"); err != nil {
			return err
		}
		if err := selectChildren(ctx, q, &rows.groups, tableGroups, groupColumns, instituteID, "sort_order"); err != nil {
			return err
		}
		if err := selectChildren(ctx, q, &rows.members, tableMembers, memberColumns, instituteID, "group_id", "sort_order"); err != nil {
			return err
		}

		snap = fromRows(rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func selectChildren[T any](ctx context.Context, q Querier, dest *[]T, table string, columns []string, instituteID string, orderBy ...string) error {
	sql, args, err := builder().
		Select(columns...).
		From(table).
		Where(squirrel.Eq{"institute_id": instituteID}).
		OrderBy(orderBy...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s query: %w", table, err)
	}
	if err := pgxscan.Select(ctx, q, dest, sql, args...); err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	return nil
}

// Save stores snap as the institute's next version. snap.Version must equal
// the stored version; otherwise the save fails with CONCURRENT_MODIFICATION.
func (s *SettingsStore) Save(ctx context.Context, instituteID string, snap *fieldsettings.Snapshot) (*fieldsettings.SaveResult, error) {
	if snap == nil {
		return nil, apperror.NewValidation("snapshot is required")
	}

	var result *fieldsettings.SaveResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := s.txManager.GetQuerier(ctx)

		current, exists, err := lockVersion(ctx, q, instituteID)
		if err != nil {
			return err
		}
		if current != snap.Version {
			return apperror.NewConcurrentModification("field settings", instituteID).
				WithDetail("expectedVersion", snap.Version).
				WithDetail("actualVersion", current)
		}

		next := snap.Clone()
		next.Version = current + 1
		if next.LastUpdated.IsZero() {
			next.LastUpdated = time.Now().UTC()
		}
		idMap := persistIDs(next)
		rows := toRows(instituteID, next, idMap)

		batch, err := replaceStatements(rows, exists)
		if err != nil {
			return err
		}
		if err := s.batches.ExecuteBatch(ctx, batch.Queries()); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return uniqueViolation(instituteID, pgErr)
			}
			return fmt.Errorf("replace settings: %w", err)
		}

		if s.history != nil {
			if err := s.history.Record(ctx, instituteID, appctx.GetUserID(ctx), fromRows(rows)); err != nil {
				return err
			}
		}
		if _, err := q.Exec(ctx, "SELECT pg_notify($1, $2)", cache.SettingsChangedChannel, instituteID); err != nil {
			return fmt.Errorf("notify settings change: %w", err)
		}

		result = &fieldsettings.SaveResult{
			Success:     true,
			Version:     next.Version,
			LastUpdated: next.LastUpdated,
			IDMap:       idMap,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "field settings stored",
		"institute_id", instituteID,
		"version", result.Version,
		"new_ids", len(result.IDMap),
	)
	return result, nil
}

const (
	pgUniqueViolation = "23505"

	constraintSettingsPKey = tableSettings + "_pkey"
	constraintFieldName    = "idx_field_settings_fields_name"
)

// uniqueViolation maps a unique violation from the replace batch. Only a
// racing first save of the same institute is a concurrent modification.
func uniqueViolation(instituteID string, pgErr *pgconn.PgError) error {
	switch pgErr.ConstraintName {
	case constraintSettingsPKey:
		return apperror.NewConcurrentModification("field settings", instituteID).WithCause(pgErr)
	case constraintFieldName:
		return apperror.NewDuplicateFieldName(conflictingValue(pgErr.Detail)).WithCause(pgErr)
	default:
		return apperror.NewValidation("duplicate id in field settings").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(pgErr)
	}
}

// conflictingValue extracts the last key value from a detail such as
// "Key (institute_id, lower(btrim(name)))=(inst-1, email) already exists.".
func conflictingValue(detail string) string {
	_, values, ok := strings.Cut(detail, ")=(")
	if !ok {
		return ""
	}
	values, _, _ = strings.Cut(values, ") already exists")
	if i := strings.LastIndex(values, ", "); i >= 0 {
		values = values[i+2:]
	}
	return values
}

// lockVersion reads and locks the institute's settings row.
func lockVersion(ctx context.Context, q Querier, instituteID string) (version int, exists bool, err error) {
	sql, args, err := builder().
		Select("version").
		From(tableSettings).
		Where(squirrel.Eq{"institute_id": instituteID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build version lock: %w", err)
	}
	if err := q.QueryRow(ctx, sql, args...).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("lock settings: %w", err)
	}
	return version, true, nil
}

// replaceStatements builds the statements that swap an institute's rows for rows.
func replaceStatements(rows settingsRows, exists bool) (*Batch, error) {
	b := builder()
	instituteID := rows.head.InstituteID
	batch := &Batch{}

	var head squirrel.Sqlizer
	if exists {
		head = b.Update(tableSettings).
			Set("version", rows.head.Version).
			Set("last_updated", rows.head.LastUpdated).
			Where(squirrel.Eq{"institute_id": instituteID})
	} else {
		head = b.Insert(tableSettings).
			Columns(settingsColumns...).
			Values(ValuesOf(settingsColumns, rows.head)...)
	}
	if err := batch.Add(head); err != nil {
		return nil, err
	}

	for _, table := range []string{tableMembers, tableGroups, tableFields, tableSystem} {
		if err := batch.Add(b.Delete(table).Where(squirrel.Eq{"institute_id": instituteID})); err != nil {
			return nil, err
		}
	}

	if err := addInsert(batch, tableSystem, systemColumns, rows.system); err != nil {
		return nil, err
	}
	if err := addInsert(batch, tableFields, fieldColumns, rows.fields); err != nil {
		return nil, err
	}
	if err := addInsert(batch, tableGroups, groupColumns, rows.groups); err != nil {
		return nil, err
	}
	if err := addInsert(batch, tableMembers, memberColumns, rows.members); err != nil {
		return nil, err
	}
	return batch, nil
}

// addInsert queues one multi-row insert. Empty inputs queue nothing.
func addInsert[T any](batch *Batch, table string, columns []string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	q := builder().Insert(table).Columns(columns...)
	for _, r := range rows {
		q = q.Values(ValuesOf(columns, r)...)
	}
	return batch.Add(q)
}
