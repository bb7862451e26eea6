// Package sqlite provides a SQLite-backed checkout storage
// implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/popup.city/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/popup.city/internal/services/checkout/storage"
	"github.com/louisbranch/popup.city/internal/services/checkout/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists checkout state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite checkout store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveSelections replaces the scope's snapshot in one transaction.
func (s *Store) SaveSelections(ctx context.Context, scope storage.Scope, selections []storage.SelectionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := validateScope(scope); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save selections: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM checkout_selections WHERE user_id = ? AND event_id = ?`,
		scope.UserID, scope.EventID,
	); err != nil {
		return fmt.Errorf("save selections: %w", err)
	}

	now := toMillis(time.Now())
	for _, sel := range selections {
		quantity := sel.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO checkout_selections (
			   user_id, event_id, attendee_id, product_id, quantity, custom_amount, updated_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			scope.UserID,
			scope.EventID,
			sel.AttendeeID,
			sel.ProductID,
			quantity,
			sel.CustomAmount,
			now,
		); err != nil {
			return fmt.Errorf("save selections: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save selections: %w", err)
	}
	return nil
}

// GetSelections returns the scope's snapshot or ErrNotFound.
func (s *Store) GetSelections(ctx context.Context, scope storage.Scope) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Snapshot{}, fmt.Errorf("storage is not configured")
	}
	if err := validateScope(scope); err != nil {
		return storage.Snapshot{}, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT attendee_id, product_id, quantity, custom_amount, updated_at
		   FROM checkout_selections
		  WHERE user_id = ? AND event_id = ?
		  ORDER BY attendee_id ASC, product_id ASC`,
		scope.UserID, scope.EventID,
	)
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("get selections: %w", err)
	}
	defer rows.Close()

	var snapshot storage.Snapshot
	var latest int64
	for rows.Next() {
		var rec storage.SelectionRecord
		var customAmount sql.NullFloat64
		var updatedAt int64
		if err := rows.Scan(&rec.AttendeeID, &rec.ProductID, &rec.Quantity, &customAmount, &updatedAt); err != nil {
			return storage.Snapshot{}, fmt.Errorf("get selections: %w", err)
		}
		if customAmount.Valid {
			v := customAmount.Float64
			rec.CustomAmount = &v
		}
		if updatedAt > latest {
			latest = updatedAt
		}
		snapshot.Selections = append(snapshot.Selections, rec)
	}
	if err := rows.Err(); err != nil {
		return storage.Snapshot{}, fmt.Errorf("get selections: %w", err)
	}
	if len(snapshot.Selections) == 0 {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	snapshot.UpdatedAt = fromMillis(latest)
	return snapshot, nil
}

// SaveExtras replaces the scope's housing, merch, and insurance rows in
// one transaction. Zero-value extras drop the rows entirely.
func (s *Store) SaveExtras(ctx context.Context, scope storage.Scope, extras storage.Extras) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := validateScope(scope); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save extras: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"checkout_extras", "checkout_merch"} {
		if _, err := tx.ExecContext(
			ctx,
			`DELETE FROM `+table+` WHERE user_id = ? AND event_id = ?`,
			scope.UserID, scope.EventID,
		); err != nil {
			return fmt.Errorf("save extras: %w", err)
		}
	}

	now := toMillis(time.Now())
	if extras.Housing != nil || extras.Insurance {
		var productID, checkIn, checkOut any
		if h := extras.Housing; h != nil {
			productID = h.ProductID
			checkIn = toMillis(h.CheckIn)
			checkOut = toMillis(h.CheckOut)
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO checkout_extras (
			   user_id, event_id, housing_product_id, housing_check_in, housing_check_out, insurance, updated_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			scope.UserID, scope.EventID, productID, checkIn, checkOut, extras.Insurance, now,
		); err != nil {
			return fmt.Errorf("save extras: %w", err)
		}
	}
	for _, m := range extras.Merch {
		if m.Quantity <= 0 {
			continue
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO checkout_merch (
			   user_id, event_id, product_id, quantity, updated_at
			 ) VALUES (?, ?, ?, ?, ?)`,
			scope.UserID, scope.EventID, m.ProductID, m.Quantity, now,
		); err != nil {
			return fmt.Errorf("save extras: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save extras: %w", err)
	}
	return nil
}

// GetExtras returns the scope's housing, merch, and insurance or
// ErrNotFound when nothing is stored.
func (s *Store) GetExtras(ctx context.Context, scope storage.Scope) (storage.Extras, error) {
	if err := ctx.Err(); err != nil {
		return storage.Extras{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Extras{}, fmt.Errorf("storage is not configured")
	}
	if err := validateScope(scope); err != nil {
		return storage.Extras{}, err
	}

	var extras storage.Extras
	found := false

	var productID, checkIn, checkOut sql.NullInt64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT housing_product_id, housing_check_in, housing_check_out, insurance
		   FROM checkout_extras
		  WHERE user_id = ? AND event_id = ?`,
		scope.UserID, scope.EventID,
	).Scan(&productID, &checkIn, &checkOut, &extras.Insurance)
	switch {
	case err == nil:
		found = true
		if productID.Valid && checkIn.Valid && checkOut.Valid {
			extras.Housing = &storage.HousingRecord{
				ProductID: productID.Int64,
				CheckIn:   fromMillis(checkIn.Int64),
				CheckOut:  fromMillis(checkOut.Int64),
			}
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return storage.Extras{}, fmt.Errorf("get extras: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT product_id, quantity
		   FROM checkout_merch
		  WHERE user_id = ? AND event_id = ?
		  ORDER BY product_id ASC`,
		scope.UserID, scope.EventID,
	)
	if err != nil {
		return storage.Extras{}, fmt.Errorf("get extras: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m storage.MerchRecord
		if err := rows.Scan(&m.ProductID, &m.Quantity); err != nil {
			return storage.Extras{}, fmt.Errorf("get extras: %w", err)
		}
		extras.Merch = append(extras.Merch, m)
		found = true
	}
	if err := rows.Err(); err != nil {
		return storage.Extras{}, fmt.Errorf("get extras: %w", err)
	}

	if !found {
		return storage.Extras{}, storage.ErrNotFound
	}
	return extras, nil
}

// ClearSelections drops the scope's snapshot and extras.
func (s *Store) ClearSelections(ctx context.Context, scope storage.Scope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := validateScope(scope); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear selections: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"checkout_selections", "checkout_extras", "checkout_merch"} {
		if _, err := tx.ExecContext(
			ctx,
			`DELETE FROM `+table+` WHERE user_id = ? AND event_id = ?`,
			scope.UserID, scope.EventID,
		); err != nil {
			return fmt.Errorf("clear selections: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clear selections: %w", err)
	}
	return nil
}

func validateScope(scope storage.Scope) error {
	if strings.TrimSpace(scope.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if scope.EventID <= 0 {
		return fmt.Errorf("event id is required")
	}
	return nil
}

var _ storage.SelectionStore = (*Store)(nil)
