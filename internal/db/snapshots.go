package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/j-veylop/usagewatch/internal/models"
)

const timeFormat = "2006-01-02 15:04:05"

var timeFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	timeFormat,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 -0700 MST",
	"2006-01-02 15:04:05 +0000 UTC",
}

func parseTimeString(s string) (time.Time, bool) {
	for _, format := range timeFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// InsertSnapshot appends one usage snapshot. Snapshots are append-only;
// there is no update path.
func (db *DB) InsertSnapshot(profileID string, snapshot models.UsageSnapshot) error {
	var perModel sql.NullString
	if len(snapshot.PerModel) > 0 {
		data, err := json.Marshal(snapshot.PerModel)
		if err != nil {
			return fmt.Errorf("failed to encode per-model breakdown: %w", err)
		}
		perModel = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO usage_snapshots (
			id, profile_id, window_kind, timestamp, triggered_by,
			tokens_used, token_limit, percent, weekly_total, per_model,
			spend_amount, prepaid_credits, currency
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(context.Background(), query,
		snapshot.ID,
		profileID,
		string(snapshot.Window),
		snapshot.Timestamp.UTC().Format(timeFormat),
		snapshot.TriggeredBy.UTC().Format(timeFormat),
		nullInt64(snapshot.TokensUsed),
		nullInt64(snapshot.TokenLimit),
		nullFloat64(snapshot.Percent),
		nullInt64(snapshot.WeeklyTotal),
		perModel,
		nullFloat64(snapshot.SpendAmount),
		nullFloat64(snapshot.PrepaidCredits),
		nullString(snapshot.Currency),
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage snapshot: %w", err)
	}

	return nil
}

// GetSnapshots returns a profile's snapshots for one window kind, newest
// first. Equal timestamps keep insertion order. Snapshots whose
// triggering reset time is inconsistent with their recording time are
// excluded.
func (db *DB) GetSnapshots(profileID string, window models.WindowKind, timeRange models.TimeRange) ([]models.UsageSnapshot, error) {
	query := `
		SELECT id, window_kind, timestamp, triggered_by,
			   tokens_used, token_limit, percent, weekly_total, per_model,
			   spend_amount, prepaid_credits, currency
		FROM usage_snapshots
		WHERE profile_id = ? AND window_kind = ?
		ORDER BY timestamp DESC, seq ASC
	`

	rows, err := db.QueryContext(context.Background(), query, profileID, string(window))
	if err != nil {
		return nil, fmt.Errorf("failed to query usage snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cutoff := timeRange.CutoffFrom(time.Now().UTC())

	var snapshots []models.UsageSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		if !cutoff.IsZero() && snap.Timestamp.Before(cutoff) {
			continue
		}
		if !snap.Consistent() {
			continue
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}

// ClearSnapshots deletes all snapshots for one (profile, window) pair.
// This is the only deletion path; it is never a blanket wipe.
func (db *DB) ClearSnapshots(profileID string, window models.WindowKind) error {
	_, err := db.ExecContext(context.Background(),
		"DELETE FROM usage_snapshots WHERE profile_id = ? AND window_kind = ?",
		profileID, string(window))
	if err != nil {
		return fmt.Errorf("failed to clear usage snapshots: %w", err)
	}
	return nil
}

func scanSnapshot(rows *sql.Rows) (models.UsageSnapshot, error) {
	var snap models.UsageSnapshot
	var windowKind, timestampStr, triggeredStr string
	var tokensUsed, tokenLimit, weeklyTotal sql.NullInt64
	var percent, spendAmount, prepaidCredits sql.NullFloat64
	var perModel, currency sql.NullString

	err := rows.Scan(
		&snap.ID, &windowKind, &timestampStr, &triggeredStr,
		&tokensUsed, &tokenLimit, &percent, &weeklyTotal, &perModel,
		&spendAmount, &prepaidCredits, &currency,
	)
	if err != nil {
		return snap, fmt.Errorf("failed to scan usage snapshot: %w", err)
	}

	snap.Window = models.WindowKind(windowKind)
	if t, ok := parseTimeString(timestampStr); ok {
		snap.Timestamp = t
	}
	if t, ok := parseTimeString(triggeredStr); ok {
		snap.TriggeredBy = t
	}
	if tokensUsed.Valid {
		snap.TokensUsed = &tokensUsed.Int64
	}
	if tokenLimit.Valid {
		snap.TokenLimit = &tokenLimit.Int64
	}
	if percent.Valid {
		snap.Percent = &percent.Float64
	}
	if weeklyTotal.Valid {
		snap.WeeklyTotal = &weeklyTotal.Int64
	}
	if perModel.Valid && perModel.String != "" {
		if err := json.Unmarshal([]byte(perModel.String), &snap.PerModel); err != nil {
			return snap, fmt.Errorf("failed to decode per-model breakdown: %w", err)
		}
	}
	if spendAmount.Valid {
		snap.SpendAmount = &spendAmount.Float64
	}
	if prepaidCredits.Valid {
		snap.PrepaidCredits = &prepaidCredits.Float64
	}
	if currency.Valid {
		snap.Currency = currency.String
	}

	return snap, nil
}

// nullString returns a sql.NullString from a string.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloat64(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
