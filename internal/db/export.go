package db

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/j-veylop/usagewatch/internal/models"
)

// exportColumns is the fixed CSV column order: timestamp and window kind
// first, then the metric fields.
var exportColumns = []string{
	"timestamp", "windowKind", "tokensUsed", "tokenLimit", "percent",
	"weeklyTotal", "perModel", "spendAmount", "prepaidCredits", "currency",
	"triggeredBy",
}

// ExportJSON serializes a profile's snapshot history as a pretty-printed,
// key-sorted JSON array with ISO-8601 timestamps, suitable for diffing
// across versions. A nil window exports all window kinds.
func (db *DB) ExportJSON(profileID string, window *models.WindowKind) (string, error) {
	snapshots, err := db.exportSnapshots(profileID, window)
	if err != nil {
		return "", err
	}

	// Marshal through maps so keys come out sorted.
	records := make([]map[string]any, 0, len(snapshots))
	for _, snap := range snapshots {
		records = append(records, snapshotRecord(snap))
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot export: %w", err)
	}
	return string(data), nil
}

// ExportCSV serializes a profile's snapshot history as CSV, one row per
// snapshot. A nil window exports all window kinds.
func (db *DB) ExportCSV(profileID string, window *models.WindowKind) (string, error) {
	snapshots, err := db.exportSnapshots(profileID, window)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(exportColumns); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, snap := range snapshots {
		row := []string{
			snap.Timestamp.UTC().Format(time.RFC3339),
			string(snap.Window),
			formatInt64(snap.TokensUsed),
			formatInt64(snap.TokenLimit),
			formatFloat64(snap.Percent),
			formatInt64(snap.WeeklyTotal),
			formatPerModel(snap.PerModel),
			formatFloat64(snap.SpendAmount),
			formatFloat64(snap.PrepaidCredits),
			snap.Currency,
			snap.TriggeredBy.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return "", fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to flush CSV export: %w", err)
	}
	return buf.String(), nil
}

func (db *DB) exportSnapshots(profileID string, window *models.WindowKind) ([]models.UsageSnapshot, error) {
	kinds := models.WindowKinds
	if window != nil {
		kinds = []models.WindowKind{*window}
	}

	var snapshots []models.UsageSnapshot
	for _, kind := range kinds {
		snaps, err := db.GetSnapshots(profileID, kind, models.TimeRangeAllTime)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snaps...)
	}

	// Newest first across window kinds as well.
	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

func snapshotRecord(snap models.UsageSnapshot) map[string]any {
	record := map[string]any{
		"id":          snap.ID,
		"timestamp":   snap.Timestamp.UTC().Format(time.RFC3339),
		"windowKind":  string(snap.Window),
		"triggeredBy": snap.TriggeredBy.UTC().Format(time.RFC3339),
	}
	if snap.TokensUsed != nil {
		record["tokensUsed"] = *snap.TokensUsed
	}
	if snap.TokenLimit != nil {
		record["tokenLimit"] = *snap.TokenLimit
	}
	if snap.Percent != nil {
		record["percent"] = *snap.Percent
	}
	if snap.WeeklyTotal != nil {
		record["weeklyTotal"] = *snap.WeeklyTotal
	}
	if len(snap.PerModel) > 0 {
		record["perModel"] = snap.PerModel
	}
	if snap.SpendAmount != nil {
		record["spendAmount"] = *snap.SpendAmount
	}
	if snap.PrepaidCredits != nil {
		record["prepaidCredits"] = *snap.PrepaidCredits
	}
	if snap.Currency != "" {
		record["currency"] = snap.Currency
	}
	return record
}

func formatInt64(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatFloat64(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatPerModel(perModel map[string]float64) string {
	if len(perModel) == 0 {
		return ""
	}
	data, err := json.Marshal(perModel)
	if err != nil {
		return ""
	}
	return string(data)
}
