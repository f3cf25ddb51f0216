package warranty

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// csvAliases maps each canonical field to its accepted header names, in
// priority order. Lookup is a case-sensitive exact match; the first present
// alias wins.
var csvAliases = map[string][]string{
	"name":        {"name", "Name", "Product", "product"},
	"serial":      {"serial", "Serial", "Serial Number", "serial_number"},
	"notes":       {"notes", "Note", "Notes", "Description", "description", "Comments", "comments"},
	"shop":        {"shop", "Shop", "store", "Store", "vendor"},
	"kind":        {"kind", "Kind", "type", "Type", "warranty_type"},
	"buyDate":     {"buyDate", "buy_date", "purchaseDate", "date", "Date", "purchase_date"},
	"periodValue": {"periodValue", "period_value", "period", "duration"},
	"periodUnit":  {"periodUnit", "period_unit", "unit", "PeriodUnit"},
	"remindDays":  {"remindDays", "remind_days", "reminder", "notify_before"},
}

// exportHeader is the fixed column order of exported files.
var exportHeader = []string{
	"name", "pgSerial", "shop", "kind", "serial", "buyDate",
	"periodValue", "periodUnit", "endDate", "remindDays", "notes",
}

var dateSeparators = regexp.MustCompile(`[/\-.]`)

// ImportSummary reports the outcome of one CSV import batch.
type ImportSummary struct {
	Total          int      `json:"total"`
	Added          int      `json:"added"`
	Duplicates     int      `json:"duplicates"`
	DuplicateItems []string `json:"duplicateItems"`
	Errors         int      `json:"errors"`
}

// ImportCSV normalizes untrusted tabular text into items and merges them
// into the active collection. Rows fail in isolation: a structural or
// validation problem skips the row and the batch continues. Duplicates
// against the current collection, including rows added earlier in the same
// batch, are counted and named but not inserted. The whole batch commits in
// a single persistence write.
func (s *Service) ImportCSV(ctx context.Context, text string) (ImportSummary, error) {
	summary := ImportSummary{DuplicateItems: []string{}}

	s.mu.Lock()
	defer s.mu.Unlock()

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return summary, fmt.Errorf("%w: missing header row", ErrValidation)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	items, err := s.loadItems(ctx)
	if err != nil {
		return summary, err
	}

	now := s.clock()
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			summary.Total++
			summary.Errors++
			continue
		}
		if isBlankRecord(record) {
			continue
		}
		summary.Total++
		if len(record) != len(header) {
			summary.Errors++
			continue
		}

		row := make(map[string]string, len(header))
		for i, column := range header {
			row[column] = strings.TrimSpace(record[i])
		}

		name := strings.TrimSpace(resolveField(row, "name"))
		if name == "" {
			summary.Errors++
			continue
		}
		serial := strings.TrimSpace(resolveField(row, "serial"))

		if hasDuplicate(items, name, serial, true) {
			summary.Duplicates++
			summary.DuplicateItems = append(summary.DuplicateItems, fmt.Sprintf("%s (%s)", name, serial))
			continue
		}

		buyDate := parseImportDate(resolveField(row, "buyDate"), now)
		periodValue := parseIntDefault(resolveField(row, "periodValue"), 1)
		periodUnit := normalizeUnit(resolveField(row, "periodUnit"))
		remindDays := parseIntDefault(resolveField(row, "remindDays"), defaultRemindDays)

		id, err := s.ids.NewID()
		if err != nil {
			s.logError("import", "id_generation_failed", err)
			summary.Errors++
			continue
		}

		item := Item{
			ID:          id,
			PGSerial:    s.seq.NextSerial(ctx),
			Name:        name,
			Shop:        strings.TrimSpace(resolveField(row, "shop")),
			Kind:        importKind(resolveField(row, "kind")),
			Serial:      serial,
			BuyDate:     formatInstant(buyDate),
			PeriodValue: periodValue,
			PeriodUnit:  periodUnit,
			EndDate:     formatInstant(computeEndDate(buyDate, periodValue, periodUnit)),
			RemindDays:  remindDays,
			Notes:       strings.TrimSpace(resolveField(row, "notes")),
			CreatedAt:   formatInstant(now),
			LastEdited:  formatInstant(now),
			ImportMeta:  fmt.Sprintf("%s • %s", importMarker, prettyDate(now)),
			IsImported:  true,
		}
		items = append(items, item)
		summary.Added++
	}

	if summary.Added > 0 {
		if err := s.saveItems(ctx, items); err != nil {
			return summary, err
		}
	}

	s.logger.Info("csv import finished",
		zap.Int("total", summary.Total),
		zap.Int("added", summary.Added),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("errors", summary.Errors))
	return summary, nil
}

// ExportCSV renders the items as CSV with human-readable dates. Fields
// containing commas, quotes, or newlines are quoted with internal quotes
// doubled; newlines inside notes are flattened to spaces.
func ExportCSV(items []Item) string {
	var out strings.Builder
	writer := csv.NewWriter(&out)
	writer.Write(exportHeader) //nolint:errcheck

	for _, item := range items {
		record := make([]string, len(exportHeader))
		for i, column := range exportHeader {
			record[i] = exportValue(item, column)
		}
		writer.Write(record) //nolint:errcheck
	}
	writer.Flush()
	return out.String()
}

func exportValue(item Item, column string) string {
	switch column {
	case "pgSerial":
		return item.PGSerial
	case "buyDate", "endDate":
		value := item.BuyDate
		if column == "endDate" {
			value = item.EndDate
		}
		parsed, err := parseInstant(value)
		if err != nil {
			return ""
		}
		return prettyDate(parsed)
	case "notes":
		return strings.ReplaceAll(item.Notes, "\n", " ")
	default:
		return fieldValue(item, column)
	}
}

func resolveField(row map[string]string, field string) string {
	for _, alias := range csvAliases[field] {
		if value, ok := row[alias]; ok && value != "" {
			return value
		}
	}
	return ""
}

// parseImportDate tries the known date layouts, then splitting on "/", "-",
// or "." as day/month/year, and finally defaults to now.
func parseImportDate(raw string, now time.Time) time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return now
	}
	if parsed, err := parseInstant(trimmed); err == nil {
		return parsed
	}
	if parsed, err := time.Parse("2 Jan 2006", trimmed); err == nil {
		return parsed
	}
	parts := dateSeparators.Split(trimmed, -1)
	if len(parts) == 3 {
		day, dayErr := strconv.Atoi(strings.TrimSpace(parts[0]))
		month, monthErr := strconv.Atoi(strings.TrimSpace(parts[1]))
		year, yearErr := strconv.Atoi(strings.TrimSpace(parts[2]))
		if dayErr == nil && monthErr == nil && yearErr == nil {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		}
	}
	return now
}

// normalizeUnit resolves heterogeneous period unit spellings by lowercase
// substring match, defaulting to years.
func normalizeUnit(raw string) PeriodUnit {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(lowered, "day"):
		return PeriodUnitDays
	case strings.Contains(lowered, "month"), strings.Contains(lowered, "mon"):
		return PeriodUnitMonths
	case strings.Contains(lowered, "year"), strings.Contains(lowered, "yr"):
		return PeriodUnitYears
	default:
		return PeriodUnitYears
	}
}

func importKind(raw string) string {
	kind := strings.TrimSpace(raw)
	if kind == "" {
		return "Warranty"
	}
	return kind
}

func parseIntDefault(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func isBlankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// prettyDate renders an instant in the export's "D Mon YYYY" form.
func prettyDate(value time.Time) string {
	return value.UTC().Format("2 Jan 2006")
}
