package warranty

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// PeriodUnit enumerates the supported coverage period units.
type PeriodUnit string

const (
	// PeriodUnitDays measures the coverage period in days.
	PeriodUnitDays PeriodUnit = "Days"
	// PeriodUnitMonths measures the coverage period in months.
	PeriodUnitMonths PeriodUnit = "Months"
	// PeriodUnitYears measures the coverage period in years.
	PeriodUnitYears PeriodUnit = "Years"
)

const (
	// editLimit caps accepted edits on a non-imported item.
	editLimit = 2
	// importMarker identifies import-locked items; importMeta carries it
	// together with the import date.
	importMarker = "Imported from CSV"

	maxPeriodValue = 100
	minRemindDays  = 1
	maxRemindDays  = 365
	// defaultRemindDays is the reminder window applied when none is given.
	defaultRemindDays = 30
)

var (
	// ErrNotFound indicates that an operation referenced a nonexistent id.
	ErrNotFound = errors.New("warranty: item not found")
	// ErrImportLocked indicates an edit attempt on an import-flagged item.
	ErrImportLocked = errors.New("warranty: imported items cannot be edited")
	// ErrEditLimitReached indicates an edit attempt past the edit cap.
	ErrEditLimitReached = errors.New("warranty: edit limit reached")
	// ErrValidation indicates a rejected draft.
	ErrValidation = errors.New("warranty: validation failed")
	// ErrDuplicate indicates a create with a matching name and serial.
	ErrDuplicate = errors.New("warranty: item with same name and serial already exists")
	// ErrPersistence indicates that the underlying store failed.
	ErrPersistence = errors.New("warranty: persistence failure")
)

// Item is a tracked warranty record. Timestamps are persisted as RFC 3339
// strings so raw representations survive store round-trips and unparseable
// values stay representable.
type Item struct {
	ID          string     `json:"id"`
	PGSerial    string     `json:"pgSerial"`
	Name        string     `json:"name"`
	Shop        string     `json:"shop"`
	Kind        string     `json:"kind"`
	Serial      string     `json:"serial"`
	BuyDate     string     `json:"buyDate"`
	PeriodValue int        `json:"periodValue"`
	PeriodUnit  PeriodUnit `json:"periodUnit"`
	EndDate     string     `json:"endDate"`
	RemindDays  int        `json:"remindDays"`
	Notes       string     `json:"notes"`
	CreatedAt   string     `json:"createdAt"`
	LastEdited  string     `json:"lastEdited"`
	EditCount   int        `json:"editCount"`
	ImportMeta  string     `json:"importMeta,omitempty"`
	IsImported  bool       `json:"isImported,omitempty"`
}

// ImportLocked reports whether the item originates from a CSV import and is
// therefore permanently non-editable.
func (i Item) ImportLocked() bool {
	return strings.Contains(i.ImportMeta, importMarker)
}

// TrashedItem is an Item awaiting permanent deletion or restoration.
type TrashedItem struct {
	Item
	DeletedAt  string `json:"deletedAt"`
	OriginalID string `json:"originalId"`
}

// FieldChange records one field-level difference between two item snapshots.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
}

// LogEntry is an immutable audit record of one accepted edit. Entries are
// never mutated or deleted, even when the owning item is purged.
type LogEntry struct {
	ID        string        `json:"id"`
	ItemID    string        `json:"itemId"`
	Name      string        `json:"name"`
	PGSerial  string        `json:"pgSerial"`
	Changes   []FieldChange `json:"changes"`
	EditIndex int           `json:"editIndex"`
	At        string        `json:"at"`
}

// Draft is the caller-supplied input for creating or updating an item.
type Draft struct {
	Name        string     `json:"name"`
	Shop        string     `json:"shop"`
	Kind        string     `json:"kind"`
	Serial      string     `json:"serial"`
	BuyDate     string     `json:"buyDate"`
	PeriodValue int        `json:"periodValue"`
	PeriodUnit  PeriodUnit `json:"periodUnit"`
	RemindDays  int        `json:"remindDays"`
	Notes       string     `json:"notes"`
}

// withDefaults fills unset draft fields before validation.
func (d Draft) withDefaults() Draft {
	if d.RemindDays == 0 {
		d.RemindDays = defaultRemindDays
	}
	if d.PeriodUnit == "" {
		d.PeriodUnit = PeriodUnitYears
	}
	return d
}

// Editability is the single decision consumed everywhere an edit is attempted.
type Editability struct {
	Allowed bool
	Reason  string
}

func editability(item Item) Editability {
	if item.ImportLocked() {
		return Editability{Reason: "This item was imported from CSV and cannot be edited."}
	}
	if item.EditCount >= editLimit {
		return Editability{Reason: fmt.Sprintf("Edit limit (%d) reached for this item.", editLimit)}
	}
	return Editability{Allowed: true}
}

func validateDraft(draft Draft) error {
	if strings.TrimSpace(draft.Name) == "" {
		return fmt.Errorf("%w: product name is required", ErrValidation)
	}
	if strings.TrimSpace(draft.BuyDate) == "" {
		return fmt.Errorf("%w: buying date is required", ErrValidation)
	}
	if _, err := parseInstant(draft.BuyDate); err != nil {
		return fmt.Errorf("%w: invalid buying date", ErrValidation)
	}
	if draft.PeriodValue <= 0 {
		return fmt.Errorf("%w: period must be a positive number", ErrValidation)
	}
	if draft.PeriodValue > maxPeriodValue {
		return fmt.Errorf("%w: period cannot exceed %d", ErrValidation, maxPeriodValue)
	}
	switch draft.PeriodUnit {
	case PeriodUnitDays, PeriodUnitMonths, PeriodUnitYears:
	default:
		return fmt.Errorf("%w: unknown period unit %q", ErrValidation, draft.PeriodUnit)
	}
	if draft.RemindDays < minRemindDays || draft.RemindDays > maxRemindDays {
		return fmt.Errorf("%w: reminder days must be between %d and %d", ErrValidation, minRemindDays, maxRemindDays)
	}
	return nil
}

// parseInstant parses a persisted timestamp. Drafts may carry either a full
// RFC 3339 instant or a bare calendar date.
func parseInstant(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty instant")
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02", trimmed)
}

func formatInstant(value time.Time) string {
	return value.UTC().Format(time.RFC3339)
}
