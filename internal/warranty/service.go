package warranty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/proofguardlab/proofguard/internal/storage"
	"go.uber.org/zap"
)

var (
	errMissingStore = errors.New("store is required")
	noOpLogger      = zap.NewNop()
)

// ServiceConfig assembles the dependencies of a Service.
type ServiceConfig struct {
	Store      storage.KV
	Clock      func() time.Time
	IDProvider IDProvider
	Sequences  *SequenceGenerator
	Logger     *zap.Logger
}

// Service owns the active-item, trash, and log collections. All mutating
// operations are read-modify-write cycles against the flat store; the mutex
// keeps two logical writes from interleaving collection reads and writes.
type Service struct {
	store  storage.KV
	clock  func() time.Time
	ids    IDProvider
	seq    *SequenceGenerator
	logger *zap.Logger
	mu     sync.Mutex
}

// NewService validates the configuration and builds a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	seq := cfg.Sequences
	if seq == nil {
		seq = NewSequenceGenerator(cfg.Store, clock, logger)
	}
	return &Service{
		store:  cfg.Store,
		clock:  clock,
		ids:    ids,
		seq:    seq,
		logger: logger,
	}, nil
}

// Editability reports whether the item accepts further edits, with a
// human-readable reason when it does not.
func (s *Service) Editability(item Item) Editability {
	return editability(item)
}

// Create validates the draft, rejects duplicates, assigns identifiers, and
// appends the item to the active collection.
func (s *Service) Create(ctx context.Context, draft Draft) (Item, error) {
	draft = draft.withDefaults()
	if err := validateDraft(draft); err != nil {
		return Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadItems(ctx)
	if err != nil {
		return Item{}, err
	}
	if hasDuplicate(items, draft.Name, draft.Serial, false) {
		return Item{}, fmt.Errorf("%w: %q / %q", ErrDuplicate, draft.Name, draft.Serial)
	}

	id, err := s.ids.NewID()
	if err != nil {
		s.logError("create", "id_generation_failed", err)
		return Item{}, fmt.Errorf("%w: generating id: %v", ErrPersistence, err)
	}

	now := s.clock()
	item := itemFromDraft(draft)
	item.ID = id
	item.PGSerial = s.seq.NextSerial(ctx)
	item.CreatedAt = formatInstant(now)
	item.LastEdited = formatInstant(now)

	items = append(items, item)
	if err := s.saveItems(ctx, items); err != nil {
		return Item{}, err
	}

	s.logger.Info("item created",
		zap.String("item_id", item.ID),
		zap.String("pg_serial", item.PGSerial))
	return item, nil
}

// Update applies the draft to an existing item. Imported items and items at
// the edit limit are rejected. A draft that changes no field is a no-op: it
// touches neither editCount nor lastEdited and writes no log entry. The
// returned bool reports whether an edit was accepted.
func (s *Service) Update(ctx context.Context, id string, draft Draft) (Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadItems(ctx)
	if err != nil {
		return Item{}, false, err
	}
	index := indexOfItem(items, id)
	if index < 0 {
		return Item{}, false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	existing := items[index]

	if existing.ImportLocked() {
		return Item{}, false, fmt.Errorf("%w: %s", ErrImportLocked, id)
	}
	if existing.EditCount >= editLimit {
		return Item{}, false, fmt.Errorf("%w: %s", ErrEditLimitReached, id)
	}
	draft = draft.withDefaults()
	if err := validateDraft(draft); err != nil {
		return Item{}, false, err
	}

	now := s.clock()
	updated := itemFromDraft(draft)
	updated.ID = existing.ID
	updated.PGSerial = existing.PGSerial
	updated.CreatedAt = existing.CreatedAt
	updated.ImportMeta = existing.ImportMeta
	updated.IsImported = existing.IsImported

	changes := diffItems(existing, updated)
	if len(changes) == 0 {
		return existing, false, nil
	}

	updated.LastEdited = formatInstant(now)
	updated.EditCount = existing.EditCount + 1
	items[index] = updated
	if err := s.saveItems(ctx, items); err != nil {
		return Item{}, false, err
	}

	if err := s.appendLog(ctx, existing, changes, now); err != nil {
		return Item{}, false, err
	}

	s.logger.Info("item updated",
		zap.String("item_id", updated.ID),
		zap.Int("edit_count", updated.EditCount),
		zap.Int("changed_fields", len(changes)))
	return updated, true, nil
}

// SoftDelete moves the item from the active collection to trash.
func (s *Service) SoftDelete(ctx context.Context, id string) (TrashedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadItems(ctx)
	if err != nil {
		return TrashedItem{}, err
	}
	index := indexOfItem(items, id)
	if index < 0 {
		return TrashedItem{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	trash, err := s.loadTrash(ctx)
	if err != nil {
		return TrashedItem{}, err
	}

	trashed := TrashedItem{
		Item:       items[index],
		DeletedAt:  formatInstant(s.clock()),
		OriginalID: items[index].ID,
	}
	items = append(items[:index], items[index+1:]...)
	trash = append(trash, trashed)

	if err := s.saveItems(ctx, items); err != nil {
		return TrashedItem{}, err
	}
	if err := s.saveTrash(ctx, trash); err != nil {
		return TrashedItem{}, err
	}

	s.logger.Info("item moved to trash", zap.String("item_id", trashed.ID))
	return trashed, nil
}

// List returns the active collection in insertion order. Sorting and
// filtering are presentation concerns.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	return s.loadItems(ctx)
}

// Search returns active items whose name, shop, serial, PG serial, or kind
// contains the query, case-insensitively.
func (s *Service) Search(ctx context.Context, query string) ([]Item, error) {
	items, err := s.loadItems(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return []Item{}, nil
	}
	matches := make([]Item, 0)
	for _, item := range items {
		if itemMatches(item, needle) {
			matches = append(matches, item)
		}
	}
	return matches, nil
}

// Restore moves the item out of trash back into the active collection. The
// creation timestamp is shifted 37 hours into the past so a restored item
// never reappears with the recently-created marker.
func (s *Service) Restore(ctx context.Context, id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trash, err := s.loadTrash(ctx)
	if err != nil {
		return Item{}, err
	}
	index := indexOfTrashed(trash, id)
	if index < 0 {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	items, err := s.loadItems(ctx)
	if err != nil {
		return Item{}, err
	}

	restored := trash[index].Item
	if created, parseErr := parseInstant(restored.CreatedAt); parseErr == nil {
		restored.CreatedAt = formatInstant(created.Add(-37 * time.Hour))
	}
	trash = append(trash[:index], trash[index+1:]...)
	items = append(items, restored)

	if err := s.saveItems(ctx, items); err != nil {
		return Item{}, err
	}
	if err := s.saveTrash(ctx, trash); err != nil {
		return Item{}, err
	}

	s.logger.Info("item restored", zap.String("item_id", restored.ID))
	return restored, nil
}

// Purge permanently removes the item from trash. Log entries for the item
// are untouched: edit history outlives the record it describes.
func (s *Service) Purge(ctx context.Context, id string) (TrashedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trash, err := s.loadTrash(ctx)
	if err != nil {
		return TrashedItem{}, err
	}
	index := indexOfTrashed(trash, id)
	if index < 0 {
		return TrashedItem{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	purged := trash[index]
	trash = append(trash[:index], trash[index+1:]...)
	if err := s.saveTrash(ctx, trash); err != nil {
		return TrashedItem{}, err
	}

	s.logger.Info("item permanently deleted", zap.String("item_id", purged.ID))
	return purged, nil
}

// ListTrash returns trashed items ordered by deletion time, most recent first.
func (s *Service) ListTrash(ctx context.Context) ([]TrashedItem, error) {
	trash, err := s.loadTrash(ctx)
	if err != nil {
		return nil, err
	}
	sorted := make([]TrashedItem, len(trash))
	copy(sorted, trash)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DeletedAt > sorted[j].DeletedAt
	})
	return sorted, nil
}

// Logs returns the full log collection, newest first.
func (s *Service) Logs(ctx context.Context) ([]LogEntry, error) {
	logs, err := s.loadLogs(ctx)
	if err != nil {
		return nil, err
	}
	sorted := make([]LogEntry, len(logs))
	copy(sorted, logs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].At > sorted[j].At
	})
	return sorted, nil
}

// LogsFor returns the log entries recorded for one item, newest first.
func (s *Service) LogsFor(ctx context.Context, itemID string) ([]LogEntry, error) {
	logs, err := s.Logs(ctx)
	if err != nil {
		return nil, err
	}
	matches := make([]LogEntry, 0)
	for _, entry := range logs {
		if entry.ItemID == itemID {
			matches = append(matches, entry)
		}
	}
	return matches, nil
}

func (s *Service) appendLog(ctx context.Context, before Item, changes []FieldChange, now time.Time) error {
	logs, err := s.loadLogs(ctx)
	if err != nil {
		return err
	}
	entry := LogEntry{
		ID:        s.seq.NextLogID(ctx),
		ItemID:    before.ID,
		Name:      before.Name,
		PGSerial:  before.PGSerial,
		Changes:   changes,
		EditIndex: before.EditCount + 1,
		At:        formatInstant(now),
	}
	logs = append(logs, entry)
	return s.saveLogs(ctx, logs)
}

func itemFromDraft(draft Draft) Item {
	buyDate, _ := parseInstant(draft.BuyDate)
	endDate := computeEndDate(buyDate, draft.PeriodValue, draft.PeriodUnit)
	return Item{
		Name:        strings.TrimSpace(draft.Name),
		Shop:        strings.TrimSpace(draft.Shop),
		Kind:        strings.TrimSpace(draft.Kind),
		Serial:      strings.TrimSpace(draft.Serial),
		BuyDate:     formatInstant(buyDate),
		PeriodValue: draft.PeriodValue,
		PeriodUnit:  draft.PeriodUnit,
		EndDate:     formatInstant(endDate),
		RemindDays:  draft.RemindDays,
		Notes:       strings.TrimSpace(draft.Notes),
	}
}

// hasDuplicate reports a case-insensitive (name, serial) match. Manual
// creates only collide on items carrying a serial; CSV import compares
// serials verbatim so two blank serials also match.
func hasDuplicate(items []Item, name, serial string, matchEmptySerial bool) bool {
	nameFold := strings.ToLower(strings.TrimSpace(name))
	serialFold := strings.ToLower(strings.TrimSpace(serial))
	for _, item := range items {
		if strings.ToLower(item.Name) != nameFold {
			continue
		}
		if !matchEmptySerial && item.Serial == "" {
			continue
		}
		if strings.ToLower(item.Serial) == serialFold {
			return true
		}
	}
	return false
}

func itemMatches(item Item, needle string) bool {
	for _, value := range []string{item.Name, item.Shop, item.Serial, item.PGSerial, item.Kind} {
		if strings.Contains(strings.ToLower(value), needle) {
			return true
		}
	}
	return false
}

func indexOfItem(items []Item, id string) int {
	for i, item := range items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func indexOfTrashed(trash []TrashedItem, id string) int {
	for i, item := range trash {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) loadItems(ctx context.Context) ([]Item, error) {
	var items []Item
	if err := s.loadCollection(ctx, storage.KeyItems, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

func (s *Service) saveItems(ctx context.Context, items []Item) error {
	return s.saveCollection(ctx, storage.KeyItems, items)
}

func (s *Service) loadTrash(ctx context.Context) ([]TrashedItem, error) {
	var trash []TrashedItem
	if err := s.loadCollection(ctx, storage.KeyTrash, &trash); err != nil {
		return nil, err
	}
	if trash == nil {
		trash = []TrashedItem{}
	}
	return trash, nil
}

func (s *Service) saveTrash(ctx context.Context, trash []TrashedItem) error {
	return s.saveCollection(ctx, storage.KeyTrash, trash)
}

func (s *Service) loadLogs(ctx context.Context) ([]LogEntry, error) {
	var logs []LogEntry
	if err := s.loadCollection(ctx, storage.KeyLogs, &logs); err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []LogEntry{}
	}
	return logs, nil
}

func (s *Service) saveLogs(ctx context.Context, logs []LogEntry) error {
	return s.saveCollection(ctx, storage.KeyLogs, logs)
}

func (s *Service) loadCollection(ctx context.Context, key string, target any) error {
	raw, ok, err := s.store.Read(ctx, key)
	if err != nil {
		s.logError("load", key, err)
		return fmt.Errorf("%w: reading %s: %v", ErrPersistence, key, err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		s.logError("load", key, err)
		return fmt.Errorf("%w: decoding %s: %v", ErrPersistence, key, err)
	}
	return nil
}

func (s *Service) saveCollection(ctx context.Context, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		s.logError("save", key, err)
		return fmt.Errorf("%w: encoding %s: %v", ErrPersistence, key, err)
	}
	if err := s.store.Write(ctx, key, string(encoded)); err != nil {
		s.logError("save", key, err)
		return fmt.Errorf("%w: writing %s: %v", ErrPersistence, key, err)
	}
	return nil
}

func (s *Service) logError(operation, subject string, err error) {
	s.logger.Error("warranty service error",
		zap.String("operation", operation),
		zap.String("subject", subject),
		zap.Error(err))
}
