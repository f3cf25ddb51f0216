package warranty

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateAssignsIdentityAndDefaults(t *testing.T) {
	service, _, clock := newTestService(t)

	item := mustCreate(t, service, validDraft())

	if item.ID != "item-1" {
		t.Fatalf("unexpected id %s", item.ID)
	}
	if item.PGSerial != "PG625002" {
		t.Fatalf("unexpected serial %s", item.PGSerial)
	}
	if item.EndDate != "2024-12-31T00:00:00Z" {
		t.Fatalf("unexpected end date %s", item.EndDate)
	}
	if item.EditCount != 0 {
		t.Fatalf("new item should start at zero edits, got %d", item.EditCount)
	}
	if item.CreatedAt != formatInstant(clock.now) || item.LastEdited != item.CreatedAt {
		t.Fatalf("unexpected timestamps: createdAt=%s lastEdited=%s", item.CreatedAt, item.LastEdited)
	}

	items, err := service.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one active item, got %d", len(items))
	}
}

func TestCreateValidatesDraft(t *testing.T) {
	service, _, _ := newTestService(t)

	tests := []struct {
		name   string
		mutate func(*Draft)
	}{
		{name: "missing-name", mutate: func(d *Draft) { d.Name = " " }},
		{name: "missing-buy-date", mutate: func(d *Draft) { d.BuyDate = "" }},
		{name: "unparseable-buy-date", mutate: func(d *Draft) { d.BuyDate = "soon" }},
		{name: "zero-period", mutate: func(d *Draft) { d.PeriodValue = 0 }},
		{name: "period-over-100", mutate: func(d *Draft) { d.PeriodValue = 101 }},
		{name: "reminder-over-365", mutate: func(d *Draft) { d.RemindDays = 366 }},
		{name: "negative-reminder", mutate: func(d *Draft) { d.RemindDays = -1 }},
		{name: "unknown-unit", mutate: func(d *Draft) { d.PeriodUnit = "Fortnights" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := validDraft()
			tt.mutate(&draft)
			if _, err := service.Create(context.Background(), draft); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateRejectsDuplicateNameAndSerial(t *testing.T) {
	service, _, _ := newTestService(t)
	mustCreate(t, service, validDraft())

	duplicate := validDraft()
	duplicate.Name = "WASHING machine"
	duplicate.Serial = "wm-1000"
	if _, err := service.Create(context.Background(), duplicate); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestCreateAllowsSameNameWithoutSerial(t *testing.T) {
	service, _, _ := newTestService(t)
	first := validDraft()
	first.Serial = ""
	mustCreate(t, service, first)

	second := validDraft()
	second.Serial = ""
	if _, err := service.Create(context.Background(), second); err != nil {
		t.Fatalf("items without serials should not collide, got %v", err)
	}
}

func TestUpdateRecordsLogAndIncrementsEditCount(t *testing.T) {
	service, _, clock := newTestService(t)
	item := mustCreate(t, service, validDraft())
	clock.Advance(time.Hour)

	draft := validDraft()
	draft.Shop = "MegaMart"
	updated := mustUpdate(t, service, item.ID, draft)

	if updated.EditCount != 1 {
		t.Fatalf("expected edit count 1, got %d", updated.EditCount)
	}
	if updated.LastEdited != formatInstant(clock.now) {
		t.Fatalf("expected lastEdited to move, got %s", updated.LastEdited)
	}
	if updated.CreatedAt != item.CreatedAt {
		t.Fatalf("createdAt must be preserved")
	}
	if updated.PGSerial != item.PGSerial {
		t.Fatalf("pgSerial must be preserved")
	}

	logs, err := service.LogsFor(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("unexpected logs error: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected one log entry, got %d", len(logs))
	}
	entry := logs[0]
	if entry.EditIndex != 1 {
		t.Fatalf("expected edit index 1, got %d", entry.EditIndex)
	}
	if entry.Name != item.Name || entry.PGSerial != item.PGSerial {
		t.Fatalf("log should snapshot name and serial at edit time")
	}
	if len(entry.Changes) != 1 || entry.Changes[0].Field != "shop" {
		t.Fatalf("unexpected changes %v", entry.Changes)
	}
	if entry.Changes[0].OldValue != "HomeMart" || entry.Changes[0].NewValue != "MegaMart" {
		t.Fatalf("unexpected change values %v", entry.Changes[0])
	}
}

func TestUpdateWithIdenticalValuesIsANoOp(t *testing.T) {
	service, _, clock := newTestService(t)
	item := mustCreate(t, service, validDraft())
	clock.Advance(time.Hour)

	result, changed, err := service.Update(context.Background(), item.ID, validDraft())
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if changed {
		t.Fatalf("identical draft should not count as an edit")
	}
	if result.EditCount != 0 {
		t.Fatalf("edit count must stay at 0, got %d", result.EditCount)
	}
	if result.LastEdited != item.LastEdited {
		t.Fatalf("lastEdited must not move on a no-op")
	}

	logs, err := service.Logs(context.Background())
	if err != nil {
		t.Fatalf("unexpected logs error: %v", err)
	}
	if len(logs) != 0 {
		t.Fatalf("no-op update must not write a log, got %d entries", len(logs))
	}
}

func TestUpdateEnforcesEditLimit(t *testing.T) {
	service, _, _ := newTestService(t)
	item := mustCreate(t, service, validDraft())

	first := validDraft()
	first.Shop = "Shop A"
	mustUpdate(t, service, item.ID, first)

	second := validDraft()
	second.Shop = "Shop B"
	updated := mustUpdate(t, service, item.ID, second)
	if updated.EditCount != 2 {
		t.Fatalf("expected edit count 2, got %d", updated.EditCount)
	}

	third := validDraft()
	third.Shop = "Shop C"
	if _, _, err := service.Update(context.Background(), item.ID, third); !errors.Is(err, ErrEditLimitReached) {
		t.Fatalf("expected edit limit error, got %v", err)
	}

	logs, err := service.LogsFor(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("unexpected logs error: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("rejected edit must not add a log entry, got %d", len(logs))
	}
}

func TestUpdateRejectsImportLockedItems(t *testing.T) {
	service, _, _ := newTestService(t)
	summary, err := service.ImportCSV(context.Background(), "name,serial\nRouter,RT-1\n")
	if err != nil {
		t.Fatalf("unexpected import error: %v", err)
	}
	if summary.Added != 1 {
		t.Fatalf("expected one imported item, got %+v", summary)
	}

	items, err := service.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	draft := validDraft()
	if _, _, err := service.Update(context.Background(), items[0].ID, draft); !errors.Is(err, ErrImportLocked) {
		t.Fatalf("expected import lock error, got %v", err)
	}
}

func TestUpdateUnknownIDReturnsNotFound(t *testing.T) {
	service, _, _ := newTestService(t)
	if _, _, err := service.Update(context.Background(), "missing", validDraft()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEditability(t *testing.T) {
	service, _, _ := newTestService(t)

	tests := []struct {
		name    string
		item    Item
		allowed bool
	}{
		{name: "fresh-item", item: Item{}, allowed: true},
		{name: "one-edit", item: Item{EditCount: 1}, allowed: true},
		{name: "at-limit", item: Item{EditCount: 2}, allowed: false},
		{name: "import-locked", item: Item{ImportMeta: "Imported from CSV • 1 Jun 2024"}, allowed: false},
		{name: "import-locked-trumps-count", item: Item{ImportMeta: "Imported from CSV • 1 Jun 2024", EditCount: 0}, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := service.Editability(tt.item)
			if decision.Allowed != tt.allowed {
				t.Fatalf("expected allowed=%v, got %+v", tt.allowed, decision)
			}
			if !decision.Allowed && decision.Reason == "" {
				t.Fatalf("blocked decision must carry a reason")
			}
		})
	}
}

func TestSoftDeleteMovesItemToTrash(t *testing.T) {
	service, _, clock := newTestService(t)
	item := mustCreate(t, service, validDraft())
	clock.Advance(2 * time.Hour)

	trashed, err := service.SoftDelete(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("unexpected soft delete error: %v", err)
	}
	if trashed.DeletedAt != formatInstant(clock.now) {
		t.Fatalf("unexpected deletedAt %s", trashed.DeletedAt)
	}
	if trashed.OriginalID != item.ID {
		t.Fatalf("originalId should copy the item id")
	}

	items, err := service.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("active collection should be empty, got %d", len(items))
	}

	if _, err := service.SoftDelete(context.Background(), item.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestRestoreShiftsCreatedAtOutOfRecentWindow(t *testing.T) {
	service, _, clock := newTestService(t)
	item := mustCreate(t, service, validDraft())
	if !IsRecentlyCreated(item, clock.now) {
		t.Fatalf("fresh item should be recent")
	}

	if _, err := service.SoftDelete(context.Background(), item.ID); err != nil {
		t.Fatalf("unexpected soft delete error: %v", err)
	}
	restored, err := service.Restore(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("unexpected restore error: %v", err)
	}

	created, parseErr := parseInstant(restored.CreatedAt)
	if parseErr != nil {
		t.Fatalf("unexpected createdAt %q", restored.CreatedAt)
	}
	original, _ := parseInstant(item.CreatedAt)
	if !created.Equal(original.Add(-37 * time.Hour)) {
		t.Fatalf("expected createdAt shifted back 37h, got %s", restored.CreatedAt)
	}
	if IsRecentlyCreated(restored, clock.now) {
		t.Fatalf("restored item must not count as recently created")
	}
	if restored.ID != item.ID {
		t.Fatalf("restore must keep the original id")
	}

	trash, err := service.ListTrash(context.Background())
	if err != nil {
		t.Fatalf("unexpected trash error: %v", err)
	}
	if len(trash) != 0 {
		t.Fatalf("trash should be empty after restore, got %d", len(trash))
	}
}

func TestPurgePreservesLogs(t *testing.T) {
	service, _, _ := newTestService(t)
	item := mustCreate(t, service, validDraft())

	first := validDraft()
	first.Shop = "Shop A"
	mustUpdate(t, service, item.ID, first)
	second := validDraft()
	second.Shop = "Shop B"
	mustUpdate(t, service, item.ID, second)

	if _, err := service.SoftDelete(context.Background(), item.ID); err != nil {
		t.Fatalf("unexpected soft delete error: %v", err)
	}
	if _, err := service.Purge(context.Background(), item.ID); err != nil {
		t.Fatalf("unexpected purge error: %v", err)
	}

	trash, err := service.ListTrash(context.Background())
	if err != nil {
		t.Fatalf("unexpected trash error: %v", err)
	}
	if len(trash) != 0 {
		t.Fatalf("expected empty trash after purge")
	}

	logs, err := service.LogsFor(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("unexpected logs error: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("purge must preserve edit history, got %d entries", len(logs))
	}

	if _, err := service.Purge(context.Background(), item.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second purge, got %v", err)
	}
}

func TestListTrashOrdersByDeletionTimeDescending(t *testing.T) {
	service, _, clock := newTestService(t)
	first := mustCreate(t, service, validDraft())
	draft := validDraft()
	draft.Name = "Dishwasher"
	draft.Serial = "DW-2000"
	second := mustCreate(t, service, draft)

	if _, err := service.SoftDelete(context.Background(), first.ID); err != nil {
		t.Fatalf("unexpected soft delete error: %v", err)
	}
	clock.Advance(time.Hour)
	if _, err := service.SoftDelete(context.Background(), second.ID); err != nil {
		t.Fatalf("unexpected soft delete error: %v", err)
	}

	trash, err := service.ListTrash(context.Background())
	if err != nil {
		t.Fatalf("unexpected trash error: %v", err)
	}
	if len(trash) != 2 {
		t.Fatalf("expected two trashed items, got %d", len(trash))
	}
	if trash[0].ID != second.ID || trash[1].ID != first.ID {
		t.Fatalf("expected most recently deleted first, got %s then %s", trash[0].ID, trash[1].ID)
	}
}

func TestListPreservesInsertionOrder(t *testing.T) {
	service, _, _ := newTestService(t)
	names := []string{"Zebra", "Apple", "Mango"}
	for i, name := range names {
		draft := validDraft()
		draft.Name = name
		draft.Serial = draft.Serial + string(rune('A'+i))
		mustCreate(t, service, draft)
	}

	items, err := service.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	for i, name := range names {
		if items[i].Name != name {
			t.Fatalf("position %d: expected %s, got %s", i, name, items[i].Name)
		}
	}
}

func TestSearchMatchesAcrossFields(t *testing.T) {
	service, _, _ := newTestService(t)
	item := mustCreate(t, service, validDraft())

	tests := []struct {
		name    string
		query   string
		matches int
	}{
		{name: "by-name", query: "washing", matches: 1},
		{name: "by-shop", query: "homemart", matches: 1},
		{name: "by-serial", query: "wm-10", matches: 1},
		{name: "by-pg-serial", query: item.PGSerial, matches: 1},
		{name: "no-match", query: "toaster", matches: 0},
		{name: "blank-query", query: "  ", matches: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := service.Search(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("unexpected search error: %v", err)
			}
			if len(found) != tt.matches {
				t.Fatalf("expected %d matches, got %d", tt.matches, len(found))
			}
		})
	}
}

func TestMutationsSurfacePersistenceFailures(t *testing.T) {
	service, store, _ := newTestService(t)
	mustCreate(t, service, validDraft())

	store.FailWrites = true
	draft := validDraft()
	draft.Name = "Dryer"
	draft.Serial = "DR-1"
	if _, err := service.Create(context.Background(), draft); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}

	store.FailWrites = false
	items, err := service.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("failed write must not leave partial state, got %d items", len(items))
	}
}
