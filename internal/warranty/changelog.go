package warranty

import (
	"strconv"
	"strings"
)

// loggedFields is the fixed ordered field set compared on every edit.
var loggedFields = []string{
	"name", "shop", "kind", "serial", "buyDate",
	"periodValue", "periodUnit", "endDate", "remindDays", "notes",
}

// diffItems compares two snapshots field by field and returns the ordered
// change list. Date-valued fields are compared by parsed instant, so two
// representations of the same instant are not a change, and neither is an
// unparseable value on both sides. All other fields compare by string
// coercion.
func diffItems(oldItem, newItem Item) []FieldChange {
	var changes []FieldChange
	for _, field := range loggedFields {
		oldValue := fieldValue(oldItem, field)
		newValue := fieldValue(newItem, field)

		var differs bool
		if strings.Contains(field, "Date") {
			differs = instantsDiffer(oldValue, newValue)
		} else {
			differs = oldValue != newValue
		}

		if differs {
			changes = append(changes, FieldChange{
				Field:    field,
				OldValue: oldValue,
				NewValue: newValue,
			})
		}
	}
	return changes
}

func instantsDiffer(oldValue, newValue string) bool {
	oldParsed, oldErr := parseInstant(oldValue)
	newParsed, newErr := parseInstant(newValue)
	if oldErr != nil && newErr != nil {
		return false
	}
	if oldErr != nil || newErr != nil {
		return true
	}
	return !oldParsed.Equal(newParsed)
}

func fieldValue(item Item, field string) string {
	switch field {
	case "name":
		return item.Name
	case "shop":
		return item.Shop
	case "kind":
		return item.Kind
	case "serial":
		return item.Serial
	case "buyDate":
		return item.BuyDate
	case "periodValue":
		return strconv.Itoa(item.PeriodValue)
	case "periodUnit":
		return string(item.PeriodUnit)
	case "endDate":
		return item.EndDate
	case "remindDays":
		return strconv.Itoa(item.RemindDays)
	case "notes":
		return item.Notes
	default:
		return ""
	}
}
