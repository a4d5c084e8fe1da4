package usecase

import (
	"sort"

	"AlertEnricher/internal/domain"
)

// Selection is the ordered set of alerts a tick will enrich.
type Selection struct {
	Alerts []domain.AlertRecord
	MaxID  int64
}

// Empty reports whether nothing qualified.
func (s Selection) Empty() bool { return len(s.Alerts) == 0 }

// SelectAlerts keeps records newer than the checkpoint whose severity meets the
// threshold. Records sharing a Key keep their first occurrence; records that
// only share ID are distinct alerts. The result is sorted by ID, then Key.
func SelectAlerts(records []domain.AlertRecord, checkpoint int64, threshold int) Selection {
	seen := make(map[string]struct{})
	var sel Selection
	for _, rec := range records {
		if rec.ID <= checkpoint || rec.Severity < threshold {
			continue
		}
		key := rec.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		sel.Alerts = append(sel.Alerts, rec)
		if rec.ID > sel.MaxID {
			sel.MaxID = rec.ID
		}
	}

	sort.SliceStable(sel.Alerts, func(i, j int) bool {
		a, b := sel.Alerts[i], sel.Alerts[j]
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return domain.KeyLess(a.Key(), b.Key())
	})
	return sel
}
