package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/diewo77/helpdesk-billing/internal/models"
)

// TimeGroup is one draft line-item descriptor produced from unbilled entries
// sharing a rate category. A nil RateCategoryID is the miscellaneous bucket.
type TimeGroup struct {
	RateCategoryID *uint
	CategoryName   string
	EntryIDs       []uint
	Minutes        int
	Quantity       decimal.Decimal // hours, rounded to 2 places
	Rate           decimal.Decimal
	Description    string
}

// CollectResult reports how many of the requested entries survived filtering,
// so callers can tell the user when a stale selection shrank.
type CollectResult struct {
	Requested int
	Matched   int
	Groups    []TimeGroup
}

var sixty = decimal.NewFromInt(60)

// CollectUnbilled filters the requested entries down to those that belong to
// the project, are billable, and are not yet claimed by a line item, then
// groups them by rate category. Entries failing a filter are dropped silently;
// re-submitting a stale selection includes less rather than erroring.
//
// Runs against the handed-in db so invoice creation can call it inside its
// transaction with row locks held.
func CollectUnbilled(db *gorm.DB, projectID uint, entryIDs []uint, on time.Time) (*CollectResult, error) {
	res := &CollectResult{Requested: len(entryIDs)}
	if len(entryIDs) == 0 {
		return res, nil
	}

	q := db.
		Joins("JOIN tickets ON tickets.id = time_entries.ticket_id").
		Where("tickets.project_id = ?", projectID).
		Where("time_entries.id IN ?", entryIDs).
		Where("time_entries.billable = ?", true).
		Where("time_entries.invoice_line_item_id IS NULL")
	if db.Dialector.Name() == "postgres" {
		// concurrent invoice creation races on the claim; sqlite (tests) has
		// no FOR UPDATE and serializes writers anyway
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "time_entries"}})
	}
	var entries []models.TimeEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	res.Matched = len(entries)
	if len(entries) == 0 {
		return res, nil
	}

	byCategory := map[uint][]models.TimeEntry{}
	var misc []models.TimeEntry
	for _, e := range entries {
		if e.RateCategoryID == nil {
			misc = append(misc, e)
			continue
		}
		byCategory[*e.RateCategoryID] = append(byCategory[*e.RateCategoryID], e)
	}

	catIDs := make([]uint, 0, len(byCategory))
	for id := range byCategory {
		catIDs = append(catIDs, id)
	}
	sort.Slice(catIDs, func(i, j int) bool { return catIDs[i] < catIDs[j] })

	names := map[uint]string{}
	if len(catIDs) > 0 {
		var cats []models.RateCategory
		if err := db.Where("id IN ?", catIDs).Find(&cats).Error; err != nil {
			return nil, err
		}
		for _, c := range cats {
			names[c.ID] = c.Name
		}
	}

	rates := NewRateService(db)
	for _, catID := range catIDs {
		group, err := buildGroup(byCategory[catID], names[catID])
		if err != nil {
			return nil, err
		}
		id := catID
		group.RateCategoryID = &id
		rate, err := rates.EffectiveRate(projectID, catID, on)
		if err != nil {
			return nil, err
		}
		if rate != nil {
			group.Rate = *rate
		}
		res.Groups = append(res.Groups, *group)
	}
	if len(misc) > 0 {
		group, err := buildGroup(misc, "Miscellaneous Time")
		if err != nil {
			return nil, err
		}
		// no category, no configured rate: billed at 0 by explicit policy
		res.Groups = append(res.Groups, *group)
	}
	return res, nil
}

func buildGroup(entries []models.TimeEntry, name string) (*TimeGroup, error) {
	g := &TimeGroup{CategoryName: name, Rate: decimal.Zero}
	for _, e := range entries {
		if e.Minutes < 0 {
			return nil, fmt.Errorf("time entry %d has negative minutes", e.ID)
		}
		g.EntryIDs = append(g.EntryIDs, e.ID)
		g.Minutes += e.Minutes
	}
	g.Quantity = decimal.NewFromInt(int64(g.Minutes)).Div(sixty).Round(2)
	g.Description = fmt.Sprintf("%s - %d entries", name, len(entries))
	return g, nil
}
