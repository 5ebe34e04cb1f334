package lifecycle

import (
	"fmt"
	"sort"

	"github.com/openstats/factstore/internal/model"
)

// MappingKind identifies which dimension a mapping entry belongs to.
type MappingKind string

const (
	KindFilterOption MappingKind = "filterOption"
	KindLocation     MappingKind = "location"
)

// ChangeType classifies one changelog entry. Every option of both
// versions lands in exactly one entry: options never vanish from the
// changelog silently.
type ChangeType string

const (
	// ChangeMapped links a previous option to a next option, either
	// by shared public id, by policy auto-map, or by manual
	// resolution.
	ChangeMapped ChangeType = "mapped"

	// ChangeAdded marks a next-version option with no previous
	// counterpart.
	ChangeAdded ChangeType = "added"

	// ChangeRemoved marks a previous option with no next counterpart,
	// confirmed by resolution.
	ChangeRemoved ChangeType = "removed"

	// ChangeFlagged marks a previous option awaiting manual
	// resolution. A version cannot publish while flagged entries
	// remain.
	ChangeFlagged ChangeType = "flagged"
)

// ChangeEntry is one changelog line.
type ChangeEntry struct {
	Kind             MappingKind `json:"kind"`
	Change           ChangeType  `json:"change"`
	PreviousPublicID string      `json:"previousPublicId,omitempty"`
	NextPublicID     string      `json:"nextPublicId,omitempty"`
	Label            string      `json:"label,omitempty"`
}

// Changelog records how one version's dimension options relate to its
// predecessor's. Entries are sorted deterministically.
type Changelog struct {
	DataSetID   string        `json:"dataSetId"`
	FromVersion model.Version `json:"fromVersion"`
	ToVersion   model.Version `json:"toVersion"`
	Entries     []ChangeEntry `json:"entries"`
}

// Unresolved counts the flagged entries still awaiting resolution.
func (c *Changelog) Unresolved() int {
	n := 0
	for _, e := range c.Entries {
		if e.Change == ChangeFlagged {
			n++
		}
	}
	return n
}

// HasBreakingChanges reports whether any previous option is removed
// or still flagged. Breaking changes force a major version bump.
func (c *Changelog) HasBreakingChanges() bool {
	for _, e := range c.Entries {
		if e.Change == ChangeRemoved || e.Change == ChangeFlagged {
			return true
		}
	}
	return false
}

func (c *Changelog) sortEntries() {
	sort.SliceStable(c.Entries, func(i, j int) bool {
		a, b := c.Entries[i], c.Entries[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.PreviousPublicID != b.PreviousPublicID {
			return a.PreviousPublicID < b.PreviousPublicID
		}
		return a.NextPublicID < b.NextPublicID
	})
}

// Decision is a MappingPolicy's verdict on one disappeared option.
// MapTo names the next-version public id to map the option to; empty
// flags the option for manual review.
type Decision struct {
	MapTo string
}

// MappingPolicy decides what happens to previous-version options
// whose public id is absent from the next version. Candidates are the
// next-version options not already claimed by a public-id match.
type MappingPolicy interface {
	MapFilterOption(prev model.FilterOption, candidates []model.FilterOption) Decision
	MapLocation(prev model.LocationOption, candidates []model.LocationOption) Decision
}

// StructuralMatchPolicy auto-maps an option to a candidate with
// identical structure and flags everything else. The default policy.
type StructuralMatchPolicy struct{}

func (StructuralMatchPolicy) MapFilterOption(prev model.FilterOption, candidates []model.FilterOption) Decision {
	for _, cand := range candidates {
		if cand.Column == prev.Column && cand.Label == prev.Label {
			return Decision{MapTo: cand.PublicID}
		}
	}
	return Decision{}
}

func (StructuralMatchPolicy) MapLocation(prev model.LocationOption, candidates []model.LocationOption) Decision {
	for _, cand := range candidates {
		if cand.Level == prev.Level && cand.Code == prev.Code && cand.Name == prev.Name &&
			cand.OldCode == prev.OldCode && cand.URN == prev.URN && cand.LAEstab == prev.LAEstab {
			return Decision{MapTo: cand.PublicID}
		}
	}
	return Decision{}
}

// FlagForReviewPolicy flags every disappeared option. Used when a
// publisher wants to sign off all structural changes by hand.
type FlagForReviewPolicy struct{}

func (FlagForReviewPolicy) MapFilterOption(model.FilterOption, []model.FilterOption) Decision {
	return Decision{}
}

func (FlagForReviewPolicy) MapLocation(model.LocationOption, []model.LocationOption) Decision {
	return Decision{}
}

// BuildChangelog reconciles the previous version's filter options and
// locations against the next version's.
//
// Options sharing a public id map automatically. Disappeared options
// go through the policy; appeared options not claimed as a mapping
// target become additions.
func BuildChangelog(
	dataSetID string,
	from, to model.Version,
	prevOptions, nextOptions []model.FilterOption,
	prevLocations, nextLocations []model.LocationOption,
	policy MappingPolicy,
) *Changelog {
	log := &Changelog{DataSetID: dataSetID, FromVersion: from, ToVersion: to}

	log.Entries = append(log.Entries, mapOptions(
		KindFilterOption,
		filterOptionItems(prevOptions), filterOptionItems(nextOptions),
		func(prev int, candidates []int) Decision {
			cands := make([]model.FilterOption, len(candidates))
			for i, idx := range candidates {
				cands[i] = nextOptions[idx]
			}
			return policy.MapFilterOption(prevOptions[prev], cands)
		},
	)...)

	log.Entries = append(log.Entries, mapOptions(
		KindLocation,
		locationItems(prevLocations), locationItems(nextLocations),
		func(prev int, candidates []int) Decision {
			cands := make([]model.LocationOption, len(candidates))
			for i, idx := range candidates {
				cands[i] = nextLocations[idx]
			}
			return policy.MapLocation(prevLocations[prev], cands)
		},
	)...)

	log.sortEntries()
	return log
}

// mappingItem is the dimension-agnostic view mapOptions works over.
type mappingItem struct {
	publicID string
	label    string
}

func filterOptionItems(options []model.FilterOption) []mappingItem {
	items := make([]mappingItem, len(options))
	for i, opt := range options {
		items[i] = mappingItem{publicID: opt.PublicID, label: opt.Label}
	}
	return items
}

func locationItems(options []model.LocationOption) []mappingItem {
	items := make([]mappingItem, len(options))
	for i, opt := range options {
		items[i] = mappingItem{publicID: opt.PublicID, label: opt.Name}
	}
	return items
}

func mapOptions(
	kind MappingKind,
	prev, next []mappingItem,
	decide func(prevIdx int, candidateIdxs []int) Decision,
) []ChangeEntry {
	nextByPublic := make(map[string]int, len(next))
	for i, item := range next {
		nextByPublic[item.publicID] = i
	}

	claimed := make(map[int]bool, len(next))
	var entries []ChangeEntry

	// First pass: public id carried over.
	unmatched := make([]int, 0)
	for i, item := range prev {
		if j, ok := nextByPublic[item.publicID]; ok {
			claimed[j] = true
			entries = append(entries, ChangeEntry{
				Kind:             kind,
				Change:           ChangeMapped,
				PreviousPublicID: item.publicID,
				NextPublicID:     item.publicID,
				Label:            next[j].label,
			})
			continue
		}
		unmatched = append(unmatched, i)
	}

	// Second pass: policy decides on disappeared public ids.
	for _, i := range unmatched {
		candidates := make([]int, 0)
		for j := range next {
			if !claimed[j] {
				candidates = append(candidates, j)
			}
		}
		decision := decide(i, candidates)
		if decision.MapTo != "" {
			if j, ok := nextByPublic[decision.MapTo]; ok && !claimed[j] {
				claimed[j] = true
				entries = append(entries, ChangeEntry{
					Kind:             kind,
					Change:           ChangeMapped,
					PreviousPublicID: prev[i].publicID,
					NextPublicID:     decision.MapTo,
					Label:            next[j].label,
				})
				continue
			}
		}
		entries = append(entries, ChangeEntry{
			Kind:             kind,
			Change:           ChangeFlagged,
			PreviousPublicID: prev[i].publicID,
			Label:            prev[i].label,
		})
	}

	// Anything left in the next version is new.
	for j, item := range next {
		if !claimed[j] {
			entries = append(entries, ChangeEntry{
				Kind:         kind,
				Change:       ChangeAdded,
				NextPublicID: item.publicID,
				Label:        item.label,
			})
		}
	}

	return entries
}

// resolveEntry settles one flagged entry: mapTo names a next-version
// public id (the entry becomes mapped, consuming the matching added
// entry), or empty confirms removal.
func (c *Changelog) resolveEntry(kind MappingKind, prevPublicID, mapTo string) error {
	idx := -1
	for i, e := range c.Entries {
		if e.Kind == kind && e.Change == ChangeFlagged && e.PreviousPublicID == prevPublicID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("no flagged %s entry for %q", kind, prevPublicID)
	}

	if mapTo == "" {
		c.Entries[idx].Change = ChangeRemoved
		return nil
	}

	target := -1
	for i, e := range c.Entries {
		if e.Kind == kind && e.Change == ChangeAdded && e.NextPublicID == mapTo {
			target = i
			break
		}
	}
	if target < 0 {
		return fmt.Errorf("no added %s entry %q to map %q onto", kind, mapTo, prevPublicID)
	}

	c.Entries[idx].Change = ChangeMapped
	c.Entries[idx].NextPublicID = mapTo
	c.Entries[idx].Label = c.Entries[target].Label
	c.Entries = append(c.Entries[:target], c.Entries[target+1:]...)
	c.sortEntries()
	return nil
}
