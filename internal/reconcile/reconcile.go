// Package reconcile computes the minimal set of remote line mutations that
// turns the remote cart into the locally desired cart.
// The sync coordinator fetches the remote lines, diffs, and executes only the
// necessary mutations, so repeated syncs of the same state are free.
package reconcile

import (
	"sort"

	"cartsync/internal/model"
)

// LineItemDiff describes the mutations needed to reconcile cart lines.
// Operations should be applied in order: Remove → Update → Add
// to prevent conflicts (e.g., updating a removed line).
// Each slice is sorted by normalized variant id, so the diff does not depend
// on input ordering.
type LineItemDiff struct {
	ToAdd    []ItemToAdd    // Variants desired locally but absent remotely
	ToRemove []ItemToRemove // Remote lines with no local counterpart
	ToUpdate []ItemToUpdate // Variants present on both sides with different quantities
}

// ItemToAdd specifies a new line to add to the remote cart.
type ItemToAdd struct {
	VariantID string // Variant id as the local item carries it
	Quantity  int    // Desired quantity
}

// ItemToRemove specifies a remote line to remove.
type ItemToRemove struct {
	VariantID string // Normalized variant id (for reference)
	LineID    string // Backend line id needed for the removal call
}

// ItemToUpdate specifies a quantity change for an existing remote line.
type ItemToUpdate struct {
	VariantID   string // Normalized variant id (for reference)
	LineID      string // Existing backend line id, reused for the update call
	OldQuantity int    // Remote quantity (informational)
	NewQuantity int    // Desired quantity
}

// IsEmpty returns true if no line changes are needed.
func (d *LineItemDiff) IsEmpty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0 && len(d.ToUpdate) == 0
}

// AddInputs returns the adds in the shape cart services accept.
func (d *LineItemDiff) AddInputs() []model.LineInput {
	out := make([]model.LineInput, len(d.ToAdd))
	for i, a := range d.ToAdd {
		out[i] = model.LineInput{VariantID: a.VariantID, Quantity: a.Quantity}
	}
	return out
}

// Updates returns the updates in the shape cart services accept.
func (d *LineItemDiff) Updates() []model.LineUpdate {
	out := make([]model.LineUpdate, len(d.ToUpdate))
	for i, u := range d.ToUpdate {
		out[i] = model.LineUpdate{LineID: u.LineID, Quantity: u.NewQuantity}
	}
	return out
}

// RemoveIDs returns the line ids to remove.
func (d *LineItemDiff) RemoveIDs() []string {
	out := make([]string, len(d.ToRemove))
	for i, r := range d.ToRemove {
		out[i] = r.LineID
	}
	return out
}

// DiffLineItems computes the delta between remote lines and desired local items.
// Matching is by normalized variant id, never by backend line id.
//
// Algorithm:
//  1. Fold local items into a map keyed by normalized id (quantities ≤ 0 mean absent)
//  2. Fold remote lines into a map; extra lines for an already seen variant are removed
//  3. For each desired item: update the existing line if quantity differs, else add
//  4. For each remote line not desired: remove
//
// An empty local list therefore removes every remote line.
func DiffLineItems(local []model.CartItem, remote []model.RemoteLine) *LineItemDiff {
	diff := &LineItemDiff{}

	desired := make(map[string]ItemToAdd, len(local))
	for _, item := range local {
		if item.Quantity <= 0 {
			continue
		}
		key := item.Key()
		d := desired[key]
		if d.VariantID == "" {
			d.VariantID = item.VariantID
		}
		d.Quantity += item.Quantity
		desired[key] = d
	}

	current := make(map[string]model.RemoteLine, len(remote))
	for _, line := range remote {
		key := model.NormalizeID(line.VariantID)
		if existing, dup := current[key]; dup {
			// Keep the lowest line id as the match so the choice is stable.
			if line.LineID < existing.LineID {
				current[key], line = line, existing
			}
			diff.ToRemove = append(diff.ToRemove, ItemToRemove{VariantID: key, LineID: line.LineID})
			continue
		}
		current[key] = line
	}

	for key, want := range desired {
		if line, exists := current[key]; exists {
			if line.Quantity != want.Quantity {
				diff.ToUpdate = append(diff.ToUpdate, ItemToUpdate{
					VariantID:   key,
					LineID:      line.LineID, // Reuse the remote line; never delete and re-add
					OldQuantity: line.Quantity,
					NewQuantity: want.Quantity,
				})
			}
			continue
		}
		diff.ToAdd = append(diff.ToAdd, want)
	}

	for key, line := range current {
		if _, exists := desired[key]; !exists {
			diff.ToRemove = append(diff.ToRemove, ItemToRemove{VariantID: key, LineID: line.LineID})
		}
	}

	sortDiff(diff)
	return diff
}

func sortDiff(d *LineItemDiff) {
	sort.Slice(d.ToAdd, func(i, j int) bool {
		return model.NormalizeID(d.ToAdd[i].VariantID) < model.NormalizeID(d.ToAdd[j].VariantID)
	})
	sort.Slice(d.ToUpdate, func(i, j int) bool {
		return d.ToUpdate[i].VariantID < d.ToUpdate[j].VariantID
	})
	sort.Slice(d.ToRemove, func(i, j int) bool {
		if d.ToRemove[i].VariantID != d.ToRemove[j].VariantID {
			return d.ToRemove[i].VariantID < d.ToRemove[j].VariantID
		}
		return d.ToRemove[i].LineID < d.ToRemove[j].LineID
	})
}
