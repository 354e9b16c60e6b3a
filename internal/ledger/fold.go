package ledger

import "sort"

// SortInventory orders entries by (OccurredAt, Seq), the ledger's replay order.
func SortInventory(entries []InventoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].OccurredAt.Equal(entries[j].OccurredAt) {
			return entries[i].Seq < entries[j].Seq
		}
		return entries[i].OccurredAt.Before(entries[j].OccurredAt)
	})
}

// SortClient orders entries by (OccurredAt, Seq).
func SortClient(entries []ClientEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].OccurredAt.Equal(entries[j].OccurredAt) {
			return entries[i].Seq < entries[j].Seq
		}
		return entries[i].OccurredAt.Before(entries[j].OccurredAt)
	})
}

// FoldInventory replays inventory entries in ledger order and returns the
// signed quantity sum. The result is the authoritative stock level the cached
// projection is reconciled against.
func FoldInventory(entries []InventoryEntry) (float64, error) {
	sorted := make([]InventoryEntry, len(entries))
	copy(sorted, entries)
	SortInventory(sorted)
	var total float64
	for _, e := range sorted {
		signed, err := e.Signed()
		if err != nil {
			return 0, err
		}
		total += signed
	}
	return total, nil
}

// FoldClient replays client entries in ledger order and returns the signed
// amount sum: positive means the client owes, negative means credit in the
// client's favour.
func FoldClient(entries []ClientEntry) float64 {
	sorted := make([]ClientEntry, len(entries))
	copy(sorted, entries)
	SortClient(sorted)
	var total float64
	for _, e := range sorted {
		total += e.Amount
	}
	return total
}

// StatementLine pairs a client entry with the cumulative balance up to and
// including that entry.
type StatementLine struct {
	Entry          ClientEntry
	RunningBalance float64
}

// Replay emits the deterministic running-balance sequence for a client's
// entries. Entries sharing a timestamp are broken by Seq, so the output is
// stable for a fixed ledger.
func Replay(entries []ClientEntry) []StatementLine {
	return ReplayFrom(0, entries)
}

// ReplayFrom replays entries on top of an opening balance. Statement windows
// that do not reach back to the client's first entry carry the fold of the
// older entries forward through opening, so the window's last running balance
// still equals the full-ledger fold.
func ReplayFrom(opening float64, entries []ClientEntry) []StatementLine {
	sorted := make([]ClientEntry, len(entries))
	copy(sorted, entries)
	SortClient(sorted)
	lines := make([]StatementLine, 0, len(sorted))
	running := opening
	for _, e := range sorted {
		running += e.Amount
		lines = append(lines, StatementLine{Entry: e, RunningBalance: running})
	}
	return lines
}
