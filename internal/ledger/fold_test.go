package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFoldInventorySignedSum(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entries := []InventoryEntry{
		{Seq: 1, ProductID: 1, Direction: DirectionIn, Qty: 10, Reason: ReasonPurchase, OccurredAt: base},
		{Seq: 2, ProductID: 1, Direction: DirectionOut, Qty: 3, Reason: ReasonSale, OccurredAt: base.Add(time.Hour)},
		{Seq: 3, ProductID: 1, Direction: DirectionIn, Qty: 3, Reason: ReasonSaleCancellation, OccurredAt: base.Add(2 * time.Hour)},
	}
	total, err := FoldInventory(entries)
	require.NoError(t, err)
	require.InDelta(t, 10, total, 1e-9)
}

func TestFoldInventoryRejectsUnknownDirection(t *testing.T) {
	_, err := FoldInventory([]InventoryEntry{{Direction: "SIDEWAYS", Qty: 1}})
	require.ErrorIs(t, err, ErrInvalidEntry)
}

func TestReplayOrdersByTimestampThenSeq(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []ClientEntry{
		{Seq: 7, ClientID: 1, Amount: -20, Reason: ReasonPayment, OccurredAt: at},
		{Seq: 6, ClientID: 1, Amount: 50, Reason: ReasonCharge, OccurredAt: at},
		{Seq: 5, ClientID: 1, Amount: 30, Reason: ReasonCharge, OccurredAt: at.Add(-time.Hour)},
	}
	lines := Replay(entries)
	require.Len(t, lines, 3)

	// Identical timestamps fall back on Seq, so the charge precedes the
	// payment and the running balance never depends on input order.
	require.Equal(t, int64(5), lines[0].Entry.Seq)
	require.Equal(t, int64(6), lines[1].Entry.Seq)
	require.Equal(t, int64(7), lines[2].Entry.Seq)
	require.InDelta(t, 30, lines[0].RunningBalance, 1e-9)
	require.InDelta(t, 80, lines[1].RunningBalance, 1e-9)
	require.InDelta(t, 60, lines[2].RunningBalance, 1e-9)
}

func TestReplayDeterministicAcrossPermutations(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	entries := []ClientEntry{
		{Seq: 1, ClientID: 4, Amount: 100, Reason: ReasonCharge, OccurredAt: at},
		{Seq: 2, ClientID: 4, Amount: -40, Reason: ReasonPayment, OccurredAt: at},
		{Seq: 3, ClientID: 4, Amount: -10, Reason: ReasonCreditGrant, OccurredAt: at},
	}
	reversed := []ClientEntry{entries[2], entries[1], entries[0]}

	a := Replay(entries)
	b := Replay(reversed)
	require.Equal(t, a, b)
	require.InDelta(t, 50, a[len(a)-1].RunningBalance, 1e-9)
	require.InDelta(t, FoldClient(entries), a[len(a)-1].RunningBalance, 1e-9)
}

func TestInventoryEntryValidate(t *testing.T) {
	valid := InventoryEntry{ProductID: 1, Direction: DirectionIn, Qty: 2, UnitCost: 3, Reason: ReasonPurchase}
	require.NoError(t, valid.Validate())

	cases := []InventoryEntry{
		{Direction: DirectionIn, Qty: 2, Reason: ReasonPurchase},
		{ProductID: 1, Direction: DirectionIn, Qty: 0, Reason: ReasonPurchase},
		{ProductID: 1, Direction: DirectionIn, Qty: 2, UnitCost: -1, Reason: ReasonPurchase},
		{ProductID: 1, Direction: "NONE", Qty: 2, Reason: ReasonPurchase},
		{ProductID: 1, Direction: DirectionIn, Qty: 2, Reason: "GIFT"},
	}
	for _, e := range cases {
		require.Error(t, e.Validate())
	}
}

func TestClientEntryValidateSignConventions(t *testing.T) {
	require.NoError(t, ClientEntry{ClientID: 1, Amount: 10, Reason: ReasonCharge}.Validate())
	require.NoError(t, ClientEntry{ClientID: 1, Amount: -10, Reason: ReasonPayment}.Validate())
	require.NoError(t, ClientEntry{ClientID: 1, Amount: -5, Reason: ReasonCreditGrant}.Validate())

	require.Error(t, ClientEntry{ClientID: 1, Amount: -10, Reason: ReasonCharge}.Validate())
	require.Error(t, ClientEntry{ClientID: 1, Amount: 10, Reason: ReasonPayment}.Validate())
	require.Error(t, ClientEntry{ClientID: 1, Amount: 0, Reason: ReasonCharge}.Validate())
	require.Error(t, ClientEntry{Amount: 10, Reason: ReasonCharge}.Validate())
}

func TestParseReasons(t *testing.T) {
	r, err := ParseInventoryReason("SALE_CANCELLATION")
	require.NoError(t, err)
	require.Equal(t, ReasonSaleCancellation, r)

	_, err = ParseInventoryReason("RETURN")
	require.ErrorIs(t, err, ErrUnknownReason)

	c, err := ParseClientReason("CREDIT_GRANT")
	require.NoError(t, err)
	require.Equal(t, ReasonCreditGrant, c)

	_, err = ParseClientReason("REFUND")
	require.ErrorIs(t, err, ErrUnknownReason)
}
