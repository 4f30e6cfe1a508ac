package firestore

import (
	"testing"

	"github.com/plateful/api/internal/repositories"
)

func cartLines() []sharedCartItemDocument {
	return []sharedCartItemDocument{
		{UserID: "user-1", MenuItemID: "item-jollof", Name: "Jollof Rice", Quantity: 2, UnitPrice: 150000},
		{UserID: "user-2", MenuItemID: "item-suya", Name: "Beef Suya", Quantity: 3, UnitPrice: 80000},
	}
}

func TestApplyItemMutationAddsToExistingLine(t *testing.T) {
	out := applyItemMutation(cartLines(), repositories.ItemMutation{
		UserID:        "user-2",
		MenuItemID:    "item-suya",
		DeltaQuantity: 1,
	})
	if len(out) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(out))
	}
	if out[1].Quantity != 4 {
		t.Fatalf("expected quantity merged to 4, got %d", out[1].Quantity)
	}
	if out[1].Name != "Beef Suya" || out[1].UnitPrice != 80000 {
		t.Fatalf("a bare delta must not blank the snapshot, got %+v", out[1])
	}
}

func TestApplyItemMutationNegativeDeltaRemovesLine(t *testing.T) {
	out := applyItemMutation(cartLines(), repositories.ItemMutation{
		UserID:        "user-1",
		MenuItemID:    "item-jollof",
		DeltaQuantity: -2,
	})
	if len(out) != 1 {
		t.Fatalf("expected the line removed, got %d lines", len(out))
	}
	if out[0].MenuItemID != "item-suya" {
		t.Fatalf("wrong line removed, remaining %+v", out[0])
	}
}

func TestApplyItemMutationNegativeDeltaBelowZeroRemovesLine(t *testing.T) {
	out := applyItemMutation(cartLines(), repositories.ItemMutation{
		UserID:        "user-2",
		MenuItemID:    "item-suya",
		DeltaQuantity: -5,
	})
	if len(out) != 1 {
		t.Fatalf("expected the line removed, got %d lines", len(out))
	}
}

func TestApplyItemMutationAbsentLineCreatedByPositiveDelta(t *testing.T) {
	out := applyItemMutation(cartLines(), repositories.ItemMutation{
		UserID:        "user-1",
		MenuItemID:    "item-moimoi",
		Name:          "Moi Moi",
		UnitPrice:     50000,
		DeltaQuantity: 2,
	})
	if len(out) != 3 {
		t.Fatalf("expected a new line, got %d lines", len(out))
	}
	created := out[2]
	if created.Quantity != 2 || created.Name != "Moi Moi" || created.UnitPrice != 50000 {
		t.Fatalf("unexpected new line %+v", created)
	}
}

func TestApplyItemMutationNegativeDeltaOnAbsentLineIsNoOp(t *testing.T) {
	out := applyItemMutation(cartLines(), repositories.ItemMutation{
		UserID:        "user-1",
		MenuItemID:    "item-missing",
		DeltaQuantity: -1,
	})
	if len(out) != 2 {
		t.Fatalf("expected the cart untouched, got %d lines", len(out))
	}
}

func TestApplyItemMutationLinesArePerParticipant(t *testing.T) {
	out := applyItemMutation(cartLines(), repositories.ItemMutation{
		UserID:        "user-2",
		MenuItemID:    "item-jollof",
		Name:          "Jollof Rice",
		UnitPrice:     150000,
		DeltaQuantity: 1,
	})
	if len(out) != 3 {
		t.Fatalf("another member's line must not be merged, got %d lines", len(out))
	}
	if out[0].Quantity != 2 {
		t.Fatalf("user-1's line must be untouched, got %+v", out[0])
	}
}
