package card

import "testing"

func TestCatalogIntegrity(t *testing.T) {
	if len(Catalog) != 12 {
		t.Fatalf("expected 12 catalog cards, got %d", len(Catalog))
	}

	seen := make(map[string]bool)
	for _, c := range Catalog {
		if seen[c.ID] {
			t.Fatalf("duplicate card id %s", c.ID)
		}
		seen[c.ID] = true
		if c.Power < 0 {
			t.Fatalf("card %s has negative power", c.ID)
		}
		if c.Effect == "" {
			t.Fatalf("card %s has no effect tag", c.ID)
		}
	}
}

func TestByID(t *testing.T) {
	c, ok := ByID("spc-3")
	if !ok {
		t.Fatal("expected spc-3 in catalog")
	}
	if c.Effect != EffectVoid {
		t.Fatalf("expected VOID effect, got %s", c.Effect)
	}

	if _, ok := ByID("nope"); ok {
		t.Fatal("unknown id must not resolve")
	}
}

func TestDealerHandHasNoDuplicates(t *testing.T) {
	d := NewDealer(42)
	hand := d.DealHand(5)
	if len(hand) != 5 {
		t.Fatalf("expected 5 cards, got %d", len(hand))
	}

	seen := make(map[string]bool)
	for _, c := range hand {
		if seen[c.ID] {
			t.Fatalf("hand contains %s twice", c.ID)
		}
		seen[c.ID] = true
	}
}

func TestDealerReplaceAvoidsHeldCards(t *testing.T) {
	d := NewDealer(7)
	hand := d.DealHand(5)

	for i := 0; i < 20; i++ {
		c := d.Replace(hand)
		for _, held := range hand {
			if held.ID == c.ID {
				t.Fatalf("replacement %s already in hand", c.ID)
			}
		}
	}
}

func TestDealerDeterministicBySeed(t *testing.T) {
	a := NewDealer(99).DealHand(5)
	b := NewDealer(99).DealHand(5)

	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("same seed produced different hands at %d: %s vs %s", i, a[i].ID, b[i].ID)
		}
	}
}
