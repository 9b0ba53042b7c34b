package card

import (
	"math/rand"
	"sync"
)

// Dealer deals hands and replacement cards from the shared catalog.
// A hand never contains the same card twice; replacement draws avoid
// duplicating what the player still holds.
type Dealer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDealer creates a dealer seeded for this match. The same seed
// reproduces the same sequence of hands.
func NewDealer(seed int64) *Dealer {
	return &Dealer{rng: rand.New(rand.NewSource(seed))}
}

// DealHand deals count distinct cards.
func (d *Dealer) DealHand(count int) []Card {
	d.mu.Lock()
	defer d.mu.Unlock()

	if count > len(Catalog) {
		count = len(Catalog)
	}
	idx := d.rng.Perm(len(Catalog))
	hand := make([]Card, 0, count)
	for _, i := range idx[:count] {
		hand = append(hand, Catalog[i])
	}
	return hand
}

// Replace draws one card not already present in the given hand. If the
// hand somehow holds the whole catalog, any card is returned.
func (d *Dealer) Replace(hand []Card) Card {
	d.mu.Lock()
	defer d.mu.Unlock()

	held := make(map[string]bool, len(hand))
	for _, c := range hand {
		held[c.ID] = true
	}

	idx := d.rng.Perm(len(Catalog))
	for _, i := range idx {
		if !held[Catalog[i].ID] {
			return Catalog[i]
		}
	}
	return Catalog[idx[0]]
}
