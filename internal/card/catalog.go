package card

// CardType is the broad category of a card.
type CardType string

const (
	TypeAttack  CardType = "ATTACK"
	TypeDefense CardType = "DEFENSE"
	TypeTrick   CardType = "TRICK"
	TypeSpecial CardType = "SPECIAL"
)

// Effect identifies the resolution rule a card uses.
type Effect string

const (
	EffectStrike Effect = "STRIKE"
	EffectSlash  Effect = "SLASH"
	EffectPierce Effect = "PIERCE"
	EffectBlock  Effect = "BLOCK"
	EffectShield Effect = "SHIELD"
	EffectParry  Effect = "PARRY"
	EffectFeint  Effect = "FEINT"
	EffectSteal  Effect = "STEAL"
	EffectMirror Effect = "MIRROR"
	EffectHeal   Effect = "HEAL"
	EffectDouble Effect = "DOUBLE"
	EffectVoid   Effect = "VOID"
)

// Card is an immutable catalog entry. Cards are shared by value and
// never mutated after the catalog is built.
type Card struct {
	ID          string
	Type        CardType
	Name        string
	Power       int
	Effect      Effect
	Description string
}

// Catalog is the full card pool available to every match.
var Catalog = []Card{
	{ID: "atk-1", Type: TypeAttack, Name: "STRIKE", Power: 20, Effect: EffectStrike, Description: "Direct damage to opponent"},
	{ID: "atk-2", Type: TypeAttack, Name: "SLASH", Power: 25, Effect: EffectSlash, Description: "Heavy attack, risky"},
	{ID: "atk-3", Type: TypeAttack, Name: "PIERCE", Power: 15, Effect: EffectPierce, Description: "Bypasses some defense"},

	{ID: "def-1", Type: TypeDefense, Name: "BLOCK", Power: 20, Effect: EffectBlock, Description: "Reduce incoming damage"},
	{ID: "def-2", Type: TypeDefense, Name: "SHIELD", Power: 30, Effect: EffectShield, Description: "Strong defense"},
	{ID: "def-3", Type: TypeDefense, Name: "PARRY", Power: 15, Effect: EffectParry, Description: "Counter if attacked"},

	{ID: "trk-1", Type: TypeTrick, Name: "FEINT", Power: 10, Effect: EffectFeint, Description: "Reveal opponent card"},
	{ID: "trk-2", Type: TypeTrick, Name: "STEAL", Power: 0, Effect: EffectSteal, Description: "Take opponent health"},
	{ID: "trk-3", Type: TypeTrick, Name: "MIRROR", Power: 0, Effect: EffectMirror, Description: "Copy opponent move"},

	{ID: "spc-1", Type: TypeSpecial, Name: "HEAL", Power: 25, Effect: EffectHeal, Description: "Restore health"},
	{ID: "spc-2", Type: TypeSpecial, Name: "DOUBLE", Power: 0, Effect: EffectDouble, Description: "Double next attack"},
	{ID: "spc-3", Type: TypeSpecial, Name: "VOID", Power: 0, Effect: EffectVoid, Description: "Cancel all actions"},
}

var byID = func() map[string]Card {
	m := make(map[string]Card, len(Catalog))
	for _, c := range Catalog {
		m[c.ID] = c
	}
	return m
}()

// ByID looks up a catalog card by its id.
func ByID(id string) (Card, bool) {
	c, ok := byID[id]
	return c, ok
}

// DefaultDefensive is the card synthesized for players with auto-fold
// enabled who miss the round deadline.
func DefaultDefensive() Card {
	c, _ := ByID("def-1")
	return c
}

// IsDefense reports whether the card counts as concurrent defense when
// incoming attack damage is computed.
func (c Card) IsDefense() bool {
	return c.Type == TypeDefense
}
