package game

import (
	"sort"

	"github.com/lasthand-os/lasthand-server/internal/card"
)

// stealPower is the effective attack power of a STEAL resolution. The
// catalog entry carries power 0 because the card's effect is a
// transfer, not a discard; the transferred amount is computed like an
// attack with this base power.
const stealPower = 15

// Resolve turns one round's frozen action set into a Result. It is a
// pure function: identical inputs produce identical outputs, and it is
// total over any accepted input (malformed targets degrade to logged
// no-ops instead of failing the round).
//
// Resolution passes:
//  1. classify: forfeits drop out, a VOID cancels everything else
//  2. substitute: MIRROR copies its target's original action, one
//     level deep only
//  3. arm: DOUBLE flags the caster for a doubled next attack
//  4. apply: all remaining deltas computed against the pre-round
//     snapshot and summed simultaneously
func Resolve(round int, snap Snapshot, actions []Action) Result {
	res := Result{
		Round:         round,
		Actions:       append([]Action(nil), actions...),
		HealthChanges: make(map[string]int, len(snap.Players)),
		DoubleNext:    make(map[string]bool, len(snap.Players)),
	}
	for id, ps := range snap.Players {
		res.HealthChanges[id] = 0
		res.DoubleNext[id] = ps.DoubleNext
	}

	live := make([]Action, 0, len(actions))
	voided := false
	for _, a := range actions {
		if a.Forfeit {
			kind := LogForfeit
			if a.Timeout {
				kind = LogTimeout
			}
			res.Log = append(res.Log, LogEntry{Kind: kind, PlayerID: a.PlayerID})
			continue
		}
		if a.Timeout {
			res.Log = append(res.Log, LogEntry{Kind: LogTimeout, PlayerID: a.PlayerID, Detail: a.Card.Name})
		}
		if a.Card.Effect == card.EffectVoid {
			voided = true
			continue
		}
		live = append(live, a)
	}

	if voided {
		// A VOID consumes itself and cancels every other action this
		// round. Armed DOUBLE flags survive untouched.
		for _, a := range live {
			res.Log = append(res.Log, LogEntry{Kind: LogVoided, PlayerID: a.PlayerID, Detail: a.Card.Name})
		}
		res.finish(snap)
		return res
	}

	original := make(map[string]Action, len(live))
	for _, a := range live {
		original[a.PlayerID] = a
	}

	// MIRROR substitution against the original set, one level only: a
	// mirrored MIRROR resolves to a no-op.
	resolved := make([]Action, 0, len(live))
	for _, a := range live {
		if a.Card.Effect != card.EffectMirror {
			resolved = append(resolved, a)
			continue
		}
		src, ok := original[a.TargetID]
		if !ok {
			res.Log = append(res.Log, LogEntry{Kind: LogMalformed, PlayerID: a.PlayerID, Detail: a.TargetID})
			continue
		}
		if src.Card.Effect == card.EffectMirror {
			res.Log = append(res.Log, LogEntry{Kind: LogMirrored, PlayerID: a.PlayerID, Detail: "mirror"})
			continue
		}
		copied := Action{
			PlayerID:    a.PlayerID,
			Card:        src.Card,
			TargetID:    src.TargetID,
			SubmittedAt: a.SubmittedAt,
		}
		// A copied action aimed back at the mirroring player reflects
		// onto the mirrored source instead.
		if copied.TargetID == a.PlayerID {
			copied.TargetID = a.TargetID
		}
		res.Log = append(res.Log, LogEntry{Kind: LogMirrored, PlayerID: a.PlayerID, Detail: src.Card.Name})
		resolved = append(resolved, copied)
	}

	// Concurrent defense per player, read by every attack this round.
	defense := make(map[string]card.Card)
	for _, a := range resolved {
		if a.Card.IsDefense() {
			defense[a.PlayerID] = a.Card
		}
	}

	for _, a := range resolved {
		switch a.Card.Effect {
		case card.EffectDouble:
			res.DoubleNext[a.PlayerID] = true
			res.Log = append(res.Log, LogEntry{Kind: LogDouble, PlayerID: a.PlayerID})

		case card.EffectStrike, card.EffectSlash, card.EffectPierce:
			target, ok := res.target(snap, a)
			if !ok {
				continue
			}
			dmg := attackDamage(snap, a, defense[target])
			res.HealthChanges[target] -= dmg
			if snap.Players[a.PlayerID].DoubleNext {
				res.DoubleNext[a.PlayerID] = false
			}

		case card.EffectFeint:
			target, ok := res.target(snap, a)
			if !ok {
				continue
			}
			res.HealthChanges[target] -= a.Card.Power
			if src, ok := original[target]; ok {
				res.Log = append(res.Log, LogEntry{Kind: LogReveal, PlayerID: a.PlayerID, Detail: src.Card.Name})
			}

		case card.EffectSteal:
			target, ok := res.target(snap, a)
			if !ok {
				continue
			}
			taken := stealPower
			if def, has := defense[target]; has {
				taken -= def.Power
			}
			if taken < 0 {
				taken = 0
			}
			if th := snap.Players[target].Health; taken > th {
				taken = th
			}
			res.HealthChanges[target] -= taken
			res.HealthChanges[a.PlayerID] += taken

		case card.EffectHeal:
			ps := snap.Players[a.PlayerID]
			gain := a.Card.Power
			if room := ps.MaxHealth - ps.Health; gain > room {
				gain = room
			}
			res.HealthChanges[a.PlayerID] += gain

		case card.EffectParry:
			// Counters each attack aimed at the caster this round,
			// returning the blocked amount up to the parry's power.
			for _, atk := range resolved {
				if !isAttack(atk.Card.Effect) || atk.TargetID != a.PlayerID {
					continue
				}
				if _, known := snap.Players[atk.PlayerID]; !known {
					continue
				}
				counter := rawAttackPower(snap, atk)
				if counter > a.Card.Power {
					counter = a.Card.Power
				}
				res.HealthChanges[atk.PlayerID] -= counter
			}

		case card.EffectBlock, card.EffectShield:
			// Pure damage reduction, no direct delta.
		}
	}

	res.finish(snap)
	return res
}

func isAttack(e card.Effect) bool {
	return e == card.EffectStrike || e == card.EffectSlash || e == card.EffectPierce
}

// rawAttackPower is the attack's power before the target's defense,
// doubling included.
func rawAttackPower(snap Snapshot, a Action) int {
	power := a.Card.Power
	if snap.Players[a.PlayerID].DoubleNext {
		power *= 2
	}
	return power
}

// attackDamage computes power minus concurrent defense, floored at
// zero so damage can never become healing. PIERCE ignores half of the
// defense it runs into.
func attackDamage(snap Snapshot, a Action, def card.Card) int {
	power := rawAttackPower(snap, a)
	block := def.Power
	if a.Card.Effect == card.EffectPierce {
		block /= 2
	}
	dmg := power - block
	if dmg < 0 {
		dmg = 0
	}
	return dmg
}

// target validates the action's target against the snapshot. A missing
// or unknown target degrades to a logged no-op.
func (r *Result) target(snap Snapshot, a Action) (string, bool) {
	if _, ok := snap.Players[a.TargetID]; !ok || a.TargetID == a.PlayerID {
		r.Log = append(r.Log, LogEntry{Kind: LogMalformed, PlayerID: a.PlayerID, Detail: a.TargetID})
		return "", false
	}
	return a.TargetID, true
}

// finish derives the newly eliminated list from the summed deltas and
// orders it deterministically.
func (r *Result) finish(snap Snapshot) {
	for id, ps := range snap.Players {
		if ps.Health <= 0 {
			continue
		}
		if ps.Health+r.HealthChanges[id] <= 0 {
			r.Eliminated = append(r.Eliminated, id)
		}
	}
	sort.Strings(r.Eliminated)
}
