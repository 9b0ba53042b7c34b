package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// StateHash computes a deterministic digest of a match's round history.
// The digest is independent of map iteration order, so two replays of
// the same match always agree. It serves as the settlement idempotency
// key.
func StateHash(matchID string, results []Result) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "MATCH:%s|%d\n", matchID, len(results))

	for _, r := range results {
		fmt.Fprintf(&buf, "ROUND:%d\n", r.Round)

		actions := append([]Action(nil), r.Actions...)
		sort.Slice(actions, func(i, j int) bool {
			return actions[i].PlayerID < actions[j].PlayerID
		})
		for _, a := range actions {
			fmt.Fprintf(&buf, "  ACTION:%s|%s|%s|%t|%t\n",
				a.PlayerID, a.Card.ID, a.TargetID, a.Timeout, a.Forfeit)
		}

		ids := make([]string, 0, len(r.HealthChanges))
		for id := range r.HealthChanges {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(&buf, "  HEALTH:%s|%d\n", id, r.HealthChanges[id])
		}

		for _, id := range r.Eliminated {
			fmt.Fprintf(&buf, "  ELIMINATED:%s\n", id)
		}
	}

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}
