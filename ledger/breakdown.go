package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/warp/gametime/generic"
	"github.com/warp/gametime/rewards"
)

// EncodeBreakdown serializes a breakdown into the note of an earned entry.
func EncodeBreakdown(b rewards.Breakdown) (string, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode breakdown: %w", err)
	}
	return string(raw), nil
}

// DecodeBreakdown reads the breakdown back from an earned entry. Entries of
// other reasons, or earned entries with free-text notes, return ok=false.
func DecodeBreakdown(e generic.Entry) (rewards.Breakdown, bool) {
	if e.Reason != generic.ReasonEarned || e.Note == "" {
		return rewards.Breakdown{}, false
	}
	var b rewards.Breakdown
	if err := json.Unmarshal([]byte(e.Note), &b); err != nil {
		return rewards.Breakdown{}, false
	}
	return b, true
}
