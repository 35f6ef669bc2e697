package model

import "strconv"

// BannedMarker is the literal stored in the block slot once an identity is
// hard-banned. Everything else in that slot is a numeric strike count.
const BannedMarker = "banned"

type StrikeState int

const (
	StrikeClean StrikeState = iota
	StrikeCounting
	StrikeBanned
)

// StrikeRecord is the decoded content of a `block:ip:<ip>` slot. The raw slot
// is a string/number union for compatibility with external tooling; this type
// removes the ambiguity between "3" the count and the ban marker.
type StrikeRecord struct {
	State   StrikeState
	Strikes int
}

func (r StrikeRecord) Banned() bool {
	return r.State == StrikeBanned
}

// ParseStrikeRecord decodes a raw block-slot value. An empty value means the
// slot is absent or expired, i.e. the identity is clean. Unparseable garbage
// is treated as clean rather than rejected, the slot is advisory state.
func ParseStrikeRecord(raw string) StrikeRecord {
	if raw == "" {
		return StrikeRecord{State: StrikeClean}
	}
	if raw == BannedMarker {
		return StrikeRecord{State: StrikeBanned}
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return StrikeRecord{State: StrikeClean}
	}
	return StrikeRecord{State: StrikeCounting, Strikes: n}
}
