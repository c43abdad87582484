package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string used for model sessions and journal
// events. ULIDs sort by creation time, which keeps the journal ordered.
func NewID() string {
	return ulid.Make().String()
}
