// Package greeting selects the welcome message to show on each widget open.
// Rotation is deterministic and independent of message content or network
// state: the persisted index walks the configured list in order and wraps.
package greeting

// Next returns the greeting for the current open and the index to persist
// for the following one.
//
// An empty list always yields the fallback (which may itself be empty) and
// leaves the index untouched. A non-empty list is indexed modulo its current
// length, so an index persisted against a longer list never goes out of
// bounds after the host shrinks the list.
func Next(list []string, fallback string, index int) (string, int) {
	if len(list) == 0 {
		return fallback, index
	}
	if index < 0 {
		index = 0
	}
	index %= len(list)
	return list[index], (index + 1) % len(list)
}
