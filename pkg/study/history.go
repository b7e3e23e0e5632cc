package study

// DefaultHistoryWindow bounds how many prior turns are replayed to the
// model with each request.
const DefaultHistoryWindow = 10

// Compact trims the ordered turn log to the last max turns (oldest
// discarded first) and drops turns with neither text nor media. Relative
// order and per-turn media references are preserved. The operation is
// idempotent: compacting an already well-formed window of size <= max
// returns it unchanged.
func Compact(turns []Turn, max int) []Turn {
	if max <= 0 {
		max = DefaultHistoryWindow
	}
	if len(turns) > max {
		turns = turns[len(turns)-max:]
	}

	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.Empty() {
			continue
		}
		out = append(out, t)
	}
	return out
}
