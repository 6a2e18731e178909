package kevents

import "slices"

// Shrink searches for a smaller trace that still fails. It removes chunks of
// decreasing size as long as failing keeps returning true, ending with single
// events. The result is 1-minimal: removing any one event makes it pass.
// failing must be deterministic.
func Shrink(events []ExternalEvent, failing func([]ExternalEvent) bool) []ExternalEvent {
	current := slices.Clone(events)
	chunks := 2

	for len(current) > 0 {
		if chunks > len(current) {
			chunks = len(current)
		}
		size := (len(current) + chunks - 1) / chunks

		reduced := false
		for start := 0; start < len(current); start += size {
			end := min(start+size, len(current))
			candidate := slices.Concat(current[:start], current[end:])
			if failing(candidate) {
				current = candidate
				chunks = max(chunks-1, 2)
				reduced = true
				break
			}
		}

		if reduced {
			continue
		}
		if size == 1 {
			break
		}
		chunks *= 2
	}
	return current
}
