package targeting

import "slices"

// normalize returns a sorted copy without duplicates or empty IDs.
func normalize(ids []string) []string {
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}

	slices.Sort(out)

	return slices.Compact(out)
}

func subtract(ids []string, remove []string) []string {
	if len(remove) == 0 {
		return ids
	}

	drop := make(map[string]struct{}, len(remove))
	for _, id := range remove {
		drop[id] = struct{}{}
	}

	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}

	return out
}

func intersect(ids []string, keep []string) []string {
	allowed := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		allowed[id] = struct{}{}
	}

	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if _, ok := allowed[id]; ok {
			out = append(out, id)
		}
	}

	return out
}
