package history

import "strings"

// Merge combines the durable history with the device-local cache into the
// suggestion list.
//
// The durable list leads in its stored order (newest first), then each
// local text that does not case-insensitively duplicate an included entry
// is appended. Durable entries therefore always rank above purely-local
// ones, even when the local text is more recent: the authenticated record
// is treated as ground truth, and on a duplicate the durable entry wins
// because it carries a stable identity for deletion. The result is capped
// at MergedLimit.
func Merge(durable []Entry, local []string, scope Scope) []Entry {
	merged := make([]Entry, 0, MergedLimit)
	seen := make(map[string]struct{}, MergedLimit)

	for _, e := range durable {
		key := strings.ToLower(e.Query)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, e)
		if len(merged) == MergedLimit {
			return merged
		}
	}

	for _, text := range local {
		key := strings.ToLower(text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, Entry{
			ID:    localID(text),
			Query: text,
			Scope: scope,
		})
		if len(merged) == MergedLimit {
			break
		}
	}

	return merged
}
