package meeting

import "strings"

// JoinAttendees combines checklist selections with a comma-separated list
// of manually typed names. Blank names and repeats are dropped; order is
// selections first, then manual entries.
func JoinAttendees(selected []string, manual string) string {
	var names []string
	seen := make(map[string]bool)
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}
	for _, s := range selected {
		add(s)
	}
	for _, s := range strings.Split(manual, ",") {
		add(s)
	}
	return strings.Join(names, ", ")
}

// SplitAttendees is the inverse of JoinAttendees.
func SplitAttendees(attendees string) []string {
	var out []string
	for _, s := range strings.Split(attendees, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
