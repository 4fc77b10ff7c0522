package model

// IssueFilter holds criteria for querying issues.
type IssueFilter struct {
	Status   []Status   `json:"status,omitempty"`
	Priority []Priority `json:"priority,omitempty"`
	BranchID string     `json:"branch_id,omitempty"`
	IDs      []string   `json:"ids,omitempty"`
	Search   string     `json:"search,omitempty"` // substring match on title/description
}

// Matches reports whether the issue satisfies every set criterion.
// Search is left to the caller's matcher, which differs between stores.
func (f IssueFilter) Matches(i *Issue) bool {
	if len(f.Status) > 0 && !containsStatus(f.Status, i.Status) {
		return false
	}
	if len(f.Priority) > 0 {
		found := false
		for _, p := range f.Priority {
			if p == i.Priority {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.BranchID != "" && f.BranchID != i.BranchID {
		return false
	}
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == i.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
