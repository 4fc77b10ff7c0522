package meeting

import (
	"strings"

	"github.com/alfredjeanlab/reg2progress/internal/model"
)

// Search returns the meetings with at least one resolvable discussed issue
// whose title or description contains query as typed, ignoring case only.
// A blank query
// returns meetings unchanged. Input order is preserved.
func Search(meetings []*model.Meeting, issues []*model.Issue, query string) []*model.Meeting {
	if strings.TrimSpace(query) == "" {
		return meetings
	}
	q := strings.ToLower(query)

	matches := make(map[string]bool, len(issues))
	for _, issue := range issues {
		if strings.Contains(strings.ToLower(issue.Title), q) ||
			strings.Contains(strings.ToLower(issue.Description), q) {
			matches[issue.ID] = true
		}
	}

	out := make([]*model.Meeting, 0)
	for _, m := range meetings {
		for _, id := range m.DiscussedIssueIDs {
			if matches[id] {
				out = append(out, m)
				break
			}
		}
	}
	return out
}
