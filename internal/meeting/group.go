package meeting

import "github.com/alfredjeanlab/reg2progress/internal/model"

// BranchGroup is the set of discussed issues that belong to one branch.
type BranchGroup struct {
	BranchID   string         `json:"branch_id"`
	BranchName string         `json:"branch_name"`
	Issues     []*model.Issue `json:"issues"`
}

// GroupByBranch resolves ids against issues and partitions the result by
// branch. Groups appear in the order their first issue appears in ids, and
// issues keep their id-list order inside a group. Ids that do not resolve
// are dropped, and a repeated id is placed once. Groups for branches that no
// longer exist are labelled model.UnknownBranchName.
func GroupByBranch(ids []string, issues []*model.Issue, branches []*model.Branch) []BranchGroup {
	byID := make(map[string]*model.Issue, len(issues))
	for _, issue := range issues {
		byID[issue.ID] = issue
	}
	branchIdx := model.BranchIndex(branches)

	var groups []BranchGroup
	groupIdx := make(map[string]int)
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		issue, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true

		n, ok := groupIdx[issue.BranchID]
		if !ok {
			n = len(groups)
			groupIdx[issue.BranchID] = n
			groups = append(groups, BranchGroup{
				BranchID:   issue.BranchID,
				BranchName: model.BranchName(branchIdx, issue.BranchID),
			})
		}
		groups[n].Issues = append(groups[n].Issues, issue)
	}
	return groups
}
