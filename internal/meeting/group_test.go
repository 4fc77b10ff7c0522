package meeting

import (
	"testing"

	"github.com/alfredjeanlab/reg2progress/internal/model"
)

func issuesFor(pairs ...string) []*model.Issue {
	var out []*model.Issue
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, &model.Issue{ID: pairs[i], BranchID: pairs[i+1], Title: "Title " + pairs[i]})
	}
	return out
}

func TestGroupByBranch(t *testing.T) {
	branches := []*model.Branch{
		{ID: "B1", Name: "FHC Bali"},
		{ID: "B2", Name: "TMC Mataram"},
	}
	all := issuesFor("I1", "B1", "I2", "B2", "I3", "B1", "I4", "B9", "I5", "B2")

	groups := GroupByBranch([]string{"I3", "I2", "MISSING", "I1", "I4", "I5", "I3"}, all, branches)

	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	for i, want := range []struct {
		branch string
		name   string
		ids    []string
	}{
		{"B1", "FHC Bali", []string{"I3", "I1"}},
		{"B2", "TMC Mataram", []string{"I2", "I5"}},
		{"B9", model.UnknownBranchName, []string{"I4"}},
	} {
		g := groups[i]
		if g.BranchID != want.branch || g.BranchName != want.name {
			t.Errorf("group %d: expected %s/%s, got %s/%s", i, want.branch, want.name, g.BranchID, g.BranchName)
		}
		var got []string
		for _, issue := range g.Issues {
			got = append(got, issue.ID)
			if issue.BranchID != g.BranchID {
				t.Errorf("issue %s placed under %s", issue.ID, g.BranchID)
			}
		}
		if !equal(got, want.ids) {
			t.Errorf("group %d: expected %v, got %v", i, want.ids, got)
		}
	}
}

func TestGroupByBranch_Partition(t *testing.T) {
	all := issuesFor("I1", "B1", "I2", "B2", "I3", "B3", "I4", "B1", "I5", "B3", "I6", "B2")
	ids := []string{"I6", "I5", "I4", "I3", "I2", "I1", "X1", "X2"}

	groups := GroupByBranch(ids, all, nil)

	placed := make(map[string]int)
	for _, g := range groups {
		for _, issue := range g.Issues {
			placed[issue.ID]++
		}
	}
	for _, issue := range all {
		if placed[issue.ID] != 1 {
			t.Errorf("issue %s placed %d times", issue.ID, placed[issue.ID])
		}
	}
	if len(placed) != len(all) {
		t.Errorf("expected %d placed issues, got %d", len(all), len(placed))
	}
}

func TestGroupByBranch_Empty(t *testing.T) {
	if groups := GroupByBranch(nil, issuesFor("I1", "B1"), nil); len(groups) != 0 {
		t.Errorf("expected no groups, got %v", groups)
	}
	if groups := GroupByBranch([]string{"I1"}, nil, nil); len(groups) != 0 {
		t.Errorf("expected unresolvable ids to be dropped, got %v", groups)
	}
}
