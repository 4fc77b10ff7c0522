package model

// Branch is a clinic location that owns issues and takes part in meetings.
type Branch struct {
	ID       string `json:"id" toml:"id"`
	Name     string `json:"name" toml:"name"`
	Location string `json:"location" toml:"location"`
}

// UnknownBranchName labels issues whose branch can no longer be found.
const UnknownBranchName = "Unknown branch"

// DefaultBranches is the branch list used when no seed file is configured.
var DefaultBranches = []Branch{
	{ID: "BRANCH-1", Name: "FHC Bali", Location: "Bali"},
	{ID: "BRANCH-2", Name: "TMC Mataram", Location: "Mataram"},
	{ID: "BRANCH-3", Name: "TMC Maluk", Location: "Maluk"},
	{ID: "BRANCH-4", Name: "TMC Surabaya", Location: "Surabaya"},
	{ID: "BRANCH-5", Name: "TMC Semarang", Location: "Semarang"},
	{ID: "BRANCH-6", Name: "TMC Yogyakarta", Location: "Yogyakarta"},
}

// DefaultAttendees is the predefined attendee checklist.
var DefaultAttendees = []string{
	"dr. Agus",
	"dr. Eko",
	"dr. Fatimah",
	"dr. Lestari",
	"dr. Herman",
	"Pak Agung",
	"Support HO",
}

// BranchIndex maps branch IDs to branches.
func BranchIndex(branches []*Branch) map[string]*Branch {
	idx := make(map[string]*Branch, len(branches))
	for _, b := range branches {
		idx[b.ID] = b
	}
	return idx
}

// BranchName returns the display name for id, or UnknownBranchName.
func BranchName(idx map[string]*Branch, id string) string {
	if b, ok := idx[id]; ok {
		return b.Name
	}
	return UnknownBranchName
}
