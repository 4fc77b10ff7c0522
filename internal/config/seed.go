package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/reg2progress/internal/model"
)

// Seed is the reference data loaded at server start.
//
//	attendees = ["dr. Agus", "Support HO"]
//
//	[[branches]]
//	id = "BRANCH-1"
//	name = "FHC Bali"
//	location = "Bali"
type Seed struct {
	Branches  []model.Branch `toml:"branches"`
	Attendees []string       `toml:"attendees"`
}

// DefaultSeed returns the built-in branches and attendees.
func DefaultSeed() *Seed {
	return &Seed{
		Branches:  append([]model.Branch(nil), model.DefaultBranches...),
		Attendees: append([]string(nil), model.DefaultAttendees...),
	}
}

// LoadSeed reads a seed file. An empty path returns DefaultSeed; a file
// that omits a section keeps the default for it.
func LoadSeed(path string) (*Seed, error) {
	seed := DefaultSeed()
	if path == "" {
		return seed, nil
	}

	var file Seed
	md, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("seed file %s: unknown key %q", path, undecoded[0].String())
	}
	if md.IsDefined("branches") {
		seed.Branches = file.Branches
	}
	if md.IsDefined("attendees") {
		seed.Attendees = file.Attendees
	}
	if err := seed.validate(); err != nil {
		return nil, fmt.Errorf("seed file %s: %w", path, err)
	}
	return seed, nil
}

func (s *Seed) validate() error {
	var ve model.ValidationError
	if len(s.Branches) == 0 {
		ve.Add("branches", "at least one branch is required")
	}
	seen := make(map[string]bool, len(s.Branches))
	for i, b := range s.Branches {
		field := fmt.Sprintf("branches[%d]", i)
		switch {
		case strings.TrimSpace(b.ID) == "":
			ve.Add(field+".id", "is required")
		case seen[b.ID]:
			ve.Add(field+".id", fmt.Sprintf("duplicate id %q", b.ID))
		}
		seen[b.ID] = true
		if strings.TrimSpace(b.Name) == "" {
			ve.Add(field+".name", "is required")
		}
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}
