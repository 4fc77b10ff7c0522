package meeting

import "testing"

func TestJoinAttendees(t *testing.T) {
	for _, tc := range []struct {
		name     string
		selected []string
		manual   string
		want     string
	}{
		{"empty", nil, "", ""},
		{"selected only", []string{"dr. Agus", "Support HO"}, "", "dr. Agus, Support HO"},
		{"manual only", nil, " Bu Rina ,, Pak Joko ", "Bu Rina, Pak Joko"},
		{"both", []string{"dr. Eko"}, "Bu Rina", "dr. Eko, Bu Rina"},
		{"repeat dropped", []string{"dr. Eko"}, "dr. Eko, Bu Rina", "dr. Eko, Bu Rina"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := JoinAttendees(tc.selected, tc.manual); got != tc.want {
				t.Errorf("JoinAttendees(%q, %q) = %q, want %q", tc.selected, tc.manual, got, tc.want)
			}
		})
	}
}

func TestSplitAttendees(t *testing.T) {
	got := SplitAttendees("dr. Eko, , Bu Rina ")
	if !equal(got, []string{"dr. Eko", "Bu Rina"}) {
		t.Errorf("unexpected split: %q", got)
	}
	if SplitAttendees("") != nil {
		t.Error("expected nil for empty input")
	}
}
