package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/reg2progress/internal/meeting"
	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/notes"
	"github.com/alfredjeanlab/reg2progress/internal/stats"
	"github.com/alfredjeanlab/reg2progress/internal/ui"
)

const (
	dateFormat     = "2006-01-02"
	dateTimeFormat = "2006-01-02 15:04"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printBranches(w io.Writer, branches []*model.Branch) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLOCATION")
	for _, b := range branches {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.ID, b.Name, b.Location)
	}
	tw.Flush()
}

func printIssueList(w io.Writer, issues []*model.Issue, total int, branches map[string]*model.Branch) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPRIORITY\tBRANCH\tDUE\tTITLE")
	for _, i := range issues {
		due := "-"
		if i.DueDate != nil {
			due = i.DueDate.Format(dateFormat)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			i.ID,
			ui.RenderStatus(i.Status),
			ui.RenderPriority(i.Priority),
			model.BranchName(branches, i.BranchID),
			due,
			truncate(i.Title, 50),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d issues (%d total)\n", len(issues), total)
}

func printIssue(w io.Writer, i *model.Issue, branches map[string]*model.Branch) {
	fmt.Fprintf(w, "ID:          %s\n", i.ID)
	fmt.Fprintf(w, "Title:       %s\n", i.Title)
	fmt.Fprintf(w, "Branch:      %s\n", model.BranchName(branches, i.BranchID))
	fmt.Fprintf(w, "Status:      %s\n", ui.RenderStatus(i.Status))
	fmt.Fprintf(w, "Priority:    %s\n", ui.RenderPriority(i.Priority))
	if i.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", i.Description)
	}
	if i.DueDate != nil {
		fmt.Fprintf(w, "Due:         %s\n", i.DueDate.Format(dateFormat))
	}
	fmt.Fprintf(w, "Created At:  %s\n", i.CreatedAt.Local().Format(dateTimeFormat))
	fmt.Fprintf(w, "Updated At:  %s\n", i.UpdatedAt.Local().Format(dateTimeFormat))
	if i.ResolvedAt != nil {
		fmt.Fprintf(w, "Resolved At: %s\n", i.ResolvedAt.Local().Format(dateTimeFormat))
	}

	if len(i.Updates) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", ui.RenderAccent("Updates:"))
	for _, u := range model.NewestFirst(i.Updates) {
		fmt.Fprintf(w, "  %s  %s  %s\n",
			ui.RenderMuted(u.Timestamp.Local().Format(dateTimeFormat)),
			ui.RenderMuted("["+u.ID+"]"),
			u.Author)
		for _, line := range strings.Split(u.Text, "\n") {
			fmt.Fprintf(w, "      %s\n", line)
		}
	}
}

func printMeetingList(w io.Writer, meetings []*model.Meeting) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tISSUES\tNOTES\tATTENDEES")
	for _, m := range meetings {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			m.ID,
			m.Date.Local().Format(dateTimeFormat),
			len(m.DiscussedIssueIDs),
			len(m.Notes),
			truncate(m.Attendees, 40),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d meetings\n", len(meetings))
}

// printAttendees lists one attendee per line, or "-" when nobody is recorded.
func printAttendees(w io.Writer, attendees string) {
	names := meeting.SplitAttendees(attendees)
	if len(names) == 0 {
		fmt.Fprintln(w, "Attendees:   -")
		return
	}
	fmt.Fprintln(w, "Attendees:")
	for _, n := range names {
		fmt.Fprintf(w, "  - %s\n", n)
	}
}

// printGroups prints discussed issues per branch with the branch's note.
// Notes for branches without a group are printed after the groups.
func printGroups(w io.Writer, groups []meeting.BranchGroup, branchNotes map[string]string, names map[string]*model.Branch) {
	printed := make(map[string]bool, len(groups))
	for _, g := range groups {
		printed[g.BranchID] = true
		fmt.Fprintf(w, "\n%s\n", ui.RenderAccent(g.BranchName))
		for _, i := range g.Issues {
			fmt.Fprintf(w, "  %s  %s  %s  %s\n",
				i.ID, ui.RenderStatus(i.Status), ui.RenderPriority(i.Priority), i.Title)
		}
		printNote(w, branchNotes[g.BranchID])
	}

	var rest []string
	for id, note := range branchNotes {
		if !printed[id] && !notes.IsBlank(note) {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		fmt.Fprintf(w, "\n%s\n", ui.RenderAccent(model.BranchName(names, id)))
		printNote(w, branchNotes[id])
	}
}

func printNote(w io.Writer, note string) {
	if notes.IsBlank(note) {
		return
	}
	fmt.Fprintf(w, "  %s\n", ui.RenderMuted("note:"))
	for _, line := range strings.Split(notes.PlainText(note), "\n") {
		fmt.Fprintf(w, "    %s\n", line)
	}
}

func printMeeting(w io.Writer, m *model.Meeting, groups []meeting.BranchGroup, branches map[string]*model.Branch) {
	fmt.Fprintf(w, "ID:          %s\n", m.ID)
	fmt.Fprintf(w, "Date:        %s\n", m.Date.Local().Format(dateTimeFormat))
	printAttendees(w, m.Attendees)
	fmt.Fprintf(w, "Discussed:   %d issues\n", len(m.DiscussedIssueIDs))
	printGroups(w, groups, m.Notes, branches)
}

func printSession(w io.Writer, s *meeting.Session, groups []meeting.BranchGroup, branches []*model.Branch) {
	fmt.Fprintf(w, "State:       %s\n", s.State)
	if s.State == meeting.StateIdle {
		return
	}
	if s.MeetingID != "" {
		fmt.Fprintf(w, "Meeting:     %s\n", s.MeetingID)
	}
	if !s.Date.IsZero() {
		fmt.Fprintf(w, "Date:        %s\n", s.Date.Local().Format(dateTimeFormat))
	}
	printAttendees(w, s.Attendees)
	fmt.Fprintf(w, "Discussed:   %d issues\n", len(s.DiscussedIssueIDs))
	printGroups(w, groups, s.Notes, model.BranchIndex(branches))
}

func printEvents(w io.Writer, evts []*model.Event) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tTOPIC\tACTOR")
	for _, e := range evts {
		actor := e.Actor
		if actor == "" {
			actor = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, e.CreatedAt.Local().Format(time.DateTime), e.Topic, actor)
	}
	tw.Flush()
}

func printDashboard(w io.Writer, d *stats.Dashboard) {
	fmt.Fprintln(w, ui.RenderAccent("Unresolved by branch:"))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, b := range d.ByBranch {
		fmt.Fprintf(tw, "  %s\t%d\n", b.BranchName, b.Open)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%s\n", ui.RenderAccent("Unresolved by priority:"))
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, p := range d.ByPriority {
		fmt.Fprintf(tw, "  %s\t%d\n", ui.RenderPriority(p.Priority), p.Open)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%s\n", ui.RenderAccent("Monthly trend:"))
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  MONTH\tCREATED\tRESOLVED")
	for _, m := range d.Trend {
		fmt.Fprintf(tw, "  %s\t%d\t%d\n", m.Month, m.Created, m.Resolved)
	}
	tw.Flush()
}
