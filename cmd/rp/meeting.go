package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/alfredjeanlab/reg2progress/internal/client"
	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/notes"
	"github.com/spf13/cobra"
)

var meetingCmd = &cobra.Command{
	Use:     "meeting",
	Short:   "Run meetings and browse meeting history",
	GroupID: "meetings",
}

// printSessionView prints the open meeting as returned by start, edit and
// show-session.
func printSessionView(w io.Writer, v *client.SessionView) error {
	if jsonOutput {
		return printJSON(w, v)
	}
	printSession(w, &v.Session, v.Groups, v.Branches)
	return nil
}

var meetingStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new meeting over every unresolved issue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := clinicClient.StartMeeting(context.Background())
		if err != nil {
			return err
		}
		return printSessionView(cmd.OutOrStdout(), v)
	},
}

var meetingEditCmd = &cobra.Command{
	Use:   "edit <meeting-id>",
	Short: "Reopen a saved meeting to edit its notes and attendees",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := clinicClient.EditMeeting(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printSessionView(cmd.OutOrStdout(), v)
	},
}

var meetingShowSessionCmd = &cobra.Command{
	Use:   "show-session",
	Short: "Show the meeting in progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := clinicClient.GetSession(context.Background())
		if err != nil {
			return err
		}
		return printSessionView(cmd.OutOrStdout(), v)
	},
}

var meetingNoteCmd = &cobra.Command{
	Use:   "note <branch-id> [markup]",
	Short: "Set a branch's note in the meeting in progress",
	Long: `Set a branch's note in the meeting in progress.

The note is rich-text markup; it is sanitized by the server. Pass it as the
second argument, or with --file (use "-" for stdin). Empty notes are dropped when the meeting is recorded.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		var markup string
		switch {
		case len(args) == 2 && file != "":
			return fmt.Errorf("pass the note as an argument or with --file, not both")
		case len(args) == 2:
			markup = args[1]
		case file != "":
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			markup = string(data)
		}

		sess, err := clinicClient.SetNote(context.Background(), args[0], markup)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), sess)
		}
		if notes.IsBlank(markup) {
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared note for %s\n", args[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Saved note for %s\n", args[0])
		}
		return nil
	},
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

var meetingAttendeesCmd = &cobra.Command{
	Use:   "attendees",
	Short: "Set who attended the meeting in progress",
	Long: `Set who attended the meeting in progress.

Either replace the attendee list with --set, or build it from checklist
names (--select, repeatable; see "rp meeting attendees --list") plus a
comma-separated --manual list.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if list, _ := cmd.Flags().GetBool("list"); list {
			names, err := clinicClient.ListAttendees(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), names)
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		}

		req := &client.AttendeesRequest{}
		req.Selected, _ = cmd.Flags().GetStringSlice("select")
		req.Manual, _ = cmd.Flags().GetString("manual")
		if cmd.Flags().Changed("set") {
			if len(req.Selected) > 0 || req.Manual != "" {
				return fmt.Errorf("--set cannot be combined with --select or --manual")
			}
			set, _ := cmd.Flags().GetString("set")
			req.Attendees = &set
		}

		sess, err := clinicClient.SetAttendees(ctx, req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), sess)
		}
		printAttendees(cmd.OutOrStdout(), sess.Attendees)
		return nil
	},
}

var meetingAddIssueCmd = &cobra.Command{
	Use:   "add-issue <title>",
	Short: "Raise a new issue during the meeting and add it to the discussion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := createRequestFromFlags(cmd, args[0])
		if err != nil {
			return err
		}
		issue, err := clinicClient.AddMeetingIssue(context.Background(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), issue)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s and added it to the meeting\n", issue.ID)
		return nil
	},
}

// printStoredMeeting reports the meeting written by finish or save.
func printStoredMeeting(cmd *cobra.Command, m *model.Meeting, verb string) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), m)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d issues, %d notes)\n", verb, m.ID, len(m.DiscussedIssueIDs), len(m.Notes))
	return nil
}

var meetingFinishCmd = &cobra.Command{
	Use:   "finish",
	Short: "Finish the new meeting and record it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := clinicClient.FinishMeeting(context.Background())
		if err != nil {
			return err
		}
		return printStoredMeeting(cmd, m, "Recorded")
	},
}

var meetingSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save changes to the meeting being edited",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := clinicClient.SaveMeeting(context.Background())
		if err != nil {
			return err
		}
		return printStoredMeeting(cmd, m, "Saved")
	},
}

var meetingCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Discard the meeting in progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := clinicClient.CancelMeeting(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), sess)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Meeting discarded")
		return nil
	},
}

var meetingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded meetings, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("search")
		meetings, err := clinicClient.ListMeetings(context.Background(), query)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), meetings)
		}
		printMeetingList(cmd.OutOrStdout(), meetings)
		return nil
	},
}

var meetingShowCmd = &cobra.Command{
	Use:   "show <meeting-id>",
	Short: "Show a recorded meeting with its issues grouped by branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		detail, err := clinicClient.GetMeeting(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), detail)
		}
		printMeeting(cmd.OutOrStdout(), detail.Meeting, detail.Groups, branchIndex(ctx))
		return nil
	},
}

func init() {
	meetingNoteCmd.Flags().StringP("file", "f", "", `read the note from a file ("-" for stdin)`)

	meetingAttendeesCmd.Flags().String("set", "", "replace the attendee list")
	meetingAttendeesCmd.Flags().StringSlice("select", nil, "checklist name (repeatable)")
	meetingAttendeesCmd.Flags().String("manual", "", "comma-separated names not on the checklist")
	meetingAttendeesCmd.Flags().Bool("list", false, "print the attendee checklist")

	addCreateFlags(meetingAddIssueCmd)

	meetingListCmd.Flags().StringP("search", "q", "", "only meetings that discussed an issue whose title or description matches")

	meetingCmd.AddCommand(
		meetingStartCmd,
		meetingEditCmd,
		meetingNoteCmd,
		meetingAttendeesCmd,
		meetingAddIssueCmd,
		meetingShowSessionCmd,
		meetingFinishCmd,
		meetingSaveCmd,
		meetingCancelCmd,
		meetingListCmd,
		meetingShowCmd,
	)
}
