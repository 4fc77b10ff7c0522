package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alfredjeanlab/reg2progress/internal/client"
	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/ui"
	"github.com/spf13/cobra"
)

var branchesCmd = &cobra.Command{
	Use:     "branches",
	Short:   "List clinic branches",
	GroupID: "issues",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		branches, err := clinicClient.ListBranches(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), branches)
		}
		printBranches(cmd.OutOrStdout(), branches)
		return nil
	},
}

var issueCmd = &cobra.Command{
	Use:     "issue",
	Short:   "Create, list and update issues",
	GroupID: "issues",
}

// branchIndex fetches the branch list for display. A failure only costs the
// branch names, so it is not fatal.
func branchIndex(ctx context.Context) map[string]*model.Branch {
	branches, err := clinicClient.ListBranches(ctx)
	if err != nil {
		return nil
	}
	return model.BranchIndex(branches)
}

// parseDueDate parses a YYYY-MM-DD flag value as a local calendar date.
func parseDueDate(s string) (*time.Time, error) {
	t, err := time.ParseInLocation(dateFormat, strings.TrimSpace(s), time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid due date %q: expected YYYY-MM-DD", s)
	}
	return &t, nil
}

var issueCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := createRequestFromFlags(cmd, args[0])
		if err != nil {
			return err
		}
		issue, err := clinicClient.CreateIssue(context.Background(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), issue)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", issue.ID)
		return nil
	},
}

// createRequestFromFlags reads the flags shared by `issue create` and
// `meeting add-issue`.
func createRequestFromFlags(cmd *cobra.Command, title string) (*client.CreateIssueRequest, error) {
	branch, _ := cmd.Flags().GetString("branch")
	description, _ := cmd.Flags().GetString("description")
	priority, _ := cmd.Flags().GetString("priority")
	due, _ := cmd.Flags().GetString("due")

	req := &client.CreateIssueRequest{
		Title:       title,
		Description: description,
		BranchID:    branch,
		Priority:    strings.ToUpper(priority),
	}
	if due != "" {
		d, err := parseDueDate(due)
		if err != nil {
			return nil, err
		}
		req.DueDate = d
	}
	return req, nil
}

func addCreateFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("branch", "b", "", "branch ID (required)")
	cmd.Flags().StringP("description", "d", "", "issue description (required)")
	cmd.Flags().StringP("priority", "p", "", "LOW, MEDIUM or HIGH (default MEDIUM)")
	cmd.Flags().String("due", "", "due date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("branch")
	_ = cmd.MarkFlagRequired("description")
}

var issueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		status, _ := cmd.Flags().GetStringSlice("status")
		priority, _ := cmd.Flags().GetStringSlice("priority")
		branch, _ := cmd.Flags().GetString("branch")
		search, _ := cmd.Flags().GetString("search")

		resp, err := clinicClient.ListIssues(ctx, &client.ListIssuesRequest{
			Status:   upperAll(status),
			Priority: upperAll(priority),
			BranchID: branch,
			Search:   search,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		printIssueList(cmd.OutOrStdout(), resp.Issues, resp.Total, branchIndex(ctx))
		return nil
	},
}

func upperAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToUpper(s))
	}
	return out
}

var issueShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an issue and its update log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		issue, err := clinicClient.GetIssue(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), issue)
		}
		printIssue(cmd.OutOrStdout(), issue, branchIndex(ctx))
		return nil
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update an issue's fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &client.UpdateIssueRequest{}
		changed := false
		for _, f := range []struct {
			name  string
			dst   **string
			upper bool
		}{
			{"title", &req.Title, false},
			{"description", &req.Description, false},
			{"status", &req.Status, true},
			{"priority", &req.Priority, true},
		} {
			if !cmd.Flags().Changed(f.name) {
				continue
			}
			v, _ := cmd.Flags().GetString(f.name)
			if f.upper {
				v = strings.ToUpper(v)
			}
			*f.dst = &v
			changed = true
		}

		if cmd.Flags().Changed("due") {
			due, _ := cmd.Flags().GetString("due")
			d, err := parseDueDate(due)
			if err != nil {
				return err
			}
			req.DueDate = d
			changed = true
		}
		if clearDue, _ := cmd.Flags().GetBool("clear-due"); clearDue {
			req.DueDate = &time.Time{}
			changed = true
		}
		if !changed {
			return fmt.Errorf("nothing to update: pass at least one of --title, --description, --status, --priority, --due, --clear-due")
		}

		issue, err := clinicClient.UpdateIssue(context.Background(), args[0], req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), issue)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (%s, %s)\n",
			issue.ID, ui.RenderStatus(issue.Status), ui.RenderPriority(issue.Priority))
		return nil
	},
}

var issueLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Manage an issue's update log",
}

var logAddCmd = &cobra.Command{
	Use:   "add <issue-id> <text>",
	Short: "Add an update log entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		author, _ := cmd.Flags().GetString("author")
		entry, err := clinicClient.AddLog(context.Background(), args[0], args[1], author)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), entry)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %s\n", entry.ID, entry.IssueID)
		return nil
	},
}

var logEditCmd = &cobra.Command{
	Use:   "edit <issue-id> <log-id> <text>",
	Short: "Replace the text of an update log entry",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := clinicClient.EditLog(context.Background(), args[0], args[1], args[2]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Edited %s\n", args[1])
		return nil
	},
}

var logRmCmd = &cobra.Command{
	Use:   "rm <issue-id> <log-id>",
	Short: "Delete an update log entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if !ui.StdinIsTerminal() {
				return fmt.Errorf("refusing to delete %s without confirmation (pass --yes)", args[1])
			}
			question := fmt.Sprintf("Delete log entry %s from %s?", args[1], args[0])
			if err := ui.Confirm(os.Stdin, cmd.ErrOrStderr(), question); err != nil {
				return err
			}
		}
		if err := clinicClient.DeleteLog(context.Background(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[1])
		return nil
	},
}

func init() {
	addCreateFlags(issueCreateCmd)

	issueListCmd.Flags().StringSliceP("status", "s", nil, "filter by status (repeatable)")
	issueListCmd.Flags().StringSliceP("priority", "p", nil, "filter by priority (repeatable)")
	issueListCmd.Flags().StringP("branch", "b", "", "filter by branch ID")
	issueListCmd.Flags().StringP("search", "q", "", "search title and description")

	issueUpdateCmd.Flags().String("title", "", "new title")
	issueUpdateCmd.Flags().String("description", "", "new description")
	issueUpdateCmd.Flags().StringP("status", "s", "", "OPEN, IN_PROGRESS or RESOLVED")
	issueUpdateCmd.Flags().StringP("priority", "p", "", "LOW, MEDIUM or HIGH")
	issueUpdateCmd.Flags().String("due", "", "due date (YYYY-MM-DD)")
	issueUpdateCmd.Flags().Bool("clear-due", false, "remove the due date")
	issueUpdateCmd.MarkFlagsMutuallyExclusive("due", "clear-due")

	logAddCmd.Flags().String("author", "", "author name (defaults to --actor)")
	logRmCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")

	issueLogCmd.AddCommand(logAddCmd, logEditCmd, logRmCmd)
	issueCmd.AddCommand(issueCreateCmd, issueListCmd, issueShowCmd, issueUpdateCmd, issueLogCmd)
}
