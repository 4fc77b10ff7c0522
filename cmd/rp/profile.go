package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/reg2progress/internal/config"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:     "profile",
	Short:   "Manage named server profiles",
	GroupID: "system",
	// Profile subcommands only touch the local file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

func loadProfiles() (*config.Profiles, string, error) {
	path, err := config.ProfilePath()
	if err != nil {
		return nil, "", err
	}
	p, err := config.LoadProfiles(path)
	if err != nil {
		return nil, "", err
	}
	return p, path, nil
}

func maskToken(tok string) string {
	if len(tok) <= 8 {
		return tok
	}
	return tok[:8] + strings.Repeat("*", len(tok)-8)
}

var profileAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add or update a named profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, url := args[0], args[1]
		token, _ := cmd.Flags().GetString("token")
		natsURL, _ := cmd.Flags().GetString("nats")

		p, path, err := loadProfiles()
		if err != nil {
			return err
		}
		prof := config.Profile{URL: url, Token: token, NATSURL: natsURL}
		// --actor is the root flag; only an explicit value is saved.
		if f := cmd.Flag("actor"); f != nil && f.Changed {
			prof.Actor = actor
		}
		p.Profiles[name] = prof
		if p.Active == "" {
			p.Active = name
		}
		if err := p.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "profile %q saved (%s)\n", name, url)
		return nil
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:     "rm <name>",
	Aliases: []string{"remove"},
	Short:   "Remove a named profile",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		p, path, err := loadProfiles()
		if err != nil {
			return err
		}
		if _, ok := p.Profiles[name]; !ok {
			return fmt.Errorf("profile %q not found", name)
		}
		delete(p.Profiles, name)
		if p.Active == name {
			p.Active = ""
		}
		if err := p.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "profile %q removed\n", name)
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := loadProfiles()
		if err != nil {
			return err
		}
		if len(p.Profiles) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no profiles configured")
			return nil
		}
		names := make([]string, 0, len(p.Profiles))
		for name := range p.Profiles {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tURL\tACTOR")
		for _, name := range names {
			marker := "  "
			if name == p.Active {
				marker = "* "
			}
			prof := p.Profiles[name]
			fmt.Fprintf(w, "%s%s\t%s\t%s\n", marker, name, prof.URL, prof.Actor)
		}
		return w.Flush()
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the active profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		p, path, err := loadProfiles()
		if err != nil {
			return err
		}
		if _, ok := p.Profiles[name]; !ok {
			return fmt.Errorf("profile %q not found", name)
		}
		p.Active = name
		if err := p.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "active profile set to %q\n", name)
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show [<name>]",
	Short: "Show a profile (defaults to the active one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := loadProfiles()
		if err != nil {
			return err
		}
		name := p.Active
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			return fmt.Errorf("no active profile; specify a name or run 'rp profile use <name>'")
		}
		prof, ok := p.Profiles[name]
		if !ok {
			return fmt.Errorf("profile %q not found", name)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		active := ""
		if name == p.Active {
			active = " (active)"
		}
		fmt.Fprintf(w, "name:\t%s%s\n", name, active)
		fmt.Fprintf(w, "url:\t%s\n", prof.URL)
		if prof.Actor != "" {
			fmt.Fprintf(w, "actor:\t%s\n", prof.Actor)
		}
		if prof.Token != "" {
			fmt.Fprintf(w, "token:\t%s\n", maskToken(prof.Token))
		}
		if prof.NATSURL != "" {
			fmt.Fprintf(w, "nats_url:\t%s\n", prof.NATSURL)
		}
		return w.Flush()
	},
}

func init() {
	profileAddCmd.Flags().String("token", "", "bearer token for authentication")
	profileAddCmd.Flags().String("nats", "", "NATS URL for rp events watch")

	profileCmd.AddCommand(profileAddCmd, profileRemoveCmd, profileListCmd, profileUseCmd, profileShowCmd)
}
