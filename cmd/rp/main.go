package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/alfredjeanlab/reg2progress/internal/client"
	"github.com/alfredjeanlab/reg2progress/internal/config"
	"github.com/alfredjeanlab/reg2progress/internal/ui"
	"github.com/spf13/cobra"
)

var (
	serverURL  string
	authToken  string
	actor      string
	jsonOutput bool

	clinicClient client.ClinicClient
)

// activeProfile returns the saved profile selected with `rp profile use`.
func activeProfile() config.Profile {
	path, err := config.ProfilePath()
	if err != nil {
		return config.Profile{}
	}
	p, err := config.LoadProfiles(path)
	if err != nil {
		return config.Profile{}
	}
	prof, _ := p.Current()
	return prof
}

func defaultURL(prof config.Profile) string {
	if s := os.Getenv("RP_URL"); s != "" {
		return s
	}
	if prof.URL != "" {
		return prof.URL
	}
	return "http://localhost:8080"
}

func defaultToken(prof config.Profile) string {
	if s := os.Getenv("RP_TOKEN"); s != "" {
		return s
	}
	return prof.Token
}

func defaultActor(prof config.Profile) string {
	if prof.Actor != "" {
		return prof.Actor
	}
	out, err := exec.Command("git", "config", "user.name").Output()
	if err == nil {
		if name := strings.TrimSpace(string(out)); name != "" {
			return name
		}
	}
	return ""
}

var rootCmd = &cobra.Command{
	Use:           "rp <command>",
	Short:         "CLI client for the clinic issue and meeting tracker",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		clinicClient = client.NewHTTPClient(serverURL, authToken, actor)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if clinicClient != nil {
			clinicClient.Close()
		}
	},
}

func init() {
	prof := activeProfile()
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", defaultURL(prof), "server URL (RP_URL)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(prof), "bearer token (RP_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", defaultActor(prof), "name recorded on log entries and events")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "issues", Title: "Issues:"},
		&cobra.Group{ID: "meetings", Title: "Meetings:"},
		&cobra.Group{ID: "reports", Title: "Reports:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false

	// Issues
	rootCmd.AddCommand(branchesCmd)
	rootCmd.AddCommand(issueCmd)

	// Meetings
	rootCmd.AddCommand(meetingCmd)

	// Reports
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(eventsCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(profileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
