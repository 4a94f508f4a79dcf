package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the supported profiles",
	Args:  cobra.NoArgs,
	RunE:  runProfiles,
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

// ProfileInfo is the JSON output of the profiles command
type ProfileInfo struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	ConformanceLevel string `json:"conformance_level"`
	Guideline        string `json:"guideline"`
	Default          bool   `json:"default,omitempty"`
}

func runProfiles(cmd *cobra.Command, _ []string) error {
	registry := newPipeline().Profiles()
	def, _ := registry.Get(cfg.Profile)

	var infos []ProfileInfo
	for _, p := range registry.List() {
		infos = append(infos, ProfileInfo{
			ID:               p.ID,
			Name:             p.Name,
			ConformanceLevel: p.ConformanceLevel,
			Guideline:        p.SpecificationID,
			Default:          def != nil && def.ID == p.ID,
		})
	}

	if outputFormat == "json" {
		return outputJSON(cmd.OutOrStdout(), infos)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tGUIDELINE")
	fmt.Fprintln(tw, "--\t----\t---------")
	for _, p := range infos {
		marker := ""
		if p.Default {
			marker = " *"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\n", p.ID, marker, p.Name, p.Guideline)
	}
	return tw.Flush()
}
