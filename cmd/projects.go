package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/propdata/rera-ingest/internal/model"
	"github.com/propdata/rera-ingest/internal/store"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Inspect canonical parent projects",
	Long:  "Commands for listing parent projects and showing the registrations grouped under one.",
}

// -- projects list --

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List parent projects",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		name, _ := cmd.Flags().GetString("name")
		limit, _ := cmd.Flags().GetInt("limit")

		projects, err := st.ListParentProjects(ctx, store.ProjectFilter{
			NameContains: name,
			Limit:        limit,
		})
		if err != nil {
			return eris.Wrap(err, "projects list")
		}

		if len(projects) == 0 {
			fmt.Fprintln(os.Stderr, "No projects found.")
			return nil
		}

		formatProjectsList(os.Stdout, projects)
		return nil
	},
}

// -- projects show --

var projectsShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "Show a parent project and its registrations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		project, err := st.GetParentProject(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "projects show %s", args[0])
		}
		registrations, err := st.ListRegistrations(ctx, project.ID)
		if err != nil {
			return eris.Wrap(err, "projects show registrations")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Project       *model.ParentProject `json:"project"`
				Registrations []model.Registration `json:"registrations"`
			}{project, registrations})
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "Project:\t%s\n", project.ID)
		fmt.Fprintf(tw, "Name:\t%s\n", project.DisplayName)
		fmt.Fprintf(tw, "Address:\t%s\n", project.DisplayAddress)
		fmt.Fprintf(tw, "Promoter:\t%s\n", project.DisplayPromoter)
		fmt.Fprintf(tw, "First seen:\t%s\n", project.CreatedAt.Format("2006-01-02"))
		tw.Flush()

		if len(registrations) > 0 {
			fmt.Println()
			tw = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STATE\tREGISTRATION\tSTATUS\tLAST CHECKED")
			for _, r := range registrations {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					r.StateCode, r.RegistrationNo, r.Status,
					r.LastCheckedAt.Format("2006-01-02 15:04"))
			}
			tw.Flush()
		}
		return nil
	},
}

func formatProjectsList(w io.Writer, projects []model.ParentProject) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPROMOTER\tCREATED")
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			p.ID, p.DisplayName, p.DisplayPromoter,
			p.CreatedAt.Format("2006-01-02"))
	}
	tw.Flush()
}

func init() {
	projectsListCmd.Flags().String("name", "", "filter by normalized name substring")
	projectsListCmd.Flags().Int("limit", 50, "maximum projects to list")

	projectsShowCmd.Flags().Bool("json", false, "emit the project as JSON")

	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsShowCmd)
	rootCmd.AddCommand(projectsCmd)
}
