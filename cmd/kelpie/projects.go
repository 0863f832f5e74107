package main

import (
	"net/http"
	"sort"

	"github.com/mistifyio/kelpie/internal/cli"
	"github.com/spf13/cobra"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
		Run:   help,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list [<id>...]",
			Short: "List the projects",
			RunE:  listProjects,
		},
		&cobra.Command{
			Use:   "create [<spec>...]",
			Short: "Create projects",
			Long:  `Create new project(s) using "spec"(s) as the initial values, where "spec" is a json string like {"name": "lab"}. With no spec one unnamed project is created.`,
			RunE:  createProjects,
		},
		&cobra.Command{
			Use:   "delete <id>...",
			Short: "Delete projects and every VM in them",
			RunE:  deleteProjects,
		},
	)
	return cmd
}

func listProjects(_ *cobra.Command, ids []string) error {
	c := newClient()
	if len(ids) == 0 {
		projects, err := c.GetMany("projects")
		if err != nil {
			return err
		}
		sort.Sort(projects)
		return printAll(projects)
	}

	projects := cli.JMapSlice{}
	for _, id := range ids {
		if err := cli.CheckID(id); err != nil {
			return err
		}
		project, err := c.Get("projects/" + id)
		if err != nil {
			return err
		}
		projects = append(projects, project)
	}
	return printAll(projects)
}

func createProjects(_ *cobra.Command, specs []string) error {
	c := newClient()
	if len(specs) == 0 {
		specs = []string{"{}"}
	}
	for _, spec := range specs {
		j, err := cli.ParseSpec(spec)
		if err != nil {
			return err
		}
		project, err := c.Post("projects", j)
		if err != nil {
			return err
		}
		if err := project.Print(stdout, output); err != nil {
			return err
		}
	}
	return nil
}

func deleteProjects(_ *cobra.Command, ids []string) error {
	c := newClient()
	for _, id := range argsOrStdin(ids) {
		if err := cli.CheckID(id); err != nil {
			return err
		}
		if err := c.Del("projects/"+id, http.StatusNoContent); err != nil {
			return err
		}
	}
	return nil
}
