package main

import (
	"net/http"
	"sort"

	"github.com/mistifyio/kelpie/internal/cli"
	"github.com/spf13/cobra"
)

func newComputeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Manage computes",
		Run:   help,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list [<id>...]",
			Short: "List the computes",
			RunE:  listComputes,
		},
		&cobra.Command{
			Use:   "add <spec>...",
			Short: "Register HTTP computes",
			Long:  `Register compute(s) using "spec"(s), where "spec" is a json string like {"compute_id": "local", "address": "127.0.0.1:3080"}.`,
			RunE:  addComputes,
		},
		&cobra.Command{
			Use:   "remove <id>...",
			Short: "Unregister computes",
			RunE:  removeComputes,
		},
	)
	return cmd
}

func listComputes(_ *cobra.Command, ids []string) error {
	c := newClient()
	if len(ids) == 0 {
		computes, err := c.GetMany("computes")
		if err != nil {
			return err
		}
		sort.Sort(computes)
		return printAll(computes)
	}

	computes := cli.JMapSlice{}
	for _, id := range ids {
		compute, err := c.Get("computes/" + id)
		if err != nil {
			return err
		}
		computes = append(computes, compute)
	}
	return printAll(computes)
}

func addComputes(_ *cobra.Command, specs []string) error {
	c := newClient()
	for _, spec := range argsOrStdin(specs) {
		j, err := cli.ParseSpec(spec)
		if err != nil {
			return err
		}
		compute, err := c.Post("computes", j)
		if err != nil {
			return err
		}
		if err := compute.Print(stdout, output); err != nil {
			return err
		}
	}
	return nil
}

func removeComputes(_ *cobra.Command, ids []string) error {
	c := newClient()
	for _, id := range argsOrStdin(ids) {
		if err := c.Del("computes/"+id, http.StatusOK); err != nil {
			return err
		}
	}
	return nil
}
