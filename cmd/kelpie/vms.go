package main

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/mistifyio/kelpie/internal/cli"
	"github.com/spf13/cobra"
)

func newVMCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vm",
		Short: "Manage the VMs of a project",
		Run:   help,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <project> [<id>...]",
			Short: "List the VMs of a project",
			Args:  cobra.MinimumNArgs(1),
			RunE:  listVMs,
		},
		&cobra.Command{
			Use:   "create <project> <spec>...",
			Short: "Create VMs",
			Long:  `Create new VM(s) in a project using "spec"(s), where "spec" is a json string like {"name": "pc1", "vm_type": "vpcs", "compute_id": "local"}.`,
			Args:  cobra.MinimumNArgs(1),
			RunE:  createVMs,
		},
		&cobra.Command{
			Use:   "update <project> (<id> <spec>)...",
			Short: "Update the name or properties of VMs",
			Args:  cobra.MinimumNArgs(1),
			RunE:  updateVMs,
		},
		&cobra.Command{
			Use:   "delete <project> <id>...",
			Short: "Delete VMs",
			Args:  cobra.MinimumNArgs(1),
			RunE:  deleteVMs,
		},
	)

	for _, action := range []string{"start", "stop", "suspend", "reload"} {
		cmd.AddCommand(&cobra.Command{
			Use:   action + " <project> <id>...",
			Short: fmt.Sprintf("Send %s to VMs", action),
			Args:  cobra.MinimumNArgs(1),
			RunE:  vmAction(action),
		})
	}
	return cmd
}

func vmsEndpoint(project string, parts ...string) string {
	endpoint := "projects/" + project + "/vms"
	for _, part := range parts {
		endpoint += "/" + part
	}
	return endpoint
}

func listVMs(_ *cobra.Command, args []string) error {
	c := newClient()
	project, ids := args[0], args[1:]
	if err := cli.CheckID(project); err != nil {
		return err
	}

	if len(ids) == 0 {
		vms, err := c.GetMany(vmsEndpoint(project))
		if err != nil {
			return err
		}
		sort.Sort(vms)
		return printAll(vms)
	}

	vms := cli.JMapSlice{}
	for _, id := range ids {
		if err := cli.CheckID(id); err != nil {
			return err
		}
		vm, err := c.Get(vmsEndpoint(project, id))
		if err != nil {
			return err
		}
		vms = append(vms, vm)
	}
	return printAll(vms)
}

func createVMs(_ *cobra.Command, args []string) error {
	c := newClient()
	project := args[0]
	if err := cli.CheckID(project); err != nil {
		return err
	}
	for _, spec := range argsOrStdin(args[1:]) {
		j, err := cli.ParseSpec(spec)
		if err != nil {
			return err
		}
		vm, err := c.Post(vmsEndpoint(project), j)
		if err != nil {
			return err
		}
		if err := vm.Print(stdout, output); err != nil {
			return err
		}
	}
	return nil
}

func updateVMs(_ *cobra.Command, args []string) error {
	c := newClient()
	project := args[0]
	if err := cli.CheckID(project); err != nil {
		return err
	}
	pairs := argsOrStdin(args[1:])
	if len(pairs)%2 != 0 {
		return fmt.Errorf("expected an even number of args, got %d", len(pairs))
	}
	for i := 0; i < len(pairs); i += 2 {
		id := pairs[i]
		if err := cli.CheckID(id); err != nil {
			return err
		}
		j, err := cli.ParseSpec(pairs[i+1])
		if err != nil {
			return err
		}
		vm, err := c.Put(vmsEndpoint(project, id), j)
		if err != nil {
			return err
		}
		if err := vm.Print(stdout, output); err != nil {
			return err
		}
	}
	return nil
}

func deleteVMs(_ *cobra.Command, args []string) error {
	c := newClient()
	project := args[0]
	if err := cli.CheckID(project); err != nil {
		return err
	}
	for _, id := range argsOrStdin(args[1:]) {
		if err := cli.CheckID(id); err != nil {
			return err
		}
		if err := c.Del(vmsEndpoint(project, id), http.StatusCreated); err != nil {
			return err
		}
	}
	return nil
}

func vmAction(action string) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		c := newClient()
		project := args[0]
		if err := cli.CheckID(project); err != nil {
			return err
		}
		for _, id := range argsOrStdin(args[1:]) {
			if err := cli.CheckID(id); err != nil {
				return err
			}
			vm, err := c.Post(vmsEndpoint(project, id, action), nil)
			if err != nil {
				return err
			}
			if err := vm.Print(stdout, output); err != nil {
				return err
			}
		}
		return nil
	}
}
