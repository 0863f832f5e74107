/*
kelpie is the command line interface to kelpied.

Usage

	$ kelpie -h
	kelpie is the cli interface to kelpied

	Usage:
	  kelpie [flags]
	  kelpie [command]

	Available Commands:
	  compute     Manage computes
	  project     Manage projects
	  vm          Manage the VMs of a project

	Flags:
	  -o, --output string       output format: id, json or yaml (default "id")
	  -s, --server string       server address to connect to (default "http://localhost:18000")
	  -t, --timeout duration    request timeout (default 30s)

Commands that take ids or specs read them from stdin, one per line, when none
are given on the command line:

	$ kelpie project create '{"name": "lab"}'
	9b6b5a46-4e4b-4b0e-9e66-5f4c7c2f3c1d
	$ kelpie vm create 9b6b5a46-4e4b-4b0e-9e66-5f4c7c2f3c1d '{"name": "pc1", "vm_type": "vpcs", "compute_id": "local"}'
	$ kelpie vm list 9b6b5a46-4e4b-4b0e-9e66-5f4c7c2f3c1d | xargs kelpie vm start 9b6b5a46-4e4b-4b0e-9e66-5f4c7c2f3c1d
*/
package main
