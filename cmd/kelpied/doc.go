/*
kelpied is the kelpie controller daemon. It keeps the projects and VMs of a
network emulation and forwards VM lifecycle commands to compute agents.

Computes come from the static list in the config file, from the compute
inventory kept in the kv store (watched for changes), and from the API.

Usage

	$ kelpied -h
	Usage of kelpied:
	  -c, --config string               config file (default ./kelpied.yaml or /etc/kelpie/kelpied.yaml)
	      --compute-timeout duration    timeout for requests to computes that do not set one (default 15s)
	  -k, --kv string                   kv store url, e.g. badger:///var/lib/kelpie or consul://localhost:8500
	  -l, --log-level string            log level (default "warn")
	  -p, --port uint                   listen port (default 18000)
	  -s, --statsd string               statsd address
	      --shutdown-timeout duration   time allowed for in-flight requests on shutdown (default 5s)

Every flag can also be set as a KELPIE_ environment variable, e.g.
KELPIE_LOG_LEVEL=info, or in kelpied.yaml:

	port: 18000
	kv: badger:///var/lib/kelpie
	computes:
	  - compute_id: local
	    address: 127.0.0.1:3080
	    timeout: 5s

HTTP API Endpoints

	/computes
		* GET - List computes
		* POST - Register an HTTP compute

	/computes/{computeID}
		* GET - Get a compute
		* DELETE - Unregister a compute

	/projects
		* GET - List projects
		* POST - Create a project

	/projects/{projectID}
		* GET - Get a project
		* DELETE - Delete every VM of the project, then the project

	/projects/{projectID}/vms
		* GET - List the VMs of a project
		* POST - Create a VM on a compute

	/projects/{projectID}/vms/{vmID}
		* GET - Get a VM
		* PUT - Update the name or properties of a VM
		* DELETE - Delete a VM

	/projects/{projectID}/vms/{vmID}/{action}
		* POST - Run start, stop, suspend or reload

	/metrics
		* GET - Prometheus metrics

	/metrics.json
		* GET - In-memory metrics summary
*/
package main
