/*
kelpie-stubagent is an in-memory compute agent. It serves the compute protocol
kelpied speaks, keeping VMs in memory, handing out consoles from 5000 up and
tracking their status. A share of requests can be made to fail as if the
agent were unreachable, to exercise the controller's error paths.

Usage

	$ kelpie-stubagent -h
	Usage of kelpie-stubagent:
	  -a, --advertise string            address kelpied reaches this agent at (default <hostname>:<port>)
	  -c, --controller string           kelpied address to register with
	  -f, --fail-percent uint           percentage of requests to fail as unreachable
	  -i, --id string                   compute id (default the hostname)
	  -l, --log-level string            log level (default "warn")
	  -p, --port uint                   listen port (default 3080)
	      --shutdown-timeout duration   time allowed for in-flight requests on shutdown (default 5s)
*/
package main
