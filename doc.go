/*
Package kelpie provides the control plane of a network-emulation platform.

A Controller owns the logical model of projects and virtual machines, while
the VMs themselves run on remote compute agents. The controller never runs a
VM; it validates requests, resolves the compute that owns a VM, forwards
lifecycle commands to it and keeps what the compute reports back.

Data Model

A Compute is a remote agent reached through four verbs (get, post, put,
delete) against /vms paths. HTTPCompute talks to a real agent; StubCompute
keeps VMs in memory.

A Project is a named collection of VMs sharing an id namespace.

A VM is the controller's record of one virtual machine: its compute, type,
properties, console port and last known status (stopped, started or
suspended). Lifecycle operations are single round trips to the compute and
are serialized per VM. Nothing changes locally when one fails, and a VM is
only registered after its compute created it and only dropped after its
compute deleted it.

Compute records may be kept in a kv store (see Inventory) and followed with
Controller.WatchComputes.
*/
package kelpie
