// Package app is the composition root of the device manager. It builds the
// driver registry from compiled-in modules and HCL manifests, wires the
// device tree, lifecycle coordinator and event sinks together, boots the
// board file and serves the health, metrics and tree endpoints.
package app
