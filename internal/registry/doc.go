// Package registry is the catalog of drivers known to the device manager.
//
// It plays two roles. At startup, compiled-in driver modules register their
// Go implementations as builtins and the HCL manifests contribute binding
// programs; ValidateRegistry checks that both sides agree before anything
// runs. At run time, Register admits a driver: it validates the binding
// program, calls the driver's Init exactly once and makes it visible to the
// matcher. Unregister refuses to drop a driver that still owns devices.
package registry
