// Package manifest loads the HCL configuration of the device manager: driver
// manifests, which declare each driver's binding program and flags, and the
// board file, which lists the devices present at boot.
//
// Numbers may be written as HCL numbers or as strings in any base strconv
// understands ("0x8086"). Protocol identifiers are available as
// protocol.<name> and property keys may be given by name.
package manifest
