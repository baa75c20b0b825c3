// Package bind implements binding programs and the matcher that evaluates
// them against a device's properties.
//
// A Program is an ordered list of instructions combined with AND. Evaluation
// runs left to right and stops at the first definitive mismatch. OpAlways
// terminates its sequence with a match. OpAll and OpAny nest instructions to
// express grouping.
//
// Programs are checked once with Validate when a driver registers; Matches
// assumes a validated program and is a pure function of its inputs.
package bind
