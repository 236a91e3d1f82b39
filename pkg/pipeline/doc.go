// Package pipeline runs an ordered list of provisioning steps against a
// resource.Client.
//
// Steps execute strictly in declaration order on the calling goroutine.
// Handles produced by deploy steps are recorded under the step name and
// handed to later steps that declare them as dependencies. The first failure
// aborts the run: later steps are skipped and nothing already created is
// rolled back.
//
// A Pipeline moves through NotStarted -> Running -> {Completed, Aborted} and
// cannot be run twice.
package pipeline
