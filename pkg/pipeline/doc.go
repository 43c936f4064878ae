// Package pipeline runs one grid job end to end.
//
// A run resolves nine inputs (the main image plus a header and a footer for
// each quadrant), cuts the main image into quadrants, composes four tiles and
// hands them to a Sink. Status moves pending → processing → completed or
// failed; the first error of any step fails the whole run.
//
// Inputs are decoded concurrently and the four tiles are composed
// concurrently. Nothing is shared between runs, so one Orchestrator may be
// used by many goroutines.
package pipeline
