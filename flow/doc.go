// Package flow lays out a correlated pair of calls as a flow diagram.
//
// [AssignColumns] gives every endpoint address a lane in order of first appearance,
// [Traversal] walks the merged, time-ordered messages of both calls
// and [Session] is the state of one extended call flow view driven by key presses.
package flow
