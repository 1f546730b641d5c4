// Package calls groups captured SIP messages into calls by Call-ID
// and links pairs of calls that reference each other through the X-Call-ID header.
//
// A [Registry] is written by the capture pipeline and read concurrently by the renderer.
// Calls and messages live for the registry lifetime, nothing is evicted.
package calls
