// Package session owns the host's single live client connection.
//
// A Registry holds at most one Session. Installing a new Session swaps it in
// and closes the previous one asynchronously; sends against an empty
// registry are no-ops and a failed write evicts the session instead of
// surfacing an error.
package session
