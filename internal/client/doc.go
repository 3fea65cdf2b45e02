// Package client implements the receiving side of clickr: a reconnect loop
// that keeps one WebSocket connection to the host, plays a sound on every
// Ping and treats silence longer than the read timeout as a dead link.
package client
