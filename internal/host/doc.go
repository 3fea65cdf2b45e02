// Package host runs the relay side of clickr.
// It coordinates the WebSocket push endpoint, the local trigger socket,
// the heartbeat emitter and the session registry they all feed.
package host
