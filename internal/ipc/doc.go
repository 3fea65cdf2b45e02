// Package ipc implements the local trigger socket: a unix socket listener
// on the host that turns each short-lived connection into a Ping, and the
// one-shot client used by "clickr ping".
package ipc
