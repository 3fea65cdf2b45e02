// Package audio plays the clickr notification sound.
// The command backend runs an external player such as pw-cat; the beep
// backend decodes WAV, OGG and MP3 in-process and caches the result.
package audio
