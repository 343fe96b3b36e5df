// Package audit dispatches security events off the request path.
//
// The Engine decides which events to emit; this package only buffers them
// and hands them to a Sink on a single background goroutine. Sinks provided
// here write to a channel, to an io.Writer as JSON lines, or to a
// structured logger.
package audit
