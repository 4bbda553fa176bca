// Package audit buffers security events and hands them to a sink off the
// request path.
//
// The [Dispatcher] either drops events when its buffer is full (counting them)
// or blocks the emitter until the event fits or the context ends. Which events
// to emit is decided by the engine; this package never filters.
package audit
