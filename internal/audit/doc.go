// Package audit implements async event dispatching for authentication operations.
//
// [Dispatcher] is a buffered relay in front of a [Sink]. With DropIfFull set,
// a full buffer drops the event and increments a counter instead of blocking
// the request path. Which events to emit is decided by the Engine.
package audit
