// Package worker owns the connection to the batching front-end.
//
// Lifecycle: Disconnected -> Connecting -> Handshaking -> Serving, and back to
// Connecting on any I/O error. Serving is strictly one request frame, one
// response frame; nothing is pipelined. The loop only ends on Stop, context
// cancellation, or a fatal processing error reported by the Processor.
package worker
