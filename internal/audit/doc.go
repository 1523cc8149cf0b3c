// Package audit defines the security event model and the asynchronous
// dispatcher that forwards events to a host-provided sink.
//
// Events cover the session lifecycle: logins, rotations, reuse detections,
// family revocations, logouts, and rejected validations. Emission never
// blocks the request path beyond the configured buffering policy.
//
// # Architecture boundaries
//
// This package does not decide WHAT to emit; flow functions do. It owns only
// the event shape, the sink contract, and delivery.
package audit
