// Package jwt manages signed access- and refresh-token issuance and verification
// with strict issuer/audience/type validation suitable for low-latency
// authentication paths.
//
// # Architecture boundaries
//
// This package owns claim shape and cryptographic transforms only. It performs
// no I/O: session persistence, revocation lookups, and rotation policy are
// handled by the session and revocation packages under Engine coordination.
package jwt
