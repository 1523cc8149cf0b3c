// Package internal holds cross-cutting helpers shared by the root engine and
// its flow functions: token hashing and secret generation.
package internal
