// Package internal holds cryptographic helpers shared by the engine and
// the built-in identity service: identifier and secret generation, backup
// code derivation, and bounded retry backoff. It must not import any
// stationauth package.
package internal
