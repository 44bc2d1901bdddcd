// Package session persists refresh sessions in Redis. Each session is
// a JSON document under a configurable prefix plus a sidecar key holding
// the SHA-256 of the current refresh secret; rotation compares and swaps
// that hash atomically in a Lua script, so a replayed refresh token
// (hash mismatch) destroys the session instead of minting tokens.
package session
