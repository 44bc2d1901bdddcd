// Package password hashes and verifies credentials with argon2id in
// PHC string format. Parameters are embedded in each hash, so stored
// hashes keep verifying after the operator raises the cost settings;
// NeedsRehash reports when a hash lags the current policy.
package password
