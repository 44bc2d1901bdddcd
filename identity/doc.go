// Package identity is the built-in credential backend: argon2id
// password storage, HS256 access tokens, and rotating opaque refresh
// tokens over a Redis session store. It satisfies the engine's
// IdentityService interface; deployments on a hosted auth provider
// supply their own adapter instead.
package identity
