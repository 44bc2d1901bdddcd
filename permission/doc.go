// Package permission defines the closed permission and role enumerations
// used by stationauth authorization checks, together with the fixed-size
// bitmask type that backs them.
//
// # Closed sets
//
// Both [Permission] and [Role] are closed enumerations: every value is
// declared in this package and the role table is built once at package
// init. There is no runtime registration. Adding a permission means adding
// a constant here and assigning it to roles in the table, which keeps
// coverage visible in one place instead of behind free-form string
// comparison scattered across call sites.
//
// # Wildcard
//
// The highest mask bit is reserved for the root permission. The
// super_admin role holds it, and [Mask64.Has] short-circuits on it, so
// super_admin satisfies every check without enumerating tokens.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import stationauth, identity, or session.
package permission
