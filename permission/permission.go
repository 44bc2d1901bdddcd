package permission

import "errors"

// Permission is a capability token gating a specific dashboard operation.
// The value is the bit position inside [Mask64].
type Permission int

const (
	// EventsCreate is a member of the closed permission enumeration.
	EventsCreate Permission = iota
	// EventsRead is a member of the closed permission enumeration.
	EventsRead
	// EventsUpdate is a member of the closed permission enumeration.
	EventsUpdate
	// EventsDelete is a member of the closed permission enumeration.
	EventsDelete
	// TicketsCreate is a member of the closed permission enumeration.
	TicketsCreate
	// TicketsRead is a member of the closed permission enumeration.
	TicketsRead
	// TicketsUpdate is a member of the closed permission enumeration.
	TicketsUpdate
	// TicketsDelete is a member of the closed permission enumeration.
	TicketsDelete
	// ArtistsCreate is a member of the closed permission enumeration.
	ArtistsCreate
	// ArtistsRead is a member of the closed permission enumeration.
	ArtistsRead
	// ArtistsUpdate is a member of the closed permission enumeration.
	ArtistsUpdate
	// ArtistsDelete is a member of the closed permission enumeration.
	ArtistsDelete
	// MarketingCreate is a member of the closed permission enumeration.
	MarketingCreate
	// MarketingRead is a member of the closed permission enumeration.
	MarketingRead
	// MarketingUpdate is a member of the closed permission enumeration.
	MarketingUpdate
	// MarketingDelete is a member of the closed permission enumeration.
	MarketingDelete
	// FinancesCreate is a member of the closed permission enumeration.
	FinancesCreate
	// FinancesRead is a member of the closed permission enumeration.
	FinancesRead
	// FinancesUpdate is a member of the closed permission enumeration.
	FinancesUpdate
	// FinancesDelete is a member of the closed permission enumeration.
	FinancesDelete
	// StaffCreate is a member of the closed permission enumeration.
	StaffCreate
	// StaffRead is a member of the closed permission enumeration.
	StaffRead
	// StaffUpdate is a member of the closed permission enumeration.
	StaffUpdate
	// StaffDelete is a member of the closed permission enumeration.
	StaffDelete
	// SettingsRead is a member of the closed permission enumeration.
	SettingsRead
	// SettingsUpdate is a member of the closed permission enumeration.
	SettingsUpdate
	// ReportsRead is a member of the closed permission enumeration.
	ReportsRead

	permissionCount
)

// Wildcard is the UI-boundary token for the reserved root permission.
// It is not a member of the enumeration; [Parse] maps it to [Root].
const Wildcard = "*"

// Root is the reserved root permission. It occupies the highest mask bit
// and satisfies every check. Only super_admin carries it.
const Root Permission = rootBit

const rootBit = 63

// ErrUnknownPermission is returned by [Parse] for tokens outside the
// closed set.
var ErrUnknownPermission = errors.New("unknown permission token")

var permissionTokens = [permissionCount]string{
	EventsCreate:    "events.create",
	EventsRead:      "events.read",
	EventsUpdate:    "events.update",
	EventsDelete:    "events.delete",
	TicketsCreate:   "tickets.create",
	TicketsRead:     "tickets.read",
	TicketsUpdate:   "tickets.update",
	TicketsDelete:   "tickets.delete",
	ArtistsCreate:   "artists.create",
	ArtistsRead:     "artists.read",
	ArtistsUpdate:   "artists.update",
	ArtistsDelete:   "artists.delete",
	MarketingCreate: "marketing.create",
	MarketingRead:   "marketing.read",
	MarketingUpdate: "marketing.update",
	MarketingDelete: "marketing.delete",
	FinancesCreate:  "finances.create",
	FinancesRead:    "finances.read",
	FinancesUpdate:  "finances.update",
	FinancesDelete:  "finances.delete",
	StaffCreate:     "staff.create",
	StaffRead:       "staff.read",
	StaffUpdate:     "staff.update",
	StaffDelete:     "staff.delete",
	SettingsRead:    "settings.read",
	SettingsUpdate:  "settings.update",
	ReportsRead:     "reports.read",
}

var tokenToPermission = func() map[string]Permission {
	m := make(map[string]Permission, permissionCount)
	for p, token := range permissionTokens {
		m[token] = Permission(p)
	}
	return m
}()

// String returns the dotted resource.action token for the permission.
func (p Permission) String() string {
	if p == Root {
		return Wildcard
	}
	if p < 0 || p >= permissionCount {
		return "unknown"
	}
	return permissionTokens[p]
}

// Valid reports whether p is a member of the closed enumeration or the
// reserved root permission.
func (p Permission) Valid() bool {
	return p == Root || (p >= 0 && p < permissionCount)
}

// Parse maps a UI-boundary token to its [Permission]. The wildcard token
// maps to [Root]. Unknown tokens return [ErrUnknownPermission].
func Parse(token string) (Permission, error) {
	if token == Wildcard {
		return Root, nil
	}
	p, ok := tokenToPermission[token]
	if !ok {
		return 0, ErrUnknownPermission
	}
	return p, nil
}

// All returns every permission in the closed enumeration, excluding the
// reserved root permission, in declaration order.
func All() []Permission {
	out := make([]Permission, permissionCount)
	for i := range out {
		out[i] = Permission(i)
	}
	return out
}

// Count returns the size of the closed enumeration, excluding the root
// permission.
func Count() int {
	return int(permissionCount)
}
