package permission

import "errors"

// Role is a named access tier. Every profile carries exactly one role;
// the role determines the permission set via the static table below.
type Role string

const (
	// RoleSuperAdmin is a member of the closed role enumeration.
	RoleSuperAdmin Role = "super_admin"
	// RoleAdmin is a member of the closed role enumeration.
	RoleAdmin Role = "admin"
	// RoleManager is a member of the closed role enumeration.
	RoleManager Role = "manager"
	// RoleStaff is a member of the closed role enumeration.
	RoleStaff Role = "staff"
	// RoleViewer is a member of the closed role enumeration.
	RoleViewer Role = "viewer"
)

// ErrUnknownRole is returned by [PermissionsFor] and [ParseRole] for
// values outside the closed role enumeration.
var ErrUnknownRole = errors.New("unknown role")

var allPermissionsMask = func() Mask64 {
	var m Mask64
	for _, p := range All() {
		m = m.Set(p)
	}
	return m
}()

// roleTable is the static role → allow-set mapping. super_admin carries
// only the root bit; Has treats it as granting everything.
var roleTable = map[Role]Mask64{
	RoleSuperAdmin: maskOf(Root),
	RoleAdmin:      allPermissionsMask,
	RoleManager: maskOf(
		EventsCreate, EventsRead, EventsUpdate, EventsDelete,
		TicketsCreate, TicketsRead, TicketsUpdate, TicketsDelete,
		ArtistsCreate, ArtistsRead, ArtistsUpdate, ArtistsDelete,
		MarketingCreate, MarketingRead, MarketingUpdate, MarketingDelete,
		FinancesCreate, FinancesRead, FinancesUpdate,
		StaffRead,
		SettingsRead,
		ReportsRead,
	),
	RoleStaff: maskOf(
		EventsRead, EventsUpdate,
		TicketsCreate, TicketsRead, TicketsUpdate,
		ArtistsRead,
		MarketingRead,
		ReportsRead,
	),
	RoleViewer: maskOf(
		EventsRead,
		TicketsRead,
		ArtistsRead,
		ReportsRead,
	),
}

// Roles returns the closed role enumeration from most to least privileged.
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleManager, RoleStaff, RoleViewer}
}

// Valid reports whether r is a member of the closed role enumeration.
func (r Role) Valid() bool {
	_, ok := roleTable[r]
	return ok
}

// String returns the role name.
func (r Role) String() string {
	return string(r)
}

// ParseRole maps a stored role name to its [Role]. Unknown names return
// [ErrUnknownRole].
func ParseRole(name string) (Role, error) {
	r := Role(name)
	if !r.Valid() {
		return "", ErrUnknownRole
	}
	return r, nil
}

// PermissionsFor returns the allow-set mask for r. It is a pure lookup
// over the static table and fails only for values outside the closed
// enumeration.
func PermissionsFor(r Role) (Mask64, error) {
	mask, ok := roleTable[r]
	if !ok {
		return 0, ErrUnknownRole
	}
	return mask, nil
}

// TokensFor returns the granted permission tokens for r in declaration
// order. For super_admin the list is every token plus the wildcard,
// reflecting that the root bit satisfies all checks.
func TokensFor(r Role) ([]string, error) {
	mask, err := PermissionsFor(r)
	if err != nil {
		return nil, err
	}

	var tokens []string
	if mask.IsRoot() {
		tokens = append(tokens, Wildcard)
	}
	for _, p := range All() {
		if mask.Has(p) {
			tokens = append(tokens, p.String())
		}
	}
	return tokens, nil
}
