package gate

import "context"

// Profile is the membership of a subject: its center, its role and the role's permissions.
type Profile interface {
	CenterID() string
	Role() string
	HasPermission(permission Permission) bool
	Permissions() []Permission
}

// ProfileResolver resolves a subject to its profile.
// A nil profile with a nil error means the subject has no membership.
type ProfileResolver[U any] interface {
	Resolve(ctx context.Context, user U) (Profile, error)
}

// StaticProfile is a simple in-memory profile implementation.
type StaticProfile struct {
	centerID    string
	role        string
	permissions map[Permission]bool
}

// NewStaticProfile creates a profile with the given permissions.
func NewStaticProfile(centerID, role string, permissions ...Permission) *StaticProfile {
	p := &StaticProfile{
		centerID:    centerID,
		role:        role,
		permissions: make(map[Permission]bool, len(permissions)),
	}
	for _, perm := range permissions {
		p.permissions[perm] = true
	}
	return p
}

func (p *StaticProfile) CenterID() string { return p.centerID }
func (p *StaticProfile) Role() string     { return p.role }

// Permissions returns all permissions in this profile.
func (p *StaticProfile) Permissions() []Permission {
	perms := make([]Permission, 0, len(p.permissions))
	for perm := range p.permissions {
		perms = append(perms, perm)
	}
	return perms
}

// HasPermission checks the requested permission, honouring wildcards.
func (p *StaticProfile) HasPermission(requested Permission) bool {
	for perm := range p.permissions {
		if perm.Matches(requested) {
			return true
		}
	}
	return false
}

// Roles maps a role name to the permissions it grants.
type Roles map[string][]Permission

// Profile builds the profile of a membership with the given role.
// Unknown roles get no permissions.
func (r Roles) Profile(centerID, role string) *StaticProfile {
	return NewStaticProfile(centerID, role, r[role]...)
}

// StaticResolver is a simple in-memory resolver for tests and fixtures.
type StaticResolver[U comparable] struct {
	profiles map[U]Profile
}

func NewStaticResolver[U comparable]() *StaticResolver[U] {
	return &StaticResolver[U]{profiles: make(map[U]Profile)}
}

// Set assigns a profile to a subject.
func (r *StaticResolver[U]) Set(user U, profile Profile) {
	r.profiles[user] = profile
}

func (r *StaticResolver[U]) Resolve(_ context.Context, user U) (Profile, error) {
	return r.profiles[user], nil
}
