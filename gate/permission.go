package gate

import "strings"

// Permission is an allowed action on a resource type, formatted "resource:action"
// (e.g. "shortage:create", "audit:view").
type Permission string

func NewPermission(resourceType string, action Action) Permission {
	return Permission(resourceType + ":" + string(action))
}

// Parse splits a permission into resource type and action.
func (p Permission) Parse() (resourceType string, action Action) {
	res, act, ok := strings.Cut(string(p), ":")
	if !ok {
		return "", ""
	}
	return res, Action(act)
}

const (
	WildcardAll   = "*"
	PermissionAll Permission = "*:*"
)

// Matches reports whether p grants requested.
// "*:*" grants everything, "shortage:*" every shortage action, "*:view" view on every resource.
func (p Permission) Matches(requested Permission) bool {
	if p == PermissionAll || p == requested {
		return true
	}
	res, act := p.Parse()
	reqRes, reqAct := requested.Parse()
	if res == "" || reqRes == "" {
		return false
	}
	return (res == WildcardAll || res == reqRes) && (string(act) == WildcardAll || act == reqAct)
}
