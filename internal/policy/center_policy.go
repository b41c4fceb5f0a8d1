package policy

import (
	"context"

	"github.com/diewo77/bloodboard/gate"
)

// CenterOwned is implemented by resources that belong to a center.
type CenterOwned interface {
	GetCenterID() string
}

// CenterPolicy allows an action only on resources of the caller's own center.
type CenterPolicy struct{}

func NewCenterPolicy() *CenterPolicy { return &CenterPolicy{} }

// Can denies resources that do not expose their center.
func (p *CenterPolicy) Can(_ context.Context, _ string, profile gate.Profile, _ gate.Action, resource any) bool {
	owned, ok := resource.(CenterOwned)
	if !ok {
		return false
	}
	id := owned.GetCenterID()
	return id != "" && id == profile.CenterID()
}

// CenterIDRef lets callers authorize against a bare center id.
type CenterIDRef string

func (c CenterIDRef) GetCenterID() string { return string(c) }
