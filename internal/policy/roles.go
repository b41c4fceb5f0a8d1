package policy

import (
	"github.com/diewo77/bloodboard/gate"
	"github.com/diewo77/bloodboard/internal/models"
)

// Resource types checked by the gate.
const (
	ResourceShortage = "shortage"
	ResourceCenter   = "center"
	ResourceAudit    = "audit"
	ResourceOfficial = "official"
)

// Roles grants permissions per membership role.
// Admins manage everything of their center; editors only maintain shortages.
var Roles = gate.Roles{
	string(models.RoleAdmin): {
		gate.NewPermission(ResourceShortage, gate.WildcardAll),
		gate.NewPermission(ResourceCenter, gate.ActionCreate),
		gate.NewPermission(ResourceCenter, gate.ActionUpdate),
		gate.NewPermission(ResourceCenter, gate.ActionDelete),
		gate.NewPermission(ResourceAudit, gate.ActionView),
		gate.NewPermission(ResourceAudit, gate.ActionExport),
		gate.NewPermission(ResourceOfficial, gate.ActionList),
	},
	string(models.RoleEditor): {
		gate.NewPermission(ResourceShortage, gate.ActionView),
		gate.NewPermission(ResourceShortage, gate.ActionCreate),
		gate.NewPermission(ResourceShortage, gate.ActionUpdate),
	},
}
