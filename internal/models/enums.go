package models

// BloodType is one of the eight ABO/Rh combinations.
type BloodType string

const (
	BloodTypeOPos  BloodType = "O+"
	BloodTypeONeg  BloodType = "O-"
	BloodTypeAPos  BloodType = "A+"
	BloodTypeANeg  BloodType = "A-"
	BloodTypeBPos  BloodType = "B+"
	BloodTypeBNeg  BloodType = "B-"
	BloodTypeABPos BloodType = "AB+"
	BloodTypeABNeg BloodType = "AB-"
)

// BloodTypes lists every blood type in display order.
var BloodTypes = []BloodType{
	BloodTypeOPos, BloodTypeONeg,
	BloodTypeAPos, BloodTypeANeg,
	BloodTypeBPos, BloodTypeBNeg,
	BloodTypeABPos, BloodTypeABNeg,
}

func (b BloodType) Valid() bool {
	for _, t := range BloodTypes {
		if t == b {
			return true
		}
	}
	return false
}

// ShortageStatus is the severity of a shortage.
type ShortageStatus string

const (
	StatusCritical ShortageStatus = "critical"
	StatusLow      ShortageStatus = "low"
	StatusNormal   ShortageStatus = "normal"
)

var Statuses = []ShortageStatus{StatusCritical, StatusLow, StatusNormal}

func (s ShortageStatus) Valid() bool {
	return s == StatusCritical || s == StatusLow || s == StatusNormal
}

// Role is the membership role of a user within a center.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleEditor }

// AuditAction is the kind of mutation recorded in the audit log.
type AuditAction string

const (
	AuditCreate AuditAction = "create"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
)

func (a AuditAction) Valid() bool {
	return a == AuditCreate || a == AuditUpdate || a == AuditDelete
}

// AccountType is the kind of account chosen at signup.
type AccountType string

const (
	AccountBloodBank AccountType = "blood_bank"
	AccountOfficial  AccountType = "official"
)

// MembershipRole returns the role granted to a new account of this type.
func (a AccountType) MembershipRole() Role {
	if a == AccountBloodBank {
		return RoleAdmin
	}
	return RoleEditor
}
