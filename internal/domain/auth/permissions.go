package auth

import "context"

const (
	RoleEmployee    = "Employee"
	RoleManager     = "Manager"
	RoleHR          = "HR"
	RoleFinance     = "Finance"
	RoleSystemAdmin = "SystemAdmin"
)

const (
	PermBenefitsRead     = "benefits.read"
	PermBenefitsWrite    = "benefits.write"
	PermBenefitsApprove  = "benefits.approve"
	PermBenefitsDisburse = "benefits.disburse"
	PermBenefitsConfig   = "benefits.config"
	PermSystemAdmin      = "admin.system"
)

var DefaultPermissions = []string{
	PermBenefitsRead,
	PermBenefitsWrite,
	PermBenefitsApprove,
	PermBenefitsDisburse,
	PermBenefitsConfig,
	PermSystemAdmin,
}

var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermBenefitsRead,
	},
	RoleManager: {
		PermBenefitsRead,
		PermBenefitsApprove,
	},
	RoleHR: {
		PermBenefitsRead,
		PermBenefitsWrite,
		PermBenefitsApprove,
		PermBenefitsConfig,
	},
	RoleFinance: {
		PermBenefitsRead,
		PermBenefitsDisburse,
	},
	RoleSystemAdmin: {
		PermSystemAdmin,
	},
}

// StaticPermissions resolves permissions from RolePermissions. System admins pass every check.
type StaticPermissions struct{}

func (StaticPermissions) HasPermission(_ context.Context, role, permission string) (bool, error) {
	perms, ok := RolePermissions[role]
	if !ok {
		return false, nil
	}
	for _, perm := range perms {
		if perm == permission || perm == PermSystemAdmin {
			return true, nil
		}
	}
	return false, nil
}
