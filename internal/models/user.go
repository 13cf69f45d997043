package models

import "time"

type Role string

const (
	RoleSuperAdmin   Role = "SUPER_ADMIN"
	RoleCompanyAdmin Role = "COMPANY_ADMIN"
	RoleAgent        Role = "AGENT"
)

func (r Role) Valid() bool {
	return r == RoleSuperAdmin || r == RoleCompanyAdmin || r == RoleAgent
}

type User struct {
	ID        string     `json:"id" example:"6f1c2a9e-0c51-4f0b-9d43-8d2b7f0e1a11"`
	CompanyID string     `json:"companyId,omitempty"`
	Email     string     `json:"email" example:"agent@example.com"`
	FirstName string     `json:"firstName" example:"Ada"`
	LastName  string     `json:"lastName" example:"Okafor"`
	Role      Role       `json:"role" example:"AGENT"`
	Branches  []string   `json:"branches,omitempty"`
	IsActive  bool       `json:"isActive"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
