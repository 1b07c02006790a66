package domain

import "time"

// Tenant represents a restaurant on the platform. Menu, category and
// payment records hang off this entity in the CRUD layer; the auth core
// only needs identity and status.
type Tenant struct {
	ID        int64
	Name      string
	Slug      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantStatusActive marks a tenant that may serve logins.
const TenantStatusActive = "ACTIVE"
