package model

import "time"

// Roles carried in the "role" claim of access tokens.
const (
    RoleCustomer = "CUSTOMER"
    RoleOwner    = "OWNER"
    RoleAdmin    = "ADMIN"
)

// User represents an application user record as stored in the
// `users` table.  The booking service only reads it, to resolve a
// caller's email when the access token does not carry one.
//
// Fields:
//  ID       – primary key identifier of the user.
//  Email    – unique email address.
//  Role     – CUSTOMER, OWNER or ADMIN.
//  IsActive – whether the account is active.
type User struct {
    ID        uint64    // users.id
    Email     string    // users.email
    Role      string    // users.role
    IsActive  bool      // users.is_active
    CreatedAt time.Time // users.created_at
    UpdatedAt time.Time // users.updated_at
}

// Caller is the verified identity attached to a request by the JWT
// middleware.  The booking engine trusts it as-is.
type Caller struct {
    ID    uint64
    Email string
    Role  string
}

// IsReviewerFor reports whether the caller may review or cancel bookings
// of an event organised by organizerID.
func (c Caller) IsReviewerFor(organizerID uint64) bool {
    if c.Role == RoleAdmin {
        return true
    }
    return c.Role == RoleOwner && c.ID != 0 && c.ID == organizerID
}
