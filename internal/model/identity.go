package model

import "fmt"

// UserType identifies which school directory a user id belongs to
type UserType string

const (
	UserTypeStudent UserType = "student"
	UserTypeTeacher UserType = "teacher"
	UserTypeParent  UserType = "parent"
	UserTypeStaff   UserType = "staff"
)

// Valid reports whether t is a known user type
func (t UserType) Valid() bool {
	switch t {
	case UserTypeStudent, UserTypeTeacher, UserTypeParent, UserTypeStaff:
		return true
	}
	return false
}

// UserRef identifies a user across the school directories.
// User ids are only unique within a user type.
type UserRef struct {
	UserID   int64    `json:"user_id" binding:"required,gt=0"`
	UserType UserType `json:"user_type" binding:"required,oneof=student teacher parent staff"`
}

func (u UserRef) String() string {
	return fmt.Sprintf("%s:%d", u.UserType, u.UserID)
}

// Role is the caller's school-wide role, as issued by the identity provider
type Role string

const (
	RoleUser  Role = "user"
	RoleStaff Role = "staff"
)

// Identity is the resolved caller of a request. It is passed explicitly
// into every service call.
type Identity struct {
	UserID   int64
	UserType UserType
	Role     Role
}

// Ref returns the caller as a UserRef
func (i Identity) Ref() UserRef {
	return UserRef{UserID: i.UserID, UserType: i.UserType}
}
