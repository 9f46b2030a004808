package models

import "time"

// UserRole is a staff role carried in access tokens.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleTeacher    UserRole = "TEACHER"
	RoleSecurity   UserRole = "SECURITY" // gate staff
)

// Permission names one guarded attendance capability.
type Permission string

const (
	PermissionRecordGate       Permission = "attendance:gate"
	PermissionRecordAbsence    Permission = "attendance:absence"
	PermissionExportReports    Permission = "reports:export"
	PermissionManageDevices    Permission = "devices:manage"
	PermissionRunPredictions   Permission = "predictions:run"
	PermissionBatchPredictions Permission = "predictions:batch"
	PermissionGenerateSeating  Permission = "seating:generate"
)

var allPermissions = []Permission{
	PermissionRecordGate,
	PermissionRecordAbsence,
	PermissionExportReports,
	PermissionManageDevices,
	PermissionRunPredictions,
	PermissionBatchPredictions,
	PermissionGenerateSeating,
}

var rolePermissions = map[UserRole][]Permission{
	RoleAdmin: allPermissions,
	RoleTeacher: {
		PermissionRecordGate,
		PermissionRecordAbsence,
		PermissionExportReports,
		PermissionRunPredictions,
		PermissionGenerateSeating,
	},
	RoleSecurity: {PermissionRecordGate},
}

// Permissions lists what the role may do. SUPERADMIN holds every permission.
func (r UserRole) Permissions() []Permission {
	if r == RoleSuperAdmin {
		return append([]Permission(nil), allPermissions...)
	}
	return append([]Permission(nil), rolePermissions[r]...)
}

// Can reports whether the role holds p.
func (r UserRole) Can(p Permission) bool {
	if r == RoleSuperAdmin {
		return true
	}
	for _, granted := range rolePermissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}

// User is a staff account. Students never log in.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Info projects the account onto its public profile.
func (u *User) Info() UserInfo {
	return UserInfo{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		Role:        u.Role,
		Permissions: u.Role.Permissions(),
		LastLogin:   u.LastLogin,
	}
}
