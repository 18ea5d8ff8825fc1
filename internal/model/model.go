// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is the user's role id as stored in users.role_id.
type Role int

const (
	RoleStudent    Role = 1
	RoleInstructor Role = 2
	RoleAssistant  Role = 3
	RoleManager    Role = 4
	RoleAdmin      Role = 5
)

// String returns the display name of the role.
func (r Role) String() string {
	switch r {
	case RoleStudent:
		return "Student"
	case RoleInstructor:
		return "Instructor"
	case RoleAssistant:
		return "Assistant"
	case RoleManager:
		return "Manager"
	case RoleAdmin:
		return "Admin"
	default:
		return "Unknown"
	}
}

// Tokens collects issued session credentials.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// User is the subset of the account record this service reads.
type User struct {
	ID        uuid.UUID
	Username  string
	FirstName string
	LastName  string
	Role      Role
	CreatedAt time.Time
}

// Standing is a user's relation to one course, as needed for entitlement decisions.
type Standing struct {
	Role     Role
	IsOwner  bool // courses.created_by == user
	Enrolled bool // active enrollment with status 'enrolled'
}

// VideoLink is the video attached to a module. URL holds at-rest ciphertext only.
type VideoLink struct {
	CiphertextURL   string
	Title           string
	DurationSeconds int
	Source          string
	AddedBy         uuid.UUID
	AddedAt         time.Time
}

// Module is a course module with its optional video link.
type Module struct {
	ID       uuid.UUID
	CourseID uuid.UUID
	Title    string
	Video    *VideoLink // nil when no video is attached
}

// HasVideo reports whether a video link is attached.
func (m *Module) HasVideo() bool { return m.Video != nil && m.Video.CiphertextURL != "" }

// Source describes the caller of an unauthenticated endpoint, for audit and throttling.
type Source struct {
	IP        string
	UserAgent string
}

// AbilityRule grants Action on Subject to the client UI.
type AbilityRule struct {
	Action  string
	Subject string
}

// Platform is the mobile platform a deep link targets.
type Platform int

const (
	PlatformAndroid Platform = iota
	PlatformIOS
)
