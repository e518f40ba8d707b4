package model

import "fmt"

type (
	BuildStatus string

	Role string
)

const (
	BuildQueued    BuildStatus = "queued"
	BuildBuilding  BuildStatus = "building"
	BuildSucceeded BuildStatus = "succeeded"
	BuildFailed    BuildStatus = "failed"
	BuildAborted   BuildStatus = "aborted"
)

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
)

// DefaultRole is granted to invited members.
const DefaultRole = RoleDeveloper

// IsFinal checks if the build can't change its status anymore.
func (s BuildStatus) IsFinal() bool {
	switch s {
	case BuildSucceeded, BuildFailed, BuildAborted:
		return true
	}

	return false
}

// Validate checks the status is known.
func (s BuildStatus) Validate() error {
	switch s {
	case BuildQueued, BuildBuilding, BuildSucceeded, BuildFailed, BuildAborted:
		return nil
	}

	return fmt.Errorf("buildStatus (%s): unknown", s)
}

// ParseRole parses and validates the member role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleOwner, RoleAdmin, RoleDeveloper:
		return r, nil
	}

	return "", fmt.Errorf("role (%s): unknown", s)
}
