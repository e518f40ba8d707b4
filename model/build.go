package model

import (
	"fmt"
	"time"
)

type (
	// Build is a single CI pipeline run.
	Build struct {
		Id            string      `json:"id"`
		Number        int         `json:"number"`
		AppId         string      `json:"app_id"`
		Branch        string      `json:"branch"`
		Status        BuildStatus `json:"status"`
		CommitMessage string      `json:"commit_message"`
		TriggeredAt   time.Time   `json:"triggered_at"`
		FinishedAt    *time.Time  `json:"finished_at,omitempty"`
		// Archived builds are kept server-side but hidden from dashboards
		Archived bool `json:"archived,omitempty"`
	}
)

// String implements the stringer interface.
func (b Build) String() string {
	return fmt.Sprintf("#%d [%s] %s (%s)", b.Number, b.Branch, b.Status, b.Id)
}

// Advance moves the build to the next pipeline status.
// A queued build starts building, a building one finishes with succeeded / failed.
func (b *Build) Advance(fail bool, now time.Time) error {
	switch b.Status {
	case BuildQueued:
		b.Status = BuildBuilding
	case BuildBuilding:
		b.Status = BuildSucceeded
		if fail {
			b.Status = BuildFailed
		}
		b.FinishedAt = &now
	default:
		return fmt.Errorf("build (%s): status (%s): final", b.Id, b.Status)
	}

	return nil
}

// SetStatus applies a client requested status change.
// Only aborting a running build is allowed.
func (b *Build) SetStatus(status BuildStatus, now time.Time) error {
	if err := status.Validate(); err != nil {
		return err
	}
	if status == b.Status {
		return nil
	}
	if status != BuildAborted {
		return fmt.Errorf("status (%s): only %s can be requested", status, BuildAborted)
	}
	if b.Status.IsFinal() {
		return fmt.Errorf("build (%s): status (%s): final", b.Id, b.Status)
	}

	b.Status = status
	b.FinishedAt = &now

	return nil
}
