package model

// Build requests.
type (
	TriggerBuildRequest struct {
		Branch        string `json:"branch"`
		CommitMessage string `json:"commit_message"`
	}

	TriggerBuildsRequest struct {
		Builds []TriggerBuildRequest `json:"builds"`
	}

	PatchBuildRequest struct {
		Status BuildStatus `json:"status"`
	}

	PatchBuildsRequest struct {
		Ids    []string    `json:"ids"`
		Status BuildStatus `json:"status"`
	}
)

// Member requests.
type (
	MemberRequest struct {
		Role Role `json:"role,omitempty"`
	}

	// MemberResponse is the membership edge metadata.
	MemberResponse struct {
		AppId  string `json:"app_id"`
		UserId string `json:"user_id"`
		Role   Role   `json:"role"`
	}
)

// ErrorResponse is a non-2xx response body.
type ErrorResponse struct {
	Error string `json:"error"`
}
