package model

type (
	App struct {
		Id   string `json:"id"`
		Name string `json:"name"`
		Team string `json:"team"`
	}

	Branch struct {
		Name  string `json:"name"`
		AppId string `json:"app_id"`
		// The latest build id (empty if none)
		LastBuildId string      `json:"last_build_id,omitempty"`
		LastStatus  BuildStatus `json:"last_status,omitempty"`
		Builds      int         `json:"builds"`
	}

	// Member is an app member: the user profile alongside the user role within the app.
	Member struct {
		UserId string `json:"user_id"`
		Name   string `json:"name"`
		Email  string `json:"email"`
		Role   Role   `json:"role"`
	}

	// Plan is the app billing summary.
	Plan struct {
		AppId        string `json:"app_id" yaml:"-"`
		Name         string `json:"name" yaml:"name"`
		BuildMinutes int    `json:"build_minutes" yaml:"build_minutes"`
		UsedMinutes  int    `json:"used_minutes" yaml:"used_minutes"`
		Concurrency  int    `json:"concurrency" yaml:"concurrency"`
	}
)

// MinutesLeft returns the number of build minutes left for the billing period.
func (p Plan) MinutesLeft() int {
	if p.UsedMinutes >= p.BuildMinutes {
		return 0
	}

	return p.BuildMinutes - p.UsedMinutes
}
