package server

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/glog"
	"gopkg.in/yaml.v3"

	"github.com/itiky/resource-sync/model"
)

type (
	// Fixture is the initial server State.
	Fixture struct {
		Users []UserFixture `yaml:"users"`
		Apps  []AppFixture  `yaml:"apps"`
	}

	UserFixture struct {
		Id    string `yaml:"id"`
		Name  string `yaml:"name"`
		Email string `yaml:"email"`
	}

	AppFixture struct {
		Id   string      `yaml:"id"`
		Name string      `yaml:"name"`
		Team string      `yaml:"team"`
		Plan *model.Plan `yaml:"plan,omitempty"`
		// User id -> role
		Members map[string]string `yaml:"members"`
		Builds  []BuildFixture    `yaml:"builds"`
	}

	BuildFixture struct {
		Branch        string    `yaml:"branch"`
		Status        string    `yaml:"status"`
		CommitMessage string    `yaml:"commit_message"`
		TriggeredAt   time.Time `yaml:"triggered_at"`
		DurationMin   int       `yaml:"duration_min,omitempty"`
		Archived      bool      `yaml:"archived,omitempty"`
	}
)

// LoadFixture reads the YAML fixture file.
func LoadFixture(filePath string) (Fixture, error) {
	var f Fixture

	data, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		return f, fmt.Errorf("reading file (%s): %w", filePath, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("YAML unmarshal: %w", err)
	}
	glog.Infof("Fixture loaded: %d users, %d apps", len(f.Users), len(f.Apps))

	return f, nil
}

// GenAndSaveFixture generates a random fixture and saves it to the file system.
func GenAndSaveFixture(filePath string, appsCnt, buildsCnt int, seed int64) error {
	f, err := GenFixture(appsCnt, buildsCnt, rand.New(rand.NewSource(seed)), time.Now().UTC())
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("YAML marshal: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("write to file (%s): %w", filePath, err)
	}
	glog.Infof("Fixture saved: %s", filePath)

	return nil
}

// GenFixture builds a random fixture: appsCnt apps with buildsCnt builds each.
func GenFixture(appsCnt, buildsCnt int, rnd *rand.Rand, now time.Time) (Fixture, error) {
	if appsCnt <= 0 {
		return Fixture{}, fmt.Errorf("%s: must be GT 0", "appsCnt")
	}
	if buildsCnt < 0 {
		return Fixture{}, fmt.Errorf("%s: must be GTE 0", "buildsCnt")
	}

	var (
		branches = []string{"main", "develop", "feature/login", "fix/ci"}
		statuses = []model.BuildStatus{model.BuildSucceeded, model.BuildSucceeded, model.BuildFailed, model.BuildAborted}
		roles    = []model.Role{model.RoleAdmin, model.RoleDeveloper, model.RoleDeveloper}
		plans    = []string{"free", "pro", "enterprise"}
	)

	f := Fixture{}
	for i := 0; i < appsCnt*2; i++ {
		id := fmt.Sprintf("user-%d", i+1)
		f.Users = append(f.Users, UserFixture{
			Id:    id,
			Name:  fmt.Sprintf("User %d", i+1),
			Email: id + "@example.com",
		})
	}

	for i := 0; i < appsCnt; i++ {
		app := AppFixture{
			Id:   fmt.Sprintf("app-%d", i+1),
			Name: fmt.Sprintf("App %d", i+1),
			Team: fmt.Sprintf("team-%d", i%2+1),
			Plan: &model.Plan{
				Name:         plans[rnd.Intn(len(plans))],
				BuildMinutes: 1000 * (rnd.Intn(10) + 1),
				Concurrency:  rnd.Intn(4) + 1,
			},
			Members: map[string]string{
				f.Users[i].Id: string(model.RoleOwner),
			},
		}
		for j := appsCnt; j < len(f.Users); j++ {
			if rnd.Intn(2) == 0 {
				app.Members[f.Users[j].Id] = string(roles[rnd.Intn(len(roles))])
			}
		}

		for j := 0; j < buildsCnt; j++ {
			status := statuses[rnd.Intn(len(statuses))]
			// The latest builds are still running
			if j >= buildsCnt-2 {
				status = model.BuildQueued
			}
			app.Builds = append(app.Builds, BuildFixture{
				Branch:        branches[rnd.Intn(len(branches))],
				Status:        string(status),
				CommitMessage: fmt.Sprintf("change #%d", j+1),
				TriggeredAt:   now.Add(-time.Duration(buildsCnt-j) * time.Hour),
				DurationMin:   rnd.Intn(30) + 1,
			})
		}
		f.Apps = append(f.Apps, app)
	}

	return f, nil
}
