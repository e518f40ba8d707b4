package server

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/itiky/resource-sync/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
)

type (
	// State keeps the CI backend data.
	// Every mutation bumps the state version.
	State struct {
		sync.RWMutex
		apps    map[string]model.App
		users   map[string]model.Member
		plans   map[string]model.Plan
		builds  map[string]*model.Build
		members map[string]map[string]model.Role
		// Per app build counter
		numbers map[string]int
		version int
	}
)

// Version returns the current state version.
func (s *State) Version() int {
	s.RLock()
	defer s.RUnlock()

	return s.version
}

// Apps returns apps sorted by id.
func (s *State) Apps() []model.App {
	s.RLock()
	defer s.RUnlock()

	ids := maps.Keys(s.apps)
	slices.Sort(ids)

	list := make([]model.App, 0, len(ids))
	for _, id := range ids {
		list = append(list, s.apps[id])
	}

	return list
}

// Build returns a build by id.
func (s *State) Build(id string) (model.Build, error) {
	s.RLock()
	defer s.RUnlock()

	b, found := s.builds[id]
	if !found {
		return model.Build{}, fmt.Errorf("build (%s): %w", id, ErrNotFound)
	}

	return *b, nil
}

// Builds returns the query builds sorted by number (latest first).
func (s *State) Builds(query model.BuildQuery) ([]model.Build, error) {
	s.RLock()
	defer s.RUnlock()

	if _, found := s.apps[query.App]; !found {
		return nil, fmt.Errorf("app (%s): %w", query.App, ErrNotFound)
	}

	list := make([]model.Build, 0)
	for _, b := range s.builds {
		if query.Match(*b) {
			list = append(list, *b)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Number > list[j].Number
	})
	if query.Limit > 0 && len(list) > query.Limit {
		list = list[:query.Limit]
	}

	return list, nil
}

// Branches returns app branches sorted by name.
func (s *State) Branches(app string) ([]model.Branch, error) {
	builds, err := s.Builds(model.BuildQuery{App: app})
	if err != nil {
		return nil, err
	}

	branches := make(map[string]*model.Branch)
	// Latest build goes first
	for _, b := range builds {
		branch, found := branches[b.Branch]
		if !found {
			branch = &model.Branch{
				Name:        b.Branch,
				AppId:       app,
				LastBuildId: b.Id,
				LastStatus:  b.Status,
			}
			branches[b.Branch] = branch
		}
		branch.Builds++
	}

	names := maps.Keys(branches)
	slices.Sort(names)

	list := make([]model.Branch, 0, len(names))
	for _, name := range names {
		list = append(list, *branches[name])
	}

	return list, nil
}

// TriggerBuild queues a new build.
func (s *State) TriggerBuild(app string, req model.TriggerBuildRequest, now time.Time) (model.Build, error) {
	s.Lock()
	defer s.Unlock()

	b, err := s.triggerLocked(app, req, now)
	if err != nil {
		return model.Build{}, err
	}
	s.version++

	return b, nil
}

// TriggerBuilds queues new builds (all or nothing).
func (s *State) TriggerBuilds(app string, reqs []model.TriggerBuildRequest, now time.Time) ([]model.Build, error) {
	s.Lock()
	defer s.Unlock()

	for i, req := range reqs {
		if err := s.validateTriggerLocked(app, req); err != nil {
			return nil, fmt.Errorf("builds[%d]: %w", i, err)
		}
	}

	list := make([]model.Build, 0, len(reqs))
	for _, req := range reqs {
		b, _ := s.triggerLocked(app, req, now)
		list = append(list, b)
	}
	s.version++

	return list, nil
}

// SetBuildsStatus updates builds status (all or nothing).
func (s *State) SetBuildsStatus(ids []string, status model.BuildStatus, now time.Time) ([]model.Build, error) {
	s.Lock()
	defer s.Unlock()

	updated := make([]model.Build, 0, len(ids))
	for _, id := range ids {
		b, found := s.builds[id]
		if !found {
			return nil, fmt.Errorf("build (%s): %w", id, ErrNotFound)
		}
		upd := *b
		if err := upd.SetStatus(status, now); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		updated = append(updated, upd)
	}

	for i := range updated {
		*s.builds[updated[i].Id] = updated[i]
	}
	s.version++

	return updated, nil
}

// DeleteBuilds deletes builds (all or nothing).
func (s *State) DeleteBuilds(ids ...string) error {
	s.Lock()
	defer s.Unlock()

	for _, id := range ids {
		if _, found := s.builds[id]; !found {
			return fmt.Errorf("build (%s): %w", id, ErrNotFound)
		}
	}
	for _, id := range ids {
		delete(s.builds, id)
	}
	s.version++

	return nil
}

// Members returns app members sorted by user id.
func (s *State) Members(app string) ([]model.Member, error) {
	s.RLock()
	defer s.RUnlock()

	if _, found := s.apps[app]; !found {
		return nil, fmt.Errorf("app (%s): %w", app, ErrNotFound)
	}

	users := maps.Keys(s.members[app])
	slices.Sort(users)

	list := make([]model.Member, 0, len(users))
	for _, user := range users {
		m := s.users[user]
		m.Role = s.members[app][user]
		list = append(list, m)
	}

	return list, nil
}

// SetMember adds a member (empty role: the default one) or updates the member role.
// mustExist rejects adding a new member.
func (s *State) SetMember(app, user string, role model.Role, mustExist bool) (model.MemberResponse, error) {
	s.Lock()
	defer s.Unlock()

	if _, found := s.apps[app]; !found {
		return model.MemberResponse{}, fmt.Errorf("app (%s): %w", app, ErrNotFound)
	}
	if _, found := s.users[user]; !found {
		return model.MemberResponse{}, fmt.Errorf("user (%s): %w", user, ErrNotFound)
	}

	current, isMember := s.members[app][user]
	if mustExist && !isMember {
		return model.MemberResponse{}, fmt.Errorf("member (%s): %w", user, ErrNotFound)
	}
	switch {
	case role != "":
		if _, err := model.ParseRole(string(role)); err != nil {
			return model.MemberResponse{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	case isMember:
		role = current
	default:
		role = model.DefaultRole
	}

	if s.members[app] == nil {
		s.members[app] = make(map[string]model.Role)
	}
	s.members[app][user] = role
	s.version++

	return model.MemberResponse{AppId: app, UserId: user, Role: role}, nil
}

// RemoveMember removes a member.
func (s *State) RemoveMember(app, user string) error {
	s.Lock()
	defer s.Unlock()

	if _, found := s.members[app][user]; !found {
		return fmt.Errorf("member (%s/%s): %w", app, user, ErrNotFound)
	}
	delete(s.members[app], user)
	s.version++

	return nil
}

// Plan returns the app billing plan.
func (s *State) Plan(app string) (model.Plan, error) {
	s.RLock()
	defer s.RUnlock()

	if _, found := s.apps[app]; !found {
		return model.Plan{}, fmt.Errorf("app (%s): %w", app, ErrNotFound)
	}

	return s.plans[app], nil
}

// Advance moves every running build one pipeline step forward and returns the number of builds updated.
// A finished build fails with the failRate probability and spends plan minutes.
func (s *State) Advance(now time.Time, failRate float64, rnd *rand.Rand) int {
	s.Lock()
	defer s.Unlock()

	ids := maps.Keys(s.builds)
	slices.Sort(ids)

	cnt := 0
	for _, id := range ids {
		b := s.builds[id]
		if b.Status.IsFinal() {
			continue
		}
		if err := b.Advance(rnd.Float64() < failRate, now); err != nil {
			continue
		}
		if b.FinishedAt != nil {
			plan := s.plans[b.AppId]
			plan.UsedMinutes += int(b.FinishedAt.Sub(b.TriggeredAt)/time.Minute) + 1
			s.plans[b.AppId] = plan
		}
		cnt++
	}
	if cnt > 0 {
		s.version++
	}

	return cnt
}

func (s *State) validateTriggerLocked(app string, req model.TriggerBuildRequest) error {
	if _, found := s.apps[app]; !found {
		return fmt.Errorf("app (%s): %w", app, ErrNotFound)
	}
	if req.Branch == "" {
		return fmt.Errorf("%w: %s: empty", ErrInvalid, "branch")
	}

	return nil
}

func (s *State) triggerLocked(app string, req model.TriggerBuildRequest, now time.Time) (model.Build, error) {
	if err := s.validateTriggerLocked(app, req); err != nil {
		return model.Build{}, err
	}

	s.numbers[app]++
	b := &model.Build{
		Id:            ulid.Make().String(),
		Number:        s.numbers[app],
		AppId:         app,
		Branch:        req.Branch,
		Status:        model.BuildQueued,
		CommitMessage: req.CommitMessage,
		TriggeredAt:   now,
	}
	s.builds[b.Id] = b

	return *b, nil
}

// NewState creates a new State object from the fixture.
func NewState(f Fixture) (*State, error) {
	s := &State{
		apps:    make(map[string]model.App),
		users:   make(map[string]model.Member),
		plans:   make(map[string]model.Plan),
		builds:  make(map[string]*model.Build),
		members: make(map[string]map[string]model.Role),
		numbers: make(map[string]int),
	}

	for i, u := range f.Users {
		if u.Id == "" {
			return nil, fmt.Errorf("users[%d]: %s: empty", i, "id")
		}
		s.users[u.Id] = model.Member{UserId: u.Id, Name: u.Name, Email: u.Email}
	}

	for i, a := range f.Apps {
		if a.Id == "" {
			return nil, fmt.Errorf("apps[%d]: %s: empty", i, "id")
		}
		if _, found := s.apps[a.Id]; found {
			return nil, fmt.Errorf("apps[%d] (%s): duplicate", i, a.Id)
		}
		s.apps[a.Id] = model.App{Id: a.Id, Name: a.Name, Team: a.Team}

		if a.Plan != nil {
			plan := *a.Plan
			plan.AppId = a.Id
			s.plans[a.Id] = plan
		}

		s.members[a.Id] = make(map[string]model.Role)
		for user, role := range a.Members {
			if _, found := s.users[user]; !found {
				return nil, fmt.Errorf("apps[%d] (%s): members: user (%s): %w", i, a.Id, user, ErrNotFound)
			}
			r, err := model.ParseRole(role)
			if err != nil {
				return nil, fmt.Errorf("apps[%d] (%s): members: %w", i, a.Id, err)
			}
			s.members[a.Id][user] = r
		}

		for j, fb := range a.Builds {
			status := model.BuildStatus(fb.Status)
			if status == "" {
				status = model.BuildQueued
			}
			if err := status.Validate(); err != nil {
				return nil, fmt.Errorf("apps[%d] (%s): builds[%d]: %w", i, a.Id, j, err)
			}

			b, err := s.triggerLocked(a.Id, model.TriggerBuildRequest{Branch: fb.Branch, CommitMessage: fb.CommitMessage}, fb.TriggeredAt)
			if err != nil {
				return nil, fmt.Errorf("apps[%d] (%s): builds[%d]: %w", i, a.Id, j, err)
			}
			stored := s.builds[b.Id]
			stored.Status, stored.Archived = status, fb.Archived
			if status.IsFinal() {
				finishedAt := fb.TriggeredAt.Add(time.Duration(fb.DurationMin) * time.Minute)
				stored.FinishedAt = &finishedAt
			}
		}
	}

	return s, nil
}
