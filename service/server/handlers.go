package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"

	"github.com/itiky/resource-sync/model"
)

func (s *CIService) listApps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Apps())
}

func (s *CIService) listBuilds(w http.ResponseWriter, r *http.Request) {
	query, err := model.ParseBuildQuery(chi.URLParam(r, "app"), r.URL.Query())
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", ErrInvalid, err))
		return
	}

	list, err := s.state.Builds(query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *CIService) listBranchBuilds(w http.ResponseWriter, r *http.Request) {
	query, err := model.ParseBuildQuery(chi.URLParam(r, "app"), r.URL.Query())
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", ErrInvalid, err))
		return
	}
	if query.Branch, err = url.PathUnescape(chi.URLParam(r, "branch")); err != nil {
		writeError(w, fmt.Errorf("%w: %s: %v", ErrInvalid, "branch", err))
		return
	}

	list, err := s.state.Builds(query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *CIService) getBuild(w http.ResponseWriter, r *http.Request) {
	b, err := s.state.Build(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *CIService) triggerBuild(w http.ResponseWriter, r *http.Request) {
	var req model.TriggerBuildRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	b, err := s.state.TriggerBuild(chi.URLParam(r, "app"), req, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *CIService) triggerBuilds(w http.ResponseWriter, r *http.Request) {
	var req model.TriggerBuildsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	list, err := s.state.TriggerBuilds(chi.URLParam(r, "app"), req.Builds, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

func (s *CIService) patchBuild(w http.ResponseWriter, r *http.Request) {
	var req model.PatchBuildRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	list, err := s.state.SetBuildsStatus([]string{chi.URLParam(r, "id")}, req.Status, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list[0])
}

func (s *CIService) patchBuilds(w http.ResponseWriter, r *http.Request) {
	var req model.PatchBuildsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	list, err := s.state.SetBuildsStatus(req.Ids, req.Status, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *CIService) deleteBuild(w http.ResponseWriter, r *http.Request) {
	if err := s.state.DeleteBuilds(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *CIService) deleteBuilds(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query()["id"]
	if len(ids) == 0 {
		writeError(w, fmt.Errorf("%w: %s: empty", ErrInvalid, "id"))
		return
	}

	if err := s.state.DeleteBuilds(ids...); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *CIService) listBranches(w http.ResponseWriter, r *http.Request) {
	list, err := s.state.Branches(chi.URLParam(r, "app"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *CIService) listMembers(w http.ResponseWriter, r *http.Request) {
	list, err := s.state.Members(chi.URLParam(r, "app"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *CIService) putMember(w http.ResponseWriter, r *http.Request) {
	s.setMember(w, r, false)
}

func (s *CIService) patchMember(w http.ResponseWriter, r *http.Request) {
	s.setMember(w, r, true)
}

func (s *CIService) setMember(w http.ResponseWriter, r *http.Request, mustExist bool) {
	var req model.MemberRequest
	if r.ContentLength != 0 {
		if err := readJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	if mustExist && req.Role == "" {
		writeError(w, fmt.Errorf("%w: %s: empty", ErrInvalid, "role"))
		return
	}

	res, err := s.state.SetMember(chi.URLParam(r, "app"), chi.URLParam(r, "user"), req.Role, mustExist)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *CIService) deleteMember(w http.ResponseWriter, r *http.Request) {
	if err := s.state.RemoveMember(chi.URLParam(r, "app"), chi.URLParam(r, "user")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *CIService) getPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.state.Plan(chi.URLParam(r, "app"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func readJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: JSON unmarshal: %v", ErrInvalid, err)
	}

	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Warningf("CIService: JSON marshal: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ErrInvalid):
		code = http.StatusBadRequest
	}

	writeJSON(w, code, model.ErrorResponse{Error: err.Error()})
}
