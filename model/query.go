package model

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type (
	// BuildQuery selects app builds.
	BuildQuery struct {
		App    string
		Branch string
		Status BuildStatus
		// 0: no limit
		Limit int
	}

	// AppQuery selects app scoped resources (branches, members).
	AppQuery struct {
		App string
	}
)

// String implements the stringer interface (used as a collection request key).
func (q BuildQuery) String() string {
	str := strings.Builder{}
	str.WriteString(q.App)
	if v := q.Values().Encode(); v != "" {
		str.WriteString("?")
		str.WriteString(v)
	}

	return str.String()
}

// Values returns the URL query parameters (App is a path parameter).
func (q BuildQuery) Values() url.Values {
	v := url.Values{}
	if q.Branch != "" {
		v.Set("branch", q.Branch)
	}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}

	return v
}

// ParseBuildQuery parses URL query parameters.
func ParseBuildQuery(app string, v url.Values) (BuildQuery, error) {
	q := BuildQuery{
		App:    app,
		Branch: v.Get("branch"),
		Status: BuildStatus(v.Get("status")),
	}
	if q.Status != "" {
		if err := q.Status.Validate(); err != nil {
			return BuildQuery{}, err
		}
	}
	if limit := v.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return BuildQuery{}, fmt.Errorf("%s: invalid: %w", "limit", err)
		}
		if n < 0 {
			return BuildQuery{}, fmt.Errorf("%s: must be GTE 0", "limit")
		}
		q.Limit = n
	}

	return q, nil
}

// Match checks if the build passes the query filters.
func (q BuildQuery) Match(b Build) bool {
	if q.App != "" && b.AppId != q.App {
		return false
	}
	if q.Branch != "" && b.Branch != q.Branch {
		return false
	}
	if q.Status != "" && b.Status != q.Status {
		return false
	}

	return true
}

// String implements the stringer interface.
func (q AppQuery) String() string {
	return q.App
}
