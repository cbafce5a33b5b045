// Package canvas is a minimal Canvas LMS REST client covering the calls the
// reconciler needs. It is not a general SDK: list endpoints are fetched as
// full snapshots and every mutation maps 1:1 to one HTTP request.
package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coursekit/internal/domain"
)

// ErrNotFound marks lookups whose subject legitimately does not exist
// (unknown SIS login, deleted course). Callers treat it as an expected
// condition, not a service failure.
var ErrNotFound = errors.New("canvas: not found")

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("canvas api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Client talks to one Canvas instance.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration

	// PerPage bounds list requests; Canvas caps it at 100.
	PerPage int
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		Timeout: 30 * time.Second,
		PerPage: 100,
	}
}

// GetCourse fetches a course by Canvas id.
func (c *Client) GetCourse(ctx context.Context, id int) (domain.Course, error) {
	var course domain.Course
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("courses/%d", id), nil, &course)
	return course, err
}

// ListSections returns every section of a course.
func (c *Client) ListSections(ctx context.Context, courseID int) ([]domain.Section, error) {
	var sections []domain.Section
	err := c.doPaged(ctx, fmt.Sprintf("courses/%d/sections", courseID), func(body io.Reader) error {
		var page []domain.Section
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return err
		}
		sections = append(sections, page...)
		return nil
	})
	return sections, err
}

// CreateSection creates a named section in a course.
func (c *Client) CreateSection(ctx context.Context, courseID int, name string) (domain.Section, error) {
	body := map[string]any{
		"course_section": map[string]any{"name": name},
	}
	var section domain.Section
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("courses/%d/sections", courseID), body, &section)
	return section, err
}

// DeleteSection deletes a section by id.
func (c *Client) DeleteSection(ctx context.Context, sectionID int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("sections/%d", sectionID), nil, nil)
}

// ListEnrollments returns every enrollment in a section.
func (c *Client) ListEnrollments(ctx context.Context, sectionID int) ([]domain.Enrollment, error) {
	var enrollments []domain.Enrollment
	err := c.doPaged(ctx, fmt.Sprintf("sections/%d/enrollments", sectionID), func(body io.Reader) error {
		var page []domain.Enrollment
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return err
		}
		enrollments = append(enrollments, page...)
		return nil
	})
	return enrollments, err
}

// DeactivateEnrollment concludes an enrollment with the given task
// ("delete", "deactivate", or "conclude").
func (c *Client) DeactivateEnrollment(ctx context.Context, enr domain.Enrollment, task string) error {
	endpoint := fmt.Sprintf("courses/%d/enrollments/%d?task=%s", enr.CourseID, enr.ID, url.QueryEscape(task))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// EnrollUser enrolls a user into a section with the given role and state.
func (c *Client) EnrollUser(ctx context.Context, sectionID, userID int, role, state string) (domain.Enrollment, error) {
	body := map[string]any{
		"enrollment": map[string]any{
			"user_id":          userID,
			"type":             role,
			"enrollment_state": state,
		},
	}
	var enrollment domain.Enrollment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("sections/%d/enrollments", sectionID), body, &enrollment)
	return enrollment, err
}

// GetUserByLogin resolves a user by SIS login id. An unknown login yields
// ErrNotFound rather than an APIError.
func (c *Client) GetUserByLogin(ctx context.Context, sisLoginID string) (domain.User, error) {
	var user domain.User
	endpoint := fmt.Sprintf("users/sis_login_id:%s", url.PathEscape(sisLoginID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &user)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return domain.User{}, fmt.Errorf("user %s: %w", sisLoginID, ErrNotFound)
	}
	return user, err
}

// ListAssignments returns every assignment of a course.
func (c *Client) ListAssignments(ctx context.Context, courseID int) ([]domain.Assignment, error) {
	var assignments []domain.Assignment
	err := c.doPaged(ctx, fmt.Sprintf("courses/%d/assignments", courseID), func(body io.Reader) error {
		var page []domain.Assignment
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return err
		}
		assignments = append(assignments, page...)
		return nil
	})
	return assignments, err
}

// CreateAssignment creates an assignment from an opaque parameter bag. The
// bag is passed through verbatim under the "assignment" key; callers set
// "name" inside it.
func (c *Client) CreateAssignment(ctx context.Context, courseID int, params map[string]any) (domain.Assignment, error) {
	body := map[string]any{"assignment": params}
	var assignment domain.Assignment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("courses/%d/assignments", courseID), body, &assignment)
	return assignment, err
}

// DeleteAssignment deletes an assignment by id.
func (c *Client) DeleteAssignment(ctx context.Context, courseID, assignmentID int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("courses/%d/assignments/%d", courseID, assignmentID), nil, nil)
}

// CreateRubricAssociation links a rubric to an assignment for grading.
func (c *Client) CreateRubricAssociation(ctx context.Context, courseID, rubricID, assignmentID int) error {
	body := map[string]any{
		"rubric_association": map[string]any{
			"rubric_id":        rubricID,
			"association_id":   assignmentID,
			"association_type": "Assignment",
			"use_for_grading":  true,
			"purpose":          "grading",
			"bookmarked":       false,
		},
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("courses/%d/rubric_associations", courseID), body, nil)
}

// SubmitAssignment submits on behalf of the user named in params["user_id"].
func (c *Client) SubmitAssignment(ctx context.Context, courseID, assignmentID int, params map[string]any) error {
	body := map[string]any{"submission": params}
	endpoint := fmt.Sprintf("courses/%d/assignments/%d/submissions", courseID, assignmentID)
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/api/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// doPaged fetches a list endpoint page by page, following the Link header's
// rel="next" URL until exhausted.
func (c *Client) doPaged(ctx context.Context, endpoint string, decode func(io.Reader) error) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	perPage := c.PerPage
	if perPage <= 0 {
		perPage = 100
	}
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	next := fmt.Sprintf("%s/api/v1/%s%sper_page=%d", c.base(), strings.TrimLeft(endpoint, "/"), sep, perPage)
	for next != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.Token)
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		}
		if err := decode(resp.Body); err != nil {
			resp.Body.Close()
			return err
		}
		resp.Body.Close()
		next = nextLink(resp.Header.Get("Link"))
	}
	return nil
}

// nextLink extracts the rel="next" URL from a Canvas Link header, or ""
// when the last page has been reached.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		section := strings.Split(part, ";")
		if len(section) < 2 {
			continue
		}
		if strings.TrimSpace(section[1]) != `rel="next"` {
			continue
		}
		u := strings.TrimSpace(section[0])
		u = strings.TrimPrefix(u, "<")
		u = strings.TrimSuffix(u, ">")
		return u
	}
	return ""
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
