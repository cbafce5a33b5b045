package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"coursekit/internal/domain"
)

func TestGetCourse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/courses/42" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header = %q", got)
		}
		json.NewEncoder(w).Encode(domain.Course{ID: 42, Name: "Biology"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	course, err := c.GetCourse(context.Background(), 42)
	if err != nil {
		t.Fatalf("get course: %v", err)
	}
	if course.ID != 42 || course.Name != "Biology" {
		t.Fatalf("course = %+v", course)
	}
}

func TestAPIErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":[{"message":"insufficient permissions"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	_, err := c.GetCourse(context.Background(), 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
}

func TestGetUserByLoginNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	_, err := c.GetUserByLogin(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetUserByLoginEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/users/sis_login_id:alice" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(domain.User{ID: 7, SISLoginID: "alice"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	user, err := c.GetUserByLogin(context.Background(), "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.ID != 7 {
		t.Fatalf("user = %+v", user)
	}
}

func TestCreateAssignmentBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/courses/5/assignments" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Assignment map[string]any `json:"assignment"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Assignment["name"] != "Grading1" {
			t.Errorf("assignment name = %v", body.Assignment["name"])
		}
		json.NewEncoder(w).Encode(domain.Assignment{ID: 9, Name: "Grading1"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	a, err := c.CreateAssignment(context.Background(), 5, map[string]any{"name": "Grading1", "points_possible": 10})
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	if a.ID != 9 {
		t.Fatalf("assignment = %+v", a)
	}
}

func TestListAssignmentsPagination(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/courses/1/assignments?page=2>; rel="next", <%s/api/v1/courses/1/assignments?page=1>; rel="current"`, srv.URL, srv.URL))
			json.NewEncoder(w).Encode([]domain.Assignment{{ID: 1, Name: "A1"}})
		case "2":
			w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/courses/1/assignments?page=2>; rel="current"`, srv.URL))
			json.NewEncoder(w).Encode([]domain.Assignment{{ID: 2, Name: "A2"}})
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	assignments, err := c.ListAssignments(context.Background(), 1)
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	if len(assignments) != 2 || assignments[0].Name != "A1" || assignments[1].Name != "A2" {
		t.Fatalf("assignments = %+v", assignments)
	}
}

func TestDeactivateEnrollmentTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/v1/courses/3/enrollments/12" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("task"); got != "delete" {
			t.Errorf("task = %q", got)
		}
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	enr := domain.Enrollment{ID: 12, CourseID: 3}
	if err := c.DeactivateEnrollment(context.Background(), enr, "delete"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
}

func TestNextLink(t *testing.T) {
	header := `<https://canvas.example.edu/api/v1/courses/1/assignments?page=2&per_page=100>; rel="next", <https://canvas.example.edu/api/v1/courses/1/assignments?page=1&per_page=100>; rel="first"`
	if got := nextLink(header); got != "https://canvas.example.edu/api/v1/courses/1/assignments?page=2&per_page=100" {
		t.Fatalf("nextLink = %q", got)
	}
	if got := nextLink(`<https://x>; rel="last"`); got != "" {
		t.Fatalf("nextLink on last page = %q", got)
	}
	if got := nextLink(""); got != "" {
		t.Fatalf("nextLink on empty header = %q", got)
	}
}
