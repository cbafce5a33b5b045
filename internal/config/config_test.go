package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"coursekit/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestCoursesDefaults(t *testing.T) {
	courses, err := config.CoursesFromYAML([]byte(`
- canvas_id: 101
  name: Intro to Grading
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c := courses[0]
	if c.NumAssignments != 1 {
		t.Errorf("NumAssignments = %d, want 1", c.NumAssignments)
	}
	if c.TestStudentSection != "Test Students" {
		t.Errorf("TestStudentSection = %q", c.TestStudentSection)
	}
	if c.GraderSection != "Graders" {
		t.Errorf("GraderSection = %q", c.GraderSection)
	}
}

func TestCoursesExplicitValues(t *testing.T) {
	courses, err := config.CoursesFromYAML([]byte(`
- canvas_id: 101
  name: Intro
  num_create_assignments: 5
  test_student_section_name: Sandbox
  grader_section_name: TAs
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c := courses[0]
	if c.NumAssignments != 5 || c.TestStudentSection != "Sandbox" || c.GraderSection != "TAs" {
		t.Fatalf("unexpected course: %+v", c)
	}
}

func TestCoursesMissingID(t *testing.T) {
	_, err := config.CoursesFromYAML([]byte("- name: No ID\n"))
	if err == nil {
		t.Fatal("expected validation error for missing canvas_id")
	}
}

func TestCoursesSectionNameClash(t *testing.T) {
	_, err := config.CoursesFromYAML([]byte(`
- canvas_id: 1
  name: Clash
  test_student_section_name: Same
  grader_section_name: Same
`))
	if err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected section clash error, got %v", err)
	}
}

func TestTemplatesDefaultsAndParams(t *testing.T) {
	templates, err := config.TemplatesFromYAML([]byte(`
- params:
    points_possible: 10
    published: true
- name: Essay
  rubric_id: 42
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if templates[0].Name != "Assignment" {
		t.Errorf("default name = %q, want Assignment", templates[0].Name)
	}
	if templates[0].Params["points_possible"] != 10 {
		t.Errorf("params not passed through: %+v", templates[0].Params)
	}
	if templates[1].RubricID != 42 {
		t.Errorf("rubric id = %d, want 42", templates[1].RubricID)
	}
}

func TestTemplatesNameCollision(t *testing.T) {
	_, err := config.TemplatesFromYAML([]byte(`
- name: Grading
- name: Grading
`))
	if err == nil || !strings.Contains(err.Error(), "collides") {
		t.Fatalf("expected collision error, got %v", err)
	}
}

func TestSubmissionsRequireLogin(t *testing.T) {
	_, err := config.SubmissionsFromYAML([]byte(`
- submission_params:
    body: hello
`))
	if err == nil {
		t.Fatal("expected validation error for missing sis_login_id")
	}
}

func TestSubmissionsNilParams(t *testing.T) {
	specs, err := config.SubmissionsFromYAML([]byte("- sis_login_id: alice\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if specs[0].Params == nil {
		t.Fatal("Params must be initialized for user_id injection")
	}
}

func TestStoreMissingFile(t *testing.T) {
	dir := t.TempDir()
	s := config.Store{
		CoursesPath:     filepath.Join(dir, "missing.yml"),
		AssignmentsPath: filepath.Join(dir, "assignments.yml"),
	}
	if _, err := s.LoadCourses(); err == nil {
		t.Fatal("expected error for missing courses file")
	}
}

func TestStoreLoad(t *testing.T) {
	dir := t.TempDir()
	s := config.Store{
		CoursesPath:     writeFile(t, dir, "courses.yml", "- canvas_id: 1\n  name: C\n"),
		AssignmentsPath: writeFile(t, dir, "assignments.yml", "- name: A\n"),
		SubmissionsPath: writeFile(t, dir, "submissions.yml", "- sis_login_id: alice\n"),
	}
	cfg, err := s.Load(true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Courses) != 1 || len(cfg.Templates) != 1 || len(cfg.Submissions) != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	cfg, err = s.Load(false)
	if err != nil {
		t.Fatalf("load without submissions: %v", err)
	}
	if cfg.Submissions != nil {
		t.Fatalf("submissions loaded unexpectedly: %+v", cfg.Submissions)
	}
}

func TestLoadEnvMissing(t *testing.T) {
	t.Setenv("CANVAS_API_URL", "")
	t.Setenv("CANVAS_API_KEY", "")
	os.Unsetenv("CANVAS_API_URL")
	os.Unsetenv("CANVAS_API_KEY")
	if _, err := config.LoadEnv(); err == nil {
		t.Fatal("expected error when credentials are unset")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("CANVAS_API_URL", "https://canvas.example.edu")
	t.Setenv("CANVAS_API_KEY", "token123")
	env, err := config.LoadEnv()
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	if env.APIURL != "https://canvas.example.edu" || env.APIKey != "token123" {
		t.Fatalf("unexpected env: %+v", env)
	}
}
