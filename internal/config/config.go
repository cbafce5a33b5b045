package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"coursekit/internal/domain"
)

// Defaults applied to config records when the YAML leaves a field unset.
const (
	DefaultNumAssignments     = 1
	DefaultTestStudentSection = "Test Students"
	DefaultGraderSection      = "Graders"
	DefaultAssignmentName     = "Assignment"
)

var validate = validator.New()

// Env carries the Canvas API address and credential. Both are required; the
// CLI aborts before any other work when either is missing.
type Env struct {
	APIURL string `envconfig:"CANVAS_API_URL" required:"true"`
	APIKey string `envconfig:"CANVAS_API_KEY" required:"true"`
}

// LoadEnv reads Canvas credentials from the process environment, loading a
// .env file first when one is present.
func LoadEnv() (Env, error) {
	_ = godotenv.Load()
	var e Env
	if err := envconfig.Process("", &e); err != nil {
		return Env{}, fmt.Errorf("canvas credentials: %w", err)
	}
	return e, nil
}

// Store holds the three config file paths for one run.
type Store struct {
	CoursesPath     string
	AssignmentsPath string
	SubmissionsPath string
}

// Config is the full declarative input for a run.
type Config struct {
	Courses     []domain.CourseTarget       `json:"courses"`
	Templates   []domain.AssignmentTemplate `json:"assignment_templates"`
	Submissions []domain.SubmissionSpec     `json:"submissions"`
}

// Load reads all three config files. Submissions are optional at the file
// level only for commands that never submit; callers pass withSubmissions
// accordingly. Any read, parse, or validation failure is fatal to the run.
func (s Store) Load(withSubmissions bool) (*Config, error) {
	courses, err := s.LoadCourses()
	if err != nil {
		return nil, err
	}
	templates, err := s.LoadTemplates()
	if err != nil {
		return nil, err
	}
	cfg := &Config{Courses: courses, Templates: templates}
	if withSubmissions {
		subs, err := s.LoadSubmissions()
		if err != nil {
			return nil, err
		}
		cfg.Submissions = subs
	}
	return cfg, nil
}

// LoadCourses reads and validates the course list.
func (s Store) LoadCourses() ([]domain.CourseTarget, error) {
	data, err := os.ReadFile(s.CoursesPath)
	if err != nil {
		return nil, fmt.Errorf("load courses config %s: %w", s.CoursesPath, err)
	}
	return CoursesFromYAML(data)
}

// LoadTemplates reads and validates the assignment template list.
func (s Store) LoadTemplates() ([]domain.AssignmentTemplate, error) {
	data, err := os.ReadFile(s.AssignmentsPath)
	if err != nil {
		return nil, fmt.Errorf("load assignments config %s: %w", s.AssignmentsPath, err)
	}
	return TemplatesFromYAML(data)
}

// LoadSubmissions reads and validates the submission spec list.
func (s Store) LoadSubmissions() ([]domain.SubmissionSpec, error) {
	data, err := os.ReadFile(s.SubmissionsPath)
	if err != nil {
		return nil, fmt.Errorf("load submissions config %s: %w", s.SubmissionsPath, err)
	}
	return SubmissionsFromYAML(data)
}

// CoursesFromYAML parses the courses document, applies defaults, and
// validates every entry.
func CoursesFromYAML(data []byte) ([]domain.CourseTarget, error) {
	var courses []domain.CourseTarget
	if err := yaml.Unmarshal(data, &courses); err != nil {
		return nil, fmt.Errorf("invalid courses yaml: %w", err)
	}
	if len(courses) == 0 {
		return nil, fmt.Errorf("courses config is empty")
	}
	for i := range courses {
		c := &courses[i]
		if c.NumAssignments == 0 {
			c.NumAssignments = DefaultNumAssignments
		}
		if c.TestStudentSection == "" {
			c.TestStudentSection = DefaultTestStudentSection
		}
		if c.GraderSection == "" {
			c.GraderSection = DefaultGraderSection
		}
		if err := validate.Struct(c); err != nil {
			return nil, fmt.Errorf("courses[%d] (%s): %w", i, c.Name, err)
		}
		if c.TestStudentSection == c.GraderSection {
			return nil, fmt.Errorf("courses[%d] (%s): test_student_section_name and grader_section_name must differ", i, c.Name)
		}
	}
	return courses, nil
}

// TemplatesFromYAML parses the assignment templates document. Two templates
// sharing a base name would render colliding assignment names, which makes
// existence checks ambiguous, so collisions are rejected at load time.
func TemplatesFromYAML(data []byte) ([]domain.AssignmentTemplate, error) {
	var templates []domain.AssignmentTemplate
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("invalid assignments yaml: %w", err)
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("assignments config is empty")
	}
	seen := map[string]int{}
	for i := range templates {
		t := &templates[i]
		if t.Name == "" {
			t.Name = DefaultAssignmentName
		}
		if t.RubricID < 0 {
			return nil, fmt.Errorf("assignments[%d] (%s): rubric_id must be positive", i, t.Name)
		}
		if j, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("assignments[%d] (%s): base name collides with assignments[%d]", i, t.Name, j)
		}
		seen[t.Name] = i
	}
	return templates, nil
}

// SubmissionsFromYAML parses the submissions document.
func SubmissionsFromYAML(data []byte) ([]domain.SubmissionSpec, error) {
	var specs []domain.SubmissionSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("invalid submissions yaml: %w", err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("submissions config is empty")
	}
	for i := range specs {
		spec := &specs[i]
		if err := validate.Struct(spec); err != nil {
			return nil, fmt.Errorf("submissions[%d]: %w", i, err)
		}
		if spec.Params == nil {
			spec.Params = map[string]any{}
		}
	}
	return specs, nil
}
