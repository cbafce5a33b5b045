package domain

import "fmt"

// CourseTarget is one managed course from courses.yml.
type CourseTarget struct {
	CanvasID           int    `yaml:"canvas_id" json:"canvas_id" validate:"required,gt=0"`
	Name               string `yaml:"name" json:"name" validate:"required"`
	NumAssignments     int    `yaml:"num_create_assignments" json:"num_create_assignments" validate:"gte=1"`
	TestStudentSection string `yaml:"test_student_section_name" json:"test_student_section_name"`
	GraderSection      string `yaml:"grader_section_name" json:"grader_section_name"`
}

// ManagedSections returns the section names this course owns, in creation order.
func (c CourseTarget) ManagedSections() []string {
	return []string{c.TestStudentSection, c.GraderSection}
}

// AssignmentTemplate is one entry of assignments.yml, replicated
// NumAssignments times per course.
type AssignmentTemplate struct {
	Name     string         `yaml:"name" json:"name"`
	Params   map[string]any `yaml:"params" json:"params"`
	RubricID int            `yaml:"rubric_id" json:"rubric_id,omitempty"`
}

// ReplicaName renders the concrete assignment name for replica i (1-based).
// The rendered name is the reconciliation key: remote existence is decided
// by exact match against it.
func (t AssignmentTemplate) ReplicaName(i int) string {
	return fmt.Sprintf("%s%d", t.Name, i)
}

// SubmissionSpec is one entry of submissions.yml: a test user identified by
// SIS login id plus the parameter bag submitted on their behalf. The resolved
// numeric user id is injected into Params under "user_id" before submitting.
type SubmissionSpec struct {
	SISLoginID string         `yaml:"sis_login_id" json:"sis_login_id" validate:"required"`
	Params     map[string]any `yaml:"submission_params" json:"submission_params"`
}

// Remote entities, owned by Canvas. Only the fields the reconciler consults
// are mapped; everything else rides along server-side.

type Course struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Section struct {
	ID       int    `json:"id"`
	CourseID int    `json:"course_id"`
	Name     string `json:"name"`
}

type Assignment struct {
	ID              int      `json:"id"`
	CourseID        int      `json:"course_id"`
	Name            string   `json:"name"`
	SubmissionTypes []string `json:"submission_types"`
	Published       bool     `json:"published"`
}

// HasSubmissionType reports whether the assignment accepts the given type.
func (a Assignment) HasSubmissionType(t string) bool {
	for _, st := range a.SubmissionTypes {
		if st == t {
			return true
		}
	}
	return false
}

type Enrollment struct {
	ID       int    `json:"id"`
	CourseID int    `json:"course_id"`
	UserID   int    `json:"user_id"`
	Type     string `json:"type"`
	State    string `json:"enrollment_state"`
}

type User struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	SISLoginID string `json:"sis_login_id,omitempty"`
}
