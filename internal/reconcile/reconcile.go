// Package reconcile computes the desired set of course entities from config
// and closes the gap against remote Canvas state. All remote reads are
// point-in-time snapshots taken once per course per operation; mutations are
// attempted exactly once, with failures isolated to the smallest enclosing
// entity so the rest of the run keeps going.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"coursekit/internal/canvas"
	"coursekit/internal/domain"
	"coursekit/internal/report"
)

// Submission and enrollment constants for generated practice work.
const (
	TargetSubmissionType = "online_text_entry"
	StudentRole          = "StudentEnrollment"
	ActiveState          = "active"
	DeactivateTask       = "delete"
)

// CourseAPI is the capability set the reconciler needs from Canvas.
// *canvas.Client satisfies it; tests substitute an in-memory fake.
type CourseAPI interface {
	GetCourse(ctx context.Context, id int) (domain.Course, error)
	ListSections(ctx context.Context, courseID int) ([]domain.Section, error)
	CreateSection(ctx context.Context, courseID int, name string) (domain.Section, error)
	DeleteSection(ctx context.Context, sectionID int) error
	ListEnrollments(ctx context.Context, sectionID int) ([]domain.Enrollment, error)
	DeactivateEnrollment(ctx context.Context, enr domain.Enrollment, task string) error
	EnrollUser(ctx context.Context, sectionID, userID int, role, state string) (domain.Enrollment, error)
	GetUserByLogin(ctx context.Context, sisLoginID string) (domain.User, error)
	ListAssignments(ctx context.Context, courseID int) ([]domain.Assignment, error)
	CreateAssignment(ctx context.Context, courseID int, params map[string]any) (domain.Assignment, error)
	DeleteAssignment(ctx context.Context, courseID, assignmentID int) error
	CreateRubricAssociation(ctx context.Context, courseID, rubricID, assignmentID int) error
	SubmitAssignment(ctx context.Context, courseID, assignmentID int, params map[string]any) error
}

// Reconciler drives create/verify/delete operations for configured courses.
type Reconciler struct {
	Client CourseAPI
	Report *report.Report
	Log    zerolog.Logger
}

// New wires a reconciler; all collaborators are explicit, nothing is global.
func New(client CourseAPI, rep *report.Report, log zerolog.Logger) *Reconciler {
	return &Reconciler{Client: client, Report: rep, Log: log}
}

// AssignmentNames renders the desired assignment name set for a course:
// templates in config order, replicas 1..N in increasing order. Provisioning
// and reset both derive their target set from this one function, so deleting
// then re-creating restores exactly the same names.
func AssignmentNames(course domain.CourseTarget, templates []domain.AssignmentTemplate) []string {
	names := make([]string, 0, len(templates)*course.NumAssignments)
	for _, t := range templates {
		for i := 1; i <= course.NumAssignments; i++ {
			names = append(names, t.ReplicaName(i))
		}
	}
	return names
}

// Provision ensures sections and assignments for every configured course.
// A failure fetching one course is recorded and does not stop the others.
func (r *Reconciler) Provision(ctx context.Context, courses []domain.CourseTarget, templates []domain.AssignmentTemplate) {
	for _, course := range courses {
		if _, err := r.Client.GetCourse(ctx, course.CanvasID); err != nil {
			r.Report.Failure(course.Name, report.KindCourse, course.Name, err)
			continue
		}
		if err := r.EnsureSections(ctx, course); err != nil {
			r.Report.Failure(course.Name, report.KindCourse, course.Name, err)
			continue
		}
		if err := r.EnsureAssignments(ctx, course, templates); err != nil {
			r.Report.Failure(course.Name, report.KindCourse, course.Name, err)
		}
	}
}

// Submit enrolls test users and submits work on their behalf for every
// configured course, with the same per-course isolation as Provision.
func (r *Reconciler) Submit(ctx context.Context, courses []domain.CourseTarget, specs []domain.SubmissionSpec) {
	for _, course := range courses {
		if _, err := r.Client.GetCourse(ctx, course.CanvasID); err != nil {
			r.Report.Failure(course.Name, report.KindCourse, course.Name, err)
			continue
		}
		if err := r.EnrollAndSubmit(ctx, course, specs); err != nil {
			r.Report.Failure(course.Name, report.KindCourse, course.Name, err)
		}
	}
}

// Reset tears down generated assignments and managed sections for every
// configured course.
func (r *Reconciler) Reset(ctx context.Context, courses []domain.CourseTarget, templates []domain.AssignmentTemplate) {
	for _, course := range courses {
		if _, err := r.Client.GetCourse(ctx, course.CanvasID); err != nil {
			r.Report.Failure(course.Name, report.KindCourse, course.Name, err)
			continue
		}
		if err := r.ResetCourse(ctx, course, templates); err != nil {
			r.Report.Failure(course.Name, report.KindCourse, course.Name, err)
		}
	}
}

// EnsureSections creates the test-student and grader sections when absent.
// Existing sections are left untouched and recorded as skipped.
func (r *Reconciler) EnsureSections(ctx context.Context, course domain.CourseTarget) error {
	sections, err := r.Client.ListSections(ctx, course.CanvasID)
	if err != nil {
		return fmt.Errorf("list sections: %w", err)
	}
	r.Log.Debug().Str("course", course.Name).Int("sections", len(sections)).Msg("section snapshot")
	existing := map[string]bool{}
	for _, s := range sections {
		existing[s.Name] = true
	}
	for _, name := range course.ManagedSections() {
		if existing[name] {
			r.Report.Skip(course.Name, report.KindSection, name, "already exists")
			continue
		}
		if _, err := r.Client.CreateSection(ctx, course.CanvasID, name); err != nil {
			r.Report.Failure(course.Name, report.KindSection, name, err)
			continue
		}
		r.Report.Success(course.Name, report.KindSection, name, report.ActionCreated)
	}
	return nil
}

// EnsureAssignments creates every missing replica of every template. The
// existing-name snapshot is taken once; each create and each rubric
// association is attempted independently so one failure never blocks the
// remaining assignments.
func (r *Reconciler) EnsureAssignments(ctx context.Context, course domain.CourseTarget, templates []domain.AssignmentTemplate) error {
	remote, err := r.Client.ListAssignments(ctx, course.CanvasID)
	if err != nil {
		return fmt.Errorf("list assignments: %w", err)
	}
	r.Log.Debug().Str("course", course.Name).Int("assignments", len(remote)).Msg("assignment snapshot")
	existing := map[string]bool{}
	for _, a := range remote {
		existing[a.Name] = true
	}
	for _, t := range templates {
		for i := 1; i <= course.NumAssignments; i++ {
			name := t.ReplicaName(i)
			if existing[name] {
				r.Report.Skip(course.Name, report.KindAssignment, name, "already exists")
				continue
			}
			params := make(map[string]any, len(t.Params)+1)
			for k, v := range t.Params {
				params[k] = v
			}
			params["name"] = name
			created, err := r.Client.CreateAssignment(ctx, course.CanvasID, params)
			if err != nil {
				r.Report.Failure(course.Name, report.KindAssignment, name, err)
				continue
			}
			if t.RubricID != 0 {
				if err := r.Client.CreateRubricAssociation(ctx, course.CanvasID, t.RubricID, created.ID); err != nil {
					r.Report.Failure(course.Name, report.KindAssignment, name, fmt.Errorf("rubric association: %w", err))
					continue
				}
			}
			r.Report.Success(course.Name, report.KindAssignment, name, report.ActionCreated)
		}
	}
	return nil
}

// EnrollAndSubmit runs the two-pass best-effort batch for one course: first
// enroll every spec's user into the test-student section, then submit every
// target-type assignment on behalf of each successfully enrolled user.
// Enrollment and submission are decoupled so a late submission failure never
// undoes completed enrollments. A missing test-student section skips the
// whole course without error.
func (r *Reconciler) EnrollAndSubmit(ctx context.Context, course domain.CourseTarget, specs []domain.SubmissionSpec) error {
	sections, err := r.Client.ListSections(ctx, course.CanvasID)
	if err != nil {
		return fmt.Errorf("list sections: %w", err)
	}
	var section *domain.Section
	for i := range sections {
		if sections[i].Name == course.TestStudentSection {
			section = &sections[i]
			break
		}
	}
	if section == nil {
		r.Report.Skip(course.Name, report.KindCourse, course.Name,
			fmt.Sprintf("no section named %q", course.TestStudentSection))
		return nil
	}

	type pending struct {
		login  string
		params map[string]any
	}
	var enrolled []pending
	for _, spec := range specs {
		user, err := r.Client.GetUserByLogin(ctx, spec.SISLoginID)
		if err != nil {
			if errors.Is(err, canvas.ErrNotFound) {
				r.Report.Skip(course.Name, report.KindEnrollment, spec.SISLoginID, "user not found")
			} else {
				r.Report.Failure(course.Name, report.KindEnrollment, spec.SISLoginID, err)
			}
			continue
		}
		if _, err := r.Client.EnrollUser(ctx, section.ID, user.ID, StudentRole, ActiveState); err != nil {
			r.Report.Failure(course.Name, report.KindEnrollment, spec.SISLoginID, err)
			continue
		}
		r.Report.Success(course.Name, report.KindEnrollment, spec.SISLoginID, report.ActionEnrolled)
		params := make(map[string]any, len(spec.Params)+1)
		for k, v := range spec.Params {
			params[k] = v
		}
		params["user_id"] = user.ID
		enrolled = append(enrolled, pending{login: spec.SISLoginID, params: params})
	}

	assignments, err := r.Client.ListAssignments(ctx, course.CanvasID)
	if err != nil {
		return fmt.Errorf("list assignments: %w", err)
	}
	for _, a := range assignments {
		if !a.HasSubmissionType(TargetSubmissionType) {
			continue
		}
		for _, p := range enrolled {
			name := fmt.Sprintf("%s for %s", a.Name, p.login)
			if err := r.Client.SubmitAssignment(ctx, course.CanvasID, a.ID, p.params); err != nil {
				r.Report.Failure(course.Name, report.KindSubmission, name, err)
				continue
			}
			r.Report.Success(course.Name, report.KindSubmission, name, report.ActionSubmitted)
		}
	}
	return nil
}

// ResetCourse deletes the generated assignments and the managed sections.
// The deletion target set is the same name set EnsureAssignments provisions
// from; remote assignments outside it are never touched. Each section's
// enrollments are deactivated with a delete disposition before the section
// itself is removed.
func (r *Reconciler) ResetCourse(ctx context.Context, course domain.CourseTarget, templates []domain.AssignmentTemplate) error {
	remote, err := r.Client.ListAssignments(ctx, course.CanvasID)
	if err != nil {
		return fmt.Errorf("list assignments: %w", err)
	}
	targets := map[string]bool{}
	for _, name := range AssignmentNames(course, templates) {
		targets[name] = true
	}
	for _, a := range remote {
		if !targets[a.Name] {
			continue
		}
		if err := r.Client.DeleteAssignment(ctx, course.CanvasID, a.ID); err != nil {
			r.Report.Failure(course.Name, report.KindAssignment, a.Name, err)
			continue
		}
		r.Report.Success(course.Name, report.KindAssignment, a.Name, report.ActionDeleted)
	}

	sections, err := r.Client.ListSections(ctx, course.CanvasID)
	if err != nil {
		return fmt.Errorf("list sections: %w", err)
	}
	managed := map[string]bool{}
	for _, name := range course.ManagedSections() {
		managed[name] = true
	}
	for _, s := range sections {
		if !managed[s.Name] {
			continue
		}
		if err := r.removeSection(ctx, s); err != nil {
			r.Report.Failure(course.Name, report.KindSection, s.Name, err)
			continue
		}
		r.Report.Success(course.Name, report.KindSection, s.Name, report.ActionDeleted)
	}
	return nil
}

func (r *Reconciler) removeSection(ctx context.Context, s domain.Section) error {
	enrollments, err := r.Client.ListEnrollments(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("list enrollments: %w", err)
	}
	for _, enr := range enrollments {
		if err := r.Client.DeactivateEnrollment(ctx, enr, DeactivateTask); err != nil {
			return fmt.Errorf("deactivate enrollment %d: %w", enr.ID, err)
		}
	}
	if err := r.Client.DeleteSection(ctx, s.ID); err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	return nil
}
