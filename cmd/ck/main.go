package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"coursekit/internal/canvas"
	"coursekit/internal/config"
	"coursekit/internal/logger"
	"coursekit/internal/reconcile"
	"coursekit/internal/report"
)

var rootCmd = &cobra.Command{
	Use:   "ck",
	Short: "Coursekit CLI",
	Long: `Coursekit provisions Canvas LMS courses for grading practice.
It reads courses.yml, assignments.yml, and submissions.yml, then reconciles
the desired assignments, sections, enrollments, and submissions against the
remote course state, creating or deleting only what is missing or stale.
Credentials come from CANVAS_API_URL and CANVAS_API_KEY (a .env file is
honored). Individual entity failures are reported and never abort the run;
only unreadable configuration does.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("COURSEKIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("courses", "courses.yml", "courses config file")
	rootCmd.PersistentFlags().String("assignments", "assignments.yml", "assignment templates config file")
	rootCmd.PersistentFlags().String("submissions", "submissions.yml", "submissions config file")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "per-request HTTP timeout")
	_ = viper.BindPFlag("courses", rootCmd.PersistentFlags().Lookup("courses"))
	_ = viper.BindPFlag("assignments", rootCmd.PersistentFlags().Lookup("assignments"))
	_ = viper.BindPFlag("submissions", rootCmd.PersistentFlags().Lookup("submissions"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
}

func registerCommands() {
	rootCmd.AddCommand(provisionCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(configCmd())
}

func provisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create practice sections and assignments",
		Long:  "Ensures the test-student and grader sections exist and creates every missing assignment replica in every configured course. Entities that already exist are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReconciler(cmd.Context(), false, func(ctx context.Context, r *reconcile.Reconciler, cfg *config.Config) {
				r.Provision(ctx, cfg.Courses, cfg.Templates)
			})
		},
	}
}

func submitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit",
		Short: "Enroll test users and submit on their behalf",
		Long:  "Enrolls every configured test user into the test-student section, then submits each online-text-entry assignment for each of them. Courses without a test-student section are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReconciler(cmd.Context(), true, func(ctx context.Context, r *reconcile.Reconciler, cfg *config.Config) {
				r.Submit(ctx, cfg.Courses, cfg.Submissions)
			})
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Remove generated assignments and managed sections",
		Long:  "Deletes every assignment in the generated name set, deactivates all enrollments in the test-student and grader sections, and deletes those sections. Assignments outside the generated set are untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReconciler(cmd.Context(), false, func(ctx context.Context, r *reconcile.Reconciler, cfg *config.Config) {
				r.Reset(ctx, cfg.Courses, cfg.Templates)
			})
		},
	}
}

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the desired state without calling Canvas",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := store().Load(false)
			if err != nil {
				return err
			}
			type entry struct {
				Course      string   `json:"course"`
				CanvasID    int      `json:"canvas_id"`
				Sections    []string `json:"sections"`
				Assignments []string `json:"assignments"`
			}
			var plan []entry
			for _, course := range cfg.Courses {
				plan = append(plan, entry{
					Course:      course.Name,
					CanvasID:    course.CanvasID,
					Sections:    course.ManagedSections(),
					Assignments: reconcile.AssignmentNames(course, cfg.Templates),
				})
			}
			if viper.GetBool("json") {
				return printJSON(plan)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Course", "Canvas ID", "Sections", "Assignments"})
			for _, e := range plan {
				tw.AppendRow(table.Row{e.Course, e.CanvasID, strings.Join(e.Sections, "\n"), strings.Join(e.Assignments, "\n")})
			}
			tw.Render()
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration files",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := store().Load(optionalSubmissions())
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config files",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := store().Load(optionalSubmissions())
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": errString(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

// --- helpers ---

func store() config.Store {
	return config.Store{
		CoursesPath:     viper.GetString("courses"),
		AssignmentsPath: viper.GetString("assignments"),
		SubmissionsPath: viper.GetString("submissions"),
	}
}

// optionalSubmissions includes the submissions file in config-only commands
// when it is present; provisioning and reset never need it.
func optionalSubmissions() bool {
	_, err := os.Stat(viper.GetString("submissions"))
	return err == nil
}

func withReconciler(ctx context.Context, withSubmissions bool, fn func(context.Context, *reconcile.Reconciler, *config.Config)) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	cfg, err := store().Load(withSubmissions)
	if err != nil {
		return err
	}
	client := canvas.New(env.APIURL, env.APIKey)
	client.Timeout = viper.GetDuration("timeout")
	log := logger.New()
	rep := report.New(log)
	r := reconcile.New(client, rep, log)
	fn(ctx, r, cfg)
	return printReport(rep)
}

// printReport renders the transcript and summary. Entity failures are part
// of the report, not process errors: the exit code stays zero.
func printReport(rep *report.Report) error {
	if viper.GetBool("json") {
		return printJSON(rep)
	}
	rep.RenderTable(os.Stdout)
	summary := rep.Summary()
	var parts []string
	for _, action := range []report.Action{
		report.ActionCreated, report.ActionSkipped, report.ActionDeleted,
		report.ActionEnrolled, report.ActionSubmitted, report.ActionFailed,
	} {
		if n := summary[action]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, action))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "nothing to do")
	}
	fmt.Printf("run %s: %s\n", rep.RunID, strings.Join(parts, ", "))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
