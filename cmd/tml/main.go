package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"teamline/internal/app"
	"teamline/internal/db"
	"teamline/internal/engine"
	"teamline/internal/repo"
	"teamline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tml",
	Short: "Teamline CLI",
	Long: `Teamline schedules project members day by day and keeps the calendar tidy.
Core concepts:
- Workspace: your .teamline directory holding the database; config lives in teamline.yml.
- Assignment: one project-member pairing that owns scheduled days and groups.
- Day assignment: one scheduled day (YYYY-MM-DD) with an optional comment.
- Assignment group: a contiguous [start, end] date interval with a priority and
  comment. Groups are derived: adding days merges them, removing days splits
  them, and reconciliation repairs whatever drifted.
- Event log: diary of changes, view with 'tml log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TEAMLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(assignmentCmd())
	rootCmd.AddCommand(dayCmd())
	rootCmd.AddCommand(groupCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(rebuildCmd())
	rootCmd.AddCommand(cleanupCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func assignmentCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "assignment",
		Short: "Manage assignments",
		Long:  "Assignments pair a project with a member. Each assignment owns its scheduled days and the derived groups.",
	}
	a.AddCommand(assignmentCreateCmd())
	a.AddCommand(assignmentListCmd())
	a.AddCommand(assignmentShowCmd())
	a.AddCommand(assignmentDeleteCmd())
	return a
}

func assignmentCreateCmd() *cobra.Command {
	var opts engine.AssignmentCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an assignment",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateAssignment(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "assignment id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.MemberID, "member", "", "member id")
	cmd.Flags().StringVar(&opts.Label, "label", "", "display label")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func assignmentListCmd() *cobra.Command {
	var f repo.AssignmentFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAssignments(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Project", "Member", "Label"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.ProjectID, a.MemberID, a.Label})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.MemberID, "member", "", "member filter")
	return cmd
}

func assignmentShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an assignment with its days and groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				a, err := r.GetAssignment(ctx, id)
				if err != nil {
					return err
				}
				days, err := r.ListDays(ctx, id)
				if err != nil {
					return err
				}
				groups, err := r.ListGroups(ctx, id)
				if err != nil {
					return err
				}
				out := map[string]any{
					"assignment": a,
					"days":       days,
					"groups":     groups,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Assignment: %s (%s / %s)\n", a.ID, a.ProjectID, a.MemberID)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Group", "Start", "End", "Days", "Priority", "Comment"})
				for _, g := range groups {
					comment := ""
					if g.Comment != nil {
						comment = *g.Comment
					}
					tw.AppendRow(table.Row{g.ID, g.StartDate, g.EndDate, engine.DayCount(g.StartDate, g.EndDate), g.Priority, comment})
				}
				tw.Render()
				fmt.Printf("Scheduled days: %d\n", len(days))
				return nil
			})
		},
	}
	return cmd
}

func assignmentDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an assignment with its days and groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteAssignment(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func dayCmd() *cobra.Command {
	d := &cobra.Command{
		Use:   "day",
		Short: "Manage scheduled days",
		Long:  "Days are the unit of scheduling. Adding a day merges it into the adjacent group; removing one splits the covering group in two.",
	}
	d.AddCommand(dayAddCmd())
	d.AddCommand(dayRemoveCmd())
	d.AddCommand(dayBatchCmd())
	d.AddCommand(dayMoveCmd())
	d.AddCommand(dayListCmd())
	return d
}

func dayAddCmd() *cobra.Command {
	var assignmentID, comment string
	cmd := &cobra.Command{
		Use:   "add <date>",
		Short: "Add one scheduled day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := args[0]
			if !engine.ValidDay(date) {
				return fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				outcome, err := e.AddDay(ctx, assignmentID, date, comment, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(outcome)
			})
		},
	}
	cmd.Flags().StringVar(&assignmentID, "assignment", "", "assignment id")
	cmd.Flags().StringVar(&comment, "comment", "", "day comment")
	_ = cmd.MarkFlagRequired("assignment")
	return cmd
}

func dayRemoveCmd() *cobra.Command {
	var assignmentID string
	cmd := &cobra.Command{
		Use:   "remove <date>",
		Short: "Remove one scheduled day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := args[0]
			if !engine.ValidDay(date) {
				return fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				outcome, err := e.RemoveDay(ctx, assignmentID, date, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(outcome)
			})
		},
	}
	cmd.Flags().StringVar(&assignmentID, "assignment", "", "assignment id")
	_ = cmd.MarkFlagRequired("assignment")
	return cmd
}

func dayBatchCmd() *cobra.Command {
	var opts engine.DaysCreateOptions
	cmd := &cobra.Command{
		Use:   "batch <date>...",
		Short: "Add many scheduled days and reconcile",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, d := range args {
				if !engine.ValidDay(d) {
					return fmt.Errorf("invalid date %q, want YYYY-MM-DD", d)
				}
			}
			opts.Dates = args
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				outcome, err := e.AddDays(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(outcome)
			})
		},
	}
	cmd.Flags().StringVar(&opts.AssignmentID, "assignment", "", "assignment id")
	cmd.Flags().StringVar(&opts.Comment, "comment", "", "comment for new days")
	cmd.Flags().BoolVar(&opts.ExpandAdjacent, "expand-adjacent", false, "absorb sibling assignments scheduled next to the new days")
	_ = cmd.MarkFlagRequired("assignment")
	return cmd
}

func dayMoveCmd() *cobra.Command {
	var opts engine.MoveOptions
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move a contiguous day range",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, d := range []string{opts.FromStart, opts.FromEnd, opts.ToStart} {
				if !engine.ValidDay(d) {
					return fmt.Errorf("invalid date %q, want YYYY-MM-DD", d)
				}
			}
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				outcome, err := e.MoveDays(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(outcome)
			})
		},
	}
	cmd.Flags().StringVar(&opts.AssignmentID, "assignment", "", "assignment id")
	cmd.Flags().StringVar(&opts.FromStart, "from-start", "", "first day of the range to move")
	cmd.Flags().StringVar(&opts.FromEnd, "from-end", "", "last day of the range to move")
	cmd.Flags().StringVar(&opts.ToStart, "to-start", "", "first day of the destination")
	_ = cmd.MarkFlagRequired("assignment")
	_ = cmd.MarkFlagRequired("from-start")
	_ = cmd.MarkFlagRequired("from-end")
	_ = cmd.MarkFlagRequired("to-start")
	return cmd
}

func dayListCmd() *cobra.Command {
	var assignmentID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListDays(ctx, assignmentID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "Comment", "ID"})
				for _, d := range items {
					comment := ""
					if d.Comment != nil {
						comment = *d.Comment
					}
					tw.AppendRow(table.Row{d.Date, comment, d.ID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&assignmentID, "assignment", "", "assignment id")
	_ = cmd.MarkFlagRequired("assignment")
	return cmd
}

func groupCmd() *cobra.Command {
	g := &cobra.Command{
		Use:   "group",
		Short: "Inspect and annotate groups",
		Long:  "Groups are derived intervals; the engine owns their bounds. Priority and comment are yours to set.",
	}
	g.AddCommand(groupListCmd())
	g.AddCommand(groupSetCmd())
	return g
}

func groupListCmd() *cobra.Command {
	var assignmentID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListGroups(ctx, assignmentID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Start", "End", "Days", "Priority", "Comment"})
				for _, g := range items {
					comment := ""
					if g.Comment != nil {
						comment = *g.Comment
					}
					tw.AppendRow(table.Row{g.ID, g.StartDate, g.EndDate, engine.DayCount(g.StartDate, g.EndDate), g.Priority, comment})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&assignmentID, "assignment", "", "assignment id")
	_ = cmd.MarkFlagRequired("assignment")
	return cmd
}

func groupSetCmd() *cobra.Command {
	var priority, comment string
	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Set group priority or comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.GroupMetaOptions{
				GroupID: args[0],
				ActorID: viper.GetString("actor-id"),
			}
			if cmd.Flags().Changed("priority") {
				opts.Priority = &priority
			}
			if cmd.Flags().Changed("comment") {
				opts.Comment = &comment
			}
			if opts.Priority == nil && opts.Comment == nil {
				return fmt.Errorf("--priority or --comment required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.SetGroupMeta(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&priority, "priority", "", "priority (high, normal, low)")
	cmd.Flags().StringVar(&comment, "comment", "", "comment (empty clears)")
	return cmd
}

func reconcileCmd() *cobra.Command {
	var assignmentID string
	var touched []string
	var expand bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair groups around recently touched dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, d := range touched {
				if !engine.ValidDay(d) {
					return fmt.Errorf("invalid date %q, want YYYY-MM-DD", d)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				outcome, err := e.Reconcile(ctx, assignmentID, touched, engine.ReconcileOptions{ExpandAdjacent: expand}, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(outcome)
			})
		},
	}
	cmd.Flags().StringVar(&assignmentID, "assignment", "", "assignment id")
	cmd.Flags().StringArrayVar(&touched, "date", []string{}, "touched date (repeatable)")
	cmd.Flags().BoolVar(&expand, "expand-adjacent", false, "absorb sibling assignments scheduled next to the touched dates")
	_ = cmd.MarkFlagRequired("assignment")
	return cmd
}

func rebuildCmd() *cobra.Command {
	var assignmentID string
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild all groups from live days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				outcome, err := e.RebuildGroups(ctx, assignmentID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(outcome)
			})
		},
	}
	cmd.Flags().StringVar(&assignmentID, "assignment", "", "assignment id")
	_ = cmd.MarkFlagRequired("assignment")
	return cmd
}

func cleanupCmd() *cobra.Command {
	var assignmentID string
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete groups covering no scheduled day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				deleted, err := e.CleanupOrphans(ctx, assignmentID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"deleted_group_ids": deleted})
			})
		},
	}
	cmd.Flags().StringVar(&assignmentID, "assignment", "", "assignment id")
	_ = cmd.MarkFlagRequired("assignment")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show workspace status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				counts, err := r.Counts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"counts": counts})
				}
				fmt.Println("Workspace:")
				for name, c := range counts {
					fmt.Printf("  %s: %d\n", name, c)
				}
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: days added and removed, merges, splits, reconciliations.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, assignmentID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, assignmentID, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&assignmentID, "assignment", "", "assignment filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			ac, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer ac.Close()
			if addr == "" {
				addr = ac.Config.Server.Addr
			}
			if basePath == "" {
				basePath = ac.Config.Server.BasePath
			}
			handler, err := server.New(server.Config{Engine: ac.Engine, Repo: ac.Repo, BasePath: basePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Teamline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	ac, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer ac.Close()
	return fn(ctx, ac.Engine)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	ac, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer ac.Close()
	return fn(ctx, ac.Repo)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
