package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"whygo/internal/app"
	"whygo/internal/config"
	"whygo/internal/db"
	"whygo/internal/domain"
	"whygo/internal/engine"
	"whygo/internal/migrate"
	"whygo/internal/repo"
	"whygo/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "whygo",
	Short: "WhyGo CLI",
	Long: `WhyGo tracks company, department and individual goals.
- Goal: a statement plus the reason it matters, owned by the employee who wrote it.
- Outcome: a measurable result under a goal with annual and quarterly targets.
- Progress: quarterly actuals and a pacing status (+ on pace, ~ slightly off, - off pace).
- Approval: an approved goal is locked against edits except by executives.
- Workspace: the .whygo directory holding the database; whygo.yml holds the organization config.
- Event log: every mutation, view with 'whygo log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(viper.GetString("log-level"))
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("WHYGO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "employee id to act as")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(employeeCmd())
	rootCmd.AddCommand(goalCmd())
	rootCmd.AddCommand(outcomeCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Organization config"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var org string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default whygo.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(org)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&org, "org", "WhyGo", "organization name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSON(e.Config)
			})
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate whygo.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
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
}

func employeeCmd() *cobra.Command {
	emp := &cobra.Command{Use: "employee", Short: "Manage the employee roster"}
	emp.AddCommand(employeeAddCmd())
	emp.AddCommand(employeeListCmd())
	emp.AddCommand(employeeReportsCmd())
	return emp
}

func employeeAddCmd() *cobra.Command {
	var id, name, email, level, department, reportsTo string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or replace an employee",
		Long:  "Writes the roster directly. With --actor-id the write is checked against that employee's permissions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := domain.Actor{
				ID:         id,
				Name:       name,
				Email:      email,
				Level:      domain.ActorLevel(level),
				Department: department,
				ReportsTo:  optionalString(reportsTo),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var out domain.Actor
				var err error
				if viper.GetString("actor-id") != "" {
					actor, aerr := currentActor(ctx, e)
					if aerr != nil {
						return aerr
					}
					out, err = e.UpsertEmployee(ctx, actor, a)
				} else {
					out, err = e.SeedEmployee(ctx, a)
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "employee id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&level, "level", "", "executive, department_head, manager or individual_contributor")
	cmd.Flags().StringVar(&department, "department", "", "department")
	cmd.Flags().StringVar(&reportsTo, "reports-to", "", "manager employee id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func employeeListCmd() *cobra.Command {
	var department string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List employees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEmployees(ctx, department)
				if err != nil {
					return err
				}
				return printEmployees(items)
			})
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "department filter")
	return cmd
}

func employeeReportsCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reports <manager-id>",
		Short: "List the reports of a manager",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				items, err := e.Reports(ctx, actor, args[0], all)
				if err != nil {
					return err
				}
				return printEmployees(items)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include indirect reports")
	return cmd
}

func printEmployees(items []domain.Actor) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Level", "Department", "Reports To"})
	for _, a := range items {
		reportsTo := ""
		if a.ReportsTo != nil {
			reportsTo = *a.ReportsTo
		}
		tw.AppendRow(table.Row{a.ID, a.Name, a.Level, a.Department, reportsTo})
	}
	tw.Render()
	return nil
}

func goalCmd() *cobra.Command {
	g := &cobra.Command{Use: "goal", Short: "Manage goals"}
	g.AddCommand(goalCreateCmd())
	g.AddCommand(goalListCmd())
	g.AddCommand(goalShowCmd())
	g.AddCommand(goalTreeCmd())
	g.AddCommand(goalDeleteCmd())
	g.AddCommand(goalApproveCmd())
	g.AddCommand(goalStatusCmd())
	return g
}

// parseOutcomeFlag reads "description|unit|annual|q1|q2|q3|q4|owner".
// Trailing parts may be omitted.
func parseOutcomeFlag(s string) engine.OutcomeInput {
	parts := strings.Split(s, "|")
	get := func(i int) string {
		if i < len(parts) {
			return strings.TrimSpace(parts[i])
		}
		return ""
	}
	return engine.OutcomeInput{
		Description:  get(0),
		Unit:         get(1),
		AnnualTarget: get(2),
		Q1Target:     get(3),
		Q2Target:     get(4),
		Q3Target:     get(5),
		Q4Target:     get(6),
		OwnerID:      get(7),
	}
}

func goalCreateCmd() *cobra.Command {
	var in engine.GoalInput
	var level string
	var outcomes []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a goal",
		Example: `  whygo goal create --actor-id e-ceo --level company \
    --goal "Double annual recurring revenue" --why "..." \
    --outcome "New logos|customers|120|30|30|30|30"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Level = domain.GoalLevel(level)
			for _, o := range outcomes {
				in.Outcomes = append(in.Outcomes, parseOutcomeFlag(o))
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				id, err := e.CreateGoal(ctx, actor, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": id})
				}
				fmt.Println(id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.ID, "id", "", "reuse an id from a failed attempt")
	cmd.Flags().StringVar(&level, "level", "", "company, department or individual")
	cmd.Flags().IntVar(&in.Year, "year", 0, "goal year (default from config or current year)")
	cmd.Flags().StringVar(&in.Department, "department", "", "department for department and individual goals")
	cmd.Flags().StringVar(&in.Goal, "goal", "", "goal statement")
	cmd.Flags().StringVar(&in.Why, "why", "", "why the goal matters")
	cmd.Flags().StringVar(&in.ParentGoalID, "parent", "", "parent goal id")
	cmd.Flags().StringArrayVar(&outcomes, "outcome", nil, "outcome row description|unit|annual|q1|q2|q3|q4|owner (repeatable)")
	return cmd
}

func goalListCmd() *cobra.Command {
	var f engine.GoalFilter
	var level, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List goals visible to the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Level = domain.GoalLevel(level)
			f.Status = domain.GoalStatus(status)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				goals, err := e.ListGoals(ctx, actor, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(goals)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Year", "Level", "Department", "Goal", "Owner", "Status", "Approved"})
				for _, g := range goals {
					dept := ""
					if g.Department != nil {
						dept = *g.Department
					}
					tw.AppendRow(table.Row{g.ID, g.Year, g.Level, dept, g.Goal, g.OwnerName, g.Status, g.Approved()})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Year, "year", 0, "year filter")
	cmd.Flags().StringVar(&level, "level", "", "level filter")
	cmd.Flags().StringVar(&f.Department, "department", "", "department filter")
	cmd.Flags().StringVar(&f.OwnerID, "owner", "", "owner filter")
	cmd.Flags().StringVar(&f.ParentGoalID, "parent", "", "parent goal filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func goalShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <goal-id>",
		Short: "Show a goal and its outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				g, err := e.GetGoal(ctx, actor, args[0])
				if err != nil {
					return err
				}
				outcomes, err := e.ListOutcomes(ctx, actor, g.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"goal": g, "outcomes": outcomes})
				}
				fmt.Printf("%s [%s, %d, %s]\n", g.ID, g.Level, g.Year, g.Status)
				fmt.Printf("Goal: %s\nWhy:  %s\nOwner: %s\n", g.Goal, g.Why, g.OwnerName)
				if g.Approved() {
					fmt.Printf("Approved by %s at %s\n", deref(g.ApprovedByName), deref(g.ApprovedAt))
				}
				printOutcomes(outcomes)
				return nil
			})
		},
	}
}

func printOutcomes(outcomes []domain.Outcome) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "ID", "Outcome", "Unit", "Annual", "Q1", "Q2", "Q3", "Q4", "Owner"})
	quarter := func(t domain.Target, actual *float64, status *domain.StatusIndicator) string {
		s := t.String()
		if actual != nil {
			s += " / " + strconv.FormatFloat(*actual, 'f', -1, 64)
		}
		if status != nil {
			s += " " + string(*status)
		}
		return s
	}
	for _, o := range outcomes {
		tw.AppendRow(table.Row{
			o.SortOrder, o.ID, o.Description, o.Unit, o.AnnualTarget.String(),
			quarter(o.Q1Target, o.Q1Actual, o.Q1Status),
			quarter(o.Q2Target, o.Q2Actual, o.Q2Status),
			quarter(o.Q3Target, o.Q3Actual, o.Q3Status),
			quarter(o.Q4Target, o.Q4Actual, o.Q4Status),
			o.OwnerName,
		})
	}
	tw.Render()
}

func goalTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree <goal-id>",
		Short: "Show a goal with the goals beneath it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				root, err := e.GoalTree(ctx, actor, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(root)
				}
				printGoalTree(root, "", true)
				return nil
			})
		},
	}
}

func printGoalTree(n engine.GoalNode, prefix string, last bool) {
	connector := "├── "
	newPrefix := prefix + "│   "
	if last {
		connector = "└── "
		newPrefix = prefix + "    "
	}
	fmt.Printf("%s%s%s %s [%s, %d outcomes]\n", prefix, connector, n.Goal.ID, n.Goal.Goal, n.Goal.Status, len(n.Outcomes))
	for i, c := range n.Children {
		printGoalTree(c, newPrefix, i == len(n.Children)-1)
	}
}

func goalDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <goal-id>",
		Short: "Delete a goal and its outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				if err := e.DeleteGoal(ctx, actor, args[0]); err != nil {
					var cerr engine.CascadeError
					if errors.As(err, &cerr) {
						fmt.Fprintf(os.Stderr, "partial delete, rerun to finish; remaining: %s\n", strings.Join(cerr.Remaining, ", "))
					}
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func goalApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <goal-id>",
		Short: "Approve a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				g, err := e.ApproveGoal(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
}

func goalStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <goal-id> <draft|active|completed|archived>",
		Short: "Move a goal through its lifecycle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				g, err := e.SetGoalStatus(ctx, actor, args[0], domain.GoalStatus(args[1]))
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
}

func outcomeCmd() *cobra.Command {
	o := &cobra.Command{Use: "outcome", Short: "Manage outcomes"}
	o.AddCommand(outcomeUpdateCmd())
	return o
}

func outcomeUpdateCmd() *cobra.Command {
	var description, unit, annual, q1, q2, q3, q4, quarter, actual, status string
	cmd := &cobra.Command{
		Use:   "update <outcome-id>",
		Short: "Edit outcome details or record quarterly progress",
		Long:  "Pass --quarter with --actual and/or --status to record progress; 'null' clears a value. Target flags accept a number or an empty string.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var patch engine.OutcomePatch
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("unit") {
				patch.Unit = &unit
			}
			target := func(name, v string) *domain.Target {
				if !flags.Changed(name) {
					return nil
				}
				t := domain.ParseTarget(v)
				return &t
			}
			patch.AnnualTarget = target("annual", annual)
			patch.Q1Target = target("q1", q1)
			patch.Q2Target = target("q2", q2)
			patch.Q3Target = target("q3", q3)
			patch.Q4Target = target("q4", q4)
			patch.Quarter = strings.ToLower(strings.TrimSpace(quarter))
			if flags.Changed("actual") {
				if strings.EqualFold(actual, "null") {
					patch.Actual = engine.NullFloat()
				} else {
					v, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
					if err != nil {
						return fmt.Errorf("--actual: %w", err)
					}
					patch.Actual = engine.SomeFloat(v)
				}
			}
			if flags.Changed("status") {
				if strings.EqualFold(status, "null") {
					patch.Status = engine.NullStatus()
				} else {
					patch.Status = engine.SomeStatus(domain.StatusIndicator(status))
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				o, err := e.UpdateOutcome(ctx, actor, args[0], patch)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(o)
				}
				printOutcomes([]domain.Outcome{o})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "outcome description")
	cmd.Flags().StringVar(&unit, "unit", "", "unit of measure")
	cmd.Flags().StringVar(&annual, "annual", "", "annual target")
	cmd.Flags().StringVar(&q1, "q1", "", "Q1 target")
	cmd.Flags().StringVar(&q2, "q2", "", "Q2 target")
	cmd.Flags().StringVar(&q3, "q3", "", "Q3 target")
	cmd.Flags().StringVar(&q4, "q4", "", "Q4 target")
	cmd.Flags().StringVar(&quarter, "quarter", "", "q1, q2, q3 or q4")
	cmd.Flags().StringVar(&actual, "actual", "", "quarter actual, or null")
	cmd.Flags().StringVar(&status, "status", "", "+, ~, -, or null")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyRevokeCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var employeeID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for an employee",
		Long:  "The plaintext key is printed once; only its SHA-256 hash is stored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.GetEmployee(ctx, employeeID); err != nil {
					return err
				}
				plain := "wgk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   employeeID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(plain),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				out := map[string]string{"id": key.ID, "employeeId": employeeID, "key": plain}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("API key for %s (store it now, it is not shown again):\n%s\n", employeeID, plain)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee id the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "label")
	_ = cmd.MarkFlagRequired("employee")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var employeeID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, employeeID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Employee", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee filter")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every goal, outcome and roster change, oldest first.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				evts, err := r.ListEvents(ctx, repo.EventFilter{Type: evtType, EntityKind: entityKind, EntityID: entityID})
				if err != nil {
					return err
				}
				if n > 0 && len(evts) > n {
					evts = evts[len(evts)-n:]
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Seq", "TS", "Type", "Entity", "Actor"})
				for _, evt := range evts {
					tw.AppendRow(table.Row{evt.Seq, evt.TS, evt.Type, evt.EntityKind + "/" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var rpm, burst int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("WHYGO_JWT_SECRET is required for bearer auth")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				reg := prometheus.NewRegistry()
				reg.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)
				e.Metrics = engine.NewMetrics(reg)
				handler, err := server.New(server.Config{
					Engine:    e,
					Resolver:  app.ActorResolver{Repo: e.Repo, DevMode: e.Config.DevMode()},
					BasePath:  basePath,
					Auth:      server.AuthConfig{JWTSecret: secret},
					RateLimit: server.RateLimitConfig{RequestsPerMinute: rpm, Burst: burst},
					Gatherer:  reg,
				})
				if err != nil {
					return err
				}
				if d := server.NewWebhookDispatcher(e, nil); d != nil {
					go d.Run(ctx)
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				if e.Config.DevMode() {
					slog.Warn("development mode: actor overrides and dev login are enabled")
				}
				fmt.Printf("Serving WhyGo API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().IntVar(&rpm, "rate-limit", 600, "requests per minute per caller (0 disables)")
	cmd.Flags().IntVar(&burst, "burst", 60, "rate limit burst")
	return cmd
}

// --- helpers ---

func currentActor(ctx context.Context, e engine.Engine) (domain.Actor, error) {
	id := strings.TrimSpace(viper.GetString("actor-id"))
	if id == "" {
		return domain.Actor{}, fmt.Errorf("--actor-id required")
	}
	return app.ActorResolver{Repo: e.Repo}.Resolve(ctx, id, nil)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveConfig(ctx, workspace, r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
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

func optionalString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
