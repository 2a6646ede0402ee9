package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"oversight/internal/app"
	"oversight/internal/config"
	"oversight/internal/db"
	"oversight/internal/domain"
	"oversight/internal/engine"
	"oversight/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ov",
	Short: "Oversight CLI",
	Long: `Oversight tracks municipal construction objects from planning to acceptance.
- Objects: created planned by admin, assigned a contractor and construction control,
  activated once an opening act is approved by control or an inspector.
- Schedules: control changes dates directly; contractor proposals wait for control.
- Work items: status changes are role-gated; violations park the object in
  pending_fixes until supervision approves the contractor's fix.
- Journal: every object has one; violations and contractor responses live there.
- Actor: --actor-id names a directory user; --role overrides the directory role.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("OVERSIGHT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting user id")
	rootCmd.PersistentFlags().String("role", "", "acting role (overrides the directory role)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	for _, name := range []string{"workspace", "json", "actor-id", "role", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(objectCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(workCmd())
	rootCmd.AddCommand(journalCmd())
	rootCmd.AddCommand(violationCmd())
	rootCmd.AddCommand(responseCmd())
	rootCmd.AddCommand(deliveryCmd())
	rootCmd.AddCommand(sampleCmd())
	rootCmd.AddCommand(geofenceCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- config ---

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default oversight.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	c.AddCommand(initCmd)
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Validate oversight.yml or the given file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if len(args) == 1 {
				_, err = config.FromFile(args[0])
			} else {
				_, err = config.Load(viper.GetString("workspace"))
			}
			if err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return c
}

// --- users & credentials ---

func userCmd() *cobra.Command {
	c := &cobra.Command{Use: "user", Short: "Manage the user directory"}
	var opts engine.UserCreateOptions
	var role string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a user (local operator, no role check)",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Role = domain.Role(role)
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				actorID := viper.GetString("actor-id")
				if actorID == "" {
					actorID = "local-operator"
				}
				u, err := ws.Engine.CreateUser(ctx, actorID, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	add.Flags().StringVar(&opts.ID, "id", "", "user id (generated when empty)")
	add.Flags().StringVar(&opts.Login, "login", "", "login")
	add.Flags().StringVar(&opts.DisplayName, "name", "", "display name")
	add.Flags().StringVar(&role, "user-role", "", "admin, control, contractor or inspector")
	add.Flags().StringVar(&opts.Organization, "org", "", "organization")
	c.AddCommand(add)

	var filter string
	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				users, err := ws.Engine.Repo.ListUsers(ctx, domain.Role(filter))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := newTable("ID", "Login", "Name", "Role", "Organization")
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Login, u.DisplayName, u.Role, u.Organization})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&filter, "user-role", "", "role filter")
	c.AddCommand(list)
	return c
}

func apiKeyCmd() *cobra.Command {
	c := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create <user-id>",
		Short: "Issue an API key; the key is printed once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				key, plain, err := ws.Engine.CreateAPIKey(ctx, args[0], name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"id": key.ID, "user_id": key.UserID, "key": plain})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	c.AddCommand(create)
	c.AddCommand(&cobra.Command{
		Use:   "list <user-id>",
		Short: "List a user's keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				keys, err := ws.Engine.Repo.ListAPIKeys(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable("ID", "Name", "Created")
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				return ws.Engine.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	})
	return c
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id|login>",
		Short: "Sign a bearer token for a directory user with OVERSIGHT_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := config.ParseEnv()
			if err != nil {
				return err
			}
			if rt.JWTSecret == "" {
				return errors.New("OVERSIGHT_JWT_SECRET is required")
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				u, err := ws.Engine.Repo.GetUser(ctx, args[0])
				if errors.Is(err, domain.ErrNotFound) {
					u, err = ws.Engine.Repo.GetUserByLogin(ctx, args[0])
				}
				if err != nil {
					return fmt.Errorf("user %s: %w", args[0], err)
				}
				token, err := server.IssueToken(rt.JWTSecret, u.ID, u.Role, ttl)
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for none)")
	return cmd
}

// --- objects ---

func objectCmd() *cobra.Command {
	c := &cobra.Command{Use: "object", Short: "Manage construction objects"}
	c.AddCommand(objectCreateCmd())
	c.AddCommand(objectListCmd())
	c.AddCommand(&cobra.Command{
		Use:   "show <object-id>",
		Short: "Show an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				o, err := ws.Engine.GetObject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "assign-control <object-id> <control-user-id>",
		Short: "Assign construction control to a planned object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				o, err := e.AssignControl(ctx, actor, args[0], args[1])
				return printResult(o, err)
			})
		},
	})
	var contractor, control string
	activate := &cobra.Command{
		Use:   "activate <object-id>",
		Short: "Appoint contractor and control (planned to assigned)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				o, err := e.ActivateWithContractor(ctx, actor, args[0], contractor, control)
				return printResult(o, err)
			})
		},
	}
	activate.Flags().StringVar(&contractor, "contractor", "", "contractor user id")
	activate.Flags().StringVar(&control, "control", "", "construction control user id")
	c.AddCommand(activate)

	var docType string
	attach := &cobra.Command{
		Use:   "attach <object-id> <file>",
		Short: "Upload a document; --type opening_act starts activation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			up, err := readUpload(args[1], docType)
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				o, err := e.AttachObjectDocument(ctx, actor, args[0], up)
				return printResult(o, err)
			})
		},
	}
	attach.Flags().StringVar(&docType, "type", "", "document type")
	c.AddCommand(attach)

	var reject bool
	decide := &cobra.Command{
		Use:   "approve-act <object-id> <document-id>",
		Short: "Approve (or --reject) an opening act",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				o, err := e.ApproveOpeningAct(ctx, actor, args[0], args[1], !reject)
				return printResult(o, err)
			})
		},
	}
	decide.Flags().BoolVar(&reject, "reject", false, "reject instead of approve")
	c.AddCommand(decide)
	return c
}

func objectCreateCmd() *cobra.Command {
	var (
		file      string
		opts      engine.ObjectCreateOptions
		polygon   string
		start     string
		end       string
		workItems []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an object from flags or a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				loaded, err := loadObjectFile(file)
				if err != nil {
					return err
				}
				opts = loaded
			} else {
				pts, err := parsePolygon(polygon)
				if err != nil {
					return err
				}
				opts.Polygon = pts
				if start != "" || end != "" || len(workItems) > 0 {
					opts.Schedule = &engine.ScheduleInput{StartDate: start, EndDate: end}
					for _, raw := range workItems {
						item, err := parseWorkItem(raw)
						if err != nil {
							return err
						}
						opts.Schedule.WorkItems = append(opts.Schedule.WorkItems, item)
					}
				}
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				o, err := e.CreateObject(ctx, actor, opts)
				return printResult(o, err)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML object description")
	cmd.Flags().StringVar(&opts.ID, "id", "", "object id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "object name")
	cmd.Flags().StringVar(&opts.Address, "address", "", "address")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&polygon, "polygon", "", "boundary as lat,lng;lat,lng;lat,lng")
	cmd.Flags().StringVar(&start, "start", "", "schedule start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "schedule end date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&workItems, "work-item", nil, "id:name:unit:amount:start:end (repeatable)")
	return cmd
}

func objectListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List objects visible to the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ListObjects(ctx, actor, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Status", "Control", "Contractor", "Inspector")
				for _, o := range items {
					tw.AppendRow(table.Row{o.ID, o.Name, o.Status,
						e.DisplayName(ctx, o.ControlUserID), e.DisplayName(ctx, o.ContractorUserID), e.DisplayName(ctx, o.InspectorUserID)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

// --- schedules & work items ---

func scheduleCmd() *cobra.Command {
	c := &cobra.Command{Use: "schedule", Short: "Negotiate object and work item dates"}
	var change engine.DateChange
	var item string
	set := &cobra.Command{
		Use:   "set <object-id>",
		Short: "Change dates (control) or propose them (contractor)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				var (
					o   domain.ConstructionObject
					err error
				)
				if item != "" {
					o, err = e.UpdateWorkItemSchedule(ctx, actor, args[0], item, change)
				} else {
					o, err = e.UpdateSchedule(ctx, actor, args[0], change)
				}
				return printResult(o, err)
			})
		},
	}
	set.Flags().StringVar(&change.StartDate, "start", "", "start date; empty keeps the current one")
	set.Flags().StringVar(&change.EndDate, "end", "", "end date; empty keeps the current one")
	set.Flags().StringVar(&item, "work-item", "", "work item id (object schedule when empty)")
	c.AddCommand(set)
	c.AddCommand(resolveCmd("approve", true))
	c.AddCommand(resolveCmd("reject", false))
	return c
}

func resolveCmd(use string, approved bool) *cobra.Command {
	var item string
	cmd := &cobra.Command{
		Use:   use + " <object-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a pending proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				var (
					o   domain.ConstructionObject
					err error
				)
				if item != "" {
					o, err = e.ResolveWorkItemSchedule(ctx, actor, args[0], item, approved)
				} else {
					o, err = e.ResolveSchedule(ctx, actor, args[0], approved)
				}
				return printResult(o, err)
			})
		},
	}
	cmd.Flags().StringVar(&item, "work-item", "", "work item id (object schedule when empty)")
	return cmd
}

func workCmd() *cobra.Command {
	c := &cobra.Command{Use: "work", Short: "Work item status"}
	var pos positionFlags
	status := &cobra.Command{
		Use:   "status <object-id> <work-item-id> <status>",
		Short: "Set a work item status; contractors must pass an on-site --lat/--lng",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos.load(cmd)
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				o, err := setWorkStatus(ctx, e, actor, args[0], args[1], domain.WorkStatus(args[2]), pos)
				return printResult(o, err)
			})
		},
	}
	pos.register(status, "contractor")
	c.AddCommand(status)
	c.AddCommand(&cobra.Command{
		Use:   "list <object-id>",
		Short: "List work items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				o, err := ws.Engine.GetObject(ctx, args[0])
				if err != nil {
					return err
				}
				if o.Schedule == nil {
					return printJSONOrTable([]domain.WorkItem{})
				}
				if viper.GetBool("json") {
					return printJSON(o.Schedule.WorkItems)
				}
				tw := newTable("ID", "Name", "Start", "End", "Status", "Proposed")
				for _, w := range o.Schedule.WorkItems {
					proposed := ""
					if w.Pending != nil {
						proposed = w.Pending.StartDate + " .. " + w.Pending.EndDate
					}
					tw.AppendRow(table.Row{w.ID, w.Name, w.StartDate, w.EndDate, w.Status, proposed})
				}
				tw.Render()
				return nil
			})
		},
	})
	return c
}

// --- journal, violations, responses ---

func journalCmd() *cobra.Command {
	c := &cobra.Command{Use: "journal", Short: "Object journals"}
	c.AddCommand(&cobra.Command{
		Use:   "show <object-id>",
		Short: "Show the object's journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				j, err := ws.Engine.Journal(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "archive <object-id>",
		Short: "Archive the object's journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				j, err := e.ArchiveJournal(ctx, actor, args[0])
				return printResult(j, err)
			})
		},
	})
	return c
}

func violationCmd() *cobra.Command {
	c := &cobra.Command{Use: "violation", Short: "Journal violations"}
	var (
		in    engine.ViolationInput
		fix   string
		vtype string
		days  int
		pos   positionFlags
	)
	raise := &cobra.Command{
		Use:   "raise <object-id>",
		Short: "Raise a violation from an on-site --lat/--lng position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Fixability = domain.Fixability(fix)
			in.Type = domain.ViolationType(vtype)
			if cmd.Flags().Changed("deadline-days") {
				in.FixDeadlineDays = &days
			}
			pos.load(cmd)
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				v, err := raiseViolation(ctx, e, actor, args[0], in, pos)
				return printResult(v, err)
			})
		},
	}
	raise.Flags().StringVar(&in.Name, "name", "", "violation name")
	raise.Flags().StringVar(&in.Category, "category", "", "category")
	raise.Flags().StringVar(&fix, "fixability", string(domain.Fixable), "fixable or non_fixable")
	raise.Flags().StringVar(&vtype, "type", string(domain.ViolationSimple), "simple or severe")
	raise.Flags().IntVar(&days, "deadline-days", 0, "days to fix (config default when unset)")
	pos.register(raise, "inspector")
	c.AddCommand(raise)

	c.AddCommand(&cobra.Command{
		Use:   "list <object-id>",
		Short: "List violations newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.ListViolations(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Type", "Fixability", "Status", "Deadline", "Responses")
				for _, v := range items {
					tw.AppendRow(table.Row{v.ID, v.Name, v.Type, v.Fixability, v.Status, v.FixDeadline, len(v.Responses)})
				}
				tw.Render()
				return nil
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "show <object-id> <violation-id>",
		Short: "Show a violation with responses",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				v, err := ws.Engine.GetViolation(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	})
	var docType string
	attach := &cobra.Command{
		Use:   "attach <object-id> <violation-id> <file>",
		Short: "Attach evidence to a violation",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			up, err := readUpload(args[2], docType)
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				v, err := e.AttachViolationDocument(ctx, actor, args[0], args[1], up)
				return printResult(v, err)
			})
		},
	}
	attach.Flags().StringVar(&docType, "type", "", "document type")
	c.AddCommand(attach)
	return c
}

func responseCmd() *cobra.Command {
	c := &cobra.Command{Use: "response", Short: "Contractor responses to violations"}
	var description string
	create := &cobra.Command{
		Use:   "create <object-id> <violation-id>",
		Short: "Respond to a violation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				r, err := e.CreateResponse(ctx, actor, args[0], args[1], description)
				return printResult(r, err)
			})
		},
	}
	create.Flags().StringVar(&description, "description", "", "what was done")
	c.AddCommand(create)

	c.AddCommand(&cobra.Command{
		Use:   "list <object-id> <violation-id>",
		Short: "List responses newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.ListResponses(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Status", "Description", "Comment", "Created")
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.Status, r.Description, r.ControllerComment, r.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})

	var docType string
	attach := &cobra.Command{
		Use:   "attach <object-id> <violation-id> <response-id> <file>",
		Short: "Attach a file to a response",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			up, err := readUpload(args[3], docType)
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				r, err := e.AttachResponseDocument(ctx, actor, args[0], args[1], args[2], up)
				return printResult(r, err)
			})
		},
	}
	attach.Flags().StringVar(&docType, "type", "", "document type")
	c.AddCommand(attach)
	c.AddCommand(responseStatusCmd("approve", domain.ResponseApproved))
	c.AddCommand(responseStatusCmd("revise", domain.ResponseNeedsRevision))
	return c
}

func responseStatusCmd(use string, status domain.ResponseStatus) *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   use + " <object-id> <violation-id> <response-id>",
		Short: "Mark a response " + string(status),
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				r, err := e.SetResponseStatus(ctx, actor, args[0], args[1], args[2], status, comment)
				return printResult(r, err)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "comment for the contractor")
	return cmd
}

// --- geofence, events, serve ---

// --- delivery notes, lab samples ---

func deliveryCmd() *cobra.Command {
	c := &cobra.Command{Use: "delivery", Short: "Delivery notes (TTN) per work item"}
	var (
		description string
		pos         positionFlags
	)
	create := &cobra.Command{
		Use:   "create <object-id> <work-item-id>",
		Short: "File a delivery note from an on-site --lat/--lng position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos.load(cmd)
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				n, err := createDeliveryNote(ctx, e, actor, args[0], args[1], description, pos)
				return printResult(n, err)
			})
		},
	}
	create.Flags().StringVar(&description, "description", "", "what was delivered")
	pos.register(create, "receiver")
	c.AddCommand(create)

	c.AddCommand(&cobra.Command{
		Use:   "list <object-id> <work-item-id>",
		Short: "List delivery notes newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.ListDeliveryNotes(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Description", "Documents", "Created By", "Created")
				for _, n := range items {
					tw.AppendRow(table.Row{n.ID, n.Description, len(n.Documents), n.CreatedBy, n.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "show <object-id> <work-item-id> <note-id>",
		Short: "Show a delivery note",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				n, err := ws.Engine.GetDeliveryNote(ctx, args[0], args[1], args[2])
				return printResult(n, err)
			})
		},
	})
	var docType string
	attach := &cobra.Command{
		Use:   "attach <object-id> <work-item-id> <note-id> <file>",
		Short: "Attach a waybill or certificate",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			up, err := readUpload(args[3], docType)
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				n, err := e.AttachDeliveryNoteDocument(ctx, actor, args[0], args[1], args[2], up)
				return printResult(n, err)
			})
		},
	}
	attach.Flags().StringVar(&docType, "type", "", "document type")
	c.AddCommand(attach)
	return c
}

func sampleCmd() *cobra.Command {
	c := &cobra.Command{Use: "sample", Short: "Laboratory samples"}
	var material, description string
	create := &cobra.Command{
		Use:   "create <object-id>",
		Short: "Request testing of a material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				s, err := e.CreateLabSample(ctx, actor, args[0], material, description)
				return printResult(s, err)
			})
		},
	}
	create.Flags().StringVar(&material, "material", "", "material name")
	create.Flags().StringVar(&description, "description", "", "what to test")
	c.AddCommand(create)

	c.AddCommand(&cobra.Command{
		Use:   "list <object-id>",
		Short: "List samples newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.ListLabSamples(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Material", "Description", "Status", "Created")
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.MaterialName, s.Description, s.Status, s.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "status <object-id> <sample-id> <status>",
		Short: "Advance a sample (pending, in_progress, completed)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				s, err := e.SetLabSampleStatus(ctx, actor, args[0], args[1], domain.SampleStatus(args[2]))
				return printResult(s, err)
			})
		},
	})
	return c
}

func geofenceCmd() *cobra.Command {
	var lat, lng, accuracy float64
	cmd := &cobra.Command{
		Use:   "geofence <object-id>",
		Short: "Check a position against an object's boundary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				res, err := ws.Engine.CheckPosition(ctx, args[0], positionOf(lat, lng, accuracy, time.Now()))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude")
	cmd.Flags().Float64Var(&accuracy, "accuracy", 0, "accuracy in meters")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	return cmd
}

func logCmd() *cobra.Command {
	c := &cobra.Command{Use: "log", Short: "Event log"}
	var n int
	var objectID, evtType string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				events, err := ws.Engine.Repo.LatestEvents(ctx, eventFilters(objectID, evtType, n))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "Time", "Type", "Object", "Entity", "Actor")
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.ObjectID, e.EntityKind + ":" + e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	tail.Flags().StringVar(&objectID, "object", "", "object filter")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	c.AddCommand(tail)
	return c
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := config.ParseEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				rt.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				rt.BasePath = basePath
			}
			if err := rt.Validate(); err != nil {
				return err
			}
			level := viper.GetString("log-level")
			if level == "" {
				level = rt.LogLevel
			}
			ws, err := app.Open(cmd.Context(), viper.GetString("workspace"), level)
			if err != nil {
				return err
			}
			defer ws.Close()
			handler, err := server.New(server.Config{
				Engine:   ws.Engine,
				BasePath: rt.BasePath,
				Auth:     server.AuthConfig{JWTSecret: rt.JWTSecret, AllowActorHeader: rt.AllowActorHeader},
				Logger:   ws.Logger,
			})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			server.StartWebhookDispatcher(ctx, ws.Engine, ws.Logger)
			srv := &http.Server{Addr: rt.Addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			ws.Logger.Info("serving oversight api", "addr", rt.Addr, "base_path", rt.BasePath, "docs", "/docs")
			if rt.AllowActorHeader {
				ws.Logger.Warn("X-Actor-Id header authentication is enabled; do not use in production")
			}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (overrides OVERSIGHT_ADDR)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path (overrides OVERSIGHT_BASE_PATH)")
	return cmd
}

// --- helpers ---

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := app.Open(ctx, viper.GetString("workspace"), viper.GetString("log-level"))
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func withActor(ctx context.Context, fn func(context.Context, engine.Engine, domain.Actor) error) error {
	return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
		actor, err := app.ResolveActor(ctx, ws.Engine.Users, viper.GetString("actor-id"), viper.GetString("role"))
		if err != nil {
			return err
		}
		return fn(ctx, ws.Engine, actor)
	})
}

func printResult(v any, err error) error {
	if err != nil {
		return err
	}
	return printJSONOrTable(v)
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

func newTable(headers ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(headers))
	return tw
}
