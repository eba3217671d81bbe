package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"devhub/internal/app"
	"devhub/internal/domain"
	"devhub/internal/engine"
	"devhub/internal/query"
	"devhub/internal/record"
	"devhub/internal/sheet"
)

// module describes how the CLI reaches one record service.
type module[T any, PT record.Entity[T]] struct {
	use     string
	short   string
	title   string
	columns []string
	service func(e *engine.Engine) *record.Service[T, PT]
}

func recordCommands[T any, PT record.Entity[T]](m module[T, PT]) *cobra.Command {
	cmd := &cobra.Command{Use: m.use, Short: m.short}
	cmd.AddCommand(recordListCmd(m))
	cmd.AddCommand(recordShowCmd(m))
	cmd.AddCommand(recordDeleteCmd(m))
	cmd.AddCommand(recordImportCmd(m))
	cmd.AddCommand(recordExportCmd(m))
	return cmd
}

// criteria combines --where (a JSON example record; "*" in strings matches anything) with
// --filter key=value pairs using the same names and suffixes as the HTTP list route.
func criteria[T any, PT record.Entity[T]](svc *record.Service[T, PT], where string, filters []string) (query.Criteria, error) {
	var c query.Criteria
	if strings.TrimSpace(where) != "" {
		var example T
		if err := json.Unmarshal([]byte(where), &example); err != nil {
			return c, fmt.Errorf("invalid --where: %w", err)
		}
		c = svc.Schema().FromExample(&example)
	}
	params := url.Values{}
	for _, f := range filters {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			return c, fmt.Errorf("invalid --filter %q, want key=value", f)
		}
		params.Add(strings.TrimSpace(k), v)
	}
	return c.Merge(svc.Schema().FromParams(params)), nil
}

func recordListCmd[T any, PT record.Entity[T]](m module[T, PT]) *cobra.Command {
	var page, size int
	var where string
	var filters []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List " + m.title,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				svc := m.service(rt.Engine)
				c, err := criteria(svc, where, filters)
				if err != nil {
					return err
				}
				out, err := svc.List(ctx, c, page, size)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				if err := printRecords(out.Records, m.columns); err != nil {
					return err
				}
				fmt.Printf("page %d/%d, %d total\n", out.Current, out.Pages, out.Total)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&size, "page-size", record.DefaultPageSize, "page size")
	cmd.Flags().StringVar(&where, "where", "", `example record as JSON, e.g. '{"name":"An*"}'`)
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "field filter key=value, e.g. createTime_begin=2024-01-01 (repeatable)")
	return cmd
}

func recordShowCmd[T any, PT record.Entity[T]](m module[T, PT]) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				rec, err := m.service(rt.Engine).GetByID(ctx, args[0])
				if err != nil {
					return err
				}
				found, ok := rec.Get()
				if !ok {
					return fmt.Errorf("%s %s: %w", m.use, args[0], record.ErrNotFound)
				}
				return printJSON(found)
			})
		},
	}
}

func recordDeleteCmd[T any, PT record.Entity[T]](m module[T, PT]) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>[,<id>...]",
		Short: "Delete records by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := lo.FlatMap(args, func(a string, _ int) []string { return query.SplitIDs(a) })
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := m.service(rt.Engine).DeleteMany(ctx, actorID(), ids); err != nil {
					return err
				}
				fmt.Printf("deleted %d id(s)\n", len(ids))
				return nil
			})
		},
	}
}

func recordImportCmd[T any, PT record.Entity[T]](m module[T, PT]) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Import records from a workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			rows, err := sheet.Import[T](f)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				n, err := m.service(rt.Engine).Import(ctx, actorID(), rows)
				if err != nil {
					return err
				}
				fmt.Printf("file import succeeded, rows: %d\n", n)
				return nil
			})
		},
	}
}

func recordExportCmd[T any, PT record.Entity[T]](m module[T, PT]) *cobra.Command {
	var where string
	var filters []string
	cmd := &cobra.Command{
		Use:   "export <file.xlsx>",
		Short: "Export records to a workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				svc := m.service(rt.Engine)
				c, err := criteria(svc, where, filters)
				if err != nil {
					return err
				}
				rows, err := svc.Export(ctx, c)
				if err != nil {
					return err
				}
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				if err := sheet.Export(f, m.title, actorID(), rows); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Printf("exported %d row(s) to %s\n", len(rows), args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&where, "where", "", "example record as JSON")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "field filter key=value (repeatable)")
	return cmd
}

// printRecords renders the named JSON fields of each record as a table.
func printRecords[T any](rows []T, columns []string) error {
	tw := newTable(lo.ToAnySlice(columns)...)
	for _, r := range rows {
		b, err := json.Marshal(r)
		if err != nil {
			return err
		}
		var fields map[string]any
		if err := json.Unmarshal(b, &fields); err != nil {
			return err
		}
		tw.AppendRow(lo.Map(columns, func(c string, _ int) any {
			if v, ok := fields[c]; ok {
				return v
			}
			return ""
		}))
	}
	tw.Render()
	return nil
}

var (
	staffModule = module[domain.Staff, *domain.Staff]{
		use: "staff", short: "Manage staff", title: "Staff",
		columns: []string{"id", "name", "employeeNo", "email", "skills", "status"},
		service: func(e *engine.Engine) *record.Service[domain.Staff, *domain.Staff] { return e.Staff.Service },
	}
	appModule = module[domain.App, *domain.App]{
		use: "app", short: "Manage applications", title: "Apps",
		columns: []string{"id", "appName", "domain", "managers", "status"},
		service: func(e *engine.Engine) *record.Service[domain.App, *domain.App] { return e.Apps },
	}
	projectModule = module[domain.Project, *domain.Project]{
		use: "project", short: "Manage projects", title: "Projects",
		columns: []string{"id", "projectCode", "projectName", "status", "priority", "progress"},
		service: func(e *engine.Engine) *record.Service[domain.Project, *domain.Project] { return e.Projects.Service },
	}
	relatedAppModule = module[domain.ProjectRelatedApp, *domain.ProjectRelatedApp]{
		use: "related-apps", short: "Manage apps related to projects", title: "Project Related Apps",
		columns: []string{"id", "projectId", "appName", "appType", "status"},
		service: func(e *engine.Engine) *record.Service[domain.ProjectRelatedApp, *domain.ProjectRelatedApp] {
			return e.RelatedApps.Service
		},
	}
	timelineModule = module[domain.ProjectTimeline, *domain.ProjectTimeline]{
		use: "timeline", short: "Manage project milestones", title: "Project Timeline",
		columns: []string{"id", "projectId", "milestoneName", "plannedDate", "status"},
		service: func(e *engine.Engine) *record.Service[domain.ProjectTimeline, *domain.ProjectTimeline] {
			return e.Timelines.Service
		},
	}
	configModule = module[domain.ProjectConfig, *domain.ProjectConfig]{
		use: "config", short: "Manage project configs", title: "Project Config",
		columns: []string{"id", "projectId", "configType", "configKey", "enabled", "sortOrder"},
		service: func(e *engine.Engine) *record.Service[domain.ProjectConfig, *domain.ProjectConfig] {
			return e.Configs.Service
		},
	}
	templateModule = module[domain.ProjectTemplate, *domain.ProjectTemplate]{
		use: "templates", short: "Manage project templates", title: "Project Templates",
		columns: []string{"id", "templateName", "templateType", "enabled", "usageCount"},
		service: func(e *engine.Engine) *record.Service[domain.ProjectTemplate, *domain.ProjectTemplate] {
			return e.Templates.Service
		},
	}
	componentModule = module[domain.MaterialComponent, *domain.MaterialComponent]{
		use: "component", short: "Manage material components", title: "Material Components",
		columns: []string{"id", "name", "type", "version", "status"},
		service: func(e *engine.Engine) *record.Service[domain.MaterialComponent, *domain.MaterialComponent] {
			return e.MaterialComponent
		},
	}
	materialTemplateModule = module[domain.MaterialTemplate, *domain.MaterialTemplate]{
		use: "template", short: "Manage material templates", title: "Material Templates",
		columns: []string{"id", "name", "type", "version", "status"},
		service: func(e *engine.Engine) *record.Service[domain.MaterialTemplate, *domain.MaterialTemplate] {
			return e.MaterialTemplate
		},
	}
)

func staffCmd() *cobra.Command {
	cmd := recordCommands(staffModule)
	cmd.AddCommand(staffCheckCmd("check-employee-no", "employeeNo", func(ctx context.Context, e *engine.Engine, v, exclude string) (bool, error) {
		return e.Staff.CheckEmployeeNo(ctx, v, exclude)
	}))
	cmd.AddCommand(staffCheckCmd("check-email", "email", func(ctx context.Context, e *engine.Engine, v, exclude string) (bool, error) {
		return e.Staff.CheckEmail(ctx, v, exclude)
	}))
	cmd.AddCommand(&cobra.Command{
		Use:   "skills",
		Short: "Skill distribution across staff",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				out, err := rt.Engine.Staff.SkillsStats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				tw := newTable("Skill", "Count", "Percentage")
				for _, s := range out {
					tw.AppendRow(table.Row{s.Skill, s.Count, fmt.Sprintf("%.2f%%", s.Percentage)})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func staffCheckCmd(use, field string, check func(context.Context, *engine.Engine, string, string) (bool, error)) *cobra.Command {
	var exclude string
	cmd := &cobra.Command{
		Use:   use + " <value>",
		Short: "Report whether " + field + " is already taken",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				exists, err := check(ctx, rt.Engine, args[0], exclude)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]bool{"exists": exists})
				}
				if exists {
					fmt.Printf("%s %q is taken\n", field, args[0])
				} else {
					fmt.Printf("%s %q is free\n", field, args[0])
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&exclude, "exclude", "", "id of the record being edited")
	return cmd
}

func appCmd() *cobra.Command {
	return recordCommands(appModule)
}

func projectCmd() *cobra.Command {
	cmd := recordCommands(projectModule)
	cmd.AddCommand(projectStatsCmd())
	cmd.AddCommand(recordCommands(relatedAppModule))
	cmd.AddCommand(recordCommands(timelineModule))
	cmd.AddCommand(recordCommands(configModule))
	cmd.AddCommand(recordCommands(templateModule))
	return cmd
}

func projectStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Project portfolio statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				st, err := rt.Engine.Projects.Statistics(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				tw := newTable("Metric", "Value")
				tw.AppendRows([]table.Row{
					{"Total projects", st.TotalProjects},
					{"Active", st.ActiveProjects},
					{"Completed", st.CompletedProjects},
					{"Planning", st.PlanningProjects},
					{"Average progress", fmt.Sprintf("%d%%", st.AvgProgress)},
					{"Estimated hours", st.TotalEstimatedHours},
					{"Actual hours", st.TotalActualHours},
					{"On time", fmt.Sprintf("%d%%", st.OnTimeRate)},
					{"Delayed", fmt.Sprintf("%d%%", st.DelayedRate)},
				})
				tw.Render()
				return nil
			})
		},
	}
}

func materialCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "material", Short: "Manage material components and templates"}
	cmd.AddCommand(recordCommands(componentModule))
	cmd.AddCommand(recordCommands(materialTemplateModule))
	return cmd
}
