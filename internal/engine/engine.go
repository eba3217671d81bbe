package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"devhub/internal/audit"
	"devhub/internal/config"
	"devhub/internal/dbctx"
	"devhub/internal/domain"
	"devhub/internal/logger"
	"devhub/internal/query"
	"devhub/internal/record"
	"devhub/internal/repo"
	"devhub/internal/stats"
)

// Module names, used for audit events, permissions and routes.
const (
	ModuleStaff             = "staff"
	ModuleApp               = "app"
	ModuleProject           = "project"
	ModuleRelatedApp        = "relatedApps"
	ModuleTimeline          = "timeline"
	ModuleConfig            = "config"
	ModuleTemplate          = "templates"
	ModuleMaterialComponent = "materialComponent"
	ModuleMaterialTemplate  = "materialTemplate"
)

type Engine struct {
	DB     *gorm.DB
	Repo   repo.Repo
	Events audit.Writer
	Config *config.Config
	Log    *logger.Logger
	Now    func() time.Time

	Staff             StaffService
	Apps              *record.Service[domain.App, *domain.App]
	Projects          ProjectService
	RelatedApps       RelatedAppService
	Timelines         TimelineService
	Configs           ConfigService
	Templates         TemplateService
	MaterialComponent *record.Service[domain.MaterialComponent, *domain.MaterialComponent]
	MaterialTemplate  *record.Service[domain.MaterialTemplate, *domain.MaterialTemplate]
}

func New(db *gorm.DB, cfg *config.Config, log *logger.Logger) (*Engine, error) {
	if log == nil {
		log = logger.Nop()
	}
	e := &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Config: cfg,
		Log:    log,
		Now:    time.Now,
	}
	e.Events = audit.Writer{DB: db, Now: e.now}
	opts := func(module string) record.Options {
		return record.Options{Module: module, Audit: e.Events, Log: log, Now: e.now}
	}

	var err error
	if e.Staff.Service, err = record.New[domain.Staff](db, opts(ModuleStaff)); err != nil {
		return nil, err
	}
	if e.Apps, err = record.New[domain.App](db, opts(ModuleApp)); err != nil {
		return nil, err
	}
	if e.Projects.Service, err = record.New[domain.Project](db, opts(ModuleProject)); err != nil {
		return nil, err
	}
	if e.RelatedApps.Service, err = record.New[domain.ProjectRelatedApp](db, opts(ModuleRelatedApp)); err != nil {
		return nil, err
	}
	if e.Timelines.Service, err = record.New[domain.ProjectTimeline](db, opts(ModuleTimeline)); err != nil {
		return nil, err
	}
	if e.Configs.Service, err = record.New[domain.ProjectConfig](db, opts(ModuleConfig)); err != nil {
		return nil, err
	}
	if e.Templates.Service, err = record.New[domain.ProjectTemplate](db, opts(ModuleTemplate)); err != nil {
		return nil, err
	}
	if e.MaterialComponent, err = record.New[domain.MaterialComponent](db, opts(ModuleMaterialComponent)); err != nil {
		return nil, err
	}
	if e.MaterialTemplate, err = record.New[domain.MaterialTemplate](db, opts(ModuleMaterialTemplate)); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &record.ValidationError{Field: field, Reason: "is required"}
	}
	return nil
}

type StaffService struct {
	*record.Service[domain.Staff, *domain.Staff]
}

// CheckEmployeeNo reports whether another staff member already uses no.
func (s StaffService) CheckEmployeeNo(ctx context.Context, no, excludeID string) (bool, error) {
	if err := required("employeeNo", no); err != nil {
		return false, err
	}
	return s.Exists(ctx, "employeeNo", no, excludeID)
}

// CheckEmail reports whether another staff member already uses email.
func (s StaffService) CheckEmail(ctx context.Context, email, excludeID string) (bool, error) {
	if err := required("email", email); err != nil {
		return false, err
	}
	return s.Exists(ctx, "email", email, excludeID)
}

func (s StaffService) SkillsStats(ctx context.Context) ([]stats.SkillStat, error) {
	staff, err := s.ListAll(ctx, query.Criteria{})
	if err != nil {
		return nil, err
	}
	return stats.SkillDistribution(staff), nil
}

type ProjectService struct {
	*record.Service[domain.Project, *domain.Project]
}

// CheckProjectCode reports whether another project already uses code.
func (s ProjectService) CheckProjectCode(ctx context.Context, code, excludeID string) (bool, error) {
	if err := required("projectCode", code); err != nil {
		return false, err
	}
	return s.Exists(ctx, "projectCode", code, excludeID)
}

func (s ProjectService) Statistics(ctx context.Context) (stats.ProjectStatistics, error) {
	projects, err := s.ListAll(ctx, query.Criteria{})
	if err != nil {
		return stats.ProjectStatistics{}, err
	}
	return stats.ProjectSummary(projects), nil
}

type RelatedAppService struct {
	*record.Service[domain.ProjectRelatedApp, *domain.ProjectRelatedApp]
}

func (s RelatedAppService) ListByProjectID(ctx context.Context, projectID string) ([]domain.ProjectRelatedApp, error) {
	if err := required("projectId", projectID); err != nil {
		return nil, err
	}
	return s.ListAll(ctx, query.Exact("projectId", projectID))
}

type TimelineService struct {
	*record.Service[domain.ProjectTimeline, *domain.ProjectTimeline]
}

// ListByProjectID returns the milestones of a project by planned date.
func (s TimelineService) ListByProjectID(ctx context.Context, projectID string) ([]domain.ProjectTimeline, error) {
	if err := required("projectId", projectID); err != nil {
		return nil, err
	}
	return s.ListAll(ctx, query.Exact("projectId", projectID).OrderBy("plannedDate", false))
}

func (s TimelineService) UpdateStatus(ctx context.Context, actor, id string, status domain.MilestoneStatus) error {
	if err := required("id", id); err != nil {
		return err
	}
	if err := required("status", string(status)); err != nil {
		return err
	}
	if !status.Known() || status == domain.MilestoneUnknown {
		return &record.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown value %q", status)}
	}
	return s.Patch(ctx, actor, id, map[string]any{"status": string(status)})
}

type ConfigService struct {
	*record.Service[domain.ProjectConfig, *domain.ProjectConfig]
}

func (s ConfigService) ListByProjectID(ctx context.Context, projectID string) ([]domain.ProjectConfig, error) {
	if err := required("projectId", projectID); err != nil {
		return nil, err
	}
	return s.ListAll(ctx, query.Exact("projectId", projectID).OrderBy("configType", false).OrderBy("sortOrder", false))
}

// ListByType returns the enabled configs of one type.
func (s ConfigService) ListByType(ctx context.Context, configType string) ([]domain.ProjectConfig, error) {
	if err := required("configType", configType); err != nil {
		return nil, err
	}
	c := query.Exact("configType", configType).Where("enabled", query.OpEq, string(domain.Yes)).OrderBy("sortOrder", false)
	return s.ListAll(ctx, c)
}

// Save replaces every config of the project with configs.
func (s ConfigService) Save(ctx context.Context, actor, projectID string, configs []domain.ProjectConfig) (int, error) {
	if err := required("projectId", projectID); err != nil {
		return 0, err
	}
	for i := range configs {
		configs[i].ProjectID = projectID
		if configs[i].Enabled == "" {
			configs[i].Enabled = domain.Yes
		}
	}
	return s.ReplaceWhere(ctx, actor, query.Exact("projectId", projectID), configs)
}

type TemplateService struct {
	*record.Service[domain.ProjectTemplate, *domain.ProjectTemplate]
}

func enabledTemplates() query.Criteria {
	return query.Eq("enabled", string(domain.Yes)).OrderBy("sortOrder", false)
}

func (s TemplateService) Enabled(ctx context.Context) ([]domain.ProjectTemplate, error) {
	return s.ListAll(ctx, enabledTemplates())
}

func (s TemplateService) ListByType(ctx context.Context, templateType string) ([]domain.ProjectTemplate, error) {
	if err := required("templateType", templateType); err != nil {
		return nil, err
	}
	return s.ListAll(ctx, query.Exact("templateType", templateType).Merge(enabledTemplates()))
}

// Detail returns a template and counts the lookup as one use.
func (s TemplateService) Detail(ctx context.Context, id string) (domain.ProjectTemplate, error) {
	if err := required("templateId", id); err != nil {
		return domain.ProjectTemplate{}, err
	}
	var out domain.ProjectTemplate
	err := s.Transaction(ctx, func(dbc dbctx.Context) error {
		n, err := s.Store().UpdateColumns(dbc, id, map[string]any{
			"usage_count": gorm.Expr("COALESCE(usage_count, 0) + 1"),
		})
		if err != nil {
			return err
		}
		if n == 0 {
			return record.ErrNotFound
		}
		tpl, err := s.Store().Get(dbc, id)
		if err != nil {
			return err
		}
		out = *tpl
		return nil
	})
	return out, err
}
