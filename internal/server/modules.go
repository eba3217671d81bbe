package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"devhub/internal/domain"
	"devhub/internal/engine"
	"devhub/internal/stats"
)

// Records is a JSON array of records. It keeps list schemas apart from single-record ones.
type Records[T any] []T

func records[T any](in []T) *resultOutput[Records[T]] {
	return ok(Records[T](nonNilSlice(in)))
}

func (s *server) registerModules(api huma.API) {
	e := s.eng
	registerCRUD(api, s, resource[domain.Staff, *domain.Staff]{
		module: engine.ModuleStaff, prefix: "/staff", title: "Staff", svc: e.Staff.Service,
	})
	registerCRUD(api, s, resource[domain.App, *domain.App]{
		module: engine.ModuleApp, prefix: "/app", title: "Apps", svc: e.Apps,
	})
	registerCRUD(api, s, resource[domain.Project, *domain.Project]{
		module: engine.ModuleProject, prefix: "/project", title: "Projects", svc: e.Projects.Service,
	})
	registerCRUD(api, s, resource[domain.ProjectRelatedApp, *domain.ProjectRelatedApp]{
		module: engine.ModuleRelatedApp, prefix: "/project/relatedApps", title: "Project Related Apps", svc: e.RelatedApps.Service,
	})
	registerCRUD(api, s, resource[domain.ProjectTimeline, *domain.ProjectTimeline]{
		module: engine.ModuleTimeline, prefix: "/project/timeline", title: "Project Timeline", svc: e.Timelines.Service,
	})
	registerCRUD(api, s, resource[domain.ProjectConfig, *domain.ProjectConfig]{
		module: engine.ModuleConfig, prefix: "/project/config", title: "Project Config", svc: e.Configs.Service,
	})
	registerCRUD(api, s, resource[domain.ProjectTemplate, *domain.ProjectTemplate]{
		module: engine.ModuleTemplate, prefix: "/project/templates", title: "Project Templates", svc: e.Templates.Service,
	})
	registerCRUD(api, s, resource[domain.MaterialComponent, *domain.MaterialComponent]{
		module: engine.ModuleMaterialComponent, prefix: "/material/component", title: "Material Components", svc: e.MaterialComponent,
	})
	registerCRUD(api, s, resource[domain.MaterialTemplate, *domain.MaterialTemplate]{
		module: engine.ModuleMaterialTemplate, prefix: "/material/template", title: "Material Templates", svc: e.MaterialTemplate,
	})

	s.registerStaffExtras(api)
	s.registerProjectExtras(api)
	s.registerTimelineExtras(api)
	s.registerConfigExtras(api)
	s.registerTemplateExtras(api)
}

func extra(module, name, method, path, summary string) huma.Operation {
	return huma.Operation{
		OperationID: module + "-" + name,
		Method:      method,
		Path:        path,
		Summary:     summary,
		Tags:        []string{module},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}
}

func (s *server) registerStaffExtras(api huma.API) {
	staff := s.eng.Staff
	huma.Register(api, extra(engine.ModuleStaff, "checkEmployeeNo", http.MethodGet, "/staff/checkEmployeeNo", "Check whether an employee number is taken"),
		func(ctx context.Context, input *struct {
			EmployeeNo string `query:"employeeNo"`
			ID         string `query:"id" doc:"record to exclude from the check"`
		}) (*resultOutput[bool], error) {
			if _, err := s.require(ctx, engine.ModuleStaff, "checkEmployeeNo"); err != nil {
				return nil, s.handleError(err)
			}
			exists, err := staff.CheckEmployeeNo(ctx, input.EmployeeNo, input.ID)
			if err != nil {
				return nil, s.handleError(err)
			}
			return ok(exists), nil
		})

	huma.Register(api, extra(engine.ModuleStaff, "checkEmail", http.MethodGet, "/staff/checkEmail", "Check whether an email is taken"),
		func(ctx context.Context, input *struct {
			Email string `query:"email"`
			ID    string `query:"id" doc:"record to exclude from the check"`
		}) (*resultOutput[bool], error) {
			if _, err := s.require(ctx, engine.ModuleStaff, "checkEmail"); err != nil {
				return nil, s.handleError(err)
			}
			exists, err := staff.CheckEmail(ctx, input.Email, input.ID)
			if err != nil {
				return nil, s.handleError(err)
			}
			return ok(exists), nil
		})

	huma.Register(api, extra(engine.ModuleStaff, "skillsStats", http.MethodGet, "/staff/skillsStats", "Skill distribution across staff"),
		func(ctx context.Context, _ *struct{}) (*resultOutput[Records[stats.SkillStat]], error) {
			if _, err := s.require(ctx, engine.ModuleStaff, "skillsStats"); err != nil {
				return nil, s.handleError(err)
			}
			out, err := staff.SkillsStats(ctx)
			if err != nil {
				return nil, s.handleError(err)
			}
			return records(out), nil
		})
}

func (s *server) registerProjectExtras(api huma.API) {
	projects := s.eng.Projects
	huma.Register(api, extra(engine.ModuleProject, "statistics", http.MethodGet, "/project/statistics", "Project portfolio statistics"),
		func(ctx context.Context, _ *struct{}) (*resultOutput[stats.ProjectStatistics], error) {
			if _, err := s.require(ctx, engine.ModuleProject, "statistics"); err != nil {
				return nil, s.handleError(err)
			}
			out, err := projects.Statistics(ctx)
			if err != nil {
				return nil, s.handleError(err)
			}
			return ok(out), nil
		})

	huma.Register(api, extra(engine.ModuleProject, "checkProjectCode", http.MethodGet, "/project/checkProjectCode", "Check whether a project code is taken"),
		func(ctx context.Context, input *struct {
			ProjectCode string `query:"projectCode"`
			ID          string `query:"id" doc:"record to exclude from the check"`
		}) (*resultOutput[bool], error) {
			if _, err := s.require(ctx, engine.ModuleProject, "checkProjectCode"); err != nil {
				return nil, s.handleError(err)
			}
			exists, err := projects.CheckProjectCode(ctx, input.ProjectCode, input.ID)
			if err != nil {
				return nil, s.handleError(err)
			}
			return ok(exists), nil
		})

	apps := s.eng.RelatedApps
	huma.Register(api, extra(engine.ModuleRelatedApp, "listByProjectId", http.MethodGet, "/project/relatedApps/listByProjectId", "Apps related to a project"),
		func(ctx context.Context, input *projectIDInput) (*resultOutput[Records[domain.ProjectRelatedApp]], error) {
			if _, err := s.require(ctx, engine.ModuleRelatedApp, "list"); err != nil {
				return nil, s.handleError(err)
			}
			out, err := apps.ListByProjectID(ctx, input.ProjectID)
			if err != nil {
				return nil, s.handleError(err)
			}
			return records(out), nil
		})
}

type projectIDInput struct {
	ProjectID string `query:"projectId"`
}

func (s *server) registerTimelineExtras(api huma.API) {
	timelines := s.eng.Timelines
	huma.Register(api, extra(engine.ModuleTimeline, "listByProjectId", http.MethodGet, "/project/timeline/listByProjectId", "Milestones of a project by planned date"),
		func(ctx context.Context, input *projectIDInput) (*resultOutput[Records[domain.ProjectTimeline]], error) {
			if _, err := s.require(ctx, engine.ModuleTimeline, "list"); err != nil {
				return nil, s.handleError(err)
			}
			out, err := timelines.ListByProjectID(ctx, input.ProjectID)
			if err != nil {
				return nil, s.handleError(err)
			}
			return records(out), nil
		})

	huma.Register(api, extra(engine.ModuleTimeline, "updateStatus", http.MethodPut, "/project/timeline/updateStatus", "Set the status of a milestone"),
		func(ctx context.Context, input *struct {
			ID     string `query:"id"`
			Status string `query:"status"`
		}) (*resultOutput[string], error) {
			p, err := s.require(ctx, engine.ModuleTimeline, "edit")
			if err != nil {
				return nil, s.handleError(err)
			}
			if err := timelines.UpdateStatus(ctx, p.ActorID, input.ID, domain.MilestoneStatus(input.Status)); err != nil {
				return nil, s.handleError(err)
			}
			return okMessage("status updated"), nil
		})
}

func (s *server) registerConfigExtras(api huma.API) {
	configs := s.eng.Configs
	huma.Register(api, extra(engine.ModuleConfig, "listByProjectId", http.MethodGet, "/project/config/listByProjectId", "Configs of a project"),
		func(ctx context.Context, input *projectIDInput) (*resultOutput[Records[domain.ProjectConfig]], error) {
			if _, err := s.require(ctx, engine.ModuleConfig, "list"); err != nil {
				return nil, s.handleError(err)
			}
			out, err := configs.ListByProjectID(ctx, input.ProjectID)
			if err != nil {
				return nil, s.handleError(err)
			}
			return records(out), nil
		})

	huma.Register(api, extra(engine.ModuleConfig, "listByType", http.MethodGet, "/project/config/listByType", "Enabled configs of one type"),
		func(ctx context.Context, input *struct {
			ConfigType string `query:"configType"`
		}) (*resultOutput[Records[domain.ProjectConfig]], error) {
			if _, err := s.require(ctx, engine.ModuleConfig, "list"); err != nil {
				return nil, s.handleError(err)
			}
			out, err := configs.ListByType(ctx, input.ConfigType)
			if err != nil {
				return nil, s.handleError(err)
			}
			return records(out), nil
		})

	huma.Register(api, extra(engine.ModuleConfig, "save", http.MethodPost, "/project/config/save", "Replace the configs of a project"),
		func(ctx context.Context, input *struct {
			ProjectID string `query:"projectId"`
			Body      []domain.ProjectConfig
		}) (*resultOutput[int], error) {
			p, err := s.require(ctx, engine.ModuleConfig, "save")
			if err != nil {
				return nil, s.handleError(err)
			}
			n, err := configs.Save(ctx, p.ActorID, input.ProjectID, input.Body)
			if err != nil {
				return nil, s.handleError(err)
			}
			return &resultOutput[int]{Body: Result[int]{Message: "save succeeded", Data: n}}, nil
		})
}

func (s *server) registerTemplateExtras(api huma.API) {
	templates := s.eng.Templates
	huma.Register(api, extra(engine.ModuleTemplate, "enabled", http.MethodGet, "/project/templates/enabled", "Enabled templates by sort order"),
		func(ctx context.Context, _ *struct{}) (*resultOutput[Records[domain.ProjectTemplate]], error) {
			if _, err := s.require(ctx, engine.ModuleTemplate, "list"); err != nil {
				return nil, s.handleError(err)
			}
			out, err := templates.Enabled(ctx)
			if err != nil {
				return nil, s.handleError(err)
			}
			return records(out), nil
		})

	huma.Register(api, extra(engine.ModuleTemplate, "listByType", http.MethodGet, "/project/templates/listByType", "Enabled templates of one type"),
		func(ctx context.Context, input *struct {
			TemplateType string `query:"templateType"`
		}) (*resultOutput[Records[domain.ProjectTemplate]], error) {
			if _, err := s.require(ctx, engine.ModuleTemplate, "list"); err != nil {
				return nil, s.handleError(err)
			}
			out, err := templates.ListByType(ctx, input.TemplateType)
			if err != nil {
				return nil, s.handleError(err)
			}
			return records(out), nil
		})

	huma.Register(api, extra(engine.ModuleTemplate, "detail", http.MethodGet, "/project/templates/detail", "Template detail; counts one use"),
		func(ctx context.Context, input *struct {
			TemplateID string `query:"templateId"`
		}) (*resultOutput[domain.ProjectTemplate], error) {
			if _, err := s.require(ctx, engine.ModuleTemplate, "queryById"); err != nil {
				return nil, s.handleError(err)
			}
			tpl, err := templates.Detail(ctx, input.TemplateID)
			if err != nil {
				return nil, s.handleError(err)
			}
			return ok(tpl), nil
		})
}
