package domain

import (
	"time"

	"gorm.io/gorm"
)

// Base carries the identity and audit columns shared by every record.
type Base struct {
	ID         string     `gorm:"primaryKey;size:64" json:"id,omitempty"`
	CreateBy   string     `gorm:"size:64" json:"createBy,omitempty"`
	CreateTime *time.Time `json:"createTime,omitempty"`
	UpdateBy   string     `gorm:"size:64" json:"updateBy,omitempty"`
	UpdateTime *time.Time `json:"updateTime,omitempty"`
}

// Meta exposes the embedded Base to generic code.
func (b *Base) Meta() *Base { return b }

// Validator is implemented by records whose enumerated fields must be checked on write.
type Validator interface {
	Validate() error
}

// UnknownClearer is implemented by records with enumerated fields. ClearUnknown empties
// every field holding an Unknown variant before the record is written.
type UnknownClearer interface {
	ClearUnknown()
}

// Staff is a team member.
type Staff struct {
	Base
	Name         string      `gorm:"size:100" json:"name,omitempty" excel:"Name,width=15"`
	EmployeeNo   string      `gorm:"size:64;index" json:"employeeNo,omitempty" excel:"Employee No,width=15"`
	Email        string      `gorm:"size:128;index" json:"email,omitempty" excel:"Email,width=25"`
	Phone        string      `gorm:"size:32" json:"phone,omitempty" excel:"Phone,width=15"`
	HireDate     *time.Time  `json:"hireDate,omitempty" excel:"Hire Date,width=15,format=date"`
	WorkLocation string      `gorm:"size:128" json:"workLocation,omitempty" excel:"Work Location,width=20"`
	Skills       string      `gorm:"size:512" json:"skills,omitempty" excel:"Skills,width=30"`
	Status       *StaffState `json:"status,omitempty" excel:"Status,width=10"`
	Remark       string      `gorm:"size:512" json:"remark,omitempty" excel:"Remark,width=30"`
}

func (Staff) TableName() string { return "sys_staff" }

func (s *Staff) AfterFind(*gorm.DB) error {
	s.Status = normalizePtr(s.Status, StaffUnknown)
	return nil
}

func (s *Staff) ClearUnknown() { s.Status = withoutUnknownPtr(s.Status, StaffUnknown) }

func (s Staff) Validate() error {
	if s.Status != nil {
		return checkEnum("status", s.Status.Known(), s.Status.String())
	}
	return nil
}

// App is a managed application.
type App struct {
	Base
	AppName        string       `gorm:"size:128" json:"appName,omitempty" excel:"App Name,width=20"`
	AppDescription string       `gorm:"size:512" json:"appDescription,omitempty" excel:"Description,width=30"`
	GitURL         string       `gorm:"column:git_url;size:255" json:"gitUrl,omitempty" excel:"Git URL,width=30"`
	Domain         string       `gorm:"size:255" json:"domain,omitempty" excel:"Domain,width=25"`
	Managers       string       `gorm:"size:255" json:"managers,omitempty" excel:"Managers,width=20"`
	Status         *EnableState `json:"status,omitempty" excel:"Status,width=10"`
}

func (App) TableName() string { return "app_manage" }

func (a *App) AfterFind(*gorm.DB) error {
	a.Status = normalizePtr(a.Status, EnableUnknown)
	return nil
}

func (a *App) ClearUnknown() { a.Status = withoutUnknownPtr(a.Status, EnableUnknown) }

func (a App) Validate() error {
	if a.Status != nil {
		return checkEnum("status", a.Status.Known(), a.Status.String())
	}
	return nil
}

// Project is a delivery project.
type Project struct {
	Base
	ProjectName        string           `gorm:"size:128" json:"projectName,omitempty" excel:"Project Name,width=20"`
	ProjectCode        string           `gorm:"size:64;index" json:"projectCode,omitempty" excel:"Project Code,width=20"`
	ProjectDescription string           `gorm:"size:1024" json:"projectDescription,omitempty" excel:"Description,width=30"`
	ProjectType        ProjectType      `gorm:"size:32" json:"projectType,omitempty" excel:"Type,width=15"`
	Status             ProjectStatus    `gorm:"size:32;index" json:"status,omitempty" excel:"Status,width=15"`
	Priority           Priority         `gorm:"size:16" json:"priority,omitempty" excel:"Priority,width=10"`
	TaskType           TaskType         `gorm:"size:32" json:"taskType,omitempty" excel:"Task Type,width=15"`
	RequirementID      string           `gorm:"column:requirement_id;size:64" json:"requirementId,omitempty" excel:"Requirement ID,width=15"`
	BugID              string           `gorm:"column:bug_id;size:64" json:"bugId,omitempty" excel:"Bug ID,width=15"`
	ZentaoURL          string           `gorm:"column:zentao_url;size:255" json:"zentaoUrl,omitempty"`
	UIDesignURL        string           `gorm:"column:ui_design_url;size:255" json:"uiDesignUrl,omitempty"`
	PrototypeURL       string           `gorm:"column:prototype_url;size:255" json:"prototypeUrl,omitempty"`
	DesignDocURL       string           `gorm:"column:design_doc_url;size:255" json:"designDocUrl,omitempty"`
	BranchCreateMode   BranchCreateMode `gorm:"size:16" json:"branchCreateMode,omitempty" excel:"Branch Mode,width=15"`
	DevelopmentMode    DevelopmentMode  `gorm:"size:8" json:"developmentMode,omitempty" excel:"Development Mode,width=10"`
	TemplateID         string           `gorm:"column:template_id;size:64" json:"templateId,omitempty"`
	ConfigData         string           `gorm:"type:text" json:"configData,omitempty"`
	StartDate          *time.Time       `json:"startDate,omitempty" excel:"Start Date,width=15,format=date"`
	TestDate           *time.Time       `json:"testDate,omitempty" excel:"Test Date,width=15,format=date"`
	OnlineDate         *time.Time       `json:"onlineDate,omitempty" excel:"Online Date,width=15,format=date"`
	ReleaseDate        *time.Time       `json:"releaseDate,omitempty" excel:"Release Date,width=15,format=date"`
	EndDate            *time.Time       `json:"endDate,omitempty" excel:"End Date,width=15,format=date"`
	ProjectManager     string           `gorm:"size:64" json:"projectManager,omitempty" excel:"Manager,width=15"`
	ProjectManagerText string           `gorm:"size:128" json:"projectManagerText,omitempty"`
	TeamMembers        string           `gorm:"size:512" json:"teamMembers,omitempty"`
	TeamMembersText    string           `gorm:"size:512" json:"teamMembersText,omitempty"`
	GitURL             string           `gorm:"column:git_url;size:255" json:"gitUrl,omitempty" excel:"Git URL,width=30"`
	GitBranch          string           `gorm:"size:128" json:"gitBranch,omitempty" excel:"Git Branch,width=15"`
	Version            string           `gorm:"size:32" json:"version,omitempty" excel:"Version,width=15"`
	Progress           *int             `json:"progress,omitempty" excel:"Progress,width=10"`
	EstimatedHours     *int             `json:"estimatedHours,omitempty" excel:"Estimated Hours,width=15"`
	ActualHours        *int             `json:"actualHours,omitempty" excel:"Actual Hours,width=15"`
	TechStack          string           `gorm:"size:255" json:"techStack,omitempty"`
	TechStackText      string           `gorm:"size:255" json:"techStackText,omitempty"`
	Environment        string           `gorm:"type:text" json:"environment,omitempty"`
}

func (Project) TableName() string { return "project" }

func (p *Project) AfterFind(*gorm.DB) error {
	p.ProjectType = p.ProjectType.Normalize()
	p.Status = p.Status.Normalize()
	p.Priority = p.Priority.Normalize()
	p.TaskType = p.TaskType.Normalize()
	p.BranchCreateMode = p.BranchCreateMode.Normalize()
	p.DevelopmentMode = p.DevelopmentMode.Normalize()
	return nil
}

func (p *Project) ClearUnknown() {
	p.ProjectType = withoutUnknown(p.ProjectType, ProjectTypeUnknown)
	p.Status = withoutUnknown(p.Status, ProjectUnknown)
	p.Priority = withoutUnknown(p.Priority, PriorityUnknown)
	p.TaskType = withoutUnknown(p.TaskType, TaskUnknown)
	p.BranchCreateMode = withoutUnknown(p.BranchCreateMode, BranchUnknown)
	p.DevelopmentMode = withoutUnknown(p.DevelopmentMode, DevelopmentUnknown)
}

func (p Project) Validate() error {
	checks := []struct {
		field string
		known bool
		value string
	}{
		{"projectType", p.ProjectType.Known(), string(p.ProjectType)},
		{"status", p.Status.Known(), string(p.Status)},
		{"priority", p.Priority.Known(), string(p.Priority)},
		{"taskType", p.TaskType.Known(), string(p.TaskType)},
		{"branchCreateMode", p.BranchCreateMode.Known(), string(p.BranchCreateMode)},
		{"developmentMode", p.DevelopmentMode.Known(), string(p.DevelopmentMode)},
	}
	for _, c := range checks {
		if err := checkEnum(c.field, c.known, c.value); err != nil {
			return err
		}
	}
	if p.Progress != nil && (*p.Progress < 0 || *p.Progress > 100) {
		return &EnumError{Field: "progress", Value: itoa(*p.Progress), Reason: "must be between 0 and 100"}
	}
	return nil
}

// ProjectRelatedApp links an application to a project.
type ProjectRelatedApp struct {
	Base
	ProjectID     string    `gorm:"column:project_id;size:64;index" json:"projectId,omitempty" excel:"Project ID,width=20"`
	AppName       string    `gorm:"size:128" json:"appName,omitempty" excel:"App Name,width=20"`
	AppCode       string    `gorm:"size:64" json:"appCode,omitempty" excel:"App Code,width=15"`
	AppType       AppType   `gorm:"size:32" json:"appType,omitempty" excel:"App Type,width=15"`
	GitURL        string    `gorm:"column:git_url;size:255" json:"gitUrl,omitempty" excel:"Git URL,width=30"`
	Developer     string    `gorm:"size:64" json:"developer,omitempty" excel:"Developer,width=15"`
	DeveloperText string    `gorm:"size:128" json:"developerText,omitempty"`
	Tester        string    `gorm:"size:64" json:"tester,omitempty" excel:"Tester,width=15"`
	TesterText    string    `gorm:"size:128" json:"testerText,omitempty"`
	Status        AppStatus `gorm:"size:32" json:"status,omitempty" excel:"Status,width=15"`
	PipelineURL   string    `gorm:"column:pipeline_url;size:255" json:"pipelineUrl,omitempty" excel:"Pipeline URL,width=30"`
	Description   string    `gorm:"size:512" json:"description,omitempty" excel:"Description,width=30"`
}

func (ProjectRelatedApp) TableName() string { return "project_related_app" }

func (a *ProjectRelatedApp) AfterFind(*gorm.DB) error {
	a.AppType = a.AppType.Normalize()
	a.Status = a.Status.Normalize()
	return nil
}

func (a *ProjectRelatedApp) ClearUnknown() {
	a.AppType = withoutUnknown(a.AppType, AppUnknown)
	a.Status = withoutUnknown(a.Status, AppStatusUnknown)
}

func (a ProjectRelatedApp) Validate() error {
	if err := checkEnum("appType", a.AppType.Known(), string(a.AppType)); err != nil {
		return err
	}
	return checkEnum("status", a.Status.Known(), string(a.Status))
}

// ProjectTimeline is a project milestone.
type ProjectTimeline struct {
	Base
	ProjectID     string          `gorm:"column:project_id;size:64;index" json:"projectId,omitempty" excel:"Project ID,width=20"`
	MilestoneName string          `gorm:"size:128" json:"milestoneName,omitempty" excel:"Milestone,width=20"`
	Description   string          `gorm:"size:512" json:"description,omitempty" excel:"Description,width=30"`
	PlannedDate   *time.Time      `json:"plannedDate,omitempty" excel:"Planned Date,width=15,format=date"`
	ActualDate    *time.Time      `json:"actualDate,omitempty" excel:"Actual Date,width=15,format=date"`
	Status        MilestoneStatus `gorm:"size:32" json:"status,omitempty" excel:"Status,width=15"`
	Assignee      string          `gorm:"size:64" json:"assignee,omitempty" excel:"Assignee,width=15"`
	AssigneeText  string          `gorm:"size:128" json:"assigneeText,omitempty"`
	Priority      Priority        `gorm:"size:16" json:"priority,omitempty" excel:"Priority,width=10"`
	Progress      *int            `json:"progress,omitempty" excel:"Progress,width=10"`
	Remark        string          `gorm:"size:512" json:"remark,omitempty" excel:"Remark,width=30"`
}

func (ProjectTimeline) TableName() string { return "project_timeline" }

func (t *ProjectTimeline) AfterFind(*gorm.DB) error {
	t.Status = t.Status.Normalize()
	t.Priority = t.Priority.Normalize()
	return nil
}

func (t *ProjectTimeline) ClearUnknown() {
	t.Status = withoutUnknown(t.Status, MilestoneUnknown)
	t.Priority = withoutUnknown(t.Priority, PriorityUnknown)
}

func (t ProjectTimeline) Validate() error {
	if err := checkEnum("status", t.Status.Known(), string(t.Status)); err != nil {
		return err
	}
	return checkEnum("priority", t.Priority.Known(), string(t.Priority))
}

// ProjectConfig is one key/value setting of a project.
type ProjectConfig struct {
	Base
	ProjectID   string `gorm:"column:project_id;size:64;index" json:"projectId,omitempty" excel:"Project ID,width=20"`
	ConfigType  string `gorm:"size:64" json:"configType,omitempty" excel:"Type,width=15"`
	ConfigKey   string `gorm:"size:128" json:"configKey,omitempty" excel:"Key,width=20"`
	ConfigValue string `gorm:"type:text" json:"configValue,omitempty" excel:"Value,width=30"`
	Description string `gorm:"size:512" json:"description,omitempty" excel:"Description,width=30"`
	Enabled     YesNo  `gorm:"size:1" json:"enabled,omitempty" excel:"Enabled,width=10"`
	SortOrder   *int   `json:"sortOrder,omitempty" excel:"Sort,width=10"`
	Environment string `gorm:"size:32" json:"environment,omitempty" excel:"Environment,width=15"`
}

func (ProjectConfig) TableName() string { return "project_config" }

func (c *ProjectConfig) AfterFind(*gorm.DB) error {
	c.Enabled = c.Enabled.Normalize()
	return nil
}

func (c *ProjectConfig) ClearUnknown() { c.Enabled = withoutUnknown(c.Enabled, YesNoUnknown) }

func (c ProjectConfig) Validate() error {
	return checkEnum("enabled", c.Enabled.Known(), string(c.Enabled))
}

// ProjectTemplate is a reusable project scaffold.
type ProjectTemplate struct {
	Base
	TemplateName string `gorm:"size:128" json:"templateName,omitempty" excel:"Template Name,width=20"`
	TemplateCode string `gorm:"size:64" json:"templateCode,omitempty" excel:"Template Code,width=20"`
	TemplateType string `gorm:"size:64" json:"templateType,omitempty" excel:"Type,width=15"`
	TechStack    string `gorm:"size:255" json:"techStack,omitempty" excel:"Tech Stack,width=20"`
	Description  string `gorm:"size:512" json:"description,omitempty" excel:"Description,width=30"`
	GitURL       string `gorm:"column:git_url;size:255" json:"gitUrl,omitempty" excel:"Git URL,width=30"`
	GitBranch    string `gorm:"size:128" json:"gitBranch,omitempty" excel:"Git Branch,width=15"`
	ConfigData   string `gorm:"type:text" json:"configData,omitempty"`
	Enabled      YesNo  `gorm:"size:1" json:"enabled,omitempty" excel:"Enabled,width=10"`
	SortOrder    *int   `json:"sortOrder,omitempty" excel:"Sort,width=10"`
	Version      string `gorm:"size:32" json:"version,omitempty" excel:"Version,width=10"`
	Author       string `gorm:"size:64" json:"author,omitempty" excel:"Author,width=15"`
	Tags         string `gorm:"size:255" json:"tags,omitempty" excel:"Tags,width=20"`
	UsageCount   *int   `json:"usageCount,omitempty" excel:"Usage Count,width=10"`
}

func (ProjectTemplate) TableName() string { return "project_template" }

func (t *ProjectTemplate) AfterFind(*gorm.DB) error {
	t.Enabled = t.Enabled.Normalize()
	return nil
}

func (t *ProjectTemplate) ClearUnknown() { t.Enabled = withoutUnknown(t.Enabled, YesNoUnknown) }

func (t ProjectTemplate) Validate() error {
	return checkEnum("enabled", t.Enabled.Known(), string(t.Enabled))
}

// Material holds the fields shared by material components and templates.
type Material struct {
	Name        string       `gorm:"size:128" json:"name,omitempty" excel:"Name,width=20"`
	Type        string       `gorm:"size:64" json:"type,omitempty" excel:"Type,width=15"`
	Version     string       `gorm:"size:32" json:"version,omitempty" excel:"Version,width=10"`
	Code        string       `gorm:"type:text" json:"code,omitempty" excel:"Code,width=40"`
	Description string       `gorm:"size:512" json:"description,omitempty" excel:"Description,width=30"`
	Status      *EnableState `json:"status,omitempty" excel:"Status,width=10"`
}

func (m *Material) AfterFind(*gorm.DB) error {
	m.Status = normalizePtr(m.Status, EnableUnknown)
	return nil
}

func (m *Material) ClearUnknown() { m.Status = withoutUnknownPtr(m.Status, EnableUnknown) }

func (m Material) Validate() error {
	if m.Status != nil {
		return checkEnum("status", m.Status.Known(), m.Status.String())
	}
	return nil
}

type MaterialComponent struct {
	Base
	Material
}

func (MaterialComponent) TableName() string { return "material_component" }

type MaterialTemplate struct {
	Base
	Material
}

func (MaterialTemplate) TableName() string { return "material_template" }
