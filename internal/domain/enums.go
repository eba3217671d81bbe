package domain

import (
	"fmt"
	"strconv"

	"github.com/samber/lo"
)

// EnumError reports a value outside a closed enumeration.
type EnumError struct {
	Field  string
	Value  string
	Reason string
}

func (e *EnumError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %q %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("%s: unknown value %q", e.Field, e.Value)
}

func checkEnum(field string, known bool, value string) error {
	if known {
		return nil
	}
	return &EnumError{Field: field, Value: value}
}

func itoa(v int) string { return strconv.Itoa(v) }

// Every enumeration below carries an Unknown variant. Stored values outside the
// enumeration read back as Unknown, and writes skip fields holding Unknown so the stored
// value survives a read-modify-write round trip.

func orUnknown[T comparable](v T, known bool, unknown T) T {
	if known {
		return v
	}
	return unknown
}

func normalizePtr[T interface {
	comparable
	Known() bool
}](p *T, unknown T) *T {
	if p == nil || (*p).Known() {
		return p
	}
	return &unknown
}

func withoutUnknown[T comparable](v, unknown T) T {
	var zero T
	if v == unknown {
		return zero
	}
	return v
}

func withoutUnknownPtr[T comparable](p *T, unknown T) *T {
	if p != nil && *p == unknown {
		return nil
	}
	return p
}

type ProjectType string

const (
	ProjectTypeWeb     ProjectType = "WEB"
	ProjectTypeMobile  ProjectType = "MOBILE"
	ProjectTypeAPI     ProjectType = "API"
	ProjectTypeDesktop ProjectType = "DESKTOP"
	ProjectTypeUnknown ProjectType = "UNKNOWN"
)

// Known reports whether t is empty or a member of the enumeration, Unknown included.
func (t ProjectType) Known() bool {
	return t == "" || lo.Contains([]ProjectType{ProjectTypeWeb, ProjectTypeMobile, ProjectTypeAPI, ProjectTypeDesktop, ProjectTypeUnknown}, t)
}

func (t ProjectType) Normalize() ProjectType { return orUnknown(t, t.Known(), ProjectTypeUnknown) }

type ProjectStatus string

const (
	ProjectPlanning   ProjectStatus = "PLANNING"
	ProjectDeveloping ProjectStatus = "DEVELOPING"
	ProjectTesting    ProjectStatus = "TESTING"
	ProjectDeployed   ProjectStatus = "DEPLOYED"
	ProjectPaused     ProjectStatus = "PAUSED"
	ProjectUnknown    ProjectStatus = "UNKNOWN"
)

func (s ProjectStatus) Known() bool {
	return s == "" || lo.Contains([]ProjectStatus{ProjectPlanning, ProjectDeveloping, ProjectTesting, ProjectDeployed, ProjectPaused, ProjectUnknown}, s)
}

func (s ProjectStatus) Normalize() ProjectStatus { return orUnknown(s, s.Known(), ProjectUnknown) }

type Priority string

const (
	PriorityLow     Priority = "LOW"
	PriorityMedium  Priority = "MEDIUM"
	PriorityHigh    Priority = "HIGH"
	PriorityUrgent  Priority = "URGENT"
	PriorityUnknown Priority = "UNKNOWN"
)

func (p Priority) Known() bool {
	return p == "" || lo.Contains([]Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent, PriorityUnknown}, p)
}

func (p Priority) Normalize() Priority { return orUnknown(p, p.Known(), PriorityUnknown) }

type TaskType string

const (
	TaskRequirement TaskType = "REQUIREMENT"
	TaskBug         TaskType = "BUG"
	TaskUnknown     TaskType = "UNKNOWN"
)

func (t TaskType) Known() bool {
	return t == "" || lo.Contains([]TaskType{TaskRequirement, TaskBug, TaskUnknown}, t)
}

func (t TaskType) Normalize() TaskType { return orUnknown(t, t.Known(), TaskUnknown) }

type BranchCreateMode string

const (
	BranchAuto    BranchCreateMode = "AUTO"
	BranchManual  BranchCreateMode = "MANUAL"
	BranchUnknown BranchCreateMode = "UNKNOWN"
)

func (m BranchCreateMode) Known() bool {
	return m == "" || lo.Contains([]BranchCreateMode{BranchAuto, BranchManual, BranchUnknown}, m)
}

func (m BranchCreateMode) Normalize() BranchCreateMode { return orUnknown(m, m.Known(), BranchUnknown) }

type DevelopmentMode string

const (
	DevelopmentL1      DevelopmentMode = "L1"
	DevelopmentL2      DevelopmentMode = "L2"
	DevelopmentL3      DevelopmentMode = "L3"
	DevelopmentUnknown DevelopmentMode = "UNKNOWN"
)

func (m DevelopmentMode) Known() bool {
	return m == "" || lo.Contains([]DevelopmentMode{DevelopmentL1, DevelopmentL2, DevelopmentL3, DevelopmentUnknown}, m)
}

func (m DevelopmentMode) Normalize() DevelopmentMode {
	return orUnknown(m, m.Known(), DevelopmentUnknown)
}

type AppType string

const (
	AppFrontend AppType = "FRONTEND"
	AppBackend  AppType = "BACKEND"
	AppMobile   AppType = "MOBILE"
	AppDesktop  AppType = "DESKTOP"
	AppUnknown  AppType = "UNKNOWN"
)

func (t AppType) Known() bool {
	return t == "" || lo.Contains([]AppType{AppFrontend, AppBackend, AppMobile, AppDesktop, AppUnknown}, t)
}

func (t AppType) Normalize() AppType { return orUnknown(t, t.Known(), AppUnknown) }

type AppStatus string

const (
	AppDeveloping    AppStatus = "DEVELOPING"
	AppTesting       AppStatus = "TESTING"
	AppDeployed      AppStatus = "DEPLOYED"
	AppPaused        AppStatus = "PAUSED"
	AppStatusUnknown AppStatus = "UNKNOWN"
)

func (s AppStatus) Known() bool {
	return s == "" || lo.Contains([]AppStatus{AppDeveloping, AppTesting, AppDeployed, AppPaused, AppStatusUnknown}, s)
}

func (s AppStatus) Normalize() AppStatus { return orUnknown(s, s.Known(), AppStatusUnknown) }

type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "PENDING"
	MilestoneInProgress MilestoneStatus = "IN_PROGRESS"
	MilestoneCompleted  MilestoneStatus = "COMPLETED"
	MilestoneDelayed    MilestoneStatus = "DELAYED"
	MilestoneUnknown    MilestoneStatus = "UNKNOWN"
)

func (s MilestoneStatus) Known() bool {
	return s == "" || lo.Contains([]MilestoneStatus{MilestonePending, MilestoneInProgress, MilestoneCompleted, MilestoneDelayed, MilestoneUnknown}, s)
}

func (s MilestoneStatus) Normalize() MilestoneStatus {
	return orUnknown(s, s.Known(), MilestoneUnknown)
}

type YesNo string

const (
	Yes          YesNo = "Y"
	No           YesNo = "N"
	YesNoUnknown YesNo = "UNKNOWN"
)

func (v YesNo) Known() bool {
	return v == "" || lo.Contains([]YesNo{Yes, No, YesNoUnknown}, v)
}

func (v YesNo) Normalize() YesNo { return orUnknown(v, v.Known(), YesNoUnknown) }

// StaffState is the integer employment status of a staff member.
type StaffState int

const (
	StaffLeft    StaffState = 0
	StaffActive  StaffState = 1
	StaffOnLeave StaffState = 2
	StaffUnknown StaffState = -1
)

func (s StaffState) Known() bool {
	return lo.Contains([]StaffState{StaffLeft, StaffActive, StaffOnLeave, StaffUnknown}, s)
}

func (s StaffState) String() string { return itoa(int(s)) }

// EnableState is the 0/1 status used by apps and materials.
type EnableState int

const (
	Disabled      EnableState = 0
	Enabled       EnableState = 1
	EnableUnknown EnableState = -1
)

func (s EnableState) Known() bool {
	return lo.Contains([]EnableState{Disabled, Enabled, EnableUnknown}, s)
}

func (s EnableState) String() string { return itoa(int(s)) }

// Ptr returns a pointer to v, for optional fields.
func Ptr[T any](v T) *T { return &v }
