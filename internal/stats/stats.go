package stats

import (
	"math"
	"sort"
	"strings"

	"github.com/samber/lo"

	"devhub/internal/domain"
)

// Project status groups.
var (
	ActiveStatuses    = []domain.ProjectStatus{domain.ProjectDeveloping, domain.ProjectTesting}
	CompletedStatuses = []domain.ProjectStatus{domain.ProjectDeployed}
	PausedStatuses    = []domain.ProjectStatus{domain.ProjectPaused}
	PlanningStatuses  = []domain.ProjectStatus{domain.ProjectPlanning}
)

// CountByStatusGroup counts records whose status is one of group.
func CountByStatusGroup[T any, S comparable](records []T, statusOf func(T) S, group ...S) int {
	return lo.CountBy(records, func(r T) bool {
		return lo.Contains(group, statusOf(r))
	})
}

// AverageProgress is the rounded mean of the present values; absent values are not
// counted. No values yields 0.
func AverageProgress[T any](records []T, progressOf func(T) *int) int {
	values := present(records, progressOf)
	if len(values) == 0 {
		return 0
	}
	return int(math.Round(float64(lo.Sum(values)) / float64(len(values))))
}

// SumField adds the present values.
func SumField[T any](records []T, fieldOf func(T) *int) int {
	return lo.Sum(present(records, fieldOf))
}

func present[T any](records []T, get func(T) *int) []int {
	return lo.FilterMap(records, func(r T, _ int) (int, bool) {
		v := get(r)
		if v == nil {
			return 0, false
		}
		return *v, true
	})
}

// OnTimeRate is the percentage of deployed projects that went online no later than their
// end date. Projects missing either date count as late. No deployed projects yields 0.
func OnTimeRate(projects []domain.Project) int {
	deployed := lo.Filter(projects, func(p domain.Project, _ int) bool {
		return p.Status == domain.ProjectDeployed
	})
	if len(deployed) == 0 {
		return 0
	}
	onTime := lo.CountBy(deployed, func(p domain.Project) bool {
		return p.OnlineDate != nil && p.EndDate != nil && !p.OnlineDate.After(*p.EndDate)
	})
	return int(math.Round(float64(onTime) * 100 / float64(len(deployed))))
}

// DelayedRate complements OnTimeRate.
func DelayedRate(projects []domain.Project) int {
	return 100 - OnTimeRate(projects)
}

type ProjectStatistics struct {
	TotalProjects       int `json:"totalProjects"`
	ActiveProjects      int `json:"activeProjects"`
	CompletedProjects   int `json:"completedProjects"`
	PausedProjects      int `json:"pausedProjects"`
	PlanningProjects    int `json:"planningProjects"`
	AvgProgress         int `json:"avgProgress"`
	TotalEstimatedHours int `json:"totalEstimatedHours"`
	TotalActualHours    int `json:"totalActualHours"`
	OnTimeRate          int `json:"onTimeRate"`
	DelayedRate         int `json:"delayedRate"`
}

// ProjectSummary computes the dashboard figures over projects.
func ProjectSummary(projects []domain.Project) ProjectStatistics {
	status := func(p domain.Project) domain.ProjectStatus { return p.Status }
	onTime := OnTimeRate(projects)
	return ProjectStatistics{
		TotalProjects:       len(projects),
		ActiveProjects:      CountByStatusGroup(projects, status, ActiveStatuses...),
		CompletedProjects:   CountByStatusGroup(projects, status, CompletedStatuses...),
		PausedProjects:      CountByStatusGroup(projects, status, PausedStatuses...),
		PlanningProjects:    CountByStatusGroup(projects, status, PlanningStatuses...),
		AvgProgress:         AverageProgress(projects, func(p domain.Project) *int { return p.Progress }),
		TotalEstimatedHours: SumField(projects, func(p domain.Project) *int { return p.EstimatedHours }),
		TotalActualHours:    SumField(projects, func(p domain.Project) *int { return p.ActualHours }),
		OnTimeRate:          onTime,
		DelayedRate:         100 - onTime,
	}
}

type SkillStat struct {
	Skill      string  `json:"skill"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// SkillDistribution counts each comma separated skill across staff. Percentage is the
// share of all staff holding the skill, rounded to two decimals.
func SkillDistribution(staff []domain.Staff) []SkillStat {
	counts := map[string]int{}
	for _, s := range staff {
		skills := lo.Uniq(lo.FilterMap(strings.Split(s.Skills, ","), func(v string, _ int) (string, bool) {
			v = strings.TrimSpace(v)
			return v, v != ""
		}))
		for _, skill := range skills {
			counts[skill]++
		}
	}
	out := lo.MapToSlice(counts, func(skill string, n int) SkillStat {
		pct := math.Round(float64(n)*10000/float64(len(staff))) / 100
		return SkillStat{Skill: skill, Count: n, Percentage: pct}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Skill < out[j].Skill
	})
	return out
}
