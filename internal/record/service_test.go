package record

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"devhub/internal/audit"
	"devhub/internal/dbctx"
	"devhub/internal/domain"
	"devhub/internal/query"
	"devhub/internal/testutil"
)

type fixture struct {
	db       *gorm.DB
	staff    *Service[domain.Staff, *domain.Staff]
	projects *Service[domain.Project, *domain.Project]
	audit    audit.Writer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gdb := testutil.DB(t)
	w := audit.Writer{DB: gdb}
	clock := testutil.SteppingClock(time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC))
	staff, err := New[domain.Staff](gdb, Options{Module: "staff", Audit: w, Now: clock})
	require.NoError(t, err)
	projects, err := New[domain.Project](gdb, Options{Module: "project", Audit: w, Now: clock})
	require.NoError(t, err)
	return fixture{db: gdb, staff: staff, projects: projects, audit: w}
}

func TestCreateStampsMetadataAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.staff.Create(ctx, "alice", &domain.Staff{Name: "Ann", EmployeeNo: "E1", Status: domain.Ptr(domain.StaffActive)})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := f.staff.GetByID(ctx, id)
	require.NoError(t, err)
	rec, ok := got.Get()
	require.True(t, ok)
	require.Equal(t, "alice", rec.CreateBy)
	require.Equal(t, "alice", rec.UpdateBy)
	require.NotNil(t, rec.CreateTime)
	require.Equal(t, domain.StaffActive, *rec.Status)

	events, total, err := f.audit.List(dbctx.New(ctx), audit.Filter{Module: "staff", EntityID: id}, 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "create", events[0].Action)
}

func TestCreateRejectsUnknownEnum(t *testing.T) {
	f := newFixture(t)
	_, err := f.projects.Create(context.Background(), "alice", &domain.Project{ProjectName: "x", Status: "ARCHIVED"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "status", ve.Field)

	_, err = f.staff.Create(context.Background(), "alice", &domain.Staff{Status: domain.Ptr(domain.StaffState(7))})
	require.ErrorAs(t, err, &ve)
}

func TestListPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		_, err := f.projects.Create(ctx, "alice", &domain.Project{ProjectName: fmt.Sprintf("p%02d", i)})
		require.NoError(t, err)
	}

	page, err := f.projects.List(ctx, query.Criteria{}, 2, 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 5)
	require.EqualValues(t, 15, page.Total)
	require.EqualValues(t, 2, page.Pages)
	require.Equal(t, 2, page.Current)
	// newest first by default
	require.Equal(t, "p04", page.Records[0].ProjectName)

	page, err = f.projects.List(ctx, query.Eq("projectName", "p1*"), 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 5, page.Total)
	require.Equal(t, 10, page.Size)
	require.Equal(t, 1, page.Current)
}

func TestUpdateIsPartialAndKeepsCreateFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.projects.Create(ctx, "alice", &domain.Project{ProjectName: "pay", ProjectCode: "PAY", Progress: domain.Ptr(10)})
	require.NoError(t, err)

	err = f.projects.Update(ctx, "bob", &domain.Project{Base: domain.Base{ID: id, CreateBy: "mallory"}, Progress: domain.Ptr(60), Status: domain.ProjectTesting})
	require.NoError(t, err)

	got, err := f.projects.GetByID(ctx, id)
	require.NoError(t, err)
	p := got.MustGet()
	require.Equal(t, "pay", p.ProjectName)
	require.Equal(t, "PAY", p.ProjectCode)
	require.Equal(t, 60, *p.Progress)
	require.Equal(t, domain.ProjectTesting, p.Status)
	require.Equal(t, "alice", p.CreateBy)
	require.Equal(t, "bob", p.UpdateBy)
	require.True(t, p.UpdateTime.After(*p.CreateTime))
}

func TestUpdateErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ve *ValidationError
	require.ErrorAs(t, f.projects.Update(ctx, "bob", &domain.Project{ProjectName: "x"}), &ve)
	require.Equal(t, "id", ve.Field)

	err := f.projects.Update(ctx, "bob", &domain.Project{Base: domain.Base{ID: "ghost"}, ProjectName: "x"})
	require.ErrorIs(t, err, ErrNotFound)

	err = f.projects.Patch(ctx, "bob", "ghost", map[string]any{"status": "PAUSED"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteManyAndGetByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3", "4"} {
		_, err := f.staff.Create(ctx, "alice", &domain.Staff{Base: domain.Base{ID: id}, Name: "n" + id})
		require.NoError(t, err)
	}

	require.NoError(t, f.staff.DeleteMany(ctx, "alice", query.SplitIDs("1,2,3")))
	got, err := f.staff.GetByID(ctx, "2")
	require.NoError(t, err)
	require.True(t, got.IsAbsent())

	rest, err := f.staff.ListAll(ctx, query.Criteria{})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "4", rest[0].ID)

	require.NoError(t, f.staff.Delete(ctx, "alice", "missing"))
	require.NoError(t, f.staff.DeleteMany(ctx, "alice", []string{"1", "2"}))
}

func TestExistsExcludesCurrentID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.staff.Create(ctx, "alice", &domain.Staff{EmployeeNo: "E100"})
	require.NoError(t, err)

	exists, err := f.staff.Exists(ctx, "employeeNo", "E100", "")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = f.staff.Exists(ctx, "employeeNo", "E100", id)
	require.NoError(t, err)
	require.False(t, exists)

	exists, err = f.staff.Exists(ctx, "employeeNo", "E999", "")
	require.NoError(t, err)
	require.False(t, exists)

	exists, err = f.staff.Exists(ctx, "employeeNo", "E*", "")
	require.NoError(t, err)
	require.False(t, exists, "uniqueness checks match literally")

	_, err = f.staff.Exists(ctx, "nope", "x", "")
	require.Error(t, err)
}

func TestListWildcardEquality(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"payments", "payroll", "portal"} {
		_, err := f.projects.Create(ctx, "alice", &domain.Project{ProjectName: name})
		require.NoError(t, err)
	}

	page, err := f.projects.List(ctx, query.Eq("projectName", "pay*"), 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)

	page, err = f.projects.List(ctx, query.Exact("projectName", "pay*"), 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 0, page.Total)
}

func TestLegacyEnumReadsAsUnknownAndSurvivesUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Exec(
		"INSERT INTO project (id, project_name, status, priority) VALUES (?, ?, ?, ?)",
		"legacy", "old", "ARCHIVED", "HIGH",
	).Error)
	require.NoError(t, f.db.Exec("INSERT INTO sys_staff (id, name, status) VALUES (?, ?, ?)", "s-legacy", "Old", 7).Error)

	got, err := f.projects.GetByID(ctx, "legacy")
	require.NoError(t, err)
	p := got.MustGet()
	require.Equal(t, domain.ProjectUnknown, p.Status)
	require.Equal(t, domain.PriorityHigh, p.Priority)

	p.ProjectName = "renamed"
	require.NoError(t, f.projects.Update(ctx, "bob", &p))

	var stored struct {
		ProjectName string
		Status      string
	}
	require.NoError(t, f.db.Raw("SELECT project_name, status FROM project WHERE id = ?", "legacy").Scan(&stored).Error)
	require.Equal(t, "renamed", stored.ProjectName)
	require.Equal(t, "ARCHIVED", stored.Status)

	all, err := f.staff.ListAll(ctx, query.Criteria{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].Status)
	require.Equal(t, domain.StaffUnknown, *all[0].Status)

	var ve *ValidationError
	require.ErrorAs(t, f.projects.Update(ctx, "bob", &domain.Project{Base: domain.Base{ID: "legacy"}, Status: "ARCHIVED"}), &ve)
	require.Equal(t, "status", ve.Field)
}

func TestDatesAreStoredInUTC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 23, 0, 0, 0, time.FixedZone("EST", -5*3600))
	id, err := f.projects.Create(ctx, "alice", &domain.Project{ProjectName: "late", StartDate: &start})
	require.NoError(t, err)
	_, err = f.projects.Create(ctx, "alice", &domain.Project{ProjectName: "early", StartDate: domain.Ptr(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))})
	require.NoError(t, err)

	c := f.projects.Schema().FromParams(url.Values{"startDate_begin": {"2024-03-02"}})
	page, err := f.projects.List(ctx, c, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.Equal(t, id, page.Records[0].ID)
	require.True(t, start.Equal(*page.Records[0].StartDate))

	c = f.projects.Schema().FromParams(url.Values{"startDate_end": {"2024-03-01T20:00:00-05:00"}})
	page, err = f.projects.List(ctx, c, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.Equal(t, "early", page.Records[0].ProjectName)
}

func TestImportValidatesBeforeInsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rows := []domain.Project{
		{ProjectName: "a", Status: domain.ProjectPlanning},
		{ProjectName: "b", Priority: "SOMEDAY"},
	}
	_, err := f.projects.Import(ctx, "alice", []Row[domain.Project]{
		{Line: 4, Record: rows[0]},
		{Line: 6, Record: rows[1]},
	})
	var ie *ImportError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, 6, ie.Row)
	require.Equal(t, "Priority", ie.Column)

	all, err := f.projects.ListAll(ctx, query.Criteria{})
	require.NoError(t, err)
	require.Empty(t, all)

	n, err := f.projects.Import(ctx, "alice", []Row[domain.Project]{
		{Line: 4, Record: domain.Project{ProjectName: "a"}},
		{Line: 5, Record: domain.Project{ProjectName: "b"}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	all, err = f.projects.ListAll(ctx, query.Criteria{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotEqual(t, all[0].ID, all[1].ID)
}
