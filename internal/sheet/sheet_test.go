package sheet

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"devhub/internal/domain"
	"devhub/internal/record"
)

func TestExportImportRoundTrip(t *testing.T) {
	start := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	in := []domain.Project{
		{
			Base:           domain.Base{ID: "ignored"},
			ProjectName:    "Payments",
			ProjectCode:    "PAY",
			Status:         domain.ProjectTesting,
			Priority:       domain.PriorityHigh,
			StartDate:      &start,
			Progress:       domain.Ptr(40),
			EstimatedHours: domain.Ptr(0),
		},
		{ProjectName: "Portal", ProjectCode: "POR"},
	}
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, "Projects", "alice", in))

	out, err := Import[domain.Project](bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 4, out[0].Line)
	assert.Equal(t, 5, out[1].Line)

	p := out[0].Record
	assert.Empty(t, p.ID)
	assert.Equal(t, "Payments", p.ProjectName)
	assert.Equal(t, domain.ProjectTesting, p.Status)
	assert.Equal(t, domain.PriorityHigh, p.Priority)
	require.NotNil(t, p.StartDate)
	assert.True(t, start.Equal(*p.StartDate))
	assert.Equal(t, 40, *p.Progress)
	assert.Equal(t, 0, *p.EstimatedHours)
	assert.Nil(t, p.ActualHours)
	assert.Nil(t, out[1].Record.Progress)
	assert.Equal(t, "POR", out[1].Record.ProjectCode)
}

func TestExportLayout(t *testing.T) {
	var buf bytes.Buffer
	status := domain.StaffActive
	require.NoError(t, Export(&buf, "Staff", "bob", []domain.Staff{{Name: "Ann", Status: &status}}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Staff", rows[0][0])
	assert.Contains(t, rows[1][0], "Exported by bob")
	assert.Equal(t, Headers[domain.Staff](), rows[2])
	assert.Equal(t, "Ann", rows[3][0])
}

func TestImportReportsBadCell(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"Name", "Hire Date", "Unrelated"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]interface{}{"Ann", "2024-01-05", "x"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A6", &[]interface{}{"Bob", "not a date"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	_, err := Import[domain.Staff](bytes.NewReader(buf.Bytes()))
	var ie *record.ImportError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 6, ie.Row)
	assert.Equal(t, "Hire Date", ie.Column)
}

func TestImportSkipsBlankRowsButKeepsLineNumbers(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"Name", "Employee No"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]interface{}{"Ann", "E1"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A6", &[]interface{}{"Bob", "E2"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	rows, err := Import[domain.Staff](bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 4, rows[0].Line)
	assert.Equal(t, 6, rows[1].Line)
	assert.Equal(t, "E2", rows[1].Record.EmployeeNo)
}

func TestImportRejectsGarbage(t *testing.T) {
	_, err := Import[domain.Staff](bytes.NewReader([]byte("not a workbook")))
	var ie *record.ImportError
	require.ErrorAs(t, err, &ie)
}
