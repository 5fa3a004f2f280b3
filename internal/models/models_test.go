package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Message(t *testing.T) {
	ve := &ValidationError{}
	assert.Equal(t, "invalid dashboard", ve.Error())

	ve.Add("title", "required")
	ve.Add("panels.0.type", "must be a string")
	assert.Equal(t, "invalid dashboard: title: required; panels.0.type: must be a string", ve.Error())

	var target *ValidationError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", ve), &target))
	assert.Len(t, target.Issues, 2)
}

func TestStorageError_Unwrap(t *testing.T) {
	base := errors.New("connection refused")
	err := &StorageError{Op: "put", Key: "artifact:1", Err: base}
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "artifact:1")
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, JobPending.IsTerminal())
	assert.False(t, JobProcessing.IsTerminal())
	assert.True(t, JobCompleted.IsTerminal())
	assert.True(t, JobFailed.IsTerminal())
}

func TestConversionJob_CloneIsIndependent(t *testing.T) {
	j := &ConversionJob{ID: "j", Warnings: []Warning{{Code: "a"}}, Summary: ConversionSummary{PanelTypes: map[string]int{"graph": 1}}}
	c := j.Clone()
	c.Warnings[0].Code = "b"
	c.Summary.PanelTypes["graph"] = 5
	assert.Equal(t, "a", j.Warnings[0].Code)
	assert.Equal(t, 1, j.Summary.PanelTypes["graph"])
}

func TestDatasourceTypes_FirstSeenOrder(t *testing.T) {
	d := &SourceDashboard{Panels: []SourcePanel{
		{Datasource: DatasourceRef{Type: "prometheus"}, Targets: []Target{{Datasource: DatasourceRef{Type: "loki"}}}},
		{Datasource: DatasourceRef{Name: "MySQL"}},
		{Datasource: DatasourceRef{Type: "prometheus"}},
	}}
	assert.Equal(t, []string{"prometheus", "loki", "MySQL"}, d.DatasourceTypes())
}
