package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMilestonesObjectForm(t *testing.T) {
	var m Milestones
	require.NoError(t, json.Unmarshal([]byte(`{"Video live":"pending","Draft approved":"done"}`), &m))

	require.Len(t, m, 2)
	assert.Equal(t, "Draft approved", m[0].Name)
	assert.Equal(t, "Draft approved", m[0].ID)
	assert.Equal(t, "done", m[0].Status)
	assert.Equal(t, "Video live", m[1].Name)
	assert.Nil(t, m[0].Amount)
}

func TestMilestonesListForm(t *testing.T) {
	var m Milestones
	raw := `[{"id":"ms-1","name":"Draft","status":"done","amount":"1200.00","date":"2026-03-01T00:00:00Z"},{"name":"Publish","status":"pending"}]`
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	require.Len(t, m, 2)
	assert.Equal(t, "ms-1", m[0].ID)
	require.NotNil(t, m[0].Amount)
	assert.Equal(t, "1200.00", m[0].Amount.StringFixed(2))
	require.NotNil(t, m[0].Date)
	assert.Equal(t, "Publish", m[1].ID)
}

func TestMilestonesAlwaysEncodeAsList(t *testing.T) {
	var m Milestones
	require.NoError(t, json.Unmarshal([]byte(`{"Draft":"done"}`), &m))

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"Draft","name":"Draft","status":"done"}]`, string(out))

	out, err = json.Marshal(Milestones(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestMilestonesScanValue(t *testing.T) {
	var m Milestones
	require.NoError(t, m.Scan([]byte(`{"Draft":"done"}`)))
	v, err := m.Value()
	require.NoError(t, err)

	var back Milestones
	require.NoError(t, back.Scan(v))
	assert.Equal(t, m, back)

	require.NoError(t, back.Scan(nil))
	assert.Nil(t, back)
	assert.Error(t, back.Scan(42))
}

func TestMilestonesRejectScalar(t *testing.T) {
	var m Milestones
	assert.Error(t, json.Unmarshal([]byte(`"draft"`), &m))
}

func TestMilestonesFind(t *testing.T) {
	m := Milestones{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}
	got, ok := m.Find("b")
	assert.True(t, ok)
	assert.Equal(t, "B", got.Name)
	_, ok = m.Find("z")
	assert.False(t, ok)
}
