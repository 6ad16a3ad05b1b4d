package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kiranshivaraju/eventpredict/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultSet_PreservesInsertionOrder(t *testing.T) {
	rs := models.NewResultSet()
	rs.Append("zeta", models.Prediction{Target: "Z1"})
	rs.Append("alpha", models.Prediction{Target: "A1"})
	rs.Append("zeta", models.Prediction{Target: "Z2"})

	assert.Equal(t, []string{"zeta", "alpha"}, rs.Keys())
	assert.Equal(t, 2, rs.Len())
	require.Len(t, rs.Get("zeta"), 2)
	assert.Equal(t, "Z1", rs.Get("zeta")[0].Target)
	assert.Equal(t, "Z2", rs.Get("zeta")[1].Target)

	data, err := json.Marshal(rs)
	require.NoError(t, err)
	assert.Equal(t,
		`{"zeta":[{"target":"Z1","result":null},{"target":"Z2","result":null}],"alpha":[{"target":"A1","result":null}]}`,
		string(data))
}

func TestResultSet_UnmarshalKeepsDocumentOrder(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := `{"b":[{"target":"B1","result":[{"time":"2024-01-01T00:00:00Z","value":0.25}]}],"a":[{"target":"A1","result":[]}]}`

	var rs models.ResultSet
	require.NoError(t, json.Unmarshal([]byte(doc), &rs))

	assert.Equal(t, []string{"b", "a"}, rs.Keys())
	require.Len(t, rs.Get("b")[0].Result, 1)
	assert.True(t, ts.Equal(rs.Get("b")[0].Result[0].Time))
	assert.Equal(t, 0.25, rs.Get("b")[0].Result[0].Value)
}

func TestResultSet_NilEncodesAsNull(t *testing.T) {
	job := models.Job{ID: "x"}
	data, err := json.Marshal(job)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Nil(t, body["result"])
}

func TestResultSet_UnmarshalRejectsNonObject(t *testing.T) {
	var rs models.ResultSet
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &rs))
}

func TestFrame_ColumnIndex(t *testing.T) {
	f := &models.Frame{Columns: []string{"a", "b"}, Rows: [][]float64{{1, 2}}}
	assert.Equal(t, 1, f.ColumnIndex("b"))
	assert.Equal(t, -1, f.ColumnIndex("c"))
	assert.Equal(t, 1, f.Len())
}
