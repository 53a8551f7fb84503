package research

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepJSON_EmptySearchKeepsCounts(t *testing.T) {
	data, err := json.Marshal(Step{Kind: StepSearch, Query: "cats"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"search","query":"cats","resultCount":0,"results":[]}`, string(data))
}

func TestStepJSON_SearchWithResults(t *testing.T) {
	step := Step{
		Kind:        StepSearch,
		Query:       "cats",
		ResultCount: 1,
		Results:     []SearchResult{{Title: "Cats 101", URL: "https://a.com", Domain: "a.com"}},
	}
	data, err := json.Marshal(step)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"search","query":"cats","resultCount":1,"results":[{"title":"Cats 101","url":"https://a.com","domain":"a.com"}]}`, string(data))

	var back Step
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, step, back)
}

func TestStepJSON_OtherKindsOmitSearchFields(t *testing.T) {
	data, err := json.Marshal(Chain{
		IsLoading: true,
		Steps: []Step{
			{Kind: StepRead, Domain: "a.com", Summary: "about cats"},
			{Kind: StepThink, Content: "hmm"},
		},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"","isLoading":true,"steps":[{"type":"read","domain":"a.com","summary":"about cats"},{"type":"think","content":"hmm"}]}`, string(data))
}
