package schemas

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{ContentPlanner, KBBuilder, Presentation, QA, Research}, Names())
}

func TestAllSchemas_Compile(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			text, err := Get(name)
			require.NoError(t, err)
			assert.True(t, json.Valid([]byte(text)))

			_, err = load(name)
			require.NoError(t, err)
		})
	}
}

func TestGet_Unknown(t *testing.T) {
	_, err := Get("nope")
	var loadErr *SchemaLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, err.Error(), "unknown schema")
}

func posts(n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"day":%d,"channel":"linkedin","hook":"h","caption":"c"}`, i%30+1)
	}
	return "[" + strings.Join(items, ",") + "]"
}

func TestValidate_ContentPlannerPostCount(t *testing.T) {
	ok := fmt.Sprintf(`{"strategy_overview":"s","posts":%s}`, posts(30))
	assert.NoError(t, Validate(ContentPlanner, ok))

	short := fmt.Sprintf(`{"strategy_overview":"s","posts":%s}`, posts(29))
	err := Validate(ContentPlanner, short)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ContentPlanner, ve.Schema)
	assert.NotEmpty(t, ve.Errors)
}

func TestValidate_QAStatusEnum(t *testing.T) {
	assert.NoError(t, Validate(QA, `{"results":[{"post_index":0,"overall_status":"approved","issues":[]}]}`))
	assert.Error(t, Validate(QA, `{"results":[{"post_index":0,"overall_status":"fine","issues":[]}]}`))
}

func TestValidate_KBBuilder(t *testing.T) {
	assert.NoError(t, Validate(KBBuilder, `{"files":[{"filename":"01-company-overview.md","title":"Overview","format":"md","content":"# Overview"}]}`))
	assert.Error(t, Validate(KBBuilder, `{"files":[]}`))
	assert.Error(t, Validate(KBBuilder, `{"files":[{"filename":"a.pdf","title":"A","format":"pdf","content":"x"}]}`))
}

func TestValidate_NotJSON(t *testing.T) {
	err := Validate(Presentation, `not json`)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`

	assert.NoError(t, ValidateJSONString(schema, `{"name":"ok"}`))

	err := ValidateJSONString(schema, `{"name":3}`)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Errors[0].Field)

	err = ValidateJSONString(`{"type": 12}`, `{}`)
	var loadErr *SchemaLoadError
	assert.ErrorAs(t, err, &loadErr)
}
