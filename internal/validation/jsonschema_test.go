package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/autoflow/pkg/schema"
)

func TestJSONSchema_ValidateRaw(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	ok := `{"id":"wf","tenant_id":"t1","trigger_type":"manual","steps":[{"type":"jq_transform","config":{"query":"."}}]}`
	assert.NoError(t, v.ValidateRaw([]byte(ok)))

	unknown := `{"id":"wf","tenant_id":"t1","trigger_type":"manual","steps":[{"type":"jq_transform","retry":3}]}`
	err = v.ValidateRaw([]byte(unknown))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = v.ValidateRaw([]byte(`{not json`))
	require.Error(t, err)
}

func TestJSONSchema_CollectsAllViolations(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	err = v.ValidateRaw([]byte(`{"trigger_type":"sometimes","steps":[]}`))
	require.Error(t, err)

	engErr, ok := err.(*schema.EngineError)
	require.True(t, ok)
	violations, ok := engErr.Details["violations"].([]string)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(violations), 2)
	assert.Contains(t, engErr.Message, "errors")
}

func TestJSONSchema_NilDefinition(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)
	assert.Error(t, v.ValidateDefinition(nil))
}
