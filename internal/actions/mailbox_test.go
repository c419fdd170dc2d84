package actions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCheckResult(t *testing.T) {
	out := &ActionOutput{Data: json.RawMessage(`{"emails":[{"id":"m1","subject":"Invoice 42","from":"a@x.io","to":"b@x.io","date":"2024-01-01","text":"hello"}]}`)}

	res, err := DecodeCheckResult(out)
	require.NoError(t, err)
	require.Len(t, res.Emails, 1)
	assert.Equal(t, "m1", res.Emails[0].ID)
	assert.Equal(t, "Invoice 42", res.Emails[0].Subject)
	assert.Equal(t, "hello", res.Emails[0].Payload()["text"])
	assert.Equal(t, "", res.Emails[0].Payload()["html"])
}

func TestDecodeCheckResult_Empty(t *testing.T) {
	res, err := DecodeCheckResult(nil)
	require.NoError(t, err)
	assert.Empty(t, res.Emails)

	res, err = DecodeCheckResult(&ActionOutput{})
	require.NoError(t, err)
	assert.Empty(t, res.Emails)
}

func TestDecodeCheckResult_Malformed(t *testing.T) {
	_, err := DecodeCheckResult(&ActionOutput{Data: json.RawMessage(`{"emails":"nope"}`)})
	require.Error(t, err)
}
