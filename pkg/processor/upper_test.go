package processor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpperProcess(t *testing.T) {
	u := NewUpper()

	out, err := u.Process(context.Background(), "0xabc", []byte("this is a test"))
	require.NoError(t, err)
	assert.Equal(t, []byte("THIS IS A TEST"), out)

	assert.Equal(t, "upper", u.Name())
	assert.NoError(t, u.CheckStatus(context.Background()))
}

func TestUpperConvertJSON(t *testing.T) {
	u := NewUpper()

	out, err := u.Convert("0xabc", []byte("RESULT"), "json")
	require.NoError(t, err)

	var payload struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Result string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(out, &payload))
	assert.Equal(t, "0xabc", payload.ID)
	assert.Equal(t, "OK", payload.Status)
	assert.Equal(t, "RESULT", payload.Result)
}

func TestUpperConvertUnsupported(t *testing.T) {
	u := NewUpper()

	_, err := u.Convert("0xabc", []byte("RESULT"), "xml")
	assert.True(t, errors.Is(err, ErrCannotConvert))
}
