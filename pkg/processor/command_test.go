package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandProcess(t *testing.T) {
	p, err := NewCommand(CommandConfig{
		Name:    "identity",
		Command: []string{"cat"},
	})
	require.NoError(t, err)

	out, err := p.Process(context.Background(), "0xabc", []byte("pass through"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pass through"), out)
}

func TestCommandProcessFailure(t *testing.T) {
	p, err := NewCommand(CommandConfig{
		Name:    "failing",
		Command: []string{"false"},
	})
	require.NoError(t, err)

	_, err = p.Process(context.Background(), "0xabc", []byte("doc"))
	assert.Error(t, err)
}

func TestCommandCheckStatus(t *testing.T) {
	ok, err := NewCommand(CommandConfig{Name: "identity", Command: []string{"cat"}})
	require.NoError(t, err)
	assert.NoError(t, ok.CheckStatus(context.Background()))

	missing, err := NewCommand(CommandConfig{
		Name:    "ghost",
		Command: []string{"definitely-not-a-real-binary-1f2e3d"},
	})
	require.NoError(t, err)
	assert.Error(t, missing.CheckStatus(context.Background()))
}

func TestCommandValidation(t *testing.T) {
	_, err := NewCommand(CommandConfig{Command: []string{"cat"}})
	assert.Error(t, err)

	_, err = NewCommand(CommandConfig{Name: "x"})
	assert.Error(t, err)
}

func TestCommandConvertUnsupported(t *testing.T) {
	p, err := NewCommand(CommandConfig{Name: "identity", Command: []string{"cat"}})
	require.NoError(t, err)

	_, err = p.Convert("0xabc", []byte("out"), "json")
	assert.True(t, errors.Is(err, ErrCannotConvert))
}
