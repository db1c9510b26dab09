package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock_TemplateSelectionByKeyword(t *testing.T) {
	m := NewMock(0)
	resp, err := m.Generate(context.Background(), "please test the login flow", DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "/auth/login")
	assert.True(t, resp.IsMock())
	assert.Equal(t, "login", resp.Metadata["template_used"])
}

func TestMock_DefaultTemplateWhenNoKeyword(t *testing.T) {
	m := NewMock(0)
	resp, err := m.Generate(context.Background(), "do something unrelated", DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, resp.Content, `"path": "/"`)
	assert.Equal(t, "default", resp.Metadata["template_used"])
}

func TestMock_TracksCallCountAndLastPrompt(t *testing.T) {
	m := NewMock(0)
	_, _ = m.Generate(context.Background(), "crud resource test", DefaultOptions())
	_, _ = m.Generate(context.Background(), "health check", DefaultOptions())
	assert.Equal(t, 2, m.CallCount())
	assert.Equal(t, "health check", m.LastPrompt())
}

func TestMock_FailNext(t *testing.T) {
	m := NewMock(0)
	m.FailNext()
	_, err := m.Generate(context.Background(), "login", DefaultOptions())
	assert.Error(t, err)

	resp, err := m.Generate(context.Background(), "login", DefaultOptions())
	require.NoError(t, err, "fail flag clears after one use")
	assert.Contains(t, resp.Content, "auth/login")
}

func TestMock_Reset(t *testing.T) {
	m := NewMock(0)
	_, _ = m.Generate(context.Background(), "x", DefaultOptions())
	m.Reset()
	assert.Equal(t, 0, m.CallCount())
	assert.Equal(t, "", m.LastPrompt())
}
