package grok

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blackjuly/ultra-mcp/relay/adaptor"
	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
)

func TestReasoningEffortPassthrough(t *testing.T) {
	a := New(adaptor.Credentials{APIKey: "xai-key"}, nil)

	call, err := a.buildCall(&relaymodel.GenerateRequest{
		Prompt:          "hi",
		Model:           "grok-3-mini",
		ReasoningEffort: relaymodel.ReasoningEffortHigh,
	})
	require.NoError(t, err)
	require.Equal(t, "https://api.x.ai/v1/chat/completions", call.URL)
	require.Equal(t, "Bearer xai-key", call.Headers["Authorization"])
	require.Equal(t, relaymodel.ReasoningEffortHigh, call.Body.ReasoningEffort)
}

func TestNoTemperatureOverride(t *testing.T) {
	temp := 0.3
	a := New(adaptor.Credentials{APIKey: "xai-key"}, nil)

	call, err := a.buildCall(&relaymodel.GenerateRequest{
		Prompt:      "hi",
		Model:       "grok-4",
		Temperature: &temp,
	})
	require.NoError(t, err)
	require.NotNil(t, call.Body.Temperature)
	require.Equal(t, 0.3, *call.Body.Temperature)
	require.Nil(t, call.Body.MaxCompletionTokens)
}

func TestModelDefaulting(t *testing.T) {
	a := New(adaptor.Credentials{APIKey: "k"}, nil)
	require.Equal(t, "grok-4", a.DefaultModel())

	b := New(adaptor.Credentials{APIKey: "k", PreferredModel: "grok-3-mini"}, nil)
	require.Equal(t, "grok-3-mini", b.DefaultModel())
}

func TestNotConfigured(t *testing.T) {
	a := New(adaptor.Credentials{}, nil)
	_, err := a.Generate(context.Background(), &relaymodel.GenerateRequest{Prompt: "hi"})
	require.True(t, relaymodel.AsConfigurationMissing(err))
}
