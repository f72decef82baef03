package bailian

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blackjuly/ultra-mcp/relay/adaptor"
	"github.com/blackjuly/ultra-mcp/relay/channeltype"
	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
)

func TestSubtypeModelEnumeration(t *testing.T) {
	tests := []struct {
		subtype      string
		wantDefault  string
		wantContains string
	}{
		{channeltype.SubtypeBailian, "qwen-max", "qwen-plus"},
		{channeltype.SubtypeQwen3Coder, "qwen3-coder-plus", "qwen3-coder-flash"},
		{channeltype.SubtypeDeepSeekR1, "deepseek-r1", "deepseek-v3"},
	}
	for _, tt := range tests {
		t.Run(tt.subtype, func(t *testing.T) {
			a := New(adaptor.Credentials{APIKey: "k", Subtype: tt.subtype}, nil)
			require.Equal(t, tt.wantDefault, a.DefaultModel())
			require.Contains(t, a.ListModels(), tt.wantContains)
		})
	}
}

func TestSubtypeKeyResolution(t *testing.T) {
	a := New(adaptor.Credentials{
		APIKey:  "shared-key",
		Subtype: channeltype.SubtypeQwen3Coder,
		ExtraAPIKeys: map[string]string{
			channeltype.SubtypeQwen3Coder: "coder-key",
		},
	}, nil)
	require.Equal(t, "coder-key", a.apiKey())

	b := New(adaptor.Credentials{
		APIKey:  "shared-key",
		Subtype: channeltype.SubtypeDeepSeekR1,
	}, nil)
	require.Equal(t, "shared-key", b.apiKey(), "missing subtype key falls back to the DashScope key")
}

func TestCompatibleModeURL(t *testing.T) {
	a := New(adaptor.Credentials{APIKey: "k"}, nil)
	call, err := a.buildCall(&relaymodel.GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	require.Equal(t,
		"https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions",
		call.URL)
	require.Equal(t, "Bearer k", call.Headers["Authorization"])
}

func TestNotConfigured(t *testing.T) {
	a := New(adaptor.Credentials{}, nil)
	_, err := a.Generate(context.Background(), &relaymodel.GenerateRequest{Prompt: "hi"})
	require.True(t, relaymodel.AsConfigurationMissing(err))
}
