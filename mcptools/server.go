package mcptools

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/blackjuly/ultra-mcp/common/logger"
	"github.com/blackjuly/ultra-mcp/memory"
	"github.com/blackjuly/ultra-mcp/model"
	"github.com/blackjuly/ultra-mcp/relay"
	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
)

const (
	serverName    = "ultra-mcp"
	serverVersion = "1.0.0"

	// contextTokenLimit bounds the transcript prepended to session-aware
	// calls.
	contextTokenLimit = 8000
)

// Server registers the tool catalog on an MCP server and serves it over
// stdio or streamable HTTP.
type Server struct {
	server *mcp.Server
	engine *relay.Engine
	memory *memory.Service
	db     *gorm.DB
}

// NewServer wires the catalog. memorySvc and db are optional; without them
// session continuity and budget accounting are disabled.
func NewServer(engine *relay.Engine, memorySvc *memory.Service, db *gorm.DB) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
		engine: engine,
		memory: memorySvc,
		db:     db,
	}
	s.addPromptTools()
	s.addListModelsTool()
	s.addChallengeTool()
	s.addConsensusTool()
	s.addPromptTemplates()
	return s
}

// Run serves the MCP protocol over stdio until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// GinHandler bridges the SDK's streamable HTTP handler into a gin route.
func (s *Server) GinHandler() gin.HandlerFunc {
	handler := mcp.NewStreamableHTTPHandler(
		func(req *http.Request) *mcp.Server { return s.server },
		nil,
	)
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// generateArgs is the shared input schema of the prompt-wrapper tools.
type generateArgs struct {
	Prompt             string   `json:"prompt" jsonschema_description:"The question or task" jsonschema_required:"true"`
	Provider           string   `json:"provider,omitempty" jsonschema_description:"Provider to use: openai, gemini, azure, grok, bailian"`
	Model              string   `json:"model,omitempty" jsonschema_description:"Model identifier; defaults to the provider's preferred model"`
	Temperature        *float64 `json:"temperature,omitempty" jsonschema_description:"Sampling temperature"`
	MaxOutputTokens    *int     `json:"maxOutputTokens,omitempty" jsonschema_description:"Maximum tokens to generate"`
	ReasoningEffort    string   `json:"reasoningEffort,omitempty" jsonschema_description:"Reasoning effort: low, medium, or high"`
	UseSearchGrounding *bool    `json:"useSearchGrounding,omitempty" jsonschema_description:"Enable web search grounding (Gemini)"`
	SessionID          string   `json:"sessionId,omitempty" jsonschema_description:"Conversation session id for multi-turn continuity"`
}

func (s *Server) addPromptTools() {
	for _, def := range promptTools {
		def := def
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
		}, func(ctx context.Context, req *mcp.CallToolRequest, args generateArgs) (*mcp.CallToolResult, any, error) {
			text, err := s.runTool(ctx, def, args)
			if err != nil {
				return toolError(err), nil, nil
			}
			return textResult(text), nil, nil
		})
	}
}

// runTool performs one generation with the tool's system prompt, optionally
// threading conversation state through the memory service.
func (s *Server) runTool(ctx context.Context, def toolDef, args generateArgs) (string, error) {
	prompt := args.Prompt
	if s.memory != nil && args.SessionID != "" {
		transcript, err := s.sessionTranscript(ctx, args.SessionID, args.Model)
		if err != nil {
			return "", err
		}
		if transcript != "" {
			prompt = transcript + "\n\n" + prompt
		}
	}

	resp, err := s.engine.Generate(ctx, &relaymodel.GenerateRequest{
		Provider:           args.Provider,
		Model:              args.Model,
		Prompt:             prompt,
		SystemPrompt:       def.SystemPrompt,
		Temperature:        args.Temperature,
		MaxOutputTokens:    args.MaxOutputTokens,
		ReasoningEffort:    args.ReasoningEffort,
		UseSearchGrounding: args.UseSearchGrounding,
		ToolName:           def.Name,
	})
	if err != nil {
		return "", err
	}

	if s.memory != nil && args.SessionID != "" {
		s.recordTurn(ctx, args.SessionID, def.Name, args.Prompt, resp)
	}
	return resp.Text, nil
}

// sessionTranscript renders prior turns of the session as a plain transcript.
func (s *Server) sessionTranscript(ctx context.Context, sessionID, modelName string) (string, error) {
	session, err := s.memory.GetOrCreateSession(ctx, sessionID, "")
	if err != nil {
		return "", err
	}

	limit := contextTokenLimit
	view, err := s.memory.GetConversationContext(ctx, session.ID, memory.ContextOptions{
		MaxTokens:    &limit,
		IncludeFiles: true,
		Model:        modelName,
	})
	if err != nil {
		return "", err
	}
	if len(view.Messages) == 0 && len(view.Files) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, msg := range view.Messages {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	for _, file := range view.Files {
		fmt.Fprintf(&b, "\nFile %s:\n%s\n", file.FilePath, file.FileContent)
	}
	return b.String(), nil
}

// recordTurn appends the exchange to the session and feeds the budget with
// the completed tracking record's numbers. All of it is best effort.
func (s *Server) recordTurn(ctx context.Context, sessionID, toolName, prompt string, resp *relaymodel.GenerateResponse) {
	if _, err := s.memory.AddMessage(ctx, sessionID, model.RoleUser, prompt,
		memory.AddMessageOptions{ToolName: toolName}); err != nil {
		logger.Logger.Warn("append user turn failed", zap.Error(err))
		return
	}
	if _, err := s.memory.AddMessage(ctx, sessionID, model.RoleAssistant, resp.Text,
		memory.AddMessageOptions{ToolName: toolName}); err != nil {
		logger.Logger.Warn("append assistant turn failed", zap.Error(err))
		return
	}

	if s.db == nil || resp.RequestID == "" {
		return
	}
	record, err := model.GetRequestByID(s.db, resp.RequestID)
	if err != nil {
		logger.Logger.Warn("load tracking record for budget failed", zap.Error(err))
		return
	}
	tokens := 0
	if record.TotalTokens != nil {
		tokens = *record.TotalTokens
	}
	cost := 0.0
	if record.CostUSD != nil {
		cost = *record.CostUSD
	}
	duration := int64(0)
	if record.DurationMs != nil {
		duration = *record.DurationMs
	}
	s.memory.UpdateBudgetUsage(ctx, sessionID, tokens, cost, duration)
}

type listModelsArgs struct{}

// providerModels is one entry of the list-ai-models structured output.
type providerModels struct {
	Provider     string   `json:"provider"`
	DefaultModel string   `json:"defaultModel"`
	Models       []string `json:"models"`
}

func (s *Server) addListModelsTool() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list-ai-models",
		Description: "List configured providers and the models each one exposes.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args listModelsArgs) (*mcp.CallToolResult, any, error) {
		registry := s.engine.Registry()

		var entries []providerModels
		var b strings.Builder
		for _, kind := range registry.ConfiguredProviders() {
			ad, err := registry.Get(kind)
			if err != nil {
				continue
			}
			entry := providerModels{
				Provider:     string(kind),
				DefaultModel: ad.DefaultModel(),
				Models:       ad.ListModels(),
			}
			entries = append(entries, entry)

			fmt.Fprintf(&b, "%s (default: %s)\n", entry.Provider, entry.DefaultModel)
			for _, m := range entry.Models {
				fmt.Fprintf(&b, "  - %s\n", m)
			}
		}
		if len(entries) == 0 {
			return textResult("No providers configured. Run `ultra-mcp config` to add credentials."), nil, nil
		}
		return textResult(b.String()), entries, nil
	})
}

func (s *Server) addChallengeTool() {
	def := toolDef{
		Name:        "challenge",
		Description: "Challenge a statement critically instead of agreeing with it.",
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        def.Name,
		Description: def.Description,
	}, func(ctx context.Context, req *mcp.CallToolRequest, args generateArgs) (*mcp.CallToolResult, any, error) {
		args.Prompt = challengePrefix + args.Prompt
		text, err := s.runTool(ctx, def, args)
		if err != nil {
			return toolError(err), nil, nil
		}
		return textResult(text), nil, nil
	})
}

// consensusArgs queries several providers with the same prompt.
type consensusArgs struct {
	Prompt    string   `json:"prompt" jsonschema_description:"The question to put to multiple models" jsonschema_required:"true"`
	Providers []string `json:"providers,omitempty" jsonschema_description:"Providers to consult; defaults to every configured provider"`
	Model     string   `json:"model,omitempty" jsonschema_description:"Model override applied to every provider"`
}

func (s *Server) addConsensusTool() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "consensus",
		Description: "Ask multiple providers the same question and collect their answers side by side.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args consensusArgs) (*mcp.CallToolResult, any, error) {
		providers := args.Providers
		if len(providers) == 0 {
			for _, kind := range s.engine.Registry().ConfiguredProviders() {
				providers = append(providers, string(kind))
			}
		}
		if len(providers) == 0 {
			return toolError(&relaymodel.ConfigurationMissingError{Provider: "any"}), nil, nil
		}

		// Fan out concurrently; sections keep the requested order.
		sections := make([]string, len(providers))
		g, gctx := errgroup.WithContext(ctx)
		for i, provider := range providers {
			i, provider := i, provider
			g.Go(func() error {
				resp, err := s.engine.Generate(gctx, &relaymodel.GenerateRequest{
					Provider: provider,
					Model:    args.Model,
					Prompt:   args.Prompt,
					ToolName: "consensus",
				})
				if err != nil {
					sections[i] = fmt.Sprintf("## %s\nerror: %v", provider, err)
					return nil
				}
				sections[i] = fmt.Sprintf("## %s (%s)\n%s", resp.Provider, resp.Model, resp.Text)
				return nil
			})
		}
		_ = g.Wait()
		return textResult(strings.Join(sections, "\n\n")), nil, nil
	})
}

// addPromptTemplates mirrors every generation tool as a discoverable prompt.
func (s *Server) addPromptTemplates() {
	for _, def := range promptTools {
		def := def
		s.server.AddPrompt(&mcp.Prompt{
			Name:        def.Name,
			Description: def.Description,
			Arguments: []*mcp.PromptArgument{
				{Name: "prompt", Description: "The question or task", Required: true},
			},
		}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			prompt := req.Params.Arguments["prompt"]
			return &mcp.GetPromptResult{
				Description: def.Description,
				Messages: []*mcp.PromptMessage{
					{
						Role:    "user",
						Content: &mcp.TextContent{Text: def.SystemPrompt + "\n\n" + prompt},
					},
				},
			}, nil
		})
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
