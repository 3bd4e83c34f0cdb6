// Package anthropic implements model.Client on top of the Anthropic
// Messages API, including streaming and tool use.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agentcenter/core"
	"github.com/hupe1980/agentcenter/model"
)

// Options configures the Anthropic client adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Client
// interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := applyOptions(optFns)

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: applyOptions(optFns)}
}

func applyOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return opts
}

// Respond implements model.Client. It performs message rounds until the
// provider stops asking for tool use, executing requested tools through
// the request's runner in between.
func (m *Model) Respond(ctx context.Context, req model.Request) (*model.Response, error) {
	monitor := model.MonitorOrNoop(req.Monitor)
	params := m.buildParams(req)

	var (
		newMessages []core.Message
		usage       core.Usage
		callsUsed   int
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		requestID := core.NewID()
		monitor.RequestSending(requestID, string(m.opts.Model), len(params.Messages))

		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("anthropic api error: %w", err)
		}

		roundUsage := usageFrom(resp.Usage)
		usage = usage.Add(roundUsage)
		monitor.ResponseReceived(requestID, string(resp.Model), roundUsage)

		text, calls := splitContent(resp.Content)

		if len(calls) == 0 {
			newMessages = append(newMessages, core.NewAssistantMessage(text))

			return &model.Response{
				Content:  text,
				Messages: newMessages,
				Usage:    &usage,
				Model:    string(resp.Model),
			}, nil
		}

		if req.Runner == nil {
			return nil, fmt.Errorf("anthropic api error: tool use requested but no tool runner provided")
		}

		toolMsg := core.NewToolCallMessage(calls...)
		toolMsg.Content = text
		newMessages = append(newMessages, toolMsg)

		params.Messages = append(params.Messages, resp.ToParam())

		results := make([]anthropic.ContentBlockParamUnion, 0, len(calls))
		for _, call := range calls {
			result, err := req.Runner.Run(ctx, call)
			isError := err != nil

			if err != nil {
				result = fmt.Sprintf("Error: %s", err)
			}

			newMessages = append(newMessages, core.NewToolResultMessage(call.ID, call.Name, result))
			results = append(results, anthropic.NewToolResultBlock(call.ID, result, isError))
		}

		params.Messages = append(params.Messages, anthropic.NewUserMessage(results...))

		callsUsed += len(calls)
		if req.Options.MaxToolCalls > 0 && callsUsed >= req.Options.MaxToolCalls {
			// budget spent: withhold tools so the next round must answer in text
			params.Tools = nil
		}
	}
}

// Stream implements model.Client. Text deltas from every round are
// forwarded to the returned stream; tool rounds execute between them.
func (m *Model) Stream(ctx context.Context, req model.Request) (*model.Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream := model.NewStream(cancel)

	go m.produceStream(ctx, req, stream)

	return stream, nil
}

func (m *Model) produceStream(ctx context.Context, req model.Request, stream *model.Stream) {
	monitor := model.MonitorOrNoop(req.Monitor)
	params := m.buildParams(req)

	var (
		newMessages []core.Message
		usage       core.Usage
		callsUsed   int
	)

	for {
		requestID := core.NewID()
		monitor.RequestSending(requestID, string(m.opts.Model), len(params.Messages))

		sse := m.client.Messages.NewStreaming(ctx, params)
		message := anthropic.Message{}

		for sse.Next() {
			event := sse.Current()

			if err := message.Accumulate(event); err != nil {
				_ = sse.Close()
				stream.Finish(nil, fmt.Errorf("anthropic streaming error: %w", err))

				return
			}

			switch eventVariant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch deltaVariant := eventVariant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if !stream.Send(ctx, deltaVariant.Text) {
						_ = sse.Close()
						stream.Finish(nil, ctx.Err())

						return
					}
				}
			}
		}

		if err := sse.Err(); err != nil {
			stream.Finish(nil, fmt.Errorf("anthropic streaming error: %w", err))

			return
		}

		roundUsage := usageFrom(message.Usage)
		usage = usage.Add(roundUsage)
		monitor.ResponseReceived(requestID, string(message.Model), roundUsage)

		text, calls := splitContent(message.Content)

		if len(calls) == 0 {
			newMessages = append(newMessages, core.NewAssistantMessage(text))

			stream.Finish(&model.Response{
				Content:  text,
				Messages: newMessages,
				Usage:    &usage,
				Model:    string(message.Model),
			}, nil)

			return
		}

		if req.Runner == nil {
			stream.Finish(nil, fmt.Errorf("anthropic streaming error: tool use requested but no tool runner provided"))

			return
		}

		toolMsg := core.NewToolCallMessage(calls...)
		toolMsg.Content = text
		newMessages = append(newMessages, toolMsg)

		params.Messages = append(params.Messages, message.ToParam())

		results := make([]anthropic.ContentBlockParamUnion, 0, len(calls))
		for _, call := range calls {
			result, err := req.Runner.Run(ctx, call)
			isError := err != nil

			if err != nil {
				result = fmt.Sprintf("Error: %s", err)
			}

			newMessages = append(newMessages, core.NewToolResultMessage(call.ID, call.Name, result))
			results = append(results, anthropic.NewToolResultBlock(call.ID, result, isError))
		}

		params.Messages = append(params.Messages, anthropic.NewUserMessage(results...))

		callsUsed += len(calls)
		if req.Options.MaxToolCalls > 0 && callsUsed >= req.Options.MaxToolCalls {
			params.Tools = nil
		}
	}
}

// buildParams assembles the Anthropic request parameters. Instructions
// travel as system blocks; when an output schema is requested it is
// appended to the system text since the Messages API has no native
// response format parameter.
func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	temperature := m.opts.Temperature
	if req.Options.Temperature != nil {
		temperature = *req.Options.Temperature
	}

	maxTokens := m.opts.MaxTokens
	if req.Options.MaxTokens != nil {
		maxTokens = *req.Options.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    buildMessages(req),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}

	system := req.Instructions

	if req.Options.OutputSchema != nil {
		if schemaBytes, err := json.Marshal(req.Options.OutputSchema); err == nil {
			system += fmt.Sprintf(
				"\n\nRespond only with a single JSON object conforming to this JSON schema, with no surrounding text:\n%s",
				string(schemaBytes),
			)
		}
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	return params
}

// buildMessages converts replayed history and the new prompt into
// Anthropic message params. Historical assistant tool-call messages are
// rendered as plain text: the Messages API requires tool results to
// follow tool use, and prior results are not replayed.
func buildMessages(req model.Request) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)

	for _, msg := range req.History {
		switch msg.Role {
		case core.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case core.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(describeToolCalls(msg))))
				continue
			}

			if msg.Content != "" {
				messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
			}
		case core.RoleSystem, core.RoleTool:
			// system text travels in params.System; prior tool results are not replayed
		}
	}

	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt.Content)))

	return messages
}

// describeToolCalls renders a historical tool-call message as assistant text.
func describeToolCalls(msg core.Message) string {
	var sb strings.Builder

	if msg.Content != "" {
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}

	for i, call := range msg.ToolCalls {
		if i > 0 {
			sb.WriteString("\n")
		}

		fmt.Fprintf(&sb, "[tool call] %s(%s)", call.Name, call.Arguments)
	}

	return sb.String()
}

// splitContent separates a response's content blocks into concatenated
// text and the tool calls it requested.
func splitContent(blocks []anthropic.ContentBlockUnion) (string, []core.ToolCall) {
	var (
		sb    strings.Builder
		calls []core.ToolCall
	)

	for _, block := range blocks {
		switch block.Type {
		case "text":
			sb.WriteString(block.AsText().Text)
		case "tool_use":
			toolBlock := block.AsToolUse()

			args := ""
			if toolBlock.Input != nil {
				if argsBytes, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(argsBytes)
				}
			}

			calls = append(calls, core.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			})
		}
	}

	return sb.String(), calls
}

// buildTools converts tool definitions to the Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if tool.Function.Parameters != nil {
			params := tool.Function.Parameters

			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}

			if required, exists := params["required"]; exists {
				switch req := required.(type) {
				case []string:
					inputSchema.Required = req
				case []any:
					reqStrings := make([]string, 0, len(req))
					for _, r := range req {
						if s, ok := r.(string); ok {
							reqStrings = append(reqStrings, s)
						}
					}

					inputSchema.Required = reqStrings
				}
			}
		}

		toolUnion := anthropic.ToolUnionParamOfTool(inputSchema, tool.Function.Name)
		if toolUnion.OfTool != nil && tool.Function.Description != "" {
			toolUnion.OfTool.Description = anthropic.String(tool.Function.Description)
		}

		anthropicTools[i] = toolUnion
	}

	return anthropicTools
}

func usageFrom(u anthropic.Usage) core.Usage {
	return core.Usage{
		PromptTokens:     int(u.InputTokens),
		CompletionTokens: int(u.OutputTokens),
		TotalTokens:      int(u.InputTokens + u.OutputTokens),
		CachedTokens:     int(u.CacheReadInputTokens),
	}
}
