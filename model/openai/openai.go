// Package openai implements model.Client on top of the OpenAI Chat
// Completions API (including streaming and function/tool calling). It
// adapts the normalized Request/Response structures into the SDK's
// message format, drives the tool-call loop through the injected
// ToolRunner, and reports every API round trip to the Monitor.
package openai

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/agentcenter/core"
	"github.com/hupe1980/agentcenter/model"
)

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// allowing reconstruction of complete tool calls when the stream ends.
type aggCall struct{ id, name, args string }

// Options configure the OpenAI client adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
}

// Model wraps the OpenAI Chat Completions API behind the generic
// model.Client interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := applyOptions(optFns)

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := openai.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: applyOptions(optFns)}
}

func applyOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return opts
}

// Respond implements model.Client. It performs completion rounds until
// the provider answers with plain content, executing requested tools
// through the request's runner in between.
func (m *Model) Respond(ctx context.Context, req model.Request) (*model.Response, error) {
	monitor := model.MonitorOrNoop(req.Monitor)
	params := m.buildParams(req, buildMessages(req))

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
		monitor.RequestSending(requestID, m.opts.Model, len(params.Messages))

		resp, err := m.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("openai api error: %w", err)
		}

		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("openai api error: no choices returned")
		}

		responseModel := m.opts.Model
		if resp.Model != "" {
			responseModel = resp.Model
		}

		roundUsage := usageFrom(resp.Usage)
		usage = usage.Add(roundUsage)
		monitor.ResponseReceived(requestID, responseModel, roundUsage)

		message := resp.Choices[0].Message

		if len(message.ToolCalls) == 0 {
			newMessages = append(newMessages, core.NewAssistantMessage(message.Content))

			return &model.Response{
				Content:  message.Content,
				Messages: newMessages,
				Usage:    &usage,
				Model:    responseModel,
			}, nil
		}

		if req.Runner == nil {
			return nil, fmt.Errorf("openai api error: tool calls requested but no tool runner provided")
		}

		calls := make([]core.ToolCall, len(message.ToolCalls))
		for i, tc := range message.ToolCalls {
			calls[i] = core.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
		}

		toolMsg := core.NewToolCallMessage(calls...)
		toolMsg.Content = message.Content
		newMessages = append(newMessages, toolMsg)

		params.Messages = append(params.Messages, message.ToParam())

		for _, call := range calls {
			result, err := req.Runner.Run(ctx, call)
			if err != nil {
				result = fmt.Sprintf("Error: %s", err)
			}

			newMessages = append(newMessages, core.NewToolResultMessage(call.ID, call.Name, result))
			params.Messages = append(params.Messages, openai.ToolMessage(result, call.ID))
		}

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
	params := m.buildParams(req, buildMessages(req))
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	var (
		newMessages []core.Message
		usage       core.Usage
		callsUsed   int
	)

	for {
		requestID := core.NewID()
		monitor.RequestSending(requestID, m.opts.Model, len(params.Messages))

		sse := m.client.Chat.Completions.NewStreaming(ctx, params)

		var (
			textBuilder   strings.Builder
			roundUsage    core.Usage
			responseModel = m.opts.Model
		)

		toolAgg := map[int64]*aggCall{}

		for sse.Next() {
			chunk := sse.Current()

			if chunk.Model != "" {
				responseModel = chunk.Model
			}

			if chunk.Usage.TotalTokens > 0 {
				roundUsage = usageFrom(chunk.Usage)
			}

			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					textBuilder.WriteString(choice.Delta.Content)

					if !stream.Send(ctx, choice.Delta.Content) {
						_ = sse.Close()
						stream.Finish(nil, ctx.Err())

						return
					}
				}

				for _, tc := range choice.Delta.ToolCalls {
					ac, ok := toolAgg[tc.Index]
					if !ok {
						ac = &aggCall{}
						toolAgg[tc.Index] = ac
					}

					if tc.ID != "" {
						ac.id = tc.ID
					}

					if tc.Function.Name != "" {
						ac.name = tc.Function.Name
					}

					if tc.Function.Arguments != "" {
						ac.args += tc.Function.Arguments
					}
				}
			}
		}

		if err := sse.Err(); err != nil {
			stream.Finish(nil, fmt.Errorf("openai streaming error: %w", err))

			return
		}

		usage = usage.Add(roundUsage)
		monitor.ResponseReceived(requestID, responseModel, roundUsage)

		if len(toolAgg) == 0 {
			finalText := textBuilder.String()
			newMessages = append(newMessages, core.NewAssistantMessage(finalText))

			stream.Finish(&model.Response{
				Content:  finalText,
				Messages: newMessages,
				Usage:    &usage,
				Model:    responseModel,
			}, nil)

			return
		}

		if req.Runner == nil {
			stream.Finish(nil, fmt.Errorf("openai streaming error: tool calls requested but no tool runner provided"))

			return
		}

		indexes := slices.Sorted(maps.Keys(toolAgg))

		calls := make([]core.ToolCall, 0, len(toolAgg))
		toolCallParams := make([]openai.ChatCompletionMessageToolCallParam, 0, len(toolAgg))

		for _, idx := range indexes {
			ac := toolAgg[idx]
			calls = append(calls, core.ToolCall{ID: ac.id, Name: ac.name, Arguments: ac.args})
			toolCallParams = append(toolCallParams, openai.ChatCompletionMessageToolCallParam{
				ID:   ac.id,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      ac.name,
					Arguments: ac.args,
				},
			})
		}

		toolMsg := core.NewToolCallMessage(calls...)
		toolMsg.Content = textBuilder.String()
		newMessages = append(newMessages, toolMsg)

		params.Messages = append(params.Messages, openai.ChatCompletionMessageParamUnion{
			OfAssistant: &openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: toolCallParams,
			},
		})

		for _, call := range calls {
			result, err := req.Runner.Run(ctx, call)
			if err != nil {
				result = fmt.Sprintf("Error: %s", err)
			}

			newMessages = append(newMessages, core.NewToolResultMessage(call.ID, call.Name, result))
			params.Messages = append(params.Messages, openai.ToolMessage(result, call.ID))
		}

		callsUsed += len(calls)
		if req.Options.MaxToolCalls > 0 && callsUsed >= req.Options.MaxToolCalls {
			params.Tools = nil
		}
	}
}

// buildMessages converts instructions, replayed history and the new
// prompt into OpenAI chat messages. Historical assistant tool-call
// messages are rendered as plain text: chat completions require tool
// results to follow tool calls, and prior results are not replayed.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)

	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}

	for _, msg := range req.History {
		switch msg.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case core.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				messages = append(messages, openai.AssistantMessage(describeToolCalls(msg)))
				continue
			}

			messages = append(messages, openai.AssistantMessage(msg.Content))
		case core.RoleTool:
			// prior tool results are not replayed
		}
	}

	messages = append(messages, openai.UserMessage(req.Prompt.Content))

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

// buildParams assembles the OpenAI request parameters including tool
// definitions and the optional JSON output schema.
func (m *Model) buildParams(
	req model.Request,
	messages []openai.ChatCompletionMessageParamUnion,
) openai.ChatCompletionNewParams {
	temperature := m.opts.Temperature
	if req.Options.Temperature != nil {
		temperature = *req.Options.Temperature
	}

	maxTokens := m.opts.MaxCompletionTokens
	if req.Options.MaxTokens != nil {
		maxTokens = *req.Options.MaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, tdef := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tdef.Function.Name,
					Description: openai.String(tdef.Function.Description),
					Parameters:  tdef.Function.Parameters,
				},
			}
		}

		params.Tools = tools
	}

	if req.Options.OutputSchema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "response",
					Schema: req.Options.OutputSchema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	return params
}

func usageFrom(u openai.CompletionUsage) core.Usage {
	return core.Usage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		TotalTokens:      int(u.TotalTokens),
		CachedTokens:     int(u.PromptTokensDetails.CachedTokens),
	}
}
