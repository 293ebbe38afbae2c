// Package assistant runs the shopping assistant's tool-call loop: it offers
// the tool server's tools to the chat model, dispatches the calls the model
// makes and renders their results as conversation turns.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/radutopala/cosmoshop/internal/llm"
	"github.com/radutopala/cosmoshop/internal/mcpclient"
	"github.com/radutopala/cosmoshop/internal/metrics"
)

// Turn roles.
const (
	RoleUser      = llm.RoleUser
	RoleAssistant = llm.RoleAssistant
)

// SystemPrompt opens every conversation sent to the model.
const SystemPrompt = "You are a helpful shopping assistant that helps customers find products and answers questions about them."

// FallbackMessage is the single turn returned when anything in the loop fails.
const FallbackMessage = "Sorry, I encountered an error processing your request."

// UnknownToolPolicy decides what happens to a tool call without a formatter.
type UnknownToolPolicy string

const (
	// PolicySkip logs the call and produces no turn.
	PolicySkip UnknownToolPolicy = "skip"
	// PolicySurface adds an assistant turn naming the tool.
	PolicySurface UnknownToolPolicy = "surface"
)

// ErrUnknownPolicy is returned by ParsePolicy for unsupported values.
var ErrUnknownPolicy = errors.New("unknown tool policy")

// ParsePolicy parses a configured policy name. Empty means PolicySkip.
func ParsePolicy(s string) (UnknownToolPolicy, error) {
	switch UnknownToolPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicySurface:
		return PolicySurface, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// ToolClient is the tool server as seen by the orchestrator.
type ToolClient interface {
	ListTools(ctx context.Context) ([]mcpclient.Tool, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (string, error)
}

// Reply is the outcome of one user message.
type Reply struct {
	Turns    []Turn `json:"turns"`
	Navigate string `json:"navigate,omitempty"`
}

// Options configures an Orchestrator. Zero values select the defaults.
type Options struct {
	Model         string
	Tools         ToolTable
	Formatters    FormatterTable
	UnknownPolicy UnknownToolPolicy
}

// Orchestrator answers user messages using the chat model and the tool server.
type Orchestrator struct {
	llm        llm.LLMClient
	tools      ToolClient
	model      string
	toolTable  ToolTable
	formatters FormatterTable
	policy     UnknownToolPolicy
	logger     *slog.Logger
}

// New creates an orchestrator.
func New(llmClient llm.LLMClient, toolClient ToolClient, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.Tools == nil {
		opts.Tools = ToolTable{}
	}
	if opts.Formatters == nil {
		opts.Formatters = DefaultFormatters()
	}
	if opts.UnknownPolicy == "" {
		opts.UnknownPolicy = PolicySkip
	}
	return &Orchestrator{
		llm:        llmClient,
		tools:      toolClient,
		model:      opts.Model,
		toolTable:  opts.Tools,
		formatters: opts.Formatters,
		policy:     opts.UnknownPolicy,
		logger:     logger.With("component", "assistant"),
	}
}

// Respond answers message given the prior conversation. It never returns an
// error: every failure collapses into a single fallback turn.
func (o *Orchestrator) Respond(ctx context.Context, message string, history []Turn) Reply {
	reply, err := o.respond(ctx, message, history)
	if err != nil {
		o.logger.Error("Assistant turn failed", "error", err)
		metrics.RecordAssistantTurn("fallback")
		return Reply{Turns: []Turn{*assistantTurn(FallbackMessage)}}
	}
	return reply
}

// Messages assembles the model input: system prompt, prior turns verbatim,
// then the new user message.
func Messages(message string, history []Turn) []llm.ChatMessage {
	messages := make([]llm.ChatMessage, 0, len(history)+2)
	messages = append(messages, llm.ChatMessage{Role: llm.RoleSystem, Content: SystemPrompt})
	for _, t := range history {
		messages = append(messages, llm.ChatMessage{Role: t.Role, Content: t.Content})
	}
	return append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: message})
}

func (o *Orchestrator) respond(ctx context.Context, message string, history []Turn) (Reply, error) {
	descriptors, err := o.tools.ListTools(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("list tools: %w", err)
	}
	known := make([]string, len(descriptors))
	for i, d := range descriptors {
		known[i] = d.Name
	}

	resp, err := o.llm.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
		Model:    o.model,
		Messages: Messages(message, history),
		Tools:    o.toolTable.Definitions(descriptors),
	})
	if err != nil {
		return Reply{}, err
	}
	if len(resp.Choices) == 0 {
		return Reply{}, fmt.Errorf("%w: no choices in response", llm.ErrUpstream)
	}
	choice := resp.Choices[0]

	if choice.FinishReason != llm.FinishReasonToolCalls {
		metrics.RecordAssistantTurn("message")
		if choice.Message.Content == "" {
			return Reply{Turns: []Turn{}}, nil
		}
		return Reply{Turns: []Turn{*assistantTurn(choice.Message.Content)}}, nil
	}

	reply := Reply{Turns: []Turn{}}
	for _, call := range choice.Message.ToolCalls {
		if err := o.dispatch(ctx, call, known, &reply); err != nil {
			return Reply{}, err
		}
	}
	metrics.RecordAssistantTurn("tool_calls")
	return reply, nil
}

// dispatch runs one tool call and appends its rendered result to reply.
func (o *Orchestrator) dispatch(ctx context.Context, call llm.ToolCall, known []string, reply *Reply) error {
	name := call.Function.Name
	formatter, ok := o.formatters[name]
	if !ok {
		o.unrecognised(name, known, reply)
		return nil
	}

	args, err := o.toolTable.Arguments(name, call.Function.Arguments)
	if err != nil {
		return err
	}

	o.logger.Info("Calling tool", "tool", name, "call_id", call.ID)
	payload, err := o.tools.CallTool(ctx, name, args)
	if err != nil {
		return err
	}

	formatted, err := formatter.Format(payload)
	if err != nil {
		return fmt.Errorf("format %s result: %w", name, err)
	}
	if formatted.Turn != nil {
		reply.Turns = append(reply.Turns, *formatted.Turn)
	}
	if formatted.Navigate != "" {
		reply.Navigate = formatted.Navigate
	}
	return nil
}

func (o *Orchestrator) unrecognised(name string, known []string, reply *Reply) {
	metrics.RecordUnknownToolCall(name)

	attrs := []any{"tool", name, "policy", string(o.policy)}
	if hint, ok := closestTool(name, known); ok {
		attrs = append(attrs, "did_you_mean", hint)
	}
	o.logger.Warn("Unrecognised tool call", attrs...)

	if o.policy == PolicySurface {
		reply.Turns = append(reply.Turns, *assistantTurn(fmt.Sprintf("I tried to use a tool I don't know how to handle: %s.", name)))
	}
}
