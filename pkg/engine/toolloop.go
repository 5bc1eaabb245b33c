package engine

import (
	"context"

	"github.com/pkg/errors"

	"github.com/relaycrm/skillengine/pkg/logger"
	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
	skilltypes "github.com/relaycrm/skillengine/pkg/types/skill"
)

// ceilingPrompt is appended as a user turn once the tool budget is spent, so
// the model produces a final answer from what it has gathered so far.
const ceilingPrompt = "Tool call limit reached. Provide your final answer based on the information gathered so far."

// runWithTools drives the tool-use loop for an AI step. Each iteration sends
// the accumulated conversation, executes any tool calls the model requests,
// and feeds the results back. The loop is bounded: at most maxToolCalls tool
// executions, and at most maxToolCalls+1 provider calls. When the budget
// runs out mid-conversation the model gets one final call with no tools
// offered.
func (e *Engine) runWithTools(ctx context.Context, ec *skilltypes.ExecutionContext, tier skilltypes.Tier, spec *skilltypes.PromptSpec, prompt string, maxToolCalls int) (string, error) {
	definitions, err := e.registry.Definitions(spec.Tools)
	if err != nil {
		return "", err
	}

	messages := []llmtypes.Message{{Role: llmtypes.RoleUser, Content: prompt}}
	callsUsed := 0

	for {
		remaining := maxToolCalls - callsUsed
		req := llmtypes.Request{
			SystemPrompt: spec.System,
			Messages:     messages,
			MaxTokens:    spec.MaxTokens,
			Temperature:  spec.Temperature,
		}
		if remaining > 0 {
			req.Tools = definitions
		}

		resp, err := e.caller.Call(ctx, ec.TenantID(), tier.Capability(), req)
		if err != nil {
			return "", err
		}
		ec.AddUsage(tier, resp.Usage)

		// A terminal stop reason ends the loop even when tool-call blocks
		// came along, e.g. a response truncated at max_tokens mid-call.
		if resp.StopReason != llmtypes.StopToolUse || len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}
		if remaining <= 0 {
			// The final no-tools call should never request tools. Guard
			// anyway so a misbehaving provider cannot unbound the loop.
			logger.G(ctx).Warn("provider requested tools on a no-tools call, returning content as-is")
			return resp.Content, nil
		}

		if len(resp.ToolCalls) > remaining {
			resp.ToolCalls = resp.ToolCalls[:remaining]
		}
		messages = append(messages, llmtypes.Message{
			Role:      llmtypes.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			result := e.registry.Run(ctx, ec, call.Name, string(call.Input))
			callsUsed++
			ec.IncrementToolCalls(1)
			messages = append(messages, llmtypes.Message{
				Role:       llmtypes.RoleTool,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Content:    result.String(),
				IsError:    result.IsError(),
			})
		}

		if callsUsed >= maxToolCalls {
			messages = append(messages, llmtypes.Message{
				Role:    llmtypes.RoleUser,
				Content: ceilingPrompt,
			})
		}
		if ctx.Err() != nil {
			return "", errors.Wrap(ctx.Err(), "tool loop cancelled")
		}
	}
}
