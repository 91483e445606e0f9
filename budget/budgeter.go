// Package budget trims a conversation history so that it fits the context
// window of a model before a completion call.
package budget

import (
	"memchat/chat"
)

// DefaultReserveFraction is the share of the context window given to the
// prompt. The rest is headroom for the reply.
const DefaultReserveFraction = 0.7

// MemoryMessageID identifies the synthesized message carrying memory context.
const MemoryMessageID = "memory-context"

type Budgeter struct {
	Limits          Limits
	ReserveFraction float64
}

func New(limits Limits, reserveFraction float64) *Budgeter {
	if limits == nil {
		limits = DefaultLimits()
	}
	if reserveFraction <= 0 || reserveFraction > 1 {
		reserveFraction = DefaultReserveFraction
	}
	return &Budgeter{Limits: limits, ReserveFraction: reserveFraction}
}

// Result is the outcome of fitting a history into a budget.
type Result struct {
	Messages []chat.Message
	// Budget is what remained for non-system messages after the memory context
	// and every system message were charged. It may be negative.
	Budget int
	// Used is the cost of the retained non-system messages.
	Used    int
	Dropped int
}

// Fit selects the system messages, an optional memory context message and the
// longest run of most recent other messages whose cost stays within budget.
// Older messages are cut as one contiguous prefix; a message is never skipped
// in favour of an older one. Fit never fails: when nothing else fits the
// result holds only the system messages.
func (b *Budgeter) Fit(messages []chat.Message, modelID, memoryContext string) Result {
	budget := int(float64(b.Limits.MaxTokens(modelID))*b.ReserveFraction) - EstimateTokens(memoryContext)

	var system, other []chat.Message
	for _, m := range messages {
		if m.Role == chat.RoleSystem {
			system = append(system, m)
			budget -= MessageCost(m)
		} else {
			other = append(other, m)
		}
	}

	used := 0
	start := len(other)
	for i := len(other) - 1; i >= 0; i-- {
		cost := MessageCost(other[i])
		if used+cost > budget {
			break
		}
		used += cost
		start = i
	}

	out := make([]chat.Message, 0, len(system)+1+len(other)-start)
	out = append(out, system...)
	if memoryContext != "" {
		out = append(out, chat.Message{
			ID:      MemoryMessageID,
			Role:    chat.RoleSystem,
			Content: memoryContext,
		})
	}
	out = append(out, other[start:]...)

	return Result{
		Messages: out,
		Budget:   budget,
		Used:     used,
		Dropped:  start,
	}
}
