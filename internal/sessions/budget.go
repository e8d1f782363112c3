package sessions

import (
	"github.com/jetlinks-ai/aistaff/internal/events"
	"github.com/jetlinks-ai/aistaff/internal/providers"
)

// Limits bounds the prompt sent to the provider.
type Limits struct {
	MaxSessionMessages int
	MaxContextChars    int
}

// Budget trims a conversation to the limits, deterministically:
//
//  1. The system message is always kept; if it alone exceeds the budget it
//     is truncated at the end with an explicit marker.
//  2. At most MaxSessionMessages most-recent conversational messages survive.
//  3. While the character estimate exceeds MaxContextChars, the oldest
//     non-system group is dropped. An assistant message with tool calls and
//     its paired tool results drop as one group.
//
// The returned ContextTrim event is nil when nothing was dropped.
func Budget(system providers.Message, history []providers.Message, lim Limits) ([]providers.Message, *events.ContextTrim) {
	droppedMsgs, droppedChars := 0, 0

	if lim.MaxContextChars > 0 && len(system.Content) > lim.MaxContextChars {
		droppedChars += len(system.Content) - lim.MaxContextChars
		system.Content = system.Content[:lim.MaxContextChars] + "…(system prompt truncated)"
	}

	kept := history
	if lim.MaxSessionMessages > 0 && len(kept) > lim.MaxSessionMessages {
		cut := len(kept) - lim.MaxSessionMessages
		for _, m := range kept[:cut] {
			droppedChars += messageChars(m)
		}
		droppedMsgs += cut
		kept = kept[cut:]
	}

	if lim.MaxContextChars > 0 {
		budget := lim.MaxContextChars - len(system.Content)
		for charEstimate(kept) > budget && len(kept) > 0 {
			group := groupLen(kept)
			for _, m := range kept[:group] {
				droppedChars += messageChars(m)
			}
			droppedMsgs += group
			kept = kept[group:]
		}
	}

	out := make([]providers.Message, 0, len(kept)+1)
	out = append(out, system)
	out = append(out, kept...)

	if droppedMsgs == 0 && droppedChars == 0 {
		return out, nil
	}
	return out, &events.ContextTrim{DroppedMessages: droppedMsgs, DroppedChars: droppedChars}
}

// groupLen returns how many leading messages form one droppable unit: an
// assistant message with tool calls plus its paired tool results, or a
// single message otherwise.
func groupLen(msgs []providers.Message) int {
	if len(msgs) == 0 {
		return 0
	}
	head := msgs[0]
	if head.Role != "assistant" || len(head.ToolCalls) == 0 {
		return 1
	}
	n := 1
	for n < len(msgs) && msgs[n].Role == "tool" {
		n++
	}
	return n
}

// messageChars estimates one message's contribution: textual fields plus
// tool payload JSON.
func messageChars(m providers.Message) int {
	n := len(m.Content)
	for _, tc := range m.ToolCalls {
		n += len(tc.Name) + len(tc.Args)
	}
	return n
}

func charEstimate(msgs []providers.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageChars(m)
	}
	return total
}
