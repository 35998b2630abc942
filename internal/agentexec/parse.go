package agentexec

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"time"

	"pipeline/internal/model"
)

// rawEvent is the union of every field name across the schemas this parser
// normalizes: the assistant/tool_use/tool_result/result/system family, a
// legacy direct-message shape, and alternative tools' item-events.
type rawEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`

	// assistant / legacy direct-message
	Message string `json:"message"`
	Content json.RawMessage `json:"content"`
	Text    string `json:"text"`

	// tool_use
	ToolName  string          `json:"tool_name"`
	Name      string          `json:"name"`
	ToolInput json.RawMessage `json:"tool_input"`
	Input     json.RawMessage `json:"input"`

	// tool_result
	ToolResult json.RawMessage `json:"tool_result"`
	Output     json.RawMessage `json:"output"`
	Result     json.RawMessage `json:"result"`

	// item-events (alternative tools, e.g. codex's exec --json)
	Item *rawItem `json:"item"`
}

type rawItem struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Command string `json:"command"`
}

// parseStream reads r line by line and hands one normalized message per
// non-blank line to onMessage, returning only the scanner's error. It must
// not buffer the whole stream: each line is parsed and emitted as it
// arrives, so a caller streaming to the event bus can forward messages as
// the subprocess produces them.
func parseStream(identity model.AgentIdentity, r io.Reader, onMessage func(model.AgentMessage)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		onMessage(parseLine(identity, line))
	}
	return scanner.Err()
}

func parseLine(identity model.AgentIdentity, line string) model.AgentMessage {
	now := time.Now()
	var ev rawEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return model.AgentMessage{
			Kind:      model.MessageAssistant,
			Timestamp: now,
			Agent:     identity,
			Content:   line,
			Raw:       line,
		}
	}

	msg := model.AgentMessage{Timestamp: now, Agent: identity, Raw: line}

	switch {
	case ev.Item != nil:
		return itemEventMessage(identity, line, ev.Item)
	case ev.Type == "tool_use" || (ev.ToolName != "" || ev.Name != ""):
		msg.Kind = model.MessageToolUse
		if ev.ToolName != "" {
			msg.ToolName = ev.ToolName
		} else {
			msg.ToolName = ev.Name
		}
		msg.ToolInput = firstNonEmptyRaw(ev.ToolInput, ev.Input)
		return msg
	case ev.Type == "tool_result":
		msg.Kind = model.MessageToolResult
		msg.ToolResult = firstNonEmptyRaw(ev.ToolResult, ev.Output, ev.Result)
		return msg
	case ev.Type == "result":
		msg.Kind = model.MessageResult
		msg.Content = firstNonEmpty(ev.Text, ev.Message, string(ev.Content))
		return msg
	case ev.Type == "system":
		msg.Kind = model.MessageSystem
		msg.Content = firstNonEmpty(ev.Text, ev.Message, ev.Subtype)
		return msg
	case ev.Type == "assistant" || ev.Type == "" || ev.Message != "" || ev.Text != "":
		msg.Kind = model.MessageAssistant
		msg.Content = firstNonEmpty(ev.Text, ev.Message, contentAsText(ev.Content))
		if msg.Content == "" {
			msg.Content = line
		}
		return msg
	default:
		msg.Kind = model.MessageAssistant
		msg.Content = line
		return msg
	}
}

// itemEventMessage handles the codex-style {"item": {...}} envelope.
func itemEventMessage(identity model.AgentIdentity, line string, item *rawItem) model.AgentMessage {
	msg := model.AgentMessage{Agent: identity, Raw: line}
	switch item.Type {
	case "command_execution", "tool_call":
		msg.Kind = model.MessageToolUse
		msg.ToolName = "shell"
		msg.ToolInput = item.Command
	case "command_output", "tool_result":
		msg.Kind = model.MessageToolResult
		msg.ToolResult = item.Text
	default:
		msg.Kind = model.MessageAssistant
		msg.Content = item.Text
	}
	return msg
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptyRaw(vals ...json.RawMessage) string {
	for _, v := range vals {
		if len(v) > 0 {
			return string(v)
		}
	}
	return ""
}

// contentAsText best-efforts a string out of an arbitrary "content" field,
// which some schemas emit as a plain string and others as a list of
// {type, text} blocks.
func contentAsText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var b strings.Builder
		for _, blk := range blocks {
			if blk.Text != "" {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString(blk.Text)
			}
		}
		return b.String()
	}
	return ""
}
