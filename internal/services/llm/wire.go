package llm

import "strings"

type wireRequest struct {
	Model          string            `json:"model"`
	Messages       []wireMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireResponse struct {
	Choices []wireChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// wireChoice accepts the message, streaming delta and legacy text shapes;
// providers disagree on which one a non-streamed reply uses.
type wireChoice struct {
	Message      wireReply `json:"message"`
	Delta        wireReply `json:"delta"`
	Text         string    `json:"text"`
	FinishReason string    `json:"finish_reason"`
}

type wireReply struct {
	Content   string `json:"content"`
	Refusal   string `json:"refusal"`
	ToolCalls []struct {
		Function struct {
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

// text returns the first non-blank content across choices, then the first
// tool-call arguments.
func (r wireResponse) text() string {
	for _, choice := range r.Choices {
		for _, candidate := range []string{choice.Message.Content, choice.Delta.Content, choice.Text} {
			if s := strings.TrimSpace(candidate); s != "" {
				return s
			}
		}
		for _, reply := range []wireReply{choice.Message, choice.Delta} {
			for _, call := range reply.ToolCalls {
				if args := strings.TrimSpace(call.Function.Arguments); args != "" {
					return args
				}
			}
		}
	}
	return ""
}

func (r wireResponse) finishReason() string {
	for _, choice := range r.Choices {
		if reason := strings.TrimSpace(choice.FinishReason); reason != "" {
			return reason
		}
	}
	return ""
}

func (r wireResponse) refusal() string {
	for _, choice := range r.Choices {
		for _, candidate := range []string{choice.Message.Refusal, choice.Delta.Refusal} {
			if s := strings.TrimSpace(candidate); s != "" {
				return s
			}
		}
	}
	return ""
}
