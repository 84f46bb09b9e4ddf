// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/jeranaias/puppet/internal/llm"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// generateRequest is the Vertex/Gemini streaming generation request body.
// The API uses camelCase field names throughout.
type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []toolDecl        `json:"tools,omitempty"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text             string            `json:"text,omitempty"`
	InlineData       *inlineData       `json:"inlineData,omitempty"`
	FunctionCall     *functionCall     `json:"functionCall,omitempty"`
	FunctionResponse *functionResponse `json:"functionResponse,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type functionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type functionResponse struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

type toolDecl struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type functionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// streamResponse is one element of the bracketed response array.
type streamResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// =============================================================================
// PROJECTION
// =============================================================================

// finishStop is the provider's normal-termination sentinel.
const finishStop = "STOP"

// decodeResponse projects one array element into engine frames. Gemini
// delivers function-call arguments complete in a single part, so each call
// becomes one fragment carrying the whole argument string. The API has no
// call ids; synthetic ids are derived from the running call index.
func decodeResponse(data []byte, nextCallIndex *int) ([]llm.StreamFrame, error) {
	var resp streamResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &llm.DecodeError{Message: "malformed stream element", Err: err}
	}

	var frames []llm.StreamFrame

	for _, candidate := range resp.Candidates {
		for _, p := range candidate.Content.Parts {
			if p.FunctionCall != nil {
				index := *nextCallIndex
				*nextCallIndex++
				frames = append(frames, llm.ToolCallFrame(
					index,
					fmt.Sprintf("call_%d", index),
					p.FunctionCall.Name,
					string(p.FunctionCall.Args),
				))
				continue
			}
			frames = append(frames, llm.TextFrame(p.Text))
		}
		if candidate.FinishReason != "" {
			frames = append(frames, llm.EndFrame(candidate.FinishReason))
		}
	}

	if resp.UsageMetadata != nil {
		frames = append(frames, llm.UsageFrame(llm.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}))
	}

	return frames, nil
}

// encodeContent projects one engine message into the wire format. The API
// addresses tool results by function name, carried on the message.
func encodeContent(msg llm.Message) content {
	switch msg.Role {
	case llm.RoleAssistant:
		c := content{Role: "model"}
		if len(msg.ToolCalls) > 0 {
			for _, call := range msg.ToolCalls {
				args := json.RawMessage(call.Arguments)
				if len(args) == 0 {
					args = json.RawMessage("{}")
				}
				c.Parts = append(c.Parts, part{
					FunctionCall: &functionCall{Name: call.Name, Args: args},
				})
			}
			return c
		}
		c.Parts = []part{{Text: msg.Text()}}
		return c

	case llm.RoleTool:
		return content{
			Role: "user",
			Parts: []part{{
				FunctionResponse: &functionResponse{
					Name:     msg.ToolName,
					Response: wrapResponse(msg.Text()),
				},
			}},
		}

	default:
		c := content{Role: "user"}
		for _, p := range msg.Parts {
			switch p.Kind {
			case llm.PartText:
				c.Parts = append(c.Parts, part{Text: p.Text})
			case llm.PartData:
				c.Parts = append(c.Parts, part{
					InlineData: &inlineData{MimeType: p.MIME, Data: p.Data},
				})
			}
		}
		return c
	}
}

// wrapResponse packages a tool result value into the object envelope the
// API requires for function responses.
func wrapResponse(value string) json.RawMessage {
	raw := json.RawMessage(value)
	if !json.Valid(raw) {
		encoded, _ := json.Marshal(value)
		raw = encoded
	}
	envelope, _ := json.Marshal(map[string]json.RawMessage{"result": raw})
	return envelope
}

// encodeTools projects tool specs into function declarations.
func encodeTools(specs []llm.ToolSpec) []toolDecl {
	if len(specs) == 0 {
		return nil
	}
	decls := make([]functionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decls = append(decls, functionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Parameters,
		})
	}
	return []toolDecl{{FunctionDeclarations: decls}}
}
