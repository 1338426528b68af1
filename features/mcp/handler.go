package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"podrag/features/episode"
	"podrag/internal/retrieval"
)

type QueryEngine interface {
	Query(ctx context.Context, question string, history []retrieval.Turn) (string, error)
	GetEpisodeInfo(ctx context.Context, date string) (*episode.Episode, error)
	ListEpisodes(ctx context.Context, start, end string) ([]episode.Episode, error)
}

// Handler exposes the query engine as JSON-RPC 2.0 tool calls. It is a thin
// dispatch layer: the engine owns all retrieval logic, and the auth gate has
// already run by the time a request reaches it.
type Handler struct {
	engine QueryEngine
}

func NewHandler(engine QueryEngine) *Handler {
	return &Handler{engine: engine}
}

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type QueryArgs struct {
	Question string           `json:"question"`
	History  []retrieval.Turn `json:"history,omitempty"`
}

type EpisodeInfoArgs struct {
	Date string `json:"date"`
}

type ListEpisodesArgs struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, makeErrorResponse(nil, ErrParse, "Parse error"))
		return
	}

	resp := h.processRequest(r.Context(), req)
	if resp == nil {
		// Notifications get no response body.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeResponse(w, *resp)
}

func writeResponse(w http.ResponseWriter, resp JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode json-rpc response", "error", err)
	}
}

func (h *Handler) processRequest(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"capabilities": map[string]interface{}{
					"tools": map[string]interface{}{},
				},
				"serverInfo": map[string]interface{}{
					"name":    "podrag-mcp",
					"version": "1.0.0",
				},
			},
		}

	case "notifications/initialized":
		return nil

	case "tools/list":
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  ListToolsResult{Tools: toolDefinitions()},
		}

	case "tools/call":
		return h.callTool(ctx, req)
	}

	resp := makeErrorResponse(req.ID, ErrMethodNotFound, "Method not found")
	return &resp
}

func toolDefinitions() []Tool {
	return []Tool{
		{
			Name: "query_podcast",
			Description: `Ask a free-text question about the podcast's content. Answers are grounded in transcript passages retrieved from the episode index; each passage carries its episode date so answers can reference when something was said. Pass prior turns in "history" to keep a conversation going.`,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"question": map[string]string{
						"type":        "string",
						"description": "The question to ask about the podcast content",
					},
					"history": map[string]interface{}{
						"type":        "array",
						"description": "Optional prior conversation turns, oldest first",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"role":    map[string]string{"type": "string", "description": "user or model"},
								"content": map[string]string{"type": "string"},
							},
						},
					},
				},
				"required": []string{"question"},
			},
		},
		{
			Name:        "get_episode_info",
			Description: `Look up the metadata of the episode published on a given date (title, description, link, duration). Returns a not-found message when no episode exists for that date.`,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"date": map[string]string{
						"type":        "string",
						"description": "Publish date, e.g. 2025-07-08",
					},
				},
				"required": []string{"date"},
			},
		},
		{
			Name:        "list_episodes",
			Description: `List episodes published within an inclusive date range, oldest first. Defaults to the last 3 months when dates are omitted; the range cannot exceed 12 months.`,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"start_date": map[string]string{
						"type":        "string",
						"description": "Range start, e.g. 2025-01-01",
					},
					"end_date": map[string]string{
						"type":        "string",
						"description": "Range end, e.g. 2025-06-30",
					},
				},
			},
		},
	}
}

func (h *Handler) callTool(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	var params CallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		slog.WarnContext(ctx, "invalid params structure", "error", err)
		resp := makeErrorResponse(req.ID, ErrInvalidParams, "Invalid params")
		return &resp
	}

	switch params.Name {
	case "query_podcast":
		return h.queryPodcast(ctx, req.ID, params.Arguments)
	case "get_episode_info":
		return h.getEpisodeInfo(ctx, req.ID, params.Arguments)
	case "list_episodes":
		return h.listEpisodes(ctx, req.ID, params.Arguments)
	}

	resp := makeErrorResponse(req.ID, ErrMethodNotFound, fmt.Sprintf("Unknown tool: %s", params.Name))
	return &resp
}

func (h *Handler) queryPodcast(ctx context.Context, id interface{}, args json.RawMessage) *JSONRPCResponse {
	var a QueryArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Question == "" {
		resp := makeErrorResponse(id, ErrInvalidParams, "question is required")
		return &resp
	}

	answer, err := h.engine.Query(ctx, a.Question, a.History)
	if err != nil {
		slog.ErrorContext(ctx, "query failed", "error", err)
		resp := makeToolError(id, fmt.Sprintf("Error querying podcast: %v", err))
		return &resp
	}

	resp := makeToolText(id, answer)
	return &resp
}

func (h *Handler) getEpisodeInfo(ctx context.Context, id interface{}, args json.RawMessage) *JSONRPCResponse {
	var a EpisodeInfoArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Date == "" {
		resp := makeErrorResponse(id, ErrInvalidParams, "date is required")
		return &resp
	}

	ep, err := h.engine.GetEpisodeInfo(ctx, a.Date)
	if errors.Is(err, episode.ErrNotFound) {
		resp := makeToolText(id, fmt.Sprintf("No episode found for date %s", a.Date))
		return &resp
	}
	if err != nil {
		slog.ErrorContext(ctx, "episode lookup failed", "error", err)
		resp := makeToolError(id, fmt.Sprintf("Error looking up episode: %v", err))
		return &resp
	}

	encoded, err := json.MarshalIndent(ep, "", "  ")
	if err != nil {
		resp := makeErrorResponse(id, ErrInternal, "Internal error")
		return &resp
	}
	resp := makeToolText(id, string(encoded))
	return &resp
}

func (h *Handler) listEpisodes(ctx context.Context, id interface{}, args json.RawMessage) *JSONRPCResponse {
	var a ListEpisodesArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			resp := makeErrorResponse(id, ErrInvalidParams, "Invalid params")
			return &resp
		}
	}

	episodes, err := h.engine.ListEpisodes(ctx, a.StartDate, a.EndDate)
	if err != nil {
		slog.ErrorContext(ctx, "episode listing failed", "error", err)
		resp := makeToolError(id, fmt.Sprintf("Error listing episodes: %v", err))
		return &resp
	}

	type summary struct {
		EpisodeName string `json:"episode_name"`
		Date        string `json:"date"`
	}
	summaries := make([]summary, 0, len(episodes))
	for _, ep := range episodes {
		summaries = append(summaries, summary{
			EpisodeName: ep.Title,
			Date:        ep.PublishedAt.Format("2006-01-02"),
		})
	}

	encoded, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		resp := makeErrorResponse(id, ErrInternal, "Internal error")
		return &resp
	}
	resp := makeToolText(id, string(encoded))
	return &resp
}

func makeErrorResponse(id interface{}, code int, message string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
		},
	}
}

func makeToolText(id interface{}, text string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: ToolResult{
			Content: []ToolContent{{Type: "text", Text: text}},
		},
	}
}

func makeToolError(id interface{}, text string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: ToolResult{
			Content: []ToolContent{{Type: "text", Text: text}},
			IsError: true,
		},
	}
}
