package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/contactsearch/internal/indexer"
	"github.com/dshills/contactsearch/internal/logger"
	"github.com/dshills/contactsearch/internal/searcher"
	"github.com/dshills/contactsearch/internal/storage"
	"github.com/dshills/contactsearch/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound           = -32001 // Contact or history entry does not exist
	ErrorCodeBackfillInProgress = -32002 // Another embedding backfill is already running
	ErrorCodePrecondition       = -32003 // No embedding provider, or seed contact has no embedding
	ErrorCodeUnauthorized       = -32004 // Contact belongs to another user
	ErrorCodeDependency         = -32005 // Data store or embedding provider failed
)

const defaultHistoryLimit = 10

// handleSearchContacts handles the search_contacts tool invocation
func (s *Server) handleSearchContacts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	userID, err := requireString(args, "user_id")
	if err != nil {
		return nil, err
	}
	query, ok := args["query"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing or not a string",
		})
	}
	fields, err := getStringSlice(args, "fields")
	if err != nil {
		return nil, err
	}

	req := searcher.SearchRequest{
		UserID:         userID,
		Query:          query,
		Mode:           searcher.SearchMode(getStringDefault(args, "mode", "")),
		Fields:         fields,
		Fuzzy:          getBoolDefault(args, "fuzzy", false),
		Limit:          getIntDefault(args, "limit", 0),
		Threshold:      getFloatPtr(args, "threshold"),
		SemanticWeight: getFloatPtr(args, "semantic_weight"),
		Highlight:      getBoolDefault(args, "highlight", false),
	}

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, toolError(ctx, "search failed", err)
	}
	return mcp.NewToolResultText(formatJSON(searchResponse(resp))), nil
}

// handleFindSimilarContacts handles the find_similar_contacts tool invocation
func (s *Server) handleFindSimilarContacts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	userID, err := requireString(args, "user_id")
	if err != nil {
		return nil, err
	}
	contactID, err := requireString(args, "contact_id")
	if err != nil {
		return nil, err
	}

	resp, err := s.searcher.FindSimilar(ctx, contactID, userID, getIntDefault(args, "limit", 0))
	if err != nil {
		return nil, toolError(ctx, "find similar failed", err)
	}

	response := searchResponse(resp)
	response["contact_id"] = contactID
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListRecentQueries handles the list_recent_queries tool invocation
func (s *Server) handleListRecentQueries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	userID, err := requireString(args, "user_id")
	if err != nil {
		return nil, err
	}

	entries, err := s.searcher.ListRecentQueries(ctx, userID, getIntDefault(args, "limit", defaultHistoryLimit))
	if err != nil {
		return nil, toolError(ctx, "failed to list queries", err)
	}

	queries := make([]map[string]interface{}, len(entries))
	for i, e := range entries {
		queries[i] = map[string]interface{}{
			"id":           e.ID,
			"query":        e.Query,
			"result_count": e.ResultCount,
			"created_at":   e.CreatedAt.Format(time.RFC3339),
		}
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"queries": queries,
		"count":   len(queries),
	})), nil
}

// handleDeleteQuery handles the delete_query tool invocation
func (s *Server) handleDeleteQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	userID, err := requireString(args, "user_id")
	if err != nil {
		return nil, err
	}
	queryID, err := requireString(args, "query_id")
	if err != nil {
		return nil, err
	}

	if err := s.searcher.DeleteQuery(ctx, userID, queryID); err != nil {
		return nil, toolError(ctx, "failed to delete query", err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"deleted":  true,
		"query_id": queryID,
	})), nil
}

// handleClearQueries handles the clear_queries tool invocation
func (s *Server) handleClearQueries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	userID, err := requireString(args, "user_id")
	if err != nil {
		return nil, err
	}

	n, err := s.searcher.ClearQueries(ctx, userID)
	if err != nil {
		return nil, toolError(ctx, "failed to clear queries", err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"cleared": n,
	})), nil
}

// handleEmbedContacts handles the embed_contacts tool invocation
func (s *Server) handleEmbedContacts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	userID, err := requireString(args, "user_id")
	if err != nil {
		return nil, err
	}

	cfg := s.backfill
	cfg.Force = getBoolDefault(args, "force", false)

	stats, err := s.indexer.EmbedContacts(ctx, userID, &cfg)
	if err != nil {
		return nil, toolError(ctx, "embedding backfill failed", err)
	}

	response := map[string]interface{}{
		"contacts_scanned":  stats.ContactsScanned,
		"contacts_embedded": stats.ContactsEmbedded,
		"contacts_failed":   stats.ContactsFailed,
		"batches":           stats.Batches,
		"provider":          s.gateway.Provider(),
		"model":             s.gateway.Model(),
		"duration_ms":       stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	userID, err := requireString(args, "user_id")
	if err != nil {
		return nil, err
	}

	status, err := s.storage.GetStatus(ctx, userID)
	if err != nil {
		return nil, toolError(ctx, "failed to get status", fmt.Errorf("%w: %w", types.ErrDependency, err))
	}

	response := map[string]interface{}{
		"user_id": userID,
		"statistics": map[string]interface{}{
			"contacts_count":   status.ContactsCount,
			"embeddings_count": status.EmbeddingsCount,
			"stale_embeddings": status.StaleEmbeddings,
			"history_count":    status.HistoryCount,
		},
		"embedding": map[string]interface{}{
			"available": s.gateway.IsAvailable(),
			"provider":  s.gateway.Provider(),
			"model":     s.gateway.Model(),
			"dimension": s.gateway.Dimension(),
		},
		"health": map[string]interface{}{
			"database_accessible": status.Health.DatabaseAccessible,
			"vector_extension":    status.Health.VectorExtension,
			"fts_indexes_built":   status.Health.FTSIndexesBuilt,
			"schema_version":      status.SchemaVersion,
			"driver":              storage.DriverName,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Response shaping

// searchResponse renders a search response as a JSON-ready map
func searchResponse(resp *searcher.SearchResponse) map[string]interface{} {
	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		entry := map[string]interface{}{
			"rank":             r.Rank,
			"contact":          contactJSON(r.Contact),
			"relevance_score":  r.RelevanceScore,
			"similarity_score": r.SimilarityScore,
			"combined_score":   r.CombinedScore,
		}
		if r.Highlights != nil {
			entry["highlights"] = r.Highlights
		}
		results[i] = entry
	}

	return map[string]interface{}{
		"query":       resp.Query,
		"mode":        string(resp.Mode),
		"results":     results,
		"total":       resp.Total,
		"duration_ms": resp.Duration.Milliseconds(),
	}
}

// contactJSON renders the display fields of a contact. The embedding vector is left out.
func contactJSON(c *types.Contact) map[string]interface{} {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]interface{}{
		"id":         c.ID,
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"email":      c.Email,
		"phone":      c.Phone,
		"company":    c.Company,
		"position":   c.Position,
		"location":   c.Location,
		"notes":      c.Notes,
		"tags":       tags,
		"updated_at": c.UpdatedAt.Format(time.RFC3339),
	}
}

// Error mapping

// toolError converts a core error into an MCPError, choosing the code from its kind
func toolError(ctx context.Context, message string, err error) error {
	code := errorCode(err)
	log := logger.FromContext(ctx)
	if code == ErrorCodeInternalError || code == ErrorCodeDependency {
		log.Error(message, zap.Error(err))
	} else {
		log.Debug(message, zap.Error(err))
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// errorCode maps an error kind to its MCP error code
func errorCode(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation):
		return ErrorCodeInvalidParams
	case errors.Is(err, types.ErrNotFound):
		return ErrorCodeNotFound
	case errors.Is(err, types.ErrUnauthorized):
		return ErrorCodeUnauthorized
	case errors.Is(err, indexer.ErrBackfillInProgress):
		return ErrorCodeBackfillInProgress
	case errors.Is(err, types.ErrPrecondition):
		return ErrorCodePrecondition
	case errors.Is(err, types.ErrDependency),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return ErrorCodeDependency
	default:
		return ErrorCodeInternalError
	}
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// Argument helpers

// arguments returns the tool call arguments as a map
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// requireString extracts a required, non-empty string parameter
func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getFloatPtr extracts an optional number. Absent parameters yield nil so
// that an explicit 0 stays distinguishable from the configured default.
func getFloatPtr(args map[string]interface{}, key string) *float64 {
	switch val := args[key].(type) {
	case float64:
		return &val
	case int:
		f := float64(val)
		return &f
	}
	return nil
}

// getStringSlice extracts an optional array of strings
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}

	switch val := raw.(type) {
	case []string:
		return val, nil
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			str, ok := item.(string)
			if !ok {
				return nil, newMCPError(ErrorCodeInvalidParams, key+" must be an array of strings", map[string]interface{}{
					"param": key,
					"value": item,
				})
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, key+" must be an array of strings", map[string]interface{}{
			"param": key,
		})
	}
}
