package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// userIDProperty is shared by every tool; all data is scoped to one user
var userIDProperty = map[string]interface{}{
	"type":        "string",
	"description": "Owner of the contacts and search history",
}

// searchContactsTool returns the tool definition for search_contacts
func searchContactsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_contacts",
		Description: "Search a user's contacts by keyword, meaning, or both",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProperty,
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query, at least 2 characters after trimming",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "lexical (full-text), semantic (embedding similarity) or hybrid (both, fused)",
					"enum":        []string{"lexical", "semantic", "hybrid"},
					"default":     "lexical",
				},
				"fields": map[string]interface{}{
					"type":        "array",
					"description": "Restrict lexical matching to these fields",
					"items": map[string]interface{}{
						"type": "string",
						"enum": []string{"name", "email", "company", "tags", "notes"},
					},
				},
				"fuzzy": map[string]interface{}{
					"type":        "boolean",
					"description": "Tolerate typos using trigram and edit-distance matching (lexical only)",
					"default":     false,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"minimum":     1,
					"maximum":     100,
				},
				"threshold": map[string]interface{}{
					"type":        "number",
					"description": "Minimum similarity for semantic results (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"semantic_weight": map[string]interface{}{
					"type":        "number",
					"description": "Weight of similarity against lexical relevance in hybrid mode (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"highlight": map[string]interface{}{
					"type":        "boolean",
					"description": "Wrap query occurrences in <mark> tags and snippet long notes",
					"default":     false,
				},
			},
			Required: []string{"user_id", "query"},
		},
	}
}

// findSimilarContactsTool returns the tool definition for find_similar_contacts
func findSimilarContactsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_similar_contacts",
		Description: "Find contacts whose embedding is closest to a given contact",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProperty,
				"contact_id": map[string]interface{}{
					"type":        "string",
					"description": "Seed contact; must belong to user_id and have an embedding",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"user_id", "contact_id"},
		},
	}
}

// listRecentQueriesTool returns the tool definition for list_recent_queries
func listRecentQueriesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_recent_queries",
		Description: "List a user's recent distinct search queries, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProperty,
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of queries to return",
					"default":     10,
					"minimum":     1,
				},
			},
			Required: []string{"user_id"},
		},
	}
}

// deleteQueryTool returns the tool definition for delete_query
func deleteQueryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_query",
		Description: "Delete one entry from a user's search history",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProperty,
				"query_id": map[string]interface{}{
					"type":        "string",
					"description": "History entry ID as returned by list_recent_queries",
				},
			},
			Required: []string{"user_id", "query_id"},
		},
	}
}

// clearQueriesTool returns the tool definition for clear_queries
func clearQueriesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "clear_queries",
		Description: "Delete a user's entire search history",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProperty,
			},
			Required: []string{"user_id"},
		},
	}
}

// embedContactsTool returns the tool definition for embed_contacts
func embedContactsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "embed_contacts",
		Description: "Generate embeddings for contacts that have none or whose embedding is out of date",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProperty,
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-embed every contact (e.g. after changing provider)",
					"default":     false,
				},
			},
			Required: []string{"user_id"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report contact, embedding and history counts for a user, plus store health",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProperty,
			},
			Required: []string{"user_id"},
		},
	}
}
