// Package mcp implements the Model Context Protocol (MCP) server for contactsearch.
//
// The server exposes contact search to MCP clients as tools:
//   - search_contacts: lexical, semantic or hybrid search over a user's contacts
//   - find_similar_contacts: nearest neighbours of one contact's embedding
//   - list_recent_queries, delete_query, clear_queries: per-user search history
//   - embed_contacts: generate missing or out-of-date contact embeddings
//   - get_status: contact, embedding and history counts plus store health
//
// Every tool takes a user_id; no call reads or changes another user's data.
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout carries the protocol, so all logging goes to stderr.
//
// # Tool: search_contacts
//
//	Request:
//	{
//	  "name": "search_contacts",
//	  "arguments": {
//	    "user_id": "user-1",
//	    "query": "john acme",
//	    "mode": "hybrid",
//	    "limit": 10,
//	    "semantic_weight": 0.6,
//	    "highlight": true
//	  }
//	}
//
//	Response:
//	{
//	  "query": "john acme",
//	  "mode": "hybrid",
//	  "total": 14,
//	  "duration_ms": 12,
//	  "results": [
//	    {
//	      "rank": 1,
//	      "contact": {"id": "...", "first_name": "John", "company": "Acme", ...},
//	      "relevance_score": 2.41,
//	      "similarity_score": 0.83,
//	      "combined_score": 1.46,
//	      "highlights": {"first_name": "<mark>John</mark>", "company": "<mark>Acme</mark>"}
//	    }
//	  ]
//	}
//
// Omitted limit, threshold and semantic_weight fall back to the configured
// defaults. An explicit 0 is honoured.
//
// # Tool: embed_contacts
//
//	Request:
//	{"name": "embed_contacts", "arguments": {"user_id": "user-1", "force": false}}
//
//	Response:
//	{
//	  "contacts_scanned": 120,
//	  "contacts_embedded": 120,
//	  "contacts_failed": 0,
//	  "batches": 3,
//	  "provider": "openai",
//	  "model": "text-embedding-3-small",
//	  "duration_ms": 1840
//	}
//
// # Error Codes
//
// Failures are returned as *MCPError. The code follows the error kind:
//
//	-32602  invalid parameters (bad query, mode, field, limit or range)
//	-32001  contact or history entry not found
//	-32002  embedding backfill already in progress
//	-32003  precondition failed (no embedding provider, seed has no embedding)
//	-32004  contact belongs to another user
//	-32005  data store or embedding provider failure, or timeout
//	-32603  internal error
package mcp
