// Package types provides shared type definitions for the contact search server.
//
// # Core Types
//
// Contact is a user's private contact record. Every contact belongs to exactly
// one user and search never crosses that boundary:
//
//	contact := &types.Contact{
//	    ID:        "0b9f...",
//	    UserID:    "user-1",
//	    FirstName: "John",
//	    LastName:  "Doe",
//	    Email:     "john.doe@example.com",
//	    Tags:      []string{"vip"},
//	}
//
// Field enumerates the searchable fields (name, email, company, tags, notes).
// It replaces column names built from user input with a fixed lookup table.
//
// RankedResult pairs a contact with its lexical, vector and fused scores:
//
//	result := types.RankedResult{
//	    Contact:         contact,
//	    Rank:            1,
//	    RelevanceScore:  2.7,
//	    SimilarityScore: 0.91,
//	}
//
// Lexical relevance scores are not normalized; boosts accumulate without a cap.
// Similarity scores are always in [0, 1].
//
// # Errors
//
// The error taxonomy is a small set of sentinels checked with errors.Is:
// ErrValidation, ErrNotFound, ErrUnauthorized, ErrPrecondition and
// ErrDependency. ErrEmbeddingUnavailable is a dependency error.
package types
