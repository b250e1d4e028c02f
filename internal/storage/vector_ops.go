package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/dshills/contactsearch/pkg/types"
)

// searchVector performs owner-scoped cosine similarity search over contact embeddings
func searchVector(ctx context.Context, q querier, userID string, queryVector []float32, opts VectorSearchOptions) ([]VectorResult, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if opts.Limit <= 0 {
		return []VectorResult{}, nil
	}

	// Use optimized SQL-based search when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, q, userID, queryVector, opts)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, q, userID, queryVector, opts)
}

// searchVectorOptimized uses sqlite-vec extension for SQL-based vector similarity search
func searchVectorOptimized(ctx context.Context, q querier, userID string, queryVector []float32, opts VectorSearchOptions) ([]VectorResult, error) {
	queryVectorBlob := serializeVector(queryVector)

	// vec_distance_cosine returns distance in [0, 2] (lower is better)
	query := `
		SELECT ` + contactColumns + `,
			vec_distance_cosine(e.vector, ?) AS distance
		FROM contacts c
		INNER JOIN contact_embeddings e ON e.contact_id = c.id
		WHERE c.user_id = ?
		AND c.deleted_at IS NULL
		AND e.dimension = ?
		AND c.id != ?
		AND (1.0 - vec_distance_cosine(e.vector, ?) / 2.0) >= ?
		ORDER BY distance ASC, c.id ASC
		LIMIT ?
	`
	args := []interface{}{
		queryVectorBlob, userID, len(queryVector), opts.ExcludeID,
		queryVectorBlob, opts.Threshold, opts.Limit,
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, opts.Limit)
	for rows.Next() {
		var distance float64
		contact, err := scanContact(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, VectorResult{
			Contact:    contact,
			Distance:   distance,
			Similarity: distanceToSimilarity(distance),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	matches := len(results)
	if matches == opts.Limit {
		if err := q.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM contacts c
			INNER JOIN contact_embeddings e ON e.contact_id = c.id
			WHERE c.user_id = ?
			AND c.deleted_at IS NULL
			AND e.dimension = ?
			AND c.id != ?
			AND (1.0 - vec_distance_cosine(e.vector, ?) / 2.0) >= ?
		`, userID, len(queryVector), opts.ExcludeID, queryVectorBlob, opts.Threshold).Scan(&matches); err != nil {
			return nil, fmt.Errorf("failed to count vector matches: %w", err)
		}
	}
	for i := range results {
		results[i].Matches = matches
	}
	return results, nil
}

// searchVectorFallback performs vector search using Go-based cosine similarity computation
// This is used when sqlite-vec extension is not available (purego builds)
func searchVectorFallback(ctx context.Context, q querier, userID string, queryVector []float32, opts VectorSearchOptions) ([]VectorResult, error) {
	query := `
		SELECT ` + contactColumns + `, e.vector
		FROM contacts c
		INNER JOIN contact_embeddings e ON e.contact_id = c.id
		WHERE c.user_id = ?
		AND c.deleted_at IS NULL
		AND e.dimension = ?
		AND c.id != ?
	`
	rows, err := q.QueryContext(ctx, query, userID, len(queryVector), opts.ExcludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]candidate, 0)
	for rows.Next() {
		var blob []byte
		contact, err := scanContact(rows, &blob)
		if err != nil {
			return nil, err
		}

		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		distance := 1 - cosineSimilarity(queryVector, vector)
		similarity := distanceToSimilarity(distance)
		if similarity < opts.Threshold {
			continue
		}
		candidates = append(candidates, candidate{contact: contact, distance: distance, score: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	return buildVectorResults(candidates, opts.Limit), nil
}

// distanceToSimilarity maps cosine distance [0, 2] onto [0, 1]
func distanceToSimilarity(distance float64) float64 {
	similarity := 1 - distance/2
	if similarity < 0 {
		return 0
	}
	if similarity > 1 {
		return 1
	}
	return similarity
}

// buildVectorResults keeps the first limit candidates, each carrying the full candidate count
func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	if limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{
			Contact:    candidates[i].contact,
			Distance:   candidates[i].distance,
			Similarity: candidates[i].score,
			Matches:    len(candidates),
		}
	}
	return results
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate represents a contact with its similarity score
type candidate struct {
	contact  *types.Contact
	distance float64
	score    float64
}

// sortCandidates sorts candidates by score descending, ties by contact ID
func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].contact.ID < candidates[j].contact.ID
	})
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
