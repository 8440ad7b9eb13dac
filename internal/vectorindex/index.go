package vectorindex

import (
	"fmt"
	"math"
	"sort"

	"policyqa/internal/text"
)

// Hit is one nearest-neighbor result: a chunk and its cosine similarity to
// the query vector.
type Hit struct {
	Chunk text.Chunk
	Score float32
}

// Index holds the (vector, chunk) pairs for one document and answers
// nearest-neighbor queries over them. Vectors are L2-normalized at
// construction so cosine similarity reduces to an inner product. An Index is
// immutable after construction and safe for concurrent readers.
type Index struct {
	modelVersion string
	dimension    int
	vectors      [][]float32
	chunks       []text.Chunk
}

// New builds an index from parallel chunk and vector slices. Vectors must all
// share one dimension; chunks and vectors are matched by position.
func New(modelVersion string, chunks []text.Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("chunk/vector count mismatch: %d != %d", len(chunks), len(vectors))
	}

	dim := 0
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
		normalized[i] = normalize(v)
	}

	return &Index{
		modelVersion: modelVersion,
		dimension:    dim,
		vectors:      normalized,
		chunks:       chunks,
	}, nil
}

func (idx *Index) ModelVersion() string { return idx.modelVersion }

func (idx *Index) Dimension() int { return idx.dimension }

func (idx *Index) Len() int { return len(idx.chunks) }

// Search returns up to k chunks ordered by descending cosine similarity to
// query. Ties are broken by lower chunk id, i.e. earlier in the document.
// An empty index returns no hits.
func (idx *Index) Search(query []float32, k int) []Hit {
	if k <= 0 || len(idx.chunks) == 0 {
		return nil
	}

	q := normalize(query)
	hits := make([]Hit, len(idx.chunks))
	for i, v := range idx.vectors {
		hits[i] = Hit{Chunk: idx.chunks[i], Score: dot(v, q)}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

func dot(a, b []float32) float32 {
	n := min(len(a), len(b))
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
