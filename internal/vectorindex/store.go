package vectorindex

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"policyqa/internal/text"
)

const (
	indexArtifact  = "index.gob"
	chunksArtifact = "chunks.db"
)

// errCacheMiss marks any condition that requires a rebuild: absent artifacts,
// unreadable artifacts, or an embedding-model version mismatch. It never
// reaches callers.
var errCacheMiss = errors.New("index cache miss")

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelVersion() string
}

// Store builds, persists and loads vector indexes keyed by document content
// key. Each key owns two co-located artifacts under the cache directory: the
// gob-encoded index structure and a SQLite chunk-metadata table, both tagged
// with the embedding-model version. Builds are single-flight per key and
// writes are atomic (write to temp, then rename), so readers never observe a
// partially written entry.
type Store struct {
	dir          string
	embedder     Embedder
	chunkSize    int
	chunkOverlap int
	batchSize    int
	group        singleflight.Group
}

func NewStore(dir string, embedder Embedder, chunkSize, chunkOverlap, batchSize int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create index cache dir: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Store{
		dir:          dir,
		embedder:     embedder,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		batchSize:    batchSize,
	}, nil
}

// ContentKey derives the stable cache key for a document reference.
func ContentKey(ref string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(ref)))
	return hex.EncodeToString(sum[:])
}

// GetOrBuild returns the persisted index for key, or builds one by acquiring
// the document text, chunking it and embedding every chunk. Concurrent
// callers for the same key share one in-flight build. A started build runs
// detached from the caller's cancellation: its result benefits every future
// request, so a single caller's timeout does not abandon it.
func (s *Store) GetOrBuild(ctx context.Context, key string, provider func(context.Context) (string, error)) (*Index, error) {
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		idx, lerr := s.load(key)
		if lerr == nil {
			slog.InfoContext(ctx, "index cache hit", "key", key, "chunks", idx.Len())
			return idx, nil
		}
		if !errors.Is(lerr, os.ErrNotExist) {
			slog.WarnContext(ctx, "index cache unusable, rebuilding", "key", key, "reason", lerr)
		}
		return s.build(context.WithoutCancel(ctx), key, provider)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.DebugContext(ctx, "index build shared with concurrent caller", "key", key)
	}
	return v.(*Index), nil
}

func (s *Store) build(ctx context.Context, key string, provider func(context.Context) (string, error)) (*Index, error) {
	start := time.Now()

	content, err := provider(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire document: %w", err)
	}

	chunks := slices.Collect(text.Chunks(content, s.chunkSize, s.chunkOverlap))

	vectors := make([][]float32, 0, len(chunks))
	for batch := range slices.Chunk(chunks, s.batchSize) {
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vecs), len(batch))
		}
		vectors = append(vectors, vecs...)
	}

	idx, err := New(s.embedder.ModelVersion(), chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	if err := s.save(key, idx); err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}

	slog.InfoContext(ctx, "index built",
		"key", key, "chunks", idx.Len(), "dimension", idx.Dimension(), "took", time.Since(start))
	return idx, nil
}

// Stats reports the number of cached documents and their total chunk count.
func (s *Store) Stats(ctx context.Context) (documents, chunks int, err error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := countChunks(filepath.Join(s.dir, e.Name(), chunksArtifact))
		if err != nil {
			continue
		}
		documents++
		chunks += n
	}
	return documents, chunks, nil
}

type persistedIndex struct {
	ModelVersion string
	Dimension    int
	Vectors      [][]float32
}

func (s *Store) save(key string, idx *Index) error {
	keyDir := filepath.Join(s.dir, key)
	if err := os.MkdirAll(keyDir, 0o750); err != nil {
		return err
	}

	// Chunk metadata first, index structure last: the loader requires both,
	// so a crash between the two renames only leaves a cache miss behind.
	if err := atomicWrite(filepath.Join(keyDir, chunksArtifact), func(path string) error {
		return writeChunksDB(path, idx)
	}); err != nil {
		return fmt.Errorf("write chunk metadata: %w", err)
	}

	if err := atomicWrite(filepath.Join(keyDir, indexArtifact), func(path string) error {
		f, err := os.Create(path) // #nosec G304 -- path is derived from the configured cache dir
		if err != nil {
			return err
		}
		defer f.Close()
		return gob.NewEncoder(f).Encode(persistedIndex{
			ModelVersion: idx.modelVersion,
			Dimension:    idx.dimension,
			Vectors:      idx.vectors,
		})
	}); err != nil {
		return fmt.Errorf("write index structure: %w", err)
	}

	return nil
}

// atomicWrite produces the artifact at a temp path, then renames it into
// place so concurrent readers see either the old entry or the new one.
func atomicWrite(path string, write func(tmp string) error) error {
	tmp := path + ".tmp-" + uuid.New().String()
	if err := write(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (s *Store) load(key string) (*Index, error) {
	keyDir := filepath.Join(s.dir, key)

	f, err := os.Open(filepath.Join(keyDir, indexArtifact)) // #nosec G304 -- path is derived from the configured cache dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %w", errCacheMiss, err)
		}
		return nil, fmt.Errorf("%w: open index structure: %v", errCacheMiss, err)
	}
	defer f.Close()

	var p persistedIndex
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: corrupt index structure: %v", errCacheMiss, err)
	}

	current := s.embedder.ModelVersion()
	if p.ModelVersion != current {
		return nil, fmt.Errorf("%w: model version %q, want %q", errCacheMiss, p.ModelVersion, current)
	}

	chunks, metaVersion, err := readChunksDB(filepath.Join(keyDir, chunksArtifact))
	if err != nil {
		return nil, fmt.Errorf("%w: chunk metadata: %v", errCacheMiss, err)
	}
	if metaVersion != current {
		return nil, fmt.Errorf("%w: chunk metadata model version %q, want %q", errCacheMiss, metaVersion, current)
	}
	if len(chunks) != len(p.Vectors) {
		return nil, fmt.Errorf("%w: %d chunks for %d vectors", errCacheMiss, len(chunks), len(p.Vectors))
	}

	// Persisted vectors were normalized at build time.
	return &Index{
		modelVersion: p.ModelVersion,
		dimension:    p.Dimension,
		vectors:      p.Vectors,
		chunks:       chunks,
	}, nil
}

func writeChunksDB(path string, idx *Index) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	schema := `
		CREATE TABLE meta (
			model_version TEXT NOT NULL,
			dimension     INTEGER NOT NULL,
			built_at      TEXT NOT NULL
		);
		CREATE TABLE chunks (
			id           INTEGER PRIMARY KEY,
			start_offset INTEGER NOT NULL,
			end_offset   INTEGER NOT NULL,
			content      TEXT NOT NULL
		);`
	if _, err := db.Exec(schema); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO meta (model_version, dimension, built_at) VALUES (?, ?, ?)`,
		idx.modelVersion, idx.dimension, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO chunks (id, start_offset, end_offset, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range idx.chunks {
		if _, err := stmt.Exec(c.ID, c.Start, c.End, c.Text); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func readChunksDB(path string) ([]text.Chunk, string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, "", err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, "", err
	}
	defer db.Close()

	var version string
	var dimension int
	var builtAt string
	if err := db.QueryRow(`SELECT model_version, dimension, built_at FROM meta`).
		Scan(&version, &dimension, &builtAt); err != nil {
		return nil, "", err
	}

	rows, err := db.Query(`SELECT id, start_offset, end_offset, content FROM chunks ORDER BY id`)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var chunks []text.Chunk
	for rows.Next() {
		var c text.Chunk
		if err := rows.Scan(&c.ID, &c.Start, &c.End, &c.Text); err != nil {
			return nil, "", err
		}
		chunks = append(chunks, c)
	}
	return chunks, version, rows.Err()
}

func countChunks(path string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}
