// Package store persists converted documents in Redis. Records are
// JSON values keyed by document ID, with a content-hash index for
// dedup and a set of known IDs for listing. Everything expires with
// the configured TTL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mfurukawa/pagemill/internal/document"
	"github.com/mfurukawa/pagemill/internal/outline"
)

const (
	docKeyPrefix  = "pagemill:doc:"
	hashKeyPrefix = "pagemill:hash:"
	docsSetKey    = "pagemill:docs"
)

// Record is one stored conversion result.
type Record struct {
	DocID        string              `json:"doc_id"`
	Source       string              `json:"source"`
	Title        string              `json:"title,omitempty"`
	Backend      string              `json:"backend"`
	ContentHash  string              `json:"content_hash"`
	Markdown     string              `json:"markdown"`
	Boundaries   []document.Boundary `json:"boundaries"`
	Chunks       []outline.Chunk     `json:"chunks"`
	UnitCount    int                 `json:"unit_count"`
	UnitsFailed  int                 `json:"units_failed"`
	UnitsSkipped int                 `json:"units_skipped"`
	CreatedAt    time.Time           `json:"created_at"`
}

// Summary is the listing view of a record, without the document body.
type Summary struct {
	DocID        string    `json:"doc_id"`
	Source       string    `json:"source"`
	Title        string    `json:"title,omitempty"`
	Backend      string    `json:"backend"`
	ContentHash  string    `json:"content_hash"`
	UnitCount    int       `json:"unit_count"`
	UnitsFailed  int       `json:"units_failed"`
	UnitsSkipped int       `json:"units_skipped"`
	ChunkCount   int       `json:"chunk_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is the Redis-backed document store.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// New connects to Redis and verifies the connection with a short
// ping before returning.
func New(addr, password string, db int, ttl time.Duration, log *slog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:                  addr,
		Password:              password,
		DB:                    db,
		ContextTimeoutEnabled: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis at %s: %w", addr, err)
	}

	return &Store{client: client, ttl: ttl, log: log.With("component", "store")}, nil
}

// NewWithClient wraps an existing client. Used by tests with
// miniredis.
func NewWithClient(client *redis.Client, ttl time.Duration, log *slog.Logger) *Store {
	return &Store{client: client, ttl: ttl, log: log}
}

// Save writes the record, its hash index entry and its listing
// membership.
func (s *Store) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.DocID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, docKeyPrefix+rec.DocID, data, s.ttl)
	pipe.Set(ctx, hashKeyPrefix+rec.ContentHash, rec.DocID, s.ttl)
	pipe.SAdd(ctx, docsSetKey, rec.DocID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save record %s: %w", rec.DocID, err)
	}
	s.log.Debug("saved document", "doc_id", rec.DocID, "chunks", len(rec.Chunks))
	return nil
}

// Get loads a record by ID. The second return is false when the
// record does not exist or has expired.
func (s *Store) Get(ctx context.Context, docID string) (Record, bool, error) {
	var rec Record
	val, err := s.client.Get(ctx, docKeyPrefix+docID).Result()
	if errors.Is(err, redis.Nil) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("get record %s: %w", docID, err)
	}
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return rec, false, fmt.Errorf("decode record %s: %w", docID, err)
	}
	return rec, true, nil
}

// ByHash resolves a content hash to an existing document ID.
func (s *Store) ByHash(ctx context.Context, hash string) (string, bool, error) {
	docID, err := s.client.Get(ctx, hashKeyPrefix+hash).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hash lookup %s: %w", hash, err)
	}
	return docID, true, nil
}

// List returns summaries of every stored document. IDs whose records
// have expired are pruned from the listing set on the way.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	ids, err := s.client.SMembers(ctx, docsSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	summaries := make([]Summary, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.client.SRem(ctx, docsSetKey, id)
			continue
		}
		summaries = append(summaries, Summary{
			DocID:        rec.DocID,
			Source:       rec.Source,
			Title:        rec.Title,
			Backend:      rec.Backend,
			ContentHash:  rec.ContentHash,
			UnitCount:    rec.UnitCount,
			UnitsFailed:  rec.UnitsFailed,
			UnitsSkipped: rec.UnitsSkipped,
			ChunkCount:   len(rec.Chunks),
			CreatedAt:    rec.CreatedAt,
		})
	}
	return summaries, nil
}

// Delete removes a record, its hash index entry and its listing
// membership. Deleting an absent ID is not an error.
func (s *Store) Delete(ctx context.Context, docID string) error {
	rec, ok, err := s.Get(ctx, docID)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, docKeyPrefix+docID)
	if ok {
		pipe.Del(ctx, hashKeyPrefix+rec.ContentHash)
	}
	pipe.SRem(ctx, docsSetKey, docID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete record %s: %w", docID, err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
