// Package publish owns the item lifecycle: drafts are created and edited
// under optimistic locking, and publishing turns the current draft into a
// signed artifact. Every mutation is a new log record; nothing is edited in
// place.
package publish

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"certified/internal/digest"
	"certified/internal/engine"
	"certified/internal/model"
	"certified/internal/verify"
)

var (
	ErrNotFound     = errors.New("item not found")
	ErrNoLockHash   = errors.New("lock hash required")
	ErrLockConflict = errors.New("lock hash is stale")
	ErrNoContent    = errors.New("item content required")
)

// ConflictError reports a stale lock hash for ID.
type ConflictError struct {
	ID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("item %s: %v", e.ID, ErrLockConflict)
}

//nolint:errorlint
func (e *ConflictError) Is(target error) bool {
	return target == ErrLockConflict
}

// Location is where the client can fetch the current version.
func (e *ConflictError) Location() string {
	return ItemPath(e.ID)
}

func ItemPath(id string) string {
	return "/api/certified/items/" + id
}

// Store is the part of the content log the service needs.
type Store interface {
	Append(ctx context.Context, kind model.Kind, data model.Document) (model.Record, error)
	List(kind model.Kind) ([]model.Record, error)
	Index(kind model.Kind) (map[string]model.Document, error)
	Get(kind model.Kind, id string) (model.Document, error)
}

// Service serializes check-then-append sequences so a lock hash can be
// consumed at most once.
type Service struct {
	store    Store
	signer   *verify.Signer
	logger   *zap.Logger
	mu       sync.Mutex
	mintLock func() string
}

func NewService(store Store, signer *verify.Signer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		signer:   signer,
		logger:   logger,
		mintLock: uuid.NewString,
	}
}

// Publish consumes lockHash and appends a PUBLISHED version of item id with
// a fresh lock hash, the artifact digest and its signature.
func (s *Service) Publish(ctx context.Context, id, lockHash string) (model.Document, error) {
	if lockHash == "" {
		return nil, ErrNoLockHash
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.item(id)
	if err != nil {
		return nil, err
	}
	if current.String(model.FieldLockHash) != lockHash {
		return nil, &ConflictError{ID: id}
	}
	content, ok := current[model.FieldContent]
	if !ok || content == nil {
		return nil, fmt.Errorf("publish %s: %w", id, ErrNoContent)
	}

	sum, sig, err := s.signer.Sign(content)
	if err != nil {
		return nil, fmt.Errorf("sign item %s: %w", id, err)
	}

	next := current.Clone()
	next[model.FieldStatus] = model.StatusPublished
	next[model.FieldLockHash] = s.mintLock()
	next[model.FieldSHA256] = sum
	next[model.FieldSignature] = base64.StdEncoding.EncodeToString(sig)

	rec, err := s.store.Append(ctx, model.KindItem, next)
	if err != nil {
		return nil, fmt.Errorf("append published item %s: %w", id, err)
	}
	s.audit(ctx, "publish", id, rec.Seq, zap.String("sha256", sum))
	return rec.Data, nil
}

// Upsert creates a DRAFT item, or replaces the content of an existing one.
// Updating requires the current lock hash. An empty id creates a new item.
func (s *Service) Upsert(ctx context.Context, id, lockHash string, content json.RawMessage) (model.Document, error) {
	body, err := decodeContent(content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var next model.Document
	action := "create"
	if id == "" {
		id = engine.MakeID("item")
	}
	current, err := s.item(id)
	switch {
	case errors.Is(err, ErrNotFound):
		next = model.Document{model.FieldID: id}
	case err != nil:
		return nil, err
	default:
		if lockHash == "" {
			return nil, ErrNoLockHash
		}
		if current.String(model.FieldLockHash) != lockHash {
			return nil, &ConflictError{ID: id}
		}
		next = current.Clone()
		delete(next, model.FieldSHA256)
		delete(next, model.FieldSignature)
		action = "update"
	}
	next[model.FieldStatus] = model.StatusDraft
	next[model.FieldContent] = body
	next[model.FieldLockHash] = s.mintLock()

	rec, err := s.store.Append(ctx, model.KindItem, next)
	if err != nil {
		return nil, fmt.Errorf("append item %s: %w", id, err)
	}
	s.audit(ctx, action, id, rec.Seq)
	return rec.Data, nil
}

// AddSource appends a source record, generating an id when data has none.
func (s *Service) AddSource(ctx context.Context, data model.Document) (model.Document, error) {
	doc := data.Clone()
	if doc.ID() == "" {
		doc[model.FieldID] = engine.MakeID("src")
	}
	rec, err := s.store.Append(ctx, model.KindSource, doc)
	if err != nil {
		return nil, fmt.Errorf("append source: %w", err)
	}
	s.audit(ctx, "source", doc.ID(), rec.Seq)
	return rec.Data, nil
}

// Item returns the latest version of id.
func (s *Service) Item(_ context.Context, id string) (model.Document, error) {
	return s.item(id)
}

// Items returns the latest version of every item ordered by id.
func (s *Service) Items(_ context.Context) ([]model.Document, error) {
	idx, err := s.store.Index(model.KindItem)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]model.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, idx[id])
	}
	return out, nil
}

// Artifact returns the most recent PUBLISHED version of id as served bytes.
// A later draft does not withdraw the published artifact.
func (s *Service) Artifact(_ context.Context, id string) (model.Artifact, error) {
	records, err := s.store.List(model.KindItem)
	if err != nil {
		return model.Artifact{}, err
	}
	var published model.Document
	for _, rec := range records {
		if rec.Data.ID() == id && rec.Data.String(model.FieldStatus) == model.StatusPublished {
			published = rec.Data
		}
	}
	if published == nil {
		return model.Artifact{}, fmt.Errorf("%w: %s", verify.ErrArtifactNotFound, id)
	}

	canon, err := digest.CanonicalJSON(published[model.FieldContent])
	if err != nil {
		return model.Artifact{}, fmt.Errorf("canonicalize artifact %s: %w", id, err)
	}
	sig, err := verify.DecodeSignature(published.String(model.FieldSignature))
	if err != nil {
		return model.Artifact{}, fmt.Errorf("artifact %s signature: %w", id, err)
	}
	return model.Artifact{
		ID:        id,
		Content:   canon,
		SHA256:    digest.HashBytes(canon),
		Signature: sig,
	}, nil
}

func (s *Service) item(id string) (model.Document, error) {
	doc, err := s.store.Get(model.KindItem, id)
	if errors.Is(err, engine.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// audit failures do not undo the mutation they describe.
func (s *Service) audit(ctx context.Context, action, id string, seq uint64, fields ...zap.Field) {
	doc := model.Document{
		model.FieldID: engine.MakeID("audit"),
		"action":      action,
		"target":      id,
		"targetSeq":   seq,
	}
	if _, err := s.store.Append(ctx, model.KindAudit, doc); err != nil {
		s.logger.Error("append audit record", zap.String("action", action), zap.String("target", id), zap.Error(err))
		return
	}
	s.logger.Info("item "+action, append(fields, zap.String("id", id), zap.Uint64("seq", seq))...)
}

func decodeContent(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, ErrNoContent
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoContent, err)
	}
	return v, nil
}
