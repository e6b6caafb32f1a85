package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"certified/internal/digest"
	"certified/internal/model"
	"certified/internal/storage"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrInvalidKind    = errors.New("invalid record kind")
	ErrEnqueueTimeout = errors.New("timeout waiting for record to be accepted by the content log")
	ErrClosed         = errors.New("content store closed")
	ErrChecksum       = errors.New("record checksum mismatch")
)

// Sha256Hex is the digest function used wherever a content hash is needed.
var Sha256Hex = digest.Sha256Hex

// MalformedFunc is told about every log line skipped during replay.
type MalformedFunc func(lineNo int, err error)

type Config struct {
	Path           string
	EnqueueTimeout time.Duration
	MaxEnqueued    int
	// Fsync syncs the file after every line. Off only in tests that do not
	// care about crash durability.
	Fsync       bool
	Logger      *zap.Logger
	OnMalformed MalformedFunc
	Now         func() time.Time
}

const (
	defaultEnqueueTimeout = 5 * time.Second
	defaultMaxEnqueued    = 1024
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type appendMsg struct {
	kind  model.Kind
	data  model.Document
	reply chan appendResult
}

type appendResult struct {
	rec model.Record
	err error
}

/*
Store is the append-only content log plus its derived projections.

Appends go through one writer goroutine that owns the file handle:
  - Ordering: the channel preserves call order; seq is assigned by the writer.
  - Atomicity: each record is one line handed to a single write call.
  - Backpressure: bounded channel + timeout lets callers fail fast.
  - Completion: every caller waits for its own write result; there are no
    fire-and-forget appends.

Reads never touch the writer. List and Index replay the file from disk on
every call, so the index is rebuilt per read and is never shared.
*/
type Store struct {
	cfg    Config
	logger *zap.Logger
	writes chan appendMsg
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

// Open opens (or creates) the log at cfg.Path and starts the writer. The
// writer stops when ctx is cancelled or Close is called.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("content store: empty log path")
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = defaultEnqueueTimeout
	}
	if cfg.MaxEnqueued <= 0 {
		cfg.MaxEnqueued = defaultMaxEnqueued
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		cfg:    cfg,
		logger: logger,
		writes: make(chan appendMsg, cfg.MaxEnqueued),
		done:   make(chan struct{}),
	}

	lastSeq, err := s.lastSeq()
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open content log: %w", err)
	}

	// A crash mid-append leaves an unterminated fragment; terminate it so the
	// next record starts on its own line. Replay skips the fragment.
	torn, err := storage.HasTornTail(cfg.Path)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if torn {
		logger.Warn("content log ends with a torn line, sealing it", zap.String("path", cfg.Path))
		if err := storage.AppendLine(f, nil); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("seal torn tail: %w", err)
		}
	}

	w := &logWriter{file: f, nextSeq: lastSeq + 1, fsync: cfg.Fsync, now: cfg.Now}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(runCtx, w)
	return s, nil
}

// Close stops the writer after it has finished every accepted append.
func (s *Store) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

// Append writes one record with a server-assigned seq and timestamp and
// returns it as it will replay from the log.
func (s *Store) Append(ctx context.Context, kind model.Kind, data model.Document) (model.Record, error) {
	if !kind.Valid() {
		return model.Record{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if data == nil {
		data = model.Document{}
	}

	msg := appendMsg{kind: kind, data: data, reply: make(chan appendResult, 1)}
	timer := time.NewTimer(s.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case s.writes <- msg:
	case <-timer.C:
		return model.Record{}, ErrEnqueueTimeout
	case <-ctx.Done():
		return model.Record{}, ctx.Err()
	case <-s.done:
		return model.Record{}, ErrClosed
	}

	// Accepted writes are always awaited, even if ctx ends meanwhile, so the
	// caller learns the true outcome.
	select {
	case res := <-msg.reply:
		return res.rec, res.err
	case <-s.done:
		select {
		case res := <-msg.reply:
			return res.rec, res.err
		default:
			return model.Record{}, ErrClosed
		}
	}
}

// List replays the log in append order. An empty kind returns every record.
// Lines that cannot be decoded are skipped and reported to OnMalformed.
func (s *Store) List(kind model.Kind) ([]model.Record, error) {
	records := make([]model.Record, 0)
	err := storage.ScanLines(s.cfg.Path, func(lineNo int, line []byte, readErr error) {
		if readErr != nil {
			s.malformed(lineNo, readErr)
			return
		}
		if len(bytes.TrimSpace(line)) == 0 {
			return
		}
		rec, err := decodeLine(line)
		if err != nil {
			s.malformed(lineNo, err)
			return
		}
		if kind == "" || rec.Kind == kind {
			records = append(records, rec)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("replay content log: %w", err)
	}
	return records, nil
}

// Index folds List(kind) left to right by data.id, so the last record for an
// id wins. Records without an id are not indexed.
func (s *Store) Index(kind model.Kind) (map[string]model.Document, error) {
	latest, err := s.latest(kind)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Document, len(latest))
	for id, rec := range latest {
		out[id] = rec.Data
	}
	return out, nil
}

// Latest returns the most recent record of kind whose data.id is id.
func (s *Store) Latest(kind model.Kind, id string) (model.Record, error) {
	latest, err := s.latest(kind)
	if err != nil {
		return model.Record{}, err
	}
	rec, ok := latest[id]
	if !ok {
		return model.Record{}, fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return rec, nil
}

// Get returns the projected document for id.
func (s *Store) Get(kind model.Kind, id string) (model.Document, error) {
	rec, err := s.Latest(kind, id)
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}

func (s *Store) latest(kind model.Kind) (map[string]model.Record, error) {
	records, err := s.List(kind)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Record)
	for _, rec := range records {
		if id := rec.Data.ID(); id != "" {
			out[id] = rec
		}
	}
	return out, nil
}

// MakeID returns "<prefix>_<uuid>".
func MakeID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func (s *Store) malformed(lineNo int, err error) {
	if s.cfg.OnMalformed != nil {
		s.cfg.OnMalformed(lineNo, err)
		return
	}
	s.logger.Warn("skipping malformed content log line",
		zap.String("path", s.cfg.Path),
		zap.Int("line", lineNo),
		zap.Error(err),
	)
}

func (s *Store) lastSeq() (uint64, error) {
	var last uint64
	err := storage.ScanLines(s.cfg.Path, func(_ int, line []byte, readErr error) {
		if readErr != nil {
			return
		}
		if rec, err := decodeLine(line); err == nil && rec.Seq > last {
			last = rec.Seq
		}
	})
	if err != nil {
		return 0, fmt.Errorf("recover sequence: %w", err)
	}
	return last, nil
}

func (s *Store) run(ctx context.Context, w *logWriter) {
	defer close(s.done)
	defer func() {
		if err := w.file.Close(); err != nil {
			s.logger.Error("close content log", zap.Error(err))
		}
	}()

	for {
		select {
		case msg := <-s.writes:
			rec, err := w.write(msg.kind, msg.data)
			msg.reply <- appendResult{rec: rec, err: err}
		case <-ctx.Done():
			s.logger.Info("content store shutting down, draining accepted appends")
			for {
				select {
				case msg := <-s.writes:
					rec, err := w.write(msg.kind, msg.data)
					msg.reply <- appendResult{rec: rec, err: err}
				default:
					return
				}
			}
		}
	}
}

type logWriter struct {
	file    *os.File
	nextSeq uint64
	fsync   bool
	now     func() time.Time
}

// wireRecord is the on-disk line. Data stays raw so the checksum covers the
// exact bytes written.
type wireRecord struct {
	Seq  uint64          `json:"seq"`
	Kind model.Kind      `json:"kind"`
	TS   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
	CRC  string          `json:"crc"`
}

func (w *logWriter) write(kind model.Kind, data model.Document) (model.Record, error) {
	canon, err := digest.Canonical(data)
	if err != nil {
		return model.Record{}, fmt.Errorf("encode record data: %w", err)
	}

	wire := wireRecord{
		Seq:  w.nextSeq,
		Kind: kind,
		TS:   w.now().UTC(),
		Data: canon,
		CRC:  checksum(canon),
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(wire); err != nil {
		return model.Record{}, fmt.Errorf("encode record: %w", err)
	}

	if err := storage.AppendLine(w.file, buf.Bytes()); err != nil {
		return model.Record{}, fmt.Errorf("append record: %w", err)
	}
	if w.fsync {
		if err := w.file.Sync(); err != nil {
			return model.Record{}, fmt.Errorf("sync content log: %w", err)
		}
	}
	w.nextSeq++

	return toRecord(wire)
}

func decodeLine(line []byte) (model.Record, error) {
	var wire wireRecord
	if err := json.Unmarshal(line, &wire); err != nil {
		return model.Record{}, fmt.Errorf("decode record: %w", err)
	}
	if !wire.Kind.Valid() {
		return model.Record{}, fmt.Errorf("%w: %q", ErrInvalidKind, wire.Kind)
	}
	if wire.CRC != checksum(wire.Data) {
		return model.Record{}, fmt.Errorf("%w at seq %d", ErrChecksum, wire.Seq)
	}
	return toRecord(wire)
}

func toRecord(wire wireRecord) (model.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(wire.Data))
	dec.UseNumber()
	var data model.Document
	if err := dec.Decode(&data); err != nil {
		return model.Record{}, fmt.Errorf("decode record data: %w", err)
	}
	if data == nil {
		return model.Record{}, errors.New("decode record data: not a JSON object")
	}
	return model.Record{
		Seq:  wire.Seq,
		Kind: wire.Kind,
		TS:   wire.TS,
		Data: data,
		CRC:  wire.CRC,
	}, nil
}

func checksum(data []byte) string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], crc32.Checksum(data, castagnoli))
	return hex.EncodeToString(buf[:])
}
