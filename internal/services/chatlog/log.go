package chatlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"cipherlog/internal/domain"
	"cipherlog/internal/logging"
	"cipherlog/internal/metrics"
	"cipherlog/internal/validation"
	"cipherlog/internal/worker"
)

const (
	logKey = "cipherlog/log"

	// DefaultRetention caps the number of persisted entries.
	DefaultRetention = 500

	casAttempts = 5
)

// ErrContention is returned when every compare-and-swap attempt lost to
// another writer.
var ErrContention = errors.New("log changed concurrently, append not persisted")

// Partition selects how logs are keyed in the store.
type Partition string

const (
	// PartitionGroup keys each log by its group identity.
	PartitionGroup Partition = "group"
	// PartitionShared keeps every group in one log; members only see what
	// they can decrypt.
	PartitionShared Partition = "shared"
)

// Valid reports whether p is a known partition mode.
func (p Partition) Valid() bool { return p == PartitionGroup || p == PartitionShared }

// Key returns the store key for group under partition p.
func Key(p Partition, group domain.GroupID) string {
	if p == PartitionShared || group == "" {
		return logKey
	}
	return logKey + "/" + string(group)
}

// Config tunes a Log. Zero fields take the defaults.
type Config struct {
	// Retention is the maximum number of entries kept. Negative disables
	// the cap.
	Retention int
	Partition Partition
	// CryptoTimeout bounds encryption of one entry.
	CryptoTimeout time.Duration
	// Parallelism bounds concurrent decryption. Zero means GOMAXPROCS.
	Parallelism int
	Clock       func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Retention == 0 {
		c.Retention = DefaultRetention
	}
	if c.Partition == "" {
		c.Partition = PartitionGroup
	}
	if c.Parallelism <= 0 {
		c.Parallelism = runtime.GOMAXPROCS(0)
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Log is one member's view of a group log. It is safe for concurrent use.
type Log struct {
	store   domain.KVStore
	cipher  domain.Cipher
	cfg     Config
	log     *logrus.Entry
	metrics *metrics.Metrics

	mu       sync.Mutex
	key      string
	entries  []domain.Message
	seenLen  int
	seenLast string
}

// New returns a Log reading and writing store through cipher. Call Open
// before anything else.
func New(store domain.KVStore, cipher domain.Cipher, cfg Config, log *logrus.Entry, m *metrics.Metrics) *Log {
	return &Log{
		store:   store,
		cipher:  cipher,
		cfg:     cfg.withDefaults(),
		log:     logging.OrDiscard(log),
		metrics: metrics.OrNew(m),
	}
}

// Open binds the log to group and loads the persisted entries.
func (l *Log) Open(_ context.Context, group domain.GroupID) error {
	key := Key(l.cfg.Partition, group)
	entries, _ := l.load(key)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.key = key
	l.observe(entries)
	l.log.WithFields(logrus.Fields{"key": key, "entries": len(entries)}).Debug("log opened")
	return nil
}

// Append encrypts text and persists it as a new entry by author.
func (l *Log) Append(ctx context.Context, author domain.Username, text string) (domain.Message, error) {
	if err := validation.Message(string(author), text); err != nil {
		return domain.Message{}, err
	}
	key, err := l.boundKey()
	if err != nil {
		return domain.Message{}, err
	}

	ct, err := worker.Run(ctx, l.cfg.CryptoTimeout, func() ([]byte, error) {
		return l.cipher.Encrypt(text)
	})
	if err != nil {
		if errors.Is(err, domain.ErrEncryptionFailure) {
			return domain.Message{}, err
		}
		return domain.Message{}, fmt.Errorf("%w: %w", domain.ErrEncryptionFailure, err)
	}

	msg := domain.Message{
		ID:         newID(),
		Author:     author,
		Timestamp:  l.cfg.Clock().UTC(),
		Ciphertext: ct,
	}

	for attempt := 1; attempt <= casAttempts; attempt++ {
		entries, raw := l.load(key)
		entries = retain(append(entries, msg), l.cfg.Retention)

		b, err := json.Marshal(entries)
		if err != nil {
			return domain.Message{}, err
		}
		ok, err := l.write(key, raw, b)
		if err != nil {
			return domain.Message{}, fmt.Errorf("persist log: %w", err)
		}
		if ok {
			l.mu.Lock()
			l.observe(entries)
			l.mu.Unlock()
			l.metrics.MessagesAppended.Inc()
			return msg, nil
		}
		l.log.WithField("attempt", attempt).Debug("append lost a swap, retrying")
	}
	return domain.Message{}, ErrContention
}

// ReadAll decrypts the loaded entries and returns them ordered by
// timestamp, ties kept in log order. Entries that fail to decrypt are
// omitted. ReadAll does not touch the store; call Poll to refresh.
func (l *Log) ReadAll(ctx context.Context) ([]domain.Line, error) {
	l.mu.Lock()
	entries := make([]domain.Message, len(l.entries))
	copy(entries, l.entries)
	l.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	lines := make([]domain.Line, len(entries))
	ok := make([]bool, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Parallelism)
	for i := range entries {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m := entries[i]
			text, err := l.cipher.Decrypt(m.Ciphertext)
			if err != nil {
				return nil
			}
			lines[i] = domain.Line{ID: m.ID, Author: m.Author, Timestamp: m.Timestamp, Text: text}
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := lines[:0]
	for i := range lines {
		if ok[i] {
			out = append(out, lines[i])
		}
	}
	if skipped := len(entries) - len(out); skipped > 0 {
		l.metrics.EntriesUndecryptable.Add(float64(skipped))
		l.log.WithField("skipped", skipped).Debug("omitted undecryptable entries")
	}
	return out, nil
}

// Poll reloads the log and reports whether it changed since the last
// load, judged by entry count and the newest entry.
func (l *Log) Poll(_ context.Context) (bool, error) {
	key, err := l.boundKey()
	if err != nil {
		return false, err
	}
	entries, _ := l.load(key)

	l.mu.Lock()
	defer l.mu.Unlock()
	changed := len(entries) != l.seenLen || lastID(entries) != l.seenLast
	l.observe(entries)
	return changed, nil
}

// Len returns the number of loaded entries, decryptable or not.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Key returns the store key the log is bound to.
func (l *Log) Key() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.key
}

// observe records entries as the current snapshot. Callers hold l.mu.
func (l *Log) observe(entries []domain.Message) {
	l.entries = entries
	l.seenLen = len(entries)
	l.seenLast = lastID(entries)
}

func (l *Log) boundKey() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.key == "" {
		return "", domain.ErrNotConnected
	}
	return l.key, nil
}

// load reads the entries under key along with the raw bytes they came
// from. Unreadable or malformed data yields an empty log.
func (l *Log) load(key string) ([]domain.Message, []byte) {
	b, ok, err := l.store.Get(key)
	if err != nil {
		l.log.WithError(err).Warn("read log")
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	var entries []domain.Message
	if err := json.Unmarshal(b, &entries); err != nil {
		l.log.WithError(err).WithField("key", key).Warn("log malformed, treating as empty")
		return nil, b
	}
	return entries, b
}

func (l *Log) write(key string, old, b []byte) (bool, error) {
	if s, ok := l.store.(domain.Swapper); ok {
		return s.CompareAndSwap(key, old, b)
	}
	return true, l.store.Set(key, b)
}

// retain drops the oldest entries beyond limit.
func retain(entries []domain.Message, limit int) []domain.Message {
	if limit < 0 || len(entries) <= limit {
		return entries
	}
	return append([]domain.Message(nil), entries[len(entries)-limit:]...)
}

func lastID(entries []domain.Message) string {
	if len(entries) == 0 {
		return ""
	}
	return entries[len(entries)-1].ID
}

// newID returns a time-ordered UUID, falling back to a random one.
func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// Compile-time assertion that Log implements domain.MessageLog.
var _ domain.MessageLog = (*Log)(nil)
