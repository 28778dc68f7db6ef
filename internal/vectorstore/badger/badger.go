// Package badger persists collections in a BadgerDB directory. Records are
// msgpack-encoded; a collection is read into memory the first time it is
// touched after opening the directory.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"paperrag/internal/domain"
	"paperrag/internal/vectorstore"
)

// Options configures the BadgerDB store.
type Options struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string
	// InMemory runs BadgerDB without disk persistence.
	InMemory bool
	Logger   *slog.Logger
}

type collectionMeta struct {
	Metric vectorstore.Metric `msgpack:"metric"`
	Dim    int                `msgpack:"dim"`
	Next   uint64             `msgpack:"next"`
}

type collection struct {
	name string
	flat *vectorstore.Flat
	// next is only touched by Flat.Append's commit hook, which runs under
	// the collection write lock.
	next uint64
}

// Storage is a vectorstore.Index backed by BadgerDB.
type Storage struct {
	db     *badgerdb.DB
	logger *slog.Logger

	mu     sync.Mutex
	loaded map[string]*collection
}

var _ vectorstore.Index = (*Storage)(nil)

// Open opens or creates the store.
func Open(opts Options) (*Storage, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger: Options.Dir is required for on-disk mode")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts := badgerdb.DefaultOptions(opts.Dir).WithLogger(slogLogger{logger.With("component", "badger")})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badgerdb.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", opts.Dir, err)
	}
	return &Storage{db: db, logger: logger, loaded: make(map[string]*collection)}, nil
}

func (s *Storage) EnsureCollection(_ context.Context, name string, metric vectorstore.Metric) (vectorstore.Collection, error) {
	if err := vectorstore.ValidateName(name); err != nil {
		return vectorstore.Collection{}, err
	}
	if metric == "" {
		metric = vectorstore.MetricCosine
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.loadLocked(name)
	if err != nil {
		return vectorstore.Collection{}, err
	}
	if c == nil {
		data, err := msgpack.Marshal(collectionMeta{Metric: metric})
		if err != nil {
			return vectorstore.Collection{}, err
		}
		if err := s.db.Update(func(txn *badgerdb.Txn) error {
			return txn.Set(metaKey(name), data)
		}); err != nil {
			return vectorstore.Collection{}, fmt.Errorf("create collection %s: %w", name, err)
		}
		c = &collection{name: name, flat: vectorstore.NewFlat(metric, 0, nil)}
		s.loaded[name] = c
		s.logger.Debug("collection created", "collection", name, "metric", metric)
	}
	return vectorstore.Collection{Name: name, Metric: c.flat.Metric(), Dimension: c.flat.Dimension(), Count: c.flat.Len()}, nil
}

func (s *Storage) Add(_ context.Context, name string, ids []string, vectors [][]float32, texts []string, metadatas []vectorstore.Metadata) error {
	records, err := vectorstore.BuildRecords(ids, vectors, texts, metadatas)
	if err != nil {
		return err
	}
	c, err := s.get(name)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	return c.flat.Append(records, func(dim int, recs []vectorstore.Record) error {
		return s.commit(c, dim, recs)
	})
}

// commit writes records and the advanced sequence in one batch. It holds the
// registry lock so a concurrent DeleteCollection cannot interleave.
func (s *Storage) commit(c *collection, dim int, recs []vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded[c.name] != c {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, c.name)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	next := c.next
	for _, r := range recs {
		data, err := msgpack.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record %q: %w", r.ID, err)
		}
		if err := wb.Set(recordKey(c.name, next), data); err != nil {
			return err
		}
		next++
	}
	meta, err := msgpack.Marshal(collectionMeta{Metric: c.flat.Metric(), Dim: dim, Next: next})
	if err != nil {
		return err
	}
	if err := wb.Set(metaKey(c.name), meta); err != nil {
		return err
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("write %d records to %s: %w", len(recs), c.name, err)
	}
	c.next = next
	return nil
}

func (s *Storage) Search(_ context.Context, name string, query []float32, k int) ([]vectorstore.Hit, error) {
	c, err := s.get(name)
	if err != nil || c == nil {
		return nil, err
	}
	return c.flat.Search(query, k)
}

func (s *Storage) Has(_ context.Context, name, id string) (bool, error) {
	c, err := s.get(name)
	if err != nil || c == nil {
		return false, err
	}
	return c.flat.Has(id), nil
}

func (s *Storage) Count(_ context.Context, name string) (int, error) {
	c, err := s.get(name)
	if err != nil || c == nil {
		return 0, err
	}
	return c.flat.Len(), nil
}

func (s *Storage) ExistsWithData(ctx context.Context, name string) (bool, error) {
	n, err := s.Count(ctx, name)
	return n > 0, err
}

func (s *Storage) DeleteCollection(_ context.Context, name string) error {
	if err := vectorstore.ValidateName(name); err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loaded, name)
	if err := s.db.DropPrefix(collectionPrefix(name)); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	s.logger.Debug("collection deleted", "collection", name)
	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) get(name string) (*collection, error) {
	if vectorstore.ValidateName(name) != nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(name)
}

// loadLocked returns the cached collection, reading it from disk if needed.
// It returns nil, nil when the collection does not exist.
func (s *Storage) loadLocked(name string) (*collection, error) {
	if c, ok := s.loaded[name]; ok {
		return c, nil
	}
	var (
		meta    collectionMeta
		found   bool
		records []vectorstore.Record
	)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(metaKey(name))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		if err := item.Value(func(v []byte) error { return msgpack.Unmarshal(v, &meta) }); err != nil {
			return fmt.Errorf("decode collection meta: %w", err)
		}

		prefix := recordPrefix(name)
		iterOpts := badgerdb.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r vectorstore.Record
			if err := it.Item().Value(func(v []byte) error { return msgpack.Unmarshal(v, &r) }); err != nil {
				return fmt.Errorf("decode record %q: %w", it.Item().Key(), err)
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil || !found {
		return nil, err
	}
	c := &collection{name: name, flat: vectorstore.NewFlat(meta.Metric, meta.Dim, records), next: meta.Next}
	s.loaded[name] = c
	s.logger.Debug("collection loaded", "collection", name, "records", len(records))
	return c, nil
}

func collectionPrefix(name string) []byte { return []byte("col/" + name + "/") }

func metaKey(name string) []byte { return append(collectionPrefix(name), "meta"...) }

func recordPrefix(name string) []byte { return append(collectionPrefix(name), "rec/"...) }

// recordKey orders records by insertion sequence.
func recordKey(name string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(recordPrefix(name), seq)
}

// slogLogger adapts slog to badger's printf-style logger. Info output is
// demoted to debug.
type slogLogger struct{ l *slog.Logger }

func (b slogLogger) Errorf(f string, v ...any)   { b.l.Error(fmt.Sprintf(f, v...)) }
func (b slogLogger) Warningf(f string, v ...any) { b.l.Warn(fmt.Sprintf(f, v...)) }
func (b slogLogger) Infof(f string, v ...any)    { b.l.Debug(fmt.Sprintf(f, v...)) }
func (b slogLogger) Debugf(f string, v ...any)   { b.l.Debug(fmt.Sprintf(f, v...)) }
