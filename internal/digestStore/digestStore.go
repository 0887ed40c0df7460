// Package digeststore persists computed digests in a local badger database,
// so repeated runs over the same sources can be compared without rehashing.
package digeststore

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

const keyPrefix = "digest:"

var ErrNotFound = errors.New("digeststore: no record for source")

type StoreConfig struct {
	Path          string
	MinimumFreeGB int
	Logger        *logrus.Logger
}

// Record is one stored digest result.
type Record struct {
	Source    string
	Digest    []byte
	Length    uint64
	CreatedAt time.Time
}

type Store struct {
	config       StoreConfig
	badgerDB     *badger.DB
	readCounter  uint64
	writeCounter uint64
}

// New opens (or creates) the store at config.Path after checking that the
// volume has enough free space left.
func New(config StoreConfig) (*Store, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log = config.Logger

	if config.Path == "" {
		return nil, fmt.Errorf("digeststore: no path configured")
	}
	if err := os.MkdirAll(config.Path, 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	if err := checkFreeSpace(config.Path, config.MinimumFreeGB); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(config.Path)
	opts.Logger = nil
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", config.Path, err)
	}

	return &Store{config: config, badgerDB: db}, nil
}

func checkFreeSpace(path string, minimumGB int) error {
	usage, err := disk.Usage(path)
	if err != nil {
		return fmt.Errorf("disk usage for %s: %w", path, err)
	}

	freeGB := float64(usage.Free) / 1e9
	log.WithFields(logrus.Fields{
		"path":   path,
		"freeGB": freeGB,
	}).Info("Checked free space for digest store")

	if minimumGB > 0 && freeGB < float64(minimumGB) {
		return fmt.Errorf("not enough free space at %s: %.1fGB free, %dGB required", path, freeGB, minimumGB)
	}
	return nil
}

// Put stores or overwrites the record for rec.Source.
func (s *Store) Put(rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("encode record for %s: %w", rec.Source, err)
	}

	err := s.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+rec.Source), buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("store digest for %s: %w", rec.Source, err)
	}

	atomic.AddUint64(&s.writeCounter, 1)
	log.WithFields(logrus.Fields{
		"source": rec.Source,
		"length": rec.Length,
	}).Debug("Stored digest record")
	return nil
}

// Get returns the record stored for source.
func (s *Store) Get(source string) (Record, error) {
	var rec Record
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + source))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load digest for %s: %w", source, err)
	}

	atomic.AddUint64(&s.readCounter, 1)
	return rec, nil
}

// Sources lists every source name with a stored record.
func (s *Store) Sources() ([]string, error) {
	var sources []string
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			sources = append(sources, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list digest sources: %w", err)
	}
	return sources, nil
}

// Counters reports how many reads and writes this store handle served.
func (s *Store) Counters() (reads, writes uint64) {
	return atomic.LoadUint64(&s.readCounter), atomic.LoadUint64(&s.writeCounter)
}

func (s *Store) Close() error {
	return s.badgerDB.Close()
}
