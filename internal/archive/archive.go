// Package archive keeps recently completed session records in memory for
// the monitor's query endpoint and persists them to disk when they expire.
package archive

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jellydator/ttlcache/v3"
	"github.com/splitbench/splitbench/internal/persistence"
	"github.com/splitbench/splitbench/pkg/offload/model"
)

// DefaultTTL is how long a completed session stays queryable before it is
// written to disk and dropped from memory.
const DefaultTTL = 5 * time.Minute

// Datatype is the directory name session archives are stored under.
const Datatype = "offload"

// Store is a TTL cache of completed session archives. Eviction, whether by
// expiry or deletion, writes the archive to the data directory, so every
// stored session reaches disk exactly once.
type Store struct {
	dataDir  string
	sessions *ttlcache.Cache[string, *model.SessionArchive]
	mu       sync.Mutex
	logger   *log.Logger
}

// NewStore returns a Store writing expired sessions under dataDir.
func NewStore(dataDir string, ttl time.Duration, logger *log.Logger) *Store {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *model.SessionArchive](ttl),
		ttlcache.WithDisableTouchOnHit[string, *model.SessionArchive](),
	)
	cache.OnEviction(func(ctx context.Context,
		er ttlcache.EvictionReason,
		i *ttlcache.Item[string, *model.SessionArchive]) {
		a := i.Value()
		logger.Debug("archiving session", "uuid", a.UUID, "reason", er)

		df, err := persistence.WriteDataFile(dataDir, Datatype,
			a.Config.Pipeline.Name, a.UUID, a)
		if err != nil {
			logger.Error("failed to write session archive",
				"uuid", a.UUID, "err", err)
			return
		}
		logger.Debug("session archive written", "path", df.Path, "size", df.Size)
	})

	go cache.Start()
	return &Store{
		dataDir:  dataDir,
		sessions: cache,
		logger:   logger,
	}
}

// Put stores a completed session archive, keyed by its UUID.
func (s *Store) Put(a *model.SessionArchive) {
	s.mu.Lock()
	s.sessions.Set(a.UUID, a, ttlcache.DefaultTTL)
	s.mu.Unlock()
}

// Get returns the archive for uuid if it is still cached.
func (s *Store) Get(uuid string) (*model.SessionArchive, bool) {
	s.mu.Lock()
	item := s.sessions.Get(uuid)
	s.mu.Unlock()
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Flush evicts every cached session, writing each to disk. Call it before
// shutdown so in-memory archives are not lost.
func (s *Store) Flush() {
	s.mu.Lock()
	s.sessions.DeleteAll()
	s.mu.Unlock()
}

// Stop terminates the cache's expiry loop. Pending items are not written;
// use Flush first.
func (s *Store) Stop() {
	s.sessions.Stop()
}
