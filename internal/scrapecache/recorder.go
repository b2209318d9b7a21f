package scrapecache

import (
	"sync"

	"go.uber.org/zap"
)

// Recorder serializes cache writes through a single owning goroutine.
// Ingest workers call Record after their transaction commits; the owner
// applies the add and flushes every flushEvery new keys. This keeps the
// Cache free of locking while staying safe under concurrent producers.
type Recorder struct {
	cache      *Cache
	flushEvery int
	keys       chan string
	wg         sync.WaitGroup

	mu       sync.Mutex
	flushErr error
}

// NewRecorder starts the owning goroutine. flushEvery <= 0 disables
// intermediate flushes; Close always performs the final one.
func NewRecorder(cache *Cache, flushEvery int) *Recorder {
	r := &Recorder{
		cache:      cache,
		flushEvery: flushEvery,
		keys:       make(chan string, 256),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record hands a committed key to the owner. Safe for concurrent use.
// Must not be called after Close.
func (r *Recorder) Record(key string) {
	r.keys <- key
}

func (r *Recorder) run() {
	defer r.wg.Done()
	log := zap.L().With(zap.String("component", "scrapecache.recorder"))

	added := 0
	for key := range r.keys {
		if !r.cache.Add(key) {
			continue
		}
		added++
		if r.flushEvery > 0 && added%r.flushEvery == 0 {
			if err := r.cache.Flush(); err != nil {
				log.Warn("intermediate cache flush failed", zap.Error(err))
				r.setErr(err)
			}
		}
	}
}

// Close drains pending keys and performs the final flush. A failed final
// flush is a hard failure for the caller: the cache on disk no longer
// reflects committed work. A transient intermediate flush failure is
// forgotten once the final flush lands, because the snapshot then holds
// every committed key.
func (r *Recorder) Close() error {
	close(r.keys)
	r.wg.Wait()

	err := r.cache.Flush()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushErr = err
	return r.flushErr
}

func (r *Recorder) setErr(err error) {
	r.mu.Lock()
	r.flushErr = err
	r.mu.Unlock()
}
