package archive_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/splitbench/splitbench/internal/archive"
	"github.com/splitbench/splitbench/pkg/offload/model"
)

func testArchive(uuid string) *model.SessionArchive {
	cfg := model.DefaultSessionConfig()
	return &model.SessionArchive{
		UUID:      uuid,
		Server:    "127.0.0.1:12345",
		Client:    "127.0.0.1:54321",
		StartTime: time.Now(),
		EndTime:   time.Now(),
		Config:    cfg,
		Metrics:   model.SessionMetrics{TotalRequests: 3},
	}
}

func TestStorePutGet(t *testing.T) {
	dir := t.TempDir()
	store := archive.NewStore(dir, archive.DefaultTTL, log.Default())
	defer store.Stop()

	store.Put(testArchive("uuid-1"))

	got, ok := store.Get("uuid-1")
	if !ok {
		t.Fatal("Get() did not find a stored session")
	}
	if got.Metrics.TotalRequests != 3 {
		t.Errorf("Get() TotalRequests = %d, want 3", got.Metrics.TotalRequests)
	}

	if _, ok := store.Get("unknown"); ok {
		t.Error("Get() found a session that was never stored")
	}
}

func TestStoreFlushWrites(t *testing.T) {
	dir := t.TempDir()
	store := archive.NewStore(dir, archive.DefaultTTL, log.Default())
	defer store.Stop()

	store.Put(testArchive("uuid-flush"))
	store.Flush()

	pattern := filepath.Join(dir, archive.Datatype, "*", "*", "*", "*uuid-flush.json.gz")
	waitForFile(t, pattern)

	if _, ok := store.Get("uuid-flush"); ok {
		t.Error("Get() found a session after Flush()")
	}
}

func TestStoreExpiryWrites(t *testing.T) {
	dir := t.TempDir()
	store := archive.NewStore(dir, 10*time.Millisecond, log.Default())
	defer store.Stop()

	store.Put(testArchive("uuid-expired"))

	pattern := filepath.Join(dir, archive.Datatype, "*", "*", "*", "*uuid-expired.json.gz")
	waitForFile(t, pattern)
}

// waitForFile polls for a file matching pattern. Eviction callbacks run on
// the cache goroutine, so writes are asynchronous.
func waitForFile(t *testing.T, pattern string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			t.Fatalf("bad glob pattern: %v", err)
		}
		if len(matches) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no file matching %s appeared", pattern)
}
