package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestkit/harvestkit/internal/frontier"
	"github.com/harvestkit/harvestkit/internal/state"
)

func newState() *state.CrawlState {
	return state.New(frontier.DefaultClassifier())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	m := NewManager(path, 0, nil)

	st := newState()
	st.AddSeed("example.com", "https://example.com/docs", "https://example.com")
	st.MarkVisited("https://example.com/")
	st.IncrementDomainCount("example.com")
	st.Stats.Accepted.Add(1)

	require.NoError(t, m.Save(st))

	doc, err := m.Load()
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, []string{"https://example.com/"}, doc.Visited)
	assert.Equal(t, map[string]int{"example.com": 1}, doc.DomainCounts)
	assert.Equal(t, int64(1), doc.Statistics.Accepted)
	assert.False(t, doc.Timestamp.IsZero())

	restored := newState()
	restored.Restore(doc.Snapshot)
	assert.True(t, restored.IsVisited("https://example.com/"))
	assert.Equal(t, 1, restored.QueueSize("example.com"))
}

func TestLoadMissingFileIsFreshStart(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "nope.json"), 0, nil)
	doc, err := m.Load()
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestLoadCorruptFileIsFreshStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	m := NewManager(path, 0, nil)
	doc, err := m.Load()
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestDisabledManagerIsNoop(t *testing.T) {
	m := NewManager("", 0, nil)
	require.NoError(t, m.Save(newState()))
	doc, err := m.Load()
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(filepath.Join(dir, "checkpoint.json"), 0, nil)
	require.NoError(t, m.Save(newState()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "checkpoint.json", entries[0].Name())
}

func TestRunSavesPeriodically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	m := NewManager(path, 20*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, newState())
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
