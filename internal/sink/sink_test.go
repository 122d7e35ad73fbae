package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/shiptoday/nanochat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(tag string, n int) *domain.ConversationRecord {
	rec := &domain.ConversationRecord{}
	for i := 0; i < n; i++ {
		rec.Messages = append(rec.Messages, domain.Message{
			Role:    domain.ExpectedRole(i),
			Content: fmt.Sprintf("%s-%d %s", tag, i, strings.Repeat("x", 256)),
		})
	}
	return rec
}

func TestOpenTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.jsonl")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("stale line\n"), 0644))

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestOpenCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "out.jsonl")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.FileExists(t, path)
}

func TestOpenUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	_, err := Open(filepath.Join(blocker, "out.jsonl"))
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr), "got %v", err)
}

func TestAppendWritesOneLinePerRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Append(record("a", 6)))
	require.NoError(t, s.Append(record("b", 8)))
	require.NoError(t, s.Close())
	assert.Equal(t, 2, s.Count())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `[{"role":"user","content":"a-0`))

	records, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 6, records[0].Len())
	assert.Equal(t, domain.RoleAssistant, records[1].Messages[7].Role)
}

// 两个并发写入不会产生交错或合并的行
func TestAppendConcurrentPair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s, err := Open(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, tag := range []string{"left", "right"} {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			assert.NoError(t, s.Append(record(tag, 6)))
		}(tag)
	}
	wg.Wait()
	require.NoError(t, s.Close())

	records, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	tags := map[string]bool{}
	for _, rec := range records {
		tags[strings.SplitN(rec.Messages[0].Content, "-", 2)[0]] = true
	}
	assert.Equal(t, map[string]bool{"left": true, "right": true}, tags)
}

func TestAppendConcurrentMany(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s, err := Open(path)
	require.NoError(t, err)

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Append(record(fmt.Sprintf("w%d", i), 6+i%4)))
		}(i)
	}
	wg.Wait()
	require.NoError(t, s.Close())

	records, err := ReadAll(path)
	require.NoError(t, err)
	assert.Len(t, records, writers)
	assert.Equal(t, writers, s.Count())
}

func TestAppendAfterClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "out.jsonl"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err = s.Append(record("late", 6))
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.True(t, errors.Is(err, ErrClosed))
}
