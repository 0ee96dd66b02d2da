package progress

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []int
}

func (r *recorder) OnProgress(p int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
}

func TestTracker_Percentages(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(200, rec)

	assert.Equal(t, 0, tr.Add(1))
	assert.Equal(t, 50, tr.Add(99))
	assert.Equal(t, 99, tr.Add(99))
	assert.Equal(t, 100, tr.Add(1))
	assert.Equal(t, 100, tr.Add(500), "clamped at 100")

	assert.Equal(t, []int{0, 50, 99, 100, 100}, rec.events)
	assert.Equal(t, int64(700), tr.Seen())
	assert.Equal(t, 100, tr.Percent())
}

func TestTracker_ZeroTotal(t *testing.T) {
	tr := NewTracker(0, nil)
	assert.Equal(t, 0, tr.Add(0))
	assert.Equal(t, 100, tr.Add(1))
}

func TestTracker_Done(t *testing.T) {
	t.Run("empty transfer", func(t *testing.T) {
		rec := &recorder{}
		tr := NewTracker(0, rec)
		tr.Add(0)
		tr.Done()
		assert.Equal(t, []int{0, 100}, rec.events)
		assert.Equal(t, 100, tr.Percent())
	})

	t.Run("already complete", func(t *testing.T) {
		rec := &recorder{}
		tr := NewTracker(4, rec)
		tr.Add(4)
		tr.Done()
		assert.Equal(t, []int{100}, rec.events)
	})
}

func TestTracker_NegativeClampsToZero(t *testing.T) {
	tr := NewTracker(10, nil)
	assert.Equal(t, 0, tr.Add(-5))
}

func TestTracker_MonotonicUnderConcurrency(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(10_000, rec)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Add(10)
			}
		}()
	}
	wg.Wait()

	require.Len(t, rec.events, 1000)
	for i := 1; i < len(rec.events); i++ {
		assert.GreaterOrEqual(t, rec.events[i], rec.events[i-1])
	}
	assert.Equal(t, 100, rec.events[len(rec.events)-1])
}

func TestReader(t *testing.T) {
	var last int
	tr := NewTracker(11, SinkFunc(func(p int) { last = p }))

	data, err := io.ReadAll(NewReader(strings.NewReader("hello world"), tr))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, 100, last)
}

func TestWriter(t *testing.T) {
	tr := NewTracker(4, nil)
	var buf bytes.Buffer
	w := NewWriter(&buf, tr)

	_, err := w.Write([]byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, 50, tr.Percent())
	_, err = w.Write([]byte("cd"))
	require.NoError(t, err)
	assert.Equal(t, 100, tr.Percent())
	assert.Equal(t, "abcd", buf.String())
}
