package report

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/blackopt/internal/optimization/vector"
)

func sampleRecord(score float64) Record {
	initial, _ := vector.Infer("baixo 500 500 2.5")
	final, _ := vector.Infer("baixo 12 990 7.25")
	return Record{
		Method:      "Genetic Algorithm",
		Evaluator:   "./modelo10.exe",
		Initial:     initial,
		Final:       final,
		BestScore:   score,
		Elapsed:     1234567 * time.Microsecond,
		Evaluations: 3201,
	}
}

func TestFormat(t *testing.T) {
	want := "\n" + strings.Repeat("=", 70) + "\n" +
		" Method: Genetic Algorithm\n" +
		" Evaluator: ./modelo10.exe\n" +
		" Elapsed: 1.235 seconds\n" +
		" Total evaluations: 3201\n" +
		"\nInitial parameters:\n" +
		"  baixo 500 500 2.5\n" +
		"\nBest configuration found:\n" +
		"  baixo 12 990 7.25\n" +
		"\nBest score: 42.500000\n" +
		strings.Repeat("=", 70) + "\n"

	assert.Equal(t, want, Format(sampleRecord(42.5)))
}

func TestFormatSentinel(t *testing.T) {
	assert.Contains(t, Format(sampleRecord(math.Inf(-1))), "Best score: -Inf\n")
}

func TestAppendNeverRewrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "runs.txt")
	w := NewWriter(path)
	assert.Equal(t, path, w.Path())

	require.NoError(t, w.Append(sampleRecord(1)))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, w.Append(sampleRecord(2)))
	both, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(both), string(first)))
	assert.Equal(t, Format(sampleRecord(1))+Format(sampleRecord(2)), string(both))
}

func TestConcurrentAppendsDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.txt")
	w := NewWriter(path)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, w.Append(sampleRecord(float64(i))))
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 10, strings.Count(string(data), " Method: Genetic Algorithm\n"))
	assert.Equal(t, 10*len(Format(sampleRecord(0))), len(data))
}

func TestAppendFailure(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	assert.Error(t, w.Append(sampleRecord(1)))
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, DefaultPath, NewWriter("").Path())
}
