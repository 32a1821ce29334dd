package logging

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decode(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &e), line)
		entries = append(entries, e)
	}
	return entries
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WarnLevel, &buf)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown", map[string]interface{}{"k": 1})
	l.Error("shown too")

	entries := decode(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "shown", entries[0]["message"])
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, float64(1), entries[0]["k"])
	assert.Contains(t, entries[0]["caller"], "logging/logger_test.go")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"", InfoLevel, false},
		{"debug", DebugLevel, false},
		{"Warning", WarnLevel, false},
		{"ERROR", ErrorLevel, false},
		{"loud", InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, (&Config{Level: "noisy"}).Validate())
	assert.Error(t, (&Config{Level: "info", Format: "xml"}).Validate())
}

func TestNonFiniteFloatsAreEncoded(t *testing.T) {
	var buf bytes.Buffer
	l := New(DebugLevel, &buf)
	l.Info("score", map[string]interface{}{"best": math.Inf(-1), "took": 2 * time.Second})

	entries := decode(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "-Inf", entries[0]["best"])
	assert.Equal(t, "2s", entries[0]["took"])
}

func TestTextFormatAndNames(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithFormat(DebugLevel, &buf, TextFormat).Named("runs").Named("genetic")
	l.WithField("b", 2).Info("generation", map[string]interface{}{"a": 1})

	line := buf.String()
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "runs.genetic: generation a=1 b=2")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestDerivedLoggersDoNotShareFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(InfoLevel, &buf)
	child := base.WithField("run", "x")
	base.Info("base")
	child.Info("child")

	entries := decode(t, &buf)
	require.Len(t, entries, 2)
	assert.NotContains(t, entries[0], "run")
	assert.Equal(t, "x", entries[1]["run"])
}

func TestConcurrentWritesStayLineAligned(t *testing.T) {
	var buf bytes.Buffer
	l := New(InfoLevel, &buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.WithField("worker", i).Info("done")
		}(i)
	}
	wg.Wait()

	assert.Len(t, decode(t, &buf), 20)
}

func TestZapAdapter(t *testing.T) {
	var buf bytes.Buffer
	z := NewZapLogger(New(DebugLevel, &buf)).Named("evaluator")

	z.Debug("evaluation failed",
		zap.Float64("score", 1.5),
		zap.Float32("ratio", 0.25),
		zap.Int("worker", 3),
		zap.Bool("timeout", true),
		zap.Duration("took", 1500*time.Millisecond),
		zap.Error(assert.AnError),
	)

	entries := decode(t, &buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "DEBUG", e["level"])
	assert.Equal(t, "evaluator", e["logger"])
	assert.Equal(t, 1.5, e["score"])
	assert.Equal(t, 0.25, e["ratio"])
	assert.Equal(t, float64(3), e["worker"])
	assert.Equal(t, true, e["timeout"])
	assert.Equal(t, "1.5s", e["took"])
	assert.Equal(t, assert.AnError.Error(), e["error"])
}

func TestZapAdapterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	z := NewZapLogger(New(InfoLevel, &buf))
	z.Debug("hidden")
	z.With(zap.String("run", "r1")).Info("shown")

	entries := decode(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "r1", entries[0]["run"])
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	l := New(InfoLevel, &buf)

	h := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))

	entries := decode(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "inside", entries[0]["message"])
	assert.Equal(t, "/api/v1/runs", entries[0]["path"])
	assert.Equal(t, "Request completed", entries[1]["message"])
	assert.Equal(t, float64(http.StatusTeapot), entries[1]["status"])
	assert.NotEmpty(t, entries[1]["error"])
}
