package llm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider counts calls and can be scripted to fail.
type fakeProvider struct {
	name    string
	fail    bool
	delay   time.Duration
	calls   atomic.Int64
	active  atomic.Int64
	peak    atomic.Int64
	peakMu  sync.Mutex
	respond string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) GenerateText(ctx context.Context, prompt string, req Request) (*Response, error) {
	return f.run(req)
}

func (f *fakeProvider) GenerateWithVision(ctx context.Context, prompt string, images []string, req Request) (*Response, error) {
	return f.run(req)
}

func (f *fakeProvider) run(req Request) (*Response, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	f.peakMu.Lock()
	if n > f.peak.Load() {
		f.peak.Store(n)
	}
	f.peakMu.Unlock()
	defer f.active.Add(-1)

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail {
		return nil, assert.AnError
	}
	text := f.respond
	if text == "" {
		text = "ok"
	}
	return &Response{
		Text:     text,
		Model:    req.Model,
		Provider: f.name,
		Usage:    Usage{Input: 1000, Output: 500, Total: 1500},
	}, nil
}

func TestFallbackOnPrimaryFailure(t *testing.T) {
	primary := &fakeProvider{name: "openai", fail: true}
	fallback := &fakeProvider{name: "gemini"}

	r := NewRegistry()
	r.Register(primary, 4)
	r.Register(fallback, 4)

	resp, err := r.Generate(context.Background(), KindSynthesis, "prompt", nil, Request{})
	require.NoError(t, err)
	assert.Equal(t, "gemini", resp.Provider)
	assert.EqualValues(t, 1, primary.calls.Load())
	assert.EqualValues(t, 1, fallback.calls.Load())
	assert.ElementsMatch(t, []string{"openai", "gemini"}, r.ProvidersUsed())
}

func TestBothProvidersFailing(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{name: "openai", fail: true}, 4)
	r.Register(&fakeProvider{name: "gemini", fail: true}, 4)

	_, err := r.Generate(context.Background(), KindSynthesis, "prompt", nil, Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback")
}

func TestSemaphoreBoundsConcurrency(t *testing.T) {
	p := &fakeProvider{name: "gemini", delay: 5 * time.Millisecond}
	r := NewRegistry()
	r.Register(p, 2)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.GenerateWith(context.Background(), "gemini", "p", nil, Request{})
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, p.peak.Load(), int64(2))
}

func TestAssignmentModelsApplied(t *testing.T) {
	p := &fakeProvider{name: "openai"}
	r := NewRegistry()
	r.Register(p, 4)
	r.Register(&fakeProvider{name: "gemini"}, 4)

	resp, err := r.Generate(context.Background(), KindSynthesis, "p", nil, Request{})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", resp.Model)
}

func TestCostTracking(t *testing.T) {
	p := &fakeProvider{name: "openai"}
	r := NewRegistry()
	r.Register(p, 4)

	_, err := r.GenerateWith(context.Background(), "openai", "p", nil, Request{Model: "gpt-4o"})
	require.NoError(t, err)

	// 1000 input tokens * 0.0025/1k + 500 output * 0.01/1k
	assert.InDelta(t, 0.0075, r.Costs().Total(), 1e-9)
	assert.Equal(t, 1, r.Costs().Calls())
}

func TestUnknownProvider(t *testing.T) {
	r := NewRegistry()
	_, err := r.GenerateWith(context.Background(), "nope", "p", nil, Request{})
	require.Error(t, err)
}

func TestParseStructured(t *testing.T) {
	type envelope struct {
		Findings []struct {
			Category string `json:"category"`
		} `json:"findings"`
	}

	cases := []struct {
		name string
		text string
		ok   bool
	}{
		{"plain json", `{"findings":[{"category":"design"}]}`, true},
		{"fenced json", "```json\n{\"findings\":[{\"category\":\"design\"}]}\n```", true},
		{"json with preamble", "Here is the result:\n{\"findings\":[]}", true},
		{"garbage", "I could not produce findings.", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := ParseStructured[envelope](&Response{Text: tc.text})
			if tc.ok {
				require.NoError(t, err)
				assert.NotNil(t, out.Findings)
			} else {
				require.Error(t, err)
			}
		})
	}
}
