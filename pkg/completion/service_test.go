package completion

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	assisterr "github.com/il-dat/open-code-assistant/pkg/errors"
	"github.com/il-dat/open-code-assistant/pkg/model"
	"github.com/il-dat/open-code-assistant/pkg/prompt"
)

// stubGenerator counts calls and delegates to a per-test stream func.
type stubGenerator struct {
	calls  int32
	stream func(ctx context.Context) (<-chan model.GenerateChunk, <-chan error)
}

func (g *stubGenerator) GenerateStream(ctx context.Context, _ model.GenerateRequest) (<-chan model.GenerateChunk, <-chan error) {
	atomic.AddInt32(&g.calls, 1)
	return g.stream(ctx)
}

func (g *stubGenerator) callCount() int32 {
	return atomic.LoadInt32(&g.calls)
}

// fixedStream yields the given chunks then closes, matching the
// channel-pair contract of the inference client.
func fixedStream(chunks ...model.GenerateChunk) func(context.Context) (<-chan model.GenerateChunk, <-chan error) {
	return func(ctx context.Context) (<-chan model.GenerateChunk, <-chan error) {
		chunkChan := make(chan model.GenerateChunk, len(chunks))
		errChan := make(chan error, 1)
		for _, c := range chunks {
			chunkChan <- c
		}
		close(chunkChan)
		close(errChan)
		return chunkChan, errChan
	}
}

func failingStream(err error) func(context.Context) (<-chan model.GenerateChunk, <-chan error) {
	return func(ctx context.Context) (<-chan model.GenerateChunk, <-chan error) {
		chunkChan := make(chan model.GenerateChunk)
		errChan := make(chan error, 1)
		errChan <- err
		close(chunkChan)
		close(errChan)
		return chunkChan, errChan
	}
}

// hangingStream never produces until the request context is cancelled.
func hangingStream(ctx context.Context) (<-chan model.GenerateChunk, <-chan error) {
	chunkChan := make(chan model.GenerateChunk)
	errChan := make(chan error, 1)
	go func() {
		<-ctx.Done()
		close(chunkChan)
		close(errChan)
	}()
	return chunkChan, errChan
}

func testOptions() Options {
	return Options{Model: "test-model", MaxTokens: 64, Temperature: 0.2}
}

func testDoc() (prompt.Document, prompt.Position) {
	doc := prompt.NewDocument("func main() {\n\tconsole\n}")
	return doc, prompt.Position{Line: 1, Col: 8}
}

func TestProvideCompletion_AccumulatesStream(t *testing.T) {
	gen := &stubGenerator{stream: fixedStream(
		model.GenerateChunk{TextDelta: "console"},
		model.GenerateChunk{TextDelta: `.log("test");`, IsFinal: true},
	)}
	svc := NewService(gen, nil, testOptions(), nil)

	doc, pos := testDoc()
	result := svc.ProvideCompletion(context.Background(), doc, pos)

	require.NotNil(t, result)
	assert.Equal(t, `console.log("test");`, result.Text)
	assert.Equal(t, pos, result.Position)
	assert.Equal(t, 0, svc.ActiveRequests())
}

func TestProvideCompletion_BlankLineShortCircuits(t *testing.T) {
	gen := &stubGenerator{stream: fixedStream()}
	svc := NewService(gen, nil, testOptions(), nil)

	doc := prompt.NewDocument("func main() {\n\t   \n}")
	result := svc.ProvideCompletion(context.Background(), doc, prompt.Position{Line: 1, Col: 3})

	assert.Nil(t, result)
	assert.Zero(t, gen.callCount(), "inference client must not be contacted for blank input")
}

func TestProvideCompletion_PreCancelledContext(t *testing.T) {
	gen := &stubGenerator{stream: fixedStream()}
	svc := NewService(gen, nil, testOptions(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc, pos := testDoc()
	result := svc.ProvideCompletion(ctx, doc, pos)

	assert.Nil(t, result)
	assert.Zero(t, gen.callCount(), "inference client must not be contacted when already cancelled")
}

func TestProvideCompletion_EmptyOutput(t *testing.T) {
	gen := &stubGenerator{stream: fixedStream(
		model.GenerateChunk{TextDelta: "<EOT>", IsFinal: true},
	)}
	svc := NewService(gen, nil, testOptions(), nil)

	doc, pos := testDoc()
	assert.Nil(t, svc.ProvideCompletion(context.Background(), doc, pos))
}

func TestProvideCompletion_TransportFailureNotifiesOnce(t *testing.T) {
	gen := &stubGenerator{stream: failingStream(
		assisterr.New(assisterr.ErrCodeServiceUnavailable, "connection refused").
			WithUserMessage("Cannot reach the inference server."),
	)}

	var notified []string
	svc := NewService(gen, NotifierFunc(func(msg string) {
		notified = append(notified, msg)
	}), testOptions(), nil)

	doc, pos := testDoc()
	result := svc.ProvideCompletion(context.Background(), doc, pos)

	assert.Nil(t, result)
	require.Len(t, notified, 1)
	assert.Equal(t, "Cannot reach the inference server.", notified[0])
	assert.Equal(t, 0, svc.ActiveRequests())
}

func TestProvideCompletion_CancellationIsSilent(t *testing.T) {
	gen := &stubGenerator{stream: failingStream(
		assisterr.New(assisterr.ErrCodeCancelled, "request cancelled"),
	)}

	var notified int
	svc := NewService(gen, NotifierFunc(func(string) { notified++ }), testOptions(), nil)

	doc, pos := testDoc()
	assert.Nil(t, svc.ProvideCompletion(context.Background(), doc, pos))
	assert.Zero(t, notified, "cancellation must never reach the user")
}

func TestCollect_MidStreamCancellationKeepsEarlierChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	chunks := make(chan model.GenerateChunk)

	go func() {
		chunks <- model.GenerateChunk{TextDelta: "first"}
		cancel()
		chunks <- model.GenerateChunk{TextDelta: "second", IsFinal: true}
		close(chunks)
	}()

	got := collect(ctx, chunks)
	assert.Equal(t, "first", got, "text received before cancellation is kept, later deltas dropped")

	for range chunks {
	}
}

func TestDispose_SettlesInFlightAttempts(t *testing.T) {
	const attempts = 8

	gen := &stubGenerator{stream: hangingStream}
	svc := NewService(gen, nil, testOptions(), nil)
	doc, pos := testDoc()

	var wg sync.WaitGroup
	results := make(chan *Result, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.ProvideCompletion(context.Background(), doc, pos)
		}()
	}

	require.Eventually(t, func() bool {
		return svc.ActiveRequests() == attempts
	}, 5*time.Second, 10*time.Millisecond, "all attempts should register before disposal")

	svc.Dispose()
	wg.Wait()
	close(results)

	for result := range results {
		assert.Nil(t, result, "every pending attempt settles to no completion")
	}
	assert.Equal(t, 0, svc.ActiveRequests())
}

func TestDispose_Idempotent(t *testing.T) {
	svc := NewService(&stubGenerator{stream: fixedStream()}, nil, testOptions(), nil)
	svc.Dispose()
	svc.Dispose()
	assert.Equal(t, 0, svc.ActiveRequests())
}
