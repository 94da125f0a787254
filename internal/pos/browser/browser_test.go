package browser

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/pos-bot/internal/domain/items"
	"github.com/Spok95/pos-bot/internal/infra/logger"
)

type fakeSource struct {
	mu      sync.Mutex
	calls   []string
	results map[string]*items.SearchResult
}

func (f *fakeSource) Search(_ context.Context, _, _ int, _, itemGroup, searchValue string) (*items.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, searchValue)
	if r, ok := f.results[searchValue]; ok {
		return r, nil
	}
	return &items.SearchResult{}, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRenderer struct {
	mu      sync.Mutex
	rows    []items.Item
	window  int
	size    int
	renders int
}

func (f *fakeRenderer) Render(rows []items.Item, windowStart, windowSize int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = rows
	f.window = windowStart
	f.size = windowSize
	f.renders++
}

type fakeIntents struct {
	mu      sync.Mutex
	singles []string
	serials []string
	batches []string
}

func (f *fakeIntents) OnSingleMatch(itemCode string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singles = append(f.singles, itemCode)
}

func (f *fakeIntents) OnSerialMatch(itemCode, serialNo string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serials = append(f.serials, itemCode+"/"+serialNo)
}

func (f *fakeIntents) OnBatchMatch(itemCode, batchNo string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, itemCode+"/"+batchNo)
}

func newBrowser(src *fakeSource, view *fakeRenderer, in *fakeIntents, debounce time.Duration) *Browser {
	return New(logger.New("dev"), src, view, in, "Retail", 2, debounce)
}

func oneItem(code string) *items.SearchResult {
	return &items.SearchResult{Items: []items.Item{{ItemCode: code, ItemName: code}}}
}

func TestDebounceOnlyLastSearchExecutes(t *testing.T) {
	src := &fakeSource{results: map[string]*items.SearchResult{}}
	view := &fakeRenderer{}
	in := &fakeIntents{}
	b := newBrowser(src, view, in, 50*time.Millisecond)

	ctx := context.Background()
	for _, term := range []string{"п", "пе", "пер", "перч", "перча"} {
		b.Search(ctx, term, DefaultGroup)
	}
	time.Sleep(120 * time.Millisecond)

	require.Equal(t, 1, src.callCount())
	assert.Equal(t, "перча", src.calls[0])
}

func TestMemoizedSearchSkipsRemote(t *testing.T) {
	src := &fakeSource{results: map[string]*items.SearchResult{}}
	view := &fakeRenderer{}
	in := &fakeIntents{}
	b := newBrowser(src, view, in, time.Millisecond)

	ctx := context.Background()
	b.SearchNow(ctx, "abc", DefaultGroup)
	b.SearchNow(ctx, "abc", DefaultGroup)
	assert.Equal(t, 1, src.callCount())

	// сброс каталога инвалидирует кеш
	b.ResetCatalog("")
	b.SearchNow(ctx, "abc", DefaultGroup)
	assert.Equal(t, 2, src.callCount())
}

func TestFlushRunsPendingSearchImmediately(t *testing.T) {
	src := &fakeSource{results: map[string]*items.SearchResult{}}
	view := &fakeRenderer{}
	in := &fakeIntents{}
	b := newBrowser(src, view, in, time.Hour)

	b.Search(context.Background(), "xyz", DefaultGroup)
	require.Equal(t, 0, src.callCount())
	b.Flush()
	assert.Equal(t, 1, src.callCount())
}

func TestSerialMatchEmitsIntent(t *testing.T) {
	src := &fakeSource{results: map[string]*items.SearchResult{}}
	r := oneItem("ITM-001")
	r.SerialNo = "SN-42"
	src.results["SN-42"] = r

	view := &fakeRenderer{}
	in := &fakeIntents{}
	b := newBrowser(src, view, in, time.Millisecond)

	b.SearchNow(context.Background(), "SN-42", DefaultGroup)
	require.Len(t, in.serials, 1)
	assert.Equal(t, "ITM-001/SN-42", in.serials[0])
	assert.Zero(t, view.renders) // сетка не рисуется
}

func TestBatchMatchEmitsIntent(t *testing.T) {
	src := &fakeSource{results: map[string]*items.SearchResult{}}
	r := oneItem("ITM-002")
	r.BatchNo = "B-7"
	src.results["B-7"] = r

	view := &fakeRenderer{}
	in := &fakeIntents{}
	b := newBrowser(src, view, in, time.Millisecond)

	b.SearchNow(context.Background(), "B-7", DefaultGroup)
	require.Len(t, in.batches, 1)
	assert.Equal(t, "ITM-002/B-7", in.batches[0])
}

func TestSingleTermMatchIncrementsQty(t *testing.T) {
	src := &fakeSource{results: map[string]*items.SearchResult{}}
	src.results["перчатки"] = oneItem("ITM-003")

	view := &fakeRenderer{}
	in := &fakeIntents{}
	b := newBrowser(src, view, in, time.Millisecond)

	b.SearchNow(context.Background(), "перчатки", DefaultGroup)
	require.Len(t, in.singles, 1)
	assert.Equal(t, "ITM-003", in.singles[0])
}

func TestMultiResultRendersGrid(t *testing.T) {
	src := &fakeSource{results: map[string]*items.SearchResult{}}
	src.results["крем"] = &items.SearchResult{Items: []items.Item{
		{ItemCode: "A"}, {ItemCode: "B"}, {ItemCode: "C"},
	}}

	view := &fakeRenderer{}
	in := &fakeIntents{}
	b := newBrowser(src, view, in, time.Millisecond)

	b.SearchNow(context.Background(), "крем", DefaultGroup)
	require.Equal(t, 1, view.renders)
	assert.Len(t, view.rows, 3)
	assert.Equal(t, 0, view.window)
	assert.Empty(t, in.singles)

	// оконная прокрутка: окно 2, потом назад
	b.NextWindow()
	assert.Equal(t, 2, view.window)
	b.PrevWindow()
	assert.Equal(t, 0, view.window)
}

func TestSelectItemOnlyEmitsIntent(t *testing.T) {
	src := &fakeSource{results: map[string]*items.SearchResult{}}
	view := &fakeRenderer{}
	in := &fakeIntents{}
	b := newBrowser(src, view, in, time.Millisecond)

	b.SelectItem("ITM-010")
	require.Len(t, in.singles, 1)
	assert.Equal(t, "ITM-010", in.singles[0])
	assert.Zero(t, src.callCount())
}
