package monitor_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/intake/internal/fsutil"
	"github.com/mattjoyce/intake/internal/monitor"
	"github.com/mattjoyce/intake/internal/monitor/mocks"
	"github.com/mattjoyce/intake/internal/outcome"
	"github.com/mattjoyce/intake/internal/source"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock { return &fakeClock{t: time.Now()} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type lockedProbe struct{ locked bool }

func (p lockedProbe) Locked(string) bool { return p.locked }

// newTestSlogger captures JSON logs for assertions.
func newTestSlogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func defaultOptions() monitor.Options {
	return monitor.Options{
		Name:              "test",
		StableTime:        time.Second,
		Archiving:         true,
		MaxItemsPerCycle:  1000,
		MaxProcessingTime: 5 * time.Minute,
		MonitorTimeout:    time.Hour,
		LockTimeout:       20 * time.Minute,
	}
}

type harness struct {
	dir   string
	clock *fakeClock
	task  *monitor.Task[string]
	logs  *bytes.Buffer
}

func newHarness(t *testing.T, p monitor.Processor, mutate ...func(*monitor.Options)) *harness {
	t.Helper()
	return newHarnessIn(t, t.TempDir(), p, mutate...)
}

func newHarnessIn(t *testing.T, dir string, p monitor.Processor, mutate ...func(*monitor.Options)) *harness {
	t.Helper()
	opts := defaultOptions()
	for _, m := range mutate {
		m(&opts)
	}
	clock := newClock()
	logger, logs := newTestSlogger()
	task, err := monitor.New[string](opts, dir, source.NewLocal(dir, nil, source.NoLocks{}), p,
		monitor.WithClock(clock.Now),
		monitor.WithLogger(logger),
		monitor.WithLockProbe(lockedProbe{}),
		monitor.WithRetry(fsutil.Policy{Attempts: 1, Backoff: time.Millisecond}),
	)
	require.NoError(t, err)
	return &harness{dir: dir, clock: clock, task: task, logs: logs}
}

func (h *harness) write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func (h *harness) stage(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(h.task.Dirs().Process, name)
	require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
	return p
}

func (h *harness) run() { h.task.Run(context.Background()) }

func files(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out
}

// treeFiles lists every file below root, relative to root.
func treeFiles(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(root, p)
			out = append(out, rel)
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

type fakeProcessor struct {
	mu       sync.Mutex
	fail     map[string]bool
	panicOn  string
	stopNext bool
	seen     []string
}

func (p *fakeProcessor) Validate() error { return nil }

func (p *fakeProcessor) BeforeProcess(_ context.Context, item *monitor.Item) {
	item.Scratch["before"] = true
}

func (p *fakeProcessor) Process(_ context.Context, item *monitor.Item) error {
	p.mu.Lock()
	p.seen = append(p.seen, item.Name)
	p.mu.Unlock()
	if item.Name == p.panicOn {
		panic("kaboom")
	}
	if item.Scratch["before"] != true {
		return errors.New("pre-hook did not run")
	}
	if p.fail[item.Name] {
		return fmt.Errorf("rejected %s", item.Name)
	}
	return nil
}

func (p *fakeProcessor) OnSuccess(context.Context, *monitor.Item, time.Time) bool { return !p.stopNext }

func (p *fakeProcessor) OnError(context.Context, *monitor.Item, time.Time, error) bool { return true }

func TestEndToEndCycle(t *testing.T) {
	proc := &fakeProcessor{fail: map[string]bool{"c.xml": true}}
	h := newHarness(t, proc)
	for _, n := range []string{"a.xml", "b.xml", "c.xml"} {
		h.write(t, n, "payload "+n)
	}

	h.run()
	assert.ElementsMatch(t, []string{"a.xml", "b.xml", "c.xml"}, files(t, h.dir))
	assert.Empty(t, proc.seen)
	assert.Len(t, h.task.Snapshot(), 3)

	h.clock.Advance(1500 * time.Millisecond)
	h.run()
	h.run()

	assert.Empty(t, files(t, h.dir))
	assert.Empty(t, files(t, h.task.Dirs().Process))
	assert.Empty(t, h.task.Snapshot())
	assert.ElementsMatch(t, []string{"a.xml", "b.xml", "c.xml"}, proc.seen)

	day := h.clock.Now().Format("2006-01-02")
	assert.ElementsMatch(t, []string{filepath.Join(day, "a.xml"), filepath.Join(day, "b.xml")}, treeFiles(t, h.task.Dirs().Archive))
	assert.ElementsMatch(t, []string{filepath.Join(day, "c.xml"), filepath.Join(day, "c.xml.errorlog")}, treeFiles(t, h.task.Dirs().Error))

	diag, err := os.ReadFile(filepath.Join(h.task.Dirs().Error, day, "c.xml.errorlog"))
	require.NoError(t, err)
	assert.Contains(t, string(diag), "rejected c.xml")
}

func TestNotStableAtExactThreshold(t *testing.T) {
	proc := &fakeProcessor{}
	h := newHarness(t, proc)
	h.write(t, "a.xml", "x")

	h.run()
	h.clock.Advance(time.Second)
	h.run()
	assert.Equal(t, []string{"a.xml"}, files(t, h.dir))

	h.clock.Advance(time.Millisecond)
	h.run()
	assert.Empty(t, files(t, h.dir))
	assert.Equal(t, []string{"a.xml"}, proc.seen)
}

func TestChangingItemRestartsSettleClock(t *testing.T) {
	proc := &fakeProcessor{}
	h := newHarness(t, proc)
	p := h.write(t, "grow.csv", "1")

	h.run()
	h.clock.Advance(800 * time.Millisecond)
	require.NoError(t, os.WriteFile(p, []byte("12"), 0o644))
	h.run()

	h.clock.Advance(800 * time.Millisecond)
	h.run()
	assert.Equal(t, []string{"grow.csv"}, files(t, h.dir), "quiet for 800ms only")

	h.clock.Advance(300 * time.Millisecond)
	h.run()
	assert.Empty(t, files(t, h.dir))
}

func TestPromotedItemIsNotRedetected(t *testing.T) {
	proc := &fakeProcessor{}
	h := newHarness(t, proc)
	h.write(t, "a.xml", "x")

	h.run()
	h.clock.Advance(2 * time.Second)
	h.run()
	h.run()

	assert.Empty(t, h.task.Snapshot())
	assert.Equal(t, []string{"a.xml"}, proc.seen)
	assert.Equal(t, 0, h.task.Status().LastCycle.Detected)
}

func TestVanishedItemIsDropped(t *testing.T) {
	h := newHarness(t, &fakeProcessor{})
	p := h.write(t, "a.xml", "x")

	h.run()
	require.Len(t, h.task.Snapshot(), 1)

	require.NoError(t, os.Remove(p))
	h.run()
	assert.Empty(t, h.task.Snapshot())
	assert.Equal(t, 1, h.task.Status().LastCycle.Vanished)
	assert.Contains(t, h.logs.String(), "Item vanished before becoming stable")
}

func TestMonitorTimeoutRoutesToError(t *testing.T) {
	proc := &fakeProcessor{}
	h := newHarness(t, proc)
	p := h.write(t, "slow.dat", "1")

	h.run()
	h.clock.Advance(time.Hour + time.Minute)
	require.NoError(t, os.WriteFile(p, []byte("12"), 0o644))
	h.run()

	assert.Empty(t, files(t, h.dir))
	assert.Empty(t, h.task.Snapshot())
	assert.Empty(t, proc.seen)

	day := h.clock.Now().Format("2006-01-02")
	diag, err := os.ReadFile(filepath.Join(h.task.Dirs().Error, day, "slow.dat.errorlog"))
	require.NoError(t, err)
	assert.Contains(t, string(diag), "without becoming stable")
	assert.Equal(t, 1, h.task.Status().LastCycle.TimedOut)
}

func TestDetectBudgetTakesOldestFirst(t *testing.T) {
	h := newHarness(t, &fakeProcessor{}, func(o *monitor.Options) { o.MaxItemsPerCycle = 2 })
	now := time.Now()
	for i, n := range []string{"e", "d", "c", "b", "a"} {
		p := h.write(t, n, n)
		mt := now.Add(-time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(p, mt, mt))
	}

	h.run()
	var names []string
	for _, it := range h.task.Snapshot() {
		names = append(names, it.Name)
	}
	assert.Equal(t, []string{"a", "b"}, names)

	h.run()
	assert.Len(t, h.task.Snapshot(), 4)
}

func TestLockSentinelBlocksProcessing(t *testing.T) {
	ctrl := gomock.NewController(t)
	proc := mocks.NewMockProcessor(ctrl)
	proc.EXPECT().Validate().Return(nil)

	h := newHarness(t, proc)
	item := h.stage(t, "held.xml")
	lock := item + ".lock"
	require.NoError(t, os.WriteFile(lock, nil, 0o644))

	h.run()
	assert.FileExists(t, item)
	assert.FileExists(t, lock)

	require.NoError(t, os.Remove(lock))
	gomock.InOrder(
		proc.EXPECT().BeforeProcess(gomock.Any(), gomock.Any()),
		proc.EXPECT().Process(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, it *monitor.Item) error {
			assert.Equal(t, "held.xml", it.Name)
			assert.FileExists(t, it.Path+".lock")
			return nil
		}),
		proc.EXPECT().OnSuccess(gomock.Any(), gomock.Any(), gomock.Any()).Return(true),
	)

	h.run()
	assert.NoFileExists(t, item)
	assert.NoFileExists(t, lock)
	day := h.clock.Now().Format("2006-01-02")
	assert.FileExists(t, filepath.Join(h.task.Dirs().Archive, day, "held.xml"))
}

func TestFailureHookSeesError(t *testing.T) {
	ctrl := gomock.NewController(t)
	proc := mocks.NewMockProcessor(ctrl)
	proc.EXPECT().Validate().Return(nil)

	h := newHarness(t, proc)
	item := h.stage(t, "bad.xml")

	boom := errors.New("schema mismatch")
	proc.EXPECT().BeforeProcess(gomock.Any(), gomock.Any())
	proc.EXPECT().Process(gomock.Any(), gomock.Any()).Return(boom)
	proc.EXPECT().OnError(gomock.Any(), gomock.Any(), gomock.Any(), boom).Return(true)

	h.run()
	assert.NoFileExists(t, item)
	assert.NoFileExists(t, item+".lock")
	assert.Equal(t, 1, h.task.Status().LastCycle.Failed)
}

func TestStopHookEndsCycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	proc := mocks.NewMockProcessor(ctrl)
	proc.EXPECT().Validate().Return(nil)

	h := newHarness(t, proc)
	h.stage(t, "one.xml")
	h.stage(t, "two.xml")

	proc.EXPECT().BeforeProcess(gomock.Any(), gomock.Any()).Times(2)
	proc.EXPECT().Process(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	proc.EXPECT().OnSuccess(gomock.Any(), gomock.Any(), gomock.Any()).Return(false).Times(2)

	h.run()
	assert.Len(t, files(t, h.task.Dirs().Process), 1)
	h.run()
	assert.Empty(t, files(t, h.task.Dirs().Process))
}

func TestExpiredSentinelOnFreeItemRoutesToError(t *testing.T) {
	ctrl := gomock.NewController(t)
	proc := mocks.NewMockProcessor(ctrl)
	proc.EXPECT().Validate().Return(nil)

	h := newHarness(t, proc)
	item := h.stage(t, "stuck.xml")
	lock := item + ".lock"
	require.NoError(t, os.WriteFile(lock, nil, 0o644))

	h.clock.Advance(21 * time.Minute)
	h.run()

	assert.NoFileExists(t, item)
	assert.NoFileExists(t, lock)
	day := h.clock.Now().Format("2006-01-02")
	diag, err := os.ReadFile(filepath.Join(h.task.Dirs().Error, day, "stuck.xml.errorlog"))
	require.NoError(t, err)
	assert.Contains(t, string(diag), "older than the lock timeout")
	assert.Equal(t, 1, h.task.Status().LastCycle.Expired)
}

func TestExpiredSentinelOnLockedItemIsLeft(t *testing.T) {
	ctrl := gomock.NewController(t)
	proc := mocks.NewMockProcessor(ctrl)
	proc.EXPECT().Validate().Return(nil)

	dir := t.TempDir()
	clock := newClock()
	task, err := monitor.New[string](defaultOptions(), dir, source.NewLocal(dir, nil, source.NoLocks{}), proc,
		monitor.WithClock(clock.Now),
		monitor.WithLockProbe(lockedProbe{locked: true}),
		monitor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	item := filepath.Join(task.Dirs().Process, "busy.xml")
	require.NoError(t, os.WriteFile(item, nil, 0o644))
	require.NoError(t, os.WriteFile(item+".lock", nil, 0o644))

	clock.Advance(time.Hour)
	task.Run(context.Background())
	assert.FileExists(t, item)
	assert.FileExists(t, item+".lock")
}

func TestPanicIsCapturedWithStack(t *testing.T) {
	proc := &fakeProcessor{panicOn: "crash.xml"}
	h := newHarness(t, proc)
	h.stage(t, "crash.xml")

	h.run()
	day := h.clock.Now().Format("2006-01-02")
	diag, err := os.ReadFile(filepath.Join(h.task.Dirs().Error, day, "crash.xml.errorlog"))
	require.NoError(t, err)
	assert.Contains(t, string(diag), "processor panic: kaboom")
	assert.Contains(t, string(diag), "goroutine")
}

func TestProcessingBudgetStopsCycle(t *testing.T) {
	proc := &slowProcessor{step: 2 * time.Minute}
	h := newHarness(t, proc, func(o *monitor.Options) { o.MaxProcessingTime = time.Minute })
	proc.clock = h.clock
	h.stage(t, "a")
	h.stage(t, "b")

	h.run()
	assert.Len(t, files(t, h.task.Dirs().Process), 1)
}

// slowProcessor advances the fake clock by step for every item.
type slowProcessor struct {
	clock *fakeClock
	step  time.Duration
}

func (p *slowProcessor) Validate() error { return nil }

func (p *slowProcessor) BeforeProcess(context.Context, *monitor.Item) {}

func (p *slowProcessor) Process(context.Context, *monitor.Item) error {
	p.clock.Advance(p.step)
	return nil
}

func (p *slowProcessor) OnSuccess(context.Context, *monitor.Item, time.Time) bool { return true }

func (p *slowProcessor) OnError(context.Context, *monitor.Item, time.Time, error) bool { return true }

func TestRecoveryReturnsItemsAndDropsSentinels(t *testing.T) {
	dir := t.TempDir()
	process := filepath.Join(dir, ".process")
	require.NoError(t, os.MkdirAll(process, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(process, "left.xml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(process, "left.xml.lock"), nil, 0o644))

	newHarnessIn(t, dir, &fakeProcessor{})

	assert.Empty(t, files(t, process))
	assert.Equal(t, []string{"left.xml"}, files(t, dir))
}

func TestRecoveryPrefixesNameTakenAtSource(t *testing.T) {
	dir := t.TempDir()
	process := filepath.Join(dir, ".process")
	require.NoError(t, os.MkdirAll(process, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(process, "a.xml"), []byte("left"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.xml"), []byte("fresh"), 0o644))

	proc := &fakeProcessor{}
	h := newHarnessIn(t, dir, proc)

	assert.Empty(t, files(t, process))
	got := files(t, dir)
	require.Len(t, got, 2)
	assert.Contains(t, got, "a.xml")
	var returned string
	for _, n := range got {
		if n != "a.xml" {
			returned = n
		}
	}
	assert.True(t, strings.HasSuffix(returned, "_a.xml"), returned)
	data, err := os.ReadFile(filepath.Join(dir, returned))
	require.NoError(t, err)
	assert.Equal(t, "left", string(data))

	// Both go through detect and stability again.
	h.run()
	assert.Empty(t, proc.seen)

	h.clock.Advance(1500 * time.Millisecond)
	h.run()
	h.run()
	assert.ElementsMatch(t, []string{"a.xml", returned}, proc.seen)
}

func TestRecoveryRoutesPartialDownloadToError(t *testing.T) {
	dir := t.TempDir()
	process := filepath.Join(dir, ".process")
	require.NoError(t, os.MkdirAll(process, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(process, ".a.xml.part"), []byte("half"), 0o644))

	proc := &fakeProcessor{}
	h := newHarnessIn(t, dir, proc)

	assert.Empty(t, files(t, process))
	assert.Empty(t, files(t, dir))
	day := h.clock.Now().Format("2006-01-02")
	assert.ElementsMatch(t, []string{filepath.Join(day, "a.xml"), filepath.Join(day, "a.xml.errorlog")}, treeFiles(t, h.task.Dirs().Error))

	data, err := os.ReadFile(filepath.Join(h.task.Dirs().Error, day, "a.xml"))
	require.NoError(t, err)
	assert.Equal(t, "half", string(data))
	diag, err := os.ReadFile(filepath.Join(h.task.Dirs().Error, day, "a.xml.errorlog"))
	require.NoError(t, err)
	assert.Contains(t, string(diag), "interrupted")

	h.run()
	assert.Empty(t, proc.seen)
}

func TestCycleRecreatesRemovedWorkingAreas(t *testing.T) {
	proc := &fakeProcessor{}
	h := newHarness(t, proc)
	dirs := h.task.Dirs()
	for _, d := range []string{dirs.Process, dirs.Archive, dirs.Error} {
		require.NoError(t, os.Remove(d))
	}
	h.write(t, "a.xml", "payload")

	h.run()
	h.clock.Advance(1500 * time.Millisecond)
	h.run()
	h.run()

	assert.Equal(t, []string{"a.xml"}, proc.seen)
	assert.Empty(t, files(t, h.dir))
	day := h.clock.Now().Format("2006-01-02")
	assert.Equal(t, []string{filepath.Join(day, "a.xml")}, treeFiles(t, dirs.Archive))
	assert.False(t, h.task.Status().LastCycle.Aborted)
}

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	dir := t.TempDir()
	adapter := source.NewLocal(dir, nil, source.NoLocks{})

	opts := defaultOptions()
	opts.StableTime = 10 * time.Millisecond
	_, err := monitor.New[string](opts, dir, adapter, &fakeProcessor{})
	require.ErrorIs(t, err, monitor.ErrInvalidOptions)

	ctrl := gomock.NewController(t)
	proc := mocks.NewMockProcessor(ctrl)
	proc.EXPECT().Validate().Return(errors.New("no command"))
	_, err = monitor.New[string](defaultOptions(), dir, adapter, proc)
	require.ErrorIs(t, err, monitor.ErrInvalidOptions)
	assert.ErrorContains(t, err, "no command")
}

func TestArchivingDisabledDeletes(t *testing.T) {
	var recs []outcome.Record
	dir := t.TempDir()
	clock := newClock()
	opts := defaultOptions()
	opts.Archiving = false
	task, err := monitor.New[string](opts, dir, source.NewLocal(dir, nil, source.NoLocks{}), &fakeProcessor{},
		monitor.WithClock(clock.Now),
		monitor.WithLockProbe(lockedProbe{}),
		monitor.WithSinks(outcome.SinkFunc(func(_ context.Context, r outcome.Record) error {
			recs = append(recs, r)
			return nil
		})),
	)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(task.Dirs().Process, "x.xml"), nil, 0o644))
	task.Run(context.Background())

	require.Len(t, recs, 1)
	assert.Equal(t, outcome.KindDeleted, recs[0].Kind)
	assert.Equal(t, "test", recs[0].Monitor)
	assert.Empty(t, treeFiles(t, task.Dirs().Archive))
}

type countingObserver struct {
	promoted []string
	cycles   int
}

func (o *countingObserver) ItemPromoted(_, item string) { o.promoted = append(o.promoted, item) }

func (o *countingObserver) CycleCompleted(string, monitor.CycleStats, int) { o.cycles++ }

func TestObserversSeePromotionsAndCycles(t *testing.T) {
	obs := &countingObserver{}
	dir := t.TempDir()
	clock := newClock()
	task, err := monitor.New[string](defaultOptions(), dir, source.NewLocal(dir, nil, source.NoLocks{}), &fakeProcessor{},
		monitor.WithClock(clock.Now),
		monitor.WithLockProbe(lockedProbe{}),
		monitor.WithObservers(obs),
	)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), nil, 0o644))

	task.Run(context.Background())
	clock.Advance(2 * time.Second)
	task.Run(context.Background())

	assert.Equal(t, 2, obs.cycles)
	assert.Equal(t, []string{"a"}, obs.promoted)
}

type memoryRemote struct {
	files      map[string]string
	connectErr error
	connects   int
}

func (m *memoryRemote) Connect(context.Context) error {
	m.connects++
	return m.connectErr
}

func (m *memoryRemote) Disconnect() error { return nil }

func (m *memoryRemote) List(_ context.Context, dir string) ([]source.RemoteEntry, error) {
	var out []source.RemoteEntry
	for p, data := range m.files {
		if path.Dir(p) == dir {
			out = append(out, source.RemoteEntry{Name: path.Base(p), Path: p, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (m *memoryRemote) Stat(_ context.Context, p string) (source.RemoteEntry, error) {
	data, ok := m.files[p]
	if !ok {
		return source.RemoteEntry{}, fs.ErrNotExist
	}
	return source.RemoteEntry{Name: path.Base(p), Path: p, Size: int64(len(data))}, nil
}

func (m *memoryRemote) Fetch(_ context.Context, p string, w io.Writer) error {
	_, err := io.Copy(w, strings.NewReader(m.files[p]))
	return err
}

func (m *memoryRemote) Delete(_ context.Context, p string) error {
	delete(m.files, p)
	return nil
}

func TestRemoteSourceCycle(t *testing.T) {
	remote := &memoryRemote{files: map[string]string{"/out/a.xml": "aaa", "/out/b.xml": "bb"}}
	proc := &fakeProcessor{}
	dir := t.TempDir()
	clock := newClock()
	task, err := monitor.New[string](defaultOptions(), dir, source.NewRemote(remote, "/out", nil, nil), proc,
		monitor.WithClock(clock.Now),
		monitor.WithLockProbe(lockedProbe{}),
	)
	require.NoError(t, err)

	task.Run(context.Background())
	assert.Len(t, task.Snapshot(), 2)

	clock.Advance(2 * time.Second)
	task.Run(context.Background())

	assert.Empty(t, remote.files)
	assert.ElementsMatch(t, []string{"a.xml", "b.xml"}, proc.seen)
	assert.Equal(t, 2, remote.connects)
	day := clock.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(task.Dirs().Archive, day, "a.xml"))
	require.NoError(t, err)
	assert.Equal(t, "aaa", string(data))
}

func TestRemoteConnectFailureAbortsCycle(t *testing.T) {
	remote := &memoryRemote{files: map[string]string{"/out/a.xml": "a"}, connectErr: errors.New("auth failed")}
	dir := t.TempDir()
	task, err := monitor.New[string](defaultOptions(), dir, source.NewRemote(remote, "/out", nil, nil), &fakeProcessor{},
		monitor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	task.Run(context.Background())
	st := task.Status()
	assert.True(t, st.LastCycle.Aborted)
	assert.Contains(t, st.LastCycle.Error, "auth failed")
	assert.Empty(t, task.Snapshot())
}

func TestRemoteRecoveryKeepsItemsInPlace(t *testing.T) {
	dir := t.TempDir()
	process := filepath.Join(dir, ".process")
	require.NoError(t, os.MkdirAll(process, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(process, "r.xml"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(process, "r.xml.lock"), nil, 0o644))

	remote := &memoryRemote{files: map[string]string{}}
	_, err := monitor.New[string](defaultOptions(), dir, source.NewRemote(remote, "/out", nil, nil), &fakeProcessor{})
	require.NoError(t, err)

	assert.Equal(t, []string{"r.xml"}, files(t, process))
}
