// Package cache keeps the decoded tasks of every document in memory and
// keeps them current as documents are created, changed, deleted and renamed.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elcuervo/otx/internal/task"
)

// ErrClosed is returned when work is queued on a closed cache.
var ErrClosed = errors.New("cache closed")

type State int

const (
	Cold State = iota
	Initializing
	Warm
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Warm:
		return "Warm"
	default:
		return "Cold"
	}
}

type EventKind int

const (
	// Resolved signals that document metadata is available. Only the first
	// one triggers a bulk load.
	Resolved EventKind = iota
	Created
	Changed
	Deleted
	Renamed
)

func (k EventKind) String() string {
	return [...]string{"resolved", "created", "changed", "deleted", "renamed"}[k]
}

// Event is a change notification from the document store. OldPath is only
// set for Renamed.
type Event struct {
	Kind    EventKind
	Path    string
	OldPath string
}

const (
	SectionList    = "list"
	SectionHeading = "heading"
)

// Section is a top-level block of a document. Lines are zero based and End
// is inclusive.
type Section struct {
	Type  string
	Start int
	End   int
}

// ListItem is one list entry. Task is set for checklist items.
type ListItem struct {
	Line int
	Task bool
}

// Metadata is the structure of one document, sections and list items in
// line order.
type Metadata struct {
	Sections  []Section
	ListItems []ListItem
}

// Store is the document collection the cache indexes. Metadata describes the
// content just read from path, so line numbers always match the lines being
// decoded. A nil Metadata means the document has no structure and therefore
// no tasks.
type Store interface {
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, path string) (string, error)
	Metadata(ctx context.Context, path, content string) (*Metadata, error)
}

// Mirror receives every document change after it has been applied in memory.
type Mirror interface {
	ReplaceDocument(ctx context.Context, path string, tasks []task.Task) error
	RemoveDocument(ctx context.Context, path string) error
	RenameDocument(ctx context.Context, oldPath, newPath string) error
}

// Update is delivered to subscribers after each mutation once the cache is
// warm.
type Update struct {
	Tasks []task.Task
	State State
}

type Option func(*Cache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func WithMirror(m Mirror) Option {
	return func(c *Cache) {
		c.mirror = m
	}
}

// WithConcurrency bounds the number of documents read at once during a bulk
// load.
func WithConcurrency(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

var headerRe = regexp.MustCompile(`^#+ +(.*)`)

type job func(ctx context.Context)

type snapshot struct {
	state State
	tasks []task.Task
}

// Cache is the task index. All mutations run one at a time, in the order
// they were queued, on a single worker started by Start. Readers get the
// last published snapshot and never wait on a mutation.
type Cache struct {
	store       Store
	mirror      Mirror
	logger      *slog.Logger
	concurrency int

	codec atomic.Pointer[task.Codec]
	snap  atomic.Pointer[snapshot]

	mu       sync.Mutex
	queue    []job
	resolved bool
	closed   bool
	subs     map[int]chan Update
	nextSub  int

	wake      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	cancel    context.CancelFunc

	// owned by the worker
	docs  map[string][]task.Task
	state State
}

func New(store Store, codec task.Codec, opts ...Option) *Cache {
	c := &Cache{
		store:       store,
		logger:      slog.Default(),
		concurrency: 8,
		subs:        make(map[int]chan Update),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		docs:        make(map[string][]task.Task),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.codec.Store(&codec)
	c.snap.Store(&snapshot{state: Cold})

	return c
}

// Start launches the mutation worker. It stops when ctx is done or Close is
// called.
func (c *Cache) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		go c.run(ctx)
	})
}

func (c *Cache) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.queue = nil
		c.mu.Unlock()
		close(c.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}

		for {
			j, ok := c.pop()
			if !ok {
				break
			}
			j(ctx)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (c *Cache) enqueue(j job) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	c.queue = append(c.queue, j)

	select {
	case c.wake <- struct{}{}:
	default:
	}

	return true
}

func (c *Cache) pop() (job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return nil, false
	}

	j := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return j, true
}

// do queues fn and waits for its result. Work still queued when the worker
// stops is dropped and its callers get ErrClosed.
func (c *Cache) do(ctx context.Context, fn func(context.Context) error) error {
	res := make(chan error, 1)

	if !c.enqueue(func(ctx context.Context) { res <- fn(ctx) }) {
		return ErrClosed
	}

	select {
	case err := <-res:
		return err
	case <-c.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify queues the mutation for ev and reports whether it was accepted.
// Document events are only accepted while the cache is warm.
func (c *Cache) Notify(ev Event) bool {
	if ev.Kind == Resolved {
		c.mu.Lock()
		first := !c.resolved
		c.resolved = true
		c.mu.Unlock()

		if !first {
			return false
		}

		return c.enqueue(func(ctx context.Context) {
			if err := c.load(ctx); err != nil {
				c.logger.Error("bulk load failed", "err", err)
			}
		})
	}

	if c.State() != Warm {
		c.logger.Debug("ignoring event", "kind", ev.Kind, "path", ev.Path, "state", c.State())
		return false
	}

	c.logger.Debug("event received", "kind", ev.Kind, "path", ev.Path, "old_path", ev.OldPath)

	switch ev.Kind {
	case Created, Changed:
		return c.enqueue(func(ctx context.Context) { c.reindex(ctx, ev.Path) })
	case Deleted:
		return c.enqueue(func(ctx context.Context) { c.remove(ctx, ev.Path) })
	case Renamed:
		return c.enqueue(func(ctx context.Context) { c.rename(ctx, ev.OldPath, ev.Path) })
	}

	return false
}

// Load indexes every document and waits until the cache is warm. A warm
// cache stays warm and keeps accepting events while it reloads.
func (c *Cache) Load(ctx context.Context) error {
	return c.do(ctx, c.load)
}

// Flush waits until every mutation queued before the call has been applied.
func (c *Cache) Flush(ctx context.Context) error {
	return c.do(ctx, func(context.Context) error { return nil })
}

// Tasks returns the current snapshot ordered by path, then by position in
// the document.
func (c *Cache) Tasks() []task.Task {
	return slices.Clone(c.snap.Load().tasks)
}

func (c *Cache) State() State {
	return c.snap.Load().state
}

// Codec returns the codec used for the next mutation.
func (c *Cache) Codec() task.Codec {
	return *c.codec.Load()
}

// SetCodec replaces the codec for later mutations. Documents already indexed
// keep their tasks until they are re-indexed or Load is called.
func (c *Cache) SetCodec(codec task.Codec) {
	c.codec.Store(&codec)
}

// Subscribe returns a channel that receives the latest Update after every
// mutation. A slow reader only sees the newest update. When the cache is
// already warm the current snapshot is delivered right away.
func (c *Cache) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	if s := c.snap.Load(); s.state == Warm {
		ch <- Update{Tasks: slices.Clone(s.tasks), State: s.state}
	}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close stops the worker and closes every subscription.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// a cache that was never started must not start later
	c.startOnce.Do(func() {})
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}

	return nil
}

// publish swaps in a snapshot built from docs and, once warm, notifies
// subscribers.
func (c *Cache) publish() {
	paths := slices.Sorted(maps.Keys(c.docs))

	total := 0
	for _, p := range paths {
		total += len(c.docs[p])
	}

	tasks := make([]task.Task, 0, total)
	for _, p := range paths {
		tasks = append(tasks, c.docs[p]...)
	}

	s := &snapshot{state: c.state, tasks: tasks}
	c.snap.Store(s)

	if s.state != Warm {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.subs {
		u := Update{Tasks: slices.Clone(tasks), State: s.state}
		select {
		case ch <- u:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- u:
			default:
			}
		}
	}
}

func (c *Cache) load(ctx context.Context) error {
	start := time.Now()

	if c.state != Warm {
		c.setState(Initializing)
	}

	paths, err := c.store.List(ctx)
	if err != nil {
		c.abandonLoad()
		return fmt.Errorf("list documents: %w", err)
	}

	results := make([][]task.Task, len(paths))
	failed := make([]bool, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, p := range paths {
		g.Go(func() error {
			tasks, err := c.index(gctx, p)
			if err != nil {
				c.logger.Warn("skipping document", "path", p, "err", err)
				failed[i] = true
				return nil
			}
			results[i] = tasks
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.abandonLoad()
		return err
	}
	if err := ctx.Err(); err != nil {
		c.abandonLoad()
		return err
	}

	docs := make(map[string][]task.Task, len(paths))
	for i, p := range paths {
		switch {
		case failed[i]:
			if prev, ok := c.docs[p]; ok {
				docs[p] = prev
			}
		case len(results[i]) > 0:
			docs[p] = results[i]
		}
	}

	previous := c.docs
	c.docs = docs
	c.state = Warm
	c.publish()

	c.logger.Info("cache warm", "documents", len(paths), "tasks", len(c.snap.Load().tasks), "elapsed", time.Since(start))

	if c.mirror != nil {
		for p := range previous {
			if _, ok := docs[p]; !ok {
				c.mirrorErr(p, c.mirror.RemoveDocument(ctx, p))
			}
		}
		for _, p := range paths {
			c.mirrorErr(p, c.mirror.ReplaceDocument(ctx, p, docs[p]))
		}
	}

	return nil
}

func (c *Cache) setState(s State) {
	c.state = s
	c.snap.Store(&snapshot{state: s, tasks: c.snap.Load().tasks})
}

// abandonLoad undoes the Initializing state of a load that did not finish.
func (c *Cache) abandonLoad() {
	if c.state == Initializing {
		c.setState(Cold)
	}
}

func (c *Cache) reindex(ctx context.Context, path string) {
	tasks, err := c.index(ctx, path)
	if err != nil {
		c.logger.Warn("keeping previous tasks", "path", path, "err", err)
		return
	}

	if len(tasks) == 0 {
		delete(c.docs, path)
	} else {
		c.docs[path] = tasks
	}
	c.publish()

	if c.mirror != nil {
		c.mirrorErr(path, c.mirror.ReplaceDocument(ctx, path, tasks))
	}
}

func (c *Cache) remove(ctx context.Context, path string) {
	delete(c.docs, path)
	c.publish()

	if c.mirror != nil {
		c.mirrorErr(path, c.mirror.RemoveDocument(ctx, path))
	}
}

func (c *Cache) rename(ctx context.Context, oldPath, newPath string) {
	moved := c.docs[oldPath]
	delete(c.docs, oldPath)

	for _, t := range moved {
		c.docs[newPath] = append(c.docs[newPath], t.WithPath(newPath))
	}
	c.publish()

	if c.mirror != nil {
		c.mirrorErr(newPath, c.mirror.RenameDocument(ctx, oldPath, newPath))
	}
}

func (c *Cache) mirrorErr(path string, err error) {
	if err != nil {
		c.logger.Error("mirror update failed", "path", path, "err", err)
	}
}

// index decodes the tasks of one document. A decode error aborts the whole
// document so the caller can keep what it had.
func (c *Cache) index(ctx context.Context, path string) ([]task.Task, error) {
	content, err := c.store.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	md, err := c.store.Metadata(ctx, path, content)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	if md == nil {
		return nil, nil
	}

	lines := strings.Split(content, "\n")
	codec := c.Codec()

	var (
		lists    []Section
		headings []Section
	)
	for _, s := range md.Sections {
		switch s.Type {
		case SectionList:
			lists = append(lists, s)
		case SectionHeading:
			headings = append(headings, s)
		}
	}

	var (
		tasks        []task.Task
		current      *Section
		sectionIndex int
		listCursor   int
		headCursor   int
		header       string
	)

	for _, item := range md.ListItems {
		if !item.Task {
			continue
		}

		if current == nil || current.End < item.Line {
			current = nil
			sectionIndex = 0
			for listCursor < len(lists) && lists[listCursor].End < item.Line {
				listCursor++
			}
			if listCursor < len(lists) && lists[listCursor].Start <= item.Line {
				current = &lists[listCursor]
			}
		}

		if current == nil || item.Line >= len(lines) {
			continue
		}

		for headCursor < len(headings) && headings[headCursor].Start <= item.Line {
			header = headingText(lines, headings[headCursor].Start)
			headCursor++
		}

		t, ok, err := codec.Decode(lines[item.Line], task.Location{
			Path:            path,
			SectionStart:    current.Start,
			SectionIndex:    sectionIndex,
			PrecedingHeader: header,
		})
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", item.Line+1, err)
		}
		if !ok {
			continue
		}

		sectionIndex++
		tasks = append(tasks, t)
	}

	return tasks, nil
}

func headingText(lines []string, line int) string {
	if line < 0 || line >= len(lines) {
		return ""
	}
	m := headerRe.FindStringSubmatch(strings.TrimRight(lines[line], "\r"))
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
