package catalog

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the delay between the last file change and the refresh it triggers.
const DefaultDebounce = 300 * time.Millisecond

// Catalog holds the latest discovered snapshot. Refresh replaces the whole snapshot,
// there is no incremental patching. Thread-safe.
type Catalog struct {
	root string
	dirs []string

	mu       sync.RWMutex
	suites   []TestSuite
	loaded   bool
	onChange func([]TestSuite)
}

// New creates a catalog over the given tests root and category directories.
// nothing is read until the first Suites or Refresh call.
func New(root string, dirs []string) *Catalog {
	return &Catalog{root: root, dirs: slices.Clone(dirs)}
}

// Root returns the tests root directory.
func (c *Catalog) Root() string {
	return c.root
}

// OnChange registers a callback invoked with the new snapshot after a watcher-triggered refresh.
func (c *Catalog) OnChange(fn func([]TestSuite)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Refresh re-discovers all suites and replaces the snapshot.
func (c *Catalog) Refresh() []TestSuite {
	suites := Discover(c.root, c.dirs)
	for _, id := range Duplicates(suites) {
		log.Printf("[WARN] duplicate test id %s", id)
	}

	c.mu.Lock()
	c.suites = suites
	c.loaded = true
	c.mu.Unlock()
	return suites
}

// Suites returns the current snapshot, discovering it on first use.
func (c *Catalog) Suites() []TestSuite {
	c.mu.RLock()
	suites, loaded := c.suites, c.loaded
	c.mu.RUnlock()
	if !loaded {
		return c.Refresh()
	}
	return suites
}

// Lookup finds a case by its composite id in the current snapshot.
func (c *Catalog) Lookup(compositeID string) (TestSuite, TestCase, bool) {
	for _, s := range c.Suites() {
		for _, tc := range s.TestCases {
			if s.CompositeID(tc) == compositeID {
				return s, tc, true
			}
		}
	}
	return TestSuite{}, TestCase{}, false
}

// Watch refreshes the snapshot when test files change, until ctx is canceled.
// the tests root is watched as well, so category directories created later are picked up.
func (c *Catalog) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.root); err != nil {
		return fmt.Errorf("watch %s: %w", c.root, err)
	}
	for _, dir := range c.dirs {
		c.addDir(watcher, filepath.Join(c.root, dir))
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) && c.isCategoryDir(ev.Name) {
				c.addDir(watcher, ev.Name)
				timer.Reset(debounce)
				continue
			}
			if c.relevant(ev) {
				timer.Reset(debounce)
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[WARN] catalog watcher: %v", werr)
		case <-timer.C:
			suites := c.Refresh()
			log.Printf("[INFO] catalog refreshed, %d suites, %d cases", len(suites), CountCases(suites))
			c.mu.RLock()
			fn := c.onChange
			c.mu.RUnlock()
			if fn != nil {
				fn(suites)
			}
		}
	}
}

func (c *Catalog) addDir(w *fsnotify.Watcher, dir string) {
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return
	}
	if err := w.Add(dir); err != nil {
		log.Printf("[WARN] watch %s: %v", dir, err)
	}
}

func (c *Catalog) isCategoryDir(path string) bool {
	if filepath.Dir(path) != filepath.Clean(c.root) {
		return false
	}
	return slices.Contains(c.dirs, filepath.Base(path))
}

// relevant reports whether a filesystem event can change the snapshot.
func (c *Catalog) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if c.isCategoryDir(ev.Name) {
		return true // category dir removed or renamed
	}
	return strings.HasSuffix(ev.Name, TestFileSuffix)
}
