package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_SuitesLoadsLazily(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "functional", "checkout.test.js"), checkoutSource)

	c := New(root, []string{"functional"})
	assert.Equal(t, root, c.Root())

	suites := c.Suites()
	require.Len(t, suites, 1)

	// snapshot is cached until refresh
	writeFile(t, filepath.Join(root, "functional", "login.test.js"), "test('TC-001: login', () => {});")
	assert.Len(t, c.Suites(), 1)
	assert.Len(t, c.Refresh(), 2)
	assert.Len(t, c.Suites(), 2)
}

func TestCatalog_Lookup(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "functional", "checkout.test.js"), checkoutSource)
	c := New(root, []string{"functional"})

	suite, tc, ok := c.Lookup("checkout-TC-011")
	require.True(t, ok)
	assert.Equal(t, "checkout", suite.ID)
	assert.Equal(t, "Checkout as guest", tc.Description)

	_, _, ok = c.Lookup("checkout-TC-999")
	assert.False(t, ok)
}

func TestCatalog_Watch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "functional", "checkout.test.js"), checkoutSource)

	c := New(root, []string{"functional", "smoke"})
	require.Len(t, c.Refresh(), 1)

	var mu sync.Mutex
	var got []TestSuite
	c.OnChange(func(s []TestSuite) {
		mu.Lock()
		defer mu.Unlock()
		got = s
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, 20*time.Millisecond) }()
	time.Sleep(100 * time.Millisecond) // let watcher register

	writeFile(t, filepath.Join(root, "functional", "login.test.js"), "test('TC-001: login', () => {});")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 3*time.Second, 20*time.Millisecond)
	assert.Len(t, c.Suites(), 2)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}

func TestCatalog_WatchMissingRoot(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "missing"), []string{"functional"})
	err := c.Watch(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch")
}
