package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLogin struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (l *countingLogin) login(ctx context.Context) (string, error) {
	n := l.calls.Add(1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if l.err != nil {
		return "", l.err
	}
	return fmt.Sprintf("sid-%d", n), nil
}

func TestGetOrLoginLogsInOnce(t *testing.T) {
	l := &countingLogin{}
	c := NewCache(l.login)

	_, ok := c.Current()
	assert.False(t, ok)

	sid, err := c.GetOrLogin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sid-1", sid)

	sid, err = c.GetOrLogin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sid-1", sid)
	assert.EqualValues(t, 1, l.calls.Load())
}

func TestGetOrLoginConcurrentCallersShareLogin(t *testing.T) {
	l := &countingLogin{delay: 50 * time.Millisecond}
	c := NewCache(l.login)

	var wg sync.WaitGroup
	sids := make([]string, 16)
	for i := range sids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid, err := c.GetOrLogin(context.Background())
			assert.NoError(t, err)
			sids[i] = sid
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 1, l.calls.Load())
	for _, sid := range sids {
		assert.Equal(t, "sid-1", sid)
	}
}

func TestRenewReplacesStaleSID(t *testing.T) {
	l := &countingLogin{}
	c := NewCache(l.login)
	c.Store("old")

	sid, err := c.Renew(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "sid-1", sid)

	cur, _ := c.Current()
	assert.Equal(t, "sid-1", cur)
}

func TestRenewSkipsLoginWhenAlreadyReplaced(t *testing.T) {
	l := &countingLogin{}
	c := NewCache(l.login)
	c.Store("newer")

	sid, err := c.Renew(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "newer", sid)
	assert.EqualValues(t, 0, l.calls.Load())
}

func TestConcurrentRenewalsOfSameSIDLogInOnce(t *testing.T) {
	l := &countingLogin{delay: 30 * time.Millisecond}
	c := NewCache(l.login)
	c.Store("old")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Renew(context.Background(), "old")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, l.calls.Load())
}

func TestLoginErrorLeavesCacheUntouched(t *testing.T) {
	boom := errors.New("boom")
	l := &countingLogin{err: boom}
	c := NewCache(l.login)
	c.Store("old")

	_, err := c.Renew(context.Background(), "old")
	require.ErrorIs(t, err, boom)
	cur, _ := c.Current()
	assert.Equal(t, "old", cur)
}

func TestRefreshHonoursCallerContext(t *testing.T) {
	l := &countingLogin{delay: 200 * time.Millisecond}
	c := NewCache(l.login)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.GetOrLogin(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStoreIgnoresEmpty(t *testing.T) {
	c := NewCache(nil)
	c.Store("")
	_, ok := c.Current()
	assert.False(t, ok)
}

func TestEmptySIDFromLoginIsAnError(t *testing.T) {
	c := NewCache(func(context.Context) (string, error) { return "", nil })
	_, err := c.GetOrLogin(context.Background())
	assert.Error(t, err)
}
