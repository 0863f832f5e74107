package lock_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mistifyio/kelpie/pkg/lock"
	"github.com/pborman/uuid"
	"github.com/stretchr/testify/suite"
)

type LockTestSuite struct {
	suite.Suite
	Keyed *lock.Keyed
}

func (s *LockTestSuite) SetupTest() {
	s.Keyed = lock.NewKeyed()
}

func TestLockTestSuite(t *testing.T) {
	suite.Run(t, new(LockTestSuite))
}

func testMsgFunc(prefix string) func(...interface{}) string {
	return func(val ...interface{}) string {
		if len(val) == 0 {
			return prefix
		}
		msgPrefix := prefix + " : "
		if len(val) == 1 {
			return msgPrefix + val[0].(string)
		}
		return msgPrefix + fmt.Sprintf(val[0].(string), val[1:]...)
	}
}

func (s *LockTestSuite) TestAcquire() {
	lockKey := uuid.New()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	timeout, cancelTimeout := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelTimeout()

	tests := []struct {
		description string
		ctx         context.Context
		key         string
		blocking    bool
		expectedErr error
	}{
		{"empty key", context.Background(), "", false, nil},
		{"new key", context.Background(), lockKey, false, nil},
		{"lock already held, nonblocking", context.Background(), lockKey, false, lock.ErrLockHeld},
		{"lock already held, blocking, timeout", timeout, lockKey, true, context.DeadlineExceeded},
		{"cancelled context", cancelled, uuid.New(), true, context.Canceled},
		{"other key", context.Background(), uuid.New(), true, nil},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		l, err := s.Keyed.Acquire(test.ctx, test.key, test.blocking)
		if test.expectedErr != nil {
			s.Equal(test.expectedErr, err, msg("should fail"))
			s.Nil(l, msg("should not return lock"))
		} else {
			s.NoError(err, msg("should acquire lock"))
			s.NotNil(l, msg("should return lock"))
			s.Equal(test.key, l.Key(), msg("should hold requested key"))
		}
	}

	s.Equal(3, s.Keyed.Len(), "failed acquires should not leave keys behind")
}

func (s *LockTestSuite) TestRelease() {
	l, _ := s.Keyed.Acquire(context.Background(), uuid.New(), false)

	s.NoError(l.Release(), "held lock should succeed")
	s.Equal(lock.ErrLockNotHeld, l.Release(), "not held lock should fail")
	s.Equal(0, s.Keyed.Len(), "released key should be dropped")
}

func (s *LockTestSuite) TestBlockingHandoff() {
	key := uuid.New()
	l, _ := s.Keyed.Acquire(context.Background(), key, false)

	acquired := make(chan *lock.Lock)
	go func() {
		l2, err := s.Keyed.Acquire(context.Background(), key, true)
		s.NoError(err)
		acquired <- l2
	}()

	select {
	case <-acquired:
		s.Fail("should block while held")
	case <-time.After(20 * time.Millisecond):
	}

	s.NoError(l.Release())
	select {
	case l2 := <-acquired:
		s.NoError(l2.Release())
	case <-time.After(time.Second):
		s.Fail("should acquire after release")
	}
}

func (s *LockTestSuite) TestSerialization() {
	key := uuid.New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := s.Keyed.Acquire(context.Background(), key, true)
			if !s.NoError(err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			s.NoError(l.Release())
		}()
	}
	wg.Wait()
	s.Equal(1, maxSeen, "only one holder at a time")
	s.Equal(0, s.Keyed.Len())
}
