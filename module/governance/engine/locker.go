package engine

import (
	"context"
	"sync"
	"time"

	"GProject/tools"
	"GProject/tools/errs"

	"github.com/redis/go-redis/v9"
)

// Locker 单审批互斥范围。投票、离群重算都要先进同一把锁，
// 保证 插票→计票→翻转状态 这段路径串行。跨审批不共享锁。
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// —— 进程内实现（单节点部署与测试） ——

type localLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func NewLocalLocker() Locker {
	return &localLocker{locks: make(map[string]*entry)}
}

func (l *localLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}()

	return fn(ctx)
}

// —— Redis 实现（多副本部署） ——

// 只有持有者能释放：value 比对后再删
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

type redisLocker struct {
	rdb        *redis.Client
	ttl        time.Duration
	acquireMax time.Duration
	retryEvery time.Duration
}

func NewRedisLocker(rdb *redis.Client) Locker {
	return &redisLocker{
		rdb:        rdb,
		ttl:        10 * time.Second,
		acquireMax: 5 * time.Second,
		retryEvery: 20 * time.Millisecond,
	}
}

func (l *redisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token := tools.RandMsgID()
	deadline := time.Now().Add(l.acquireMax)

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return errs.WrapMsg(err, "acquire lock", "key", key)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return errs.New("lock acquire timeout", "key", key).Wrap()
		}
		timer := time.NewTimer(l.retryEvery)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	defer func() {
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(relCtx, l.rdb, []string{key}, token).Err()
	}()

	return fn(ctx)
}
