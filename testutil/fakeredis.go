package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// FakeRedis is an in-process stand-in for the commands in cache.RedisClient.
type FakeRedis struct {
	mu     sync.Mutex
	zsets  map[string]map[string]float64
	hashes map[string]map[string]string
	lists  map[string][]string

	// Fail makes every command return this error when set.
	Fail error
}

// NewFakeRedis returns an empty fake.
func NewFakeRedis() *FakeRedis {
	return &FakeRedis{
		zsets:  make(map[string]map[string]float64),
		hashes: make(map[string]map[string]string),
		lists:  make(map[string][]string),
	}
}

func (f *FakeRedis) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		cmd.SetErr(f.Fail)
		return cmd
	}
	if f.zsets[key] == nil {
		f.zsets[key] = make(map[string]float64)
	}
	for _, m := range members {
		f.zsets[key][fmt.Sprint(m.Member)] = m.Score
	}
	cmd.SetVal(int64(len(members)))
	return cmd
}

func (f *FakeRedis) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd {
	cmd := redis.NewZSliceCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		cmd.SetErr(f.Fail)
		return cmd
	}
	var zs []redis.Z
	for member, score := range f.zsets[key] {
		zs = append(zs, redis.Z{Score: score, Member: member})
	}
	sort.Slice(zs, func(i, j int) bool {
		if zs[i].Score == zs[j].Score {
			return fmt.Sprint(zs[i].Member) < fmt.Sprint(zs[j].Member)
		}
		return zs[i].Score > zs[j].Score
	})
	if start >= int64(len(zs)) {
		cmd.SetVal(nil)
		return cmd
	}
	if stop < 0 || stop >= int64(len(zs)) {
		stop = int64(len(zs)) - 1
	}
	cmd.SetVal(zs[start : stop+1])
	return cmd
}

func (f *FakeRedis) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		cmd.SetErr(f.Fail)
		return cmd
	}
	if f.hashes[key] == nil {
		f.hashes[key] = make(map[string]string)
	}
	for i := 0; i+1 < len(values); i += 2 {
		f.hashes[key][fmt.Sprint(values[i])] = fmt.Sprint(values[i+1])
	}
	cmd.SetVal(int64(len(values) / 2))
	return cmd
}

func (f *FakeRedis) HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd {
	cmd := redis.NewSliceCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		cmd.SetErr(f.Fail)
		return cmd
	}
	out := make([]interface{}, len(fields))
	for i, field := range fields {
		if v, ok := f.hashes[key][field]; ok {
			out[i] = v
		}
	}
	cmd.SetVal(out)
	return cmd
}

func (f *FakeRedis) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		cmd.SetErr(f.Fail)
		return cmd
	}
	for _, v := range values {
		var s string
		switch b := v.(type) {
		case []byte:
			s = string(b)
		default:
			s = fmt.Sprint(v)
		}
		f.lists[key] = append([]string{s}, f.lists[key]...)
	}
	cmd.SetVal(int64(len(f.lists[key])))
	return cmd
}

func (f *FakeRedis) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		cmd.SetErr(f.Fail)
		return cmd
	}
	list := f.lists[key]
	if stop < 0 || stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	if start < int64(len(list)) && start <= stop {
		f.lists[key] = list[start : stop+1]
	}
	cmd.SetVal("OK")
	return cmd
}

// List returns a copy of a list, head first.
func (f *FakeRedis) List(key string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lists[key]...)
}
