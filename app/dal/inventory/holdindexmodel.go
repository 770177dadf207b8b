package inventory

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

const holdDueKey = "hold:due"

//go:embed hold.lua
var holdScript string

//go:embed unhold.lua
var unholdScript string

type (
	// HoldIndexModel mirrors ACTIVE reservation ids in a redis zset scored by
	// deadline. It only hints the reaper; the database stays authoritative.
	HoldIndexModel interface {
		Hold(ctx context.Context, id int64, expiresAt time.Time) error
		Unhold(ctx context.Context, ids ...int64) error
		Due(ctx context.Context, now time.Time, limit int) ([]int64, error)
	}

	defaultHoldIndexModel struct {
		redis     *redis.Redis
		holdSha   string
		unholdSha string
		mu        sync.Mutex
	}
)

// HoldError wraps status codes returned by lua scripts so callers can branch on error.Code.
type HoldError struct {
	code    string
	details []string
}

func (e *HoldError) Error() string {
	if len(e.details) == 0 {
		return fmt.Sprintf("hold index error: %s", e.code)
	}
	return fmt.Sprintf("hold index error: %s (%s)", e.code, strings.Join(e.details, ","))
}

// Code returns the machine-readable lua status code.
func (e *HoldError) Code() string {
	return e.code
}

// Is allows errors.Is to work with the same code value.
func (e *HoldError) Is(target error) bool {
	other, ok := target.(*HoldError)
	if !ok {
		return false
	}
	return e.code == other.code
}

func newHoldError(code string, details ...string) *HoldError {
	return &HoldError{
		code:    code,
		details: append([]string(nil), details...),
	}
}

func NewHoldIndexModel(r *redis.Redis) HoldIndexModel {
	return &defaultHoldIndexModel{redis: r}
}

func (m *defaultHoldIndexModel) Hold(ctx context.Context, id int64, expiresAt time.Time) error {
	args := []any{
		strconv.FormatInt(id, 10),
		expiresAt.UnixMilli(),
	}
	return m.run(ctx, &m.holdSha, holdScript, args...)
}

func (m *defaultHoldIndexModel) Unhold(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, strconv.FormatInt(id, 10))
	}
	return m.run(ctx, &m.unholdSha, unholdScript, args...)
}

func (m *defaultHoldIndexModel) run(ctx context.Context, shaRef *string, script string, args ...any) error {
	result, err := m.evalScript(ctx, shaRef, script, []string{holdDueKey}, args...)
	if err != nil {
		return err
	}
	status, details, err := decodeLuaResult(result)
	if err != nil {
		return err
	}
	if status != "OK" {
		return newHoldError(status, details...)
	}
	return nil
}

// Due returns ids whose deadline is at or before now, oldest first.
func (m *defaultHoldIndexModel) Due(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 100
	}
	pairs, err := m.redis.ZrangebyscoreWithScoresAndLimitCtx(ctx, holdDueKey, 0, now.UnixMilli(), 0, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(pairs))
	for _, p := range pairs {
		id, convErr := strconv.ParseInt(p.Key, 10, 64)
		if convErr != nil {
			logx.WithContext(ctx).Errorf("hold index: drop malformed member %q", p.Key)
			_, _ = m.redis.ZremCtx(ctx, holdDueKey, p.Key)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *defaultHoldIndexModel) evalScript(ctx context.Context, shaRef *string, script string, keys []string, args ...any) (any, error) {
	m.mu.Lock()
	sha := *shaRef
	m.mu.Unlock()

	if sha == "" {
		if err := m.loadScript(ctx, shaRef, script); err != nil {
			return nil, err
		}
		m.mu.Lock()
		sha = *shaRef
		m.mu.Unlock()
	}

	result, err := m.redis.EvalShaCtx(ctx, sha, keys, args...)
	if err != nil && strings.Contains(err.Error(), "NOSCRIPT") {
		logx.WithContext(ctx).Slowf("redis script hash lost (%s), reloading", sha)
		m.mu.Lock()
		if *shaRef == sha {
			*shaRef = ""
		}
		m.mu.Unlock()
		if loadErr := m.loadScript(ctx, shaRef, script); loadErr != nil {
			return nil, loadErr
		}
		m.mu.Lock()
		sha = *shaRef
		m.mu.Unlock()
		result, err = m.redis.EvalShaCtx(ctx, sha, keys, args...)
	}
	return result, err
}

func (m *defaultHoldIndexModel) loadScript(ctx context.Context, shaRef *string, script string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// double check in case another goroutine already loaded it.
	if *shaRef != "" {
		return nil
	}

	hash, err := m.redis.ScriptLoadCtx(ctx, script)
	if err != nil {
		return err
	}
	*shaRef = hash
	return nil
}

func decodeLuaResult(result any) (string, []string, error) {
	switch v := result.(type) {
	case nil:
		return "", nil, errors.New("lua returned nil result")
	case string:
		return v, nil, nil
	case []byte:
		return string(v), nil, nil
	case []interface{}:
		if len(v) == 0 {
			return "", nil, errors.New("lua returned empty array")
		}
		status := fmt.Sprint(v[0])
		details := make([]string, 0, len(v)-1)
		for _, val := range v[1:] {
			details = append(details, fmt.Sprint(val))
		}
		return status, details, nil
	default:
		return fmt.Sprint(v), nil, nil
	}
}
