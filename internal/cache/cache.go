// Package cache はTTL付きのプロセス内キー/バリューストアを提供する。
// 外部APIに依存する計算結果をユーザー・期間スコープのキーで保持し、
// 上流への呼び出し回数を抑える。
package cache

import (
	"context"
	"sync"
	"time"
)

// Purpose はキャッシュエントリの用途を表す名前空間。
type Purpose string

const (
	// PurposeSSMDaily は当日のオンライン作業時間。
	PurposeSSMDaily Purpose = "ssm_daily"
	// PurposeSSMWeekChart は直近7日間の日別オンライン作業時間。
	PurposeSSMWeekChart Purpose = "ssm_week_chart"
	// PurposeSSMMonthly は当月のオンライン作業時間合計。
	PurposeSSMMonthly Purpose = "ssm_monthly"
)

// Key はキャッシュエントリの構造化キー。
// 用途・ユーザーID・任意の期間（YYYY-MMやYYYY-MM-DD）でスコープする。
// ユーザーごとにキーが分離されるため、ユーザー間の干渉は発生しない。
type Key struct {
	Purpose Purpose
	UserID  string
	Period  string
}

// String はストア内部のキー文字列表現を返す。
func (k Key) String() string {
	s := string(k.Purpose) + "_" + k.UserID
	if k.Period != "" {
		s += "_" + k.Period
	}
	return s
}

// entry は値と有効期限の組。
type entry struct {
	value     any
	expiresAt time.Time
}

// Store はTTL付きのプロセス内キャッシュ。
// 複数リクエストから共有されるためミューテックスで保護する。
// 同一キーへの同時ミスはそれぞれproducerを実行しうる（最大で重複実行1回を許容する方針。
// single-flight保証はしない）。
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	stopCh  chan struct{}
}

// cleanupInterval は期限切れエントリの掃除間隔。
const cleanupInterval = 5 * time.Minute

// NewStore はStoreを生成し、期限切れエントリの掃除をバックグラウンドで開始する。
func NewStore() *Store {
	s := &Store{
		entries: make(map[string]entry),
		stopCh:  make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Stop は掃除のバックグラウンドゴルーチンを停止する。
func (s *Store) Stop() {
	close(s.stopCh)
}

// get は有効なエントリを返す。期限切れは不在として扱う。
func (s *Store) get(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key.String()]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// set は値をTTL付きで保存する。
func (s *Store) set(key Key, value any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key.String()] = entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Forget はキーのエントリを明示的に削除する。強制リフレッシュ時に使用する。
func (s *Store) Forget(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key.String())
}

// Len は有効期限を問わず保持中のエントリ数を返す。
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// cleanupLoop は定期的に期限切れエントリを削除する。
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for k, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, k)
				}
			}
			s.mu.Unlock()
		}
	}
}

// GetOrCompute はキャッシュヒット時は保存済みの値を返し、ミス時はproducerを実行する。
// 戻り値の2番目はキャッシュヒットだったかどうか。
// producerが失敗した場合は何もキャッシュせずエラーを伝播する
// （一時的な失敗を負のキャッシュとして残さないため）。
func GetOrCompute[V any](ctx context.Context, s *Store, key Key, ttl time.Duration, producer func(ctx context.Context) (V, error)) (V, bool, error) {
	if v, ok := s.get(key); ok {
		if typed, typedOK := v.(V); typedOK {
			return typed, true, nil
		}
		// 型が合わないエントリは破棄して再計算する
		s.Forget(key)
	}

	var zero V
	value, err := producer(ctx)
	if err != nil {
		return zero, false, err
	}

	s.set(key, value, ttl)
	return value, false, nil
}
