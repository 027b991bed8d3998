package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	t.Cleanup(s.Stop)
	return s
}

// TestKeyString はキーの文字列表現を検証する。
func TestKeyString(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{"期間あり", Key{Purpose: PurposeSSMDaily, UserID: "user-1", Period: "2026-08-10"}, "ssm_daily_user-1_2026-08-10"},
		{"期間なし", Key{Purpose: PurposeSSMMonthly, UserID: "user-2"}, "ssm_monthly_user-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("Key.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestGetOrCompute_MissThenHit は初回ミスでproducerが実行され、
// 2回目はキャッシュから返ることを検証する。
func TestGetOrCompute_MissThenHit(t *testing.T) {
	s := newTestStore(t)
	key := Key{Purpose: PurposeSSMDaily, UserID: "user-1", Period: "2026-08-10"}

	calls := 0
	producer := func(ctx context.Context) (int, error) {
		calls++
		return 150, nil
	}

	v, cached, err := GetOrCompute(context.Background(), s, key, time.Minute, producer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 150 || cached {
		t.Errorf("first call: got (%d, %v), want (150, false)", v, cached)
	}

	v, cached, err = GetOrCompute(context.Background(), s, key, time.Minute, producer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 150 || !cached {
		t.Errorf("second call: got (%d, %v), want (150, true)", v, cached)
	}
	if calls != 1 {
		t.Errorf("producer calls = %d, want 1", calls)
	}
}

// TestGetOrCompute_ErrorIsNotCached はproducer失敗時に負のキャッシュが
// 残らないことを検証する。
func TestGetOrCompute_ErrorIsNotCached(t *testing.T) {
	s := newTestStore(t)
	key := Key{Purpose: PurposeSSMDaily, UserID: "user-1", Period: "2026-08-10"}

	wantErr := errors.New("upstream failure")
	_, _, err := GetOrCompute(context.Background(), s, key, time.Minute, func(ctx context.Context) (int, error) {
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0 (failures must not be cached)", s.Len())
	}

	// 失敗後の再試行は成功値をキャッシュする
	v, cached, err := GetOrCompute(context.Background(), s, key, time.Minute, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 || cached {
		t.Errorf("retry: got (%d, %v), want (42, false)", v, cached)
	}
}

// TestGetOrCompute_ExpiredEntryRecomputes は期限切れエントリが
// 再計算されることを検証する。
func TestGetOrCompute_ExpiredEntryRecomputes(t *testing.T) {
	s := newTestStore(t)
	key := Key{Purpose: PurposeSSMWeekChart, UserID: "user-1", Period: "2026-08-10"}

	calls := 0
	producer := func(ctx context.Context) (string, error) {
		calls++
		return "value", nil
	}

	if _, _, err := GetOrCompute(context.Background(), s, key, time.Nanosecond, producer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(time.Millisecond)

	_, cached, err := GetOrCompute(context.Background(), s, key, time.Minute, producer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached {
		t.Error("expired entry should not be a cache hit")
	}
	if calls != 2 {
		t.Errorf("producer calls = %d, want 2", calls)
	}
}

// TestGetOrCompute_TypeMismatchRecomputes は保存型と要求型が異なる場合に
// エントリを破棄して再計算することを検証する。
func TestGetOrCompute_TypeMismatchRecomputes(t *testing.T) {
	s := newTestStore(t)
	key := Key{Purpose: PurposeSSMDaily, UserID: "user-1"}

	if _, _, err := GetOrCompute(context.Background(), s, key, time.Minute, func(ctx context.Context) (string, error) {
		return "stringvalue", nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, cached, err := GetOrCompute(context.Background(), s, key, time.Minute, func(ctx context.Context) (int, error) {
		return 7, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 7 || cached {
		t.Errorf("got (%d, %v), want (7, false)", v, cached)
	}
}

// TestForget は明示的な削除後に再計算されることを検証する。
func TestForget(t *testing.T) {
	s := newTestStore(t)
	key := Key{Purpose: PurposeSSMDaily, UserID: "user-1", Period: "2026-08-10"}

	calls := 0
	producer := func(ctx context.Context) (int, error) {
		calls++
		return calls * 100, nil
	}

	if _, _, err := GetOrCompute(context.Background(), s, key, time.Hour, producer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Forget(key)

	v, cached, err := GetOrCompute(context.Background(), s, key, time.Hour, producer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached {
		t.Error("forgotten key should not be a cache hit")
	}
	if v != 200 {
		t.Errorf("value = %d, want 200 (recomputed)", v)
	}
}

// TestStore_UserIsolation はユーザーごとにキーが分離されることを検証する。
func TestStore_UserIsolation(t *testing.T) {
	s := newTestStore(t)
	period := "2026-08-10"

	for _, userID := range []string{"user-a", "user-b"} {
		uid := userID
		key := Key{Purpose: PurposeSSMDaily, UserID: uid, Period: period}
		v, _, err := GetOrCompute(context.Background(), s, key, time.Hour, func(ctx context.Context) (string, error) {
			return "value-" + uid, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != "value-"+uid {
			t.Errorf("value = %q, want %q", v, "value-"+uid)
		}
	}

	// user-aのキャッシュヒットがuser-bの値を返さないこと
	key := Key{Purpose: PurposeSSMDaily, UserID: "user-a", Period: period}
	v, cached, err := GetOrCompute(context.Background(), s, key, time.Hour, func(ctx context.Context) (string, error) {
		return "should-not-run", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cached || v != "value-user-a" {
		t.Errorf("got (%q, %v), want (value-user-a, true)", v, cached)
	}
}

// TestStore_ConcurrentAccess は並行アクセスで競合しないことを検証する。
// go test -race での検出を想定する。
func TestStore_ConcurrentAccess(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := Key{Purpose: PurposeSSMDaily, UserID: "user-1", Period: "2026-08-10"}
			_, _, _ = GetOrCompute(context.Background(), s, key, time.Minute, func(ctx context.Context) (int, error) {
				return n, nil
			})
			s.Forget(Key{Purpose: PurposeSSMMonthly, UserID: "user-1"})
			_ = s.Len()
		}(i)
	}
	wg.Wait()
}
