package health

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func healthyCheck(ctx context.Context) CheckResult {
	return CheckResult{Status: StatusHealthy, Message: "ok"}
}

func unhealthyCheck(ctx context.Context) CheckResult {
	return CheckResult{Status: StatusUnhealthy, Message: "broken"}
}

func degradedCheck(ctx context.Context) CheckResult {
	return CheckResult{Status: StatusDegraded, Message: "limping"}
}

func TestRegisterAndCheck(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("journal", true, healthyCheck)

	results := c.Check(context.Background())
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r, ok := results["journal"]
	if !ok {
		t.Fatal("missing result for journal")
	}
	if r.Status != StatusHealthy {
		t.Errorf("status = %s, want %s", r.Status, StatusHealthy)
	}
	if r.LastChecked.IsZero() {
		t.Error("LastChecked not set")
	}
}

func TestUnregisteredComponentHasNoResult(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("journal", true, healthyCheck)
	c.Unregister("journal")

	if _, ok := c.GetResult("journal"); ok {
		t.Error("result survived Unregister")
	}
	if got := c.OverallStatus(); got != StatusHealthy {
		t.Errorf("overall = %s, want %s with no components", got, StatusHealthy)
	}
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]struct {
			critical bool
			check    Check
		}
		want Status
	}{
		{
			name: "all healthy",
			components: map[string]struct {
				critical bool
				check    Check
			}{
				"a": {true, healthyCheck},
				"b": {false, healthyCheck},
			},
			want: StatusHealthy,
		},
		{
			name: "critical unhealthy",
			components: map[string]struct {
				critical bool
				check    Check
			}{
				"a": {true, unhealthyCheck},
				"b": {false, healthyCheck},
			},
			want: StatusUnhealthy,
		},
		{
			name: "non-critical unhealthy degrades",
			components: map[string]struct {
				critical bool
				check    Check
			}{
				"a": {true, healthyCheck},
				"b": {false, unhealthyCheck},
			},
			want: StatusDegraded,
		},
		{
			name: "degraded component degrades",
			components: map[string]struct {
				critical bool
				check    Check
			}{
				"a": {true, degradedCheck},
			},
			want: StatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, comp := range tt.components {
				c.RegisterFunc(name, comp.critical, comp.check)
			}
			c.Check(context.Background())
			if got := c.OverallStatus(); got != tt.want {
				t.Errorf("OverallStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestUncheckedCriticalIsUnknown(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("engine", true, healthyCheck)

	if got := c.OverallStatus(); got != StatusUnknown {
		t.Errorf("overall before first check = %s, want %s", got, StatusUnknown)
	}
}

func TestCheckTimeout(t *testing.T) {
	c := NewChecker()
	c.Register(&Component{
		Name:     "slow",
		Critical: true,
		Timeout:  20 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			return CheckResult{Status: StatusHealthy}
		},
	})

	results := c.Check(context.Background())
	if results["slow"].Status != StatusUnhealthy {
		t.Errorf("timed-out check status = %s, want %s", results["slow"].Status, StatusUnhealthy)
	}
	if results["slow"].Message != "check timed out" {
		t.Errorf("message = %q", results["slow"].Message)
	}
}

func TestCheckPanicRecovery(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("panicky", true, func(ctx context.Context) CheckResult {
		panic("boom")
	})

	results := c.Check(context.Background())
	if results["panicky"].Status != StatusUnhealthy {
		t.Errorf("panicked check status = %s, want %s", results["panicky"].Status, StatusUnhealthy)
	}
}

func TestCheckComponent(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("journal", true, healthyCheck)

	r, ok := c.CheckComponent(context.Background(), "journal")
	if !ok {
		t.Fatal("CheckComponent returned ok=false for registered component")
	}
	if r.Status != StatusHealthy {
		t.Errorf("status = %s", r.Status)
	}

	if _, ok := c.CheckComponent(context.Background(), "ghost"); ok {
		t.Error("CheckComponent returned ok=true for unknown component")
	}
}

func TestReadiness(t *testing.T) {
	c := NewChecker()
	if c.IsReady() {
		t.Error("new checker reports ready")
	}
	c.SetReady(true)
	if !c.IsReady() {
		t.Error("SetReady(true) not reflected")
	}
}

func TestEventLoopCheck(t *testing.T) {
	okPing := func(ctx context.Context) error { return nil }
	badPing := func(ctx context.Context) error { return errors.New("loop stuck") }

	t.Run("ping failure is unhealthy", func(t *testing.T) {
		check := EventLoopCheck(badPing, func() time.Time { return time.Now() }, time.Minute)
		r := check(context.Background())
		if r.Status != StatusUnhealthy {
			t.Errorf("status = %s, want %s", r.Status, StatusUnhealthy)
		}
	})

	t.Run("no events yet is healthy", func(t *testing.T) {
		check := EventLoopCheck(okPing, func() time.Time { return time.Time{} }, time.Minute)
		r := check(context.Background())
		if r.Status != StatusHealthy {
			t.Errorf("status = %s, want %s", r.Status, StatusHealthy)
		}
	})

	t.Run("stale events degrade", func(t *testing.T) {
		check := EventLoopCheck(okPing, func() time.Time { return time.Now().Add(-time.Hour) }, time.Minute)
		r := check(context.Background())
		if r.Status != StatusDegraded {
			t.Errorf("status = %s, want %s", r.Status, StatusDegraded)
		}
	})

	t.Run("recent events healthy", func(t *testing.T) {
		check := EventLoopCheck(okPing, func() time.Time { return time.Now() }, time.Minute)
		r := check(context.Background())
		if r.Status != StatusHealthy {
			t.Errorf("status = %s, want %s", r.Status, StatusHealthy)
		}
	})
}

func TestJournalCheck(t *testing.T) {
	ok := JournalCheck(func() error { return nil })(context.Background())
	if ok.Status != StatusHealthy {
		t.Errorf("status = %s, want %s", ok.Status, StatusHealthy)
	}

	bad := JournalCheck(func() error { return errors.New("disk gone") })(context.Background())
	if bad.Status != StatusUnhealthy {
		t.Errorf("status = %s, want %s", bad.Status, StatusUnhealthy)
	}
	if bad.Error == "" {
		t.Error("error detail not propagated")
	}
}

func TestIPCCheck(t *testing.T) {
	up := IPCCheck(func() bool { return true }, func() int { return 2 })(context.Background())
	if up.Status != StatusHealthy {
		t.Errorf("status = %s, want %s", up.Status, StatusHealthy)
	}
	if up.Details["clients"] != 2 {
		t.Errorf("clients detail = %v, want 2", up.Details["clients"])
	}

	down := IPCCheck(func() bool { return false }, func() int { return 0 })(context.Background())
	if down.Status != StatusUnhealthy {
		t.Errorf("status = %s, want %s", down.Status, StatusUnhealthy)
	}
}

func TestSessionBusCheckNeverWorseThanDegraded(t *testing.T) {
	r := SessionBusCheck(func() error { return errors.New("no bus") })(context.Background())
	if r.Status != StatusDegraded {
		t.Errorf("status = %s, want %s", r.Status, StatusDegraded)
	}

	r = SessionBusCheck(func() error { return nil })(context.Background())
	if r.Status != StatusHealthy {
		t.Errorf("status = %s, want %s", r.Status, StatusHealthy)
	}
}

func TestReadinessHandler(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("journal", true, healthyCheck)
	c.Check(context.Background())

	rec := httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != 503 {
		t.Errorf("not-ready status = %d, want 503", rec.Code)
	}

	c.SetReady(true)
	rec = httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != 200 {
		t.Errorf("ready status = %d, want 200", rec.Code)
	}
}

func TestHealthHandlerFull(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("journal", true, healthyCheck)
	c.SetReady(true)

	rec := httptest.NewRecorder()
	c.HealthHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz?full=true", nil))
	if rec.Code != 200 {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if body == "" {
		t.Fatal("empty body")
	}
	for _, want := range []string{`"status":"healthy"`, `"ready":true`, `"journal"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %s: %s", want, body)
		}
	}
}
