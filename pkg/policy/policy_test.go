package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/dpc/pkg/admin"
	"github.com/rs/zerolog"
)

type recordingMediator struct {
	mu      sync.Mutex
	calls   []admin.Op
	outcome func(admin.Op) admin.Outcome
}

func (r *recordingMediator) SetPasswordQuality(_ context.Context, q admin.PasswordQuality) (admin.Outcome, error) {
	return r.record(admin.OpSetPasswordQuality), nil
}

func (r *recordingMediator) SetPasswordMinimumLength(_ context.Context, length int) (admin.Outcome, error) {
	if length < 0 {
		return admin.Outcome{}, admin.ErrInvalidParameter
	}
	return r.record(admin.OpSetPasswordMinimumLength), nil
}

func (r *recordingMediator) record(op admin.Op) admin.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op)
	if r.outcome != nil {
		return r.outcome(op)
	}
	return admin.Executed(op)
}

func writePolicy(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
}

func TestLoadAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writePolicy(t, path, "password_quality: high\npassword_minimum_length: 8\n")

	pol, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *pol.Quality != admin.QualityComplex || *pol.MinimumLength != 8 {
		t.Fatalf("unexpected policy %+v", pol)
	}

	m := &recordingMediator{}
	outcomes, err := pol.Apply(context.Background(), m)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(outcomes) != 2 || m.calls[0] != admin.OpSetPasswordQuality {
		t.Fatalf("unexpected apply order: %v", m.calls)
	}
}

func TestApplyReturnsDeniedOutcomes(t *testing.T) {
	length := 4
	pol := &PasswordPolicy{MinimumLength: &length}
	m := &recordingMediator{outcome: func(op admin.Op) admin.Outcome {
		return admin.Denied(op, "not device/profile owner")
	}}
	outcomes, err := pol.Apply(context.Background(), m)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(outcomes) != 1 || !outcomes[0].IsDenied() {
		t.Fatalf("expected a single denied outcome, got %v", outcomes)
	}
}

func TestLoadRejectsInvalidPolicy(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"negative.yaml": "password_minimum_length: -1\n",
		"quality.yaml":  "password_quality: extreme\n",
	}
	for name, body := range tests {
		path := filepath.Join(dir, name)
		writePolicy(t, path, body)
		if _, err := Load(path); !errors.Is(err, admin.ErrInvalidParameter) {
			t.Errorf("%s: expected invalid parameter, got %v", name, err)
		}
	}
}

func TestEmptyPolicyAppliesNothing(t *testing.T) {
	pol := &PasswordPolicy{}
	if !pol.Empty() {
		t.Fatal("expected empty policy")
	}
	m := &recordingMediator{}
	if outcomes, err := pol.Apply(context.Background(), m); err != nil || len(outcomes) != 0 {
		t.Fatalf("unexpected apply result %v %v", outcomes, err)
	}
}

func TestWatcherReappliesOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writePolicy(t, path, "password_minimum_length: 6\n")

	applied := make(chan int, 4)
	w, err := NewWatcher(path, func(_ context.Context, p *PasswordPolicy) {
		applied <- *p.MinimumLength
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	writePolicy(t, path, "password_minimum_length: 12\n")

	select {
	case got := <-applied:
		if got != 12 {
			t.Fatalf("expected re-applied length 12, got %d", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("policy was not re-applied")
	}
	cancel()
	<-done
}
