package teardown

import (
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	t.Run("basic exponential growth", func(t *testing.T) {
		backoff := ExponentialBackoff(BackoffConfig{
			InitialInterval: 1 * time.Second,
			MaxInterval:     1 * time.Minute,
			Multiplier:      2.0,
		})

		expected := []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
			32 * time.Second,
			60 * time.Second,
		}

		for i, exp := range expected {
			got := backoff.NextBackoff(i + 1)
			if got != exp {
				t.Errorf("NextBackoff(%d) = %v, want %v", i+1, got, exp)
			}
		}
	})

	t.Run("attempt below one", func(t *testing.T) {
		backoff := ExponentialBackoff(BackoffConfig{InitialInterval: 3 * time.Second})
		if got := backoff.NextBackoff(0); got != 3*time.Second {
			t.Errorf("NextBackoff(0) = %v, want %v", got, 3*time.Second)
		}
	})

	t.Run("with randomization", func(t *testing.T) {
		backoff := ExponentialBackoff(BackoffConfig{
			InitialInterval:     1 * time.Second,
			MaxInterval:         1 * time.Minute,
			Multiplier:          2.0,
			RandomizationFactor: 0.5,
		})

		for i := 0; i < 10; i++ {
			got := backoff.NextBackoff(1)
			if got < 500*time.Millisecond || got > 1500*time.Millisecond {
				t.Errorf("NextBackoff(1) with jitter = %v, expected 0.5s-1.5s", got)
			}
		}
	})
}

func TestConstantBackoff(t *testing.T) {
	backoff := ConstantBackoff(5 * time.Second)
	for _, attempt := range []int{0, 1, 10, 100} {
		if got := backoff.NextBackoff(attempt); got != 5*time.Second {
			t.Errorf("NextBackoff(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestWithJitter(t *testing.T) {
	backoff := WithJitter(ConstantBackoff(10*time.Second), 0.1)
	for i := 0; i < 20; i++ {
		got := backoff.NextBackoff(1)
		if got < 9*time.Second || got > 11*time.Second {
			t.Errorf("NextBackoff(1) = %v, expected 9s-11s", got)
		}
	}

	zero := WithJitter(ConstantBackoff(0), 0.5)
	if got := zero.NextBackoff(1); got != 0 {
		t.Errorf("NextBackoff(1) of zero interval = %v, want 0", got)
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{
		Strategy: ExponentialBackoff(BackoffConfig{
			InitialInterval: 1 * time.Second,
			MaxInterval:     time.Hour,
			Multiplier:      2.0,
		}),
		MaxAttempts: 3,
		MaxDelay:    time.Minute,
	}

	tests := []struct {
		attempt       int
		wantDelay     time.Duration
		wantExhausted bool
	}{
		{attempt: 0, wantDelay: 1 * time.Second},
		{attempt: 1, wantDelay: 2 * time.Second},
		{attempt: 2, wantDelay: 4 * time.Second},
		{attempt: 3, wantDelay: time.Minute, wantExhausted: true},
		{attempt: 50, wantDelay: time.Minute, wantExhausted: true},
	}

	for _, tt := range tests {
		delay, exhausted := policy.Delay(tt.attempt)
		if delay != tt.wantDelay {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, delay, tt.wantDelay)
		}
		if exhausted != tt.wantExhausted {
			t.Errorf("Delay(%d) exhausted = %v, want %v", tt.attempt, exhausted, tt.wantExhausted)
		}
	}
}

func TestRetryPolicyDelayWithoutMaxDelay(t *testing.T) {
	policy := RetryPolicy{
		Strategy: ExponentialBackoff(BackoffConfig{
			InitialInterval: 1 * time.Second,
			MaxInterval:     time.Hour,
			Multiplier:      2.0,
		}),
		MaxAttempts: 2,
	}

	delay, exhausted := policy.Delay(5)
	if !exhausted {
		t.Error("Delay(5) should be exhausted")
	}
	if delay != 2*time.Second {
		t.Errorf("Delay(5) = %v, want %v", delay, 2*time.Second)
	}
}

func TestRetryPolicyUnlimited(t *testing.T) {
	policy := RetryPolicy{Strategy: ConstantBackoff(3 * time.Second)}
	delay, exhausted := policy.Delay(1000)
	if exhausted {
		t.Error("unbounded policy should never be exhausted")
	}
	if delay != 3*time.Second {
		t.Errorf("Delay(1000) = %v, want %v", delay, 3*time.Second)
	}
}

func TestRetryPolicyNilStrategy(t *testing.T) {
	delay, exhausted := RetryPolicy{}.Delay(3)
	if delay != 0 || exhausted {
		t.Errorf("Delay(3) = (%v, %v), want (0, false)", delay, exhausted)
	}
}

func TestDefaultRetryPolicies(t *testing.T) {
	policies := DefaultRetryPolicies()

	notFinalized, _ := policies.NotFinalized.Delay(0)
	if notFinalized < 2700*time.Millisecond || notFinalized > 3300*time.Millisecond {
		t.Errorf("NotFinalized.Delay(0) = %v, expected around 3s", notFinalized)
	}

	failed, _ := policies.Error.Delay(0)
	if failed < 4500*time.Millisecond || failed > 5500*time.Millisecond {
		t.Errorf("Error.Delay(0) = %v, expected around 5s", failed)
	}

	tests := []struct {
		name   string
		policy RetryPolicy
		max    time.Duration
	}{
		{"not finalized", policies.NotFinalized, 2 * time.Minute},
		{"error", policies.Error, 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delay, exhausted := tt.policy.Delay(tt.policy.MaxAttempts)
			if !exhausted {
				t.Errorf("Delay(%d) should be exhausted", tt.policy.MaxAttempts)
			}
			if delay != tt.max {
				t.Errorf("Delay(%d) = %v, want %v", tt.policy.MaxAttempts, delay, tt.max)
			}
		})
	}
}

func TestDefaultRetryPoliciesNotFinalizedIsShorter(t *testing.T) {
	policies := DefaultRetryPolicies()

	for attempt := 0; attempt <= policies.Error.MaxAttempts+2; attempt++ {
		notFinalized, _ := policies.NotFinalized.Delay(attempt)
		failed, _ := policies.Error.Delay(attempt)
		if notFinalized >= failed {
			t.Errorf("attempt %d: not-finalized delay %v is not shorter than error delay %v", attempt, notFinalized, failed)
		}
	}
}

func TestFixedRetryPolicies(t *testing.T) {
	policies := FixedRetryPolicies(3*time.Second, 5*time.Second)

	if got, _ := policies.NotFinalized.Delay(7); got != 3*time.Second {
		t.Errorf("NotFinalized.Delay(7) = %v, want %v", got, 3*time.Second)
	}
	if got, _ := policies.Error.Delay(7); got != 5*time.Second {
		t.Errorf("Error.Delay(7) = %v, want %v", got, 5*time.Second)
	}
}
