package obs

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCounters(t *testing.T) {
	before := testutil.ToFloat64(loginsTotal.WithLabelValues("ok"))
	ObserveLogin("ok")
	if got := testutil.ToFloat64(loginsTotal.WithLabelValues("ok")); got != before+1 {
		t.Fatalf("auth_logins_total{result=ok}: got %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(refreshRotationsTotal.WithLabelValues("reuse"))
	ObserveRotation("reuse")
	if got := testutil.ToFloat64(refreshRotationsTotal.WithLabelValues("reuse")); got != before+1 {
		t.Fatalf("auth_refresh_rotations_total{result=reuse}: got %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(reuseDetectedTotal)
	ObserveReuse()
	if got := testutil.ToFloat64(reuseDetectedTotal); got != before+1 {
		t.Fatalf("auth_reuse_detected_total: got %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(tokenVerificationsTotal.WithLabelValues("expired"))
	ObserveTokenVerification("expired")
	if got := testutil.ToFloat64(tokenVerificationsTotal.WithLabelValues("expired")); got != before+1 {
		t.Fatalf("auth_token_verifications_total{result=expired}: got %v, want %v", got, before+1)
	}
}

func TestTimePasswordHash(t *testing.T) {
	TimePasswordHash(time.Now().Add(-5 * time.Millisecond))
	if got := testutil.CollectAndCount(passwordHashDuration); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
}
