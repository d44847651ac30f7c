package limiter_test

import (
	"errors"
	"testing"
	"time"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/limiter"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const sender = database.AccountID("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")

func Test_Window(t *testing.T) {
	t.Log("Given the need to admit 60 submissions per rolling 60 seconds.")
	{
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		l := limiter.New(limiter.DefaultLimit, limiter.DefaultWindow).WithClock(func() time.Time { return now })

		for i := 0; i < 60; i++ {
			if err := l.Check(sender); err != nil {
				t.Fatalf("\t%s\tShould admit submission %d: %v", failed, i+1, err)
			}
			now = now.Add(500 * time.Millisecond)
		}
		t.Logf("\t%s\tShould admit the first 60 submissions.", success)

		if err := l.Check(sender); !errors.Is(err, limiter.ErrRateLimitExceeded) {
			t.Fatalf("\t%s\tShould reject the 61st submission inside the window: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject the 61st submission inside the window.", success)

		// Roll past the first submissions and try again.
		now = now.Add(45 * time.Second)
		if err := l.Check(sender); err != nil {
			t.Fatalf("\t%s\tShould admit again once the window rolls: %v", failed, err)
		}
		t.Logf("\t%s\tShould admit again once the window rolls.", success)
	}
}

func Test_PerSender(t *testing.T) {
	t.Log("Given the need to throttle senders independently.")
	{
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		l := limiter.New(2, time.Minute).WithClock(func() time.Time { return now })

		other := database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")

		l.Check(sender)
		l.Check(sender)
		if err := l.Check(sender); !errors.Is(err, limiter.ErrRateLimitExceeded) {
			t.Fatalf("\t%s\tShould reject the throttled sender.", failed)
		}
		t.Logf("\t%s\tShould reject the throttled sender.", success)

		if err := l.Check(other); err != nil {
			t.Fatalf("\t%s\tShould not throttle a different sender: %v", failed, err)
		}
		t.Logf("\t%s\tShould not throttle a different sender.", success)
	}
}
