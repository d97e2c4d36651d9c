package ratelimit_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/prasetya/receiptbot/internal/ratelimit"
)

func TestRateLimit(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "RateLimit Suite")
}

var _ = Describe("Limiter", func() {
	var (
		limiter *ratelimit.Limiter
		clock   time.Time
		logger  *slog.Logger
	)

	BeforeEach(func() {
		clock = time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC)
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		limiter = ratelimit.NewLimiter(10, 60*time.Second, logger).WithClock(func() time.Time {
			return clock
		})
	})

	Describe("Check", func() {
		Context("within the window", func() {
			It("should allow up to the configured maximum", func() {
				for i := 0; i < 10; i++ {
					decision := limiter.Check(42)
					Expect(decision.Allowed).To(BeTrue(), "request %d should pass", i+1)
				}
			})

			It("should block the request after the maximum", func() {
				for i := 0; i < 10; i++ {
					limiter.Check(42)
				}

				decision := limiter.Check(42)

				Expect(decision.Allowed).To(BeFalse())
				Expect(decision.RetryAfterSeconds).To(Equal(60))
			})

			It("should report a shrinking retry-after as the window ages", func() {
				for i := 0; i < 10; i++ {
					limiter.Check(42)
				}

				clock = clock.Add(45 * time.Second)
				decision := limiter.Check(42)

				Expect(decision.Allowed).To(BeFalse())
				Expect(decision.RetryAfterSeconds).To(Equal(15))
			})

			It("should report at least one second even at the window edge", func() {
				for i := 0; i < 10; i++ {
					limiter.Check(42)
				}

				clock = clock.Add(59*time.Second + 900*time.Millisecond)
				decision := limiter.Check(42)

				Expect(decision.Allowed).To(BeFalse())
				Expect(decision.RetryAfterSeconds).To(Equal(1))
			})
		})

		Context("when the window expires", func() {
			It("should allow again and start a fresh window", func() {
				for i := 0; i < 11; i++ {
					limiter.Check(42)
				}

				clock = clock.Add(60 * time.Second)

				decision := limiter.Check(42)
				Expect(decision.Allowed).To(BeTrue())
			})

			It("should not extend the window on blocked requests", func() {
				for i := 0; i < 10; i++ {
					limiter.Check(42)
				}

				// A flood of rejected calls while blocked.
				for i := 0; i < 50; i++ {
					limiter.Check(42)
				}

				clock = clock.Add(60 * time.Second)
				decision := limiter.Check(42)
				Expect(decision.Allowed).To(BeTrue())
			})
		})

		Context("with multiple users", func() {
			It("should track each user independently", func() {
				for i := 0; i < 10; i++ {
					limiter.Check(1)
				}

				Expect(limiter.Check(1).Allowed).To(BeFalse())
				Expect(limiter.Check(2).Allowed).To(BeTrue())
			})
		})
	})
})
