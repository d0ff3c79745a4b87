package bible_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sony/gobreaker/v2"

	bible "github.com/JohnPlummer/jp-go-bible"
)

var _ = Describe("CircuitBreakerWrapper", func() {
	var (
		ctx     context.Context
		client  *mockClient
		failing bool
	)

	BeforeEach(func() {
		ctx = context.Background()
		failing = true
		client = &mockClient{
			executeFunc: func(ctx context.Context, req string) (string, error) {
				if failing {
					return "", bible.NewStatusCodeError(503, errors.New("service unavailable"))
				}
				return "ok", nil
			},
		}
	})

	newBreaker := func(opts ...bible.CircuitBreakerOption) *bible.CircuitBreakerWrapper[string, string] {
		cfg := bible.DefaultCircuitBreakerConfig()
		cfg.Logger = quietLogger()
		for _, opt := range opts {
			opt(cfg)
		}
		return bible.NewCircuitBreakerWrapper[string, string](client, cfg)
	}

	It("uses the documented defaults", func() {
		cfg := bible.DefaultCircuitBreakerConfig()
		Expect(cfg.Name).To(Equal("bible-api"))
		Expect(cfg.MaxRequests).To(Equal(uint32(1)))
		Expect(cfg.Interval).To(Equal(60 * time.Second))
		Expect(cfg.Timeout).To(Equal(30 * time.Second))
		Expect(cfg.ReadyToTrip(bible.CircuitBreakerCounts{ConsecutiveFailures: 4})).To(BeFalse())
		Expect(cfg.ReadyToTrip(bible.CircuitBreakerCounts{ConsecutiveFailures: 5})).To(BeTrue())
	})

	It("accepts a nil config", func() {
		failing = false
		wrapper := bible.NewCircuitBreakerWrapper[string, string](client, nil)
		resp, err := wrapper.Execute(ctx, "gn")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp).To(Equal("ok"))
		Expect(wrapper.State()).To(Equal(bible.StateClosed))
	})

	It("opens after five consecutive server errors", func() {
		wrapper := newBreaker()

		for i := 0; i < 5; i++ {
			_, err := wrapper.Execute(ctx, "gn")
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, gobreaker.ErrOpenState)).To(BeFalse())
		}
		Expect(wrapper.State()).To(Equal(bible.StateOpen))
		Expect(wrapper.Counts().TotalFailures).To(BeZero())

		_, err := wrapper.Execute(ctx, "gn")
		Expect(errors.Is(err, gobreaker.ErrOpenState)).To(BeTrue())
		Expect(client.getCallCount()).To(Equal(5))
	})

	It("does not count client errors as failures", func() {
		client.executeFunc = func(ctx context.Context, req string) (string, error) {
			return "", bible.NewStatusCodeError(404, errors.New("not found"))
		}
		wrapper := newBreaker()

		for i := 0; i < 10; i++ {
			_, err := wrapper.Execute(ctx, "gn")
			Expect(err).To(HaveOccurred())
		}
		Expect(wrapper.State()).To(Equal(bible.StateClosed))
		Expect(wrapper.Counts().TotalSuccesses).To(Equal(uint32(10)))
	})

	It("resets the consecutive count on success", func() {
		wrapper := newBreaker()

		for i := 0; i < 4; i++ {
			_, _ = wrapper.Execute(ctx, "gn")
		}
		failing = false
		_, err := wrapper.Execute(ctx, "gn")
		Expect(err).NotTo(HaveOccurred())
		Expect(wrapper.Counts().ConsecutiveFailures).To(BeZero())
		Expect(wrapper.State()).To(Equal(bible.StateClosed))
	})

	It("probes in half-open state and closes on success", func() {
		var (
			mu          sync.Mutex
			transitions []string
		)
		wrapper := newBreaker(
			bible.WithReadyToTrip(func(counts bible.CircuitBreakerCounts) bool {
				return counts.ConsecutiveFailures >= 2
			}),
			bible.WithOpenTimeout(20*time.Millisecond),
			bible.WithStateChangeHandler(func(name string, from, to bible.CircuitBreakerState) {
				mu.Lock()
				defer mu.Unlock()
				transitions = append(transitions, from.String()+"->"+to.String())
			}),
		)

		_, _ = wrapper.Execute(ctx, "gn")
		_, _ = wrapper.Execute(ctx, "gn")
		Expect(wrapper.State()).To(Equal(bible.StateOpen))

		Eventually(wrapper.State).WithTimeout(time.Second).Should(Equal(bible.StateHalfOpen))

		failing = false
		resp, err := wrapper.Execute(ctx, "gn")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp).To(Equal("ok"))
		Expect(wrapper.State()).To(Equal(bible.StateClosed))

		mu.Lock()
		defer mu.Unlock()
		Expect(transitions).To(Equal([]string{"closed->open", "open->half-open", "half-open->closed"}))
	})

	It("reopens when the half-open probe fails", func() {
		wrapper := newBreaker(
			bible.WithReadyToTrip(func(counts bible.CircuitBreakerCounts) bool {
				return counts.ConsecutiveFailures >= 1
			}),
			bible.WithOpenTimeout(20*time.Millisecond),
		)

		_, _ = wrapper.Execute(ctx, "gn")
		Eventually(wrapper.State).WithTimeout(time.Second).Should(Equal(bible.StateHalfOpen))

		_, err := wrapper.Execute(ctx, "gn")
		Expect(err).To(HaveOccurred())
		Expect(wrapper.State()).To(Equal(bible.StateOpen))
	})

	It("uses a custom classifier", func() {
		classifier := &bible.HTTPStatusClassifier{CircuitTripStatuses: []int{404}}
		client.executeFunc = func(ctx context.Context, req string) (string, error) {
			return "", bible.NewStatusCodeError(404, errors.New("not found"))
		}
		wrapper := newBreaker(
			bible.WithCircuitBreakerErrorClassifier(classifier),
			bible.WithReadyToTrip(func(counts bible.CircuitBreakerCounts) bool {
				return counts.ConsecutiveFailures >= 2
			}),
		)

		_, _ = wrapper.Execute(ctx, "gn")
		_, _ = wrapper.Execute(ctx, "gn")
		Expect(wrapper.State()).To(Equal(bible.StateOpen))
	})

	Describe("options", func() {
		tripAfterOne := bible.WithReadyToTrip(func(counts bible.CircuitBreakerCounts) bool {
			return counts.ConsecutiveFailures >= 1
		})

		It("reports the configured name on state changes", func() {
			var names []string
			wrapper := newBreaker(
				bible.WithBreakerName("scripture"),
				tripAfterOne,
				bible.WithStateChangeHandler(func(name string, from, to bible.CircuitBreakerState) {
					names = append(names, name)
				}),
			)

			_, _ = wrapper.Execute(ctx, "gn")
			Expect(wrapper.State()).To(Equal(bible.StateOpen))
			Expect(names).To(Equal([]string{"scripture"}))
		})

		It("needs MaxRequests successful probes to close", func() {
			wrapper := newBreaker(
				tripAfterOne,
				bible.WithMaxRequests(2),
				bible.WithOpenTimeout(20*time.Millisecond),
			)

			_, _ = wrapper.Execute(ctx, "gn")
			Eventually(wrapper.State).WithTimeout(time.Second).Should(Equal(bible.StateHalfOpen))

			failing = false
			_, err := wrapper.Execute(ctx, "gn")
			Expect(err).NotTo(HaveOccurred())
			Expect(wrapper.State()).To(Equal(bible.StateHalfOpen))

			_, err = wrapper.Execute(ctx, "gn")
			Expect(err).NotTo(HaveOccurred())
			Expect(wrapper.State()).To(Equal(bible.StateClosed))
		})

		It("clears closed-state counts every interval", func() {
			wrapper := newBreaker(bible.WithInterval(20 * time.Millisecond))

			_, _ = wrapper.Execute(ctx, "gn")
			Expect(wrapper.Counts().ConsecutiveFailures).To(Equal(uint32(1)))

			Eventually(func() uint32 {
				_ = wrapper.State()
				return wrapper.Counts().Requests
			}).WithTimeout(time.Second).Should(BeZero())
			Expect(wrapper.State()).To(Equal(bible.StateClosed))
		})
	})

	It("names states", func() {
		Expect(bible.StateClosed.String()).To(Equal("closed"))
		Expect(bible.StateHalfOpen.String()).To(Equal("half-open"))
		Expect(bible.StateOpen.String()).To(Equal("open"))
		Expect(bible.CircuitBreakerState(42).String()).To(Equal("unknown"))
	})
})
