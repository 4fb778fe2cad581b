package circuitbreaker

import (
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

var (
	// MaxNumOfFailingRequests is the number of requests in the current
	// interval above which the breaker may open.
	MaxNumOfFailingRequests = 10
	// FailingRatio is the share of failed requests that opens the breaker.
	FailingRatio = 0.6
)

// NewCircuitBreaker returns a breaker named after the guarded remote that
// opens once more than MaxNumOfFailingRequests requests were made and at
// least FailingRatio of them failed. State changes are logged with the given
// logger, if any.
func NewCircuitBreaker(name string, logger *logrus.Entry) *gobreaker.CircuitBreaker {
	if name == "" {
		name = "circuitbreaker"
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		ReadyToTrip: ReadyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger == nil {
				return
			}
			if to == gobreaker.StateOpen {
				logger.Warnf("%s seems down, stop allowing requests", name)
			}
			if from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen {
				logger.Infof("checking %s status", name)
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				logger.Infof("%s seems ok, restart allowing requests", name)
			}
		},
	})
}

// ReadyToTrip is the default tripping condition.
func ReadyToTrip(counts gobreaker.Counts) bool {
	ratio := float64(counts.TotalFailures) / float64(counts.Requests)
	return int(counts.Requests) > MaxNumOfFailingRequests && ratio >= FailingRatio
}
