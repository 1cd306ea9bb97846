package errorhandler

import (
	"time"

	"github.com/coderxlab/featurestream/logger"
	"github.com/hugolhafner/dskit/backoff"
)

type PolicyConfig struct {
	MaxAttempts int
	Backoff     backoff.Backoff
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MaxAttempts: 5,
		Backoff: backoff.NewExponential(
			backoff.WithInitialInterval(100*time.Millisecond),
			backoff.WithMaxInterval(10*time.Second),
			backoff.WithJitter(0.2),
		),
	}
}

// NewPolicy builds the pipeline's failure table:
//
//	malformed payload, missing field   drop and log
//	throttled, transient               retry with backoff, dead-letter when exhausted
//	schema rejected                    dead-letter
//	unauthorized, contract violation   fail the partition
func NewPolicy(cfg PolicyConfig, l logger.Logger) Handler {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultPolicyConfig().Backoff
	}

	return NewKindRouter(LogAndFail(l)).
		On(LogAndContinue(l), KindMalformedPayload, KindMissingField).
		On(WithMaxAttempts(cfg.MaxAttempts, cfg.Backoff, WithDLQ(nil)), KindThrottled, KindTransient).
		On(WithDLQ(nil), KindSchemaRejected).
		On(LogAndFail(l), KindUnauthorized, KindContractViolation)
}
