package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"mailer/internal/domain"
)

// placeholderContent stands in for a template body that is missing from the cache.
const placeholderContent = "<p>Hello</p>"

// SendResult is what a strategy reports back for the ledger and the counters.
type SendResult struct {
	Outcome    domain.Outcome
	SampleID   *int64
	SampleName *string
	Content    *string
	Reason     *string
}

// SendStrategy performs the send for one SendMode. A nil result means the mode
// produced nothing to count or record.
type SendStrategy interface {
	Attempt(ctx context.Context, msg *domain.Message) *SendResult
}

type SendStrategyFunc func(ctx context.Context, msg *domain.Message) *SendResult

func (f SendStrategyFunc) Attempt(ctx context.Context, msg *domain.Message) *SendResult {
	return f(ctx, msg)
}

type sampleStrategy struct {
	cache  domain.CacheStore
	sender domain.Sender
	logger zerolog.Logger
}

// NewSampleStrategy sends the cached template identified by the message's sampleId.
func NewSampleStrategy(cache domain.CacheStore, sender domain.Sender, logger zerolog.Logger) SendStrategy {
	return &sampleStrategy{cache: cache, sender: sender, logger: logger}
}

func (s *sampleStrategy) Attempt(ctx context.Context, msg *domain.Message) *SendResult {
	sampleID := msg.SampleID
	result := &SendResult{SampleID: &sampleID}

	body := placeholderContent
	var tpl domain.TemplateSnapshot
	found, err := s.cache.Get(ctx, domain.TemplateCacheKey(msg.SampleID), &tpl)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Int64("sample_id", msg.SampleID).Msg("template lookup failed, using placeholder")
	case !found:
		s.logger.Warn().Int64("sample_id", msg.SampleID).Msg("template not cached, using placeholder")
	default:
		result.SampleName = &tpl.Name
		if tpl.Content != "" {
			body = tpl.Content
		}
	}

	err = s.sender.Send(ctx, domain.Envelope{
		JobID:     msg.JobID,
		Recipient: msg.Recipient,
		Subject:   msg.JobName,
		Body:      body,
	})
	if err != nil {
		reason := err.Error()
		result.Outcome = domain.OutcomeRejected
		result.Reason = &reason
		return result
	}
	result.Outcome = domain.OutcomeFulfilled
	return result
}

// customizeStrategy is a placeholder until custom-content sends are defined:
// it neither counts nor records.
type customizeStrategy struct {
	logger zerolog.Logger
}

func (s *customizeStrategy) Attempt(ctx context.Context, msg *domain.Message) *SendResult {
	s.logger.Debug().Int64("job_id", msg.JobID).Msg("customize send has no handler, skipping")
	return nil
}

// LogSender is the default transport; it only logs the envelope.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, envelope domain.Envelope) error {
	if envelope.Recipient == "" {
		return fmt.Errorf("empty recipient for job %d", envelope.JobID)
	}
	s.logger.Info().
		Int64("job_id", envelope.JobID).
		Str("recipient", envelope.Recipient).
		Str("subject", envelope.Subject).
		Int("body_len", len(envelope.Body)).
		Msg("mail sent")
	return nil
}
