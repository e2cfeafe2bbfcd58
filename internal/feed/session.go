package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/feedlark/reelwatch/internal/config"
	"github.com/feedlark/reelwatch/internal/dom"
	"github.com/feedlark/reelwatch/internal/pace"
)

// ErrNoFeed is returned when the precondition check cannot locate a single
// playing video, meaning the page never reached the feed.
var ErrNoFeed = errors.New("feed: no current video on page")

// CheckpointWriter persists the full record list. Every write replaces the
// previous one, so a crash between writes loses at most the records since
// the last checkpoint.
type CheckpointWriter interface {
	WriteAll(ctx context.Context, records []Record) error
}

// Summary reports what a session run accomplished.
type Summary struct {
	Collected   int
	Duplicates  int
	Cycles      int
	Checkpoints int
	Reason      string
}

// Session drives the collect loop: resolve, extract, classify, checkpoint,
// advance. It owns the advance-failure circuit breaker and guarantees a
// final flush on every exit path.
type Session struct {
	page      dom.Page
	extractor *Extractor
	resolver  *Resolver
	advancer  *Advancer
	ledger    *Ledger
	writer    CheckpointWriter
	logger    *zap.Logger
	cfg       config.FeedConfig
	limiter   *rate.Limiter
	sleep     func(ctx context.Context, min, max time.Duration) error
}

// NewSession wires a session from its parts. cfg must already be validated.
func NewSession(page dom.Page, writer CheckpointWriter, cfg config.FeedConfig, logger *zap.Logger) *Session {
	log := logger.Named("session")
	resolver := NewResolver(page, log, cfg.CandidateCap)
	var limiter *rate.Limiter
	if cfg.CyclesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.CyclesPerSecond), 1)
	}
	return &Session{
		page:      page,
		extractor: NewExtractor(page, resolver, log),
		resolver:  resolver,
		advancer:  NewAdvancer(page, log, cfg.SettleWait),
		ledger:    NewLedger(log),
		writer:    writer,
		logger:    log,
		cfg:       cfg,
		limiter:   limiter,
		sleep:     pace.SleepJitter,
	}
}

// Run executes the loop until the item cap is reached, the circuit breaker
// trips, or ctx is cancelled. The collected list is flushed unconditionally
// before returning, including on cancellation.
func (s *Session) Run(ctx context.Context) (sum Summary, err error) {
	var (
		records        []Record
		advanceFails   int
		nextCheckpoint = s.cfg.CheckpointEvery
	)

	flush := func() {
		// The final write must not be skipped by an already-cancelled
		// context; give it its own short deadline.
		fctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if werr := s.writer.WriteAll(fctx, records); werr != nil {
			s.logger.Error("final flush failed", zap.Error(werr))
			if err == nil {
				err = fmt.Errorf("final checkpoint flush: %w", werr)
			}
			return
		}
		sum.Checkpoints++
	}
	defer flush()

	if s.resolver.CurrentVideo(ctx) == nil {
		sum.Reason = "no feed"
		return sum, ErrNoFeed
	}

	for {
		if err := ctx.Err(); err != nil {
			sum.Reason = "cancelled"
			return sum, err
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				sum.Reason = "cancelled"
				return sum, err
			}
		}
		sum.Cycles++

		liveURL, _ := s.page.NavigationURL(ctx)
		rec := s.extractor.Extract(ctx)
		if err := ctx.Err(); err != nil {
			sum.Reason = "cancelled"
			return sum, err
		}
		if rec.Empty() {
			// Extraction trouble on one item is not fatal; move on.
			s.logger.Debug("empty record, skipping item")
		} else {
			switch s.ledger.Classify(rec, liveURL) {
			case Novel:
				records = append(records, rec)
				sum.Collected = len(records)
				s.logger.Info("collected",
					zap.Int("total", len(records)),
					zap.String("permalink", rec.Permalink))
			case Duplicate:
				sum.Duplicates++
				s.logger.Debug("duplicate discarded",
					zap.String("permalink", rec.Permalink))
			}
		}

		if nextCheckpoint > 0 && len(records) >= nextCheckpoint {
			if err := s.writer.WriteAll(ctx, records); err != nil {
				s.logger.Error("checkpoint write failed", zap.Error(err))
			} else {
				sum.Checkpoints++
				s.logger.Info("checkpoint written", zap.Int("records", len(records)))
			}
			nextCheckpoint += s.cfg.CheckpointEvery
		}

		if s.cfg.MaxItems > 0 && len(records) >= s.cfg.MaxItems {
			sum.Reason = "item cap reached"
			return sum, nil
		}

		moved, err := s.advancer.Advance(ctx)
		if err != nil {
			sum.Reason = "cancelled"
			return sum, err
		}
		if moved {
			advanceFails = 0
		} else {
			advanceFails++
			s.logger.Warn("advance failed",
				zap.Int("consecutive", advanceFails),
				zap.Int("limit", s.cfg.MaxAdvanceFailures))
			if advanceFails >= s.cfg.MaxAdvanceFailures {
				sum.Reason = "end of feed"
				s.logger.Info("stopping: feed no longer advances")
				return sum, nil
			}
			if err := pace.Sleep(ctx, s.cfg.AdvanceBackoff); err != nil {
				sum.Reason = "cancelled"
				return sum, err
			}
		}

		if err := s.sleep(ctx, s.cfg.CycleDelayMin, s.cfg.CycleDelayMax); err != nil {
			sum.Reason = "cancelled"
			return sum, err
		}
	}
}
