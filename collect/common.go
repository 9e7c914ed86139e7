package collect

import (
	"context"
	"errors"
	"time"

	"github.com/jyothri/inboxsweep/classify"
	"github.com/jyothri/inboxsweep/mailbox"
	"github.com/jyothri/inboxsweep/model"
)

var (
	ErrFetchInProgress = errors.New("fetch already in progress")
	ErrUnknownAction   = errors.New("unknown action type")
)

func toMessage(s mailbox.Summary) model.Message {
	sender := s.Headers.Get("From", model.UnknownSender)
	return model.Message{
		ID:      s.ID,
		Sender:  sender,
		Subject: s.Headers.Get("Subject", model.NoSubject),
		Date:    s.Headers.Get("Date", ""),
		Domain:  classify.Domain(sender),
	}
}

func toMessages(summaries []mailbox.Summary) []model.Message {
	out := make([]model.Message, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, toMessage(s))
	}
	return out
}

// estimateTotal keeps the running total ahead of what has been fetched while
// pages remain and collapses to the exact count once the listing ends.
// sourceEstimate is only ever a lower bound.
func estimateTotal(prev, sourceEstimate, fetched, pageLen int, more bool) int {
	if !more {
		return fetched
	}
	est := max(prev, sourceEstimate)
	if est <= fetched {
		est = fetched + 2*max(pageLen, 1)
	}
	return est
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
