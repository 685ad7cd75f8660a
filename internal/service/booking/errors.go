package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/tixbook/internal/domain"
)

var (
	ErrBookingNotFound = fmt.Errorf("booking %w", domain.ErrNotFound)
	ErrRateLimited     = errors.New("too many booking requests")
)

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e RateLimitedError) Error() string {
	return fmt.Sprintf("too many booking requests, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
