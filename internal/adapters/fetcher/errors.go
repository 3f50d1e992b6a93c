package fetcher

import (
	"errors"
	"fmt"

	"asta_radar/internal/domain"
)

// Kind classifies a failed fetch.
type Kind int

const (
	// Transient covers network errors, 5xx and 429 once retries are spent.
	Transient Kind = iota
	// Banned is a 403 or a 429 beyond tolerance. Fatal to the run.
	Banned
	// Client is any other non-success status; never retried.
	Client
	// Canceled means the caller's context ended while waiting or in flight.
	Canceled
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Banned:
		return "banned"
	case Client:
		return "client"
	case Canceled:
		return "canceled"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type FetchError struct {
	Kind     Kind
	Domain   string
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s (%s): %s after %d attempt(s)", e.URL, e.Domain, e.Kind, e.Attempts)
	if e.Status != 0 {
		msg += fmt.Sprintf(", status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets callers test for bans with errors.Is(err, domain.ErrBanned).
func (e *FetchError) Is(target error) bool {
	return target == domain.ErrBanned && e.Kind == Banned
}

func IsBanned(err error) bool { return errors.Is(err, domain.ErrBanned) }

// KindOf returns the Kind of a FetchError in err's chain, or Transient.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Transient
}
