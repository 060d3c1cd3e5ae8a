package domain

import "errors"

var (
	ErrQuotaExceeded    = errors.New("rate limit quota exceeded")
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
	ErrInvalidBucket    = errors.New("invalid rate limit bucket")

	ErrInvalidInput = errors.New("invalid analysis input")
	ErrProtectedURL = errors.New("PROTECTED_URL")
	ErrFetchFailed  = errors.New("failed to fetch content from URL")
	ErrScanNotFound = errors.New("scan not found")
)

func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
