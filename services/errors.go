package services

import "errors"

var (
	ErrBlankKeyword  = errors.New("keyword is required")
	ErrNoRegions     = errors.New("select at least one region")
	ErrBatchRunning  = errors.New("a search batch is already running")
	ErrNotPaused     = errors.New("no paused search to resume")
	ErrRegionBusy    = errors.New("region is already being fetched")
	ErrUnknownRegion = errors.New("region is not selected")
	ErrBlankLink     = errors.New("listing link is required")
)

// IsValidation reports whether err should be shown to the user as a bad
// request rather than a failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrBlankKeyword) || errors.Is(err, ErrNoRegions) || errors.Is(err, ErrBlankLink)
}
