package domain

import "errors"

var (
	// ErrEmptyMeasurement is returned when none of the seven fields is filled in.
	ErrEmptyMeasurement = errors.New("at least one measurement is required")
	// ErrInvalidValue flags a field or date that cannot be parsed.
	ErrInvalidValue = errors.New("invalid measurement value")
	// ErrFetchFailed wraps any store fault while listing.
	ErrFetchFailed = errors.New("fetch measurements failed")
	// ErrCreateFailed wraps any store fault while creating.
	ErrCreateFailed = errors.New("create measurement failed")
	// ErrDeleteFailed wraps any store fault while deleting.
	ErrDeleteFailed = errors.New("delete measurement failed")
	// ErrMigrateFailed wraps any fault during legacy migration.
	ErrMigrateFailed = errors.New("migrate legacy measurements failed")
	// ErrNothingToExport is returned by Export for an empty history.
	ErrNothingToExport = errors.New("no measurements to export")
	// ErrUnauthenticated is returned when an operation has no owning user.
	ErrUnauthenticated = errors.New("user not authenticated")
)

// Message maps an error to the short notification shown to the user.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyMeasurement):
		return "Fill in at least one measurement."
	case errors.Is(err, ErrInvalidValue):
		return "Some values are not valid numbers."
	case errors.Is(err, ErrUnauthenticated):
		return "You need to be signed in to do that."
	case errors.Is(err, ErrFetchFailed):
		return "Could not load your measurements."
	case errors.Is(err, ErrCreateFailed):
		return "Could not save the measurement. Try again."
	case errors.Is(err, ErrDeleteFailed):
		return "Could not delete the measurement. Try again."
	case errors.Is(err, ErrMigrateFailed):
		return "Could not migrate your local data. Try again."
	case errors.Is(err, ErrNothingToExport):
		return "There is no data to export."
	}
	return "Something went wrong. Try again."
}
