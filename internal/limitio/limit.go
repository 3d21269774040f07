package limitio

import (
	"io"

	apperrors "lhtl/internal/errors"
)

// ReadAll reads r up to limit bytes. A payload longer than limit yields
// *errors.TooLargeError and no data. If limit <= 0, it behaves like io.ReadAll.
func ReadAll(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	lr := &io.LimitedReader{R: r, N: limit + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &apperrors.TooLargeError{Limit: limit}
	}
	return data, nil
}
