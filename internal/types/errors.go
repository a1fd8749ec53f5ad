package types

import "errors"

// ErrValidation marks caller bugs: bad or empty candidates, invalid configs,
// contract violations. Validation errors are never retried.
var ErrValidation = errors.New("validation failed")

// Validation wraps err so it satisfies errors.Is(err, ErrValidation)
func Validation(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrValidation, err)
}
