package service

import (
	"errors"
	"fmt"

	"pseudonym-gateway/pkg/platform/sentinel"
)

// ErrStoreUnavailable means the backing store could not be enumerated. It is
// never reported as "no match".
var ErrStoreUnavailable = fmt.Errorf("subject store unavailable: %w", sentinel.ErrUnavailable)

func storeUnavailable(op string, err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
