package strategy

import (
	"errors"
	"fmt"

	"github.com/raykavin/hedgerun/pkg/core"
)

// dataUnavailable classifies a failed fetch, keeping the original cause in the chain
func dataUnavailable(err error, format string, args ...any) error {
	if errors.Is(err, core.ErrDataUnavailable) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
	}
	return fmt.Errorf("%w: %s: %w", core.ErrDataUnavailable, fmt.Sprintf(format, args...), err)
}
