package lifecycle

import (
	"fmt"

	"github.com/specialistvlad/devmgr/internal/status"
)

func errf(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

func errInvalidDevice(op string) error {
	return fmt.Errorf("%s: nil device: %w", op, status.ErrInvalidArgs)
}
