package analyze

import (
	"context"
	"errors"
	"fmt"
)

// ErrCanceled reports that an analysis run stopped before producing a
// result because its context was canceled. It is the only failure mode
// distinct from degraded output: malformed model responses never surface as
// errors.
var ErrCanceled = errors.New("analysis canceled")

func canceled(ctx context.Context) error {
	return fmt.Errorf("%w: %v", ErrCanceled, context.Cause(ctx))
}
