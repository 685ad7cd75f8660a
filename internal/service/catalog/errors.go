package catalog

import (
	"fmt"

	"github.com/kirinyoku/tixbook/internal/domain"
)

var ErrEventNotFound = fmt.Errorf("event %w", domain.ErrNotFound)
