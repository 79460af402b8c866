// Package all blank-imports every standard device module so their
// init() self-registration runs.
package all

import (
	_ "github.com/lfproto/lf/internal/modules/gpio"
	_ "github.com/lfproto/lf/internal/modules/led"
)
