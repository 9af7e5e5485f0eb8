package metrics

import (
	"github.com/cockroachdb/errors"
)

// ErrRegisterFailed marks a collector the service registry refused.
var ErrRegisterFailed = errors.New("metrics register failed")
