package metrics

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Register adds collectors to the service registry. A collector already
// registered is left alone; one registered under the same descriptors by an
// earlier owner is replaced. Other refusals are marked ErrRegisterFailed.
func Register(cs ...prometheus.Collector) error {
	var errs []error
	for _, c := range cs {
		err := customRegistry.Register(c)
		if err == nil {
			continue
		}
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if are.ExistingCollector == c {
				continue
			}
			customRegistry.Unregister(are.ExistingCollector)
			err = customRegistry.Register(c)
			if err == nil {
				continue
			}
		}
		errs = append(errs, errors.Mark(errors.Wrap(err, "register collector"), ErrRegisterFailed))
	}
	return errors.Join(errs...)
}

// Unregister removes collectors from the service registry.
func Unregister(cs ...prometheus.Collector) {
	for _, c := range cs {
		customRegistry.Unregister(c)
	}
}
