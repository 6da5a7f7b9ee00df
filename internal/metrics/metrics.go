package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const namespace = "shortlinks"

var (
	LinksProvisioned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "links_provisioned_total",
		Help:      "Total number of short links created",
	})

	RedirectsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "redirects_resolved_total",
		Help:      "Total number of successful redirect resolutions",
	})

	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_consumed_total",
		Help:      "Total number of events consumed, by command and outcome",
	}, []string{"cmd", "outcome"})

	EventEmitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_emit_failures_total",
		Help:      "Total number of event emissions that failed and were dropped",
	}, []string{"cmd"})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		families, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
		}

		c.Set(fiber.HeaderContentType, string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		w := c.Response().BodyWriter()
		enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
		for _, mf := range families {
			if err := enc.Encode(mf); err != nil {
				return err
			}
		}
		return nil
	}
}
