package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/agent"
	"github.com/Ramsey-USA/mh-website-sub005/internal/queue"
	"github.com/Ramsey-USA/mh-website-sub005/internal/strategy"
	"github.com/Ramsey-USA/mh-website-sub005/internal/version"
)

// RegisterDiagnosticsRoutes 暴露 /-/status、/-/strategies 与 Prometheus /-/metrics。
func RegisterDiagnosticsRoutes(app *fiber.App, a *agent.Agent, logger *logrus.Logger) {
	if app == nil || a == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		ctx := c.UserContext()
		payload := statusPayload{
			Version: version.Full(),
			Release: a.Config().Global.ReleaseTag,
			Clients: a.Hub().Clients(),
			Pending: make(map[string]int, len(queue.Names)),
		}
		if m := a.Registration().Active(); m != nil {
			payload.Active = &releasePayload{Release: m.Release(), State: string(m.State())}
		}
		if m := a.Registration().Waiting(); m != nil {
			payload.Waiting = &releasePayload{Release: m.Release(), State: string(m.State())}
		}
		partitions, err := a.Store().ListPartitions(ctx)
		if err != nil {
			logger.WithError(err).WithField("action", "status").Warn("list_partitions_failed")
		}
		payload.Partitions = partitions
		for _, name := range queue.Names {
			items, err := a.Queue().ListPending(ctx, name)
			if err != nil {
				logger.WithError(err).WithFields(logrus.Fields{"action": "status", "queue": name}).Warn("list_pending_failed")
				continue
			}
			payload.Pending[string(name)] = len(items)
		}
		return c.JSON(payload)
	})

	app.Get("/-/strategies", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"strategies": strategy.List()})
	})

	app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

type releasePayload struct {
	Release string `json:"release"`
	State   string `json:"state"`
}

type statusPayload struct {
	Version    string          `json:"version"`
	Release    string          `json:"configured_release"`
	Active     *releasePayload `json:"active,omitempty"`
	Waiting    *releasePayload `json:"waiting,omitempty"`
	Partitions []string        `json:"partitions"`
	Clients    any             `json:"clients"`
	Pending    map[string]int  `json:"pending"`
}
