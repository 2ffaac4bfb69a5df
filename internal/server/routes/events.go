package routes

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/agent"
	"github.com/Ramsey-USA/mh-website-sub005/internal/notify"
	"github.com/Ramsey-USA/mh-website-sub005/internal/queue"
)

// RegisterEventRoutes 暴露推送、通知点击与同步触发入口，全部经由 agent.Dispatch。
func RegisterEventRoutes(app *fiber.App, a *agent.Agent, logger *logrus.Logger) {
	if app == nil || a == nil {
		return
	}

	app.Post("/-/push", func(c fiber.Ctx) error {
		out, err := a.Dispatch(c.UserContext(), agent.PushEvent{Payload: append([]byte(nil), c.Body()...)})
		if err != nil {
			logger.WithError(err).WithField("action", "push").Error("push_failed")
			return writeError(c, fiber.StatusInternalServerError, "push_failed")
		}
		return c.Status(fiber.StatusAccepted).JSON(out.Notification)
	})

	app.Post("/-/notifications/click", func(c fiber.Ctx) error {
		var click notify.ClickEvent
		if err := json.Unmarshal(c.Body(), &click); err != nil {
			return writeError(c, fiber.StatusBadRequest, "invalid_click")
		}
		out, err := a.Dispatch(c.UserContext(), agent.ClickEvent{Click: click})
		if err != nil {
			logger.WithError(err).WithField("action", "notification_click").Error("click_failed")
			return writeError(c, fiber.StatusInternalServerError, "click_failed")
		}
		return c.JSON(out.Click)
	})

	app.Post("/-/sync", func(c fiber.Ctx) error {
		out, err := a.Dispatch(c.UserContext(), agent.SyncEvent{Tag: c.Query("tag")})
		if err != nil {
			if errors.Is(err, queue.ErrUnknownTag) {
				return writeError(c, fiber.StatusBadRequest, "unknown_tag")
			}
			return writeError(c, fiber.StatusInternalServerError, "sync_failed")
		}
		payload := fiber.Map{"processed": out.Sync.Processed, "failed": out.Sync.Failed}
		if out.Sync.Err != nil {
			payload["error"] = out.Sync.Err.Error()
		}
		return c.JSON(payload)
	})

	app.Post("/-/periodic-sync", func(c fiber.Ctx) error {
		out, err := a.Dispatch(c.UserContext(), agent.PeriodicSyncEvent{Tag: c.Query("tag")})
		if err != nil {
			if errors.Is(err, agent.ErrUnknownPeriodicTag) {
				return writeError(c, fiber.StatusBadRequest, "unknown_tag")
			}
			logger.WithError(err).WithField("action", "sweep").Error("sweep_failed")
			return writeError(c, fiber.StatusInternalServerError, "sweep_failed")
		}
		return c.JSON(fiber.Map{"removed": out.Swept})
	})
}
