package routes

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/agent"
	"github.com/Ramsey-USA/mh-website-sub005/internal/queue"
)

// RegisterQueueRoutes 暴露离线提交队列：POST 入队，GET 查看待回放条目。
func RegisterQueueRoutes(app *fiber.App, a *agent.Agent, logger *logrus.Logger) {
	if app == nil || a == nil {
		return
	}

	app.Post("/-/queue/:name", func(c fiber.Ctx) error {
		name, err := queue.ParseName(c.Params("name"))
		if err != nil {
			return writeError(c, fiber.StatusNotFound, "unknown_queue")
		}
		body := c.Body()
		if !json.Valid(body) {
			return writeError(c, fiber.StatusBadRequest, "invalid_payload")
		}
		id, err := a.Queue().Enqueue(c.UserContext(), name, json.RawMessage(append([]byte(nil), body...)))
		if err != nil {
			if errors.Is(err, queue.ErrInvalidPayload) {
				return writeError(c, fiber.StatusBadRequest, "invalid_payload")
			}
			logger.WithError(err).WithFields(logrus.Fields{"action": "enqueue", "queue": name}).Error("enqueue_failed")
			return writeError(c, fiber.StatusInternalServerError, "enqueue_failed")
		}
		logger.WithFields(logrus.Fields{"action": "enqueue", "queue": name, "id": id}).Info("mutation_queued")
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id, "queue": name})
	})

	app.Get("/-/queue/:name", func(c fiber.Ctx) error {
		name, err := queue.ParseName(c.Params("name"))
		if err != nil {
			return writeError(c, fiber.StatusNotFound, "unknown_queue")
		}
		pending, err := a.Queue().ListPending(c.UserContext(), name)
		if err != nil {
			logger.WithError(err).WithFields(logrus.Fields{"action": "list_pending", "queue": name}).Error("list_pending_failed")
			return writeError(c, fiber.StatusInternalServerError, "list_failed")
		}
		if pending == nil {
			pending = []queue.Mutation{}
		}
		return c.JSON(fiber.Map{"queue": name, "pending": pending})
	})
}
