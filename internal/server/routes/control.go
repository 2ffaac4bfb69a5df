package routes

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/Ramsey-USA/mh-website-sub005/internal/agent"
	"github.com/Ramsey-USA/mh-website-sub005/internal/control"
)

const keepaliveInterval = 15 * time.Second

// RegisterControlRoutes 暴露控制通道：GET /-/control/stream 以 SSE 下发消息，
// POST /-/control 接收页面消息。
func RegisterControlRoutes(app *fiber.App, a *agent.Agent, logger *logrus.Logger) {
	if app == nil || a == nil {
		return
	}

	app.Get("/-/control/stream", func(c fiber.Ctx) error {
		hub := a.Hub()
		client := hub.Connect(c.Query("url"))

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer hub.Disconnect(client.ID)
			err := streamMessages(w, client, keepaliveInterval)
			logger.WithFields(logrus.Fields{
				"action":    "control_stream",
				"client_id": client.ID,
				"reason":    fmt.Sprint(err),
			}).Debug("control_stream_closed")
		}))
		return nil
	})

	app.Post("/-/control", func(c fiber.Ctx) error {
		msg, err := control.ParseInbound(c.Body())
		if err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"action": "control_message",
				"bytes":  len(c.Body()),
			}).Warn("control_message_ignored")
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "ignored"})
		}
		out, err := a.Dispatch(c.UserContext(), agent.MessageEvent{Message: msg})
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "control_failed")
		}
		payload := fiber.Map{"status": "ok", "type": msg.Type}
		if out.Sync != nil {
			payload["processed"] = out.Sync.Processed
			payload["failed"] = out.Sync.Failed
		}
		if out.Manager != nil {
			payload["release"] = out.Manager.Release()
		}
		return c.JSON(payload)
	})
}

// streamMessages 以 SSE 格式写出消息，直到通道关闭或写入失败（客户端断开）。
func streamMessages(w *bufio.Writer, client *control.Client, keepalive time.Duration) error {
	hello, _ := json.Marshal(map[string]string{"id": client.ID})
	if err := writeEvent(w, "connected", hello); err != nil {
		return err
	}

	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-client.Messages():
			if !ok {
				return nil
			}
			if err := writeEvent(w, "", msg.Encode()); err != nil {
				return err
			}
		case <-ticker.C:
			if _, err := w.WriteString(": keepalive\n\n"); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}
	}
}

func writeEvent(w *bufio.Writer, event string, data []byte) error {
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}
