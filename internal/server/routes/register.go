package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/agent"
)

// Register 注册全部 /-/ 路由。
func Register(app *fiber.App, a *agent.Agent, logger *logrus.Logger) {
	RegisterControlRoutes(app, a, logger)
	RegisterQueueRoutes(app, a, logger)
	RegisterEventRoutes(app, a, logger)
	RegisterDiagnosticsRoutes(app, a, logger)
}
