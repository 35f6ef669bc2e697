package services

import (
	"fmt"
	"os"
	"strconv"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"github.com/zawadi-market/guard_api/services/handlers"
	"github.com/zawadi-market/guard_api/shared"
)

type HttpService struct {
	context.DefaultService

	trapSvc  *TrapService
	rateSvc  *RateLimitService
	abuseSvc *AbuseService
	pgSvc    *PostgresService

	port   int
	server *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *context.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.trapSvc = svc.Service(TRAP_SVC).(*TrapService)
	svc.rateSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.abuseSvc = svc.Service(ABUSE_SVC).(*AbuseService)
	svc.pgSvc = svc.Service(POSTGRES_SVC).(*PostgresService)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.WithError(err).WithField("path", c.Path()).Error("Unhandled request error")
			return shared.ResponseInternalError(c, err)
		},
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	// Fast-path reject first, then the country-aware observer / ban gate
	app.Use(svc.rateSvc.Limit(shared.LimiterDefault))
	app.Use(svc.abuseSvc.Guard())

	app.Get("/ping", svc.ping)

	formHandler := handlers.NewFormHandler(svc.trapSvc, svc.abuseSvc)
	hookHandler := handlers.NewHookHandler(svc.abuseSvc)
	abuseHandler := handlers.NewAbuseHandler(svc.abuseSvc, svc.rateSvc, svc.pgSvc)

	v1 := app.Group("/api/v1")

	v1.Get("/form/token", formHandler.GetTrapToken)
	v1.Post("/bookings", svc.rateSvc.Limit(shared.LimiterBooking), formHandler.CreateBooking)
	v1.Post("/webhooks/paypal", hookHandler.HandlePaypalWebhook)

	admin := v1.Group("/admin")
	admin.Get("/abuse/stats", abuseHandler.GetStats)
	admin.Get("/abuse/limits", abuseHandler.GetRateLimits)
	admin.Get("/abuse/incidents", abuseHandler.ListIncidents)
	admin.Get("/abuse/bans/:ip", abuseHandler.GetBanStatus)
	admin.Delete("/abuse/bans/:ip", abuseHandler.Unban)

	svc.server = app

	log.Printf("HTTP server listening on :%d", svc.port)
	return app.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set("Cache-Control", "max-age=10")

	return shared.ResponseOK(c, "pong")
}
