package httpapi

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/dopplertower/weather-agent/internal/agent"
	"github.com/dopplertower/weather-agent/internal/scheduler"
)

var validate = validator.New()

// Deps collects everything the handlers need.
type Deps struct {
	Registry *agent.Registry
	History  agent.HistoryStore
	Monitor  *scheduler.Monitor

	// DefaultDuration applies when a registration omits duration_hours.
	DefaultDuration time.Duration
}

// registerRequest is the JSON body for starting a monitoring session.
// Coordinates are pointers: zero is a legal coordinate, so presence has to be
// distinguished from the zero value.
type registerRequest struct {
	UserID        string   `json:"user_id" validate:"required"`
	Lat           *float64 `json:"lat" validate:"required"`
	Lon           *float64 `json:"lon" validate:"required"`
	DurationHours float64  `json:"duration_hours" validate:"omitempty,gt=0,lte=168"`
	Email         string   `json:"email" validate:"omitempty,email"`
	Prefs         *prefsIn `json:"preferences"`
}

// prefsIn lets a registration override individual notification defaults.
// Absent fields keep their default.
type prefsIn struct {
	Email             *bool  `json:"email"`
	Push              *bool  `json:"push"`
	LogFile           *bool  `json:"log_file"`
	SeverityThreshold string `json:"severity_threshold" validate:"omitempty,oneof=low medium high"`
}

func (p *prefsIn) apply(base agent.NotificationPrefs) agent.NotificationPrefs {
	if p == nil {
		return base
	}
	if p.Email != nil {
		base.Email = *p.Email
	}
	if p.Push != nil {
		base.Push = *p.Push
	}
	if p.LogFile != nil {
		base.LogFile = *p.LogFile
	}
	if p.SeverityThreshold != "" {
		base.SeverityThreshold = agent.Severity(p.SeverityThreshold)
	}
	return base
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	v1 := app.Group("/api/v1/agent")

	v1.Post("/register", func(c *fiber.Ctx) error {
		var req registerRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		duration := deps.DefaultDuration
		if req.DurationHours > 0 {
			duration = time.Duration(req.DurationHours * float64(time.Hour))
		}

		prefs := req.Prefs.apply(agent.DefaultPrefs(req.Email))

		reg, err := deps.Registry.Register(c.Context(), req.UserID, *req.Lat, *req.Lon, duration, req.Email, &prefs)
		if err != nil {
			switch {
			case errors.Is(err, agent.ErrInvalidCoordinates):
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			case errors.Is(err, agent.ErrBaselineFetch):
				return fiber.NewError(fiber.StatusBadGateway, "unable to fetch initial weather for location")
			default:
				return fiber.NewError(fiber.StatusInternalServerError, "registration failed")
			}
		}

		return c.JSON(fiber.Map{
			"status":           "monitoring",
			"user_id":          req.UserID,
			"location":         reg.Location,
			"monitoring_until": reg.MonitoringUntil,
			"preferences":      reg.Prefs,
		})
	})

	v1.Post("/stop", func(c *fiber.Ctx) error {
		var req struct {
			UserID string `json:"user_id" validate:"required"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if !deps.Registry.Unregister(c.Context(), req.UserID) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"status":  "not_found",
				"user_id": req.UserID,
			})
		}
		return c.JSON(fiber.Map{
			"status":  "stopped",
			"user_id": req.UserID,
		})
	})

	v1.Get("/status/:user_id", func(c *fiber.Ctx) error {
		userID := c.Params("user_id")

		status, err := deps.Registry.Status(userID)
		if err != nil {
			if errors.Is(err, agent.ErrNotMonitored) {
				// A status query for an unknown user is an answer, not an
				// error.
				return c.JSON(fiber.Map{
					"status":  "not_monitored",
					"user_id": userID,
				})
			}
			return fiber.NewError(fiber.StatusInternalServerError, "status lookup failed")
		}

		return c.JSON(fiber.Map{
			"status":           "active",
			"user_id":          userID,
			"location":         status.Location,
			"monitoring_until": status.MonitoringUntil,
			"last_check":       status.LastCheck,
			"alert_count":      status.AlertCount,
			"preferences":      status.Prefs,
		})
	})

	v1.Get("/history/:user_id", func(c *fiber.Ctx) error {
		userID := c.Params("user_id")
		limit := c.QueryInt("limit", 50)

		records, err := deps.History.Recent(c.Context(), userID, limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "history lookup failed")
		}
		if records == nil {
			records = []agent.HistoryRecord{}
		}

		return c.JSON(fiber.Map{
			"user_id": userID,
			"count":   len(records),
			"alerts":  records,
		})
	})

	// Service-level lifecycle of the polling loop itself.
	svc := v1.Group("/service")

	svc.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"running":          deps.Monitor.Running(),
			"active_sessions":  deps.Registry.ActiveCount(),
			"check_interval_s": deps.Monitor.Interval().Seconds(),
		})
	})

	svc.Post("/start", func(c *fiber.Ctx) error {
		if err := deps.Monitor.Start(); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to start monitoring")
		}
		return c.JSON(fiber.Map{"running": true})
	})

	svc.Post("/stop", func(c *fiber.Ctx) error {
		deps.Monitor.Stop()
		return c.JSON(fiber.Map{"running": false})
	})
}
