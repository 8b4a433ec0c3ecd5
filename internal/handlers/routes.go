package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reportdesk/internal/middleware"
	"github.com/localnerve/reportdesk/internal/models"
)

// Register mounts the API on router, normally the /api group
func Register(router fiber.Router, d Deps) {
	auth := &AuthHandler{Deps: d}
	reports := &ReportHandler{Deps: d}
	agentH := &AgentHandler{Deps: d}
	exports := &ExportHandler{Deps: d, Reports: reports}
	admin := &AdminHandler{Deps: d}
	confirmations := &ConfirmHandler{Deps: d}
	events := &EventsHandler{Deps: d}

	reviewers := middleware.RequireRoles(models.RoleReviewer, models.RoleAdmin)
	admins := middleware.RequireRoles(models.RoleAdmin)
	session := middleware.RequireSession()

	router.Use(middleware.Authenticate(d.Auth))

	// Auth routes (public)
	authGroup := router.Group("/auth")
	authGroup.Post("/login", auth.Login)
	authGroup.Post("/logout", auth.Logout)
	authGroup.Get("/session", auth.Session)
	authGroup.Post("/forgot-password", auth.ForgotPassword)
	authGroup.Post("/reset-password", auth.ResetPassword)

	router.Get("/routes/resolve", auth.ResolveRoute)

	// Report routes; reviews need reviewer or admin
	reportGroup := router.Group("/reports", session)
	reportGroup.Get("/", reports.List)
	reportGroup.Get("/export.xlsx", reports.ExportXLSX)
	reportGroup.Get("/:id", reports.Get)
	reportGroup.Post("/:id/domains/:domainId/approve", reviewers, reports.ApproveDomain)
	reportGroup.Post("/:id/domains/:domainId/reject", reviewers, reports.RejectDomain)
	reportGroup.Post("/:id/approve", reviewers, reports.ApproveAll)
	reportGroup.Post("/:id/reject", reviewers, reports.RejectAll)

	// Agent routes
	router.Get("/agents", session, agentH.List)
	router.Post("/agents/:id/upload", session, agentH.Upload)
	router.Post("/bug-reports", session, agentH.BugReport)

	// Export routes
	router.Post("/exports/agents.pdf", session, exports.AgentsPDF)
	router.Post("/exports/domains.pdf", session, exports.DomainsPDF)

	// Admin routes
	adminGroup := router.Group("/admin", admins)
	adminGroup.Get("/users", admin.ListUsers)
	adminGroup.Post("/users", admin.CreateUser)
	adminGroup.Put("/users/:id", admin.UpdateUser)
	adminGroup.Delete("/users/:id", admin.DeleteUser)
	adminGroup.Delete("/users/:id/sites/:siteId", admin.RemoveSiteAssignment)
	adminGroup.Get("/sites", admin.ListSites)
	adminGroup.Post("/sites", admin.CreateSite)
	adminGroup.Get("/stats", admin.Stats)

	// Pending action confirmations
	router.Post("/confirmations/:token", session, confirmations.Accept)
	router.Delete("/confirmations/:token", session, confirmations.Cancel)

	router.Get("/events", session, events.Stream)
}
