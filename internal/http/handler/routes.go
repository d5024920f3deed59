package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"

	"instructapi/internal/http/middleware"
	"instructapi/internal/model"
	"instructapi/internal/service"
)

// Route prefixes of the document kinds.
const (
	InstructionsPath        = "/master-instructions"
	EquipmentActivitiesPath = "/master-equipment-activities"
)

// RegisterRoutes attaches the health probes and both document APIs.
// Document routes require the gateway identity headers.
func RegisterRoutes(
	app *fiber.App,
	db *sql.DB,
	instructions service.DocumentService[model.InstructionContent],
	activities service.DocumentService[model.ActivityContent],
) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	RegisterDocumentRoutes(app.Group(InstructionsPath, middleware.Identity()), instructions)
	RegisterDocumentRoutes(app.Group(EquipmentActivitiesPath, middleware.Identity()), activities)
}

// RegisterDocumentRoutes mounts the workflow API of one document kind.
// The <int> constraint keeps literal segments such as /approved-products
// apart from document ids regardless of registration order.
func RegisterDocumentRoutes[C model.Content](r fiber.Router, svc service.DocumentService[C]) {
	r.Get("/", ListDocuments(svc))
	r.Post("/", CreateDocument(svc))
	r.Get("/approved-products", ListApproved(svc))

	r.Get("/:id<int>", GetDocument(svc))
	r.Get("/:id<int>/history", DocumentHistory(svc))
	r.Get("/:id<int>/source", DocumentSource(svc))
	r.Patch("/:id<int>/assign-workflow", AssignWorkflow(svc))
	r.Patch("/:id<int>/submit-review", SubmitReview(svc))
	r.Patch("/:id<int>/approve", Approve(svc))
	r.Patch("/:id<int>/reject", Reject(svc))
	r.Patch("/:id<int>/assign-change-workflow", AssignChangeWorkflow(svc))
	r.Post("/:id<int>/upload-revision", UploadRevision(svc))
	r.Patch("/:id<int>/save-note", SaveNote(svc))
	r.Post("/:id<int>/comments", AddComment(svc))
}
