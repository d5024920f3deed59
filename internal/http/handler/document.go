package handler

import (
	"path"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"instructapi/internal/http/middleware"
	"instructapi/internal/model"
	"instructapi/internal/service"
)

// withCaller resolves the identity stored by middleware.Identity.
func withCaller(fn func(c *fiber.Ctx, caller model.Caller) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, ok := middleware.CallerFromCtx(c)
		if !ok {
			return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "missing user identity")
		}
		return fn(c, caller)
	}
}

// withDocument resolves the caller and the :id route parameter.
func withDocument(fn func(c *fiber.Ctx, caller model.Caller, id int64) error) fiber.Handler {
	return withCaller(func(c *fiber.Ctx, caller model.Caller) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil || id <= 0 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		return fn(c, caller, id)
	})
}

// ListDocuments godoc
// @Summary List documents visible to the caller
// @Tags documents
// @Produce json
// @Param kind path string true "Document kind" Enums(master-instructions, master-equipment-activities)
// @Param limit query int false "Page size" default(10)
// @Param offset query int false "Page offset" default(0)
// @Router /{kind} [get]
func ListDocuments[C model.Content](svc service.DocumentService[C]) fiber.Handler {
	return withCaller(func(c *fiber.Ctx, caller model.Caller) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), caller, limit, offset)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	})
}

// ListApproved returns the approved products picker.
func ListApproved[C model.Content](svc service.DocumentService[C]) fiber.Handler {
	return withCaller(func(c *fiber.Ctx, _ model.Caller) error {
		items, err := svc.ListApproved(c.UserContext())
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(items)
	})
}

// CreateDocument accepts a JSON document, or multipart with the document in
// jsonData and an optional original_doc file.
func CreateDocument[C model.Content](svc service.DocumentService[C]) fiber.Handler {
	return withCaller(func(c *fiber.Ctx, caller model.Caller) error {
		in, closer, err := readDocumentInput[C](c)
		defer closer.Close()
		if err != nil {
			return writeBindError(c, err)
		}

		rec, err := svc.Create(c.UserContext(), caller, in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(rec)
	})
}

func GetDocument[C model.Content](svc service.DocumentService[C]) fiber.Handler {
	return withDocument(func(c *fiber.Ctx, caller model.Caller, id int64) error {
		rec, err := svc.Get(c.UserContext(), caller, id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(rec)
	})
}

func DocumentHistory[C model.Content](svc service.DocumentService[C]) fiber.Handler {
	return withDocument(func(c *fiber.Ctx, caller model.Caller, id int64) error {
		h, err := svc.History(c.UserContext(), caller, id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(h)
	})
}

// DocumentSource returns a short-lived download URL for the source document,
// or with ?download=true streams the document itself.
func DocumentSource[C model.Content](svc service.DocumentService[C]) fiber.Handler {
	return withDocument(func(c *fiber.Ctx, caller model.Caller, id int64) error {
		if c.QueryBool("download") {
			return streamSource(c, svc, caller, id)
		}
		u, err := svc.SourceURL(c.UserContext(), caller, id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"url": u})
	})
}

func streamSource[C model.Content](c *fiber.Ctx, svc service.DocumentService[C], caller model.Caller, id int64) error {
	rc, info, err := svc.OpenSource(c.UserContext(), caller, id)
	if err != nil {
		return writeServiceError(c, err)
	}
	c.Attachment(path.Base(info.Key))
	if info.ContentType != "" {
		c.Set(fiber.HeaderContentType, info.ContentType)
	}
	// fasthttp closes rc once the body is written.
	return c.SendStream(rc, int(info.Size))
}

func AssignWorkflow[C model.Content](svc service.DocumentService[C]) fiber.Handler {
	return withDocument(func(c *fiber.Ctx, caller model.Caller, id int64) error {
		var req assignWorkflowRequest
		if err := bindJSON(c, &req); err != nil {
			return writeBindError(c, err)
		}
		rec, err := svc.AssignWorkflow(c.UserContext(), caller, id, req.Reviewers, req.Approvers)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(rec)
	})
}

func SubmitReview[C model.Content](svc service.DocumentService[C]) fiber.Handler {
	return withDocument(func(c *fiber.Ctx, caller model.Caller, id int64) error {
		rec, err := svc.SubmitReview(c.UserContext(), caller, id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(rec)
	})
}

func Approve[C model.Content](svc service.DocumentService[C]) fiber.Handler {
	return withDocument(func(c *fiber.Ctx, caller model.Caller, id int64) error {
		rec, err := svc.Approve(c.UserContext(), caller, id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(rec)
	})
}

func Reject[C model.Content](svc service.DocumentService[C]) fiber.Handler {
	return withDocument(func(c *fiber.Ctx, caller model.Caller, id int64) error {
		var req rejectRequest
		if err := bindJSON(c, &req); err != nil {
			return writeBindError(c, err)
		}
		rec, err := svc.Reject(c.UserContext(), caller, id, req.Reason)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(rec)
	})
}

func AssignChangeWorkflow[C model.Content](svc service.DocumentService[C]) fiber.Handler {
	return withDocument(func(c *fiber.Ctx, caller model.Caller, id int64) error {
		rec, err := svc.AssignChangeWorkflow(c.UserContext(), caller, id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(rec)
	})
}

// UploadRevision takes the same payload as CreateDocument.
func UploadRevision[C model.Content](svc service.DocumentService[C]) fiber.Handler {
	return withDocument(func(c *fiber.Ctx, caller model.Caller, id int64) error {
		in, closer, err := readDocumentInput[C](c)
		defer closer.Close()
		if err != nil {
			return writeBindError(c, err)
		}

		rec, err := svc.UploadRevision(c.UserContext(), caller, id, in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(rec)
	})
}

func SaveNote[C model.Content](svc service.DocumentService[C]) fiber.Handler {
	return withDocument(func(c *fiber.Ctx, caller model.Caller, id int64) error {
		var req noteRequest
		if err := bindJSON(c, &req); err != nil {
			return writeBindError(c, err)
		}
		rec, err := svc.SaveNote(c.UserContext(), caller, id, req.Note)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(rec)
	})
}

func AddComment[C model.Content](svc service.DocumentService[C]) fiber.Handler {
	return withDocument(func(c *fiber.Ctx, caller model.Caller, id int64) error {
		var req commentRequest
		if err := bindJSON(c, &req); err != nil {
			return writeBindError(c, err)
		}
		rec, err := svc.AddComment(c.UserContext(), caller, id, req.Text)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(rec)
	})
}
