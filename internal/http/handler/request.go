package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"instructapi/internal/model"
	"instructapi/internal/service"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage renders the first failed rule as a client message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must contain at least %s entry", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag())
	}
}

type assignWorkflowRequest struct {
	Reviewers []model.Assignee `json:"reviewers" validate:"required,min=1,dive"`
	Approvers []model.Assignee `json:"approvers" validate:"required,min=1,dive"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type commentRequest struct {
	Text string `json:"text" validate:"required"`
}

// documentHeader holds the fields of a create or revision payload that are
// common to every kind. The kind specific content sits next to them at the
// top level of the same JSON object.
type documentHeader struct {
	ProductName string `json:"product_name" validate:"required"`
}

const (
	multipartDataField = "jsonData"
	multipartFileField = "original_doc"
)

var errEmptyBody = errors.New("request body is empty")

// readDocumentInput decodes a create or revision request. JSON bodies carry
// the document directly; multipart bodies carry it in the jsonData field
// with an optional original_doc file. The returned closer releases the file.
func readDocumentInput[C model.Content](c *fiber.Ctx) (service.DocumentInput[C], io.Closer, error) {
	var in service.DocumentInput[C]
	raw := c.Body()
	var closer io.Closer = io.NopCloser(nil)

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return in, closer, err
		}
		raw = nil
		if v := form.Value[multipartDataField]; len(v) > 0 {
			raw = []byte(v[0])
		}
		if files := form.File[multipartFileField]; len(files) > 0 {
			fh := files[0]
			f, err := fh.Open()
			if err != nil {
				return in, closer, err
			}
			closer = f
			ct := fh.Header.Get(fiber.HeaderContentType)
			if ct == "" {
				ct = fiber.MIMEOctetStream
			}
			in.Source = &service.Upload{Reader: f, Filename: fh.Filename, ContentType: ct, Size: fh.Size}
		}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return in, closer, errEmptyBody
	}
	var header documentHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return in, closer, err
	}
	if err := json.Unmarshal(raw, &in.Content); err != nil {
		return in, closer, err
	}
	if err := validate.Struct(header); err != nil {
		return in, closer, err
	}
	in.ProductName = header.ProductName
	return in, closer, nil
}

// bindJSON decodes and validates a JSON body into dst.
func bindJSON(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// writeBindError answers a request whose body could not be decoded or validated.
func writeBindError(c *fiber.Ctx, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return writeError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", validationMessage(err))
	}
	return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
}
