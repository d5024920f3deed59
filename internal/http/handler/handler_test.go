package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"instructapi/internal/http/middleware"
	"instructapi/internal/model"
	"instructapi/internal/service"
	serviceMocks "instructapi/internal/service/mocks"
	"instructapi/internal/storage"
	"instructapi/internal/workflow"
)

var (
	adminCaller    = model.Caller{UserID: "u-admin", DisplayName: "Ada", Role: model.RoleAdmin}
	reviewerCaller = model.Caller{UserID: "u-bob", DisplayName: "Bob", Role: model.RoleReviewer}
)

const instructionBody = `{"product_name":"Widget","instruction_name":{"en":"Mixing"},"instructions":[{"step":1,"text":{"en":"Stir"}}]}`

type testApp struct {
	app          *fiber.App
	instructions *serviceMocks.MockDocumentService[model.InstructionContent]
	activities   *serviceMocks.MockDocumentService[model.ActivityContent]
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ta := &testApp{
		app:          fiber.New(fiber.Config{ErrorHandler: ErrorHandler()}),
		instructions: new(serviceMocks.MockDocumentService[model.InstructionContent]),
		activities:   new(serviceMocks.MockDocumentService[model.ActivityContent]),
	}
	ta.app.Use(middleware.RequestID())
	RegisterRoutes(ta.app, nil, ta.instructions, ta.activities)
	t.Cleanup(func() {
		ta.instructions.AssertExpectations(t)
		ta.activities.AssertExpectations(t)
	})
	return ta
}

func (ta *testApp) do(t *testing.T, req *http.Request, caller *model.Caller) *http.Response {
	t.Helper()
	if caller != nil {
		req.Header.Set(middleware.UserIDHeader, caller.UserID)
		req.Header.Set(middleware.UserNameHeader, caller.DisplayName)
		req.Header.Set(middleware.UserRoleHeader, string(caller.Role))
	}
	resp, err := ta.app.Test(req)
	require.NoError(t, err)
	return resp
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListDocuments(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ta := newTestApp(t)
		res := &service.DocumentListResult[model.InstructionContent]{
			Items: []model.Instruction{{ID: 7, ProductName: "Widget"}},
			Total: 1,
		}
		ta.instructions.On("List", mock.Anything, reviewerCaller, 5, 10).Return(res, nil).Once()

		resp := ta.do(t, httptest.NewRequest(http.MethodGet, "/master-instructions?limit=5&offset=10", nil), &reviewerCaller)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Data  []model.Instruction `json:"data"`
			Total int                 `json:"total"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body.Data, 1)
		assert.Equal(t, int64(7), body.Data[0].ID)
		assert.Equal(t, 1, body.Total)
	})

	t.Run("defaults", func(t *testing.T) {
		ta := newTestApp(t)
		ta.activities.On("List", mock.Anything, adminCaller, 10, 0).
			Return(&service.DocumentListResult[model.ActivityContent]{}, nil).Once()

		resp := ta.do(t, httptest.NewRequest(http.MethodGet, "/master-equipment-activities", nil), &adminCaller)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("invalid limit", func(t *testing.T) {
		ta := newTestApp(t)
		resp := ta.do(t, httptest.NewRequest(http.MethodGet, "/master-instructions?limit=abc", nil), &adminCaller)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_LIMIT", decodeError(t, resp).Error.Code)
	})

	t.Run("invalid offset", func(t *testing.T) {
		ta := newTestApp(t)
		resp := ta.do(t, httptest.NewRequest(http.MethodGet, "/master-instructions?offset=x", nil), &adminCaller)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_OFFSET", decodeError(t, resp).Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		ta := newTestApp(t)
		ta.instructions.On("List", mock.Anything, adminCaller, 10, 0).Return(nil, errors.New("db down")).Once()

		resp := ta.do(t, httptest.NewRequest(http.MethodGet, "/master-instructions", nil), &adminCaller)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
		assert.NotEmpty(t, body.RequestID)
	})
}

func TestListApproved(t *testing.T) {
	ta := newTestApp(t)
	ta.instructions.On("ListApproved", mock.Anything).
		Return([]model.ProductSummary{{ID: 3, ProductName: "Widget"}}, nil).Once()

	resp := ta.do(t, httptest.NewRequest(http.MethodGet, "/master-instructions/approved-products", nil), &reviewerCaller)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var items []model.ProductSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	assert.Equal(t, []model.ProductSummary{{ID: 3, ProductName: "Widget"}}, items)
}

func TestCreateDocument(t *testing.T) {
	t.Run("json body", func(t *testing.T) {
		ta := newTestApp(t)
		match := mock.MatchedBy(func(in service.DocumentInput[model.InstructionContent]) bool {
			return in.ProductName == "Widget" &&
				in.Source == nil &&
				in.Content.InstructionName["en"] == "Mixing" &&
				len(in.Content.Instructions) == 1
		})
		ta.instructions.On("Create", mock.Anything, adminCaller, match).
			Return(&model.Instruction{ID: 1, ProductName: "Widget"}, nil).Once()

		resp := ta.do(t, jsonRequest(http.MethodPost, "/master-instructions", instructionBody), &adminCaller)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var rec model.Instruction
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
		assert.Equal(t, int64(1), rec.ID)
	})

	t.Run("multipart with source document", func(t *testing.T) {
		ta := newTestApp(t)
		body := &bytes.Buffer{}
		w := multipart.NewWriter(body)
		require.NoError(t, w.WriteField("jsonData", `{"product_name":"Press","activity_name":{"en":"Clean"},"activities":[{"step":1,"text":{"en":"Wipe"}}]}`))
		part, err := w.CreateFormFile("original_doc", "sop.pdf")
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		var uploaded []byte
		match := mock.MatchedBy(func(in service.DocumentInput[model.ActivityContent]) bool {
			if in.Source == nil || in.Source.Filename != "sop.pdf" || in.ProductName != "Press" {
				return false
			}
			if uploaded == nil {
				uploaded, _ = io.ReadAll(in.Source.Reader)
			}
			return true
		})
		ta.activities.On("Create", mock.Anything, adminCaller, match).
			Return(&model.EquipmentActivity{ID: 2, ProductName: "Press"}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/master-equipment-activities", body)
		req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
		resp := ta.do(t, req, &adminCaller)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "%PDF-1.4", string(uploaded))
	})

	t.Run("missing product name", func(t *testing.T) {
		ta := newTestApp(t)
		resp := ta.do(t, jsonRequest(http.MethodPost, "/master-instructions", `{"instructions":[]}`), &adminCaller)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
		assert.Equal(t, "product_name is required", body.Error.Message)
	})

	t.Run("empty body", func(t *testing.T) {
		ta := newTestApp(t)
		resp := ta.do(t, jsonRequest(http.MethodPost, "/master-instructions", ""), &adminCaller)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp).Error.Code)
	})

	t.Run("content rejected by service", func(t *testing.T) {
		ta := newTestApp(t)
		ta.instructions.On("Create", mock.Anything, adminCaller, mock.Anything).
			Return(nil, workflow.ValidationError("step numbers must be unique")).Once()

		resp := ta.do(t, jsonRequest(http.MethodPost, "/master-instructions", instructionBody), &adminCaller)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", decodeError(t, resp).Error.Code)
	})
}

func TestGetDocument(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ta := newTestApp(t)
		ta.instructions.On("Get", mock.Anything, reviewerCaller, int64(42)).
			Return(&model.Instruction{ID: 42}, nil).Once()

		resp := ta.do(t, httptest.NewRequest(http.MethodGet, "/master-instructions/42", nil), &reviewerCaller)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("not found", func(t *testing.T) {
		ta := newTestApp(t)
		ta.instructions.On("Get", mock.Anything, reviewerCaller, int64(42)).
			Return(nil, workflow.NotFoundError("document %d not found", 42)).Once()

		resp := ta.do(t, httptest.NewRequest(http.MethodGet, "/master-instructions/42", nil), &reviewerCaller)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	t.Run("non numeric id does not match", func(t *testing.T) {
		ta := newTestApp(t)
		resp := ta.do(t, httptest.NewRequest(http.MethodGet, "/master-instructions/abc", nil), &reviewerCaller)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("non positive id", func(t *testing.T) {
		ta := newTestApp(t)
		resp := ta.do(t, httptest.NewRequest(http.MethodGet, "/master-instructions/0", nil), &reviewerCaller)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_ID", decodeError(t, resp).Error.Code)
	})
}

func TestHistoryAndSource(t *testing.T) {
	ta := newTestApp(t)
	ta.instructions.On("History", mock.Anything, adminCaller, int64(5)).
		Return([]model.HistoryEntry{{Version: 1, DocPath: "master_instructions/a.pdf"}}, nil).Once()
	ta.instructions.On("SourceURL", mock.Anything, adminCaller, int64(5)).
		Return("http://minio/signed", nil).Once()

	resp := ta.do(t, httptest.NewRequest(http.MethodGet, "/master-instructions/5/history", nil), &adminCaller)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []model.HistoryEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Version)

	resp = ta.do(t, httptest.NewRequest(http.MethodGet, "/master-instructions/5/source", nil), &adminCaller)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "http://minio/signed", body["url"])
}

func TestDocumentSource_Download(t *testing.T) {
	t.Run("streams the document", func(t *testing.T) {
		ta := newTestApp(t)
		info := storage.ObjectInfo{Key: "master_instructions/5/v1.pdf", Size: 4, ContentType: "application/pdf"}
		ta.instructions.On("OpenSource", mock.Anything, adminCaller, int64(5)).
			Return(io.NopCloser(strings.NewReader("%PDF")), info, nil).Once()

		resp := ta.do(t, httptest.NewRequest(http.MethodGet, "/master-instructions/5/source?download=true", nil), &adminCaller)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/pdf", resp.Header.Get(fiber.HeaderContentType))
		assert.Equal(t, `attachment; filename="v1.pdf"`, resp.Header.Get(fiber.HeaderContentDisposition))
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "%PDF", string(body))
	})

	t.Run("hidden document", func(t *testing.T) {
		ta := newTestApp(t)
		ta.instructions.On("OpenSource", mock.Anything, reviewerCaller, int64(6)).
			Return(nil, storage.ObjectInfo{}, workflow.NotFoundError("document 6 not found")).Once()

		resp := ta.do(t, httptest.NewRequest(http.MethodGet, "/master-instructions/6/source?download=true", nil), &reviewerCaller)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestAssignWorkflow(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ta := newTestApp(t)
		reviewers := []model.Assignee{{UserID: "u-bob", Username: "Bob"}}
		approvers := []model.Assignee{{UserID: "u-carol", Username: "Carol"}}
		ta.instructions.On("AssignWorkflow", mock.Anything, adminCaller, int64(9), reviewers, approvers).
			Return(&model.Instruction{ID: 9}, nil).Once()

		req := jsonRequest(http.MethodPatch, "/master-instructions/9/assign-workflow",
			`{"reviewers":[{"user_id":"u-bob","username":"Bob"}],"approvers":[{"user_id":"u-carol","username":"Carol"}]}`)
		resp := ta.do(t, req, &adminCaller)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("empty approvers", func(t *testing.T) {
		ta := newTestApp(t)
		req := jsonRequest(http.MethodPatch, "/master-instructions/9/assign-workflow",
			`{"reviewers":[{"user_id":"u-bob"}],"approvers":[]}`)
		resp := ta.do(t, req, &adminCaller)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
		assert.Contains(t, body.Error.Message, "approvers")
	})

	t.Run("assignee without user id", func(t *testing.T) {
		ta := newTestApp(t)
		req := jsonRequest(http.MethodPatch, "/master-instructions/9/assign-workflow",
			`{"reviewers":[{"username":"Bob"}],"approvers":[{"user_id":"u-carol"}]}`)
		resp := ta.do(t, req, &adminCaller)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "user_id is required", decodeError(t, resp).Error.Message)
	})

	t.Run("approved document", func(t *testing.T) {
		ta := newTestApp(t)
		ta.instructions.On("AssignWorkflow", mock.Anything, adminCaller, int64(9), mock.Anything, mock.Anything).
			Return(nil, workflow.ConflictError("document is approved")).Once()

		req := jsonRequest(http.MethodPatch, "/master-instructions/9/assign-workflow",
			`{"reviewers":[{"user_id":"u-bob"}],"approvers":[{"user_id":"u-carol"}]}`)
		resp := ta.do(t, req, &adminCaller)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "CONFLICT", decodeError(t, resp).Error.Code)
	})
}

func TestReviewAndApprove(t *testing.T) {
	ta := newTestApp(t)
	ta.instructions.On("SubmitReview", mock.Anything, reviewerCaller, int64(3)).
		Return(&model.Instruction{ID: 3}, nil).Once()
	ta.instructions.On("Approve", mock.Anything, reviewerCaller, int64(3)).
		Return(nil, workflow.PermissionError("user is not an approver")).Once()

	resp := ta.do(t, httptest.NewRequest(http.MethodPatch, "/master-instructions/3/submit-review", nil), &reviewerCaller)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ta.do(t, httptest.NewRequest(http.MethodPatch, "/master-instructions/3/approve", nil), &reviewerCaller)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	body := decodeError(t, resp)
	assert.Equal(t, "FORBIDDEN", body.Error.Code)
	assert.Equal(t, "user is not an approver", body.Error.Message)
}

func TestReject(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ta := newTestApp(t)
		ta.instructions.On("Reject", mock.Anything, reviewerCaller, int64(3), "wrong torque").
			Return(&model.Instruction{ID: 3}, nil).Once()

		resp := ta.do(t, jsonRequest(http.MethodPatch, "/master-instructions/3/reject", `{"reason":"wrong torque"}`), &reviewerCaller)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("missing reason", func(t *testing.T) {
		ta := newTestApp(t)
		resp := ta.do(t, jsonRequest(http.MethodPatch, "/master-instructions/3/reject", `{}`), &reviewerCaller)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "reason is required", decodeError(t, resp).Error.Message)
	})

	t.Run("malformed body", func(t *testing.T) {
		ta := newTestApp(t)
		resp := ta.do(t, jsonRequest(http.MethodPatch, "/master-instructions/3/reject", `{"reason":`), &reviewerCaller)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp).Error.Code)
	})
}

func TestRevisionEndpoints(t *testing.T) {
	ta := newTestApp(t)
	ta.instructions.On("AssignChangeWorkflow", mock.Anything, adminCaller, int64(4)).
		Return(&model.Instruction{ID: 4}, nil).Once()
	ta.instructions.On("UploadRevision", mock.Anything, adminCaller, int64(4), mock.MatchedBy(func(in service.DocumentInput[model.InstructionContent]) bool {
		return in.ProductName == "Widget"
	})).Return(&model.Instruction{ID: 4}, nil).Once()
	ta.instructions.On("SaveNote", mock.Anything, adminCaller, int64(4), "check step 2").
		Return(&model.Instruction{ID: 4}, nil).Once()
	ta.instructions.On("AddComment", mock.Anything, adminCaller, int64(4), "looks good").
		Return(&model.Instruction{ID: 4}, nil).Once()

	resp := ta.do(t, httptest.NewRequest(http.MethodPatch, "/master-instructions/4/assign-change-workflow", nil), &adminCaller)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ta.do(t, jsonRequest(http.MethodPost, "/master-instructions/4/upload-revision", instructionBody), &adminCaller)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ta.do(t, jsonRequest(http.MethodPatch, "/master-instructions/4/save-note", `{"note":"check step 2"}`), &adminCaller)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ta.do(t, jsonRequest(http.MethodPost, "/master-instructions/4/comments", `{"text":"looks good"}`), &adminCaller)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestRouting(t *testing.T) {
	ta := newTestApp(t)

	t.Run("not found route", func(t *testing.T) {
		resp := ta.do(t, httptest.NewRequest(http.MethodGet, "/non-existent", nil), nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp := ta.do(t, httptest.NewRequest(http.MethodPost, "/healthz", nil), nil)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, resp).Error.Code)
	})

	t.Run("missing identity", func(t *testing.T) {
		resp := ta.do(t, httptest.NewRequest(http.MethodGet, "/master-instructions", nil), nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
		assert.Equal(t, "missing user identity", body.Error.Message)
	})

	t.Run("unknown role", func(t *testing.T) {
		stranger := model.Caller{UserID: "u-x", Role: "Janitor"}
		resp := ta.do(t, httptest.NewRequest(http.MethodGet, "/master-instructions", nil), &stranger)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
