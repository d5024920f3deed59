package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instructapi/internal/model"
)

func TestEngine_Archive(t *testing.T) {
	e := newTestEngine()

	t.Run("no source document is a no-op", func(t *testing.T) {
		s := model.NewWorkflowState("creator", "")
		assert.False(t, e.Archive(&s))
		assert.Empty(t, s.History)
	})

	t.Run("snapshots rejection and comments", func(t *testing.T) {
		s := underReview(t, e, []model.Caller{alice}, []model.Caller{carol})
		require.NoError(t, e.AddComment(s, alice, "step 2 unclear"))
		require.NoError(t, e.Reject(s, alice, "unclear"))

		assert.True(t, e.Archive(s))
		require.Len(t, s.History, 1)
		h := s.History[0]
		assert.Equal(t, 1, h.Version)
		assert.Equal(t, "instructions/v1.docx", h.DocPath)
		assert.Equal(t, fixedNow, h.ArchivedAt)
		require.NotNil(t, h.RejectionInfo)
		assert.Equal(t, "unclear", h.RejectionInfo.Reason)
		assert.Len(t, h.Comments, 1)

		// the snapshot does not alias live state
		s.RejectionInfo.Reason = "changed"
		s.Comments[0].Text = "changed"
		assert.Equal(t, "unclear", s.History[0].RejectionInfo.Reason)
		assert.Equal(t, "step 2 unclear", s.History[0].Comments[0].Text)

		// status and version untouched
		assert.Equal(t, model.StatusCreated, s.Status)
		assert.Equal(t, 1, s.Version)
	})
}

func TestEngine_Revise(t *testing.T) {
	t.Run("version monotonic with one entry per revision", func(t *testing.T) {
		e := newTestEngine()
		s := model.NewWorkflowState("creator", "instructions/v1.docx")

		versions := []int{s.Version}
		for i, path := range []string{"instructions/v2.docx", "", "instructions/v4.docx"} {
			require.NoError(t, e.Revise(&s, path))
			assert.Len(t, s.History, i+1)
			versions = append(versions, s.Version)
		}
		for i := 1; i < len(versions); i++ {
			assert.Greater(t, versions[i], versions[i-1])
		}
		assert.Equal(t, "instructions/v4.docx", s.OriginalDocPath)
		// the revision without a new file re-archives the previous path
		assert.Equal(t, "instructions/v2.docx", s.History[2].DocPath)
	})

	t.Run("first upload has nothing to archive", func(t *testing.T) {
		e := newTestEngine()
		s := model.NewWorkflowState("creator", "")
		require.NoError(t, e.Revise(&s, "instructions/v2.docx"))
		assert.Empty(t, s.History)
		assert.Equal(t, 2, s.Version)
	})

	t.Run("resets workflow fields", func(t *testing.T) {
		e := newTestEngine()
		s := underReview(t, e, []model.Caller{alice}, []model.Caller{carol})
		require.NoError(t, e.Reject(s, carol, "wrong batch size"))
		e.SaveNote(s, "note")

		require.NoError(t, e.Revise(s, "instructions/v2.docx"))
		assert.Equal(t, model.StatusCreated, s.Status)
		assert.Nil(t, s.RejectionInfo)
		assert.Empty(t, s.ReviewNote)
		assert.Empty(t, s.Comments)
		assert.Empty(t, s.Reviewers)
		assert.Empty(t, s.Approvers)
	})

	t.Run("blocked during review by default", func(t *testing.T) {
		e := newTestEngine()
		s := underReview(t, e, []model.Caller{alice}, []model.Caller{carol})

		err := e.Revise(s, "instructions/v2.docx")
		assert.True(t, errors.Is(err, ErrConflict))
		assert.Equal(t, 1, s.Version)
		assert.Empty(t, s.History)
	})

	t.Run("allowed during review by policy", func(t *testing.T) {
		e := newTestEngine(WithPolicy(Policy{AllowRevisionDuringReview: true}))
		s := underReview(t, e, []model.Caller{alice}, []model.Caller{carol})
		require.NoError(t, e.SubmitReview(s, alice.UserID))

		require.NoError(t, e.Revise(s, "instructions/v2.docx"))
		assert.Equal(t, 2, s.Version)
		assert.Equal(t, model.StatusCreated, s.Status)
	})
}
