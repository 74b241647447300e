package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lessonbook-api/internal/models"
	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
)

type ledgerServiceMock struct {
	studentID string
	err       error
}

func (m *ledgerServiceMock) History(ctx context.Context, actor *models.JWTClaims, studentID string) ([]models.LedgerEntry, error) {
	m.studentID = studentID
	if m.err != nil {
		return nil, m.err
	}
	return []models.LedgerEntry{{Seq: 1, Memo: models.MemoPurchaseCredit}, {Seq: 2, Memo: models.MemoLessonRegistration}}, nil
}

func (m *ledgerServiceMock) Verify(ctx context.Context, actor *models.JWTClaims, studentID string) (*models.LedgerVerification, error) {
	return &models.LedgerVerification{StudentID: studentID, Consistent: true, ChainIntact: true}, nil
}

func TestLedgerHandlerHistory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &ledgerServiceMock{}
	h := NewLedgerHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/students/s1/ledger", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	withActor(c, "s1", models.RoleStudent)
	h.History(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", mockSvc.studentID)
	assert.Equal(t, float64(2), decodeEnvelope(t, w).Meta["count"])

	mockSvc.err = appErrors.Clone(appErrors.ErrForbidden, "")
	c, w = newGinContext(http.MethodGet, "/students/s1/ledger", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	withActor(c, "s2", models.RoleStudent)
	h.History(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestLedgerHandlerVerify(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewLedgerHandler(&ledgerServiceMock{})

	c, w := newGinContext(http.MethodGet, "/students/s1/ledger/verify", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	withActor(c, "s1", models.RoleStudent)
	h.Verify(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"consistent":true`)
}
