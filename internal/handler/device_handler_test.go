package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-attendance-api/internal/nfc"
	"github.com/noah-isme/school-attendance-api/internal/service"
	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
)

type deviceServiceMock struct {
	req   service.WriteTagRequest
	actor string
	err   error
}

func (m *deviceServiceMock) Status(ctx context.Context) *nfc.DeviceStatus {
	return &nfc.DeviceStatus{Connected: true, ReaderID: "gate-1"}
}

func (m *deviceServiceMock) WriteTag(ctx context.Context, req service.WriteTagRequest, actorID string) (*nfc.DeviceStatus, error) {
	m.req = req
	m.actor = actorID
	if m.err != nil {
		return nil, m.err
	}
	return &nfc.DeviceStatus{Connected: true, Message: "tag written"}, nil
}

func TestDeviceHandlerStatus(t *testing.T) {
	h := NewDeviceHandler(&deviceServiceMock{})
	c, w := newGinContext(http.MethodGet, "/devices/nfc/status", nil)
	h.Status(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gate-1")
}

func TestDeviceHandlerWriteTag(t *testing.T) {
	svc := &deviceServiceMock{}
	h := NewDeviceHandler(svc)
	c, w := newGinContext(http.MethodPost, "/devices/nfc/write", []byte(`{"student_id":"stu-1"}`))
	withStaff(c)
	h.WriteTag(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-1", svc.req.StudentID)
	assert.Equal(t, "teacher-1", svc.actor)
}

func TestDeviceHandlerWriteTagUnavailable(t *testing.T) {
	h := NewDeviceHandler(&deviceServiceMock{err: appErrors.ErrDeviceUnavailable})
	c, w := newGinContext(http.MethodPost, "/devices/nfc/write", []byte(`{"student_id":"stu-1"}`))
	withStaff(c)
	h.WriteTag(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
