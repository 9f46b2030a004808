package nfc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
)

func newBridge(t *testing.T, handler http.HandlerFunc) *HTTPReader {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHTTPReader(server.URL, time.Second, nil, nil)
}

func TestReadTagReturnsStudentCode(t *testing.T) {
	reader := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/read", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"data":{"tag_id":"04A1B2","student_code":" S001 ","reader_id":"ARDUINO_001"}}`))
	})

	result, err := reader.ReadTag(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "S001", result.StudentCode)
	assert.Equal(t, "ARDUINO_001", result.ReaderID)
	assert.False(t, result.ReadAt.IsZero())
}

func TestReadTagWithoutTagFails(t *testing.T) {
	reader := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"No card detected","data":null}`))
	})

	_, err := reader.ReadTag(context.Background())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrTagReadFailed))
	assert.Equal(t, "No card detected", appErrors.FromError(err).Message)
}

func TestReadTagServerErrorIsDeviceUnavailable(t *testing.T) {
	reader := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := reader.ReadTag(context.Background())
	assert.True(t, appErrors.Is(err, appErrors.ErrDeviceUnavailable))
}

func TestReadTagTimeoutIsDeviceUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()
	reader := NewHTTPReader(server.URL, 20*time.Millisecond, nil, nil)

	_, err := reader.ReadTag(context.Background())
	assert.True(t, appErrors.Is(err, appErrors.ErrDeviceUnavailable))
}

func TestUnconfiguredBridge(t *testing.T) {
	reader := NewHTTPReader("", 0, nil, nil)
	_, err := reader.TestConnection(context.Background())
	assert.True(t, appErrors.Is(err, appErrors.ErrDeviceUnavailable))
}

type recordingObserver struct {
	up    map[string]bool
	calls int
}

func (o *recordingObserver) ObserveExternalRequest(service, path string, ok bool, duration time.Duration) {
	o.calls++
}

func (o *recordingObserver) SetExternalServiceUp(service string, up bool) {
	if o.up == nil {
		o.up = map[string]bool{}
	}
	o.up[service] = up
}

func TestTestConnectionReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"message":"Arduino connected","data":{"connected":true,"port":"/dev/ttyUSB0","reader_id":"ARDUINO_001"}}`))
	}))
	defer server.Close()
	observer := &recordingObserver{}
	reader := NewHTTPReader(server.URL, time.Second, nil, observer)

	status, err := reader.TestConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, "/dev/ttyUSB0", status.Port)
	assert.Equal(t, "Arduino connected", status.Message)
	assert.True(t, observer.up["nfc"])
	assert.Equal(t, 1, observer.calls)
}

func TestWriteStudentDataSendsPayload(t *testing.T) {
	reader := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/write", r.URL.Path)
		var payload StudentTagPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "S001", payload.StudentCode)
		_, _ = w.Write([]byte(`{"success":true,"message":"Data written"}`))
	})

	status, err := reader.WriteStudentData(context.Background(), StudentTagPayload{StudentCode: "S001", FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, "Data written", status.Message)
}

func TestWriteStudentDataRejected(t *testing.T) {
	reader := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"Tag is read-only"}`))
	})

	_, err := reader.WriteStudentData(context.Background(), StudentTagPayload{StudentCode: "S001"})
	assert.True(t, appErrors.Is(err, appErrors.ErrTagReadFailed))
}
