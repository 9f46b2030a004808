// Package nfc talks to the NFC reader bridge that fronts the gate hardware.
package nfc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
)

// Reader is the contract for an NFC reader.
type Reader interface {
	ReadTag(ctx context.Context) (*TagReadResult, error)
	TestConnection(ctx context.Context) (*DeviceStatus, error)
	WriteStudentData(ctx context.Context, payload StudentTagPayload) (*DeviceStatus, error)
}

// TagReadResult is a tag presented to the reader.
type TagReadResult struct {
	TagID       string    `json:"tag_id"`
	StudentCode string    `json:"student_code"`
	ReaderID    string    `json:"reader_id"`
	ReadAt      time.Time `json:"read_at"`
}

// DeviceStatus is the bridge's report on the reader hardware.
type DeviceStatus struct {
	Connected bool      `json:"connected"`
	ReaderID  string    `json:"reader_id,omitempty"`
	Port      string    `json:"port,omitempty"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// StudentTagPayload is written onto a blank tag.
type StudentTagPayload struct {
	StudentCode    string `json:"student_code" validate:"required,max=50"`
	FirstName      string `json:"first_name" validate:"required,max=50"`
	LastName       string `json:"last_name" validate:"required,max=50"`
	GradeLevel     string `json:"grade_level"`
	ClassID        string `json:"class_id"`
	EnrollmentDate string `json:"enrollment_date"`
}

// bridgeResponse is the envelope returned by every bridge endpoint.
type bridgeResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Observer receives per-call timings.
type Observer interface {
	ObserveExternalRequest(service, path string, ok bool, duration time.Duration)
	SetExternalServiceUp(service string, up bool)
}

// HTTPReader implements Reader against the bridge REST API.
type HTTPReader struct {
	baseURL  string
	client   *http.Client
	logger   *zap.Logger
	observer Observer
}

// NewHTTPReader constructs a bridge client. A non-positive timeout defaults to 5s.
func NewHTTPReader(baseURL string, timeout time.Duration, logger *zap.Logger, observer Observer) *HTTPReader {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPReader{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		observer: observer,
	}
}

// ReadTag waits for a tag on the reader. A reachable reader with no tag yields TAG_READ_FAILED.
func (r *HTTPReader) ReadTag(ctx context.Context) (*TagReadResult, error) {
	resp, err := r.call(ctx, http.MethodPost, "/read", nil)
	if err != nil {
		return nil, err
	}
	if !resp.Success || len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil, appErrors.Clone(appErrors.ErrTagReadFailed, messageOr(resp.Message, "no NFC tag detected"))
	}
	var result TagReadResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTagReadFailed.Code, appErrors.ErrTagReadFailed.Status, "unreadable tag payload")
	}
	result.StudentCode = strings.TrimSpace(result.StudentCode)
	if result.StudentCode == "" {
		return nil, appErrors.Clone(appErrors.ErrTagReadFailed, "tag does not carry a student code")
	}
	if result.ReadAt.IsZero() {
		result.ReadAt = time.Now().UTC()
	}
	return &result, nil
}

// TestConnection asks the bridge whether the reader hardware responds.
func (r *HTTPReader) TestConnection(ctx context.Context) (*DeviceStatus, error) {
	resp, err := r.call(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		if r.observer != nil {
			r.observer.SetExternalServiceUp("nfc", false)
		}
		return nil, err
	}
	status := DeviceStatus{Message: resp.Message}
	if len(resp.Data) > 0 && string(resp.Data) != "null" {
		if err := json.Unmarshal(resp.Data, &status); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrDeviceUnavailable.Code, appErrors.ErrDeviceUnavailable.Status, "unreadable device status")
		}
	}
	status.Connected = status.Connected || resp.Success
	status.CheckedAt = time.Now().UTC()
	if status.Message == "" {
		status.Message = resp.Message
	}
	if r.observer != nil {
		r.observer.SetExternalServiceUp("nfc", status.Connected)
	}
	return &status, nil
}

// WriteStudentData programs a tag with the student's details.
func (r *HTTPReader) WriteStudentData(ctx context.Context, payload StudentTagPayload) (*DeviceStatus, error) {
	resp, err := r.call(ctx, http.MethodPost, "/write", payload)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, appErrors.Clone(appErrors.ErrTagReadFailed, messageOr(resp.Message, "failed to write NFC tag"))
	}
	return &DeviceStatus{Connected: true, Message: messageOr(resp.Message, "tag written"), CheckedAt: time.Now().UTC()}, nil
}

func (r *HTTPReader) call(ctx context.Context, method, path string, body interface{}) (*bridgeResponse, error) {
	if r.baseURL == "" {
		return nil, appErrors.Clone(appErrors.ErrDeviceUnavailable, "NFC bridge URL not configured")
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode NFC payload")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDeviceUnavailable.Code, appErrors.ErrDeviceUnavailable.Status, "invalid NFC bridge request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		r.observe(path, false, duration)
		r.logger.Warn("nfc bridge unreachable", zap.String("path", path), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrDeviceUnavailable.Code, appErrors.ErrDeviceUnavailable.Status, appErrors.ErrDeviceUnavailable.Message)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		r.observe(path, false, duration)
		r.logger.Warn("nfc bridge error", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return nil, appErrors.Wrap(fmt.Errorf("received status %d", resp.StatusCode), appErrors.ErrDeviceUnavailable.Code, appErrors.ErrDeviceUnavailable.Status, appErrors.ErrDeviceUnavailable.Message)
	}

	var decoded bridgeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		r.observe(path, false, duration)
		return nil, appErrors.Wrap(err, appErrors.ErrDeviceUnavailable.Code, appErrors.ErrDeviceUnavailable.Status, "malformed NFC bridge response")
	}
	if resp.StatusCode >= http.StatusBadRequest && decoded.Success {
		decoded.Success = false
	}
	r.observe(path, true, duration)
	return &decoded, nil
}

func (r *HTTPReader) observe(path string, ok bool, duration time.Duration) {
	if r.observer != nil {
		r.observer.ObserveExternalRequest("nfc", path, ok, duration)
	}
}

func messageOr(message, fallback string) string {
	if strings.TrimSpace(message) == "" {
		return fallback
	}
	return message
}
