package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tapiocalabs/clinagenda/services/console-service/internal/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// StatusError is a non-2xx reply from the agenda store.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agenda store replied %d: %s", e.Code, e.Body)
}

// Client maps the engine's domain model onto the agenda-service JSON
// contract. Every instant decoded from the wire is converted into the
// configured display zone, so the rest of the engine never sees mixed zones;
// instants are sent as RFC 3339 UTC.
type Client struct {
	baseURL string
	http    *http.Client
	zone    *time.Location
}

func NewClient(baseURL string, zone *time.Location) *Client {
	if zone == nil {
		zone = time.UTC
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		zone: zone,
	}
}

type specialtyDTO struct {
	SpecialtyID string `json:"specialty_id"`
	Name        string `json:"name"`
}

type procedureDTO struct {
	ProcedureID string `json:"procedure_id"`
	Name        string `json:"name"`
	SpecialtyID string `json:"specialty_id"`
}

type professionalDTO struct {
	ProfessionalID string `json:"professional_id"`
	Name           string `json:"name"`
	SpecialtyID    string `json:"specialty_id"`
}

type appointmentDTO struct {
	AppointmentID string          `json:"appointment_id"`
	StartTime     string          `json:"start_time"`
	EndTime       string          `json:"end_time"`
	Description   string          `json:"description"`
	Transport     bool            `json:"transport"`
	Active        bool            `json:"active"`
	CancelledAt   string          `json:"cancelled_at,omitempty"`
	Specialty     specialtyDTO    `json:"specialty"`
	Procedure     procedureDTO    `json:"procedure"`
	Professional  professionalDTO `json:"professional"`
}

type appointmentRequest struct {
	AppointmentID  string `json:"appointment_id,omitempty"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	SpecialtyID    string `json:"specialty_id"`
	ProcedureID    string `json:"procedure_id"`
	ProfessionalID string `json:"professional_id"`
	Description    string `json:"description"`
	Transport      bool   `json:"transport"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type cancelResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at"`
}

func (c *Client) ListAppointments(ctx context.Context) ([]model.Appointment, error) {
	var items []appointmentDTO
	if err := c.get(ctx, "/api/v1/agenda", nil, &items); err != nil {
		return nil, err
	}
	appts := make([]model.Appointment, 0, len(items))
	for _, item := range items {
		a, err := c.toAppointment(item)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	return appts, nil
}

func (c *Client) CreateAppointment(ctx context.Context, d model.Draft) (model.Appointment, error) {
	var item appointmentDTO
	if err := c.post(ctx, "/api/v1/agenda", c.toRequest(d), &item); err != nil {
		return model.Appointment{}, err
	}
	return c.toAppointment(item)
}

func (c *Client) UpdateAppointment(ctx context.Context, d model.Draft) (model.Appointment, error) {
	var item appointmentDTO
	if err := c.post(ctx, "/api/v1/agenda/update", c.toRequest(d), &item); err != nil {
		return model.Appointment{}, err
	}
	return c.toAppointment(item)
}

func (c *Client) CancelAppointment(ctx context.Context, id string) (time.Time, error) {
	var resp cancelResponse
	if err := c.post(ctx, "/api/v1/agenda/cancel", cancelRequest{AppointmentID: id}, &resp); err != nil {
		return time.Time{}, err
	}
	return c.parseInstant(resp.CancelledAt)
}

func (c *Client) Specialties(ctx context.Context) ([]model.Specialty, error) {
	var items []specialtyDTO
	if err := c.get(ctx, "/api/v1/catalog/specialties", nil, &items); err != nil {
		return nil, err
	}
	out := make([]model.Specialty, 0, len(items))
	for _, item := range items {
		out = append(out, model.Specialty{ID: item.SpecialtyID, Name: item.Name})
	}
	return out, nil
}

func (c *Client) ProceduresBySpecialty(ctx context.Context, specialtyID string) ([]model.Procedure, error) {
	q := url.Values{"specialty_id": {specialtyID}}
	var items []procedureDTO
	if err := c.get(ctx, "/api/v1/catalog/procedures", q, &items); err != nil {
		return nil, err
	}
	out := make([]model.Procedure, 0, len(items))
	for _, item := range items {
		out = append(out, model.Procedure{ID: item.ProcedureID, Name: item.Name, SpecialtyID: item.SpecialtyID})
	}
	return out, nil
}

func (c *Client) ProfessionalsBySpecialty(ctx context.Context, specialtyID string) ([]model.Professional, error) {
	q := url.Values{"specialty_id": {specialtyID}}
	var items []professionalDTO
	if err := c.get(ctx, "/api/v1/catalog/professionals", q, &items); err != nil {
		return nil, err
	}
	out := make([]model.Professional, 0, len(items))
	for _, item := range items {
		out = append(out, model.Professional{ID: item.ProfessionalID, Name: item.Name, SpecialtyID: item.SpecialtyID})
	}
	return out, nil
}

func (c *Client) toRequest(d model.Draft) appointmentRequest {
	return appointmentRequest{
		AppointmentID:  d.ID,
		StartTime:      d.Start.UTC().Format(time.RFC3339),
		EndTime:        d.End.UTC().Format(time.RFC3339),
		SpecialtyID:    d.SpecialtyID,
		ProcedureID:    d.ProcedureID,
		ProfessionalID: d.ProfessionalID,
		Description:    d.Description,
		Transport:      d.Transport,
	}
}

func (c *Client) toAppointment(item appointmentDTO) (model.Appointment, error) {
	start, err := c.parseInstant(item.StartTime)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := c.parseInstant(item.EndTime)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("end_time: %w", err)
	}
	a := model.Appointment{
		ID:          item.AppointmentID,
		Start:       start,
		End:         end,
		Description: item.Description,
		Transport:   item.Transport,
		Active:      item.Active,
		Specialty:   model.Specialty{ID: item.Specialty.SpecialtyID, Name: item.Specialty.Name},
		Procedure: model.Procedure{
			ID:          item.Procedure.ProcedureID,
			Name:        item.Procedure.Name,
			SpecialtyID: item.Procedure.SpecialtyID,
		},
		Professional: model.Professional{
			ID:          item.Professional.ProfessionalID,
			Name:        item.Professional.Name,
			SpecialtyID: item.Professional.SpecialtyID,
		},
	}
	if item.CancelledAt != "" {
		t, err := c.parseInstant(item.CancelledAt)
		if err != nil {
			return model.Appointment{}, fmt.Errorf("cancelled_at: %w", err)
		}
		a.CancelledAt = &t
	}
	return a, nil
}

func (c *Client) parseInstant(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(c.zone), nil
}

// ReadyCheck probes the store's health endpoint.
func (c *Client) ReadyCheck() func(context.Context) error {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
		if err != nil {
			return err
		}
		return c.do(req, nil)
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
