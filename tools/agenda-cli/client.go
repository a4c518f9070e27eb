package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type apiClient struct {
	cfg  *Config
	http *http.Client
}

func newAPIClient(cfg *Config) *apiClient {
	return &apiClient{cfg: cfg, http: &http.Client{Timeout: 10 * time.Second}}
}

type dayEntry struct {
	Key   string `json:"key"`
	Color string `json:"color"`
	Hex   string `json:"hex"`
}

type dayIndicator struct {
	Entries  []dayEntry `json:"entries"`
	HasMore  bool       `json:"has_more"`
	Selected bool       `json:"selected"`
}

type calendarReply struct {
	Days map[string]dayIndicator `json:"days"`
}

type appointmentReply struct {
	AppointmentID string `json:"appointment_id"`
	Title         string `json:"title"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Specialty     string `json:"specialty"`
	Description   string `json:"description"`
	Transport     bool   `json:"transport"`
	Active        bool   `json:"active"`
}

type catalogEntry struct {
	SpecialtyID    string `json:"specialty_id"`
	ProcedureID    string `json:"procedure_id"`
	ProfessionalID string `json:"professional_id"`
	Name           string `json:"name"`
}

func (c *apiClient) calendar(selected string) (calendarReply, error) {
	u := c.cfg.ConsoleURL + "/api/v1/calendar"
	if selected != "" {
		u += "?selected=" + selected
	}
	var reply calendarReply
	return reply, c.getJSON(u, &reply)
}

func (c *apiClient) day(date string) ([]appointmentReply, error) {
	var items []appointmentReply
	err := c.getJSON(c.cfg.ConsoleURL+"/api/v1/day?date="+date, &items)
	return items, err
}

func (c *apiClient) catalog(kind, specialtyID string) ([]catalogEntry, error) {
	u := c.cfg.AgendaURL + "/api/v1/catalog/" + kind
	if specialtyID != "" {
		u += "?specialty_id=" + specialtyID
	}
	var items []catalogEntry
	err := c.getJSON(u, &items)
	return items, err
}

func (c *apiClient) book(body map[string]any) (map[string]any, error) {
	var reply map[string]any
	return reply, c.postJSON(c.cfg.AgendaURL+"/api/v1/agenda", body, &reply)
}

func (c *apiClient) cancel(appointmentID string) error {
	return c.postJSON(c.cfg.AgendaURL+"/api/v1/agenda/cancel",
		map[string]any{"appointment_id": appointmentID}, nil)
}

func (c *apiClient) getJSON(url string, out any) error {
	resp, err := c.http.Get(url)
	if err != nil {
		return err
	}
	return decodeReply(resp, out)
}

func (c *apiClient) postJSON(url string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Staff-Id", c.cfg.StaffID)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	return decodeReply(resp, out)
}

func decodeReply(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
