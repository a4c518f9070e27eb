package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

var (
	dayStyle      = lipgloss.NewStyle().Bold(true)
	selectedStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	overflowStyle = lipgloss.NewStyle().Faint(true)
	cancelStyle   = lipgloss.NewStyle().Strikethrough(true).Faint(true)
)

type cliContext struct {
	api *apiClient
}

type MonthCmd struct {
	Selected string `help:"Day to highlight (YYYY-MM-DD)." optional:""`
}

func (c *MonthCmd) Run(ctx *cliContext) error {
	reply, err := ctx.api.calendar(c.Selected)
	if err != nil {
		return err
	}
	if len(reply.Days) == 0 {
		fmt.Println("no appointments")
		return nil
	}

	days := make([]string, 0, len(reply.Days))
	for day := range reply.Days {
		days = append(days, day)
	}
	sort.Strings(days)

	for _, day := range days {
		ind := reply.Days[day]
		label := dayStyle.Render(day)
		if ind.Selected {
			label = selectedStyle.Render(day)
		}

		var dots strings.Builder
		for _, e := range ind.Entries {
			dots.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(e.Hex)).Render("●"))
			dots.WriteString(" ")
		}
		line := fmt.Sprintf("%s  %s", label, dots.String())
		if ind.HasMore {
			line += overflowStyle.Render("…")
		}
		fmt.Println(line)
	}
	return nil
}

type DayCmd struct {
	Date string `arg:"" help:"Day to show (YYYY-MM-DD or 'today')." default:"today"`
}

func (c *DayCmd) Run(ctx *cliContext) error {
	date := c.Date
	if date == "today" {
		date = time.Now().Format("2006-01-02")
	}
	items, err := ctx.api.day(date)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Printf("no appointments on %s\n", date)
		return nil
	}

	for _, a := range items {
		start, _ := time.Parse(time.RFC3339, a.StartTime)
		end, _ := time.Parse(time.RFC3339, a.EndTime)
		line := fmt.Sprintf("%s-%s  %s  (%s)  %s",
			start.Format("15:04"), end.Format("15:04"), a.Title, a.Specialty, a.AppointmentID)
		if !a.Active {
			line = cancelStyle.Render(line)
		}
		fmt.Println(line)
		if a.Description != "" {
			fmt.Printf("            %s\n", a.Description)
		}
	}
	return nil
}

type CatalogCmd struct {
	Kind      string `arg:"" enum:"specialties,procedures,professionals" help:"Catalog to list."`
	Specialty string `help:"Specialty id to scope procedures or professionals." optional:""`
}

func (c *CatalogCmd) Run(ctx *cliContext) error {
	if c.Kind != "specialties" && c.Specialty == "" {
		return fmt.Errorf("--specialty is required for %s", c.Kind)
	}
	items, err := ctx.api.catalog(c.Kind, c.Specialty)
	if err != nil {
		return err
	}
	for _, item := range items {
		id := item.SpecialtyID
		if item.ProcedureID != "" {
			id = item.ProcedureID
		}
		if item.ProfessionalID != "" {
			id = item.ProfessionalID
		}
		fmt.Printf("%-24s %s\n", id, item.Name)
	}
	return nil
}

type BookCmd struct {
	Start        string `help:"Start instant (RFC 3339)." required:""`
	End          string `help:"End instant (RFC 3339)." required:""`
	Specialty    string `help:"Specialty id." required:""`
	Procedure    string `help:"Procedure id." required:""`
	Professional string `help:"Professional id." required:""`
	Description  string `help:"Free-form note." optional:""`
	Transport    bool   `help:"Clinic transport needed."`
}

func (c *BookCmd) Run(ctx *cliContext) error {
	reply, err := ctx.api.book(map[string]any{
		"start_time":      c.Start,
		"end_time":        c.End,
		"specialty_id":    c.Specialty,
		"procedure_id":    c.Procedure,
		"professional_id": c.Professional,
		"description":     c.Description,
		"transport":       c.Transport,
	})
	if err != nil {
		return err
	}
	fmt.Printf("booked %v\n", reply["appointment_id"])
	return nil
}

type CancelCmd struct {
	ID string `arg:"" help:"Appointment id to cancel."`
}

func (c *CancelCmd) Run(ctx *cliContext) error {
	if err := ctx.api.cancel(c.ID); err != nil {
		return err
	}
	fmt.Printf("cancelled %s\n", c.ID)
	return nil
}

var CLI struct {
	Config string `help:"Config file path." type:"path" default:"~/.config/agenda/agenda.yaml"`

	Month   MonthCmd   `cmd:"" help:"Show the calendar with per-day specialty markers." default:"1"`
	Day     DayCmd     `cmd:"" help:"List one day's appointments."`
	Catalog CatalogCmd `cmd:"" help:"List catalog entries."`
	Book    BookCmd    `cmd:"" help:"Book an appointment directly against the store."`
	Cancel  CancelCmd  `cmd:"" help:"Cancel an appointment."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("agenda"),
		kong.Description("Clinic agenda console for the terminal"),
		kong.UsageOnError(),
	)

	path := CLI.Config
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	cfg, err := loadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := ctx.Run(&cliContext{api: newAPIClient(cfg)}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
