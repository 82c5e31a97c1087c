package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

// Output formats.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func validateFormat(f string) error {
	switch f {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", f)
	}
}

// render writes v as JSON or YAML, or calls text for the default format.
func render(cmd *cobra.Command, v any, text func(w io.Writer, st styles)) error {
	out := cmd.OutOrStdout()
	switch outputFormat {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(out, newStyles(out))
		return nil
	}
}

// styles colour text output. Zero styles leave text untouched.
type styles struct {
	colour  bool
	title   lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
}

func newStyles(w io.Writer) styles {
	if !isTerminal(w) {
		return styles{}
	}
	r := lipgloss.NewRenderer(w)
	return styles{
		colour:  true,
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#6C7086")),
		success: r.NewStyle().Foreground(lipgloss.Color("#A6E3A1")),
		warning: r.NewStyle().Foreground(lipgloss.Color("#F9E2AF")),
		failure: r.NewStyle().Foreground(lipgloss.Color("#F38BA8")),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (s styles) paint(style lipgloss.Style, text string) string {
	if !s.colour {
		return text
	}
	return style.Render(text)
}

func (s styles) heading(text string) string {
	return s.paint(s.title, text)
}

func (s styles) status(st domain.JobStatus) string {
	switch st {
	case domain.JobCompleted:
		return s.paint(s.success, string(st))
	case domain.JobFailedRetryable, domain.JobCancelled:
		return s.paint(s.warning, string(st))
	case domain.JobDeadLetter:
		return s.paint(s.failure, string(st))
	default:
		return string(st)
	}
}

func (s styles) outcome(o domain.Outcome) string {
	switch o {
	case domain.OutcomeSuccess:
		return s.paint(s.success, string(o))
	case domain.OutcomeSkipped:
		return s.paint(s.muted, string(o))
	case domain.OutcomeFailed:
		return s.paint(s.failure, string(o))
	default:
		return string(o)
	}
}

// newTable returns a bordered table with a bold header row on terminals.
func newTable(st styles, headers ...string) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
	if st.colour {
		t = t.BorderStyle(st.muted).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return lipgloss.NewStyle().Bold(true).Padding(0, 1)
				}
				return lipgloss.NewStyle().Padding(0, 1)
			})
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Views are the serialised shapes for json and yaml output.

type jobView struct {
	ID              string    `json:"id" yaml:"id"`
	Source          string    `json:"source" yaml:"source"`
	Targets         []string  `json:"targets" yaml:"targets"`
	Selector        string    `json:"selector" yaml:"selector"`
	Status          string    `json:"status" yaml:"status"`
	Attempts        int       `json:"attempts" yaml:"attempts"`
	LastError       string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	CancelRequested bool      `json:"cancel_requested,omitempty" yaml:"cancel_requested,omitempty"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at"`
	FinishedAt      time.Time `json:"finished_at,omitzero" yaml:"finished_at,omitempty"`
}

func newJobView(j *domain.SyncJob) jobView {
	return jobView{
		ID:              j.ID,
		Source:          j.SourceSiteID,
		Targets:         j.TargetSiteIDs,
		Selector:        j.Selector.String(),
		Status:          string(j.Status),
		Attempts:        j.Attempts,
		LastError:       j.LastError,
		CancelRequested: j.CancelRequested,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		FinishedAt:      j.FinishedAt,
	}
}

type recordView struct {
	Target          string    `json:"target" yaml:"target"`
	Unit            string    `json:"unit" yaml:"unit"`
	Outcome         string    `json:"outcome" yaml:"outcome"`
	AppliedRevision int64     `json:"applied_revision" yaml:"applied_revision"`
	TargetID        string    `json:"target_id,omitempty" yaml:"target_id,omitempty"`
	Detail          string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	Timestamp       time.Time `json:"timestamp" yaml:"timestamp"`
}

func newRecordView(r *domain.SyncRecord) recordView {
	return recordView{
		Target:          r.TargetSiteID,
		Unit:            r.UnitKey.String(),
		Outcome:         string(r.Outcome),
		AppliedRevision: r.AppliedRevision,
		TargetID:        r.TargetID,
		Detail:          r.Detail,
		Timestamp:       r.Timestamp,
	}
}

type auditView struct {
	Seq      int64     `json:"seq" yaml:"seq"`
	JobID    string    `json:"job_id" yaml:"job_id"`
	Event    string    `json:"event" yaml:"event"`
	Target   string    `json:"target,omitempty" yaml:"target,omitempty"`
	Unit     string    `json:"unit,omitempty" yaml:"unit,omitempty"`
	Outcome  string    `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Attempts int       `json:"attempts" yaml:"attempts"`
	Message  string    `json:"message,omitempty" yaml:"message,omitempty"`
	At       time.Time `json:"at" yaml:"at"`
}

func newAuditView(e *domain.AuditEntry) auditView {
	return auditView{
		Seq:      e.Seq,
		JobID:    e.JobID,
		Event:    string(e.Event),
		Target:   e.TargetSiteID,
		Unit:     e.UnitKey.String(),
		Outcome:  string(e.Outcome),
		Attempts: e.Attempts,
		Message:  e.Message,
		At:       e.At,
	}
}

type siteView struct {
	ID     string   `json:"id" yaml:"id"`
	Name   string   `json:"name,omitempty" yaml:"name,omitempty"`
	Driver string   `json:"driver" yaml:"driver"`
	Kinds  []string `json:"kinds,omitempty" yaml:"kinds,omitempty"`
}

func newSiteView(s *domain.SiteDescriptor) siteView {
	kinds := make([]string, 0, len(s.Kinds))
	for _, k := range s.Kinds {
		kinds = append(kinds, string(k))
	}
	return siteView{ID: s.ID, Name: s.Name, Driver: s.Driver, Kinds: kinds}
}

// statusOrder lists job statuses in lifecycle order for summaries.
var statusOrder = []domain.JobStatus{
	domain.JobQueued,
	domain.JobLeased,
	domain.JobProcessing,
	domain.JobFailedRetryable,
	domain.JobCompleted,
	domain.JobDeadLetter,
	domain.JobCancelled,
}

func countStatuses(jobs []domain.SyncJob) map[string]int {
	counts := make(map[string]int)
	for i := range jobs {
		counts[string(jobs[i].Status)]++
	}
	return counts
}

// summary renders counts as "queued 2 · completed 5" in lifecycle order.
func summary(st styles, counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}
	var parts []string
	for _, s := range statusOrder {
		if n := counts[string(s)]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", st.status(s), n))
		}
	}
	// Statuses the CLI does not know about still get listed.
	var extra []string
	for k := range counts {
		if !slices.Contains(statusOrder, domain.JobStatus(k)) {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	for _, k := range extra {
		parts = append(parts, fmt.Sprintf("%s %d", k, counts[k]))
	}
	return strings.Join(parts, " · ")
}
