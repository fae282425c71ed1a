package cronrunner

import (
	"context"
	"strings"
	"time"

	"portal_automation/internal/autonomy/cron"
	"portal_automation/internal/llm"
	"portal_automation/internal/portal"
)

const (
	recentActivityInSnapshot = 6
	upcomingTaskWindowDays   = 3
)

var (
	openTicketStatuses   = map[string]bool{"open": true, "new": true, "pending": true, "in-progress": true}
	highTicketPriorities = map[string]bool{"urgent": true, "high": true}
)

type TaskRow struct {
	Title  string `json:"title"`
	Owner  string `json:"owner"`
	Due    string `json:"due"`
	Status string `json:"status"`
}

type TaskSummary struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
	Overdue  []TaskRow      `json:"overdue"`
	Upcoming []TaskRow      `json:"upcoming"`
}

type ProjectSummary struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
}

type ApprovalSummary struct {
	Pending int `json:"pending"`
}

type ComplaintSummary struct {
	Total        int `json:"total"`
	Open         int `json:"open"`
	HighPriority int `json:"highPriority"`
}

// Snapshot is the operations context sent to the model.
type Snapshot struct {
	GeneratedAt    string                 `json:"generatedAt"`
	Tasks          TaskSummary            `json:"tasks"`
	Projects       ProjectSummary         `json:"projects"`
	Approvals      ApprovalSummary        `json:"approvals"`
	Complaints     ComplaintSummary       `json:"complaints"`
	RecentActivity []portal.ActivityEntry `json:"recentActivity"`
}

type operationsPrompt struct {
	Instruction string   `json:"instruction"`
	Snapshot    Snapshot `json:"snapshot"`
	Required    string   `json:"required"`
}

// BuildSnapshot summarises tasks, projects, approvals, tickets and recent
// activity as of now. Dates are compared as calendar days in loc.
func BuildSnapshot(doc *portal.Document, tickets []portal.Ticket, now time.Time, loc *time.Location) Snapshot {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	horizon := today.AddDate(0, 0, upcomingTaskWindowDays)

	snap := Snapshot{
		GeneratedAt: local.Format(time.RFC3339),
		Tasks: TaskSummary{
			ByStatus: map[string]int{},
			Overdue:  []TaskRow{},
			Upcoming: []TaskRow{},
		},
		Projects: ProjectSummary{ByStatus: map[string]int{}},
	}

	tasks := doc.Tasks()
	snap.Tasks.Total = len(tasks)
	for _, t := range tasks {
		status := defaultText(t.Status, "Pending")
		snap.Tasks.ByStatus[status]++
		if t.DueDate == "" {
			continue
		}
		due, err := time.ParseInLocation("2006-01-02", t.DueDate, loc)
		if err != nil {
			continue
		}
		row := TaskRow{
			Title:  defaultText(t.Title, "Task"),
			Owner:  defaultText(t.Owner, "Admin team"),
			Due:    due.Format("2006-01-02"),
			Status: status,
		}
		switch {
		case due.Before(today):
			if !strings.EqualFold(status, "Completed") {
				snap.Tasks.Overdue = append(snap.Tasks.Overdue, row)
			}
		case !due.After(horizon):
			snap.Tasks.Upcoming = append(snap.Tasks.Upcoming, row)
		}
	}

	projects := doc.Projects()
	snap.Projects.Total = len(projects)
	for _, p := range projects {
		snap.Projects.ByStatus[defaultText(p.Status, "planning")]++
	}

	snap.Approvals.Pending = doc.PendingApprovals()

	snap.Complaints.Total = len(tickets)
	for _, t := range tickets {
		if openTicketStatuses[strings.ToLower(defaultText(t.Status, "open"))] {
			snap.Complaints.Open++
		}
		if highTicketPriorities[strings.ToLower(defaultText(t.Priority, "medium"))] {
			snap.Complaints.HighPriority++
		}
	}

	snap.RecentActivity = doc.RecentActivity(recentActivityInSnapshot)
	return snap
}

// loadTickets reads the ticket source. Unreadable ticket data counts as no
// tickets so the review can still run.
func (o *Orchestrator) loadTickets(ctx context.Context) []portal.Ticket {
	if o.tickets == nil {
		return nil
	}
	list, err := o.tickets.Tickets(ctx)
	if err != nil {
		o.log.Warnw("tickets unreadable, reviewing without them", "job", portal.JobOperationsWatch, "error", err)
		return nil
	}
	return list
}

func (o *Orchestrator) produceOperationsReport(ctx context.Context, gen llm.Generator, now time.Time) (jobOutput, error) {
	state := &o.doc.AIAutomation.OperationsWatch
	loc := state.Schedule.Location()

	snap := BuildSnapshot(o.doc, o.loadTickets(ctx), now, loc)

	p := o.prompts.Operations
	prompt, err := encodePrompt(operationsPrompt{
		Instruction: p.Instruction,
		Snapshot:    snap,
		Required:    p.Required,
	})
	if err != nil {
		return jobOutput{}, err
	}
	req := llm.UserPrompt(llm.TaskOperationsWatch, prompt, p.Config.generation())
	req.SystemInstruction = p.System

	resp, err := gen.GenerateJSON(ctx, req)
	if err != nil {
		return jobOutput{}, err
	}
	report, err := normalizeOperationsReport(asObject(resp), o.label)
	if err != nil {
		return jobOutput{}, err
	}
	local := now.In(loc)
	report.ID = "ops_" + local.Format("20060102150405")
	report.GeneratedAt = local.Format(time.RFC3339)

	state.LastReport = &report
	state.History = cron.PrependHistory(state.History, report, func(r portal.OperationsReport) string { return r.ID }, operationsHistoryLimit)

	return jobOutput{
		message:  "Operations oversight report generated.",
		activity: o.label + " reviewed dashboard activity and shared recommendations.",
		payload:  report,
	}, nil
}

// normalizeOperationsReport keeps risk flags with a detail and
// recommendations with at least one suggested action. A report needs a
// summary or a recommendation.
func normalizeOperationsReport(resp map[string]any, label string) (portal.OperationsReport, error) {
	report := portal.OperationsReport{
		Summary:         text(resp["summary"]),
		RiskFlags:       []portal.RiskFlag{},
		Recommendations: []portal.Recommendation{},
	}
	for _, raw := range asObjects(resp["riskFlags"]) {
		detail := text(raw["detail"])
		if detail == "" {
			continue
		}
		report.RiskFlags = append(report.RiskFlags, portal.RiskFlag{
			Area:    textOr(raw, "area", "General"),
			Detail:  detail,
			Urgency: textOr(raw, "urgency", "medium"),
		})
	}
	for _, raw := range asObjects(resp["recommendations"]) {
		actions := texts(raw["suggestedActions"])
		if len(actions) == 0 {
			continue
		}
		report.Recommendations = append(report.Recommendations, portal.Recommendation{
			Area:             textOr(raw, "area", "Operations"),
			Urgency:          textOr(raw, "urgency", "medium"),
			SuggestedActions: actions,
		})
	}
	if report.Summary == "" && len(report.Recommendations) == 0 {
		return portal.OperationsReport{}, insufficient("%s did not return any operations insights.", label)
	}
	return report, nil
}

func defaultText(s string, fallback string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return fallback
}
