package portal

import "encoding/json"

// Task is the subset of a portal task the operations review needs.
type Task struct {
	Title   string
	Owner   string
	Status  string
	DueDate string
}

type Project struct {
	Status string
}

// Tasks decodes the tasks collection, skipping entries that are not objects.
func (d *Document) Tasks() []Task {
	var out []Task
	for _, obj := range d.objects("tasks") {
		out = append(out, Task{
			Title:   asString(obj["title"]),
			Owner:   firstNonEmpty(asString(obj["owner"]), asString(obj["assignee"])),
			Status:  asString(obj["status"]),
			DueDate: asString(obj["due_date"]),
		})
	}
	return out
}

func (d *Document) Projects() []Project {
	var out []Project
	for _, obj := range d.objects("projects") {
		out = append(out, Project{Status: asString(obj["status"])})
	}
	return out
}

// PendingApprovals counts employee_approvals.pending.
func (d *Document) PendingApprovals() int {
	var approvals struct {
		Pending []json.RawMessage `json:"pending"`
	}
	if ok, err := d.Decode("employee_approvals", &approvals); !ok || err != nil {
		return 0
	}
	return len(approvals.Pending)
}

func (d *Document) objects(key string) []map[string]any {
	var items []json.RawMessage
	if ok, err := d.Decode(key, &items); !ok || err != nil {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, raw := range items {
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
			continue
		}
		out = append(out, obj)
	}
	return out
}
