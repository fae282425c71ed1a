package portal

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

type Ticket struct {
	ID       string
	Status   string
	Priority string
}

// TicketSource supplies the support tickets summarised by the operations
// review.
type TicketSource interface {
	Tickets(ctx context.Context) ([]Ticket, error)
}

// FileTicketSource reads a JSON array of tickets (or {"tickets": [...]}).
// A missing or blank file holds no tickets.
type FileTicketSource struct {
	Path string
}

func (s FileTicketSource) Tickets(ctx context.Context) ([]Ticket, error) {
	path := strings.TrimSpace(s.Path)
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read tickets %s", path)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	return parseTickets(data)
}

// DocumentTicketSource reads the tickets collection of the state document.
type DocumentTicketSource struct {
	Doc *Document
}

func (s DocumentTicketSource) Tickets(ctx context.Context) ([]Ticket, error) {
	if s.Doc == nil {
		return nil, nil
	}
	raw, ok := s.Doc.Raw("tickets")
	if !ok {
		return nil, nil
	}
	return parseTickets(raw)
}

func parseTickets(data []byte) ([]Ticket, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		var wrapped struct {
			Tickets []json.RawMessage `json:"tickets"`
		}
		if werr := json.Unmarshal(data, &wrapped); werr != nil {
			return nil, errors.Wrap(err, "parse tickets")
		}
		items = wrapped.Tickets
	}
	out := make([]Ticket, 0, len(items))
	for _, raw := range items {
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
			continue
		}
		out = append(out, Ticket{
			ID:       asString(obj["id"]),
			Status:   asString(obj["status"]),
			Priority: asString(obj["priority"]),
		})
	}
	return out, nil
}
