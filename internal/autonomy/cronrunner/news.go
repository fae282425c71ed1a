package cronrunner

import (
	"context"
	"time"

	"portal_automation/internal/autonomy/cron"
	"portal_automation/internal/llm"
	"portal_automation/internal/portal"
)

const recentHistoryForPrompt = 5

type newsPrompt struct {
	Instruction    string   `json:"instruction"`
	Focus          string   `json:"focus"`
	Output         string   `json:"output"`
	Timestamp      string   `json:"timestamp"`
	AvoidHeadlines []string `json:"avoidHeadlines"`
}

func (o *Orchestrator) produceNewsDigest(ctx context.Context, gen llm.Generator, now time.Time) (jobOutput, error) {
	state := &o.doc.AIAutomation.NewsDigest
	loc := state.Schedule.Location()
	stamp := now.In(loc).Format(time.RFC3339)

	avoid := []string{}
	for i, entry := range state.History {
		if i >= recentHistoryForPrompt {
			break
		}
		for _, item := range entry.Items {
			if item.Headline != "" {
				avoid = append(avoid, item.Headline)
			}
		}
	}

	p := o.prompts.News
	prompt, err := encodePrompt(newsPrompt{
		Instruction:    p.Instruction,
		Focus:          p.Focus,
		Output:         p.Output,
		Timestamp:      stamp,
		AvoidHeadlines: avoid,
	})
	if err != nil {
		return jobOutput{}, err
	}
	req := llm.UserPrompt(llm.TaskNewsDigest, prompt, p.Config.generation())
	req.SystemInstruction = p.System

	resp, err := gen.GenerateJSON(ctx, req)
	if err != nil {
		return jobOutput{}, err
	}
	digest, err := normalizeNewsDigest(asObject(resp), o.label)
	if err != nil {
		return jobOutput{}, err
	}
	digest.ID = "news_" + now.In(loc).Format("20060102")
	digest.GeneratedAt = stamp
	digest.Timezone = state.Schedule.Zone()

	state.LastDigest = &digest
	state.History = cron.PrependHistory(state.History, digest, func(d portal.NewsDigest) string { return d.ID }, newsHistoryLimit)

	return jobOutput{
		message:  "Daily news digest prepared and published.",
		activity: o.label + " published the solar & renewable energy news digest.",
		payload:  digest,
	}, nil
}

// normalizeNewsDigest keeps the items that carry a headline. A digest without
// any such item is rejected.
func normalizeNewsDigest(resp map[string]any, label string) (portal.NewsDigest, error) {
	var items []portal.NewsItem
	for _, raw := range asObjects(resp["items"]) {
		headline := text(raw["headline"])
		if headline == "" {
			continue
		}
		items = append(items, portal.NewsItem{
			Headline:          headline,
			Region:            textOr(raw, "region", "India"),
			Summary:           text(raw["summary"]),
			RecommendedAction: text(raw["recommendedAction"]),
			SourceHints:       normalizeSourceHints(raw["sourceHints"]),
		})
	}
	if len(items) == 0 {
		return portal.NewsDigest{}, insufficient("%s did not return any news items.", label)
	}
	return portal.NewsDigest{Summary: text(resp["summary"]), Items: items}, nil
}

// normalizeSourceHints accepts {label, url} objects or bare strings, which
// become a label without a url.
func normalizeSourceHints(v any) []portal.SourceHint {
	raw, _ := v.([]any)
	out := make([]portal.SourceHint, 0, len(raw))
	for _, hint := range raw {
		switch h := hint.(type) {
		case map[string]any:
			label, url := text(h["label"]), text(h["url"])
			if label != "" || url != "" {
				out = append(out, portal.SourceHint{Label: label, URL: url})
			}
		default:
			if label := text(h); label != "" {
				out = append(out, portal.SourceHint{Label: label})
			}
		}
	}
	return out
}
