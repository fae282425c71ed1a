package cronrunner

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/yuin/goldmark"

	"portal_automation/internal/autonomy/cron"
	"portal_automation/internal/llm"
	"portal_automation/internal/portal"
)

const (
	minBlogWords     = 200
	wordsPerMinute   = 200
	minReadMinutes   = 5
	keyTakeawayLabel = "Key takeaway: "
)

type blogPrompt struct {
	Instruction      string   `json:"instruction"`
	Audience         string   `json:"audience"`
	Tone             string   `json:"tone"`
	Structure        string   `json:"structure"`
	PublishTimestamp string   `json:"publishTimestamp"`
	AvoidTitles      []string `json:"avoidTitles"`
}

type blogSection struct {
	Heading    string
	Paragraphs []string
}

type blogPlan struct {
	Title        string
	Slug         string
	Excerpt      string
	Tags         []string
	HeroSrc      string
	HeroAlt      string
	Sections     []blogSection
	KeyTakeaways []string
}

func (o *Orchestrator) produceBlogPost(ctx context.Context, gen llm.Generator, now time.Time) (jobOutput, error) {
	state := &o.doc.AIAutomation.BlogResearch
	loc := state.Schedule.Location()

	avoid := []string{}
	for i, entry := range state.History {
		if i >= recentHistoryForPrompt {
			break
		}
		if title := strings.TrimSpace(entry.Title); title != "" {
			avoid = append(avoid, title)
		}
	}

	p := o.prompts.Blog
	prompt, err := encodePrompt(blogPrompt{
		Instruction:      p.Instruction,
		Audience:         p.Audience,
		Tone:             p.Tone,
		Structure:        p.Structure,
		PublishTimestamp: now.In(loc).Format(time.RFC3339),
		AvoidTitles:      avoid,
	})
	if err != nil {
		return jobOutput{}, err
	}
	req := llm.UserPrompt(llm.TaskBlogResearch, prompt, p.Config.generation())
	req.SystemInstruction = p.System

	resp, err := gen.GenerateJSON(ctx, req)
	if err != nil {
		return jobOutput{}, err
	}
	plan, err := normalizeBlogPlan(asObject(resp), o.label)
	if err != nil {
		return jobOutput{}, err
	}
	post, err := o.buildBlogPost(plan, now.In(loc))
	if err != nil {
		return jobOutput{}, err
	}
	if err := o.doc.PrependBlogPost(post); err != nil {
		return jobOutput{}, err
	}

	summary := post.Summary()
	state.LastBlog = &summary
	state.History = cron.PrependHistory(state.History, summary, func(b portal.BlogSummary) string { return b.ID }, blogHistoryLimit)

	return jobOutput{
		message:  fmt.Sprintf("Blog post %q published via automation.", post.Title),
		activity: fmt.Sprintf("%s published a blog article: %s.", o.label, post.Title),
		payload:  summary,
	}, nil
}

// normalizeBlogPlan requires a title, an excerpt and at least one section
// with a heading or a paragraph.
func normalizeBlogPlan(resp map[string]any, label string) (blogPlan, error) {
	plan := blogPlan{
		Title:        text(resp["title"]),
		Slug:         text(resp["slug"]),
		Excerpt:      text(resp["excerpt"]),
		Tags:         texts(resp["tags"]),
		KeyTakeaways: texts(resp["keyTakeaways"]),
	}
	if plan.Title == "" || plan.Excerpt == "" {
		return blogPlan{}, insufficient("%s did not return a complete blog outline.", label)
	}
	if hero := asObject(resp["heroImage"]); hero != nil {
		plan.HeroSrc = text(hero["src"])
		plan.HeroAlt = text(hero["alt"])
	}
	for _, raw := range asObjects(resp["sections"]) {
		section := blogSection{Heading: text(raw["heading"]), Paragraphs: texts(raw["paragraphs"])}
		if section.Heading == "" && len(section.Paragraphs) == 0 {
			continue
		}
		plan.Sections = append(plan.Sections, section)
	}
	if len(plan.Sections) == 0 {
		return blogPlan{}, insufficient("%s did not return detailed blog sections.", label)
	}
	return plan, nil
}

func (o *Orchestrator) buildBlogPost(plan blogPlan, now time.Time) (portal.BlogPost, error) {
	base := portal.Slugify(plan.Title)
	if plan.Slug != "" {
		base = portal.Slugify(plan.Slug)
	}
	if base == "" {
		base = o.prompts.FallbackSlug
	}
	slug := portal.UniqueSlug(base, o.doc.BlogSlugs())

	content := flattenBlogContent(plan)
	html, err := renderBlogHTML(plan)
	if err != nil {
		return portal.BlogPost{}, err
	}

	hero := plan.HeroSrc
	if hero == "" {
		hero = o.prompts.HeroImage
	}
	tags := plan.Tags
	if tags == nil {
		tags = []string{}
	}
	stamp := now.Format(time.RFC3339)
	return portal.BlogPost{
		ID:              portal.GenerateID("blog_"),
		Title:           plan.Title,
		Slug:            slug,
		Excerpt:         plan.Excerpt,
		HeroImage:       hero,
		HeroImageAlt:    plan.HeroAlt,
		Tags:            tags,
		Status:          "published",
		ReadTimeMinutes: readMinutes(content),
		Author:          o.prompts.AuthorFor(o.label),
		Content:         content,
		ContentHTML:     html,
		PublishedAt:     stamp,
		UpdatedAt:       stamp,
	}, nil
}

// flattenBlogContent lists headings and paragraphs in order, followed by one
// "Key takeaway: …" line per takeaway.
func flattenBlogContent(plan blogPlan) []string {
	var out []string
	for _, s := range plan.Sections {
		if s.Heading != "" {
			out = append(out, s.Heading)
		}
		out = append(out, s.Paragraphs...)
	}
	for _, t := range plan.KeyTakeaways {
		out = append(out, keyTakeawayLabel+t)
	}
	return out
}

func readMinutes(content []string) int {
	words := 0
	for _, line := range content {
		words += len(strings.Fields(line))
	}
	if words < minBlogWords {
		words = minBlogWords
	}
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < minReadMinutes {
		minutes = minReadMinutes
	}
	return minutes
}

func renderBlogHTML(plan blogPlan) (string, error) {
	var md strings.Builder
	for _, s := range plan.Sections {
		if s.Heading != "" {
			md.WriteString("## " + s.Heading + "\n\n")
		}
		for _, para := range s.Paragraphs {
			md.WriteString(para + "\n\n")
		}
	}
	if len(plan.KeyTakeaways) > 0 {
		md.WriteString("## Key takeaways\n\n")
		for _, t := range plan.KeyTakeaways {
			md.WriteString("- " + t + "\n")
		}
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md.String()), &buf); err != nil {
		return "", errors.Wrap(err, "render blog html")
	}
	return buf.String(), nil
}
