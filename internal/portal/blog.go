package portal

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

const MaxBlogPosts = 30

type BlogAuthor struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type BlogPost struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Slug            string     `json:"slug"`
	Excerpt         string     `json:"excerpt"`
	HeroImage       string     `json:"hero_image"`
	HeroImageAlt    string     `json:"hero_image_alt,omitempty"`
	Tags            []string   `json:"tags"`
	Status          string     `json:"status"`
	ReadTimeMinutes int        `json:"read_time_minutes"`
	Author          BlogAuthor `json:"author"`
	Content         []string   `json:"content"`
	ContentHTML     string     `json:"content_html,omitempty"`
	PublishedAt     string     `json:"published_at"`
	UpdatedAt       string     `json:"updated_at"`
}

func (p BlogPost) Summary() BlogSummary {
	return BlogSummary{
		ID:              p.ID,
		Title:           p.Title,
		Slug:            p.Slug,
		Excerpt:         p.Excerpt,
		Tags:            p.Tags,
		HeroImage:       p.HeroImage,
		ReadTimeMinutes: p.ReadTimeMinutes,
		PublishedAt:     p.PublishedAt,
	}
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-"), "-")
}

// BlogSlugs returns the lowercased slugs of every stored post.
func (d *Document) BlogSlugs() map[string]bool {
	out := make(map[string]bool, len(d.BlogPosts))
	for _, raw := range d.BlogPosts {
		var post struct {
			Slug any `json:"slug"`
		}
		if err := json.Unmarshal(raw, &post); err != nil {
			continue
		}
		if slug := strings.ToLower(asString(post.Slug)); slug != "" {
			out[slug] = true
		}
	}
	return out
}

// UniqueSlug returns base, or base suffixed with -2, -3, … until it is not
// in taken.
func UniqueSlug(base string, taken map[string]bool) string {
	slug := base
	for n := 2; taken[strings.ToLower(slug)]; n++ {
		slug = base + "-" + strconv.Itoa(n)
	}
	return slug
}

// PrependBlogPost stores post as the newest entry and trims the list to
// MaxBlogPosts.
func (d *Document) PrependBlogPost(post BlogPost) error {
	data, err := json.Marshal(post)
	if err != nil {
		return errors.Wrap(err, "encode blog post")
	}
	posts := make([]json.RawMessage, 0, len(d.BlogPosts)+1)
	posts = append(posts, data)
	posts = append(posts, d.BlogPosts...)
	if len(posts) > MaxBlogPosts {
		posts = posts[:MaxBlogPosts]
	}
	d.BlogPosts = posts
	return nil
}
