// Package classify assigns a tracked-model label to each stored post.
package classify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jsilvela/botwatch/internal/config"
	"github.com/jsilvela/botwatch/internal/database"
	"github.com/jsilvela/botwatch/internal/llm"
)

const fallbackPrompt = `You are labeling a forum post from a discussion about humanoid robots.

Decide which single product model the post is primarily about. The closed set of labels is:
%s

If the post is not clearly about exactly one of these models, use "unclassified".

Post title: %s
Post text:
%s

Respond with ONLY this JSON:
{"label": "one of the labels above or unclassified"}`

// Result holds the results of a classification pass.
type Result struct {
	Processed    int
	RuleBased    int
	ModelBased   int
	Unclassified int
	Errors       int
}

// Classifier labels posts by deterministic rule matching, deferring
// ambiguous posts to the LLM with a closed label set.
type Classifier struct {
	db         *database.DB
	provider   llm.Provider
	models     []config.TrackedModel
	version    int
	confidence float64
	maxTokens  int
}

// New creates a classifier from the tracked-model configuration.
func New(db *database.DB, provider llm.Provider, cfg *config.Config) *Classifier {
	return &Classifier{
		db:         db,
		provider:   provider,
		models:     cfg.Tracking.Models,
		version:    cfg.Classifier.Version,
		confidence: cfg.Classifier.ModelConfidence,
		maxTokens:  cfg.LLM.MaxTokens,
	}
}

// ClassifyBacklog classifies every post without a current classification.
// A post that fails (LLM error) gets no row and stays eligible for the
// next cycle.
func (c *Classifier) ClassifyBacklog(ctx context.Context) *Result {
	r := &Result{}

	posts, err := c.db.GetUnclassifiedPosts(c.version)
	if err != nil {
		log.Printf("Error getting unclassified posts: %v", err)
		r.Errors++
		return r
	}
	if len(posts) == 0 {
		log.Println("No posts pending classification")
		return r
	}

	for _, post := range posts {
		label, confidence, method, err := c.Classify(ctx, post)
		if err != nil {
			log.Printf("Error classifying post %s: %v", post.ID, err)
			r.Errors++
			continue
		}

		if err := c.db.SetClassification(post.ID, label, confidence, method, c.version); err != nil {
			log.Printf("Error storing classification for %s: %v", post.ID, err)
			r.Errors++
			continue
		}

		r.Processed++
		switch {
		case method == database.MethodRule:
			r.RuleBased++
		case label == database.LabelUnclassified:
			r.Unclassified++
			r.ModelBased++
		default:
			r.ModelBased++
		}
	}

	log.Printf("Classification complete: %d processed (%d rule, %d model, %d unclassified), %d errors",
		r.Processed, r.RuleBased, r.ModelBased, r.Unclassified, r.Errors)
	return r
}

// Classify determines the label for one post. Exactly one rule match is
// decisive; zero or several matches defer to the LLM.
func (c *Classifier) Classify(ctx context.Context, post database.Post) (label string, confidence float64, method string, err error) {
	matches := c.ruleMatches(post)
	if len(matches) == 1 {
		return matches[0], 1.0, database.MethodRule, nil
	}

	label, err = c.classifyWithLLM(ctx, post)
	if err != nil {
		return "", 0, "", err
	}
	return label, c.confidence, database.MethodModel, nil
}

// ruleMatches returns the tracked models whose rules hit the post text.
// A model matches when its name appears, or an alias appears together
// with a context keyword. Any exclusion phrase vetoes the model.
func (c *Classifier) ruleMatches(post database.Post) []string {
	text := strings.ToLower(post.Title + "\n" + postText(post))

	var matched []string
	for _, m := range c.models {
		if anyPhrase(text, m.Exclusions) {
			continue
		}

		hit := strings.Contains(text, strings.ToLower(m.Name))
		if !hit && anyPhrase(text, m.Aliases) && anyPhrase(text, m.Keywords) {
			hit = true
		}
		if hit {
			matched = append(matched, m.Name)
		}
	}
	return matched
}

func (c *Classifier) classifyWithLLM(ctx context.Context, post database.Post) (string, error) {
	if c.provider == nil {
		return "", fmt.Errorf("no LLM provider available")
	}

	labels := make([]string, len(c.models))
	for i, m := range c.models {
		labels[i] = m.Name
	}

	text := postText(post)
	if len(text) > 4000 {
		text = text[:4000] + "..."
	}

	prompt := fmt.Sprintf(fallbackPrompt, strings.Join(labels, ", "), post.Title, text)
	responseText, err := c.provider.Generate(ctx, prompt, c.maxTokens)
	if err != nil {
		return "", err
	}

	parsed := llm.ParseJSONResponse(responseText)
	if parsed == nil {
		return database.LabelUnclassified, nil
	}

	label := strings.ToLower(strings.TrimSpace(llm.StringField(parsed, "label", "")))
	for _, l := range labels {
		if label == strings.ToLower(l) {
			return l, nil
		}
	}
	// The response is constrained to the closed set; anything else
	// collapses to unclassified.
	return database.LabelUnclassified, nil
}

// postText prefers the post body, falling back to fetched link content.
func postText(post database.Post) string {
	if post.Body != nil && *post.Body != "" {
		return *post.Body
	}
	if post.Content != nil {
		return *post.Content
	}
	return ""
}

func anyPhrase(text string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(text, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
