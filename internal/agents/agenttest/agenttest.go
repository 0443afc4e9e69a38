// Package agenttest provides a scripted generation backend and canned agent
// responses for tests.
package agenttest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jonathan/flow-agents/internal/llm"
)

// Client is a scripted llm.Client. Responses are consumed in order; the last one
// repeats once the script runs out.
type Client struct {
	mu        sync.Mutex
	responses []Reply
	requests  []*llm.Request
	// Block makes every call wait for its context to end.
	Block bool
}

// Reply is one scripted outcome.
type Reply struct {
	Text  string
	Err   error
	Usage llm.Usage
}

// NewClient returns a client that answers with the given texts.
func NewClient(texts ...string) *Client {
	c := &Client{}
	for _, t := range texts {
		c.responses = append(c.responses, Reply{Text: t, Usage: llm.Usage{TokensIn: 1200, TokensOut: 800}})
	}
	return c
}

// Failing returns a client whose every call fails with err.
func Failing(err error) *Client {
	return &Client{responses: []Reply{{Err: err}}}
}

func (c *Client) GenerateJSON(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	var r Reply
	if len(c.responses) > 0 {
		r = c.responses[0]
		if len(c.responses) > 1 {
			c.responses = c.responses[1:]
		}
	}
	block := c.Block
	c.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return &llm.Response{Text: r.Text, Model: c.GetModel(req.Tier), Usage: r.Usage}, nil
}

func (c *Client) GetModel(llm.ModelTier) string {
	return "gemini-2.5-flash"
}

func (c *Client) Close() error {
	return nil
}

// Requests returns the calls made so far.
func (c *Client) Requests() []*llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*llm.Request(nil), c.requests...)
}

// ResearchPack is a minimal valid research_foundation_pack_json payload.
const ResearchPack = `{
  "sources": [{"title": "Company website", "url": "https://acme.example"}],
  "lean_canvas": {"problem": "Generic coffee"},
  "swot": {"strengths": ["Fresh roast"], "weaknesses": ["Small team"], "opportunities": ["Gifting"], "threats": ["Chains"]},
  "competitor_landscape": {"competitors": [{"name": "BigBean"}]},
  "campaign_foundations": {
    "positioning_statement": "The freshest small batch coffee in Porto",
    "messaging_pillars": [{"pillar": "Craft", "key_message": "Roasted by hand every morning"}],
    "claims_rules": {"allowed": ["Roasted daily"], "not_allowed": ["Best coffee in the world"], "needs_proof": ["Organic"]},
    "content_themes": ["Behind the roast"]
  },
  "client_deck_outline": [{"title": "Who we are", "bullets": ["Porto roastery"]}]
}`

// ResearchResponse is a valid research agent response.
func ResearchResponse() string {
	return fmt.Sprintf(`{"research_foundation_pack": %s, "research_markdown": "# Research\n\nAcme roasts daily."}`, ResearchPack)
}

// KBResponse is a valid KB builder response with n files.
func KBResponse(n int) string {
	type file struct {
		Filename string `json:"filename"`
		Title    string `json:"title"`
		Format   string `json:"format"`
		Content  string `json:"content"`
	}
	files := make([]file, n)
	for i := range files {
		files[i] = file{
			Filename: fmt.Sprintf("%02d-section.md", i+1),
			Title:    fmt.Sprintf("Section %d", i+1),
			Format:   "md",
			Content:  fmt.Sprintf("# Section %d\n\nDetails.", i+1),
		}
	}
	return mustJSON(map[string]any{"files": files})
}

// PresentationResponse is a valid presentation agent response.
func PresentationResponse() string {
	return `{
  "client_name": "Acme",
  "deck_title": "Acme Strategy 2026",
  "slides": [
    {"title": "Positioning", "key_points": ["Freshest in Porto"], "speaker_notes": "Open strong", "visual_suggestion": "Roaster photo"},
    {"title": "Pillars", "key_points": ["Craft"]}
  ]
}`
}

// ContentPlan is a content plan payload with n posts.
func ContentPlan(n int) string {
	posts := make([]map[string]any, n)
	for i := range posts {
		channel := "instagram"
		if i%2 == 1 {
			channel = "linkedin"
		}
		posts[i] = map[string]any{
			"day":      i%30 + 1,
			"channel":  channel,
			"format":   "carousel",
			"pillar":   "Craft",
			"hook":     fmt.Sprintf("Hook %d", i+1),
			"caption":  fmt.Sprintf("Caption %d", i+1),
			"hashtags": []string{"#coffee"},
		}
	}
	return mustJSON(map[string]any{"strategy_overview": "Lead with craft", "posts": posts})
}

// QAResponse is a QA response reviewing posts 0..n-1. Every third post needs revision.
func QAResponse(n int) string {
	results := make([]map[string]any, n)
	for i := range results {
		status := "approved"
		switch i % 3 {
		case 1:
			status = "minor_edits"
		case 2:
			status = "needs_revision"
		}
		results[i] = map[string]any{"post_index": i, "overall_status": status, "issues": []string{}}
	}
	return mustJSON(map[string]any{"results": results})
}

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(raw)
}
