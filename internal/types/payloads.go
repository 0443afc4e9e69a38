package types

import "encoding/json"

// PostsPerPlan is the number of posts every content plan carries.
const PostsPerPlan = 30

// QA overall statuses.
const (
	QAStatusApproved      = "approved"
	QAStatusMinorEdits    = "minor_edits"
	QAStatusNeedsRevision = "needs_revision"
)

// OnboardingReport is the client intake questionnaire. Only a few fields are
// read directly; the rest is passed to the research agent verbatim.
type OnboardingReport struct {
	ClientName string         `json:"client_name,omitempty"`
	Website    string         `json:"website,omitempty" validate:"omitempty,url"`
	Industry   string         `json:"industry,omitempty"`
	Fields     map[string]any `json:"-"`
}

// UnmarshalJSON keeps every field of the report alongside the typed ones.
func (r *OnboardingReport) UnmarshalJSON(data []byte) error {
	type known OnboardingReport
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*r = OnboardingReport(k)
	r.Fields = fields
	return nil
}

// Source is a reference used by the research agent.
type Source struct {
	Title string `json:"title" validate:"required"`
	URL   string `json:"url,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// SWOT is a strengths/weaknesses/opportunities/threats breakdown.
type SWOT struct {
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
}

// Competitor is one entry of the competitor landscape.
type Competitor struct {
	Name        string `json:"name" validate:"required"`
	Positioning string `json:"positioning,omitempty"`
	Strengths   string `json:"strengths,omitempty"`
	Weaknesses  string `json:"weaknesses,omitempty"`
}

// CompetitorLandscape groups competitors with category level notes.
type CompetitorLandscape struct {
	Competitors   []Competitor `json:"competitors" validate:"dive"`
	CategoryNotes string       `json:"category_notes,omitempty"`
}

// MessagingPillar is one brand messaging pillar.
type MessagingPillar struct {
	Pillar     string `json:"pillar" validate:"required"`
	KeyMessage string `json:"key_message" validate:"required"`
}

// ClaimsRules lists what the brand may and may not say.
type ClaimsRules struct {
	Allowed    []string `json:"allowed"`
	NotAllowed []string `json:"not_allowed"`
	NeedsProof []string `json:"needs_proof"`
}

// CampaignFoundations is the strategic core downstream agents build on.
type CampaignFoundations struct {
	PositioningStatement     string            `json:"positioning_statement" validate:"required"`
	MessagingPillars         []MessagingPillar `json:"messaging_pillars" validate:"required,min=1,dive"`
	ProofPoints              []string          `json:"proof_points"`
	ClaimsRules              ClaimsRules       `json:"claims_rules"`
	RecommendedCTAPatterns   []string          `json:"recommended_cta_patterns"`
	SuggestedChannelStrategy string            `json:"suggested_channel_strategy,omitempty"`
	ContentThemes            []string          `json:"content_themes"`
	ContentSeries            []string          `json:"content_series"`
	First30DaysPlan          string            `json:"first_30_days_plan,omitempty"`
}

// DeckSlideOutline is a slide suggested by research for the client deck.
type DeckSlideOutline struct {
	Title   string   `json:"title" validate:"required"`
	Bullets []string `json:"bullets"`
}

// ResearchPack is the research_foundation_pack_json payload.
type ResearchPack struct {
	Sources                   []Source            `json:"sources" validate:"dive"`
	LeanCanvas                map[string]string   `json:"lean_canvas"`
	SWOT                      SWOT                `json:"swot"`
	CompetitorLandscape       CompetitorLandscape `json:"competitor_landscape"`
	MarketAndAudienceInsights json.RawMessage     `json:"market_and_audience_insights,omitempty"`
	CampaignFoundations       CampaignFoundations `json:"campaign_foundations"`
	ClientDeckOutline         []DeckSlideOutline  `json:"client_deck_outline" validate:"dive"`
	Assumptions               []string            `json:"assumptions"`
	UnknownsAndQuestions      []string            `json:"unknowns_and_questions"`
	SourcesNeeded             []string            `json:"sources_needed"`
}

// KBFile is one knowledge-base document produced by the KB builder.
type KBFile struct {
	Filename string `json:"filename" validate:"required"`
	Title    string `json:"title" validate:"required"`
	Format   string `json:"format" validate:"required,oneof=md txt"`
	Content  string `json:"content" validate:"required"`
}

// Slide is one presentation slide.
type Slide struct {
	Title            string   `json:"title" validate:"required"`
	KeyPoints        []string `json:"key_points"`
	SpeakerNotes     string   `json:"speaker_notes,omitempty"`
	VisualSuggestion string   `json:"visual_suggestion,omitempty"`
}

// PresentationContent is the presentation_content_json payload.
type PresentationContent struct {
	ClientName string  `json:"client_name" validate:"required"`
	DeckTitle  string  `json:"deck_title" validate:"required"`
	Slides     []Slide `json:"slides" validate:"required,min=1,dive"`
}

// ContentPost is one post of a content plan.
type ContentPost struct {
	Day         int      `json:"day" validate:"min=1,max=31"`
	Channel     string   `json:"channel" validate:"required"`
	Format      string   `json:"format,omitempty"`
	Pillar      string   `json:"pillar,omitempty"`
	Hook        string   `json:"hook" validate:"required"`
	Caption     string   `json:"caption" validate:"required"`
	CTA         string   `json:"cta,omitempty"`
	Hashtags    []string `json:"hashtags,omitempty"`
	VisualBrief string   `json:"visual_brief,omitempty"`
}

// ContentPlan is the content_plan_json payload.
type ContentPlan struct {
	StrategyOverview string        `json:"strategy_overview" validate:"required"`
	Posts            []ContentPost `json:"posts" validate:"required,min=1,dive"`
}

// QAResult is the review of one post, matched by its position in the plan.
type QAResult struct {
	PostIndex       int      `json:"post_index" validate:"min=0"`
	OverallStatus   string   `json:"overall_status" validate:"required,oneof=approved minor_edits needs_revision"`
	Issues          []string `json:"issues"`
	SuggestedEdits  string   `json:"suggested_edits,omitempty"`
	ComplianceNotes string   `json:"compliance_notes,omitempty"`
}

// QASummary counts results by overall status.
type QASummary struct {
	Total         int `json:"total"`
	Approved      int `json:"approved"`
	MinorEdits    int `json:"minor_edits"`
	NeedsRevision int `json:"needs_revision"`
}

// QAResults is the qa_results_json payload.
type QAResults struct {
	Results []QAResult `json:"results" validate:"required,min=1,dive"`
	Summary QASummary  `json:"summary"`
}

// Summarize counts results by status.
func Summarize(results []QAResult) QASummary {
	s := QASummary{Total: len(results)}
	for _, r := range results {
		switch r.OverallStatus {
		case QAStatusApproved:
			s.Approved++
		case QAStatusMinorEdits:
			s.MinorEdits++
		case QAStatusNeedsRevision:
			s.NeedsRevision++
		}
	}
	return s
}
