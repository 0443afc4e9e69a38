package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	prompt, err := Get("content-planner-system")
	require.NoError(t, err)
	assert.Contains(t, prompt, "exactly 30")

	_, err = Get("nonexistent-key")
	assert.ErrorContains(t, err, "not found")
}

func TestEveryAgentHasSystemAndUserPrompt(t *testing.T) {
	keys, err := Keys()
	require.NoError(t, err)

	for _, agent := range []string{"research", "kb-builder", "presentation", "content-planner", "qa"} {
		assert.Contains(t, keys, agent+"-system")
		assert.Contains(t, keys, agent+"-user")
	}
}

func TestRender(t *testing.T) {
	out, err := Render("qa-user", map[string]string{
		"ClientName":   "Acme",
		"Language":     "en",
		"BrandContext": "{}",
		"PostCount":    "30",
		"ContentPlan":  "{}",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Client: Acme"))
	assert.NotContains(t, out, "{{.")
}

func TestRender_UnfilledPlaceholder(t *testing.T) {
	_, err := Render("qa-user", map[string]string{"ClientName": "Acme"})
	assert.ErrorContains(t, err, "{{.Language}}")
}

func TestRender_ValuesAreNotExpanded(t *testing.T) {
	out, err := Render("kb-builder-user", map[string]string{
		"ClientName":   "Acme",
		"ResearchPack": `{"note": "{{.ClientName}} {{.NotATemplate}}"}`,
	})
	require.NoError(t, err)
	assert.Contains(t, out, `{"note": "{{.ClientName}} {{.NotATemplate}}"}`)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, Placeholders("{{.A}} and {{.B}} and {{.A}}"))
	assert.Empty(t, Placeholders("no placeholders"))
	assert.Empty(t, Placeholders("broken {{.A"))
}
