package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waio/crawlwatch/internal/visit"
)

// TestIdentifyKnownAgents checks the built-in table against realistic
// user-agent strings with surrounding noise.
func TestIdentifyKnownAgents(t *testing.T) {
	t.Parallel()

	cl := Default()

	cases := []struct {
		name     string
		ua       string
		want     string
		category visit.Category
	}{
		{
			name:     "googlebot",
			ua:       "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			want:     "Googlebot",
			category: visit.CategorySearchEngine,
		},
		{
			name:     "gptbot",
			ua:       "Mozilla/5.0 (compatible; GPTBot/1.0; +https://openai.com/gptbot)",
			want:     "GPTBot",
			category: visit.CategoryLLM,
		},
		{
			name:     "bingbot lowercase",
			ua:       "Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)",
			want:     "Bingbot",
			category: visit.CategorySearchEngine,
		},
		{
			name:     "claudebot",
			ua:       "Mozilla/5.0 (compatible; ClaudeBot/1.0; +claudebot@anthropic.com)",
			want:     "ClaudeBot",
			category: visit.CategoryLLM,
		},
		{
			name:     "facebook preview",
			ua:       "facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)",
			want:     "FacebookBot",
			category: visit.CategorySocial,
		},
		{
			name:     "yandex",
			ua:       "Mozilla/5.0 (compatible; YandexBot/3.0; +http://yandex.com/bots)",
			want:     "YandexBot",
			category: visit.CategorySearchEngine,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := cl.Identify(tc.ua)
			assert.Equal(t, tc.want, got.Name)
			assert.Equal(t, tc.category, got.Category)
			assert.True(t, got.Automated())
		})
	}
}

// TestIdentifyCaseInsensitive verifies matching ignores case.
func TestIdentifyCaseInsensitive(t *testing.T) {
	t.Parallel()

	cl := Default()
	got := cl.Identify("mozilla/5.0 (compatible; GOOGLEBOT/2.1)")
	assert.Equal(t, "Googlebot", got.Name)
}

// TestIdentifyGenericFallback verifies that automation-looking agents with no
// matching rule land in the generic bucket.
func TestIdentifyGenericFallback(t *testing.T) {
	t.Parallel()

	cl := Default()

	got := cl.Identify("SomeRandomSpider/1.0")
	assert.Equal(t, "Generic Bot", got.Name)
	assert.Equal(t, visit.CategoryOther, got.Category)
	assert.True(t, got.Automated())

	got = cl.Identify("my-crawl-agent/0.2")
	assert.Equal(t, "Generic Bot", got.Name)
}

// TestIdentifyUnknown verifies browsers and empty agents classify as unknown.
func TestIdentifyUnknown(t *testing.T) {
	t.Parallel()

	cl := Default()

	browser := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	got := cl.Identify(browser)
	assert.Equal(t, "Unknown", got.Name)
	assert.Equal(t, visit.CategoryUnknown, got.Category)
	assert.False(t, got.Automated())

	got = cl.Identify("")
	assert.Equal(t, visit.CategoryUnknown, got.Category)
}

// TestIdentifyPrecedence verifies that when two patterns could match, the
// earlier rule wins. Google-Extended contains "Google" but must not classify
// as Googlebot, and a custom rule placed ahead of the table shadows it.
func TestIdentifyPrecedence(t *testing.T) {
	t.Parallel()

	cl := Default()
	got := cl.Identify("Mozilla/5.0 (compatible; Google-Extended/1.0)")
	assert.Equal(t, "Google-Extended", got.Name)
	assert.Equal(t, visit.CategoryLLM, got.Category)

	custom, err := New([]Rule{
		{Pattern: `Googlebot`, Name: "HouseGoogle", Company: "Internal", Category: visit.CategoryOther},
	})
	require.NoError(t, err)
	got = custom.Identify("Mozilla/5.0 (compatible; Googlebot/2.1)")
	assert.Equal(t, "HouseGoogle", got.Name)
}

// TestNewRejectsBadRules verifies rule validation.
func TestNewRejectsBadRules(t *testing.T) {
	t.Parallel()

	_, err := New([]Rule{{Pattern: "", Name: "empty", Category: visit.CategoryOther}})
	require.Error(t, err)

	_, err = New([]Rule{{Pattern: `x(`, Name: "broken", Category: visit.CategoryOther}})
	require.Error(t, err)

	_, err = New([]Rule{{Pattern: `x`, Name: "badcat", Category: visit.Category("nope")}})
	require.Error(t, err)
}

// TestDefaultRulesCopy ensures mutating the returned slice does not corrupt
// the built-in table.
func TestDefaultRulesCopy(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()
	require.NotEmpty(t, rules)
	rules[0].Name = "mutated"

	assert.NotEqual(t, "mutated", DefaultRules()[0].Name)
}
