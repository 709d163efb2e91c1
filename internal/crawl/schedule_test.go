package crawl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseCron(t *testing.T) {
	_, err := ParseCron("0 0 * * 0")
	require.NoError(t, err)

	_, err = ParseCron("*/5 * * * *")
	require.NoError(t, err)

	_, err = ParseCron("not a schedule")
	require.Error(t, err)

	_, err = ParseCron("")
	require.Error(t, err)
}

func TestDue(t *testing.T) {
	// 2025-06-01 is a Sunday.
	created := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	lastWeek := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		target Target
		now    time.Time
		want   bool
	}{
		{
			name: "weekly target due after a week",
			target: Target{
				CronExpression: "0 0 * * 0",
				Enabled:        true,
				CreatedAt:      created,
			},
			now:  time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
			want: true,
		},
		{
			name: "weekly target not yet due",
			target: Target{
				CronExpression: "0 0 * * 0",
				Enabled:        true,
				CreatedAt:      created,
			},
			now:  time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
			want: false,
		},
		{
			name: "anchored on last crawl, not creation",
			target: Target{
				CronExpression: "0 0 * * 0",
				Enabled:        true,
				CreatedAt:      created,
				LastCrawled:    &lastWeek,
			},
			now:  time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
			want: false,
		},
		{
			name: "disabled target never due",
			target: Target{
				CronExpression: "* * * * *",
				Enabled:        false,
				CreatedAt:      created,
			},
			now:  created.Add(24 * time.Hour),
			want: false,
		},
		{
			name: "malformed cron never due",
			target: Target{
				CronExpression: "once in a blue moon",
				Enabled:        true,
				CreatedAt:      created,
			},
			now:  created.Add(24 * time.Hour),
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Due(tt.target, tt.now))
		})
	}
}

func TestPatternFor(t *testing.T) {
	product := Pattern{Type: PatternProductPage, Selectors: ContentSelectors{"title": "h1"}}
	press := Pattern{Type: PatternPressRelease, Selectors: ContentSelectors{"title": ".headline"}}
	pricing := Pattern{Type: PatternPricing, Selectors: ContentSelectors{"price": ".amount"}}
	target := Target{Patterns: []Pattern{product, press, pricing}}

	require.Equal(t, press, target.PatternFor("https://example.com/newsroom/atlas-launch"))
	require.Equal(t, pricing, target.PatternFor("https://example.com/pricing/fleet"))
	require.Equal(t, product, target.PatternFor("https://example.com/robots/atlas"))

	// No hint matches: first configured pattern wins.
	require.Equal(t, product, target.PatternFor("https://example.com/about"))

	// No patterns at all: bare article fallback.
	empty := Target{}
	require.Equal(t, PatternArticle, empty.PatternFor("https://example.com/x").Type)
}
