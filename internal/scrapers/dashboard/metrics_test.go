package dashboard

import (
	"context"
	"perfsnapshot-backend/internal/components/telemetry"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func pageFromString(t testing.TB, markup string) *Page {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		t.Fatal(err)
	}
	return NewPage(doc)
}

type strategyCase struct {
	name     string
	markup   string
	label    string
	expected string
	ok       bool
}

func runStrategyCases(t *testing.T, strategy Strategy, cases []strategyCase) {
	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			value, ok := strategy.TryExtract(pageFromString(t, test.markup), test.label)
			require.Equal(t, test.ok, ok)
			require.Equal(t, test.expected, value)
		})
	}
}

func TestExactTextStrategy(t *testing.T) {
	runStrategyCases(t, ExactTextStrategy{}, []strategyCase{
		{
			name:     "strong sibling",
			markup:   `<div><span>Growth</span><strong>12.4%</strong></div>`,
			label:    "Growth",
			expected: "12.4%",
			ok:       true,
		},
		{
			name:     "whitespace between siblings",
			markup:   "<div><span> Absolute\n Gain </span>\n\t<span>\n10.02%  </span></div>",
			label:    "Absolute Gain",
			expected: "10.02%",
			ok:       true,
		},
		{
			name:     "first match wins",
			markup:   `<p><b>Equity</b><i>1</i></p><p><b>Equity</b><i>2</i></p>`,
			label:    "Equity",
			expected: "1",
			ok:       true,
		},
		{
			name:   "label with trailing colon does not match",
			markup: `<div><span>Broker:</span><span>Example Broker</span></div>`,
			label:  "Broker",
		},
		{
			name:   "label is case sensitive",
			markup: `<div><span>broker</span><span>Example Broker</span></div>`,
			label:  "Broker",
		},
		{
			name:   "no sibling",
			markup: `<div><span>Growth</span></div>`,
			label:  "Growth",
		},
		{
			name:   "sibling containing markup is rejected",
			markup: `<div><span>Growth</span><span>&lt;i&gt;12%&lt;/i&gt;</span></div>`,
			label:  "Growth",
		},
		{
			name:   "scripts are not labels",
			markup: `<div><script>Growth</script><span>12%</span></div>`,
			label:  "Growth",
		},
	})
}

func TestTableStrategy(t *testing.T) {
	runStrategyCases(t, TableStrategy{}, []strategyCase{
		{
			name:     "first column pair",
			markup:   `<table><tr><td>Broker</td><td>Example Broker</td></tr></table>`,
			label:    "Broker",
			expected: "Example Broker",
			ok:       true,
		},
		{
			name: "second column pair",
			markup: `<table>
				<tr><td>Deposits</td><td>$10</td><td>Withdrawals</td><td>$2</td></tr>
			</table>`,
			label:    "Withdrawals",
			expected: "$2",
			ok:       true,
		},
		{
			name: "header cells",
			markup: `<table>
				<tr><th>Leverage</th><td>1:500</td></tr>
			</table>`,
			label:    "Leverage",
			expected: "1:500",
			ok:       true,
		},
		{
			name: "second table",
			markup: `<table><tr><td>a</td><td>b</td></tr></table>
				<table><tr><td>Swap</td><td>-$3.10</td></tr></table>`,
			label:    "Swap",
			expected: "-$3.10",
			ok:       true,
		},
		{
			name: "third table is ignored",
			markup: `<table><tr><td>a</td><td>b</td></tr></table>
				<table><tr><td>c</td><td>d</td></tr></table>
				<table><tr><td>Swap</td><td>-$3.10</td></tr></table>`,
			label: "Swap",
		},
		{
			name: "columns past the second pair are ignored",
			markup: `<table>
				<tr><td>a</td><td>b</td><td>c</td><td>d</td><td>Lots</td><td>1.5</td></tr>
			</table>`,
			label: "Lots",
		},
		{
			name:   "case sensitive",
			markup: `<table><tr><td>BROKER</td><td>x</td></tr></table>`,
			label:  "Broker",
		},
		{
			name:   "empty value",
			markup: `<table><tr><td>Broker</td><td>  </td></tr></table>`,
			label:  "Broker",
		},
	})
}

func TestSiblingStrategy(t *testing.T) {
	runStrategyCases(t, SiblingStrategy{}, []strategyCase{
		{
			name:     "next sibling element",
			markup:   `<div><i>Equity</i><div>$12,400.00</div></div>`,
			label:    "Equity",
			expected: "$12,400.00",
			ok:       true,
		},
		{
			name:     "emphasized element in parent",
			markup:   `<div><strong>Growth</strong> is <span></span><b>12.4%</b></div>`,
			label:    "Growth",
			expected: "12.4%",
			ok:       true,
		},
		{
			name:     "next text node",
			markup:   "<p><em>Balance</em>\n  $12,345.67\n</p>",
			label:    "Balance",
			expected: "$12,345.67",
			ok:       true,
		},
		{
			name:   "label only",
			markup: `<p><em>Balance</em></p>`,
			label:  "Balance",
		},
	})
}

func TestExtractorStrategyOrder(t *testing.T) {
	extractor := NewExtractor(telemetry.SlogAPI{})

	// the exact-text match holds markup, so the table value is used instead
	page := pageFromString(t, `
		<div><span>Leverage</span><span>&lt;b&gt;1:100&lt;/b&gt;</span></div>
		<table><tr><td>Leverage</td><td>1:500</td></tr></table>
	`)
	value, strategy, ok := extractor.Extract(page, "Leverage")
	require.True(t, ok)
	require.Equal(t, "1:500", value)
	require.Equal(t, "table", strategy)

	page = pageFromString(t, `<p><em>Balance</em> $5</p>`)
	value, strategy, ok = extractor.Extract(page, "Balance")
	require.True(t, ok)
	require.Equal(t, "$5", value)
	require.Equal(t, "sibling", strategy)

	_, _, ok = extractor.Extract(page, "Equity")
	require.False(t, ok)
}

func TestExtractorCustomStrategies(t *testing.T) {
	extractor := NewExtractor(telemetry.SlogAPI{}, TableStrategy{})
	page := pageFromString(t, `<div><span>Growth</span><strong>12.4%</strong></div>`)
	_, _, ok := extractor.Extract(page, "Growth")
	require.False(t, ok)
}

func TestResolveKeepsEveryName(t *testing.T) {
	extractor := NewExtractor(telemetry.SlogAPI{})
	page := pageFromString(t, `
		<div><span>Growth</span><strong>12.4%</strong></div>
		<table><tr><td>Broker</td><td>Example Broker</td></tr></table>
	`)

	result := extractor.Resolve(context.Background(), page, []string{"Growth", "Broker", "Equity"})
	require.Len(t, result, 3)
	require.Equal(t, "12.4%", *result["Growth"])
	require.Equal(t, "Example Broker", *result["Broker"])

	equity, present := result["Equity"]
	require.True(t, present)
	require.Nil(t, equity)
}

func TestExtractedValuesNeverContainMarkup(t *testing.T) {
	extractor := NewExtractor(telemetry.SlogAPI{})
	page := pageFromString(t, `
		<div><span>A</span><span>&lt;div&gt;x&lt;/div&gt;</span></div>
		<table>
			<tr><td>B</td><td>&lt;span class="v"&gt;1&lt;/span&gt;</td></tr>
			<tr><td>C</td><td>plain</td></tr>
		</table>
		<p><em>D</em>&lt;br/&gt;</p>
	`)

	for _, label := range []string{"A", "B", "C", "D"} {
		value, _, ok := extractor.Extract(page, label)
		if !ok {
			continue
		}
		require.NotContains(t, value, "<", label)
	}
	value, _, ok := extractor.Extract(page, "C")
	require.True(t, ok)
	require.Equal(t, "plain", value)
}
