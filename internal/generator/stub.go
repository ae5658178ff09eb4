package generator

import (
	"fmt"
	"strings"

	"github.com/jimdaga/newscast/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func stubSearch(key models.EditionKey) *SearchResult {
	return &SearchResult{
		Content: fmt.Sprintf("%s edition for %s (%s), %s. Researchers announced a milestone in battery chemistry; "+
			"markets closed mixed ahead of central bank decisions; a late-season storm is expected to weaken before landfall.",
			titleCase(string(key.Type)), key.Region, key.Language, key.Date),
		Links: []models.GroundingLink{
			{URI: "https://example.com/battery-breakthrough", Title: "Battery chemistry milestone"},
			{URI: "https://example.com/markets-close", Title: "Markets close mixed"},
			{URI: "https://example.com/storm-update", Title: "Storm expected to weaken"},
		},
		FlashSummary: "Battery breakthrough, mixed markets, weakening storm.",
	}
}

func stubScript(key models.EditionKey, hosts []string) string {
	first, second := hosts[0], hosts[0]
	if len(hosts) > 1 {
		second = hosts[1]
	}
	lines := []string{
		fmt.Sprintf("%s: Good %s, this is your %s news edition.", first, greeting(key.Type), key.Region),
		fmt.Sprintf("%s: Let's start with a milestone in battery chemistry.", second),
		fmt.Sprintf("%s: Markets closed mixed ahead of central bank decisions.", first),
		fmt.Sprintf("%s: And a late-season storm is expected to weaken before landfall.", second),
	}
	return strings.Join(lines, "\n")
}

func greeting(t models.EditionType) string {
	switch t {
	case models.EditionMorning:
		return "morning"
	case models.EditionMidday:
		return "afternoon"
	default:
		return "evening"
	}
}

func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}
