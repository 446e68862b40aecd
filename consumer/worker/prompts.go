package worker

import (
	"fmt"
	"strings"

	"github.com/vinolens/vinolens-analyzer/entity"
)

const extractionPrompt = `You are a sommelier assistant. Identify every wine visible in this image.
Respond with ONLY a JSON array, no prose. Each element must be an object with
these string fields (omit a field when it is not readable on the label):
"name", "vintage", "producer", "region", "varietal".
If no wine is recognizable, respond with an empty array: []`

func enrichmentPrompt(item entity.Item) string {
	var id strings.Builder
	id.WriteString(item.DisplayName())
	if item.Vintage != "" {
		id.WriteString(" " + item.Vintage)
	}
	if item.Producer != "" && item.Producer != item.Name {
		id.WriteString(", " + item.Producer)
	}
	if item.Region != "" {
		id.WriteString(", " + item.Region)
	}
	if item.Varietal != "" {
		id.WriteString(" (" + item.Varietal + ")")
	}

	return fmt.Sprintf(`You are a sommelier assistant. Assess the wine "%s".
Respond with ONLY a JSON object, no prose, with these fields:
"score" (integer 0-100 quality estimate),
"summary" (2-3 sentence tasting description),
"pairings" (array of 3-5 food pairing strings),
"price_estimate" (typical retail price as a string, e.g. "$25-35"),
"value_ratio" (one of "poor", "fair", "good", "excellent"),
"flavor_profile" (object mapping flavor dimensions like "fruit", "acidity", "tannin", "body", "oak" to integers 1-10),
"review_snippets" (array of 1-3 short critic-style review strings).`, id.String())
}
