package concepts

import "fmt"

const extractionSystemPrompt = `You identify the key concepts in a user's notes. ` +
	`Concepts are concrete entities, topics, or ideas a reader might want to link to ` +
	`other notes. Respond with only a JSON object of the form ` +
	`{"concepts": [{"name": "...", "category": "..."}]}. ` +
	`Categories are short lowercase nouns such as "company", "product", or "topic"; ` +
	`omit the category when none fits. Order concepts by importance.`

func extractionPrompt(text string, maxConcepts int) string {
	return fmt.Sprintf("Extract at most %d concepts from the following notes:\n\n%s", maxConcepts, text)
}
