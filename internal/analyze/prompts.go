package analyze

import (
	"fmt"

	"github.com/spherical/screenshot-wizard/internal/domain"
)

const textPrompt = `You are given one or more screenshots or document pages.

Transcribe ALL readable text exactly as it appears, preserving line breaks and reading order.
When several images are supplied, transcribe them in order and separate them with a blank line.
Then suggest up to %d categories that describe the content. Categories are concise (1-3 words),
for example "Email", "Invoice", "Code Snippet", "Chat Message", "Error Log", "Receipt".

Respond with a single JSON object in exactly this shape:
{"mode": "text", "text": "<transcribed text>", "categories": ["Category1"]}

If no text is visible, set "text" to an empty string. Always provide at least one category.`

const graphicPrompt = `You are given one or more images such as photos, charts, diagrams or UI mockups.

Describe what the image shows in a few clear sentences: the subject, notable elements, and any
visible text that matters for understanding it. Then suggest up to %d categories that best describe
the content. Categories are concise (1-3 words), for example "Photo", "Bar Chart", "Diagram",
"Screenshot", "Landscape".

Respond with a single JSON object in exactly this shape:
{"mode": "graphic", "text": "<description>", "categories": ["Category1"]}

Always provide at least one category.`

const autoPrompt = `You are given one or more images. First decide whether the content is mainly TEXT
(documents, chats, code, emails, articles) or mainly GRAPHIC (photos, charts, diagrams, artwork).

If it is text, transcribe ALL readable text exactly as it appears, preserving line breaks.
If it is graphic, describe what the image shows in a few clear sentences.
Then suggest up to %d categories that describe the content, each 1-3 words long.

Respond with a single JSON object in exactly this shape:
{"mode": "text" or "graphic", "text": "<transcription or description>", "categories": ["Category1"]}

Always provide at least one category.`

// promptFor returns the instruction sent alongside the images. ModeAuto asks
// the model to report the mode it chose.
func promptFor(mode domain.Mode, maxCategories int) string {
	switch mode {
	case domain.ModeText:
		return fmt.Sprintf(textPrompt, maxCategories)
	case domain.ModeGraphic:
		return fmt.Sprintf(graphicPrompt, maxCategories)
	default:
		return fmt.Sprintf(autoPrompt, maxCategories)
	}
}
