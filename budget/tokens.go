package budget

import (
	"unicode/utf8"

	"memchat/chat"
)

// AttachmentPlaceholderTokens is charged for an attachment without extracted
// text, covering the bracketed placeholder that replaces it.
const AttachmentPlaceholderTokens = 16

// EstimateTokens approximates the token count of text as ceil(chars/4).
// It is not a tokenizer. The figure is only stable and comparable across the
// system, which is all the budgeting needs.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// MessageCost is the estimated cost of a message including its attachments.
func MessageCost(m chat.Message) int {
	cost := EstimateTokens(m.Content)
	for _, f := range m.Attachments {
		if f.TextContent != "" {
			cost += EstimateTokens(f.TextContent)
		} else {
			cost += AttachmentPlaceholderTokens
		}
	}
	return cost
}

// TotalCost sums MessageCost over messages.
func TotalCost(messages []chat.Message) int {
	total := 0
	for _, m := range messages {
		total += MessageCost(m)
	}
	return total
}
