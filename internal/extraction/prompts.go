package extraction

import (
	"fmt"
	"strings"
	"time"
)

// receiptJSONStructure describes the shape the model must return. Kept close
// to prose so the model treats it as instructions, not a strict schema.
func receiptJSONStructure() string {
	cats := strings.Join(Categories, ", ")
	return fmt.Sprintf(`{
    "description": "brief description of the receipt, and comment on changes due to user comments if there are any",
    "category": "closest matching category from this list: %s",
    "merchant": "name of the store or merchant",
    "positions": [
        {
            "description": "item description",
            "quantity": "item quantity as a number or weight",
            "category": "item category from this list: %s. Cat food should be categorized as 'cat'",
            "price": "item price as a number. If this value is negative it is most likely a discount; ignore negative positions."
        }
    ],
    "total_amount": "total amount as a number",
    "date": "receipt date in DD-MM-YYYY format if visible, otherwise null. Convert any other format to DD-MM-YYYY."
}`, cats, cats)
}

func userAdjustmentInstructions(comment string) string {
	return fmt.Sprintf(`IMPORTANT: User comments override image data. Apply these rules:
- Override any field explicitly mentioned by the user
- Date without year: use current year, format as DD-MM-YYYY
- Currency conversion: apply to all amounts, use exchange rates from the date of purchase

User comments: %q`, comment)
}

func imagePrompt(comment string, now time.Time) string {
	base := fmt.Sprintf(
		"Analyze this receipt image and extract the following information. Current date for reference: %s. Return ONLY a JSON object with these properties:\n%s",
		now.Format("02-01-2006"), receiptJSONStructure(),
	)
	if comment == "" {
		return base
	}
	return base + "\n\nDate handling: If the receipt shows a date without a year, use the current year. Format as DD-MM-YYYY.\n\n" +
		userAdjustmentInstructions(comment)
}

func textPrompt(text, comment string, now time.Time) string {
	prompt := fmt.Sprintf(`Create a receipt from this purchase description. Rules:
- One position if no items are specified, use the total as its price
- Default date: %s. For dates without a year, use the current year. Handle relative dates.
- Default merchant: Unknown
- Quantity: 1 if not specified
- Categories from the available list
- All output in ENGLISH (translate if needed)

Return ONLY a JSON object with this structure: %s

User description: %q`, now.Format("02-01-2006"), receiptJSONStructure(), text)
	if comment != "" {
		prompt += "\n\n" + userAdjustmentInstructions(comment)
	}
	return prompt
}

func voicePrompt(comment string, now time.Time) string {
	prompt := fmt.Sprintf(`Listen to this voice message describing a purchase and create a receipt from it. Rules:
- One position if no items are specified, use the total as its price
- Default date: %s. For dates without a year, use the current year. Handle relative dates.
- Default merchant: Unknown
- Quantity: 1 if not specified
- Categories from the available list
- All output in ENGLISH (translate if needed)

Return ONLY a JSON object with this structure: %s`, now.Format("02-01-2006"), receiptJSONStructure())
	if comment != "" {
		prompt += "\n\n" + userAdjustmentInstructions(comment)
	}
	return prompt
}

func revisePrompt(originalJSON, comment string, now time.Time) string {
	return fmt.Sprintf(`Update this JSON based on user comments: %q

Original JSON: %s
Current date: %s

Return ONLY the updated JSON object, nothing else. Update the "description" field to note the changes.
Date handling: If the user provides a date without a year, use the current year. Format as DD-MM-YYYY.
Language: Keep the original language unless explicitly changed. Description field in ENGLISH.

%s`, comment, originalJSON, now.Format("02-01-2006"), userAdjustmentInstructions(comment))
}

// stripCodeFences removes markdown fences the model sometimes wraps JSON in,
// then cuts to the outermost object.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end > start {
		return s[start : end+1]
	}
	return s
}
