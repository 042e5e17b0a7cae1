package flow

import (
	"fmt"
	"strings"

	"natalbot/internal/domain"
)

// User-facing prompt and notice texts, one per conversation step.
const (
	promptName = "Welcome! Let's create your natal chart. ✨\n\n" +
		"What's your name?\n\n" +
		"You can send /cancel at any time to stop and delete your data."

	promptTime = "Perfect! ⏰\n\nWhat time were you born?\n\n" +
		"Type the time (e.g., '14:30' or '2:30 PM'), or 'unknown' if you don't know."

	promptPlace = "Excellent! 🌍\n\nFinally, where were you born?\n\n" +
		"Type a city name, e.g., 'London' or 'Paris, France'."

	noticeTimeDefaulted = "No problem — I'll use 12:00 noon as your birth time. " +
		"Keep in mind some chart points depend on the exact time, so the result is approximate."

	noticeGenerating = "⏳ Generating your natal chart...\n\n" +
		"This may take a few seconds. Please wait, or send /cancel to stop."

	noticeStillGenerating = "Your chart is still being generated. Please wait, or send /cancel to stop."

	noticeCancelled = "Conversation cancelled. All your data has been deleted. 🔒\n\n" +
		"Send /start whenever you want to begin again."

	noticeNothingToCancel = "There's nothing to cancel right now. Send /start to begin."

	noticeTooManyRetries = "Too many invalid attempts — I've stopped this conversation and deleted " +
		"everything you entered. Send /start to try again."

	noticeExpired = "Your session expired after inactivity and all your data was deleted. 🔒\n\n" +
		"Send /start to begin again."

	noticeGeocodingUnavailable = "Sorry, the location service is temporarily unavailable. 🙏\n\n" +
		"This wasn't your fault — please try sending your birth place again in a moment."

	noticeGenerationFailed = "❌ Chart generation failed.\n\n" +
		"Something went wrong on our side and your data has been deleted. " +
		"Please try again from the beginning with /start."

	noticeUnexpectedError = "❌ Something unexpected went wrong. Your data has been deleted.\n\n" +
		"Please try again with /start."

	helpText = "I create natal charts from your birth data. 🔮\n\n" +
		"Commands:\n" +
		"  /start  - begin a new chart (discards any data already entered)\n" +
		"  /cancel - stop and delete everything you've entered\n" +
		"  /help   - show this message\n\n" +
		"I'll ask for your name, birth date, birth time, and birth place. " +
		"Your data is kept in memory only while we talk and is deleted as soon as " +
		"your chart is delivered, you cancel, or the session times out."

	unknownCommandText = "I don't know that command. Try /start, /help, or /cancel."
)

func promptDate(name string) string {
	return fmt.Sprintf("Great, %s! 📅\n\nWhat's your birth date?\n\n"+
		"Type the date (e.g., '1990-05-15' or 'May 15, 1990').", name)
}

func promptLocationNotFound(place string) string {
	return fmt.Sprintf("I couldn't find %q. Please try one of the following:\n"+
		"  - Include the country (e.g., 'London, UK' instead of 'London')\n"+
		"  - Use the full city name (e.g., 'New York City' instead of 'NYC')\n"+
		"  - Try a nearby major city if yours is small", place)
}

func promptLocationChoices(candidates []domain.ResolvedLocation) string {
	var b strings.Builder
	b.WriteString("I found more than one possible match. 🌍 Which one is it?\n\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "  %d. %s (%s)\n", i+1, c.Name, c.Timezone)
	}
	b.WriteString("\nReply with the number, or type a different place name.")
	return b.String()
}

func successCaption(draft *domain.BirthDraft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✨ Your Natal Chart ✨\n\nGenerated for %s\nBorn: %s at %s\nLocation: %s\n",
		draft.Name, draft.Date.String(), draft.EffectiveTime().String(), draft.Location.Name)
	if draft.TimeDefaulted {
		b.WriteString("(birth time unknown — chart uses 12:00 noon)\n")
	}
	b.WriteString("\nAll your data has been securely deleted. 🔒\n\nWant another chart? Send /start")
	return b.String()
}
