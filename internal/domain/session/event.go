package session

// Event topics on the per-session frontend feed.
const (
	TopicMatches     = "real_estate_matches"
	TopicContactForm = "contact_form"
	TopicCall        = "call"
	TopicLanguage    = "language"
)

// Event is one message pushed to the frontend of a call.
type Event struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
}

// MatchesEvent carries the full records of a search so the frontend can render them.
func MatchesEvent(data any) Event {
	return Event{Topic: TopicMatches, Type: "matches", Data: data}
}

// ContactFormEvent asks the frontend to show the contact form.
func ContactFormEvent() Event {
	return Event{Topic: TopicContactForm, Type: "contact_form"}
}

// EndCallEvent tells the frontend the agent hung up.
func EndCallEvent() Event {
	return Event{Topic: TopicCall, Type: "end_call"}
}

// LanguageEvent announces the language now in use.
func LanguageEvent(lang Language) Event {
	return Event{Topic: TopicLanguage, Type: "language", Data: string(lang)}
}
