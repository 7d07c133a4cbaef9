package session

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/kailas-cloud/homefinder/internal/domain"
)

// Language is a spoken language code.
type Language string

const (
	// English is the default language.
	English Language = "en"
	// Japanese is the only other supported language.
	Japanese Language = "ja"
)

var languageNames = map[Language]string{
	English:  "English",
	Japanese: "Japanese",
}

var greetings = map[Language]string{
	English:  "Hello! I'm now speaking in English. How can I help you today?",
	Japanese: "こんにちは！今、日本語で話しています。今日はどのようにお手伝いできますか？",
}

var instructions = map[Language]string{
	English:  "You are a helpful assistant. Always respond in English.",
	Japanese: "あなたは親切なアシスタントです。常に日本語で応答してください。",
}

// ParseLanguage validates a language code.
func ParseLanguage(code string) (Language, error) {
	l := Language(strings.ToLower(strings.TrimSpace(code)))
	if _, ok := languageNames[l]; !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedLanguage, code)
	}
	return l, nil
}

// Name returns the human-readable language name.
func (l Language) Name() string { return languageNames[l] }

// Greeting returns the line spoken after switching to l.
func (l Language) Greeting() string { return greetings[l] }

// Instructions returns the system line that pins the model to l.
func (l Language) Instructions() string { return instructions[l] }

// AlreadySpeaking returns the line spoken when a switch to the current language is requested.
func (l Language) AlreadySpeaking() string {
	return fmt.Sprintf("I'm already speaking in %s.", l.Name())
}

// Phase is the contact collection step.
type Phase string

// Contact collection phases.
const (
	PhaseIdle          Phase = "idle"
	PhaseAwaitingEmail Phase = "awaiting_email"
	PhaseAwaitingPhone Phase = "awaiting_phone"
	PhaseSubmitted     Phase = "submitted"
)

// Contact holds the caller's follow-up details as they are collected.
type Contact struct {
	Phase Phase  `json:"phase"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// State is the per-call conversation state. Transitions return a new value.
type State struct {
	ID       string   `json:"id"`
	Language Language `json:"language"`
	Contact  Contact  `json:"contact"`
	Ended    bool     `json:"ended"`
}

// New creates a fresh session in the given language.
func New(id string, lang Language) State {
	if lang == "" {
		lang = English
	}
	return State{ID: id, Language: lang, Contact: Contact{Phase: PhaseIdle}}
}

func (s State) active() error {
	if s.Ended {
		return fmt.Errorf("%w: %s", domain.ErrSessionEnded, s.ID)
	}
	return nil
}

// SwitchLanguage moves the session to lang. The bool reports whether anything changed.
func (s State) SwitchLanguage(lang Language) (State, bool, error) {
	if err := s.active(); err != nil {
		return s, false, err
	}
	if _, ok := languageNames[lang]; !ok {
		return s, false, fmt.Errorf("%w: %q", domain.ErrUnsupportedLanguage, lang)
	}
	if s.Language == lang {
		return s, false, nil
	}
	s.Language = lang
	return s, true, nil
}

// ShowContactForm opens contact collection. Repeating it while a step is pending is a no-op.
func (s State) ShowContactForm() (State, error) {
	if err := s.active(); err != nil {
		return s, err
	}
	switch s.Contact.Phase {
	case PhaseIdle:
		s.Contact.Phase = PhaseAwaitingEmail
		return s, nil
	case PhaseAwaitingEmail, PhaseAwaitingPhone:
		return s, nil
	default:
		return s, transitionErr(s.Contact.Phase, PhaseAwaitingEmail)
	}
}

// SubmitEmail records the email and advances to awaiting_phone.
func (s State) SubmitEmail(email string) (State, error) {
	if err := s.active(); err != nil {
		return s, err
	}
	if s.Contact.Phase != PhaseAwaitingEmail {
		return s, transitionErr(s.Contact.Phase, PhaseAwaitingPhone)
	}
	addr, err := ValidateEmail(email)
	if err != nil {
		return s, err
	}
	s.Contact.Email = addr
	s.Contact.Phase = PhaseAwaitingPhone
	return s, nil
}

// SubmitPhone records the phone number and completes collection.
func (s State) SubmitPhone(phone string) (State, error) {
	if err := s.active(); err != nil {
		return s, err
	}
	if s.Contact.Phase != PhaseAwaitingPhone {
		return s, transitionErr(s.Contact.Phase, PhaseSubmitted)
	}
	num, err := ValidatePhone(phone)
	if err != nil {
		return s, err
	}
	s.Contact.Phone = num
	s.Contact.Phase = PhaseSubmitted
	return s, nil
}

// SubmitContact runs the remaining contact steps with both values at once.
// From idle it passes through awaiting_email; from awaiting_phone only the phone is taken.
func (s State) SubmitContact(email, phone string) (State, error) {
	next := s
	var err error
	if next.Contact.Phase == PhaseIdle {
		if next, err = next.ShowContactForm(); err != nil {
			return s, err
		}
	}
	if next.Contact.Phase == PhaseAwaitingEmail {
		if next, err = next.SubmitEmail(email); err != nil {
			return s, err
		}
	}
	if next, err = next.SubmitPhone(phone); err != nil {
		return s, err
	}
	return next, nil
}

// End marks the call finished. Ending twice is an error.
func (s State) End() (State, error) {
	if err := s.active(); err != nil {
		return s, err
	}
	s.Ended = true
	return s, nil
}

func transitionErr(from, to Phase) error {
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
}

// ValidateEmail returns the bare address or ErrInvalidContact.
func ValidateEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		return "", fmt.Errorf("%w: email %q", domain.ErrInvalidContact, email)
	}
	return addr.Address, nil
}

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// ValidatePhone strips separators and checks for 7 to 15 digits, with an optional leading +.
func ValidatePhone(phone string) (string, error) {
	p := phoneSeparators.Replace(strings.TrimSpace(phone))
	digits := strings.TrimPrefix(p, "+")
	if len(digits) < 7 || len(digits) > 15 {
		return "", fmt.Errorf("%w: phone %q", domain.ErrInvalidContact, phone)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: phone %q", domain.ErrInvalidContact, phone)
		}
	}
	return p, nil
}
