package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/homefinder/internal/domain"
	"github.com/kailas-cloud/homefinder/internal/domain/listing"
	"github.com/kailas-cloud/homefinder/internal/domain/session"
	"github.com/kailas-cloud/homefinder/internal/logger"
	"github.com/kailas-cloud/homefinder/internal/metrics"
)

// Config holds conversation defaults.
type Config struct {
	DefaultLanguage session.Language
	DefaultTopK     int // top_k when the model omits it
}

// Service owns the conversation sessions of the voice agent and executes its tools.
// Calls for one session are serialized; different sessions run in parallel.
type Service struct {
	search   Searcher
	sessions SessionStore
	contacts ContactStore
	pub      Publisher
	cfg      Config
	locks    *keyedMutex
	logger   *zap.Logger
	newID    func() string
}

// New creates the agent service.
func New(
	search Searcher, sessions SessionStore, contacts ContactStore, pub Publisher,
	cfg Config, log *zap.Logger,
) *Service {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = session.English
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 3
	}
	return &Service{
		search:   search,
		sessions: sessions,
		contacts: contacts,
		pub:      pub,
		cfg:      cfg,
		locks:    newKeyedMutex(),
		logger:   log,
		newID:    uuid.NewString,
	}
}

// Start opens a new conversation. An empty language selects the default.
func (s *Service) Start(ctx context.Context, lang string) (session.State, error) {
	l := s.cfg.DefaultLanguage
	if lang != "" {
		var err error
		if l, err = session.ParseLanguage(lang); err != nil {
			return session.State{}, err
		}
	}

	st := session.New(s.newID(), l)
	if err := s.sessions.Save(ctx, st); err != nil {
		return session.State{}, fmt.Errorf("save session: %w", err)
	}
	logger.FromContext(ctx).Info("Session started",
		zap.String("session_id", st.ID), zap.String("language", string(l)))
	return st, nil
}

// Session returns the current state of a conversation.
func (s *Service) Session(ctx context.Context, id string) (session.State, error) {
	st, err := s.sessions.Get(ctx, id)
	if err != nil {
		return session.State{}, fmt.Errorf("get session: %w", err)
	}
	return st, nil
}

// SetLanguage switches the conversation language on behalf of the frontend.
// It returns the parsed language and the line to speak: the new greeting,
// or a note that nothing changed. Either way the session expiry is refreshed.
func (s *Service) SetLanguage(ctx context.Context, id, code string) (session.Language, string, error) {
	lang, err := session.ParseLanguage(code)
	if err != nil {
		return "", "", err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	st, err := s.sessions.Get(ctx, id)
	if err != nil {
		return "", "", fmt.Errorf("get session: %w", err)
	}
	next, changed, err := st.SwitchLanguage(lang)
	if err != nil {
		return "", "", err
	}
	if err := s.sessions.Save(ctx, next); err != nil {
		return "", "", fmt.Errorf("save session: %w", err)
	}
	if !changed {
		return lang, lang.AlreadySpeaking(), nil
	}
	s.pub.Publish(id, session.LanguageEvent(lang))
	return lang, lang.Greeting(), nil
}

// Dispatch invokes the named tool with JSON arguments for a session.
// Search failures are reported in ToolResult.Error so the call can continue;
// other failures are returned as errors.
func (s *Service) Dispatch(ctx context.Context, sessionID, name string, args json.RawMessage) (ToolResult, error) {
	ctx = logger.WithSession(ctx, sessionID)

	res, err := s.dispatch(ctx, sessionID, name, args)

	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case res.Error != "":
		status = "recovered"
	}
	if !errors.Is(err, domain.ErrUnknownTool) {
		metrics.ToolCallsTotal.WithLabelValues(name, status).Inc()
	}
	return res, err
}

func (s *Service) dispatch(ctx context.Context, sessionID, name string, args json.RawMessage) (ToolResult, error) {
	var tool func(ctx context.Context, st session.State, args json.RawMessage) (session.State, ToolResult, error)
	switch name {
	case ToolSearchRealEstate:
		tool = s.searchRealEstate
	case ToolGetLanguage:
		tool = s.getLanguage
	case ToolShowContactForm:
		tool = s.showContactForm
	case ToolSubmitContactInfo:
		tool = s.submitContactInfo
	case ToolEndCall:
		tool = s.endCall
	default:
		return ToolResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownTool, name)
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	st, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return ToolResult{}, fmt.Errorf("get session: %w", err)
	}
	if st.Ended {
		return ToolResult{}, fmt.Errorf("%w: %s", domain.ErrSessionEnded, sessionID)
	}

	next, res, err := tool(ctx, st, args)
	if err != nil {
		return ToolResult{}, err
	}
	// Every call rewrites the session, which refreshes its expiry.
	if err := s.sessions.Save(ctx, next); err != nil {
		return ToolResult{}, fmt.Errorf("save session: %w", err)
	}
	return res, nil
}

func (s *Service) searchRealEstate(
	ctx context.Context, st session.State, raw json.RawMessage,
) (session.State, ToolResult, error) {
	var args searchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return st, ToolResult{}, err
	}
	topK := s.cfg.DefaultTopK
	if args.TopK != nil {
		if *args.TopK < 1 {
			return st, ToolResult{}, fmt.Errorf("%w: top_k must be >= 1, got %d", domain.ErrInvalidArgument, *args.TopK)
		}
		topK = *args.TopK
	}

	c := listing.Criteria{Location: string(args.Location), Price: string(args.Price), Bedrooms: string(args.Bedrooms)}
	hits, err := s.search.Search(ctx, c, topK)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			return st, ToolResult{}, err
		}
		logger.FromContext(ctx).Warn("Search tool failed", zap.Error(err))
		return st, ToolResult{Error: searchFailedMessage}, nil
	}

	compact := make([]listing.Record, len(hits))
	full := make([]listing.Record, len(hits))
	for i, h := range hits {
		compact[i] = h.Record.Compact()
		full[i] = h.Record
	}
	s.pub.Publish(st.ID, session.MatchesEvent(full))

	logger.FromContext(ctx).Info("Search tool completed",
		zap.String("location", c.Location), zap.Int("results", len(hits)))
	return st, ToolResult{Output: compact}, nil
}

func (s *Service) getLanguage(
	_ context.Context, st session.State, _ json.RawMessage,
) (session.State, ToolResult, error) {
	return st, ToolResult{Output: string(st.Language)}, nil
}

func (s *Service) showContactForm(
	_ context.Context, st session.State, _ json.RawMessage,
) (session.State, ToolResult, error) {
	next, err := st.ShowContactForm()
	if err != nil {
		return st, ToolResult{}, err
	}
	s.pub.Publish(st.ID, session.ContactFormEvent())
	return next, ToolResult{Output: map[string]string{"phase": string(next.Contact.Phase)}}, nil
}

func (s *Service) submitContactInfo(
	ctx context.Context, st session.State, raw json.RawMessage,
) (session.State, ToolResult, error) {
	var args contactArgs
	if err := decodeArgs(raw, &args); err != nil {
		return st, ToolResult{}, err
	}
	next, err := st.SubmitContact(args.Email, args.Phone)
	if err != nil {
		return st, ToolResult{}, err
	}
	if err := s.contacts.Save(ctx, next); err != nil {
		return st, ToolResult{}, fmt.Errorf("save contact: %w", err)
	}
	logger.FromContext(ctx).Info("Contact submitted")
	return next, ToolResult{Output: map[string]string{"phase": string(next.Contact.Phase)}}, nil
}

func (s *Service) endCall(
	ctx context.Context, st session.State, _ json.RawMessage,
) (session.State, ToolResult, error) {
	next, err := st.End()
	if err != nil {
		return st, ToolResult{}, err
	}
	s.pub.Publish(st.ID, session.EndCallEvent())
	logger.FromContext(ctx).Info("Call ended")
	return next, ToolResult{Say: FarewellLine}, nil
}
