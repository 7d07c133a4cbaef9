package agent

import (
	"bytes"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/kailas-cloud/homefinder/internal/domain"
)

// Tool names exposed to the language model.
const (
	ToolSearchRealEstate  = "search_real_estate"
	ToolGetLanguage       = "get_language"
	ToolShowContactForm   = "show_contact_form"
	ToolSubmitContactInfo = "submit_contact_info"
	ToolEndCall           = "end_call"
)

// searchFailedMessage is returned to the model instead of an error so the
// conversation can recover.
const searchFailedMessage = "search failed, please try again"

// ToolResult is what a tool call returns to the language model.
type ToolResult struct {
	Output any    `json:"output,omitempty"`
	Say    string `json:"say,omitempty"`   // line the voice pipeline should speak verbatim
	Error  string `json:"error,omitempty"` // recoverable failure the model should talk about
}

// Definitions returns the function-calling schema of every tool.
func Definitions() []openai.Tool {
	noParams := jsonschema.Definition{Type: jsonschema.Object, Properties: map[string]jsonschema.Definition{}}

	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolSearchRealEstate,
				Description: "Find the properties that best match the caller's location, price and number of bedrooms.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"location": {Type: jsonschema.String, Description: "Desired location, e.g. a city or district"},
						"price":    {Type: jsonschema.String, Description: "Target price in USD"},
						"bedrooms": {Type: jsonschema.String, Description: "Number of bedrooms"},
						"top_k":    {Type: jsonschema.Integer, Description: "Number of results to return (default 3)"},
					},
					Required: []string{"location", "price", "bedrooms"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolGetLanguage,
				Description: "Return the language code of the call: \"en\" for English or \"ja\" for Japanese.",
				Parameters:  noParams,
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolShowContactForm,
				Description: "Show the contact form on the caller's screen before collecting their details.",
				Parameters:  noParams,
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolSubmitContactInfo,
				Description: "Save the caller's confirmed email address and phone number for follow-up.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"email": {Type: jsonschema.String, Description: "Email address, e.g. jonedoe@gmail.com"},
						"phone": {Type: jsonschema.String, Description: "Phone number, digits only or with separators"},
					},
					Required: []string{"email", "phone"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolEndCall,
				Description: "Say goodbye and end the call.",
				Parameters:  noParams,
			},
		},
	}
}

type searchArgs struct {
	Location looseString `json:"location"`
	Price    looseString `json:"price"`
	Bedrooms looseString `json:"bedrooms"`
	TopK     *int        `json:"top_k"`
}

type contactArgs struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// looseString accepts a JSON string or number; models often send bedrooms as 3.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err //nolint:wrapcheck // decoded by caller
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*s = looseString(n.String())
	return nil
}

// decodeArgs unmarshals tool arguments; empty input means no arguments.
func decodeArgs(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	// Some clients pass the arguments as a JSON-encoded string.
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("%w: arguments: %w", domain.ErrInvalidArgument, err)
		}
		trimmed = bytes.TrimSpace([]byte(s))
		if len(trimmed) == 0 {
			return nil
		}
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("%w: arguments: %w", domain.ErrInvalidArgument, err)
	}
	return nil
}
