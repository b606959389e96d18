package interpret

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shaneisley/wishful/pkg/outcome"
)

// maxDetail bounds how much of a raw body ends up in an outcome detail
const maxDetail = 256

// Codes maps provider error codes onto outcome kinds.
// Codes absent from every set are treated as permanent failures.
type Codes struct {
	AlreadyCompleted []int
	AuthExpired      []int
	RateLimited      []int
}

// DefaultCodes returns the login-required codes of the 115 web API.
// The activity's "already wished today" and throttling codes are not documented and
// must be configured from observed replies.
func DefaultCodes() Codes {
	return Codes{
		AuthExpired: []int{99, 990001},
	}
}

// Interpreter turns raw provider replies into outcomes; it is safe for concurrent use
type Interpreter struct {
	already map[int]struct{}
	auth    map[int]struct{}
	rate    map[int]struct{}
}

// New creates an interpreter for the given code sets
func New(codes Codes) *Interpreter {
	return &Interpreter{
		already: toSet(codes.AlreadyCompleted),
		auth:    toSet(codes.AuthExpired),
		rate:    toSet(codes.RateLimited),
	}
}

func toSet(codes []int) map[int]struct{} {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

// Interpret classifies one wish reply
func (i *Interpreter) Interpret(status int, body []byte) outcome.Outcome {
	switch {
	case status == http.StatusTooManyRequests:
		return outcome.Newf(outcome.RateLimited, "http %d", status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return outcome.Newf(outcome.AuthExpired, "http %d", status)
	}

	// A body that is not JSON at all is usually a gateway or proxy page
	if !json.Valid(body) {
		return outcome.Newf(outcome.TransientFailure, "http %d: malformed body: %s", status, truncate(body))
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil || !env.HasStatus() {
		if status >= http.StatusInternalServerError {
			return outcome.Newf(outcome.TransientFailure, "http %d: %s", status, truncate(body))
		}
		return outcome.Newf(outcome.PermanentFailure, "unrecognized payload: %s", truncate(body))
	}

	if env.OK() {
		var data struct {
			WishID Flex `json:"xys_id"`
		}
		_ = json.Unmarshal(env.Data, &data)
		return outcome.Outcome{Kind: outcome.Succeeded, WishID: data.WishID.String()}
	}

	code := env.Code.Int()
	detail := env.Describe()
	if _, ok := i.already[code]; ok {
		return outcome.New(outcome.AlreadyCompleted, detail)
	}
	if _, ok := i.auth[code]; ok {
		return outcome.New(outcome.AuthExpired, detail)
	}
	if _, ok := i.rate[code]; ok {
		return outcome.New(outcome.RateLimited, detail)
	}
	return outcome.New(outcome.PermanentFailure, detail)
}

// truncate shortens a body to at most maxDetail bytes without splitting a UTF-8 character
func truncate(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) <= maxDetail {
		return string(body)
	}
	cut := maxDetail
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}

// Flex is a JSON scalar the provider sends as number, string or boolean
type Flex struct {
	raw   string
	isSet bool
}

// UnmarshalJSON accepts numbers, strings, booleans and null
func (f *Flex) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = Flex{}
		return nil
	}
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	*f = Flex{raw: s, isSet: true}
	return nil
}

// Set reports whether the field was present and not null
func (f Flex) Set() bool {
	return f.isSet
}

// String returns the scalar as text
func (f Flex) String() string {
	return f.raw
}

// Int returns the scalar as an integer; true is 1, anything unparsable is -1
func (f Flex) Int() int {
	switch strings.ToLower(f.raw) {
	case "true":
		return 1
	case "false", "":
		return 0
	}
	n, err := strconv.Atoi(f.raw)
	if err != nil {
		fl, ferr := strconv.ParseFloat(f.raw, 64)
		if ferr != nil {
			return -1
		}
		return int(fl)
	}
	return n
}

// Truthy reports whether the scalar is 1 or true
func (f Flex) Truthy() bool {
	return f.isSet && f.Int() == 1
}

// Envelope is the common reply shape of the activity API
type Envelope struct {
	State   Flex            `json:"state"`
	Code    Flex            `json:"code"`
	Message Flex            `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// HasStatus reports whether the reply carries both status fields
func (e Envelope) HasStatus() bool {
	return e.State.Set() && e.Code.Set()
}

// OK reports provider success
func (e Envelope) OK() bool {
	return e.State.Truthy() && e.Code.Int() == 0
}

// Describe renders the provider message with its status fields
func (e Envelope) Describe() string {
	return fmt.Sprintf("%s (state=%s, code=%s)", e.Message, e.State, e.Code)
}
