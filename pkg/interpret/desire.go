package interpret

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Desire is one entry of an account's wish list
type Desire struct {
	ID     string
	Code   string
	AidNum int
}

// DecodeEnvelope parses a reply and fails unless the provider reported success
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse provider reply: %w", err)
	}
	if !env.HasStatus() {
		return nil, fmt.Errorf("unrecognized provider reply: %s", truncate(body))
	}
	if !env.OK() {
		return &env, fmt.Errorf("provider refused: %s", env.Describe())
	}
	return &env, nil
}

// DecodeDesireList returns the account's wishes from a my_desire reply
func DecodeDesireList(body []byte) ([]Desire, error) {
	env, err := DecodeEnvelope(body)
	if err != nil {
		return nil, err
	}

	if emptyData(env.Data) {
		return nil, nil
	}

	var data struct {
		List []struct {
			ID     Flex `json:"id"`
			Code   Flex `json:"code"`
			AidNum Flex `json:"aid_num"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse desire list: %w", err)
	}

	desires := make([]Desire, 0, len(data.List))
	for _, item := range data.List {
		desires = append(desires, Desire{
			ID:     item.ID.String(),
			Code:   item.Code.String(),
			AidNum: item.AidNum.Int(),
		})
	}
	return desires, nil
}

// Pending keeps the wishes nobody has aided yet, deduplicated by code, in list order
func Pending(desires []Desire) []Desire {
	seen := make(map[string]struct{}, len(desires))
	pending := make([]Desire, 0, len(desires))
	for _, d := range desires {
		if d.AidNum != 0 || d.Code == "" {
			continue
		}
		if _, dup := seen[d.Code]; dup {
			continue
		}
		seen[d.Code] = struct{}{}
		pending = append(pending, d)
	}
	return pending
}

// DecodeDesireCode returns the aid-able code from a get_desire_info reply
func DecodeDesireCode(body []byte) (string, error) {
	env, err := DecodeEnvelope(body)
	if err != nil {
		return "", err
	}

	var data struct {
		Code Flex `json:"code"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("failed to parse desire info: %w", err)
	}
	if data.Code.String() == "" {
		return "", fmt.Errorf("desire info carries no code")
	}
	return data.Code.String(), nil
}

// DecodeAidID returns the aid identifier from an aid_desire reply
func DecodeAidID(body []byte) (string, error) {
	env, err := DecodeEnvelope(body)
	if err != nil {
		return "", err
	}

	var data struct {
		AidID Flex `json:"aid_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("failed to parse aid reply: %w", err)
	}
	if data.AidID.String() == "" {
		return "", fmt.Errorf("aid succeeded without an aid_id")
	}
	return data.AidID.String(), nil
}

// emptyData reports a missing data field; the API sends [] instead of {} when it has nothing
func emptyData(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]"))
}
