package provider

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/shaneisley/wishful/pkg/account"
)

const (
	// DefaultBaseURL is the activity API of the 115 wish campaign
	DefaultBaseURL = "https://act.115.com/api/1.0/web/1.0/act2024xys"
	// DefaultUserAgent mimics the desktop browser the cookies are captured from
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"

	portalOrigin = "https://v.115.com"
)

// Provider endpoints relative to the base URL
const (
	EndpointWish          = "/wish"
	EndpointMyDesire      = "/my_desire"
	EndpointDesireInfo    = "/get_desire_info"
	EndpointAidDesire     = "/aid_desire"
	EndpointAdopt         = "/adopt"
	defaultWishContent    = "gogogog"
	defaultAidContent     = "gogogo"
	defaultRewardSpace    = 5
	defaultDesirePageSize = 10
)

// Request describes one outbound provider call
type Request struct {
	Method   string
	Endpoint string
	Query    url.Values
	Form     url.Values
	Cookie   string
	Header   http.Header
}

// WishOptions holds the payload fields of a wish
type WishOptions struct {
	Content     string
	RewardSpace int
}

// NewWishRequest builds the wish call for an account
func NewWishRequest(a account.Account, opts WishOptions) Request {
	content := opts.Content
	if content == "" {
		content = defaultWishContent
	}
	reward := opts.RewardSpace
	if reward <= 0 {
		reward = defaultRewardSpace
	}

	return Request{
		Method:   http.MethodPost,
		Endpoint: EndpointWish,
		Form: url.Values{
			"content":     {content},
			"images":      {""},
			"rewardSpace": {strconv.Itoa(reward)},
		},
		Cookie: a.Cookie,
	}
}

// NewMyDesireRequest lists the account's own wishes
func NewMyDesireRequest(a account.Account, limit int) Request {
	if limit <= 0 {
		limit = defaultDesirePageSize
	}
	return Request{
		Method:   http.MethodGet,
		Endpoint: EndpointMyDesire,
		Query: url.Values{
			"type":  {"0"},
			"start": {"0"},
			"page":  {"1"},
			"limit": {strconv.Itoa(limit)},
		},
		Cookie: a.Cookie,
	}
}

// NewDesireInfoRequest fetches wish details as seen by the coordinator.
// The code returned here is the one the aid endpoint accepts; the list's code is not.
func NewDesireInfoRequest(coordinator account.Account, wishID string) Request {
	return Request{
		Method:   http.MethodGet,
		Endpoint: EndpointDesireInfo,
		Query:    url.Values{"id": {wishID}},
		Cookie:   coordinator.Cookie,
	}
}

// NewAidRequest aids a wish with the coordinator's cookie
func NewAidRequest(coordinator account.Account, desireCode, content string) Request {
	if content == "" {
		content = defaultAidContent
	}
	return Request{
		Method:   http.MethodPost,
		Endpoint: EndpointAidDesire,
		Form: url.Values{
			"id":       {desireCode},
			"content":  {content},
			"images":   {""},
			"file_ids": {""},
		},
		Cookie: coordinator.Cookie,
		Header: http.Header{
			"Sec-Fetch-Site": {"same-site"},
			"Sec-Fetch-Mode": {"cors"},
			"Sec-Fetch-Dest": {"empty"},
		},
	}
}

// NewAdoptRequest adopts an aid on the wish owner's behalf
func NewAdoptRequest(a account.Account, wishID, aidID string) Request {
	return Request{
		Method:   http.MethodPost,
		Endpoint: EndpointAdopt,
		Form: url.Values{
			"did":    {wishID},
			"aid":    {aidID},
			"to_cid": {"0"},
		},
		Cookie: a.Cookie,
	}
}
