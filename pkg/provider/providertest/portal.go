// Package providertest runs an in-process fake of the wish activity API for tests.
package providertest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shaneisley/wishful/pkg/provider"
)

// Reply is one scripted response
type Reply struct {
	Status int
	Body   string
	// Delay holds the response back; the request context still aborts it
	Delay time.Duration
}

// OK returns a successful envelope carrying data
func OK(data string) Reply {
	if data == "" {
		data = "{}"
	}
	return Reply{Status: http.StatusOK, Body: fmt.Sprintf(`{"state":1,"code":0,"message":"","data":%s}`, data)}
}

// Refused returns a provider refusal with the given code
func Refused(code int, message string) Reply {
	return Reply{Status: http.StatusOK, Body: fmt.Sprintf(`{"state":0,"code":%d,"message":%q,"data":[]}`, code, message)}
}

// Raw returns an arbitrary body with a status
func Raw(status int, body string) Reply {
	return Reply{Status: status, Body: body}
}

// Call records one request seen by the portal
type Call struct {
	Endpoint string
	Cookie   string
	Query    url.Values
	Form     url.Values
}

// Portal is a scripted fake of the activity API
type Portal struct {
	server *httptest.Server

	mu        sync.Mutex
	wish      map[string][]Reply
	overrides map[string][]Reply
	pending   map[string][]string
	calls     []Call
	wishSeq   int
	active    int
	peak      int
}

// NewPortal starts a fake portal; callers must Close it
func NewPortal() *Portal {
	p := &Portal{
		wish:      make(map[string][]Reply),
		overrides: make(map[string][]Reply),
		pending:   make(map[string][]string),
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	return p
}

// URL is the base URL to configure the client with
func (p *Portal) URL() string {
	return p.server.URL
}

// Close stops the server
func (p *Portal) Close() {
	p.server.Close()
}

// OnWish scripts the wish replies for a cookie; the last reply repeats
func (p *Portal) OnWish(cookie string, replies ...Reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wish[cookie] = replies
}

// On scripts the replies of an assist endpoint for every cookie; the last reply repeats
func (p *Portal) On(endpoint string, replies ...Reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[endpoint] = replies
}

// SetPending lists wish codes nobody has aided yet for a cookie
func (p *Portal) SetPending(cookie string, codes ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[cookie] = codes
}

// Calls returns the requests seen so far
func (p *Portal) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Count returns how many requests hit an endpoint with a cookie; empty cookie matches all
func (p *Portal) Count(endpoint, cookie string) int {
	n := 0
	for _, c := range p.Calls() {
		if c.Endpoint == endpoint && (cookie == "" || c.Cookie == cookie) {
			n++
		}
	}
	return n
}

// PeakWishes returns the highest number of wish requests served at once
func (p *Portal) PeakWishes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

func (p *Portal) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	endpoint := "/" + r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	cookie := r.Header.Get("Cookie")

	p.mu.Lock()
	p.calls = append(p.calls, Call{
		Endpoint: endpoint,
		Cookie:   cookie,
		Query:    r.URL.Query(),
		Form:     r.PostForm,
	})
	reply := p.replyLocked(endpoint, cookie, r)
	if endpoint == provider.EndpointWish {
		p.active++
		if p.active > p.peak {
			p.peak = p.active
		}
	}
	p.mu.Unlock()

	if endpoint == provider.EndpointWish {
		defer func() {
			p.mu.Lock()
			p.active--
			p.mu.Unlock()
		}()
	}

	if reply.Delay > 0 {
		timer := time.NewTimer(reply.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.Status)
	w.Write([]byte(reply.Body))
}

func (p *Portal) replyLocked(endpoint, cookie string, r *http.Request) Reply {
	if endpoint == provider.EndpointWish {
		if replies := p.wish[cookie]; len(replies) > 0 {
			p.wish[cookie] = shift(replies)
			return replies[0]
		}
		p.wishSeq++
		return OK(fmt.Sprintf(`{"xys_id":"wish-%d"}`, p.wishSeq))
	}

	if replies := p.overrides[endpoint]; len(replies) > 0 {
		p.overrides[endpoint] = shift(replies)
		return replies[0]
	}

	switch endpoint {
	case provider.EndpointMyDesire:
		items := make([]string, 0, len(p.pending[cookie]))
		for i, code := range p.pending[cookie] {
			items = append(items, fmt.Sprintf(`{"id":"%d","code":%q,"aid_num":0}`, i+1, code))
		}
		return OK(fmt.Sprintf(`{"count":%d,"list":[%s]}`, len(items), strings.Join(items, ",")))
	case provider.EndpointDesireInfo:
		return OK(fmt.Sprintf(`{"code":"info-%s"}`, r.URL.Query().Get("id")))
	case provider.EndpointAidDesire:
		return OK(fmt.Sprintf(`{"aid_id":"aid-%s"}`, r.PostForm.Get("id")))
	case provider.EndpointAdopt:
		return OK("")
	default:
		return Raw(http.StatusNotFound, "not found")
	}
}

// shift drops the head of a script but keeps the last reply
func shift(replies []Reply) []Reply {
	if len(replies) > 1 {
		return replies[1:]
	}
	return replies
}
