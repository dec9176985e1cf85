package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	jsoniter "github.com/json-iterator/go"
	"github.com/stepcord/stepcord/internal/instance"
	"github.com/stepcord/stepcord/internal/kind"
	"github.com/stepcord/stepcord/internal/summary"
	"github.com/valyala/fasthttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	// Client is optional; tests hand in one dialing an in-memory listener.
	Client *fasthttp.Client
}

type Instance struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *fasthttp.Client
}

func New(o Options) instance.Source {
	if o.Client == nil {
		o.Client = &fasthttp.Client{
			Name:                "stepcord",
			MaxIdleConnDuration: time.Minute,
		}
	}

	if o.Timeout == 0 {
		o.Timeout = 10 * time.Second
	}

	return &Instance{
		baseURL: strings.TrimRight(o.BaseURL, "/"),
		token:   o.Token,
		timeout: o.Timeout,
		client:  o.Client,
	}
}

// Error is a non-2xx answer from the summary API.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

type summaryParams struct {
	Token string `url:"token"`
	Date  string `url:"date,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (i *Instance) URL(k kind.Kind, date time.Time) (string, error) {
	p := summaryParams{Token: i.token}
	if !date.IsZero() {
		p.Date = date.Format("2006-01-02")
	}

	v, err := query.Values(p)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/api/%s/summary?%s", i.baseURL, k, v.Encode()), nil
}

func (i *Instance) FetchSummary(ctx context.Context, k kind.Kind, date time.Time) (summary.Summary, error) {
	if err := ctx.Err(); err != nil {
		return summary.Summary{Kind: k}, err
	}

	uri, err := i.URL(k, date)
	if err != nil {
		return summary.Summary{Kind: k}, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	if err := i.client.DoTimeout(req, resp, i.timeout); err != nil {
		return summary.Summary{Kind: k}, fmt.Errorf("fetch %s summary: %w", k, err)
	}

	code := resp.StatusCode()
	if code < 200 || code > 299 {
		er := errorResponse{}
		msg := fmt.Sprintf("HTTP %d %s", code, fasthttp.StatusMessage(code))

		if err := json.Unmarshal(resp.Body(), &er); err == nil && er.Error != "" {
			msg = er.Error
		}

		return summary.Summary{Kind: k}, &Error{StatusCode: code, Message: msg}
	}

	return summary.Decode(k, resp.Body())
}
