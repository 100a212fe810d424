package nsapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIHost is the host of the governed NationStates API.
const APIHost = "www.nationstates.net"

// apiPath is the single endpoint all shard queries go through.
const apiPath = "/cgi-bin/api.cgi"

// apiVersion is pinned so that response formats stay stable even when the
// API releases a new version.
const apiVersion = "12"

// APIURL returns the base URL of the NationStates API endpoint.
func APIURL() *url.URL {
	return &url.URL{Scheme: "https", Host: APIHost, Path: apiPath}
}

// isAPIHost reports whether u targets the governed API.
func isAPIHost(u *url.URL) bool {
	return u != nil && strings.EqualFold(u.Host, APIHost)
}

// isTelegramQuery reports whether u is a telegram dispatch, which is
// governed by its own rate budget.
func isTelegramQuery(u *url.URL) bool {
	return strings.EqualFold(u.Query().Get("a"), "sendtg")
}

// newRequest builds a GET request against the API endpoint with the given
// query. Shards are joined into the q parameter.
func newRequest(params url.Values, shards ...string) *http.Request {
	if params == nil {
		params = url.Values{}
	}
	if q := strings.Join(shards, "+"); q != "" {
		if prev := params.Get("q"); prev != "" {
			q = prev + "+" + q
		}
		params.Set("q", q)
	}
	params.Set("v", apiVersion)
	u := APIURL()
	u.RawQuery = params.Encode()
	return &http.Request{
		Method: http.MethodGet,
		URL:    u,
		Header: make(http.Header),
		Host:   u.Host,
	}
}

// World builds a request for world shards, e.g.
// World(nil, "numnations", "census").
func World(params url.Values, shards ...string) *http.Request {
	return newRequest(params, shards...)
}

// Nation builds a request for a nation's shards.
func Nation(nation string, shards ...string) *http.Request {
	return newRequest(url.Values{"nation": {nation}}, shards...)
}

// Region builds a request for a region's shards.
func Region(region string, shards ...string) *http.Request {
	return newRequest(url.Values{"region": {region}}, shards...)
}

// WA builds a request for a World Assembly council: 1 for the General
// Assembly, 2 for the Security Council.
func WA(council int, shards ...string) *http.Request {
	return newRequest(url.Values{"wa": {fmt.Sprint(council)}}, shards...)
}

// Command builds a nation command request. Commands mutate state and are
// sent as POST.
func Command(nation, c string, params url.Values) *http.Request {
	if params == nil {
		params = url.Values{}
	}
	params.Set("nation", nation)
	params.Set("c", c)
	req := newRequest(params)
	req.Method = http.MethodPost
	return req
}

// Telegram builds a telegram dispatch request. Requests built this way are
// automatically routed through the telegram rate limiter.
func Telegram(clientKey, tgid, key, recipient string) *http.Request {
	return newRequest(url.Values{
		"a":      {"sendtg"},
		"client": {clientKey},
		"tgid":   {tgid},
		"key":    {key},
		"to":     {recipient},
	})
}

// dumpRequest builds a GET request for a daily-dump path on the API host.
func dumpRequest(path string) *http.Request {
	u := &url.URL{Scheme: "https", Host: APIHost, Path: path}
	return &http.Request{
		Method: http.MethodGet,
		URL:    u,
		Header: make(http.Header),
		Host:   u.Host,
	}
}

// NationsDump requests the gzipped daily nations dump. A zero date
// requests the most recent dump; otherwise the archived dump for that day.
func NationsDump(date time.Time) *http.Request {
	if date.IsZero() {
		return dumpRequest("/pages/nations.xml.gz")
	}
	return dumpRequest(date.Format("/archive/nations/2006-01-02-nations-xml.gz"))
}

// RegionsDump requests the gzipped daily regions dump. A zero date
// requests the most recent dump; otherwise the archived dump for that day.
func RegionsDump(date time.Time) *http.Request {
	if date.IsZero() {
		return dumpRequest("/pages/regions.xml.gz")
	}
	return dumpRequest(date.Format("/archive/regions/2006-01-02-regions-xml.gz"))
}

// CardsDump requests the gzipped trading-card dump for a season.
func CardsDump(season int) *http.Request {
	return dumpRequest(fmt.Sprintf("/pages/cardlist_S%d.xml.gz", season))
}
