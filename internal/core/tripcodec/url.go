package tripcodec

import (
	"net/url"
	"strings"
)

// Query parameter names of the shareable trip URL.
const (
	ParamTrip      = "trip"
	ParamOptimized = "opt"
)

// EncodeTrip renders the query string for a trip, e.g. "?trip=a,b,c&opt=1".
// Commas separating ids are left literal. An empty trip encodes to "".
func EncodeTrip(slugs []string, optimized bool) string {
	q := encodeQuery(slugs, optimized)
	if q == "" {
		return ""
	}
	return "?" + q
}

func encodeQuery(slugs []string, optimized bool) string {
	parts := make([]string, 0, len(slugs))
	for _, s := range slugs {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, url.QueryEscape(s))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	q := ParamTrip + "=" + strings.Join(parts, ",")
	if optimized {
		q += "&" + ParamOptimized + "=1"
	}
	return q
}

// DecodeTrip reads trip parameters from a raw query string (a leading "?" is
// accepted). ok is false when there is no usable trip parameter. The value is
// unescaped before it is split, so "a%2Cb" and "a,b" both name two ids.
func DecodeTrip(rawQuery string) (slugs []string, optimized bool, ok bool) {
	// Malformed pairs are skipped; ParseQuery still returns the rest.
	q, _ := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	optimized = q.Get(ParamOptimized) == "1"

	for _, tok := range strings.Split(q.Get(ParamTrip), ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			slugs = append(slugs, tok)
		}
	}
	if len(slugs) == 0 {
		return nil, false, false
	}
	return slugs, optimized, true
}

// ShareURL merges the trip parameters into base, keeping any unrelated query
// parameters. An empty trip yields base with trip parameters removed.
func ShareURL(base string, slugs []string, optimized bool) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	StripTripParams(u)
	tripQuery := encodeQuery(slugs, optimized)
	switch {
	case tripQuery == "":
	case u.RawQuery == "":
		u.RawQuery = tripQuery
	default:
		u.RawQuery = u.RawQuery + "&" + tripQuery
	}
	return u.String(), nil
}

// StripTripParams removes the trip parameters from u in place.
func StripTripParams(u *url.URL) {
	if u.RawQuery == "" {
		return
	}
	q := u.Query()
	if !q.Has(ParamTrip) && !q.Has(ParamOptimized) {
		return
	}
	q.Del(ParamTrip)
	q.Del(ParamOptimized)
	u.RawQuery = q.Encode()
}
