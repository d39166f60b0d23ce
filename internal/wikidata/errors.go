package wikidata

import "fmt"

// APIResponseError is returned when the entity API keeps answering with a
// non-2xx status or an undecodable body until the retries run out.
type APIResponseError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *APIResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wikidata api: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("wikidata api: status %d", e.StatusCode)
}

func (e *APIResponseError) Unwrap() error { return e.Err }

// QueryError is returned when the query service fails a SPARQL query on every
// attempt. It keeps the query text and the raw response for display.
type QueryError struct {
	Query      string
	StatusCode int
	Body       string
	Err        error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wikidata query service: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("wikidata query service: status %d", e.StatusCode)
}

func (e *QueryError) Unwrap() error { return e.Err }

// QueryURL links to the query in the query service UI.
func (e *QueryError) QueryURL() string {
	return QueryUIURL + "#" + Quote(e.Query)
}

// httpFailure is one failed attempt that reached the server: a bad status or
// a body that does not decode. Transport errors are never wrapped in it.
type httpFailure struct {
	status int
	body   string
	err    error
}

func (f *httpFailure) Error() string {
	if f.err != nil {
		return fmt.Sprintf("status %d: %v", f.status, f.err)
	}
	return fmt.Sprintf("status %d", f.status)
}

func (f *httpFailure) Unwrap() error { return f.err }
