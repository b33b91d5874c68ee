// Package indexer talks to the MyAnonamouse JSON search API.
//
// Client.Search posts the tracker's search body, normalizes the loosely typed
// result rows into Result values and caches them per query for a bounded
// time. Client.Fetch downloads the .torrent for a chosen result, walking the
// tracker's download endpoints in order, and rejects anything that does not
// validate as a torrent payload. Transport failures and 5xx responses are
// retried with exponential backoff and surface as services.ErrTransient.
package indexer
