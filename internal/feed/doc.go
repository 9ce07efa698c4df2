// Package feed talks to the Volo Sports "discover daily" GraphQL endpoint
// and normalizes its rows into activity.Activity values.
//
// The watcher only sees two functions from here: Client.Fetch and
// Normalizer.Normalize. Every failure of Fetch is a *FetchError.
package feed
