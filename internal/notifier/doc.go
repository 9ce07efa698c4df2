// Package notifier delivers "new activity" announcements.
//
// A Service fans one batch out to every configured Sink (a Discord webhook,
// a Telegram chat). Each send is rate limited and retried with jittered
// exponential backoff. A batch counts as delivered when at least one sink
// accepted it; sink failures are logged and joined into the returned error
// only when every sink failed.
package notifier
