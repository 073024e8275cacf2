// Package deeplink parses parley:// urls handed to the shell by the
// operating system and turns them into bus intents.
package deeplink

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/parley-im/parley/internal/eventbus"
)

// Scheme is the url scheme the shell registers with the OS.
const Scheme = "parley"

// Intents carried on the bus after parsing.
const (
	ActionAddServer = "add-server"
	ActionOpenRoom  = "open-room"
)

// normalizeHost upgrades a bare hostname from the link into a server url.
func normalizeHost(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}

// Parse interprets a deep link. Two forms are accepted:
//
//	parley://auth?host=chat.example.com
//	parley://room?host=chat.example.com&path=/channel/general
//
// The host parameter may be a bare hostname or a full http(s) url. Anything
// else is rejected so a malformed or hostile link cannot smuggle an
// unexpected intent into the shell.
func Parse(raw string) (eventbus.DeepLinkEvent, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return eventbus.DeepLinkEvent{}, fmt.Errorf("deeplink: parse %q: %w", raw, err)
	}
	if u.Scheme != Scheme {
		return eventbus.DeepLinkEvent{}, fmt.Errorf("deeplink: scheme %q is not %q", u.Scheme, Scheme)
	}

	query := u.Query()
	host := query.Get("host")
	if host == "" {
		return eventbus.DeepLinkEvent{}, fmt.Errorf("deeplink: %s link requires a host parameter", u.Host)
	}
	serverURL := normalizeHost(host)

	switch u.Host {
	case "auth":
		return eventbus.DeepLinkEvent{
			Action:    ActionAddServer,
			ServerURL: serverURL,
		}, nil
	case "room":
		return eventbus.DeepLinkEvent{
			Action:    ActionOpenRoom,
			ServerURL: serverURL,
			Path:      query.Get("path"),
		}, nil
	default:
		return eventbus.DeepLinkEvent{}, fmt.Errorf("deeplink: unknown action %q", u.Host)
	}
}

// Dispatch parses a deep link and publishes the resulting intent.
func Dispatch(ctx context.Context, bus *eventbus.Bus, raw string) error {
	event, err := Parse(raw)
	if err != nil {
		return err
	}
	eventbus.Publish(ctx, bus, eventbus.DeepLinks, eventbus.SourceDeepLinks, event)
	return nil
}
