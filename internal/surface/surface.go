// Package surface manages the per-server session views hosted by the
// shell. Each configured server gets one surface; the manager keeps the
// set of surfaces reconciled with the registry and translates what the
// surfaces report back into registry updates.
package surface

import "context"

// Surface is one embedded server view. Implementations wrap whatever
// actually renders the session; the manager only drives lifecycle.
type Surface interface {
	// Load navigates the surface to the given url. It returns once the
	// session is usable or the navigation failed.
	Load(ctx context.Context, url string) error

	// ShowFallback swaps the view for the local error page. The surface
	// stays alive; a later Load recovers it.
	ShowFallback(reason string)

	// SetActive shows or hides the surface. At most one surface is
	// active at a time.
	SetActive(active bool)

	// Destroy releases the surface. No calls may follow.
	Destroy()
}

// Factory creates the surface for a server. An error here marks the
// server's session as failed without tearing the shell down.
type Factory func(serverURL string) (Surface, error)
