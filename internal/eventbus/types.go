package eventbus

import "time"

// Topic identifies a logical channel on the bus.
type Topic string

// Standard topics.
const (
	TopicServersChanged     Topic = "servers.changed"
	TopicServersActive      Topic = "servers.active"
	TopicSurfacesLifecycle  Topic = "surfaces.lifecycle"
	TopicSurfacesMessage    Topic = "surfaces.message"
	TopicBadgesChanged      Topic = "badges.changed"
	TopicBadgesGlobal       Topic = "badges.global"
	TopicCertsRequestTrust  Topic = "certificates.request_trust"
	TopicCertsAdded         Topic = "certificates.added"
	TopicWindowsClosing     Topic = "windows.closing"
	TopicUpdatesStatus      Topic = "updates.status"
	TopicScreenShareRequest Topic = "screenshare.request"
	TopicSpellCheckRequest  Topic = "spellcheck.request"
	TopicDeepLink           Topic = "deeplinks.intent"
)

// Source describes which component produced an event.
type Source string

const (
	SourceRegistry       Source = "registry"
	SourceSurfaceManager Source = "surface_manager"
	SourceSurface        Source = "surface"
	SourceCertStore      Source = "cert_store"
	SourceBadgeWatcher   Source = "badge_watcher"
	SourceWindowState    Source = "window_state"
	SourceUpdates        Source = "updates"
	SourceGateway        Source = "gateway"
	SourceDeepLinks      Source = "deep_links"
	SourceClient         Source = "client"
	SourceUnknown        Source = "unknown"
)

// Envelope wraps every message published on the bus.
type Envelope struct {
	Topic         Topic
	Timestamp     time.Time
	Source        Source
	CorrelationID string
	Payload       any
}

// Badge is a server's unread marker: a mention count, a bare "has unread"
// dot, or nothing at all.
type Badge struct {
	Count    int
	HasCount bool
	Dot      bool
}

// IsZero reports whether no badge is set.
func (b Badge) IsZero() bool {
	return !b.HasCount && !b.Dot
}

// Unread reports whether the badge should draw attention: a positive
// mention count or a bare dot. A counted zero is not unread.
func (b Badge) Unread() bool {
	return (b.HasCount && b.Count > 0) || b.Dot
}

// ServersChangedEvent announces that the registry's server list mutated.
type ServersChangedEvent struct {
	URLs      []string // persisted sort order
	ActiveURL string
	Reason    string // "add", "remove", "reorder", "properties", "load"
}

// ServerActiveEvent announces an activation change. URL is empty when no
// server is active.
type ServerActiveEvent struct {
	URL string
}

// SurfaceState summarises surface lifecycle transitions.
type SurfaceState string

const (
	SurfaceStateCreated   SurfaceState = "created"
	SurfaceStateLoading   SurfaceState = "loading"
	SurfaceStateReady     SurfaceState = "ready"
	SurfaceStateActive    SurfaceState = "active"
	SurfaceStateInactive  SurfaceState = "inactive"
	SurfaceStateDestroyed SurfaceState = "destroyed"
)

// SurfaceLifecycleEvent notifies consumers about surface state transitions.
type SurfaceLifecycleEvent struct {
	ServerURL string
	State     SurfaceState
	Degraded  bool // surface fell back to the local error view
	Reason    string
}

// SurfaceMessageKind enumerates the structured messages a surface forwards.
type SurfaceMessageKind string

const (
	MessageUnreadChanged SurfaceMessageKind = "unread-changed"
	MessageTitleChanged  SurfaceMessageKind = "title-changed"
	MessagePathChanged   SurfaceMessageKind = "path-changed"
	MessageFocusRequest  SurfaceMessageKind = "focus"
	MessageStyleChanged  SurfaceMessageKind = "style-changed"
)

// SurfaceMessageEvent is a structured message forwarded by a surface.
// Only the field matching Kind is meaningful.
type SurfaceMessageEvent struct {
	ServerURL string
	Kind      SurfaceMessageKind
	Title     string
	Path      string
	Style     string
	Badge     Badge
}

// BadgeChangedEvent carries one server's badge update.
type BadgeChangedEvent struct {
	ServerURL string
	Badge     Badge
}

// GlobalBadgeEvent is the aggregated attention signal derived from all
// per-server badges. Text is "" (none), "•" (unread, no count), or the
// decimal mention count.
type GlobalBadgeEvent struct {
	MentionCount int
	HasUnread    bool
	Text         string
}

// CertTrustRequestEvent asks the host process to prompt the user about an
// untrusted certificate.
type CertTrustRequestEvent struct {
	Host        string
	Fingerprint string
	IssuerName  string
	Error       string
	IsReplacing bool
}

// CertAddedEvent announces a newly trusted certificate.
type CertAddedEvent struct {
	Host        string
	Fingerprint string
}

// WindowClosingEvent is published before the close policy runs so listeners
// can flush state.
type WindowClosingEvent struct {
	Name string
}

// UpdateStatusEvent propagates update-check progress to surfaces.
type UpdateStatusEvent struct {
	Checking   bool
	NewVersion string
	Message    string
}

// ScreenShareRequestEvent asks the host to pick a screen-share source.
// Responders answer with ScreenShareReply.
type ScreenShareRequestEvent struct {
	ServerURL string
}

// ScreenShareReply carries the chosen source id, or Denied.
type ScreenShareReply struct {
	SourceID string
	Denied   bool
}

// SpellCheckRequestEvent asks the host to spell-check a batch of words.
// Responders answer with SpellCheckReply.
type SpellCheckRequestEvent struct {
	ServerURL string
	Words     []string
}

// SpellCheckReply lists the words the checker flagged.
type SpellCheckReply struct {
	Misspelled []string
}

// DeepLinkEvent carries a parsed deep-link intent.
type DeepLinkEvent struct {
	Action    string // "add-server" or "open-room"
	ServerURL string
	Path      string
}

// ---------------------------------------------------------------------------
// Typed topic descriptors
// ---------------------------------------------------------------------------
// Each TopicDef binds a Topic constant to its payload type, enabling
// compile-time enforcement via Publish[T] and SubscribeTo[T].

// Servers groups registry topic descriptors.
var Servers = struct {
	Changed TopicDef[ServersChangedEvent]
	Active  TopicDef[ServerActiveEvent]
}{
	Changed: NewTopicDef[ServersChangedEvent](TopicServersChanged),
	Active:  NewTopicDef[ServerActiveEvent](TopicServersActive),
}

// Surfaces groups surface topic descriptors.
var Surfaces = struct {
	Lifecycle TopicDef[SurfaceLifecycleEvent]
	Message   TopicDef[SurfaceMessageEvent]
}{
	Lifecycle: NewTopicDef[SurfaceLifecycleEvent](TopicSurfacesLifecycle),
	Message:   NewTopicDef[SurfaceMessageEvent](TopicSurfacesMessage),
}

// Badges groups badge topic descriptors.
var Badges = struct {
	Changed TopicDef[BadgeChangedEvent]
	Global  TopicDef[GlobalBadgeEvent]
}{
	Changed: NewTopicDef[BadgeChangedEvent](TopicBadgesChanged),
	Global:  NewTopicDef[GlobalBadgeEvent](TopicBadgesGlobal),
}

// Certs groups certificate topic descriptors.
var Certs = struct {
	RequestTrust TopicDef[CertTrustRequestEvent]
	Added        TopicDef[CertAddedEvent]
}{
	RequestTrust: NewTopicDef[CertTrustRequestEvent](TopicCertsRequestTrust),
	Added:        NewTopicDef[CertAddedEvent](TopicCertsAdded),
}

// Windows groups window topic descriptors.
var Windows = struct {
	Closing TopicDef[WindowClosingEvent]
}{
	Closing: NewTopicDef[WindowClosingEvent](TopicWindowsClosing),
}

// Updates groups update topic descriptors.
var Updates = struct {
	Status TopicDef[UpdateStatusEvent]
}{
	Status: NewTopicDef[UpdateStatusEvent](TopicUpdatesStatus),
}

// ScreenShare is the request topic for screen-share source selection.
var ScreenShare = NewTopicDef[ScreenShareRequestEvent](TopicScreenShareRequest)

// SpellCheck is the request topic for spell-check queries.
var SpellCheck = NewTopicDef[SpellCheckRequestEvent](TopicSpellCheckRequest)

// DeepLinks is the topic for parsed deep-link intents.
var DeepLinks = NewTopicDef[DeepLinkEvent](TopicDeepLink)
