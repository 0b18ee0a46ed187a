// Package policy implements the Policy Engine: given an endpoint family,
// a classified agent profile, and the registered client state, it decides
// which of the three response shapes (204, the Apple success body, or the
// landing page) to send, and drives the Client Registry side effects that
// decision requires.
//
// The Policy Engine never writes HTTP directly — it returns a tagged
// Action that the HTTP Dispatcher translates into a response. This keeps
// the decision table unit-testable without a server.
package policy

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/connectbox/captiveportal/internal/agent"
	"github.com/connectbox/captiveportal/internal/registry"
)

// EndpointFamily identifies which of the three probe-endpoint families (or
// the catch-all) a request landed on. The Dispatcher maps each of its
// fixed routes to one of these before calling Decide.
type EndpointFamily int

const (
	// Apple covers /success.html, /library/test/success.html, and
	// /hotspot-detect.html.
	Apple EndpointFamily = iota
	// Android covers /generate_204 and /gen_204.
	Android
	// Other covers /ncsi.txt (Windows) and /kindle-wifi/wifistub.html
	// (Kindle): touch unconditionally, always land.
	Other
	// Default is the catch-all for any unrecognized path: land
	// unconditionally, without touching the registry.
	Default
)

// ActionKind tags which of the three response shapes an Action carries.
type ActionKind int

const (
	Send204 ActionKind = iota
	SendSuccessBody
	SendLanding
)

// LandingOpts are the rendering parameters for a SendLanding action,
// translated by the render package into template parameters.
type LandingOpts struct {
	LinkType agent.LinkType
	ShowOK   bool
	Icon     string
	LocalURL string
}

// LinkOps mirrors the LINK_OPS enum passed to the template: the render
// layer needs both the symbolic link type and its template-facing string.
var LinkOps = map[agent.LinkType]string{
	agent.LinkHREF: "href",
	agent.LinkText: "text",
}

// Action is the Policy Engine's decision: a closed sum type with exactly
// one meaningful field set, indicated by Kind.
type Action struct {
	Kind    ActionKind
	Landing LandingOpts
}

// Registry is the subset of the Client Registry the Policy Engine needs.
// Declared here (rather than depending on *registry.Registry directly)
// purely so tests can substitute a fake without importing the concurrent
// map implementation.
type Registry interface {
	Get(id string) registry.State
	Touch(id string, now time.Time)
	SetAcknowledged(id string, acknowledged bool)
	Forget(id string)
}

// Engine is the Policy Engine. Construct with New.
type Engine struct {
	registry              Registry
	localURL              string
	maxAssumedSessionTime time.Duration
	maxTimeWithoutShowing time.Duration
	now                   func() time.Time

	// locks holds one *sync.Mutex per client id, so that the multi-step
	// Get/Forget/Touch/SetAcknowledged sequences decideApple and
	// decideAndroid perform are atomic as a whole, not just call-by-call.
	// Each Registry method already locks its own entry internally, but
	// that guarantees nothing about a *sequence* of calls for the same
	// id racing against another goroutine's sequence for that same id —
	// this is the lock that makes the sequence itself a single critical
	// section.
	locks sync.Map // id -> *sync.Mutex
}

// Config bundles Engine construction parameters.
type Config struct {
	Registry              Registry
	LocalURL              string
	MaxAssumedSessionTime time.Duration
	MaxTimeWithoutShowing time.Duration
	// Now overrides the clock; nil defaults to time.Now. Tests use this to
	// exercise the rejoin/new-session/in-session boundaries without
	// sleeping.
	Now func() time.Time
}

// New constructs an Engine from cfg.
func New(cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		registry:              cfg.Registry,
		localURL:              cfg.LocalURL,
		maxAssumedSessionTime: cfg.MaxAssumedSessionTime,
		maxTimeWithoutShowing: cfg.MaxTimeWithoutShowing,
		now:                   now,
	}
}

// Decide runs the Policy Engine for one probe and returns the Action to
// send, applying whatever Registry side effects that family's algorithm
// requires. For the Apple and Android families, the whole decide-and-mutate
// sequence runs under id's lock, so it is atomic with respect to any other
// concurrent probe from the same client.
func (e *Engine) Decide(family EndpointFamily, id string, profile agent.Profile, method string) Action {
	now := e.now()
	switch family {
	case Apple:
		mu := e.lockFor(id)
		mu.Lock()
		defer mu.Unlock()
		return e.decideApple(id, profile, now)
	case Android:
		mu := e.lockFor(id)
		mu.Lock()
		defer mu.Unlock()
		return e.decideAndroid(id, profile, method, now)
	case Other:
		e.registry.Touch(id, now)
		return e.landing(profile)
	default: // Default: catch-all, no registry write at all.
		return e.landing(profile)
	}
}

// Forget clears id's registry entry under its lock, so an admin reset can
// never interleave with an in-flight Apple/Android decide-and-mutate
// sequence for the same client.
func (e *Engine) Forget(id string) {
	mu := e.lockFor(id)
	mu.Lock()
	defer mu.Unlock()
	e.registry.Forget(id)
}

// lockFor returns the mutex guarding id's decide-and-mutate sequences,
// creating one on first use. Locks are never removed: a small, bounded
// number of distinct client ids over a deployment's lifetime is expected,
// matching the Client Registry's own unbounded-until-swept growth.
func (e *Engine) lockFor(id string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// decideApple implements SPEC_FULL.md §4.3's Apple-family algorithm.
func (e *Engine) decideApple(id string, profile agent.Profile, now time.Time) Action {
	state := e.registry.Get(id)
	delta := now.Sub(state.LastSeenAt)

	switch {
	case e.isRejoining(delta):
		// Rejoin after a short break: suppress the CPB pop-up.
		e.registry.Touch(id, now)
		return Action{Kind: SendSuccessBody}
	case e.isNewSession(delta):
		// Force the CPB to appear by withholding the Apple success marker.
		e.registry.Touch(id, now)
		return e.landing(profile)
	default:
		// Mid-session: only the wispr CPA gets the success marker, to
		// enable its "Done" button. Everything else is the CPB itself.
		if strings.Contains(profile.RawUA, "CaptiveNetworkSupport") {
			return Action{Kind: SendSuccessBody}
		}
		return e.landing(profile)
	}
}

// decideAndroid implements SPEC_FULL.md §4.3's Android-family algorithm.
func (e *Engine) decideAndroid(id string, profile agent.Profile, method string, now time.Time) Action {
	state := e.registry.Get(id)
	delta := now.Sub(state.LastSeenAt)

	if e.isNewSession(delta) {
		// Clears the acknowledgement; also correct for clients that were
		// merely last seen long ago, since that's already a fresh portal
		// session as far as the user is concerned.
		e.registry.Forget(id)
	}

	// Unconditional: extends the session on every probe, including the
	// periodic X11 agent, so an active device never rolls over to
	// "new session" mid-use.
	e.registry.Touch(id, now)

	if method == http.MethodPost {
		// POSTs originate from the landing page's OK form.
		e.registry.SetAcknowledged(id, true)
	}

	acknowledged := e.registry.Get(id).AndroidOKAcknowledged

	if strings.Contains(profile.RawUA, "Android") {
		if strings.Contains(profile.RawUA, "Dalvik") {
			if acknowledged {
				return Action{Kind: Send204}
			}
			return e.landing(profile)
		}
		// The WebView captive portal browser: never 204, always the
		// landing content itself.
		return e.landing(profile)
	}

	// No "Android" token: the Android 7.1+ X11 CPA.
	if acknowledged {
		return Action{Kind: Send204}
	}
	return e.landing(profile)
}

func (e *Engine) landing(profile agent.Profile) Action {
	return Action{
		Kind: SendLanding,
		Landing: LandingOpts{
			LinkType: profile.LinkType(),
			ShowOK:   agent.RequiresOKPress(profile),
			Icon:     profile.IconVariant(),
			LocalURL: e.localURL,
		},
	}
}

func (e *Engine) isNewSession(delta time.Duration) bool {
	return delta > e.maxTimeWithoutShowing
}

func (e *Engine) isRejoining(delta time.Duration) bool {
	return delta > e.maxAssumedSessionTime && delta <= e.maxTimeWithoutShowing
}
