// Package access classifies each request from its session evidence and
// decides what the caller may do. Classification is recomputed on every
// request and never persisted.
package access

import (
	"fmt"

	"github.com/jmcleod/assettag/session"
)

// Carrier exposes the two independently scoped bearer tokens attached to a
// request. It hides the wire encoding (cookies) from the decision logic.
type Carrier interface {
	AdminToken() (string, bool)
	AssetToken() (string, bool)
}

// Resolver resolves a token to its session payload. *session.Table
// satisfies it.
type Resolver interface {
	Lookup(token string) (session.Payload, bool)
}

// StateKind enumerates caller classifications.
type StateKind uint8

const (
	Anonymous StateKind = iota
	AdminAuthenticated
	AssetVerified
)

func (k StateKind) String() string {
	switch k {
	case Anonymous:
		return "anonymous"
	case AdminAuthenticated:
		return "admin"
	case AssetVerified:
		return "asset_verified"
	default:
		return fmt.Sprintf("StateKind(%d)", uint8(k))
	}
}

// State is the caller classification for one request. Asset is set only
// for AssetVerified.
type State struct {
	Kind  StateKind
	Asset string
}

// Classify determines the caller state for a request targeting
// requestedAsset ("" when the request targets no asset). A token whose
// payload has the wrong variant for its slot is ignored.
func Classify(r Resolver, c Carrier, requestedAsset string) State {
	if tok, ok := c.AdminToken(); ok {
		if p, ok := r.Lookup(tok); ok && p.Kind == session.KindAdmin {
			return State{Kind: AdminAuthenticated}
		}
	}
	if requestedAsset == "" {
		return State{Kind: Anonymous}
	}
	if tok, ok := c.AssetToken(); ok {
		if p, ok := r.Lookup(tok); ok && p.Kind == session.KindAsset && p.Asset == requestedAsset {
			return State{Kind: AssetVerified, Asset: p.Asset}
		}
	}
	return State{Kind: Anonymous}
}

// Operation enumerates the gated operations.
type Operation uint8

const (
	// OpManage covers list, create, delete, secret change and code export.
	OpManage Operation = iota
	// OpView is the asset detail view.
	OpView
	// OpVerify is submission of an asset secret.
	OpVerify
)

func (o Operation) String() string {
	switch o {
	case OpManage:
		return "manage"
	case OpView:
		return "view"
	case OpVerify:
		return "verify"
	default:
		return fmt.Sprintf("Operation(%d)", uint8(o))
	}
}

// Outcome is the gate's decision.
type Outcome uint8

const (
	// RedirectLogin denies the request and sends the caller to the login page.
	RedirectLogin Outcome = iota
	// Allow serves the request.
	Allow
	// AllowAndRecord serves the request and records one scan event.
	AllowAndRecord
	// Challenge renders the secret entry form for the requested asset.
	Challenge
	// VerifySecret checks the submitted secret against the asset.
	VerifySecret
)

func (o Outcome) String() string {
	switch o {
	case RedirectLogin:
		return "redirect_login"
	case Allow:
		return "allow"
	case AllowAndRecord:
		return "allow_and_record"
	case Challenge:
		return "challenge"
	case VerifySecret:
		return "verify_secret"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// Decide maps an operation and caller state to an outcome. scan reports
// whether the request carries the scan-origin flag; it only matters for
// OpView. Unknown operations or states deny.
func Decide(op Operation, st State, scan bool) Outcome {
	switch op {
	case OpManage:
		if st.Kind == AdminAuthenticated {
			return Allow
		}
		return RedirectLogin
	case OpView:
		if !scan {
			return Allow
		}
		switch st.Kind {
		case AdminAuthenticated, AssetVerified:
			return AllowAndRecord
		default:
			return Challenge
		}
	case OpVerify:
		return VerifySecret
	default:
		return RedirectLogin
	}
}
