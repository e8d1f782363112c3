// Package capability derives the effective capability set for one turn.
// The derivation is a pure function of (server ceiling, request preset,
// request toggles, caller role, provider declaration) so it can be tested
// exhaustively without the request path.
package capability

import "github.com/jetlinks-ai/aistaff/pkg/protocol"

// Set is the enabled subset of {shell, write, browser, dangerous}.
type Set struct {
	Shell     bool `json:"shell"`
	Write     bool `json:"write"`
	Browser   bool `json:"browser"`
	Dangerous bool `json:"dangerous"`
}

// Intersect returns the bitwise AND of two sets.
func (s Set) Intersect(o Set) Set {
	return Set{
		Shell:     s.Shell && o.Shell,
		Write:     s.Write && o.Write,
		Browser:   s.Browser && o.Browser,
		Dangerous: s.Dangerous && o.Dangerous,
	}
}

// Empty reports whether no capability is enabled.
func (s Set) Empty() bool {
	return !s.Shell && !s.Write && !s.Browser && !s.Dangerous
}

// Role is the caller's membership role in the active team.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// IsAdmin reports whether the role may enable high-risk capabilities.
func (r Role) IsAdmin() bool { return r == RoleOwner || r == RoleAdmin }

// ProviderCaps is the subset of the provider declaration the policy needs.
type ProviderCaps struct {
	Unsandboxed bool // provider can run without a sandbox (dangerous bit)
}

// Input collects everything the derivation depends on.
type Input struct {
	Ceiling  Set    // server-wide upper bounds
	Preset   string // protocol.Preset*
	Toggles  Set    // explicit request toggles, only honored for preset=custom
	Role     Role
	Provider ProviderCaps
}

// Profile is the derivation result, emitted as the security_profile event.
type Profile struct {
	Preset    string `json:"preset"`
	Requested Set    `json:"requested"`
	Effective Set    `json:"effective"`
}

// presetSet expands a named preset into its requested capability set.
func presetSet(preset string, toggles Set) Set {
	switch preset {
	case protocol.PresetSafe:
		return Set{}
	case protocol.PresetStandard:
		return Set{Write: true}
	case protocol.PresetPower:
		return Set{Shell: true, Write: true, Browser: true}
	case protocol.PresetCustom:
		return toggles
	default:
		return Set{}
	}
}

// Derive collapses the inputs into the effective set:
// effective = requested ∩ ceiling ∩ role gate ∩ provider gate.
//
// The role gate clears shell, browser, and dangerous for non-admin callers;
// write stays available to members (it is what the standard preset grants).
// The dangerous bit additionally requires preset=custom and a provider that
// declares it can run unsandboxed.
func Derive(in Input) Profile {
	requested := presetSet(in.Preset, in.Toggles)
	eff := requested.Intersect(in.Ceiling)

	if !in.Role.IsAdmin() {
		eff.Shell = false
		eff.Browser = false
		eff.Dangerous = false
	}

	if eff.Dangerous {
		if in.Preset != protocol.PresetCustom || !in.Provider.Unsandboxed {
			eff.Dangerous = false
		}
	}

	return Profile{Preset: in.Preset, Requested: requested, Effective: eff}
}

// ExplicitlyDenied reports whether the request asked for the dangerous bit
// and the server ceiling forbids it. This is the only denial that surfaces
// as an HTTP 403; lesser denials are silently cleared.
func ExplicitlyDenied(in Input) bool {
	requested := presetSet(in.Preset, in.Toggles)
	return requested.Dangerous && !in.Ceiling.Dangerous
}
