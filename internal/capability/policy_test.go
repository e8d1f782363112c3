package capability

import (
	"testing"

	"github.com/jetlinks-ai/aistaff/pkg/protocol"
)

var fullCeiling = Set{Shell: true, Write: true, Browser: true, Dangerous: true}

func TestDerive(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want Set
	}{
		{
			name: "safe preset is empty even with full ceiling",
			in:   Input{Ceiling: fullCeiling, Preset: protocol.PresetSafe, Role: RoleOwner},
			want: Set{},
		},
		{
			name: "standard grants write to members",
			in:   Input{Ceiling: fullCeiling, Preset: protocol.PresetStandard, Role: RoleMember},
			want: Set{Write: true},
		},
		{
			name: "power for admin",
			in:   Input{Ceiling: fullCeiling, Preset: protocol.PresetPower, Role: RoleAdmin},
			want: Set{Shell: true, Write: true, Browser: true},
		},
		{
			name: "power for member clears shell and browser",
			in:   Input{Ceiling: fullCeiling, Preset: protocol.PresetPower, Role: RoleMember},
			want: Set{Write: true},
		},
		{
			name: "ceiling caps power",
			in: Input{
				Ceiling: Set{Write: true},
				Preset:  protocol.PresetPower,
				Role:    RoleOwner,
			},
			want: Set{Write: true},
		},
		{
			name: "custom honors toggles for admin",
			in: Input{
				Ceiling: fullCeiling,
				Preset:  protocol.PresetCustom,
				Toggles: Set{Shell: true},
				Role:    RoleAdmin,
			},
			want: Set{Shell: true},
		},
		{
			name: "dangerous needs custom preset",
			in: Input{
				Ceiling: fullCeiling,
				Preset:  protocol.PresetPower,
				Role:    RoleOwner,
				Provider: ProviderCaps{Unsandboxed: true},
			},
			want: Set{Shell: true, Write: true, Browser: true},
		},
		{
			name: "dangerous granted with custom + admin + provider",
			in: Input{
				Ceiling:  fullCeiling,
				Preset:   protocol.PresetCustom,
				Toggles:  Set{Dangerous: true},
				Role:     RoleOwner,
				Provider: ProviderCaps{Unsandboxed: true},
			},
			want: Set{Dangerous: true},
		},
		{
			name: "dangerous cleared when provider cannot run unsandboxed",
			in: Input{
				Ceiling:  fullCeiling,
				Preset:   protocol.PresetCustom,
				Toggles:  Set{Dangerous: true},
				Role:     RoleOwner,
				Provider: ProviderCaps{Unsandboxed: false},
			},
			want: Set{},
		},
		{
			name: "dangerous cleared for member",
			in: Input{
				Ceiling:  fullCeiling,
				Preset:   protocol.PresetCustom,
				Toggles:  Set{Dangerous: true},
				Role:     RoleMember,
				Provider: ProviderCaps{Unsandboxed: true},
			},
			want: Set{},
		},
		{
			name: "unknown preset is safe",
			in:   Input{Ceiling: fullCeiling, Preset: "bogus", Role: RoleOwner},
			want: Set{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(tt.in)
			if got.Effective != tt.want {
				t.Fatalf("Derive effective = %+v, want %+v", got.Effective, tt.want)
			}
			// effective ⊆ ceiling
			if got.Effective != got.Effective.Intersect(tt.in.Ceiling) {
				t.Fatalf("effective %+v exceeds ceiling %+v", got.Effective, tt.in.Ceiling)
			}
			// dangerous ⇒ admin role
			if got.Effective.Dangerous && !tt.in.Role.IsAdmin() {
				t.Fatal("dangerous granted to non-admin")
			}
		})
	}
}

func TestExplicitlyDenied(t *testing.T) {
	in := Input{
		Ceiling: Set{Shell: true, Write: true},
		Preset:  protocol.PresetCustom,
		Toggles: Set{Dangerous: true},
		Role:    RoleOwner,
	}
	if !ExplicitlyDenied(in) {
		t.Fatal("dangerous ask against a forbidding ceiling should be an explicit denial")
	}

	in.Toggles = Set{Shell: true}
	if ExplicitlyDenied(in) {
		t.Fatal("non-dangerous asks are never explicit denials")
	}

	in.Toggles = Set{Dangerous: true}
	in.Ceiling.Dangerous = true
	if ExplicitlyDenied(in) {
		t.Fatal("dangerous within ceiling is not a denial")
	}
}
