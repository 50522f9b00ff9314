// Package authroles maps identity-provider groups to platform roles.
package authroles

import (
	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
)

// StaticRoleMapper maps groups by exact membership. The most privileged match
// wins; no match maps to the empty role.
type StaticRoleMapper struct {
	AdminGroup   string
	DoctorGroup  string
	PatientGroup string
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	var best domainauth.Role
	for _, g := range groups {
		switch {
		case m.AdminGroup != "" && g == m.AdminGroup:
			return domainauth.RoleAdmin
		case m.DoctorGroup != "" && g == m.DoctorGroup:
			best = domainauth.RoleDoctor
		case m.PatientGroup != "" && g == m.PatientGroup && best == "":
			best = domainauth.RolePatient
		}
	}
	return best
}

// Enabled reports whether any group is configured.
func (m StaticRoleMapper) Enabled() bool {
	return m.AdminGroup != "" || m.DoctorGroup != "" || m.PatientGroup != ""
}
