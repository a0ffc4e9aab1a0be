package domain

import "strings"

// RolePartition names one of the role-partitioned identity collections.
type RolePartition string

const (
	PartitionAdmin         RolePartition = "ADMIN"
	PartitionNurse         RolePartition = "NURSE"
	PartitionLabTechnician RolePartition = "LAB_TECHNICIAN"
	PartitionAccountant    RolePartition = "ACCOUNTANT"
	PartitionDoctor        RolePartition = "DOCTOR"
	PartitionPatient       RolePartition = "PATIENT"
)

// Partitions lists every partition in resolution priority order.
var Partitions = []RolePartition{
	PartitionAdmin,
	PartitionNurse,
	PartitionLabTechnician,
	PartitionAccountant,
	PartitionDoctor,
	PartitionPatient,
}

// StaffPartitions lists the partitions fanned out for staff lookups, lowest order first.
var StaffPartitions = []RolePartition{
	PartitionNurse,
	PartitionLabTechnician,
	PartitionAccountant,
	PartitionDoctor,
}

// Collection returns the store collection (table) backing the partition.
func (p RolePartition) Collection() string {
	switch p {
	case PartitionAdmin:
		return "admins"
	case PartitionNurse:
		return "nurses"
	case PartitionLabTechnician:
		return "lab_technicians"
	case PartitionAccountant:
		return "accountants"
	case PartitionDoctor:
		return "doctors"
	case PartitionPatient:
		return "patients"
	}
	return ""
}

// Valid reports whether p is a known partition.
func (p RolePartition) Valid() bool {
	return p.Collection() != ""
}

// IsStaff reports whether p is one of the staff partitions.
func (p RolePartition) IsStaff() bool {
	for _, candidate := range StaffPartitions {
		if candidate == p {
			return true
		}
	}
	return false
}

// ClaimedRole is the role family a caller asserts when logging in.
type ClaimedRole string

const (
	ClaimedRolePatient ClaimedRole = "PATIENT"
	ClaimedRoleStaff   ClaimedRole = "STAFF"
)

// ParseClaimedRole normalizes user input into a ClaimedRole.
func ParseClaimedRole(raw string) (ClaimedRole, bool) {
	switch ClaimedRole(strings.ToUpper(strings.TrimSpace(raw))) {
	case ClaimedRolePatient:
		return ClaimedRolePatient, true
	case ClaimedRoleStaff:
		return ClaimedRoleStaff, true
	}
	return "", false
}
