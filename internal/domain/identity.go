package domain

import "time"

// Credential is the transient login input. It is never persisted.
type Credential struct {
	Identifier  string
	Secret      string
	ClaimedRole ClaimedRole
}

// Subject is the stable identifier issued by the credential verifier.
type Subject string

// ResolvedIdentity is the outcome of a successful role resolution.
type ResolvedIdentity struct {
	SessionID  string
	Subject    Subject
	Role       RolePartition
	Profile    any
	ResolvedAt time.Time
}

// AdminProfile is the decoded shape of an admin record.
type AdminProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// StaffProfile is the decoded shape of nurse, lab technician, accountant and doctor records.
type StaffProfile struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Department    string `json:"department,omitempty"`
	LicenseNumber string `json:"license_number,omitempty"`
}

// PatientProfile is the decoded shape of a patient record.
type PatientProfile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Phone       string `json:"phone,omitempty"`
}
