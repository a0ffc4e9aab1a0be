package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spec-kit/portal-session/internal/domain"
	"github.com/spec-kit/portal-session/internal/repository"
)

var errEmptyRecord = errors.New("empty record")

// DecodeProfile decodes a partition record into the partition's profile shape.
// Records without an id take the subject; records without a name are malformed.
func DecodeProfile(partition domain.RolePartition, subject domain.Subject, record repository.Record) (any, error) {
	if len(record) == 0 {
		return nil, errEmptyRecord
	}

	switch {
	case partition == domain.PartitionAdmin:
		var profile domain.AdminProfile
		if err := json.Unmarshal(record, &profile); err != nil {
			return nil, err
		}
		profile.ID = orSubject(profile.ID, subject)
		if err := requireName(profile.Name); err != nil {
			return nil, err
		}
		return profile, nil
	case partition.IsStaff():
		var profile domain.StaffProfile
		if err := json.Unmarshal(record, &profile); err != nil {
			return nil, err
		}
		profile.ID = orSubject(profile.ID, subject)
		if err := requireName(profile.Name); err != nil {
			return nil, err
		}
		return profile, nil
	case partition == domain.PartitionPatient:
		var profile domain.PatientProfile
		if err := json.Unmarshal(record, &profile); err != nil {
			return nil, err
		}
		profile.ID = orSubject(profile.ID, subject)
		if err := requireName(profile.Name); err != nil {
			return nil, err
		}
		return profile, nil
	}
	return nil, fmt.Errorf("unknown partition %q", partition)
}

func orSubject(id string, subject domain.Subject) string {
	if id == "" {
		return string(subject)
	}
	return id
}

func requireName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("missing required field: name")
	}
	return nil
}
