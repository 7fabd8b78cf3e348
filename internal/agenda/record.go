package agenda

import (
	"encoding/json"
	"errors"
	"fmt"
)

// RecordVersion is the current version of the structured encoding.
const RecordVersion = 1

// ErrUnsupportedVersion is returned when decoding a record of an unknown version.
var ErrUnsupportedVersion = errors.New("unsupported record version")

// Record is the versioned structured encoding of an Appointment.
type Record struct {
	Version     int    `json:"v"`
	Date        string `json:"date"`
	Begin       string `json:"begin"`
	End         string `json:"end"`
	Description string `json:"description"`
}

// Record returns the structured encoding of a.
func (a Appointment) Record() Record {
	return Record{
		Version:     RecordVersion,
		Date:        a.Date().String(),
		Begin:       a.Begin.Format(clockLayout),
		End:         a.End.Format(clockLayout),
		Description: a.Description,
	}
}

// Appointment decodes r.
func (r Record) Appointment() (Appointment, error) {
	if r.Version != RecordVersion {
		return Appointment{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, r.Version)
	}
	return parseFields(fmt.Sprintf("%+v", r), r.Date, r.Begin, r.End, r.Description)
}

// MarshalJSON encodes a as a Record.
func (a Appointment) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Record())
}

// UnmarshalJSON decodes a Record into a.
func (a *Appointment) UnmarshalJSON(b []byte) error {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	appt, err := r.Appointment()
	if err != nil {
		return err
	}
	*a = appt
	return nil
}

// MarshalJSON encodes the sorted appointments as an array of records.
func (a *Agenda) MarshalJSON() ([]byte, error) {
	records := make([]Record, 0, a.Len())
	for _, appt := range a.Sorted() {
		records = append(records, appt.Record())
	}
	return json.Marshal(records)
}

// UnmarshalJSON decodes an array of records, replacing the agenda's contents.
func (a *Agenda) UnmarshalJSON(b []byte) error {
	var records []Record
	if err := json.Unmarshal(b, &records); err != nil {
		return err
	}
	appts := make([]Appointment, 0, len(records))
	for _, r := range records {
		appt, err := r.Appointment()
		if err != nil {
			return err
		}
		appts = append(appts, appt)
	}
	a.appts = appts
	return nil
}
