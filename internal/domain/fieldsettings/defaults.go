package fieldsettings

import "fieldsettings/internal/core/id"

// System field keys.
const (
	KeyFullName         = "full_name"
	KeyEmail            = "email"
	KeyPhone            = "phone"
	KeyUsername         = "username"
	KeyBatch            = "batch"
	KeyEnrollmentNumber = "enrollment_number"
	KeyGender           = "gender"
	KeyDateOfBirth      = "date_of_birth"
)

// DefaultSnapshot is what an institute starts with before its first save.
// Fixed fields carry temporary ids until then.
func DefaultSnapshot() *Snapshot {
	system := []SystemField{
		{Key: KeyFullName, DefaultLabel: "Full Name", Visible: true},
		{Key: KeyEmail, DefaultLabel: "Email", Visible: true},
		{Key: KeyPhone, DefaultLabel: "Phone", Visible: true},
		{Key: KeyUsername, DefaultLabel: "Username", Visible: true},
		{Key: KeyBatch, DefaultLabel: "Batch", Visible: true},
		{Key: KeyEnrollmentNumber, DefaultLabel: "Enrollment Number", Visible: true},
		{Key: KeyGender, DefaultLabel: "Gender"},
		{Key: KeyDateOfBirth, DefaultLabel: "Date of Birth"},
	}
	for i := range system {
		system[i].Order = i + 1
	}

	fixed := []FixedField{
		fixedField("Guardian Name", false),
		fixedField("Guardian Mobile", false),
		fixedField("Address", false),
		fixedField("City", false),
		fixedField("State", false),
		fixedField("Pincode", false),
		fixedField("College/School", true),
	}
	for i := range fixed {
		fixed[i].Order = i
	}

	return &Snapshot{
		SystemFields:    system,
		FixedFields:     fixed,
		InstituteFields: []Field{},
		CustomFields:    []Field{},
		FieldGroups:     []FieldGroup{},
	}
}

func fixedField(name string, renamable bool) FixedField {
	v := NewVisibility()
	v[LocationLearnerEnrollment] = true
	v[LocationLearnerProfile] = true
	return FixedField{
		Field: Field{
			ID:         id.NewTemp(),
			Name:       name,
			Type:       TypeText,
			Visibility: v,
		},
		CanBeRenamed: renamable,
	}
}
