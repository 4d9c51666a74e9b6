package fieldsettings

import (
	"slices"
	"strings"

	"fieldsettings/internal/core/apperror"
)

// Option operations apply to institute and custom fields only. An unknown
// field id is ignored.

// AddOption appends a dropdown option.
func (r *Registry) AddOption(fieldID, value string) error {
	f := r.editableRef(fieldID)
	if f == nil {
		return nil
	}
	if err := checkDropdown(f); err != nil {
		return err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return apperror.NewValidation("option value is required").WithDetail("fieldId", fieldID)
	}
	f.Options = append(f.Options, value)
	return nil
}

// RemoveOption deletes the option at index. The last option of a dropdown
// cannot be removed.
func (r *Registry) RemoveOption(fieldID string, index int) error {
	f := r.editableRef(fieldID)
	if f == nil {
		return nil
	}
	if err := checkDropdown(f); err != nil {
		return err
	}
	if err := checkOptionIndex(f, index); err != nil {
		return err
	}
	if len(f.Options) == 1 {
		return apperror.NewValidation("a dropdown field needs at least one option").
			WithDetail("fieldId", fieldID)
	}
	f.Options = slices.Delete(f.Options, index, index+1)
	return nil
}

// EditOption replaces the option at index.
func (r *Registry) EditOption(fieldID string, index int, value string) error {
	f := r.editableRef(fieldID)
	if f == nil {
		return nil
	}
	if err := checkDropdown(f); err != nil {
		return err
	}
	if err := checkOptionIndex(f, index); err != nil {
		return err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return apperror.NewValidation("option value is required").
			WithDetail("fieldId", fieldID).
			WithDetail("index", index)
	}
	f.Options[index] = value
	return nil
}

func checkDropdown(f *Field) error {
	if f.Type != TypeDropdown {
		return apperror.NewValidation("options apply to dropdown fields only").
			WithDetail("fieldId", f.ID)
	}
	return nil
}

func checkOptionIndex(f *Field, index int) error {
	if index < 0 || index >= len(f.Options) {
		return apperror.NewValidation("option index out of range").
			WithDetail("fieldId", f.ID).
			WithDetail("index", index)
	}
	return nil
}
