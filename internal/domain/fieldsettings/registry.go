package fieldsettings

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-set/v2"

	"fieldsettings/internal/core/apperror"
	"fieldsettings/internal/core/id"
)

// slot locates a top-level record: its collection and position in it.
type slot struct {
	category Category
	pos      int
}

// Registry owns the field collections of one institute and is the single
// source of truth while settings are being edited.
type Registry struct {
	system    []SystemField
	fixed     []FixedField
	institute []Field
	custom    []Field
	groups    []FieldGroup

	// memberships is the field -> group relation. FieldGroup.Members is the
	// ordered view of the same relation and is kept in sync with it.
	memberships map[string]*set.Set[string]

	// index resolves ids in precedence order system, fixed, institute,
	// custom, groups. members resolves group id -> field id -> position.
	index   map[string]slot
	members map[string]map[string]int

	version     int
	lastUpdated time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{memberships: make(map[string]*set.Set[string])}
	r.reindex()
	return r
}

// NewRegistryFromSnapshot builds a registry populated from s.
func NewRegistryFromSnapshot(s *Snapshot) (*Registry, error) {
	return fromSnapshot(s)
}

// Version returns the version of the last loaded or saved snapshot.
func (r *Registry) Version() int {
	return r.version
}

// LastUpdated returns the timestamp of the last loaded or saved snapshot.
func (r *Registry) LastUpdated() time.Time {
	return r.lastUpdated
}

// Replace swaps the registry contents for s. On error the registry is unchanged.
func (r *Registry) Replace(s *Snapshot) error {
	next, err := fromSnapshot(s)
	if err != nil {
		return err
	}
	*r = *next
	return nil
}

func fromSnapshot(s *Snapshot) (*Registry, error) {
	if s == nil {
		return nil, apperror.NewValidation("snapshot is required")
	}
	c := s.Clone()
	next := &Registry{
		system:      c.SystemFields,
		fixed:       c.FixedFields,
		institute:   c.InstituteFields,
		custom:      c.CustomFields,
		groups:      c.FieldGroups,
		memberships: make(map[string]*set.Set[string]),
		version:     c.Version,
		lastUpdated: c.LastUpdated,
	}

	slices.SortStableFunc(next.system, func(a, b SystemField) int { return cmp.Compare(a.Order, b.Order) })
	slices.SortStableFunc(next.fixed, func(a, b FixedField) int { return cmp.Compare(a.Order, b.Order) })
	slices.SortStableFunc(next.institute, byFieldOrder)
	slices.SortStableFunc(next.custom, byFieldOrder)
	slices.SortStableFunc(next.groups, func(a, b FieldGroup) int { return cmp.Compare(a.Order, b.Order) })

	for i := range next.fixed {
		if err := normalizeField(&next.fixed[i].Field); err != nil {
			return nil, err
		}
	}
	for i := range next.institute {
		if err := normalizeField(&next.institute[i]); err != nil {
			return nil, err
		}
	}
	for i := range next.custom {
		if err := normalizeField(&next.custom[i]); err != nil {
			return nil, err
		}
	}
	if err := next.checkIdentity(); err != nil {
		return nil, err
	}
	next.renumberAll()
	next.reindex()

	// Group member lists are authoritative; the relation is rebuilt from them.
	for gi := range next.groups {
		g := &next.groups[gi]
		slices.SortStableFunc(g.Members, func(a, b GroupMember) int { return cmp.Compare(a.InternalOrder, b.InternalOrder) })
		seen := make(map[string]struct{}, len(g.Members))
		members := g.Members[:0]
		for _, m := range g.Members {
			if _, dup := seen[m.FieldID]; dup {
				continue
			}
			category, ok := next.fieldCategory(m.FieldID)
			if !ok {
				return nil, apperror.NewValidation("group references an unknown field").
					WithDetail("groupId", g.ID).
					WithDetail("fieldId", m.FieldID)
			}
			seen[m.FieldID] = struct{}{}
			m.Category = category
			members = append(members, m)
			next.attach(m.FieldID, g.ID)
		}
		g.Members = members
		renumberMembers(g)
	}
	next.reindex()
	return next, nil
}

func normalizeField(f *Field) error {
	if f.Type == "" {
		f.Type = TypeText
	}
	if !f.Type.Valid() {
		return apperror.NewValidation("unknown field type").
			WithDetail("fieldId", f.ID).
			WithDetail("type", string(f.Type))
	}
	f.Visibility = f.Visibility.Clone()
	if f.Type == TypeDropdown && len(f.Options) == 0 {
		f.Options = []string{DefaultOption}
	}
	f.GroupIDs = nil
	f.GroupName = ""
	return nil
}

// Snapshot returns a deep copy of the registry, with derived group labels.
func (r *Registry) Snapshot() *Snapshot {
	s := &Snapshot{
		SystemFields:    slices.Clone(r.system),
		FixedFields:     make([]FixedField, len(r.fixed)),
		InstituteFields: make([]Field, len(r.institute)),
		CustomFields:    make([]Field, len(r.custom)),
		FieldGroups:     make([]FieldGroup, len(r.groups)),
		LastUpdated:     r.lastUpdated,
		Version:         r.version,
	}
	for i, f := range r.fixed {
		c := f.clone()
		c.Field = r.decorate(f.Field)
		s.FixedFields[i] = c
	}
	for i, f := range r.institute {
		s.InstituteFields[i] = r.decorate(f)
	}
	for i, f := range r.custom {
		s.CustomFields[i] = r.decorate(f)
	}
	for i, g := range r.groups {
		s.FieldGroups[i] = g.clone()
	}
	if s.SystemFields == nil {
		s.SystemFields = []SystemField{}
	}
	return s
}

// Field returns a copy of a fixed, institute or custom field and its category.
func (r *Registry) Field(fieldID string) (Field, Category, bool) {
	s, ok := r.index[fieldID]
	if !ok {
		return Field{}, "", false
	}
	switch s.category {
	case CategoryFixed:
		return r.decorate(r.fixed[s.pos].Field), CategoryFixed, true
	case CategoryInstitute:
		return r.decorate(r.institute[s.pos]), CategoryInstitute, true
	case CategoryCustom:
		return r.decorate(r.custom[s.pos]), CategoryCustom, true
	}
	return Field{}, "", false
}

// SystemField returns a copy of a system field.
func (r *Registry) SystemField(key string) (SystemField, bool) {
	s, ok := r.index[key]
	if !ok || s.category != CategorySystem {
		return SystemField{}, false
	}
	return r.system[s.pos], true
}

// --- System fields ---

// RenameSystemField overrides the display label of a system field.
// A blank label restores the default one.
func (r *Registry) RenameSystemField(key, label string) error {
	s, ok := r.index[key]
	if !ok || s.category != CategorySystem {
		return apperror.NewNotFound("system field", key)
	}
	f := &r.system[s.pos]
	label = strings.TrimSpace(label)
	if label == f.DefaultLabel {
		label = ""
	}
	effective := label
	if effective == "" {
		effective = f.DefaultLabel
	}
	if r.nameTaken(effective, key) {
		return apperror.NewDuplicateFieldName(effective)
	}
	f.Label = label
	return nil
}

// ToggleSystemFieldVisibility flips the on/off flag of a system field.
func (r *Registry) ToggleSystemFieldVisibility(key string) error {
	s, ok := r.index[key]
	if !ok || s.category != CategorySystem {
		return apperror.NewNotFound("system field", key)
	}
	r.system[s.pos].Visible = !r.system[s.pos].Visible
	return nil
}

// --- Fixed fields ---

// SetFixedFieldVisibility flips one location bit of a fixed field.
func (r *Registry) SetFixedFieldVisibility(fieldID string, loc Location) error {
	if !loc.Valid() {
		return apperror.NewValidation("unknown location").WithDetail("location", string(loc))
	}
	f := r.fixedRef(fieldID)
	if f == nil {
		return errFieldNotFound(fieldID)
	}
	f.Visibility.Toggle(loc)
	return nil
}

// SetFixedFieldRequired flips the required flag of a fixed field.
func (r *Registry) SetFixedFieldRequired(fieldID string) error {
	f := r.fixedRef(fieldID)
	if f == nil {
		return errFieldNotFound(fieldID)
	}
	f.Required = !f.Required
	return nil
}

// --- Institute and custom fields ---

// RenameInstituteField renames an institute or custom field, or a fixed
// field that allows renaming.
func (r *Registry) RenameInstituteField(fieldID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperror.NewValidation("field name is required").WithDetail("fieldId", fieldID)
	}
	f, err := r.mutableRef(fieldID, func(fx *FixedField) bool { return fx.CanBeRenamed }, "renamed")
	if err != nil {
		return err
	}
	if r.nameTaken(name, fieldID) {
		return apperror.NewDuplicateFieldName(name)
	}
	f.Name = name
	return nil
}

// SetInstituteFieldType switches a field between text and dropdown.
// Switching to dropdown seeds a single default option; switching to text
// clears the options.
func (r *Registry) SetInstituteFieldType(fieldID string, t FieldType) error {
	if !t.Valid() {
		return apperror.NewValidation("unknown field type").WithDetail("type", string(t))
	}
	f, err := r.mutableRef(fieldID, func(fx *FixedField) bool { return fx.CanBeEdited }, "edited")
	if err != nil {
		return err
	}
	if f.Type == t {
		return nil
	}
	f.Type = t
	if t == TypeDropdown {
		f.Options = []string{DefaultOption}
	} else {
		f.Options = nil
	}
	return nil
}

// SetFieldRequired flips the required flag of an institute or custom field.
func (r *Registry) SetFieldRequired(fieldID string) error {
	f := r.editableRef(fieldID)
	if f == nil {
		return errFieldNotFound(fieldID)
	}
	f.Required = !f.Required
	return nil
}

// SetFieldVisibility flips one location bit of an institute or custom field.
func (r *Registry) SetFieldVisibility(fieldID string, loc Location) error {
	if !loc.Valid() {
		return apperror.NewValidation("unknown location").WithDetail("location", string(loc))
	}
	f := r.editableRef(fieldID)
	if f == nil {
		return errFieldNotFound(fieldID)
	}
	f.Visibility.Toggle(loc)
	return nil
}

// ToggleVisibility flips a location bit on any fixed, institute or custom field.
func (r *Registry) ToggleVisibility(fieldID string, loc Location) error {
	if r.fixedRef(fieldID) != nil {
		return r.SetFixedFieldVisibility(fieldID, loc)
	}
	return r.SetFieldVisibility(fieldID, loc)
}

// ToggleRequired flips the required flag on any fixed, institute or custom field.
func (r *Registry) ToggleRequired(fieldID string) error {
	if r.fixedRef(fieldID) != nil {
		return r.SetFixedFieldRequired(fieldID)
	}
	return r.SetFieldRequired(fieldID)
}

// RemoveField deletes an institute or custom field and detaches it from
// every group. Fixed fields are removable only when flagged so; system
// fields never are.
func (r *Registry) RemoveField(fieldID string) error {
	s, ok := r.index[fieldID]
	if !ok {
		return errFieldNotFound(fieldID)
	}
	switch s.category {
	case CategoryInstitute:
		r.detachEverywhere(fieldID)
		r.institute = slices.Delete(r.institute, s.pos, s.pos+1)
		renumberFields(r.institute)
	case CategoryCustom:
		r.detachEverywhere(fieldID)
		r.custom = slices.Delete(r.custom, s.pos, s.pos+1)
		renumberFields(r.custom)
	case CategoryFixed:
		if !r.fixed[s.pos].CanBeDeleted {
			return errFieldLocked(fieldID, "deleted")
		}
		r.detachEverywhere(fieldID)
		r.fixed = slices.Delete(r.fixed, s.pos, s.pos+1)
		renumberFixed(r.fixed)
	case CategorySystem:
		return errFieldLocked(fieldID, "deleted")
	default:
		return errFieldNotFound(fieldID)
	}
	r.reindex()
	return nil
}

// AddCustomField creates a temporary custom field with every location hidden.
// Dropdown fields without options get the default option.
func (r *Registry) AddCustomField(name string, t FieldType, options ...string) (Field, error) {
	f, err := r.newField(FieldDraft{Name: name, Type: t, Options: options})
	if err != nil {
		return Field{}, err
	}
	f.Order = len(r.custom)
	r.custom = append(r.custom, f)
	r.reindex()
	return r.decorate(f), nil
}

// newField validates a draft and builds a temporary field without touching the registry.
func (r *Registry) newField(d FieldDraft) (Field, error) {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return Field{}, apperror.NewValidation("field name is required")
	}
	if !d.Type.Valid() {
		return Field{}, apperror.NewValidation("unknown field type").WithDetail("type", string(d.Type))
	}
	if r.nameTaken(name, "") {
		return Field{}, apperror.NewDuplicateFieldName(name)
	}
	f := Field{
		ID:         id.NewTemp(),
		Name:       name,
		Type:       d.Type,
		Visibility: NewVisibility(),
	}
	if d.Type == TypeDropdown {
		for _, o := range d.Options {
			if o = strings.TrimSpace(o); o != "" {
				f.Options = append(f.Options, o)
			}
		}
		if len(f.Options) == 0 {
			f.Options = []string{DefaultOption}
		}
	}
	return f, nil
}

// nameTaken reports whether name collides, ignoring case, with any field
// other than exceptID across system, fixed, institute and custom fields.
func (r *Registry) nameTaken(name, exceptID string) bool {
	name = strings.TrimSpace(name)
	same := func(other string) bool {
		return strings.EqualFold(strings.TrimSpace(other), name)
	}
	for _, f := range r.system {
		if f.Key != exceptID && same(f.DisplayLabel()) {
			return true
		}
	}
	for _, f := range r.fixed {
		if f.ID != exceptID && same(f.Name) {
			return true
		}
	}
	for _, f := range r.institute {
		if f.ID != exceptID && same(f.Name) {
			return true
		}
	}
	for _, f := range r.custom {
		if f.ID != exceptID && same(f.Name) {
			return true
		}
	}
	return false
}

// checkIdentity rejects ids repeated anywhere in the registry and names that
// collide ignoring case, with the same coverage as nameTaken.
func (r *Registry) checkIdentity() error {
	ids := make(map[string]struct{})
	claimID := func(key string) error {
		if key == "" {
			return apperror.NewValidation("id is required")
		}
		if _, dup := ids[key]; dup {
			return apperror.NewValidation("duplicate id").WithDetail("id", key)
		}
		ids[key] = struct{}{}
		return nil
	}
	names := make(map[string]struct{})
	claimName := func(name string) error {
		name = strings.TrimSpace(name)
		folded := strings.ToLower(name)
		if _, dup := names[folded]; dup {
			return apperror.NewDuplicateFieldName(name)
		}
		names[folded] = struct{}{}
		return nil
	}
	claimField := func(f Field) error {
		if err := claimID(f.ID); err != nil {
			return err
		}
		if strings.TrimSpace(f.Name) == "" {
			return apperror.NewValidation("field name is required").WithDetail("fieldId", f.ID)
		}
		return claimName(f.Name)
	}

	for _, f := range r.system {
		if err := claimID(f.Key); err != nil {
			return err
		}
		if label := f.DisplayLabel(); strings.TrimSpace(label) != "" {
			if err := claimName(label); err != nil {
				return err
			}
		}
	}
	for _, f := range r.fixed {
		if err := claimField(f.Field); err != nil {
			return err
		}
	}
	for _, fields := range [][]Field{r.institute, r.custom} {
		for _, f := range fields {
			if err := claimField(f); err != nil {
				return err
			}
		}
	}
	for _, g := range r.groups {
		if err := claimID(g.ID); err != nil {
			return err
		}
	}
	return nil
}

// --- lookups ---

func (r *Registry) fixedRef(fieldID string) *FixedField {
	s, ok := r.index[fieldID]
	if !ok || s.category != CategoryFixed {
		return nil
	}
	return &r.fixed[s.pos]
}

// editableRef returns the institute or custom field with fieldID.
func (r *Registry) editableRef(fieldID string) *Field {
	s, ok := r.index[fieldID]
	if !ok {
		return nil
	}
	switch s.category {
	case CategoryInstitute:
		return &r.institute[s.pos]
	case CategoryCustom:
		return &r.custom[s.pos]
	}
	return nil
}

// mutableRef returns an editable field, or a fixed field when allowed says so.
func (r *Registry) mutableRef(fieldID string, allowed func(*FixedField) bool, action string) (*Field, error) {
	if f := r.editableRef(fieldID); f != nil {
		return f, nil
	}
	fx := r.fixedRef(fieldID)
	if fx == nil {
		return nil, errFieldNotFound(fieldID)
	}
	if !allowed(fx) {
		return nil, errFieldLocked(fieldID, action)
	}
	return &fx.Field, nil
}

func (r *Registry) fieldCategory(fieldID string) (Category, bool) {
	s, ok := r.index[fieldID]
	if !ok {
		return "", false
	}
	switch s.category {
	case CategoryFixed, CategoryInstitute, CategoryCustom:
		return s.category, true
	}
	return "", false
}

func (r *Registry) decorate(f Field) Field {
	out := f.clone()
	out.GroupIDs = r.GroupsOf(f.ID)
	out.GroupName = r.GroupLabel(f.ID)
	return out
}

// reindex rebuilds the id index. The first collection in precedence order wins.
func (r *Registry) reindex() {
	idx := make(map[string]slot, len(r.system)+len(r.fixed)+len(r.institute)+len(r.custom)+len(r.groups))
	put := func(key string, c Category, pos int) {
		if _, taken := idx[key]; !taken {
			idx[key] = slot{category: c, pos: pos}
		}
	}
	for i, f := range r.system {
		put(f.Key, CategorySystem, i)
	}
	for i, f := range r.fixed {
		put(f.ID, CategoryFixed, i)
	}
	for i, f := range r.institute {
		put(f.ID, CategoryInstitute, i)
	}
	for i, f := range r.custom {
		put(f.ID, CategoryCustom, i)
	}
	members := make(map[string]map[string]int, len(r.groups))
	for i, g := range r.groups {
		put(g.ID, CategoryGroup, i)
		pos := make(map[string]int, len(g.Members))
		for j, m := range g.Members {
			pos[m.FieldID] = j
		}
		members[g.ID] = pos
	}
	r.index = idx
	r.members = members
}

// --- ordering helpers ---

func byFieldOrder(a, b Field) int {
	return cmp.Compare(a.Order, b.Order)
}

func (r *Registry) renumberAll() {
	renumberSystem(r.system)
	renumberFixed(r.fixed)
	renumberFields(r.institute)
	renumberFields(r.custom)
	renumberGroups(r.groups)
}

// renumberSystem numbers system fields from 1.
func renumberSystem(fields []SystemField) {
	for i := range fields {
		fields[i].Order = i + 1
	}
}

func renumberFixed(fields []FixedField) {
	for i := range fields {
		fields[i].Order = i
	}
}

func renumberFields(fields []Field) {
	for i := range fields {
		fields[i].Order = i
	}
}

func renumberGroups(groups []FieldGroup) {
	for i := range groups {
		groups[i].Order = i
	}
}

func renumberMembers(g *FieldGroup) {
	for i := range g.Members {
		g.Members[i].InternalOrder = i
	}
}
