package domain

import "github.com/google/uuid"

// Typed IDs keep entity references from being mixed up at compile time.
// They wrap uuid.UUID so conversion stays explicit at package boundaries.
type (
	// LineID identifies a production line.
	LineID uuid.UUID
	// ProcessID identifies a process attached to a production line.
	ProcessID uuid.UUID
	// UserID identifies a user account. Actors are always users.
	UserID uuid.UUID
	// EntryID identifies an audit entry.
	EntryID uuid.UUID
)

func NewLineID() LineID       { return LineID(uuid.New()) }
func NewProcessID() ProcessID { return ProcessID(uuid.New()) }
func NewUserID() UserID       { return UserID(uuid.New()) }
func NewEntryID() EntryID     { return EntryID(uuid.New()) }

func (id LineID) String() string    { return uuid.UUID(id).String() }
func (id ProcessID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id EntryID) String() string   { return uuid.UUID(id).String() }

func (id LineID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ProcessID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id EntryID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// ParseLineID validates and returns a LineID.
func ParseLineID(s string) (LineID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return LineID{}, err
	}
	return LineID(u), nil
}

// ParseProcessID validates and returns a ProcessID.
func ParseProcessID(s string) (ProcessID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ProcessID{}, err
	}
	return ProcessID(u), nil
}

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseEntryID validates and returns an EntryID.
func ParseEntryID(s string) (EntryID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return EntryID{}, err
	}
	return EntryID(u), nil
}

// Text marshaling keeps the canonical UUID string form in JSON payloads.
func (id LineID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id ProcessID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id EntryID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }

func (id *LineID) UnmarshalText(text []byte) error {
	parsed, err := ParseLineID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ProcessID) UnmarshalText(text []byte) error {
	parsed, err := ParseProcessID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *UserID) UnmarshalText(text []byte) error {
	parsed, err := ParseUserID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *EntryID) UnmarshalText(text []byte) error {
	parsed, err := ParseEntryID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
