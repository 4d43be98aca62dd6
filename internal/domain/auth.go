package domain

// SubjectType differentiates the kind of caller behind an action.
type SubjectType string

const (
	SubjectTypeUser   SubjectType = "USER"
	SubjectTypeStaff  SubjectType = "STAFF"
	SubjectTypeSystem SubjectType = "SYSTEM"
)

// AuthorType maps a subject to the author type recorded on comments and history.
func (s SubjectType) AuthorType() MessageAuthorType {
	switch s {
	case SubjectTypeUser:
		return AuthorTypeUser
	case SubjectTypeStaff:
		return AuthorTypeStaff
	default:
		return AuthorTypeSystem
	}
}
