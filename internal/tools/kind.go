package tools

// Kind identifies one of the fixed tools. The set is closed: any name that
// is not listed parses to KindUnknown.
type Kind int

const (
	KindUnknown Kind = iota
	KindProfile
	KindPurchased
	KindRecords
	KindSearch
)

// Tool names as declared to the model.
const (
	NameProfile   = "get_user_learning_profile"
	NamePurchased = "get_user_purchased_courses"
	NameRecords   = "get_user_learning_records"
	NameSearch    = "search_courses"
)

var kindNames = map[Kind]string{
	KindProfile:   NameProfile,
	KindPurchased: NamePurchased,
	KindRecords:   NameRecords,
	KindSearch:    NameSearch,
}

// ParseKind maps a tool name to its Kind.
func ParseKind(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindUnknown
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}
