package intercept

import "strings"

// Separator joins owner and member in registry keys. Names may not contain ':'.
const Separator = "::"

// Key returns the registry key for an owner/member pair.
func Key(owner, member string) string {
	return owner + Separator + member
}

// ValidName reports whether name can be used as an owner or member name.
func ValidName(name string) bool {
	return name != "" && !strings.Contains(name, ":")
}

// Entry is one registered binding. Its names are owned copies and never change.
type Entry struct {
	owner   string
	member  string
	handler Interceptor
}

func newEntry(owner, member string, h Interceptor) *Entry {
	return &Entry{
		owner:   strings.Clone(owner),
		member:  strings.Clone(member),
		handler: h,
	}
}

// OwnerType returns the intercepted owner type name.
func (e *Entry) OwnerType() string {
	return e.owner
}

// MemberName returns the intercepted member name.
func (e *Entry) MemberName() string {
	return e.member
}

// Handler returns the bound interceptor.
func (e *Entry) Handler() Interceptor {
	return e.handler
}

// Key returns the registry key of the entry.
func (e *Entry) Key() string {
	return Key(e.owner, e.member)
}

// Info returns a diagnostics snapshot of the entry.
func (e *Entry) Info() EntryInfo {
	return EntryInfo{
		OwnerType:   e.owner,
		MemberName:  e.member,
		HandlerType: TypeName(e.handler),
	}
}

// release drops the entry's share of its handler.
func (e *Entry) release() {
	release(e.handler)
}
