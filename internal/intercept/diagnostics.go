package intercept

import (
	"strconv"

	"github.com/tidwall/sjson"
)

// EntryInfo is a read-only description of one entry.
type EntryInfo struct {
	OwnerType   string
	MemberName  string
	HandlerType string
}

// Key returns the registry key the info describes.
func (i EntryInfo) Key() string {
	return Key(i.OwnerType, i.MemberName)
}

// ExtensionInfo summarizes the extension state.
type ExtensionInfo struct {
	Version string
	Scope   ScopeMode
	Started bool
	ScopeID string
	Entries int
}

// Entries lists the bindings in the active scope, sorted by key.
func (e *Extension) Entries() []EntryInfo {
	scope := e.Scope()
	if scope == nil {
		return nil
	}
	return scope.registry.Entries()
}

// Info returns a summary of the extension state.
func (e *Extension) Info() ExtensionInfo {
	info := ExtensionInfo{
		Version: Version,
		Scope:   e.config.Scope,
		Started: e.Started(),
	}
	if scope := e.Scope(); scope != nil {
		info.ScopeID = scope.ID()
		info.Entries = scope.registry.Len()
	}
	return info
}

// DumpJSON renders Info, Entries and (when enabled) metrics as one JSON document.
func (e *Extension) DumpJSON() ([]byte, error) {
	info := e.Info()
	doc := []byte(`{}`)

	var err error
	set := func(path string, value any) {
		if err != nil {
			return
		}
		doc, err = sjson.SetBytes(doc, path, value)
	}

	set("version", info.Version)
	set("scope", string(info.Scope))
	set("started", info.Started)
	set("scope_id", info.ScopeID)
	set("entries", []any{})
	for i, entry := range e.Entries() {
		prefix := "entries." + strconv.Itoa(i)
		set(prefix+".owner", entry.OwnerType)
		set(prefix+".member", entry.MemberName)
		set(prefix+".handler", entry.HandlerType)
	}

	if m := e.metrics; m != nil {
		set("metrics.passthroughs", m.TotalPassthroughs())
		set("metrics.intercepts", m.TotalIntercepts())
		set("metrics.failures", m.TotalFailures())
		set("metrics.panics", m.TotalPanics())
	}

	if err != nil {
		return nil, err
	}
	return doc, nil
}
