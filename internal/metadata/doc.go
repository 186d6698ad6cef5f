// Package metadata holds the declarative entity tables that map local property
// names to SharePoint REST and Microsoft Graph field names, and the request
// templates each entity supports.
//
// Tables are data, not reflection: every entity type is registered once from
// YAML (or in code) and shared by reference afterwards. A Registry is owned by
// whoever constructs it and injected where it is needed.
//
//	reg, err := metadata.Default()
//	res, err := reg.Resolve("Web", []string{"Title"})
//	call, err := res.Calls(domain.OpGet, nil, nil, true)
package metadata
