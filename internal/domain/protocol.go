package domain

import (
	"fmt"
	"strings"
)

// Protocol identifies one of the two remote APIs a call can be sent over.
type Protocol int

const (
	// ProtocolREST is the legacy SharePoint REST API.
	ProtocolREST Protocol = iota + 1

	// ProtocolGraph is the Microsoft Graph API.
	ProtocolGraph
)

// String returns a human-readable representation of the protocol.
func (p Protocol) String() string {
	switch p {
	case ProtocolREST:
		return "rest"
	case ProtocolGraph:
		return "graph"
	default:
		return "unknown"
	}
}

// Valid reports whether p is a known protocol.
func (p Protocol) Valid() bool {
	return p == ProtocolREST || p == ProtocolGraph
}

// Other returns the opposite protocol.
func (p Protocol) Other() Protocol {
	if p == ProtocolGraph {
		return ProtocolREST
	}
	return ProtocolGraph
}

// ParseProtocol parses "rest" or "graph" (case-insensitive).
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rest", "sharepoint", "spo":
		return ProtocolREST, nil
	case "graph":
		return ProtocolGraph, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", s)
	}
}

// Capability describes which protocols an operation can be expressed in.
type Capability int

const (
	RESTOnly Capability = iota + 1
	GraphOnly
	Both
)

// String returns a human-readable representation of the capability.
func (c Capability) String() string {
	switch c {
	case RESTOnly:
		return "rest-only"
	case GraphOnly:
		return "graph-only"
	case Both:
		return "both"
	default:
		return "none"
	}
}

// Supports reports whether the capability covers p.
func (c Capability) Supports(p Protocol) bool {
	switch c {
	case Both:
		return p.Valid()
	case RESTOnly:
		return p == ProtocolREST
	case GraphOnly:
		return p == ProtocolGraph
	default:
		return false
	}
}

// OperationKind is the CRUD operation a domain object is asked to describe.
type OperationKind int

const (
	OpGet OperationKind = iota + 1
	OpCreate
	OpUpdate
	OpDelete
)

// String returns a human-readable representation of the operation kind.
func (k OperationKind) String() string {
	switch k {
	case OpGet:
		return "get"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseOperationKind parses get/create/update/delete.
func ParseOperationKind(s string) (OperationKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "get", "read":
		return OpGet, nil
	case "create", "add":
		return OpCreate, nil
	case "update":
		return OpUpdate, nil
	case "delete":
		return OpDelete, nil
	default:
		return 0, fmt.Errorf("unknown operation %q", s)
	}
}
