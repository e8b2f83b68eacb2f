package schema

// ConversationID is the opaque conversation token issued by the remote agent.
// The controller never inspects it; it is carried verbatim between commands.
type ConversationID string

// StreamURL points at the live view of a running instance.
type StreamURL string

// InstanceKind selects the remote sandbox flavor.
type InstanceKind string

const (
	// InstanceUbuntu is a full Ubuntu desktop sandbox.
	InstanceUbuntu InstanceKind = "ubuntu"
	// InstanceBrowser is a browser-only sandbox.
	InstanceBrowser InstanceKind = "browser"
	// InstanceWindows is a Windows desktop sandbox.
	InstanceWindows InstanceKind = "windows"
)

// Valid reports whether the instance kind is a known value.
func (k InstanceKind) Valid() bool {
	switch k {
	case InstanceUbuntu, InstanceBrowser, InstanceWindows:
		return true
	}
	return false
}

// ToolKind identifies a tool the remote agent may use while executing a command.
type ToolKind string

const (
	// ToolBash grants shell access.
	ToolBash ToolKind = "bash"
	// ToolBrowser grants browser control.
	ToolBrowser ToolKind = "browser"
	// ToolComputer grants desktop (mouse/keyboard/screen) control.
	ToolComputer ToolKind = "computer"
	// ToolFileEdit grants file viewing and editing.
	ToolFileEdit ToolKind = "file_edit"
)

// Valid reports whether the tool kind is a known value.
func (t ToolKind) Valid() bool {
	switch t {
	case ToolBash, ToolBrowser, ToolComputer, ToolFileEdit:
		return true
	}
	return false
}

// AllTools lists every tool kind in a stable order.
func AllTools() []ToolKind {
	return []ToolKind{ToolBash, ToolBrowser, ToolComputer, ToolFileEdit}
}

// Origin identifies who produced a history entry.
type Origin string

const (
	// OriginOperator marks text entered by the human operator.
	OriginOperator Origin = "operator"
	// OriginAgent marks a result reported by the remote agent.
	OriginAgent Origin = "agent"
	// OriginSystem marks lifecycle and error notices from the controller.
	OriginSystem Origin = "system"
)
