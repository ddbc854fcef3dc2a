package types

import (
	"fmt"
	"strings"
)

// AgentType routes a question to one of the backend's reasoning profiles.
// The streaming client treats it as an opaque label.
type AgentType string

const (
	AgentPathfinder    AgentType = "pathfinder"
	AgentChronicle     AgentType = "chronicle"
	AgentDiagnostician AgentType = "diagnostician"
	AgentBlueprint     AgentType = "blueprint"
	AgentSentinel      AgentType = "sentinel"
)

// AgentInfo describes an agent for pickers and help output.
type AgentInfo struct {
	Type        AgentType `json:"type" yaml:"type"`
	Label       string    `json:"label" yaml:"label"`
	Description string    `json:"description" yaml:"description"`
}

// Agents is the catalogue of agents the backend understands, in display order.
var Agents = []AgentInfo{
	{Type: AgentPathfinder, Label: "Pathfinder", Description: "Code structure & navigation"},
	{Type: AgentChronicle, Label: "Chronicle", Description: "Commit history & evolution"},
	{Type: AgentDiagnostician, Label: "Diagnostician", Description: "Debugging & error analysis"},
	{Type: AgentBlueprint, Label: "Blueprint", Description: "Architecture reasoning"},
	{Type: AgentSentinel, Label: "Sentinel", Description: "Code review & quality checks"},
}

// Valid reports whether a is one of the catalogued agents.
func (a AgentType) Valid() bool {
	_, ok := LookupAgent(a)
	return ok
}

// LookupAgent returns the catalogue entry for a.
func LookupAgent(a AgentType) (AgentInfo, bool) {
	for _, info := range Agents {
		if info.Type == a {
			return info, true
		}
	}
	return AgentInfo{}, false
}

// ParseAgentType accepts an agent name case-insensitively.
func ParseAgentType(s string) (AgentType, error) {
	a := AgentType(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown agent type %q", s)
	}
	return a, nil
}
