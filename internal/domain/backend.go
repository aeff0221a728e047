package domain

import (
	"strings"
	"time"
)

// BackendDescriptor — описание backend'а в реестре.
type BackendDescriptor struct {
	// ID — идентификатор: "local", имя внешнего сервера или нормализованный id агента.
	ID string `json:"id"`

	Kind     BackendKind `json:"kind"`
	Endpoint string      `json:"endpoint"`

	Availability Availability `json:"availability"`
	Description  string       `json:"description,omitempty"`

	// CheckedAt — время последней проверки доступности.
	CheckedAt *time.Time `json:"checked_at,omitempty"`
}

// IsHTTP возвращает true для backend'ов, вызываемых по HTTP.
func (d *BackendDescriptor) IsHTTP() bool {
	return d.Kind == BackendKindLocal || d.Kind == BackendKindExternalHTTP
}

// NormalizeAgentID приводит идентификатор агента к виду "@owner/name".
//
//	"weather"        → "@weather/agent"
//	"turkyden/weather" → "@turkyden/weather"
func NormalizeAgentID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if !strings.HasPrefix(id, "@") {
		id = "@" + id
	}
	if !strings.Contains(id, "/") {
		id += "/agent"
	}
	return id
}

// AgentPath возвращает путь агента на сервере агентов: нормализованный
// идентификатор без ведущего "@".
//
//	"@turkyden/weather" → "turkyden/weather"
func AgentPath(id string) string {
	return strings.TrimPrefix(NormalizeAgentID(id), "@")
}
